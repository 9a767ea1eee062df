// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"strconv"
	"sync/atomic"
)

var idSequence atomic.Uint64

// UniqueID returns "prefix-N" with N drawn from a process-wide
// counter, so concurrent tests never collide. Use it where tests need
// distinct blob contents or dataset names instead of deriving them
// from time.Now().
//
//	name := testutil.UniqueID("dataset")  // "dataset-1", "dataset-2", ...
func UniqueID(prefix string) string {
	return prefix + "-" + strconv.FormatUint(idSequence.Add(1), 10)
}
