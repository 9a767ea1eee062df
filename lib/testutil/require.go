// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"time"
)

// RequireReceive reads one value from ch and returns it, failing the
// test if the channel is closed or nothing arrives within timeout.
// The format string describes what the test was waiting for and is
// included in the failure message.
//
//	err := testutil.RequireReceive(t, results, 10*time.Second, "waiting for writer %d", i)
func RequireReceive[T any](t interface {
	Helper()
	Fatalf(format string, args ...any)
}, ch <-chan T, timeout time.Duration, format string, args ...any) T {
	t.Helper()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while %s", fmt.Sprintf(format, args...))
		}
		return v
	case <-timer.C:
		t.Fatalf("gave up after %v while %s", timeout, fmt.Sprintf(format, args...))
	}
	panic("unreachable")
}
