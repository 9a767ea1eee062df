// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError carries a process exit code through the normal error
// return path. A command returns it when a non-zero exit is a result
// rather than a failure ("cast exists" exits 1 for an absent blob)
// and the command has already written its own output.
//
// main checks returned errors for the ExitCode method and exits with
// that code silently instead of printing the error string.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the process exit code to use.
func (e *ExitError) ExitCode() int {
	return e.Code
}
