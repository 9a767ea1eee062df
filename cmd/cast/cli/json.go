// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"os"
	"reflect"
)

// JSONOutput adds machine-readable output to a command when embedded in
// its params struct: the flag tag contributes --json, and
// [JSONOutput.EmitJSON] short-circuits text rendering when the flag is
// set.
//
//	type datasetsParams struct {
//	    cli.JSONOutput
//	    Name string `flag:"name" desc:"substring filter"`
//	}
//
//	// In Run:
//	if done, err := params.EmitJSON(records); done {
//	    return err
//	}
//	// ... text formatting ...
type JSONOutput struct {
	OutputJSON bool `flag:"json" desc:"output as JSON"`
}

// EmitJSON writes result to stdout as indented JSON when --json was
// given. It reports (true, err) when it handled the output and the
// caller should return, or (false, nil) when the caller should render
// text instead.
//
// A nil slice is emitted as [] rather than null, so list-shaped
// commands never hand scripts a null to deal with.
func (j *JSONOutput) EmitJSON(result any) (bool, error) {
	if !j.OutputJSON {
		return false, nil
	}
	if v := reflect.ValueOf(result); v.Kind() == reflect.Slice && v.IsNil() {
		result = reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return true, encoder.Encode(result)
}
