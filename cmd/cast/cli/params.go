// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// FlagBinder is implemented by types that register their own flags.
// When a struct field's pointer type implements FlagBinder, [BindFlags]
// calls AddFlags instead of reflecting over struct tags, so types with
// dynamic defaults (environment-dependent paths, for example) can
// participate in a params struct without tag support.
type FlagBinder interface {
	AddFlags(flagSet *pflag.FlagSet)
}

// FlagsFromParams builds a [pflag.FlagSet] whose flags write into the
// tagged fields of params. params must be a pointer to a struct; panics
// otherwise, since a malformed params struct is a programming error.
//
// The usual shape:
//
//	var params indexParams
//	command := &cli.Command{
//	    Flags: func() *pflag.FlagSet {
//	        return cli.FlagsFromParams("index", &params)
//	    },
//	    Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
//	        // params fields hold parsed values here
//	    },
//	}
func FlagsFromParams(name string, params any) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if err := BindFlags(params, flagSet); err != nil {
		panic(fmt.Sprintf("cli.FlagsFromParams(%q): %v", name, err))
	}
	return flagSet
}

// BindFlags registers a pflag entry for each tagged field of params,
// which must be a pointer to a struct.
//
// Three struct tags drive the binding:
//
//   - flag:"name" or flag:"name,n" — long flag name plus optional
//     single-character shorthand. Fields without a flag tag are skipped.
//   - desc:"..." — help text for the flag.
//   - default:"..." — default value, parsed per the field's Go type;
//     the zero value applies when absent.
//
// Fields may be string, bool, int, int64, float64, [time.Duration], or
// []string.
//
// Struct-typed fields compose: a field whose pointer implements
// [FlagBinder] registers through AddFlags (embedded or named, but it
// must be exported), and any other embedded struct contributes its own
// tagged fields recursively.
func BindFlags(params any, flagSet *pflag.FlagSet) error {
	value := reflect.ValueOf(params)
	if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("params must be a pointer to a struct, got %T", params)
	}
	return bindFields(value.Elem(), flagSet)
}

func bindFields(structValue reflect.Value, flagSet *pflag.FlagSet) error {
	structType := structValue.Type()

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		fieldValue := structValue.Field(i)

		// A struct field whose pointer implements FlagBinder registers
		// its own flags. The field must be exported for reflect to hand
		// out the pointer.
		if field.Type.Kind() == reflect.Struct && field.IsExported() && fieldValue.CanAddr() {
			if binder, ok := fieldValue.Addr().Interface().(FlagBinder); ok {
				binder.AddFlags(flagSet)
				continue
			}
		}

		// Other embedded structs contribute their tagged fields directly.
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := bindFields(fieldValue, flagSet); err != nil {
				return fmt.Errorf("embedded %s: %w", field.Name, err)
			}
			continue
		}

		tag := field.Tag.Get("flag")
		if tag == "" {
			continue
		}
		name, shorthand, _ := strings.Cut(tag, ",")

		if !fieldValue.CanAddr() {
			return fmt.Errorf("field %s: not addressable", field.Name)
		}
		err := registerFlag(fieldValue, flagSet, name, shorthand, field.Tag.Get("desc"), field.Tag.Get("default"))
		if err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}

	return nil
}

// registerFlag binds one struct field to flagSet, parsing the default
// tag according to the field's Go type.
func registerFlag(fieldValue reflect.Value, flagSet *pflag.FlagSet, name, shorthand, description, defaultTag string) error {
	switch target := fieldValue.Addr().Interface().(type) {
	case *string:
		flagSet.StringVarP(target, name, shorthand, defaultTag, description)
		return nil

	case *bool:
		value, err := tagDefault(defaultTag, strconv.ParseBool)
		if err != nil {
			return fmt.Errorf("default for --%s: %w", name, err)
		}
		flagSet.BoolVarP(target, name, shorthand, value, description)
		return nil

	case *int:
		value, err := tagDefault(defaultTag, strconv.Atoi)
		if err != nil {
			return fmt.Errorf("default for --%s: %w", name, err)
		}
		flagSet.IntVarP(target, name, shorthand, value, description)
		return nil

	case *int64:
		value, err := tagDefault(defaultTag, func(s string) (int64, error) {
			return strconv.ParseInt(s, 10, 64)
		})
		if err != nil {
			return fmt.Errorf("default for --%s: %w", name, err)
		}
		flagSet.Int64VarP(target, name, shorthand, value, description)
		return nil

	case *float64:
		value, err := tagDefault(defaultTag, func(s string) (float64, error) {
			return strconv.ParseFloat(s, 64)
		})
		if err != nil {
			return fmt.Errorf("default for --%s: %w", name, err)
		}
		flagSet.Float64VarP(target, name, shorthand, value, description)
		return nil

	case *time.Duration:
		value, err := tagDefault(defaultTag, time.ParseDuration)
		if err != nil {
			return fmt.Errorf("default for --%s: %w", name, err)
		}
		flagSet.DurationVarP(target, name, shorthand, value, description)
		return nil

	case *[]string:
		var value []string
		if defaultTag != "" {
			value = strings.Split(defaultTag, ",")
		}
		flagSet.StringSliceVarP(target, name, shorthand, value, description)
		return nil

	default:
		return fmt.Errorf("unsupported type %s for flag --%s", fieldValue.Type(), name)
	}
}

// tagDefault parses a default tag value, mapping an absent tag to the
// type's zero value.
func tagDefault[T any](tag string, parse func(string) (T, error)) (T, error) {
	if tag == "" {
		var zero T
		return zero, nil
	}
	return parse(tag)
}
