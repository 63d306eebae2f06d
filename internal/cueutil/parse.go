// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Decode validates data against the definition at schemaPath (e.g.
// "#Config") in schema and decodes the unified value into T.
func Decode[T any](schema string, data []byte, schemaPath string, opts ...Option) (*T, error) {
	unified, err := unify(schema, data, schemaPath, opts...)
	if err != nil {
		return nil, err
	}
	var out T
	if err := unified.value.Decode(&out); err != nil {
		return nil, FormatError(err, unified.filename)
	}
	return &out, nil
}

// DecodeMap is Decode into a generic map, the shape viper merges.
func DecodeMap(schema string, data []byte, schemaPath string, opts ...Option) (map[string]any, error) {
	out, err := Decode[map[string]any](schema, data, schemaPath, opts...)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

type unified struct {
	value    cue.Value
	filename string
}

func unify(schema string, data []byte, schemaPath string, opts ...Option) (unified, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if err := CheckFileSize(data, o.maxFileSize, o.filename); err != nil {
		return unified{}, err
	}

	ctx := cuecontext.New()
	schemaValue := ctx.CompileString(schema)
	if err := schemaValue.Err(); err != nil {
		return unified{}, fmt.Errorf("internal error: compile schema: %w", err)
	}
	def := schemaValue.LookupPath(cue.ParsePath(schemaPath))
	if err := def.Err(); err != nil {
		return unified{}, fmt.Errorf("internal error: schema definition %s: %w", schemaPath, err)
	}

	user := ctx.CompileBytes(data, cue.Filename(o.filename))
	if err := user.Err(); err != nil {
		return unified{}, FormatError(err, o.filename)
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(o.concrete)); err != nil {
		return unified{}, FormatError(err, o.filename)
	}
	return unified{value: v, filename: o.filename}, nil
}
