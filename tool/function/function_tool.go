//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package function wraps typed Go functions as callable tools.
package function

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	itool "trpc.group/trpc-go/trpc-agent-turn/internal/tool"
	"trpc.group/trpc-go/trpc-agent-turn/tool"
)

// Func is the signature of a function backing a FunctionTool.
type Func[I, O any] func(ctx context.Context, in I, rt *tool.Runtime) (O, error)

// FunctionTool implements the CallableTool interface for executing functions with arguments.
// Arguments are validated against the input schema generated from I before
// being decoded, so malformed model calls surface as tool errors.
type FunctionTool[I, O any] struct {
	name         string
	description  string
	inputSchema  *tool.Schema
	outputSchema *tool.Schema
	fn           Func[I, O]
	stateAware   bool
	skipValidate bool
	unmarshaler  unmarshaler
}

// Option is a function that configures a FunctionTool.
type Option func(*functionToolOptions)

// functionToolOptions holds the configuration options for FunctionTool.
type functionToolOptions struct {
	name         string
	description  string
	unmarshaler  unmarshaler
	stateAware   bool
	skipValidate bool
	inputSchema  *tool.Schema
}

// WithName sets the name of the function tool.
func WithName(name string) Option {
	return func(opts *functionToolOptions) {
		opts.name = name
	}
}

// WithDescription sets the description of the function tool.
func WithDescription(description string) Option {
	return func(opts *functionToolOptions) {
		opts.description = description
	}
}

// WithStateAccess marks the tool as state-aware: it receives a view of the
// thread's custom fields in Runtime.State.
func WithStateAccess() Option {
	return func(opts *functionToolOptions) {
		opts.stateAware = true
	}
}

// WithInputSchema overrides the schema generated from the input type.
func WithInputSchema(s *tool.Schema) Option {
	return func(opts *functionToolOptions) {
		opts.inputSchema = s
	}
}

// WithoutArgumentValidation disables schema validation of call arguments.
func WithoutArgumentValidation() Option {
	return func(opts *functionToolOptions) {
		opts.skipValidate = true
	}
}

// NewFunctionTool creates a FunctionTool from fn. The input and output schemas
// are generated from I and O.
func NewFunctionTool[I, O any](fn func(ctx context.Context, in I, rt *tool.Runtime) (O, error), opts ...Option) *FunctionTool[I, O] {
	options := &functionToolOptions{
		unmarshaler: &jsonUnmarshaler{},
	}
	for _, opt := range opts {
		opt(options)
	}

	iSchema := options.inputSchema
	if iSchema == nil {
		iSchema = itool.GenerateJSONSchema(reflect.TypeOf((*I)(nil)).Elem())
	}
	oSchema := itool.GenerateJSONSchema(reflect.TypeOf((*O)(nil)).Elem())

	return &FunctionTool[I, O]{
		name:         options.name,
		description:  options.description,
		fn:           fn,
		stateAware:   options.stateAware,
		skipValidate: options.skipValidate,
		unmarshaler:  options.unmarshaler,
		inputSchema:  iSchema,
		outputSchema: oSchema,
	}
}

// Call validates and decodes jsonArgs into I and invokes the function.
func (ft *FunctionTool[I, O]) Call(ctx context.Context, jsonArgs []byte, rt *tool.Runtime) (any, error) {
	if !ft.skipValidate {
		if err := itool.ValidateJSON(ft.inputSchema, jsonArgs); err != nil {
			return nil, err
		}
	}
	var input I
	if len(jsonArgs) > 0 {
		if err := ft.unmarshaler.Unmarshal(jsonArgs, &input); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
	}
	return ft.fn(ctx, input, rt)
}

// StateAware reports whether the tool reads or writes thread state.
func (ft *FunctionTool[I, O]) StateAware() bool {
	return ft.stateAware
}

// Declaration returns the tool's declaration information.
func (ft *FunctionTool[I, O]) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:         ft.name,
		Description:  ft.description,
		InputSchema:  ft.inputSchema,
		OutputSchema: ft.outputSchema,
	}
}

type unmarshaler interface {
	Unmarshal([]byte, any) error
}

type jsonUnmarshaler struct{}

// Unmarshal unmarshals JSON data into the provided interface.
func (j *jsonUnmarshaler) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
