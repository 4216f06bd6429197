//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package tool defines the tool contract consumed by the turn runner.
package tool

import (
	"context"

	"trpc.group/trpc-go/trpc-agent-turn/agent"
)

// Tool is anything that can describe itself to a model.
type Tool interface {
	// Declaration returns the metadata describing the tool.
	Declaration() *Declaration
}

// CallableTool defines the interface for tools that can be dispatched by the runner.
type CallableTool interface {
	// Call calls the tool with JSON encoded arguments.
	// A returned error is reported back to the model as a tool error message,
	// it does not fail the turn.
	Call(ctx context.Context, jsonArgs []byte, rt *Runtime) (any, error)

	Tool
}

// StateAware is implemented by tools that need read/write access to the
// custom fields of the thread being executed.
type StateAware interface {
	StateAware() bool
}

// IsStateAware reports whether t asked for thread state access.
func IsStateAware(t Tool) bool {
	s, ok := t.(StateAware)
	return ok && s.StateAware()
}

// StateView is the view of a thread's custom fields handed to state-aware tools.
// Writes land in the working copy of the turn and are only persisted when the
// turn commits.
type StateView interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
}

// Runtime carries the per-call execution context of a tool.
type Runtime struct {
	// Invocation is the turn being executed.
	Invocation *agent.Invocation
	// ToolCallID is the id the model assigned to this call.
	ToolCallID string
	// State is nil unless the tool is state-aware.
	State StateView
}

// InvocationContext returns the caller supplied context of the turn.
func (rt *Runtime) InvocationContext() agent.InvocationContext {
	if rt == nil || rt.Invocation == nil {
		return agent.InvocationContext{}
	}
	return rt.Invocation.Context
}

// Declaration describes the metadata of a tool, such as its name, description, and expected arguments.
type Declaration struct {
	// Name is the unique identifier of the tool
	Name string `json:"name"`

	// Description explains the tool's purpose and functionality
	Description string `json:"description"`

	// InputSchema defines the expected input for the tool in JSON schema format.
	InputSchema *Schema `json:"inputSchema"`

	// OutputSchema defines the expected output for the tool in JSON schema format.
	OutputSchema *Schema `json:"outputSchema,omitempty"`
}

// Schema represents the subset of JSON Schema used to describe tool
// arguments and structured responses.
type Schema struct {
	// Type is one of "object", "array", "string", "number", "integer", "boolean".
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required,omitempty"`
	// Properties of the arguments, each with its own schema
	Properties map[string]*Schema `json:"properties,omitempty"`
	// For array types, defines the schema of items in the array
	Items *Schema `json:"items,omitempty"`
	// Enum restricts string values.
	Enum []string `json:"enum,omitempty"`
	// Nullable marks values that may be JSON null.
	Nullable bool `json:"-"`
	// AdditionalProperties controls whether properties not defined in Properties are allowed.
	// It is either a bool or a *Schema.
	AdditionalProperties any `json:"additionalProperties,omitempty"`
}
