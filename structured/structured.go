//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package structured turns a model's final answer into a typed, schema
// validated record.
//
// Two strategies are provided. DirectDecode asks the model to answer with JSON
// and parses the final text. ToolDecode offers the model a response-formatting
// tool whose input schema is the record schema and reads the record from the
// tool call arguments. Neither strategy retries.
package structured

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"

	itool "trpc.group/trpc-go/trpc-agent-turn/internal/tool"
	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/tool"
)

// Strategy extracts the final structured response of a turn.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string
	// Prepare adjusts a model request before every inference.
	Prepare(req *model.Request)
	// IsFinal reports whether msg ends the tool loop even though it may carry tool calls.
	IsFinal(msg model.Message) bool
	// Extract decodes the record from the final model message. It also returns
	// the assistant message to persist for the turn.
	Extract(msg model.Message) (any, model.Message, error)
}

// Option configures a strategy.
type Option func(*options)

type options struct {
	name        string
	description string
	strict      bool
}

// WithName overrides the schema name, which defaults to the Go type name.
// For ToolDecode it is also the name of the formatting tool.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithDescription sets the schema description shown to the model.
func WithDescription(desc string) Option {
	return func(o *options) { o.description = desc }
}

// WithStrict requests strict schema adherence from providers that support it.
func WithStrict(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Schema describes the record type T.
type Schema[T any] struct {
	Name        string
	Description string
	Strict      bool
	JSONSchema  *tool.Schema
}

// NewSchema builds the schema of T from its struct fields and tags.
func NewSchema[T any](opts ...Option) *Schema[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if o.name == "" {
		o.name = typeName(typ)
	}
	return &Schema[T]{
		Name:        o.name,
		Description: o.description,
		Strict:      o.strict,
		JSONSchema:  itool.GenerateJSONSchema(typ),
	}
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := invalidNameChars.ReplaceAllString(t.Name(), "_")
	if name == "" {
		return "response"
	}
	return name
}

// Validate checks that the record is a JSON object with a usable name.
func (s *Schema[T]) Validate() error {
	if s.JSONSchema == nil || s.JSONSchema.Type != "object" {
		return fmt.Errorf("schema %s: record type must be a struct", s.Name)
	}
	if err := tool.ValidateDeclaration(s.declaration()); err != nil {
		return fmt.Errorf("schema %s: %w", s.Name, err)
	}
	return nil
}

func (s *Schema[T]) declaration() *tool.Declaration {
	desc := s.Description
	if desc == "" {
		desc = fmt.Sprintf("Respond with the final answer as a %s record. Call this exactly once, when no other tool is needed.", s.Name)
	}
	return &tool.Declaration{
		Name:        s.Name,
		Description: desc,
		InputSchema: s.JSONSchema,
	}
}

// Decode validates raw against the schema and decodes it into a new T.
func (s *Schema[T]) Decode(raw []byte) (*T, error) {
	if err := itool.ValidateJSON(s.JSONSchema, raw); err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.Name, err)
	}
	return out, nil
}
