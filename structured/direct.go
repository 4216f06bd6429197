//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package structured

import (
	"errors"

	"trpc.group/trpc-go/trpc-agent-turn/agent"
	"trpc.group/trpc-go/trpc-agent-turn/model"
)

var errNoJSONObject = errors.New("no JSON object in final answer")

// Direct decodes the record from the text of the final answer.
type Direct[T any] struct {
	schema *Schema[T]
}

// DirectDecode creates a strategy that requests a native JSON response format
// and decodes the first JSON object found in the final answer.
func DirectDecode[T any](opts ...Option) *Direct[T] {
	return &Direct[T]{schema: NewSchema[T](opts...)}
}

// Name implements Strategy.
func (d *Direct[T]) Name() string { return "direct_decode" }

// Schema returns the record schema.
func (d *Direct[T]) Schema() *Schema[T] { return d.schema }

// Validate reports whether T can be used as a record.
func (d *Direct[T]) Validate() error { return d.schema.Validate() }

// Prepare implements Strategy.
func (d *Direct[T]) Prepare(req *model.Request) {
	req.StructuredOutput = &model.StructuredOutput{
		Name:        d.schema.Name,
		Description: d.schema.Description,
		Schema:      d.schema.JSONSchema,
		Strict:      d.schema.Strict,
	}
}

// IsFinal implements Strategy. Any answer without tool calls is final.
func (d *Direct[T]) IsFinal(msg model.Message) bool {
	return len(msg.ToolCalls) == 0
}

// Extract implements Strategy. The final message is persisted as the model wrote it.
func (d *Direct[T]) Extract(msg model.Message) (any, model.Message, error) {
	raw, ok := extractFirstJSONObject(msg.Content)
	if !ok {
		return nil, model.Message{}, &agent.StructuredOutputError{
			Schema: d.schema.Name, Raw: msg.Content, Err: errNoJSONObject,
		}
	}
	out, err := d.schema.Decode([]byte(raw))
	if err != nil {
		return nil, model.Message{}, &agent.StructuredOutputError{
			Schema: d.schema.Name, Raw: raw, Err: err,
		}
	}
	return out, msg, nil
}
