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
	"fmt"

	"trpc.group/trpc-go/trpc-agent-turn/agent"
	"trpc.group/trpc-go/trpc-agent-turn/log"
	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/tool"
)

var errNoFormattingCall = errors.New("final answer did not call the response tool")

// ToolStrategy decodes the record from the arguments of a synthetic
// response-formatting tool call.
type ToolStrategy[T any] struct {
	schema *Schema[T]
	decl   *tool.Declaration
}

// ToolDecode creates a strategy that offers the model a tool named after the
// record. The turn ends when the model calls it.
func ToolDecode[T any](opts ...Option) *ToolStrategy[T] {
	s := NewSchema[T](opts...)
	return &ToolStrategy[T]{schema: s, decl: s.declaration()}
}

// Name implements Strategy.
func (s *ToolStrategy[T]) Name() string { return "tool_decode" }

// Schema returns the record schema.
func (s *ToolStrategy[T]) Schema() *Schema[T] { return s.schema }

// ToolName returns the name of the formatting tool.
func (s *ToolStrategy[T]) ToolName() string { return s.decl.Name }

// Validate reports whether T can be offered as a tool.
func (s *ToolStrategy[T]) Validate() error { return s.schema.Validate() }

// Prepare implements Strategy. The model must call a tool every round so
// that the turn ends with the formatting tool rather than plain text.
func (s *ToolStrategy[T]) Prepare(req *model.Request) {
	req.Tools = append(req.Tools, s.decl)
	req.ToolChoice = model.ToolChoiceRequired
}

// IsFinal implements Strategy. A message is final when it calls the
// formatting tool or carries no tool calls at all.
func (s *ToolStrategy[T]) IsFinal(msg model.Message) bool {
	if len(msg.ToolCalls) == 0 {
		return true
	}
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == s.decl.Name {
			return true
		}
	}
	return false
}

// Extract implements Strategy. The persisted final message carries the
// validated JSON as content; the formatting call itself is not kept.
func (s *ToolStrategy[T]) Extract(msg model.Message) (any, model.Message, error) {
	var formatting []model.ToolCall
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == s.decl.Name {
			formatting = append(formatting, tc)
			continue
		}
		log.Warnf("structured: dropping tool call %s (%s) issued alongside %s",
			tc.ID, tc.Function.Name, s.decl.Name)
	}
	switch len(formatting) {
	case 0:
		return nil, model.Message{}, &agent.StructuredOutputError{
			Schema: s.schema.Name, Raw: msg.Content, Err: errNoFormattingCall,
		}
	case 1:
	default:
		return nil, model.Message{}, &agent.StructuredOutputError{
			Schema: s.schema.Name,
			Err:    fmt.Errorf("%s called %d times in one response", s.decl.Name, len(formatting)),
		}
	}
	raw := formatting[0].Function.Arguments
	out, err := s.schema.Decode([]byte(raw))
	if err != nil {
		return nil, model.Message{}, &agent.StructuredOutputError{
			Schema: s.schema.Name, Raw: raw, Err: err,
		}
	}
	return out, model.NewAssistantMessage(raw), nil
}
