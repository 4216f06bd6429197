//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below matches exactly one of them with errors.Is.
var (
	ErrUnknownTool       = errors.New("unknown tool")
	ErrToolExecution     = errors.New("tool execution failed")
	ErrToolLoopExceeded  = errors.New("tool loop exceeded")
	ErrModelInference    = errors.New("model inference failed")
	ErrStructuredOutput  = errors.New("structured output failed")
	ErrTimeout           = errors.New("timeout")
	ErrEmptyThreadID     = errors.New("thread id is empty")
	ErrEmptyMessage      = errors.New("user message is empty")
	ErrInvalidToolSchema = errors.New("invalid tool schema")
)

// Error types reported in model responses.
const (
	ErrorTypeAPIError      = "api_error"
	ErrorTypeEmptyResponse = "empty_response"
)

// UnknownToolError is returned when the model requests a tool that is not registered.
// It is fatal to the turn.
type UnknownToolError struct {
	Name   string
	CallID string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q (call %s)", e.Name, e.CallID)
}

// Is reports whether target is ErrUnknownTool.
func (e *UnknownToolError) Is(target error) bool { return target == ErrUnknownTool }

// ToolExecutionError wraps a failure raised while running a registered tool.
// The dispatcher turns it into a tool message instead of failing the turn.
type ToolExecutionError struct {
	Name   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %v", e.Name, e.Err)
}

// Is reports whether target is ErrToolExecution.
func (e *ToolExecutionError) Is(target error) bool { return target == ErrToolExecution }

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// ToolLoopExceededError is returned when the model keeps requesting tools past the round cap.
type ToolLoopExceededError struct {
	MaxRounds int
}

func (e *ToolLoopExceededError) Error() string {
	return fmt.Sprintf("tool loop exceeded %d rounds", e.MaxRounds)
}

// Is reports whether target is ErrToolLoopExceeded.
func (e *ToolLoopExceededError) Is(target error) bool { return target == ErrToolLoopExceeded }

// ModelInferenceError wraps a failed inference call, either a transport error or
// an error reported by the provider inside the response.
type ModelInferenceError struct {
	Model string
	Type  string
	Err   error
}

func (e *ModelInferenceError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("model %s inference failed (%s): %v", e.Model, e.Type, e.Err)
	}
	return fmt.Sprintf("model %s inference failed: %v", e.Model, e.Err)
}

// Is reports whether target is ErrModelInference.
func (e *ModelInferenceError) Is(target error) bool { return target == ErrModelInference }

func (e *ModelInferenceError) Unwrap() error { return e.Err }

// StructuredOutputError is returned when the final answer does not conform to the response schema.
type StructuredOutputError struct {
	Schema string
	Raw    string
	Err    error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("structured output %s: %v", e.Schema, e.Err)
}

// Is reports whether target is ErrStructuredOutput.
func (e *StructuredOutputError) Is(target error) bool { return target == ErrStructuredOutput }

func (e *StructuredOutputError) Unwrap() error { return e.Err }

// TimeoutError is returned when an inference or a tool call exceeds its deadline.
type TimeoutError struct {
	// Stage is "inference", "tool" or "turn".
	Stage string
	// Name is the model or tool name when known.
	Name string
	Err  error
}

func (e *TimeoutError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %s timed out: %v", e.Stage, e.Name, e.Err)
	}
	return fmt.Sprintf("%s timed out: %v", e.Stage, e.Err)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.Err }
