//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"time"
)

// Finish reasons normalized across providers.
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
	FinishReasonLength    = "length"
)

// Usage reports token consumption.
type Usage struct {
	// PromptTokens is the number of tokens in the prompt.
	PromptTokens int `json:"prompt_tokens"`

	// CompletionTokens is the number of tokens in the completion.
	CompletionTokens int `json:"completion_tokens"`

	// TotalTokens is the total number of tokens in the response.
	TotalTokens int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other *Usage) {
	if u == nil || other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Response is the outcome of one inference.
type Response struct {
	// ID is the unique identifier for this response.
	ID string `json:"id"`

	// Model is the model used to generate the response.
	Model string `json:"model"`

	// Message is the assistant message produced by the model.
	Message Message `json:"message"`

	// FinishReason is the normalized reason the model stopped.
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage contains token usage information.
	Usage *Usage `json:"usage,omitempty"`

	// Error contains API-level error information if the request failed.
	// This is nil for successful responses.
	// Note: This is different from function-level errors returned by GenerateContent().
	Error *ResponseError `json:"error,omitempty"`

	// Timestamp when the response was received.
	Timestamp time.Time `json:"timestamp"`
}

// IsToolCallResponse reports whether the model requested tool calls.
func (rsp *Response) IsToolCallResponse() bool {
	return rsp != nil && len(rsp.Message.ToolCalls) > 0
}

// GetToolCallIDs returns the ids of the requested tool calls.
func (rsp *Response) GetToolCallIDs() []string {
	if rsp == nil {
		return nil
	}
	ids := make([]string, 0, len(rsp.Message.ToolCalls))
	for _, tc := range rsp.Message.ToolCalls {
		ids = append(ids, tc.ID)
	}
	return ids
}

// ResponseError is an error reported by the provider.
type ResponseError struct {
	// Message is the error message.
	Message string `json:"message"`

	// Type is the type of error.
	Type string `json:"type"`

	// Code is the error code.
	Code *string `json:"code,omitempty"`
}

func (e *ResponseError) Error() string {
	return e.Message
}
