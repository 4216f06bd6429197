//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package agent holds the invocation context shared by the runner, the model
// adapters and the tools, together with the turn error taxonomy.
package agent

import (
	"context"
	"fmt"
	"maps"
)

// InvocationContext is the read-only, caller supplied context of a single
// turn, for example the authenticated user id. It is never persisted.
type InvocationContext map[string]any

// Clone returns a shallow copy so later caller mutations do not leak into a
// running turn.
func (c InvocationContext) Clone() InvocationContext {
	if c == nil {
		return InvocationContext{}
	}
	return maps.Clone(c)
}

// Get returns the value stored under key.
func (c InvocationContext) Get(key string) (any, bool) {
	v, ok := c[key]
	return v, ok
}

// GetString returns the value under key formatted as a string.
func (c InvocationContext) GetString(key string) (string, bool) {
	v, ok := c[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// Invocation describes one turn being executed against a thread.
type Invocation struct {
	// ID uniquely identifies the turn.
	ID string
	// ThreadID is the conversation the turn belongs to.
	ThreadID string
	// Context is the caller supplied invocation context.
	Context InvocationContext
	// Round is the tool round currently being executed, starting at zero.
	Round int
}

type invocationKey struct{}

// NewInvocationContext returns a context carrying the invocation.
func NewInvocationContext(ctx context.Context, inv *Invocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, inv)
}

// InvocationFromContext returns the invocation carried by ctx.
func InvocationFromContext(ctx context.Context) (*Invocation, bool) {
	inv, ok := ctx.Value(invocationKey{}).(*Invocation)
	return inv, ok && inv != nil
}
