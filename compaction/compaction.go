//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package compaction bounds the message history handed to the model.
//
// A Middleware is a pure transform over a message list. It never mutates its
// input; when it changes anything it returns a new slice. Middlewares are
// composed into a Chain and applied in order before every inference.
package compaction

import (
	"context"
	"fmt"

	"trpc.group/trpc-go/trpc-agent-turn/model"
)

// Middleware transforms a message history.
type Middleware interface {
	// Name identifies the middleware in logs and errors.
	Name() string
	// Compact returns the compacted history. It must not modify msgs.
	Compact(ctx context.Context, msgs []model.Message) ([]model.Message, error)
}

// Func adapts a plain function into a Middleware.
func Func(name string, fn func(ctx context.Context, msgs []model.Message) ([]model.Message, error)) Middleware {
	return &funcMiddleware{name: name, fn: fn}
}

type funcMiddleware struct {
	name string
	fn   func(ctx context.Context, msgs []model.Message) ([]model.Message, error)
}

func (f *funcMiddleware) Name() string { return f.name }

func (f *funcMiddleware) Compact(ctx context.Context, msgs []model.Message) ([]model.Message, error) {
	return f.fn(ctx, msgs)
}

// Chain is an ordered list of middlewares.
type Chain []Middleware

// Names returns the middleware names in application order.
func (c Chain) Names() []string {
	names := make([]string, 0, len(c))
	for _, m := range c {
		names = append(names, m.Name())
	}
	return names
}

// Compact applies each middleware to the output of the previous one.
func (c Chain) Compact(ctx context.Context, msgs []model.Message) ([]model.Message, error) {
	out := msgs
	for _, m := range c {
		next, err := m.Compact(ctx, out)
		if err != nil {
			return nil, fmt.Errorf("compaction %s: %w", m.Name(), err)
		}
		out = next
	}
	return out, nil
}
