//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package tiktoken provides a BPE based token counter for token budgeted compaction.
package tiktoken

import (
	"context"
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"trpc.group/trpc-go/trpc-agent-turn/model"
)

// perMessageOverhead approximates the role and separator tokens chat formats add.
const perMessageOverhead = 3

// Counter counts tokens with a tiktoken encoding.
type Counter struct {
	encoding tokenizer.Codec
}

// New returns a counter for modelName, falling back to cl100k_base for
// models tiktoken does not know.
func New(modelName string) (*Counter, error) {
	enc, err := tokenizer.ForModel(tokenizer.Model(modelName))
	if err != nil {
		enc, err = tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			return nil, fmt.Errorf("failed to get fallback tokenizer: %w", err)
		}
	}
	return &Counter{encoding: enc}, nil
}

// CountTokens counts content and tool call tokens of message.
func (c *Counter) CountTokens(_ context.Context, message model.Message) (int, error) {
	if message.Content == "" && len(message.ToolCalls) == 0 {
		return 0, nil
	}
	total := perMessageOverhead
	if message.Content != "" {
		n, err := c.count(message.Content)
		if err != nil {
			return 0, fmt.Errorf("encode content failed: %w", err)
		}
		total += n
	}
	for _, tc := range message.ToolCalls {
		n, err := c.count(tc.Function.Name + tc.Function.Arguments)
		if err != nil {
			return 0, fmt.Errorf("encode tool call %s failed: %w", tc.ID, err)
		}
		total += n
	}
	return total, nil
}

func (c *Counter) count(s string) (int, error) {
	toks, _, err := c.encoding.Encode(s)
	if err != nil {
		return 0, err
	}
	return len(toks), nil
}
