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
	"context"
	"fmt"
	"unicode/utf8"
)

const approxRunesPerToken = 4 // heuristic: ~1 token per 4 UTF-8 runes

// TokenCounter counts tokens for messages.
type TokenCounter interface {
	// CountTokens returns the estimated token count for a single message.
	CountTokens(ctx context.Context, message Message) (int, error)
}

// SimpleTokenCounter provides a very rough token estimation based on rune length.
type SimpleTokenCounter struct{}

// NewSimpleTokenCounter creates a SimpleTokenCounter.
func NewSimpleTokenCounter() *SimpleTokenCounter {
	return &SimpleTokenCounter{}
}

// CountTokens estimates tokens for a single message including its tool calls.
func (c *SimpleTokenCounter) CountTokens(_ context.Context, message Message) (int, error) {
	runes := utf8.RuneCountInString(message.Content)
	for _, tc := range message.ToolCalls {
		runes += utf8.RuneCountInString(tc.Function.Name) + utf8.RuneCountInString(tc.Function.Arguments)
	}
	if runes == 0 {
		return 0, nil
	}
	return max(runes/approxRunesPerToken, 1), nil
}

// CountTokensRange sums the token counts of messages[start:end].
func CountTokensRange(ctx context.Context, counter TokenCounter, messages []Message, start, end int) (int, error) {
	if start < 0 || end > len(messages) || start > end {
		return 0, fmt.Errorf("invalid range: start=%d, end=%d, len=%d", start, end, len(messages))
	}
	total := 0
	for i := start; i < end; i++ {
		n, err := counter.CountTokens(ctx, messages[i])
		if err != nil {
			return 0, fmt.Errorf("count tokens for message %d failed: %w", i, err)
		}
		total += n
	}
	return total, nil
}
