//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package compaction

import (
	"context"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-agent-turn/model"
)

// TokenBudget removes messages from the middle of the history until it fits
// within maxTokens as measured by counter.
//
// Leading system messages and the last user turn (the last user message and
// everything after it) are always kept, even when they alone exceed the budget.
// Among the remaining messages those closest to either end survive longest.
// A tool result left without its call after trimming is dropped as well.
func TokenBudget(counter model.TokenCounter, maxTokens int) Middleware {
	if counter == nil {
		counter = model.NewSimpleTokenCounter()
	}
	return &tokenBudget{counter: counter, maxTokens: maxTokens}
}

type tokenBudget struct {
	counter   model.TokenCounter
	maxTokens int
}

func (b *tokenBudget) Name() string { return "token_budget" }

func (b *tokenBudget) Compact(ctx context.Context, msgs []model.Message) ([]model.Message, error) {
	if b.maxTokens <= 0 {
		return nil, errors.New("maxTokens must be positive")
	}
	if len(msgs) == 0 {
		return msgs, nil
	}
	prefix := make([]int, len(msgs)+1)
	for i, m := range msgs {
		n, err := b.counter.CountTokens(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("count tokens of message %d: %w", i, err)
		}
		prefix[i+1] = prefix[i] + n
	}
	if prefix[len(msgs)] <= b.maxTokens {
		return msgs, nil
	}

	head := preservedHead(msgs)
	tailStart := lastTurnStart(msgs)
	if tailStart < head {
		tailStart = head
	}
	budget := b.maxTokens - prefix[head] - (prefix[len(msgs)] - prefix[tailStart])

	// Grow kept ranges [head, h) and [t, tailStart) alternately from both ends.
	h, t := head, tailStart
	fromTail := true
	for h < t && budget > 0 {
		var cost int
		if fromTail {
			cost = prefix[t] - prefix[t-1]
		} else {
			cost = prefix[h+1] - prefix[h]
		}
		if cost > budget {
			// Try the other end once before giving up.
			fromTail = !fromTail
			if fromTail {
				cost = prefix[t] - prefix[t-1]
			} else {
				cost = prefix[h+1] - prefix[h]
			}
			if cost > budget {
				break
			}
		}
		budget -= cost
		if fromTail {
			t--
		} else {
			h++
		}
		fromTail = !fromTail
	}

	out := make([]model.Message, 0, h+len(msgs)-t)
	out = append(out, msgs[:h]...)
	if h < t {
		// Tool results whose call was removed cannot stand alone.
		for t < tailStart && msgs[t].Role == model.RoleTool {
			t++
		}
	}
	out = append(out, msgs[t:]...)
	return out, nil
}

// preservedHead counts the leading system messages.
func preservedHead(msgs []model.Message) int {
	n := 0
	for n < len(msgs) && msgs[n].Role == model.RoleSystem {
		n++
	}
	return n
}

// lastTurnStart returns the index of the last user message, or len(msgs)-1
// when there is none.
func lastTurnStart(msgs []model.Message) int {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser {
			return i
		}
	}
	return len(msgs) - 1
}
