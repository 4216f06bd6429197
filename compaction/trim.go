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

	"trpc.group/trpc-go/trpc-agent-turn/model"
)

const (
	// DefaultTrimThreshold is the history length above which TrimMessages compacts.
	DefaultTrimThreshold = 6
	// DefaultTrimKeep is the number of most recent messages TrimMessages keeps.
	DefaultTrimKeep = 4
)

// TrimMessages keeps the first message and the last keep messages once the
// history grows beyond threshold. Shorter histories are returned unchanged.
//
// Non-positive arguments fall back to the defaults.
func TrimMessages(threshold, keep int) Middleware {
	if threshold <= 0 {
		threshold = DefaultTrimThreshold
	}
	if keep <= 0 {
		keep = DefaultTrimKeep
	}
	return &trimMiddleware{threshold: threshold, keep: keep}
}

type trimMiddleware struct {
	threshold int
	keep      int
}

func (t *trimMiddleware) Name() string { return "trim_messages" }

func (t *trimMiddleware) Compact(_ context.Context, msgs []model.Message) ([]model.Message, error) {
	// keep+1 >= len means the result would equal the input.
	if len(msgs) <= t.threshold || len(msgs) <= t.keep+1 {
		return msgs, nil
	}
	out := make([]model.Message, 0, t.keep+1)
	out = append(out, msgs[0])
	out = append(out, msgs[len(msgs)-t.keep:]...)
	return out, nil
}
