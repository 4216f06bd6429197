//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package sessiontest holds the behaviour suite every session.Service backend must pass.
package sessiontest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/session"
)

// Run executes the suite against services produced by newService.
func Run(t *testing.T, newService func(t *testing.T) session.Service) {
	t.Run("load missing returns empty thread", func(t *testing.T) {
		testLoadMissing(t, newService(t))
	})
	t.Run("commit then load round trips", func(t *testing.T) {
		testCommitLoad(t, newService(t))
	})
	t.Run("commit replaces whole thread", func(t *testing.T) {
		testCommitReplaces(t, newService(t))
	})
	t.Run("stale commit conflicts", func(t *testing.T) {
		testVersionConflict(t, newService(t))
	})
	t.Run("loaded threads are isolated copies", func(t *testing.T) {
		testIsolation(t, newService(t))
	})
	t.Run("delete", func(t *testing.T) {
		testDelete(t, newService(t))
	})
	t.Run("empty thread id", func(t *testing.T) {
		testEmptyID(t, newService(t))
	})
	t.Run("concurrent commits on one version", func(t *testing.T) {
		testConcurrentCommit(t, newService(t))
	})
}

func sample(th *session.Thread) {
	th.Messages = append(th.Messages,
		model.NewUserMessage("What is the weather in Hanoi?"),
		model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{
			Type: "function", ID: "call_1",
			Function: model.FunctionDefinitionParam{Name: "get_weather", Arguments: `{"city":"Hanoi"}`},
		}}},
		model.NewToolMessage("call_1", "get_weather", `{"temperature":30}`),
		model.NewAssistantMessage(`{"temperature":30,"condition":"sunny","note":"ok"}`),
	)
	th.State["user_name"] = []byte("Royal")
}

func testLoadMissing(t *testing.T, s session.Service) {
	th, err := s.Load(context.Background(), "missing")
	require.NoError(t, err)
	require.NotNil(t, th)
	assert.Equal(t, "missing", th.ID)
	assert.Empty(t, th.Messages)
	assert.Empty(t, th.State)
	assert.True(t, th.IsNew())
}

func testCommitLoad(t *testing.T, s session.Service) {
	ctx := context.Background()
	th, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	sample(th)
	require.NoError(t, s.Commit(ctx, th))
	assert.Equal(t, int64(1), th.Version)
	assert.False(t, th.UpdatedAt.IsZero())

	got, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, th.Messages, got.Messages)
	assert.Equal(t, []byte("Royal"), got.State["user_name"])
	assert.False(t, got.CreatedAt.IsZero())

	a, err := json.Marshal(th.Messages)
	require.NoError(t, err)
	b, err := json.Marshal(got.Messages)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
}

func testCommitReplaces(t *testing.T, s session.Service) {
	ctx := context.Background()
	th, err := s.Load(ctx, "t2")
	require.NoError(t, err)
	sample(th)
	require.NoError(t, s.Commit(ctx, th))

	th.Messages = []model.Message{th.Messages[0], th.Messages[3]}
	delete(th.State, "user_name")
	th.State["k"] = []byte("v")
	require.NoError(t, s.Commit(ctx, th))
	assert.Equal(t, int64(2), th.Version)

	got, err := s.Load(ctx, "t2")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, session.StateMap{"k": []byte("v")}, got.State)
}

func testVersionConflict(t *testing.T, s session.Service) {
	ctx := context.Background()
	a, err := s.Load(ctx, "t3")
	require.NoError(t, err)
	b, err := s.Load(ctx, "t3")
	require.NoError(t, err)

	a.Messages = append(a.Messages, model.NewUserMessage("first"))
	require.NoError(t, s.Commit(ctx, a))

	b.Messages = append(b.Messages, model.NewUserMessage("second"))
	err = s.Commit(ctx, b)
	require.ErrorIs(t, err, session.ErrVersionConflict)
	assert.Equal(t, int64(0), b.Version)

	got, err := s.Load(ctx, "t3")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "first", got.Messages[0].Content)
}

func testIsolation(t *testing.T, s session.Service) {
	ctx := context.Background()
	th, err := s.Load(ctx, "t4")
	require.NoError(t, err)
	sample(th)
	require.NoError(t, s.Commit(ctx, th))

	th.Messages[0].Content = "mutated after commit"
	th.State["user_name"] = []byte("Guest")

	got, err := s.Load(ctx, "t4")
	require.NoError(t, err)
	got.Messages = append(got.Messages, model.NewUserMessage("local only"))

	again, err := s.Load(ctx, "t4")
	require.NoError(t, err)
	assert.Len(t, again.Messages, 4)
	assert.Equal(t, "What is the weather in Hanoi?", again.Messages[0].Content)
	assert.Equal(t, []byte("Royal"), again.State["user_name"])
}

func testDelete(t *testing.T, s session.Service) {
	ctx := context.Background()
	th, err := s.Load(ctx, "t5")
	require.NoError(t, err)
	sample(th)
	require.NoError(t, s.Commit(ctx, th))
	require.NoError(t, s.Delete(ctx, "t5"))
	require.NoError(t, s.Delete(ctx, "t5"))

	got, err := s.Load(ctx, "t5")
	require.NoError(t, err)
	assert.True(t, got.IsNew())
	assert.Empty(t, got.Messages)
}

func testEmptyID(t *testing.T, s session.Service) {
	ctx := context.Background()
	_, err := s.Load(ctx, "")
	assert.ErrorIs(t, err, session.ErrThreadIDRequired)
	assert.ErrorIs(t, s.Commit(ctx, &session.Thread{}), session.ErrThreadIDRequired)
	assert.ErrorIs(t, s.Delete(ctx, ""), session.ErrThreadIDRequired)
}

func testConcurrentCommit(t *testing.T, s session.Service) {
	ctx := context.Background()
	const n = 8
	threads := make([]*session.Thread, n)
	for i := range threads {
		th, err := s.Load(ctx, "t6")
		require.NoError(t, err)
		th.Messages = append(th.Messages, model.NewUserMessage("m"))
		threads[i] = th
	}
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for _, th := range threads {
		wg.Add(1)
		go func(th *session.Thread) {
			defer wg.Done()
			if err := s.Commit(ctx, th); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, session.ErrVersionConflict)
			}
		}(th)
	}
	wg.Wait()
	assert.Equal(t, 1, success)

	got, err := s.Load(ctx, "t6")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Len(t, got.Messages, 1)
}
