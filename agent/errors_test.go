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
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsMatchSentinels(t *testing.T) {
	cause := errors.New("boom")
	cases := []struct {
		err      error
		sentinel error
	}{
		{&UnknownToolError{Name: "x", CallID: "1"}, ErrUnknownTool},
		{&ToolExecutionError{Name: "x", Err: cause}, ErrToolExecution},
		{&ToolLoopExceededError{MaxRounds: 3}, ErrToolLoopExceeded},
		{&ModelInferenceError{Model: "m", Err: cause}, ErrModelInference},
		{&StructuredOutputError{Schema: "S", Err: cause}, ErrStructuredOutput},
		{&TimeoutError{Stage: "tool", Err: context.DeadlineExceeded}, ErrTimeout},
	}
	for _, c := range cases {
		wrapped := fmt.Errorf("turn: %w", c.err)
		assert.ErrorIs(t, wrapped, c.sentinel, c.err.Error())
		for _, other := range cases {
			if other.sentinel != c.sentinel {
				assert.NotErrorIs(t, c.err, other.sentinel)
			}
		}
	}
}

func TestErrorsUnwrapCause(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &TimeoutError{Stage: "inference", Name: "gemini", Err: context.DeadlineExceeded})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "inference", te.Stage)
	assert.Contains(t, te.Error(), "gemini")
}

func TestInvocationContext(t *testing.T) {
	orig := InvocationContext{"user_id": "1", "n": 2}
	c := orig.Clone()
	orig["user_id"] = "2"

	s, ok := c.GetString("user_id")
	require.True(t, ok)
	assert.Equal(t, "1", s)

	s, ok = c.GetString("n")
	require.True(t, ok)
	assert.Equal(t, "2", s)

	_, ok = c.GetString("missing")
	assert.False(t, ok)

	var nilCtx InvocationContext
	assert.NotNil(t, nilCtx.Clone())
}

func TestInvocationFromContext(t *testing.T) {
	_, ok := InvocationFromContext(context.Background())
	assert.False(t, ok)

	inv := &Invocation{ID: "inv", ThreadID: "t"}
	got, ok := InvocationFromContext(NewInvocationContext(context.Background(), inv))
	require.True(t, ok)
	assert.Same(t, inv, got)
}
