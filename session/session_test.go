//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-turn/model"
)

func TestThreadClone(t *testing.T) {
	th := NewThread("t1")
	assert.True(t, th.IsNew())
	th.Messages = append(th.Messages, model.NewUserMessage("hi"))
	th.State["user_name"] = []byte("Royal")

	c := th.Clone()
	c.Messages[0].Content = "changed"
	c.Messages = append(c.Messages, model.NewAssistantMessage("x"))
	c.State["user_name"][0] = 'X'
	c.State["other"] = []byte("y")

	assert.Equal(t, "hi", th.Messages[0].Content)
	assert.Len(t, th.Messages, 1)
	assert.Equal(t, []byte("Royal"), th.State["user_name"])
	assert.NotContains(t, th.State, "other")

	var nilThread *Thread
	assert.Nil(t, nilThread.Clone())
}

func TestThreadCloneNilMessages(t *testing.T) {
	th := &Thread{ID: "t"}
	c := th.Clone()
	require.NotNil(t, c.Messages)
	require.NotNil(t, c.State)
}

func TestStateView(t *testing.T) {
	state := StateMap{"a": []byte("1")}
	v := NewStateView(state)

	got, ok := v.Get("a")
	require.True(t, ok)
	got[0] = '9'
	assert.Equal(t, []byte("1"), state["a"])

	v.Set("b", []byte("2"))
	assert.Equal(t, []byte("2"), state["b"])
	v.Delete("a")
	_, ok = v.Get("a")
	assert.False(t, ok)
	assert.Equal(t, StateMap{"b": []byte("2")}, v.Snapshot())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v.Set(fmt.Sprintf("k%d", i), []byte("v"))
			_, _ = v.Get("b")
		}(i)
	}
	wg.Wait()
	assert.Len(t, v.Snapshot(), 21)
}
