//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package session provides the thread state store contract and its shared types.
package session

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-agent-turn/model"
)

var (
	// ErrThreadIDRequired is returned when an operation is given an empty thread id.
	ErrThreadIDRequired = errors.New("threadID is required")
	// ErrVersionConflict is returned by Commit when the stored thread changed since it was loaded.
	ErrVersionConflict = errors.New("thread version conflict")
	// ErrLockTimeout is returned when a thread lock could not be acquired before ctx expired.
	ErrLockTimeout = errors.New("thread lock timeout")
)

// StateMap holds the custom fields of a thread, e.g. user_name.
type StateMap map[string][]byte

// Clone deep copies the map.
func (s StateMap) Clone() StateMap {
	out := make(StateMap, len(s))
	for k, v := range s {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = append([]byte(nil), v...)
	}
	return out
}

// Thread is the persisted state of one conversation.
type Thread struct {
	ID        string          `json:"id"`
	Messages  []model.Message `json:"messages"`
	State     StateMap        `json:"state"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewThread returns an empty thread at version 0.
func NewThread(id string) *Thread {
	return &Thread{
		ID:       id,
		Messages: []model.Message{},
		State:    StateMap{},
	}
}

// Clone deep copies the thread so the copy can be mutated freely.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	c := *t
	c.Messages = model.CloneMessages(t.Messages)
	if c.Messages == nil {
		c.Messages = []model.Message{}
	}
	c.State = t.State.Clone()
	return &c
}

// IsNew reports whether the thread has never been committed.
func (t *Thread) IsNew() bool {
	return t.Version == 0
}

// Service stores threads.
//
// Load never fails because a thread is missing; it returns a fresh thread.
// Commit atomically replaces the whole thread and bumps its version; it fails
// with ErrVersionConflict when the stored version differs from t.Version.
// On success t.Version and t.UpdatedAt reflect the stored record.
type Service interface {
	// Load returns the thread with the given id, or an empty one.
	Load(ctx context.Context, threadID string) (*Thread, error)

	// Commit replaces the stored thread with t.
	Commit(ctx context.Context, t *Thread) error

	// Delete removes a thread. Deleting a missing thread is not an error.
	Delete(ctx context.Context, threadID string) error

	// Close closes the service.
	Close() error
}

// Locker serializes turns on the same thread.
type Locker interface {
	// Lock blocks until the thread is exclusively held or ctx is done.
	// The returned function releases the lock.
	Lock(ctx context.Context, threadID string) (unlock func(), err error)
}

// StateView is a concurrency safe view over a working StateMap handed to
// state-aware tools. It satisfies tool.StateView.
type StateView struct {
	mu    sync.RWMutex
	state StateMap
}

// NewStateView wraps state. Writes go to state directly.
func NewStateView(state StateMap) *StateView {
	return &StateView{state: state}
}

// Get returns a copy of the value stored under key.
func (v *StateView) Get(key string) ([]byte, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	b, ok := v.state[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// Set stores a copy of value under key.
func (v *StateView) Set(key string, value []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state[key] = append([]byte(nil), value...)
}

// Delete removes key.
func (v *StateView) Delete(key string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.state, key)
}

// Snapshot returns a copy of the underlying map.
func (v *StateView) Snapshot() StateMap {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return maps.Clone(v.state)
}
