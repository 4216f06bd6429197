//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides an in-process session.Service.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trpc.group/trpc-go/trpc-agent-turn/log"
	"trpc.group/trpc-go/trpc-agent-turn/session"
)

var _ session.Service = (*Service)(nil)

type serviceOpts struct {
	// threadTTL expires threads not committed within the duration. 0 disables expiry.
	threadTTL time.Duration
	// cleanupInterval is the interval for automatic cleanup of expired threads.
	// If set to 0, automatic cleanup is disabled.
	cleanupInterval time.Duration
}

// ServiceOpt configures the in-memory service.
type ServiceOpt func(*serviceOpts)

// WithThreadTTL sets how long an idle thread is kept.
func WithThreadTTL(ttl time.Duration) ServiceOpt {
	return func(opts *serviceOpts) {
		opts.threadTTL = ttl
	}
}

// WithCleanupInterval sets how often expired threads are swept.
func WithCleanupInterval(interval time.Duration) ServiceOpt {
	return func(opts *serviceOpts) {
		opts.cleanupInterval = interval
	}
}

type entry struct {
	thread    *session.Thread
	expiredAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiredAt.IsZero() && now.After(e.expiredAt)
}

// Service keeps threads in a map guarded by a RWMutex. Every value crossing
// the API boundary is deep copied.
type Service struct {
	mu        sync.RWMutex
	threads   map[string]*entry
	opts      serviceOpts
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewService creates an in-memory thread store.
func NewService(options ...ServiceOpt) *Service {
	s := &Service{
		threads: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
	for _, opt := range options {
		opt(&s.opts)
	}
	if s.opts.threadTTL > 0 && s.opts.cleanupInterval > 0 {
		s.wg.Add(1)
		go s.cleanupLoop()
	}
	return s
}

// Load implements session.Service.
func (s *Service) Load(_ context.Context, threadID string) (*session.Thread, error) {
	if threadID == "" {
		return nil, session.ErrThreadIDRequired
	}
	s.mu.RLock()
	e, ok := s.threads[threadID]
	s.mu.RUnlock()
	if !ok || e.expired(time.Now()) {
		return session.NewThread(threadID), nil
	}
	return e.thread.Clone(), nil
}

// Commit implements session.Service.
func (s *Service) Commit(_ context.Context, t *session.Thread) error {
	if t == nil || t.ID == "" {
		return session.ErrThreadIDRequired
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int64
	createdAt := now
	if e, ok := s.threads[t.ID]; ok && !e.expired(now) {
		stored = e.thread.Version
		createdAt = e.thread.CreatedAt
	}
	if stored != t.Version {
		return fmt.Errorf("%w: thread %s has version %d, commit is based on %d",
			session.ErrVersionConflict, t.ID, stored, t.Version)
	}
	c := t.Clone()
	c.Version = stored + 1
	c.CreatedAt = createdAt
	c.UpdatedAt = now
	e := &entry{thread: c}
	if s.opts.threadTTL > 0 {
		e.expiredAt = now.Add(s.opts.threadTTL)
	}
	s.threads[t.ID] = e

	t.Version = c.Version
	t.CreatedAt = c.CreatedAt
	t.UpdatedAt = c.UpdatedAt
	return nil
}

// Delete implements session.Service.
func (s *Service) Delete(_ context.Context, threadID string) error {
	if threadID == "" {
		return session.ErrThreadIDRequired
	}
	s.mu.Lock()
	delete(s.threads, threadID)
	s.mu.Unlock()
	return nil
}

// Close stops the cleanup goroutine.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
	return nil
}

func (s *Service) cleanupLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *Service) cleanupExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.threads {
		if e.expired(now) {
			delete(s.threads, id)
			log.Debugf("inmemory: expired thread %s", id)
		}
	}
}
