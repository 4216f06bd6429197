//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides a session.Service and a distributed session.Locker backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-agent-turn/log"
	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/session"
	storage "trpc.group/trpc-go/trpc-agent-turn/storage/redis"
)

var (
	_ session.Service = (*Service)(nil)
	_ session.Locker  = (*Service)(nil)
)

// unlockScript deletes the lock only if it is still held by the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lock lease only if it is still held by the caller's token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Service stores each thread as a JSON value under <prefix>:thread:<id>.
type Service struct {
	client     redis.UniversalClient
	ownsClient bool
	opts       ServiceOpts
}

// NewService creates a redis thread service.
func NewService(options ...ServiceOpt) (*Service, error) {
	opts := ServiceOpts{
		keyPrefix:    defaultKeyPrefix,
		lockTTL:      defaultLockTTL,
		lockInterval: defaultLockInterval,
	}
	for _, opt := range options {
		opt(&opts)
	}
	s := &Service{client: opts.client, opts: opts}
	if s.client == nil {
		builderOpts := []storage.ClientBuilderOpt{storage.WithClientBuilderURL(opts.url)}
		if opts.instanceName != "" {
			var ok bool
			if builderOpts, ok = storage.GetRedisInstance(opts.instanceName); !ok {
				return nil, fmt.Errorf("redis instance %s not found", opts.instanceName)
			}
		}
		client, err := storage.GetClientBuilder()(builderOpts...)
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		s.client = client
		s.ownsClient = true
	}
	return s, nil
}

func (s *Service) threadKey(threadID string) string {
	return s.opts.keyPrefix + ":thread:" + threadID
}

func (s *Service) lockKey(threadID string) string {
	return s.opts.keyPrefix + ":lock:" + threadID
}

// Load implements session.Service.
func (s *Service) Load(ctx context.Context, threadID string) (*session.Thread, error) {
	if threadID == "" {
		return nil, session.ErrThreadIDRequired
	}
	t, err := s.get(ctx, s.client, threadID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return session.NewThread(threadID), nil
	}
	return t, nil
}

func (s *Service) get(ctx context.Context, c redis.Cmdable, threadID string) (*session.Thread, error) {
	raw, err := c.Get(ctx, s.threadKey(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get thread %s: %w", threadID, err)
	}
	t := &session.Thread{}
	if err := json.Unmarshal(raw, t); err != nil {
		return nil, fmt.Errorf("unmarshal thread %s: %w", threadID, err)
	}
	if t.Messages == nil {
		t.Messages = []model.Message{}
	}
	if t.State == nil {
		t.State = session.StateMap{}
	}
	return t, nil
}

// Commit implements session.Service. The version check and the write run
// inside WATCH/MULTI so a concurrent writer aborts the transaction.
func (s *Service) Commit(ctx context.Context, t *session.Thread) error {
	if t == nil || t.ID == "" {
		return session.ErrThreadIDRequired
	}
	key := s.threadKey(t.ID)
	now := time.Now()
	var committed *session.Thread

	txf := func(tx *redis.Tx) error {
		stored, err := s.get(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		var version int64
		createdAt := now
		if stored != nil {
			version = stored.Version
			createdAt = stored.CreatedAt
		}
		if version != t.Version {
			return fmt.Errorf("%w: thread %s has version %d, commit is based on %d",
				session.ErrVersionConflict, t.ID, version, t.Version)
		}
		next := t.Clone()
		next.Version = version + 1
		next.CreatedAt = createdAt
		next.UpdatedAt = now
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal thread %s: %w", t.ID, err)
		}
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.opts.threadTTL)
			return nil
		}); err != nil {
			return err
		}
		committed = next
		return nil
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("%w: thread %s modified concurrently", session.ErrVersionConflict, t.ID)
		}
		if errors.Is(err, session.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("redis commit thread %s: %w", t.ID, err)
	}
	t.Version = committed.Version
	t.CreatedAt = committed.CreatedAt
	t.UpdatedAt = committed.UpdatedAt
	log.Debugf("redis: committed thread %s at version %d", t.ID, t.Version)
	return nil
}

// Delete implements session.Service.
func (s *Service) Delete(ctx context.Context, threadID string) error {
	if threadID == "" {
		return session.ErrThreadIDRequired
	}
	if err := s.client.Del(ctx, s.threadKey(threadID)).Err(); err != nil {
		return fmt.Errorf("redis delete thread %s: %w", threadID, err)
	}
	return nil
}

// Lock implements session.Locker with SET NX PX and a token checked on release.
func (s *Service) Lock(ctx context.Context, threadID string) (func(), error) {
	if threadID == "" {
		return nil, session.ErrThreadIDRequired
	}
	key := s.lockKey(threadID)
	token := uuid.NewString()
	ticker := time.NewTicker(s.opts.lockInterval)
	defer ticker.Stop()
	for {
		ok, err := s.client.SetNX(ctx, key, token, s.opts.lockTTL).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("redis lock thread %s: %w", threadID, err)
		}
		if ok {
			stop := make(chan struct{})
			done := make(chan struct{})
			go s.keepLock(threadID, key, token, stop, done)
			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					<-done
					// Release with a fresh context so a cancelled turn still unlocks.
					rctx, cancel := context.WithTimeout(context.Background(), time.Second)
					defer cancel()
					if err := unlockScript.Run(rctx, s.client, []string{key}, token).Err(); err != nil {
						log.Warnf("redis: release lock of thread %s: %v", threadID, err)
					}
				})
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: thread %s: %v", session.ErrLockTimeout, threadID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// keepLock extends the lease every lockTTL/3 until stop is closed, so a turn
// that outlives lockTTL keeps the thread exclusive. It gives up once the
// token no longer owns the key.
func (s *Service) keepLock(threadID, key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := s.opts.lockTTL / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ttl := s.opts.lockTTL.Milliseconds()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		held, err := refreshScript.Run(ctx, s.client, []string{key}, token, ttl).Int()
		cancel()
		switch {
		case err != nil:
			log.Warnf("redis: refresh lock of thread %s: %v", threadID, err)
		case held == 0:
			log.Errorf("redis: lock of thread %s was lost before release", threadID)
			return
		}
	}
}

// Close closes the client if the service created it.
func (s *Service) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}
