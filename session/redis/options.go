//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package redis

import (
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix    = "turn"
	defaultLockTTL      = 30 * time.Second
	defaultLockInterval = 20 * time.Millisecond
)

// ServiceOpts is the options for the redis thread service.
type ServiceOpts struct {
	client       redis.UniversalClient
	url          string
	instanceName string
	keyPrefix    string
	threadTTL    time.Duration
	lockTTL      time.Duration
	lockInterval time.Duration
}

// ServiceOpt is the option for the redis thread service.
type ServiceOpt func(*ServiceOpts)

// WithRedisClient uses an existing client. The service does not close it.
func WithRedisClient(client redis.UniversalClient) ServiceOpt {
	return func(opts *ServiceOpts) {
		opts.client = client
	}
}

// WithRedisClientURL creates a client from a redis:// URL.
func WithRedisClientURL(url string) ServiceOpt {
	return func(opts *ServiceOpts) {
		opts.url = url
	}
}

// WithRedisInstance uses the options registered under name with
// storage/redis.RegisterRedisInstance. It takes precedence over WithRedisClientURL.
func WithRedisInstance(name string) ServiceOpt {
	return func(opts *ServiceOpts) {
		opts.instanceName = name
	}
}

// WithKeyPrefix sets the prefix of all keys written by the service.
func WithKeyPrefix(prefix string) ServiceOpt {
	return func(opts *ServiceOpts) {
		opts.keyPrefix = prefix
	}
}

// WithThreadTTL expires threads that are not committed within ttl. 0 keeps them forever.
func WithThreadTTL(ttl time.Duration) ServiceOpt {
	return func(opts *ServiceOpts) {
		opts.threadTTL = ttl
	}
}

// WithLockTTL bounds how long a crashed holder can keep a thread locked.
func WithLockTTL(ttl time.Duration) ServiceOpt {
	return func(opts *ServiceOpts) {
		opts.lockTTL = ttl
	}
}

// WithLockRetryInterval sets the polling interval while waiting for a lock.
func WithLockRetryInterval(d time.Duration) ServiceOpt {
	return func(opts *ServiceOpts) {
		opts.lockInterval = d
	}
}
