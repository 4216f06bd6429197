//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package redis manages named redis instances shared by the redis backed stores.
package redis

import (
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

var (
	mu            sync.RWMutex
	redisRegistry               = map[string][]ClientBuilderOpt{}
	globalBuilder ClientBuilder = DefaultClientBuilder
)

// ClientBuilder creates a redis client from builder options.
type ClientBuilder func(builderOpts ...ClientBuilderOpt) (redis.UniversalClient, error)

// SetClientBuilder replaces the builder used by the stores, e.g. to add tracing hooks.
func SetClientBuilder(builder ClientBuilder) {
	mu.Lock()
	defer mu.Unlock()
	globalBuilder = builder
}

// GetClientBuilder returns the current builder.
func GetClientBuilder() ClientBuilder {
	mu.RLock()
	defer mu.RUnlock()
	return globalBuilder
}

// DefaultClientBuilder turns a redis:// URL into a universal client.
func DefaultClientBuilder(builderOpts ...ClientBuilderOpt) (redis.UniversalClient, error) {
	o := &ClientBuilderOpts{}
	for _, opt := range builderOpts {
		opt(o)
	}
	if o.URL == "" {
		return nil, fmt.Errorf("redis: url is empty")
	}
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url %s: %w", o.URL, err)
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:           []string{opts.Addr},
		DB:              opts.DB,
		Username:        opts.Username,
		Password:        opts.Password,
		Protocol:        opts.Protocol,
		ClientName:      opts.ClientName,
		TLSConfig:       opts.TLSConfig,
		MaxRetries:      opts.MaxRetries,
		DialTimeout:     opts.DialTimeout,
		ReadTimeout:     opts.ReadTimeout,
		WriteTimeout:    opts.WriteTimeout,
		PoolSize:        opts.PoolSize,
		MinIdleConns:    opts.MinIdleConns,
		ConnMaxIdleTime: opts.ConnMaxIdleTime,
	}), nil
}

// ClientBuilderOpt configures a client build.
type ClientBuilderOpt func(*ClientBuilderOpts)

// ClientBuilderOpts holds the build parameters.
type ClientBuilderOpts struct {
	URL string
}

// WithClientBuilderURL sets the redis URL.
func WithClientBuilderURL(url string) ClientBuilderOpt {
	return func(opts *ClientBuilderOpts) {
		opts.URL = url
	}
}

// RegisterRedisInstance registers options under name. Registering the same
// name again appends, later options win.
func RegisterRedisInstance(name string, opts ...ClientBuilderOpt) {
	mu.Lock()
	defer mu.Unlock()
	redisRegistry[name] = append(redisRegistry[name], opts...)
}

// GetRedisInstance returns the options registered under name.
func GetRedisInstance(name string) ([]ClientBuilderOpt, bool) {
	mu.RLock()
	defer mu.RUnlock()
	opts, ok := redisRegistry[name]
	if !ok {
		return nil, false
	}
	return append([]ClientBuilderOpt(nil), opts...), true
}
