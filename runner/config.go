//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package runner

import (
	"time"

	"trpc.group/trpc-go/trpc-agent-turn/compaction"
	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/session"
	"trpc.group/trpc-go/trpc-agent-turn/structured"
	"trpc.group/trpc-go/trpc-agent-turn/tool"
)

// Defaults.
const (
	DefaultMaxToolRounds = 10
	DefaultModelTimeout  = time.Minute
	DefaultToolTimeout   = 30 * time.Second
	DefaultRetryDelay    = 500 * time.Millisecond
)

// Config holds the tunables of a runner that are usually read from a file.
// Zero durations disable the corresponding timeout.
type Config struct {
	// MaxToolRounds bounds the tool rounds of a turn. Non-positive means the default.
	MaxToolRounds int `json:"max_tool_rounds" yaml:"max_tool_rounds"`

	// ModelTimeout bounds a single inference.
	ModelTimeout time.Duration `json:"model_timeout" yaml:"model_timeout"`

	// ToolTimeout bounds a single tool call.
	ToolTimeout time.Duration `json:"tool_timeout" yaml:"tool_timeout"`

	// TurnTimeout bounds the whole turn including lock wait and commit.
	TurnTimeout time.Duration `json:"turn_timeout" yaml:"turn_timeout"`

	// ParallelTools runs the calls of a round on a pool of this size when > 1.
	ParallelTools int `json:"parallel_tools" yaml:"parallel_tools"`

	// ModelRetries is the number of extra attempts after a failed inference.
	ModelRetries int `json:"model_retries" yaml:"model_retries"`

	// RetryDelay is the delay before the first retry; it grows linearly.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`
}

// DefaultConfig returns the default runner configuration.
func DefaultConfig() Config {
	return Config{
		MaxToolRounds: DefaultMaxToolRounds,
		ModelTimeout:  DefaultModelTimeout,
		ToolTimeout:   DefaultToolTimeout,
		RetryDelay:    DefaultRetryDelay,
	}
}

// Option is a function that configures a Runner.
type Option func(*Options)

// Options is the options for the Runner.
type Options struct {
	Config

	tools        []tool.Tool
	registry     *tool.Registry
	locker       session.Locker
	compaction   compaction.Chain
	compactSet   bool
	strategy     structured.Strategy
	systemPrompt string
	genConfig    model.GenerationConfig
}

// WithConfig replaces all tunables at once.
func WithConfig(cfg Config) Option {
	return func(opts *Options) {
		opts.Config = cfg
	}
}

// WithTools registers tools. A registry is built from them when the runner is created.
func WithTools(tools ...tool.Tool) Option {
	return func(opts *Options) {
		opts.tools = append(opts.tools, tools...)
	}
}

// WithRegistry uses a prebuilt registry. It takes precedence over WithTools.
func WithRegistry(registry *tool.Registry) Option {
	return func(opts *Options) {
		opts.registry = registry
	}
}

// WithMaxToolRounds bounds the number of tool rounds in one turn.
// Non-positive values fall back to DefaultMaxToolRounds.
func WithMaxToolRounds(n int) Option {
	return func(opts *Options) {
		opts.MaxToolRounds = n
	}
}

// WithModelTimeout bounds every single inference. Zero disables it.
func WithModelTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.ModelTimeout = d
	}
}

// WithToolTimeout bounds every single tool call. Zero disables it.
func WithToolTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.ToolTimeout = d
	}
}

// WithTurnTimeout bounds a whole turn. Zero disables it.
func WithTurnTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.TurnTimeout = d
	}
}

// WithParallelTools executes the calls of one round concurrently on a pool of size workers.
func WithParallelTools(size int) Option {
	return func(opts *Options) {
		opts.ParallelTools = size
	}
}

// WithModelRetry retries failed inferences up to retries extra times.
// Timeouts and cancellations are never retried.
func WithModelRetry(retries int, delay time.Duration) Option {
	return func(opts *Options) {
		opts.ModelRetries = retries
		opts.RetryDelay = delay
	}
}

// WithCompaction sets the middlewares applied before every inference, in order.
// Calling it without arguments disables compaction.
func WithCompaction(middlewares ...compaction.Middleware) Option {
	return func(opts *Options) {
		opts.compaction = compaction.Chain(middlewares)
		opts.compactSet = true
	}
}

// WithStructuredOutput decodes the final answer with strategy.
func WithStructuredOutput(strategy structured.Strategy) Option {
	return func(opts *Options) {
		opts.strategy = strategy
	}
}

// WithLocker overrides how turns on the same thread are serialized.
func WithLocker(locker session.Locker) Option {
	return func(opts *Options) {
		opts.locker = locker
	}
}

// WithSystemPrompt prepends a system message to every request. It is not persisted.
func WithSystemPrompt(prompt string) Option {
	return func(opts *Options) {
		opts.systemPrompt = prompt
	}
}

// WithGenerationConfig sets the sampling parameters of every request.
func WithGenerationConfig(cfg model.GenerationConfig) Option {
	return func(opts *Options) {
		opts.genConfig = cfg
	}
}
