//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package runner executes conversational turns against persisted threads.
//
// A turn appends the user message to the thread, alternates model inferences
// and tool rounds until the model produces a final answer, decodes that answer
// and commits the thread exactly once. A failed turn writes nothing.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"trpc.group/trpc-go/trpc-agent-turn/agent"
	"trpc.group/trpc-go/trpc-agent-turn/compaction"
	"trpc.group/trpc-go/trpc-agent-turn/internal/flow/processor"
	"trpc.group/trpc-go/trpc-agent-turn/internal/keylock"
	itelemetry "trpc.group/trpc-go/trpc-agent-turn/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/session"
	tmetric "trpc.group/trpc-go/trpc-agent-turn/telemetry/metric"
	"trpc.group/trpc-go/trpc-agent-turn/telemetry/trace"
	"trpc.group/trpc-go/trpc-agent-turn/tool"
)

// Result is the outcome of a committed turn.
type Result struct {
	// InvocationID identifies the turn.
	InvocationID string
	// ThreadID is the thread the turn was committed to.
	ThreadID string
	// StructuredResponse is the decoded record, nil without a structured output strategy.
	StructuredResponse any
	// Text is the content of the final assistant message.
	Text string
	// Delta holds the messages this turn appended, in order.
	Delta []model.Message
	// Rounds is the number of tool rounds executed.
	Rounds int
	// Usage sums the token usage of every inference.
	Usage model.Usage
}

// Runner runs turns. It is safe for concurrent use; turns on the same thread
// are serialized and turns on distinct threads run in parallel.
type Runner struct {
	model       model.Model
	store       session.Service
	registry    *tool.Registry
	dispatcher  *processor.Dispatcher
	locker      session.Locker
	pool        *ants.Pool
	instruments *itelemetry.Instruments
	opts        Options
}

// New creates a runner over m and store.
func New(m model.Model, store session.Service, opts ...Option) (*Runner, error) {
	if m == nil {
		return nil, errors.New("runner: model is nil")
	}
	if store == nil {
		return nil, errors.New("runner: session service is nil")
	}
	options := Options{Config: DefaultConfig()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxToolRounds <= 0 {
		options.MaxToolRounds = DefaultMaxToolRounds
	}
	if !options.compactSet {
		options.compaction = compaction.Chain{
			compaction.TrimMessages(compaction.DefaultTrimThreshold, compaction.DefaultTrimKeep),
		}
	}

	registry := options.registry
	if registry == nil {
		var err error
		if registry, err = tool.NewRegistry(options.tools...); err != nil {
			return nil, fmt.Errorf("runner: %w", err)
		}
	}
	if err := validateStrategy(options, registry); err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	locker := options.locker
	if locker == nil {
		if l, ok := store.(session.Locker); ok {
			locker = l
		} else {
			locker = keylock.New()
		}
	}

	instruments, err := itelemetry.NewInstruments(tmetric.Meter)
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	dispatchOpts := []processor.DispatcherOption{
		processor.WithToolTimeout(options.ToolTimeout),
		processor.WithInstruments(instruments),
	}
	var pool *ants.Pool
	if options.ParallelTools > 1 {
		if pool, err = ants.NewPool(options.ParallelTools); err != nil {
			return nil, fmt.Errorf("runner: create tool pool: %w", err)
		}
		dispatchOpts = append(dispatchOpts, processor.WithPool(pool))
	}

	return &Runner{
		model:       m,
		store:       store,
		registry:    registry,
		dispatcher:  processor.NewDispatcher(registry, dispatchOpts...),
		locker:      locker,
		pool:        pool,
		instruments: instruments,
		opts:        options,
	}, nil
}

type validator interface {
	Validate() error
}

type toolNamer interface {
	ToolName() string
}

func validateStrategy(opts Options, registry *tool.Registry) error {
	if opts.strategy == nil {
		return nil
	}
	if v, ok := opts.strategy.(validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if n, ok := opts.strategy.(toolNamer); ok && registry.Has(n.ToolName()) {
		return fmt.Errorf("%w: response tool %q collides with a registered tool",
			agent.ErrInvalidToolSchema, n.ToolName())
	}
	return nil
}

// Close releases the tool pool. The session service is owned by the caller.
func (r *Runner) Close() error {
	if r.pool != nil {
		r.pool.Release()
	}
	return nil
}

// Invoke is an alias of Run.
func (r *Runner) Invoke(ctx context.Context, threadID, userMessage string, invCtx agent.InvocationContext) (*Result, error) {
	return r.Run(ctx, threadID, userMessage, invCtx)
}

// Run executes one turn on threadID. invCtx is read-only context made
// available to tools, e.g. the authenticated user id; it is never persisted.
//
// On error the returned error is a *TurnError unless the arguments were
// invalid, and the thread is left exactly as it was.
func (r *Runner) Run(ctx context.Context, threadID, userMessage string, invCtx agent.InvocationContext) (*Result, error) {
	if threadID == "" {
		return nil, agent.ErrEmptyThreadID
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, agent.ErrEmptyMessage
	}

	start := time.Now()
	if r.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.TurnTimeout)
		defer cancel()
	}

	inv := &agent.Invocation{
		ID:       "invocation-" + uuid.NewString(),
		ThreadID: threadID,
		Context:  invCtx.Clone(),
	}
	ctx = agent.NewInvocationContext(ctx, inv)
	ctx, span := trace.Tracer.Start(ctx, itelemetry.SpanNameInvokeTurn)
	defer span.End()
	itelemetry.TraceTurn(span, inv)

	t := &turn{runner: r, inv: inv, state: StateLoaded}
	res, err := t.run(ctx, userMessage)

	final := StateCommitted
	if err != nil {
		final = StateFailed
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	span.SetAttributes(attribute.String(itelemetry.KeyTurnState, final.String()))
	attrs := metric.WithAttributes(attribute.String("state", final.String()))
	r.instruments.Turns.Add(ctx, 1, attrs)
	r.instruments.TurnDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	return res, err
}
