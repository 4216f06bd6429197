//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package processor executes the tool calls requested by a model response.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"trpc.group/trpc-go/trpc-agent-turn/agent"
	itelemetry "trpc.group/trpc-go/trpc-agent-turn/internal/telemetry"
	itool "trpc.group/trpc-go/trpc-agent-turn/internal/tool"
	"trpc.group/trpc-go/trpc-agent-turn/log"
	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/telemetry/trace"
	"trpc.group/trpc-go/trpc-agent-turn/tool"
)

const (
	// ErrorToolExecution prefixes the content of a failed tool result.
	ErrorToolExecution = "Error: tool execution failed"
	// ErrorMarshalResult prefixes the content of a result that could not be encoded.
	ErrorMarshalResult = "Error: failed to marshal result"
)

// Dispatcher resolves tool calls against a registry and executes them.
type Dispatcher struct {
	registry    *tool.Registry
	timeout     time.Duration
	pool        *ants.Pool
	instruments *itelemetry.Instruments
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithToolTimeout bounds every single tool call. Zero means no bound.
func WithToolTimeout(d time.Duration) DispatcherOption {
	return func(p *Dispatcher) { p.timeout = d }
}

// WithPool runs the calls of one round concurrently on pool.
func WithPool(pool *ants.Pool) DispatcherOption {
	return func(p *Dispatcher) { p.pool = pool }
}

// WithInstruments records tool call metrics.
func WithInstruments(ins *itelemetry.Instruments) DispatcherOption {
	return func(p *Dispatcher) { p.instruments = ins }
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *tool.Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{registry: registry}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Resolve checks that every call names a registered tool.
func (d *Dispatcher) Resolve(calls []model.ToolCall) error {
	for _, call := range calls {
		if !d.registry.Has(call.Function.Name) {
			return &agent.UnknownToolError{Name: call.Function.Name, CallID: call.ID}
		}
	}
	return nil
}

// DispatchAll executes calls and returns their results in request order.
// All names are resolved before any tool runs, so an unknown tool means no
// tool of the round is invoked. Tool failures become error results; only
// unknown tools, timeouts and cancellation are returned as errors.
func (d *Dispatcher) DispatchAll(
	ctx context.Context,
	inv *agent.Invocation,
	calls []model.ToolCall,
	state tool.StateView,
) ([]model.Message, error) {
	if err := d.Resolve(calls); err != nil {
		return nil, err
	}
	results := make([]model.Message, len(calls))
	errs := make([]error, len(calls))

	if d.pool == nil || len(calls) < 2 {
		for i, call := range calls {
			results[i], errs[i] = d.Dispatch(ctx, inv, call, state)
			if errs[i] != nil {
				return nil, errs[i]
			}
		}
		return results, nil
	}

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		idx, c := i, call
		if err := d.pool.Submit(func() {
			defer wg.Done()
			results[idx], errs[idx] = d.Dispatch(ctx, inv, c, state)
		}); err != nil {
			wg.Done()
			errs[idx] = fmt.Errorf("submit tool %s: %w", c.Function.Name, err)
		}
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Dispatch executes a single call and returns its tool result message.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	inv *agent.Invocation,
	call model.ToolCall,
	state tool.StateView,
) (model.Message, error) {
	name := call.Function.Name
	t, ok := d.registry.Get(name)
	if !ok {
		return model.Message{}, &agent.UnknownToolError{Name: name, CallID: call.ID}
	}

	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewExecuteToolSpanName(name))
	defer span.End()

	rt := &tool.Runtime{Invocation: inv, ToolCallID: call.ID}
	if tool.IsStateAware(t) {
		rt.State = state
	}
	log.Debugf("dispatching tool %s (call %s)", name, call.ID)

	result, err := d.call(ctx, t, call, rt)
	if err != nil {
		var timeout *agent.TimeoutError
		if errors.As(err, &timeout) || ctx.Err() != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			return model.Message{}, err
		}
	}

	var msg model.Message
	if err != nil {
		execErr := &agent.ToolExecutionError{Name: name, CallID: call.ID, Err: err}
		log.Warnf("tool %s failed: %v", name, execErr)
		msg = errorResult(call, fmt.Sprintf("%s: %v", ErrorToolExecution, err))
	} else if bts, mErr := json.Marshal(result); mErr != nil {
		log.Warnf("tool %s returned an unencodable result: %v", name, mErr)
		msg = errorResult(call, fmt.Sprintf("%s: %v", ErrorMarshalResult, mErr))
	} else {
		msg = model.NewToolMessage(call.ID, name, string(bts))
	}

	itelemetry.TraceToolCall(span, t.Declaration(), call, msg)
	d.record(ctx, name, msg.IsError)
	return msg, nil
}

type outcome struct {
	result any
	err    error
}

// call runs the tool under the per-call timeout. A tool that ignores its
// context is abandoned when the deadline passes.
func (d *Dispatcher) call(ctx context.Context, t tool.CallableTool, call model.ToolCall, rt *tool.Runtime) (any, error) {
	args := []byte(call.Function.Arguments)
	if err := itool.ValidateJSON(t.Declaration().InputSchema, args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if d.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("tool %s panicked: %v\n%s", call.Function.Name, r, debug.Stack())
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := t.Call(callCtx, args, rt)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, d.timeoutError(call, o.err)
		}
		return o.result, o.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, fmt.Errorf("tool %s: %w", call.Function.Name, ctx.Err())
		}
		return nil, d.timeoutError(call, callCtx.Err())
	}
}

func (d *Dispatcher) timeoutError(call model.ToolCall, err error) error {
	return &agent.TimeoutError{Stage: "tool", Name: call.Function.Name, Err: err}
}

func (d *Dispatcher) record(ctx context.Context, name string, failed bool) {
	if d.instruments == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("gen_ai.tool.name", name))
	d.instruments.ToolCalls.Add(ctx, 1, attrs)
	if failed {
		d.instruments.ToolErrors.Add(ctx, 1, attrs)
	}
}

func errorResult(call model.ToolCall, content string) model.Message {
	msg := model.NewToolMessage(call.ID, call.Function.Name, content)
	msg.IsError = true
	return msg
}
