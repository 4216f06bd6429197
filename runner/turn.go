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
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"trpc.group/trpc-go/trpc-agent-turn/agent"
	itelemetry "trpc.group/trpc-go/trpc-agent-turn/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-turn/log"
	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/session"
	"trpc.group/trpc-go/trpc-agent-turn/telemetry/trace"
)

// turn is the state of one Run call.
type turn struct {
	runner *Runner
	inv    *agent.Invocation
	state  State

	working *session.Thread
	delta   []model.Message
	usage   model.Usage
}

func (t *turn) run(ctx context.Context, userMessage string) (*Result, error) {
	r := t.runner
	unlock, err := r.locker.Lock(ctx, t.inv.ThreadID)
	if err != nil {
		return nil, t.fail(ctx, err)
	}
	defer unlock()

	thread, err := r.store.Load(ctx, t.inv.ThreadID)
	if err != nil {
		return nil, t.fail(ctx, fmt.Errorf("load thread: %w", err))
	}
	t.working = thread.Clone()
	t.append(model.NewUserMessage(userMessage))
	state := session.NewStateView(t.working.State)
	log.Debugf("turn %s: loaded thread %s at version %d with %d messages",
		t.inv.ID, t.inv.ThreadID, thread.Version, len(thread.Messages))

	strategy := r.opts.strategy
	var final model.Message
	for round := 0; ; round++ {
		t.state = StateTrimmed
		if err := t.compact(ctx); err != nil {
			return nil, t.fail(ctx, err)
		}

		t.state = StateInferring
		t.inv.Round = round
		rsp, err := r.infer(ctx, t.inv, t.working.Messages)
		if err != nil {
			return nil, t.fail(ctx, err)
		}
		t.usage.Add(rsp.Usage)
		msg := rsp.Message
		msg.Role = model.RoleAssistant

		if (strategy != nil && strategy.IsFinal(msg)) || (strategy == nil && len(msg.ToolCalls) == 0) {
			final = msg
			break
		}

		t.state = StateToolPending
		if round >= r.opts.MaxToolRounds {
			return nil, t.fail(ctx, &agent.ToolLoopExceededError{MaxRounds: r.opts.MaxToolRounds})
		}
		if err := r.dispatcher.Resolve(msg.ToolCalls); err != nil {
			return nil, t.fail(ctx, err)
		}
		t.append(msg)

		t.state = StateToolExecuting
		results, err := r.dispatcher.DispatchAll(ctx, t.inv, msg.ToolCalls, state)
		if err != nil {
			return nil, t.fail(ctx, err)
		}
		t.append(results...)
	}

	t.state = StateExtracting
	res := &Result{
		InvocationID: t.inv.ID,
		ThreadID:     t.inv.ThreadID,
		Rounds:       t.inv.Round,
	}
	if strategy != nil {
		record, persisted, err := strategy.Extract(final)
		if err != nil {
			return nil, t.fail(ctx, err)
		}
		res.StructuredResponse = record
		final = persisted
	}
	t.append(final)
	res.Text = final.Content

	if err := r.store.Commit(ctx, t.working); err != nil {
		return nil, t.fail(ctx, fmt.Errorf("commit thread: %w", err))
	}
	t.state = StateCommitted
	res.Delta = t.delta
	res.Usage = t.usage
	log.Infof("turn %s: committed thread %s at version %d after %d tool rounds",
		t.inv.ID, t.inv.ThreadID, t.working.Version, res.Rounds)
	return res, nil
}

func (t *turn) append(msgs ...model.Message) {
	t.working.Messages = append(t.working.Messages, msgs...)
	t.delta = append(t.delta, msgs...)
}

func (t *turn) compact(ctx context.Context) error {
	r := t.runner
	if len(r.opts.compaction) == 0 {
		return nil
	}
	before := len(t.working.Messages)
	out, err := r.opts.compaction.Compact(ctx, t.working.Messages)
	if err != nil {
		return err
	}
	if len(out) != before {
		log.Debugf("turn %s: compacted %d messages to %d", t.inv.ID, before, len(out))
		r.instruments.Compactions.Add(ctx, 1)
	}
	t.working.Messages = out
	return nil
}

// fail classifies err, logs it and wraps it with the current state.
func (t *turn) fail(ctx context.Context, err error) error {
	// Any expired deadline on the turn context, whether set by WithTurnTimeout
	// or by the caller, is reported as a turn timeout.
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, agent.ErrTimeout) {
		err = &agent.TimeoutError{Stage: "turn", Err: err}
	}
	failed := &TurnError{ThreadID: t.inv.ThreadID, State: t.state, Err: err}
	log.Errorf("turn %s: %v", t.inv.ID, failed)
	t.state = StateFailed
	return failed
}

type inference struct {
	rsp *model.Response
	err error
}

// infer runs one inference with the configured retries.
func (r *Runner) infer(ctx context.Context, inv *agent.Invocation, msgs []model.Message) (*model.Response, error) {
	req := r.buildRequest(inv, msgs)
	var lastErr error
	for attempt := 0; attempt <= max(r.opts.ModelRetries, 0); attempt++ {
		if attempt > 0 {
			delay := r.opts.RetryDelay * time.Duration(attempt)
			log.Warnf("turn %s: retrying inference (attempt %d) after %v: %v", inv.ID, attempt+1, delay, lastErr)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: retry aborted: %v", lastErr, ctx.Err())
			case <-time.After(delay):
			}
		}
		rsp, err := r.inferOnce(ctx, inv, req)
		if err == nil {
			return rsp, nil
		}
		if !errors.Is(err, agent.ErrModelInference) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (r *Runner) buildRequest(inv *agent.Invocation, msgs []model.Message) *model.Request {
	messages := make([]model.Message, 0, len(msgs)+1)
	if r.opts.systemPrompt != "" {
		messages = append(messages, model.NewSystemMessage(r.opts.systemPrompt))
	}
	// Compaction may have split a tool round; never send half of one.
	messages = append(messages, model.PairToolMessages(msgs)...)
	req := &model.Request{
		Messages:         messages,
		GenerationConfig: r.opts.genConfig,
		Tools:            r.registry.Declarations(),
		Invocation:       inv,
	}
	if r.opts.strategy != nil {
		r.opts.strategy.Prepare(req)
	}
	return req
}

// inferOnce runs a single inference under the model timeout. A model that
// ignores its context is abandoned when the deadline passes.
func (r *Runner) inferOnce(ctx context.Context, inv *agent.Invocation, req *model.Request) (*model.Response, error) {
	name := r.model.Info().Name
	ctx, span := trace.Tracer.Start(ctx, itelemetry.NewChatSpanName(name))
	defer span.End()

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if r.opts.ModelTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, r.opts.ModelTimeout)
	}
	defer cancel()

	done := make(chan inference, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- inference{err: fmt.Errorf("model panicked: %v", p)}
			}
		}()
		rsp, err := r.model.GenerateContent(callCtx, req)
		done <- inference{rsp: rsp, err: err}
	}()

	var out inference
	select {
	case out = <-done:
	case <-callCtx.Done():
		out = inference{err: callCtx.Err()}
	}
	itelemetry.TraceCallLLM(span, inv, name, req, out.rsp)

	err := classifyInference(ctx, callCtx, name, out)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return out.rsp, nil
}

func classifyInference(ctx, callCtx context.Context, name string, out inference) error {
	switch {
	case out.err != nil && ctx.Err() != nil:
		return fmt.Errorf("inference %s: %w", name, ctx.Err())
	case out.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return &agent.TimeoutError{Stage: "inference", Name: name, Err: out.err}
	case out.err != nil:
		return &agent.ModelInferenceError{Model: name, Err: out.err}
	case out.rsp == nil:
		return &agent.ModelInferenceError{Model: name, Err: errors.New("empty response")}
	case out.rsp.Error != nil:
		return &agent.ModelInferenceError{Model: name, Type: out.rsp.Error.Type, Err: out.rsp.Error}
	}
	return nil
}
