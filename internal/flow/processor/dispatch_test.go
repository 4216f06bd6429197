//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"trpc.group/trpc-go/trpc-agent-turn/agent"
	itelemetry "trpc.group/trpc-go/trpc-agent-turn/internal/telemetry"
	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/session"
	"trpc.group/trpc-go/trpc-agent-turn/tool"
	"trpc.group/trpc-go/trpc-agent-turn/tool/function"
)

type cityInput struct {
	City string `json:"city"`
}

type empty struct{}

func call(id, name, args string) model.ToolCall {
	return model.ToolCall{Type: "function", ID: id, Function: model.FunctionDefinitionParam{Name: name, Arguments: args}}
}

func newRegistry(t *testing.T, tools ...tool.Tool) *tool.Registry {
	reg, err := tool.NewRegistry(tools...)
	require.NoError(t, err)
	return reg
}

func weatherTool(calls *int32) tool.CallableTool {
	return function.NewFunctionTool(
		func(_ context.Context, in cityInput, _ *tool.Runtime) (string, error) {
			if calls != nil {
				atomic.AddInt32(calls, 1)
			}
			return "sunny in " + in.City, nil
		},
		function.WithName("get_weather"),
		function.WithDescription("Get the weather of a city."),
	)
}

func failingTool() tool.CallableTool {
	return function.NewFunctionTool(
		func(context.Context, empty, *tool.Runtime) (string, error) {
			return "", errors.New("location service unavailable")
		},
		function.WithName("get_user_location"),
	)
}

func TestDispatch_Success(t *testing.T) {
	d := NewDispatcher(newRegistry(t, weatherTool(nil)))
	msg, err := d.Dispatch(context.Background(), &agent.Invocation{ID: "inv"}, call("c1", "get_weather", `{"city":"Hanoi"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, model.RoleTool, msg.Role)
	assert.Equal(t, "c1", msg.ToolID)
	assert.Equal(t, "get_weather", msg.ToolName)
	assert.Equal(t, `"sunny in Hanoi"`, msg.Content)
	assert.False(t, msg.IsError)
}

func TestDispatch_UnknownToolNeverInvokes(t *testing.T) {
	var calls int32
	d := NewDispatcher(newRegistry(t, weatherTool(&calls)))

	_, err := d.Dispatch(context.Background(), nil, call("c1", "get_stock", `{}`), nil)
	require.ErrorIs(t, err, agent.ErrUnknownTool)

	_, err = d.DispatchAll(context.Background(), nil, []model.ToolCall{
		call("c1", "get_weather", `{"city":"Hanoi"}`),
		call("c2", "get_stock", `{}`),
	}, nil)
	var unknown *agent.UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "get_stock", unknown.Name)
	assert.Equal(t, "c2", unknown.CallID)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestDispatch_ToolErrorIsResult(t *testing.T) {
	d := NewDispatcher(newRegistry(t, failingTool()))
	msg, err := d.Dispatch(context.Background(), nil, call("c1", "get_user_location", `{}`), nil)
	require.NoError(t, err)
	assert.True(t, msg.IsError)
	assert.Equal(t, "Error: tool execution failed: location service unavailable", msg.Content)
}

func TestDispatch_InvalidArgumentsIsResult(t *testing.T) {
	var calls int32
	d := NewDispatcher(newRegistry(t, weatherTool(&calls)))
	msg, err := d.Dispatch(context.Background(), nil, call("c1", "get_weather", `{"town":"Hanoi"}`), nil)
	require.NoError(t, err)
	assert.True(t, msg.IsError)
	assert.Contains(t, msg.Content, ErrorToolExecution)
	assert.Contains(t, msg.Content, `missing required argument "city"`)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestDispatch_PanicIsResult(t *testing.T) {
	boom := function.NewFunctionTool(
		func(context.Context, empty, *tool.Runtime) (string, error) {
			panic("boom")
		},
		function.WithName("boom"),
	)
	d := NewDispatcher(newRegistry(t, boom))
	msg, err := d.Dispatch(context.Background(), nil, call("c1", "boom", `{}`), nil)
	require.NoError(t, err)
	assert.True(t, msg.IsError)
	assert.Contains(t, msg.Content, "panic: boom")
}

func TestDispatch_UnencodableResult(t *testing.T) {
	ch := function.NewFunctionTool(
		func(context.Context, empty, *tool.Runtime) (chan int, error) {
			return make(chan int), nil
		},
		function.WithName("chan"),
	)
	d := NewDispatcher(newRegistry(t, ch))
	msg, err := d.Dispatch(context.Background(), nil, call("c1", "chan", `{}`), nil)
	require.NoError(t, err)
	assert.True(t, msg.IsError)
	assert.Contains(t, msg.Content, ErrorMarshalResult)
}

func TestDispatch_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := function.NewFunctionTool(
		func(context.Context, empty, *tool.Runtime) (string, error) {
			<-release // ignores its context
			return "late", nil
		},
		function.WithName("slow"),
	)
	d := NewDispatcher(newRegistry(t, slow), WithToolTimeout(20*time.Millisecond))
	_, err := d.Dispatch(context.Background(), nil, call("c1", "slow", `{}`), nil)
	require.ErrorIs(t, err, agent.ErrTimeout)
	var te *agent.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "tool", te.Stage)
	assert.Equal(t, "slow", te.Name)
}

func TestDispatch_ParentCancelled(t *testing.T) {
	blocking := function.NewFunctionTool(
		func(ctx context.Context, _ empty, _ *tool.Runtime) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
		function.WithName("block"),
	)
	d := NewDispatcher(newRegistry(t, blocking))
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := d.Dispatch(ctx, nil, call("c1", "block", `{}`), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDispatch_StateOnlyForStateAwareTools(t *testing.T) {
	var sawState bool
	plain := function.NewFunctionTool(
		func(_ context.Context, _ empty, rt *tool.Runtime) (string, error) {
			sawState = rt.State != nil
			return "", nil
		},
		function.WithName("plain"),
	)
	remember := function.NewFunctionTool(
		func(_ context.Context, _ empty, rt *tool.Runtime) (string, error) {
			id, _ := rt.InvocationContext().GetString("user_id")
			rt.State.Set("user_name", []byte("user-"+id))
			return "ok", nil
		},
		function.WithName("remember"),
		function.WithStateAccess(),
	)
	d := NewDispatcher(newRegistry(t, plain, remember))
	state := session.StateMap{}
	view := session.NewStateView(state)
	inv := &agent.Invocation{Context: agent.InvocationContext{"user_id": "1"}}

	_, err := d.DispatchAll(context.Background(), inv, []model.ToolCall{
		call("c1", "plain", `{}`),
		call("c2", "remember", `{}`),
	}, view)
	require.NoError(t, err)
	assert.False(t, sawState)
	assert.Equal(t, []byte("user-1"), state["user_name"])
}

func TestDispatchAll_ParallelKeepsOrder(t *testing.T) {
	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	defer pool.Release()

	var (
		mu      sync.Mutex
		started int
		gate    = make(chan struct{})
	)
	sleepy := function.NewFunctionTool(
		func(_ context.Context, in cityInput, _ *tool.Runtime) (string, error) {
			mu.Lock()
			started++
			if started == 3 {
				close(gate)
			}
			mu.Unlock()
			// All three calls must be in flight at once.
			select {
			case <-gate:
			case <-time.After(2 * time.Second):
				return "", errors.New("calls did not overlap")
			}
			if in.City == "Hanoi" {
				time.Sleep(20 * time.Millisecond)
			}
			return in.City, nil
		},
		function.WithName("get_weather"),
	)
	d := NewDispatcher(newRegistry(t, sleepy), WithPool(pool))
	results, err := d.DispatchAll(context.Background(), nil, []model.ToolCall{
		call("c1", "get_weather", `{"city":"Hanoi"}`),
		call("c2", "get_weather", `{"city":"Paris"}`),
		call("c3", "get_weather", `{"city":"Tokyo"}`),
	}, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{results[0].ToolID, results[1].ToolID, results[2].ToolID})
	assert.Equal(t, `"Hanoi"`, results[0].Content)
	assert.Equal(t, `"Tokyo"`, results[2].Content)
	for _, r := range results {
		assert.False(t, r.IsError, r.Content)
	}
}

func TestDispatchAll_ParallelTimeoutIsFatal(t *testing.T) {
	pool, err := ants.NewPool(2)
	require.NoError(t, err)
	defer pool.Release()

	release := make(chan struct{})
	defer close(release)
	slow := function.NewFunctionTool(
		func(context.Context, empty, *tool.Runtime) (string, error) {
			<-release
			return "", nil
		},
		function.WithName("slow"),
	)
	d := NewDispatcher(newRegistry(t, slow, weatherTool(nil)), WithPool(pool), WithToolTimeout(20*time.Millisecond))
	_, err = d.DispatchAll(context.Background(), nil, []model.ToolCall{
		call("c1", "get_weather", `{"city":"Hanoi"}`),
		call("c2", "slow", `{}`),
	}, nil)
	require.ErrorIs(t, err, agent.ErrTimeout)
}

func TestDispatch_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	ins, err := itelemetry.NewInstruments(mp.Meter("test"))
	require.NoError(t, err)

	d := NewDispatcher(newRegistry(t, weatherTool(nil), failingTool()), WithInstruments(ins))
	_, err = d.DispatchAll(context.Background(), nil, []model.ToolCall{
		call("c1", "get_weather", `{"city":"Hanoi"}`),
		call("c2", "get_user_location", `{}`),
	}, nil)
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), totals["turn.tool.calls"])
	assert.Equal(t, int64(1), totals["turn.tool.errors"])
}
