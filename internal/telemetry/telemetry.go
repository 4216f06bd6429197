//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package telemetry holds the span names, attributes and instruments shared
// by the runner and the tool dispatcher.
package telemetry

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"trpc.group/trpc-go/trpc-agent-turn/agent"
	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/tool"
)

// telemetry service constants.
const (
	ServiceName      = "trpc-agent-turn"
	ServiceVersion   = "v0.1.0"
	ServiceNamespace = "trpc-go-agent"
	InstrumentName   = "trpc.agent.turn"

	SpanNameInvokeTurn        = "invoke_turn"
	SpanNameCallLLM           = "call_llm"
	SpanNamePrefixExecuteTool = "execute_tool"
)

const (
	// ProtocolGRPC uses gRPC protocol for OTLP exporter.
	ProtocolGRPC string = "grpc"
	// ProtocolHTTP uses HTTP protocol for OTLP exporter.
	ProtocolHTTP string = "http"
)

// telemetry attributes constants.
var (
	KeyThreadID     = "trpc.go.agent.thread_id"
	KeyInvocationID = "trpc.go.agent.invocation_id"
	KeyRound        = "trpc.go.agent.round"
	KeyLLMRequest   = "trpc.go.agent.llm_request"
	KeyLLMResponse  = "trpc.go.agent.llm_response"
	KeyToolCallID   = "trpc.go.agent.tool_id"
	KeyToolArgs     = "trpc.go.agent.tool_call_args"
	KeyToolResponse = "trpc.go.agent.tool_response"
	KeyTurnState    = "trpc.go.agent.turn_state"
)

// NewExecuteToolSpanName returns the span name of a tool execution.
func NewExecuteToolSpanName(toolName string) string {
	return fmt.Sprintf("%s %s", SpanNamePrefixExecuteTool, toolName)
}

// NewChatSpanName returns the span name of an inference against modelName.
func NewChatSpanName(modelName string) string {
	if modelName == "" {
		return SpanNameCallLLM
	}
	return fmt.Sprintf("%s %s", SpanNameCallLLM, modelName)
}

// TraceTurn records the identity of a turn.
func TraceTurn(span trace.Span, inv *agent.Invocation) {
	if inv == nil {
		return
	}
	span.SetAttributes(
		attribute.String("gen_ai.system", "trpc.go.agent"),
		attribute.String("gen_ai.operation.name", "invoke_turn"),
		attribute.String(KeyInvocationID, inv.ID),
		attribute.String(KeyThreadID, inv.ThreadID),
	)
}

// TraceToolCall traces the invocation of a tool call.
func TraceToolCall(span trace.Span, decl *tool.Declaration, call model.ToolCall, result model.Message) {
	attrs := []attribute.KeyValue{
		attribute.String("gen_ai.system", "trpc.go.agent"),
		attribute.String("gen_ai.operation.name", "tool.execute"),
		attribute.String("gen_ai.tool.name", call.Function.Name),
		attribute.String(KeyToolCallID, call.ID),
		attribute.String(KeyToolArgs, call.Function.Arguments),
		attribute.String(KeyToolResponse, result.Content),
		attribute.Bool("error", result.IsError),
	}
	if decl != nil {
		attrs = append(attrs, attribute.String("gen_ai.tool.description", decl.Description))
	}
	span.SetAttributes(attrs...)
}

// TraceCallLLM traces the invocation of an LLM call.
func TraceCallLLM(span trace.Span, inv *agent.Invocation, modelName string, req *model.Request, rsp *model.Response) {
	attrs := []attribute.KeyValue{
		attribute.String("gen_ai.system", "trpc.go.agent"),
		attribute.String("gen_ai.request.model", modelName),
	}
	if inv != nil {
		attrs = append(attrs,
			attribute.String(KeyInvocationID, inv.ID),
			attribute.String(KeyThreadID, inv.ThreadID),
			attribute.Int(KeyRound, inv.Round),
		)
	}
	span.SetAttributes(attrs...)

	if bts, err := json.Marshal(req); err == nil {
		span.SetAttributes(attribute.String(KeyLLMRequest, string(bts)))
	} else {
		span.SetAttributes(attribute.String(KeyLLMRequest, "<not json serializable>"))
	}
	if rsp == nil {
		return
	}
	if bts, err := json.Marshal(rsp); err == nil {
		span.SetAttributes(attribute.String(KeyLLMResponse, string(bts)))
	} else {
		span.SetAttributes(attribute.String(KeyLLMResponse, "<not json serializable>"))
	}
	if rsp.Usage != nil {
		span.SetAttributes(
			attribute.Int("gen_ai.usage.input_tokens", rsp.Usage.PromptTokens),
			attribute.Int("gen_ai.usage.output_tokens", rsp.Usage.CompletionTokens),
		)
	}
}

// Instruments are the metrics recorded for turns.
type Instruments struct {
	Turns        metric.Int64Counter
	ToolCalls    metric.Int64Counter
	ToolErrors   metric.Int64Counter
	Compactions  metric.Int64Counter
	TurnDuration metric.Float64Histogram
}

// NewInstruments creates the turn instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	var (
		ins Instruments
		err error
	)
	if ins.Turns, err = meter.Int64Counter("turn.count",
		metric.WithDescription("Number of turns by final state.")); err != nil {
		return nil, fmt.Errorf("create turn counter: %w", err)
	}
	if ins.ToolCalls, err = meter.Int64Counter("turn.tool.calls",
		metric.WithDescription("Number of dispatched tool calls.")); err != nil {
		return nil, fmt.Errorf("create tool call counter: %w", err)
	}
	if ins.ToolErrors, err = meter.Int64Counter("turn.tool.errors",
		metric.WithDescription("Number of tool calls reported back to the model as errors.")); err != nil {
		return nil, fmt.Errorf("create tool error counter: %w", err)
	}
	if ins.Compactions, err = meter.Int64Counter("turn.compactions",
		metric.WithDescription("Number of inferences whose history was shortened by compaction.")); err != nil {
		return nil, fmt.Errorf("create compaction counter: %w", err)
	}
	if ins.TurnDuration, err = meter.Float64Histogram("turn.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Wall time of a turn.")); err != nil {
		return nil, fmt.Errorf("create turn duration histogram: %w", err)
	}
	return &ins, nil
}

// NewGRPCConn creates a new gRPC connection to the OpenTelemetry Collector.
func NewGRPCConn(endpoint string) (*grpc.ClientConn, error) {
	// Note the use of insecure transport here. TLS is recommended in production.
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to collector: %w", err)
	}
	return conn, nil
}
