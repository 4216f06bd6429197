//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"trpc.group/trpc-go/trpc-agent-turn/agent"
	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/tool"
)

func newTestModel(t *testing.T, status int, body string, captured *map[string]any) *Model {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent"), r.URL.Path)
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		if captured != nil {
			assert.NoError(t, json.Unmarshal(raw, captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	m, err := New(context.Background(), "gemini-test", WithAPIKey("test-key"), WithBaseURL(srv.URL))
	require.NoError(t, err)
	return m
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Setenv(GoogleAPIKeyEnv, "")
	_, err := New(context.Background(), "")
	require.Error(t, err)
}

func TestModel_GenerateContent_FunctionCall(t *testing.T) {
	var captured map[string]any
	m := newTestModel(t, http.StatusOK, `{
		"candidates": [{
			"content": {"role": "model", "parts": [
				{"functionCall": {"name": "get_weather", "args": {"city": "Hanoi"}}}
			]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 3, "totalTokenCount": 10}
	}`, &captured)

	rsp, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{
			model.NewSystemMessage("You are a helpful assistant."),
			model.NewUserMessage("What is the weather in Hanoi?"),
		},
		Tools: []*tool.Declaration{{
			Name:        "get_weather",
			Description: "Get weather for a given city.",
			InputSchema: &tool.Schema{
				Type:       "object",
				Properties: map[string]*tool.Schema{"city": {Type: "string"}},
				Required:   []string{"city"},
			},
		}},
	})
	require.NoError(t, err)
	require.Nil(t, rsp.Error)
	require.Len(t, rsp.Message.ToolCalls, 1)
	tc := rsp.Message.ToolCalls[0]
	assert.Equal(t, "get_weather", tc.Function.Name)
	assert.JSONEq(t, `{"city":"Hanoi"}`, tc.Function.Arguments)
	assert.True(t, strings.HasPrefix(tc.ID, "call_"))
	assert.Equal(t, model.FinishReasonToolCalls, rsp.FinishReason)
	require.NotNil(t, rsp.Usage)
	assert.Equal(t, 10, rsp.Usage.TotalTokens)

	contents := captured["contents"].([]any)
	require.Len(t, contents, 1)
	assert.Equal(t, "user", contents[0].(map[string]any)["role"])
	assert.Contains(t, captured, "systemInstruction")
	tools := captured["tools"].([]any)
	require.Len(t, tools, 1)
	assert.NotContains(t, captured, "toolConfig")
}

func TestModel_GenerateContent_ToolChoiceRequired(t *testing.T) {
	var captured map[string]any
	m := newTestModel(t, http.StatusOK, `{
		"candidates": [{
			"content": {"role": "model", "parts": [{"text": "ok"}]},
			"finishReason": "STOP"
		}]
	}`, &captured)

	_, err := m.GenerateContent(context.Background(), &model.Request{
		Messages:   []model.Message{model.NewUserMessage("weather?")},
		Tools:      []*tool.Declaration{{Name: "WeatherResponse", InputSchema: &tool.Schema{Type: "object"}}},
		ToolChoice: model.ToolChoiceRequired,
	})
	require.NoError(t, err)

	toolConfig, ok := captured["toolConfig"].(map[string]any)
	require.True(t, ok, "toolConfig missing from %v", captured)
	fc := toolConfig["functionCallingConfig"].(map[string]any)
	assert.Equal(t, "ANY", fc["mode"])
}

func TestModel_GenerateContent_Text(t *testing.T) {
	m := newTestModel(t, http.StatusOK, `{
		"candidates": [{
			"content": {"role": "model", "parts": [{"text": "It is "}, {"text": "sunny."}]},
			"finishReason": "STOP"
		}]
	}`, nil)
	rsp, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "It is sunny.", rsp.Message.Content)
	assert.Equal(t, model.RoleAssistant, rsp.Message.Role)
	assert.Equal(t, model.FinishReasonStop, rsp.FinishReason)
}

func TestModel_GenerateContent_NoCandidates(t *testing.T) {
	m := newTestModel(t, http.StatusOK, `{"candidates": []}`, nil)
	rsp, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	require.NotNil(t, rsp.Error)
	assert.Equal(t, agent.ErrorTypeEmptyResponse, rsp.Error.Type)
}

func TestModel_GenerateContent_APIError(t *testing.T) {
	m := newTestModel(t, http.StatusBadRequest,
		`{"error": {"code": 400, "message": "bad", "status": "INVALID_ARGUMENT"}}`, nil)
	rsp, err := m.GenerateContent(context.Background(), &model.Request{
		Messages: []model.Message{model.NewUserMessage("hi")},
	})
	require.NoError(t, err)
	require.NotNil(t, rsp.Error)
	assert.Equal(t, agent.ErrorTypeAPIError, rsp.Error.Type)
}

func TestConvertMessages(t *testing.T) {
	msgs := []model.Message{
		model.NewSystemMessage("sys"),
		model.NewUserMessage("weather in Hanoi and Hue?"),
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
			{ID: "a", Function: model.FunctionDefinitionParam{Name: "get_weather", Arguments: `{"city":"Hanoi"}`}},
			{ID: "b", Function: model.FunctionDefinitionParam{Name: "get_weather", Arguments: `{"city":"Hue"}`}},
		}},
		model.NewToolMessage("a", "get_weather", `{"temperature":30}`),
		{Role: model.RoleTool, ToolID: "b", ToolName: "get_weather", Content: "Error: boom", IsError: true},
		model.NewAssistantMessage("done"),
	}
	contents, system := convertMessages(msgs)
	require.NotNil(t, system)
	assert.Equal(t, "sys", system.Parts[0].Text)
	require.Len(t, contents, 4)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	assert.Equal(t, "Hanoi", contents[1].Parts[0].FunctionCall.Args["city"])

	results := contents[2]
	assert.Equal(t, string(genai.RoleUser), results.Role)
	require.Len(t, results.Parts, 2)
	assert.Equal(t, map[string]any{"temperature": float64(30)}, results.Parts[0].FunctionResponse.Response[outputKey])
	assert.Equal(t, "Error: boom", results.Parts[1].FunctionResponse.Response[errorKey])
	assert.Equal(t, "done", contents[3].Parts[0].Text)
}

func TestConvertMessages_DropsOrphanToolResults(t *testing.T) {
	msgs := []model.Message{
		model.NewUserMessage("weather?"),
		model.NewToolMessage("gone", "get_weather", `{"temperature":1}`),
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
			{ID: "c2", Function: model.FunctionDefinitionParam{Name: "get_weather", Arguments: `{"city":"Hue"}`}},
		}},
		model.NewToolMessage("c2", "get_weather", `{"temperature":2}`),
	}
	contents, system := convertMessages(msgs)
	assert.Nil(t, system)
	require.Len(t, contents, 3)
	assert.Equal(t, "weather?", contents[0].Parts[0].Text)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	require.Len(t, contents[2].Parts, 1)
	assert.Equal(t, "get_weather", contents[2].Parts[0].FunctionResponse.Name)
	assert.Equal(t, map[string]any{"temperature": float64(2)}, contents[2].Parts[0].FunctionResponse.Response[outputKey])
}

func TestConvertSchema(t *testing.T) {
	s := convertSchema(&tool.Schema{
		Type: "object",
		Properties: map[string]*tool.Schema{
			"note": {Type: "string", Nullable: true},
			"tags": {Type: "array", Items: &tool.Schema{Type: "integer"}},
		},
		Required: []string{"tags"},
	})
	assert.Equal(t, genai.TypeObject, s.Type)
	require.NotNil(t, s.Properties["note"].Nullable)
	assert.True(t, *s.Properties["note"].Nullable)
	assert.Equal(t, genai.TypeInteger, s.Properties["tags"].Items.Type)
	assert.Equal(t, []string{"tags"}, s.Required)
	assert.Nil(t, convertSchema(nil))
}
