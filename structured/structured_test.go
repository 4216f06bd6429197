//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package structured

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-agent-turn/agent"
	"trpc.group/trpc-go/trpc-agent-turn/model"
)

type weatherResponse struct {
	Temperature float64 `json:"temperature" description:"temperature in celsius"`
	Condition   string  `json:"condition"`
	Note        string  `json:"note"`
}

func formattingCall(id, name, args string) model.ToolCall {
	return model.ToolCall{
		Type: "function", ID: id,
		Function: model.FunctionDefinitionParam{Name: name, Arguments: args},
	}
}

func TestNewSchema(t *testing.T) {
	s := NewSchema[weatherResponse]()
	assert.Equal(t, "weatherResponse", s.Name)
	require.NoError(t, s.Validate())
	assert.ElementsMatch(t, []string{"temperature", "condition", "note"}, s.JSONSchema.Required)
	assert.Equal(t, "temperature in celsius", s.JSONSchema.Properties["temperature"].Description)

	s = NewSchema[weatherResponse](WithName("WeatherResponse"), WithDescription("forecast"), WithStrict(true))
	assert.Equal(t, "WeatherResponse", s.Name)
	assert.Equal(t, "forecast", s.Description)
	assert.True(t, s.Strict)

	require.Error(t, NewSchema[string]().Validate())
	require.Error(t, NewSchema[weatherResponse](WithName("bad name!")).Validate())
}

func TestExtractFirstJSONObject(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a":1}`, `{"a":1}`, true},
		{"Here you go:\n```json\n{\"a\":{\"b\":[1,2]}}\n```", `{"a":{"b":[1,2]}}`, true},
		{`{"a":"brace } in string"} trailing`, `{"a":"brace } in string"}`, true},
		{`{"a":"escaped \" quote"}`, `{"a":"escaped \" quote"}`, true},
		{`no json here`, "", false},
		{`{"a":[1}`, "", false},
		{`{"unterminated":`, "", false},
	}
	for _, c := range cases {
		got, ok := extractFirstJSONObject(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestDirectDecode(t *testing.T) {
	d := DirectDecode[weatherResponse](WithName("WeatherResponse"))
	require.NoError(t, d.Validate())

	req := &model.Request{}
	d.Prepare(req)
	require.NotNil(t, req.StructuredOutput)
	assert.Equal(t, "WeatherResponse", req.StructuredOutput.Name)
	assert.Equal(t, "object", req.StructuredOutput.Schema.Type)
	assert.Equal(t, model.ToolChoiceAuto, req.ToolChoice)

	assert.True(t, d.IsFinal(model.NewAssistantMessage("x")))
	assert.False(t, d.IsFinal(model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
		formattingCall("1", "get_weather", `{}`),
	}}))

	msg := model.NewAssistantMessage("Sure! {\"temperature\": 31, \"condition\": \"sunny\", \"note\": \"hot\"}")
	out, final, err := d.Extract(msg)
	require.NoError(t, err)
	assert.Equal(t, &weatherResponse{Temperature: 31, Condition: "sunny", Note: "hot"}, out)
	assert.Equal(t, msg, final)
}

func TestDirectDecode_Errors(t *testing.T) {
	d := DirectDecode[weatherResponse]()

	_, _, err := d.Extract(model.NewAssistantMessage("It is sunny."))
	require.ErrorIs(t, err, agent.ErrStructuredOutput)

	_, _, err = d.Extract(model.NewAssistantMessage(`{"temperature": 31}`))
	require.ErrorIs(t, err, agent.ErrStructuredOutput)
	assert.Contains(t, err.Error(), `missing required argument "condition"`)

	_, _, err = d.Extract(model.NewAssistantMessage(`{"temperature": "hot", "condition": "x", "note": ""}`))
	require.ErrorIs(t, err, agent.ErrStructuredOutput)
	var soErr *agent.StructuredOutputError
	require.ErrorAs(t, err, &soErr)
	assert.Equal(t, "weatherResponse", soErr.Schema)
}

func TestToolDecode(t *testing.T) {
	s := ToolDecode[weatherResponse](WithName("WeatherResponse"))
	require.NoError(t, s.Validate())
	assert.Equal(t, "WeatherResponse", s.ToolName())

	req := &model.Request{}
	s.Prepare(req)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, "WeatherResponse", req.Tools[0].Name)
	assert.Equal(t, model.ToolChoiceRequired, req.ToolChoice)
	assert.Nil(t, req.StructuredOutput)

	args := `{"temperature":31,"condition":"sunny","note":"Hello Royal"}`
	msg := model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
		formattingCall("c1", "WeatherResponse", args),
	}}
	assert.True(t, s.IsFinal(msg))
	out, final, err := s.Extract(msg)
	require.NoError(t, err)
	assert.Equal(t, &weatherResponse{Temperature: 31, Condition: "sunny", Note: "Hello Royal"}, out)
	assert.Equal(t, model.RoleAssistant, final.Role)
	assert.Equal(t, args, final.Content)
	assert.Empty(t, final.ToolCalls)
}

func TestToolDecode_IsFinal(t *testing.T) {
	s := ToolDecode[weatherResponse]()
	assert.True(t, s.IsFinal(model.NewAssistantMessage("plain text")))
	assert.False(t, s.IsFinal(model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
		formattingCall("c1", "get_weather", `{"city":"Hanoi"}`),
	}}))
}

func TestToolDecode_DropsSiblingCalls(t *testing.T) {
	s := ToolDecode[weatherResponse]()
	msg := model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
		formattingCall("c1", "get_weather", `{"city":"Hanoi"}`),
		formattingCall("c2", s.ToolName(), `{"temperature":20,"condition":"rain","note":""}`),
	}}
	out, _, err := s.Extract(msg)
	require.NoError(t, err)
	assert.Equal(t, "rain", out.(*weatherResponse).Condition)
}

func TestToolDecode_Errors(t *testing.T) {
	s := ToolDecode[weatherResponse]()

	_, _, err := s.Extract(model.NewAssistantMessage("It is sunny in Hanoi."))
	require.ErrorIs(t, err, agent.ErrStructuredOutput)

	twice := model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
		formattingCall("c1", s.ToolName(), `{"temperature":1,"condition":"a","note":""}`),
		formattingCall("c2", s.ToolName(), `{"temperature":2,"condition":"b","note":""}`),
	}}
	_, _, err = s.Extract(twice)
	require.ErrorIs(t, err, agent.ErrStructuredOutput)
	assert.Contains(t, err.Error(), "called 2 times")

	bad := model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
		formattingCall("c1", s.ToolName(), `{"temperature":1}`),
	}}
	_, _, err = s.Extract(bad)
	require.ErrorIs(t, err, agent.ErrStructuredOutput)

	notJSON := model.Message{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
		formattingCall("c1", s.ToolName(), `{`),
	}}
	_, _, err = s.Extract(notJSON)
	require.ErrorIs(t, err, agent.ErrStructuredOutput)
}
