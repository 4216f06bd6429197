//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package gemini provides a model.Model backed by the Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"trpc.group/trpc-go/trpc-agent-turn/agent"
	"trpc.group/trpc-go/trpc-agent-turn/log"
	"trpc.group/trpc-go/trpc-agent-turn/model"
	"trpc.group/trpc-go/trpc-agent-turn/tool"
)

const (
	// DefaultModel is the default Gemini chat model.
	DefaultModel = "gemini-2.5-flash"
	// GoogleAPIKeyEnv is the environment variable name for the Google API key.
	GoogleAPIKeyEnv = "GOOGLE_API_KEY"

	// outputKey and errorKey wrap tool results in function responses.
	outputKey = "output"
	errorKey  = "error"
)

var _ model.Model = (*Model)(nil)

// Model implements model.Model with google.golang.org/genai.
type Model struct {
	client        *genai.Client
	name          string
	clientOptions *genai.ClientConfig
	config        *genai.GenerateContentConfig
}

// Option configures a Model.
type Option func(*Model)

// WithAPIKey sets the API key.
func WithAPIKey(apiKey string) Option {
	return func(m *Model) {
		m.clientOptions.APIKey = apiKey
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(m *Model) {
		m.clientOptions.HTTPOptions.BaseURL = url
	}
}

// WithClientOptions replaces the genai client configuration.
func WithClientOptions(clientOptions *genai.ClientConfig) Option {
	return func(m *Model) {
		c := *clientOptions
		m.clientOptions = &c
	}
}

// WithGenerateContentConfig sets a base config merged into every request.
func WithGenerateContentConfig(cfg *genai.GenerateContentConfig) Option {
	return func(m *Model) {
		c := *cfg
		m.config = &c
	}
}

// New creates a Gemini model. The API key defaults to $GOOGLE_API_KEY.
func New(ctx context.Context, name string, opts ...Option) (*Model, error) {
	if name == "" {
		name = DefaultModel
	}
	m := &Model{
		name:          name,
		clientOptions: &genai.ClientConfig{Backend: genai.BackendGeminiAPI},
		config:        &genai.GenerateContentConfig{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.clientOptions.APIKey == "" {
		m.clientOptions.APIKey = os.Getenv(GoogleAPIKeyEnv)
	}
	if m.clientOptions.APIKey == "" {
		return nil, fmt.Errorf("%s is not provided", GoogleAPIKeyEnv)
	}
	client, err := genai.NewClient(ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	m.client = client
	return m, nil
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(ctx context.Context, request *model.Request) (*model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}
	contents, system := convertMessages(request.Messages)
	cfg := m.buildConfig(request, system)

	rsp, err := m.client.Models.GenerateContent(ctx, m.name, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return &model.Response{
			Model:     m.name,
			Error:     &model.ResponseError{Message: err.Error(), Type: agent.ErrorTypeAPIError},
			Timestamp: time.Now(),
		}, nil
	}
	return m.convertResponse(rsp), nil
}

func (m *Model) buildConfig(request *model.Request, system *genai.Content) *genai.GenerateContentConfig {
	cfg := *m.config
	cfg.SystemInstruction = system
	if request.Temperature != nil {
		t := float32(*request.Temperature)
		cfg.Temperature = &t
	}
	if request.TopP != nil {
		p := float32(*request.TopP)
		cfg.TopP = &p
	}
	if request.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*request.MaxTokens)
	}
	if len(request.Stop) > 0 {
		cfg.StopSequences = request.Stop
	}
	if len(request.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(request.Tools))
		for _, d := range request.Tools {
			if d == nil {
				continue
			}
			fd := &genai.FunctionDeclaration{Name: d.Name, Description: d.Description}
			if d.InputSchema != nil && len(d.InputSchema.Properties) > 0 {
				fd.Parameters = convertSchema(d.InputSchema)
			}
			decls = append(decls, fd)
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		if mode := functionCallingMode(request.ToolChoice); mode != "" {
			cfg.ToolConfig = &genai.ToolConfig{
				FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode},
			}
		}
	}
	if so := request.StructuredOutput; so != nil && so.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = convertSchema(so.Schema)
	}
	return &cfg
}

func functionCallingMode(choice model.ToolChoice) genai.FunctionCallingConfigMode {
	switch choice {
	case model.ToolChoiceRequired:
		return genai.FunctionCallingConfigModeAny
	case model.ToolChoiceNone:
		return genai.FunctionCallingConfigModeNone
	default:
		return ""
	}
}

// convertMessages maps the conversation onto Gemini contents. System
// messages are merged into the system instruction, tool results become
// function responses sent with the user role. Tool results whose call is
// not in the request are dropped.
func convertMessages(messages []model.Message) ([]*genai.Content, *genai.Content) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, msg := range model.PairToolMessages(messages) {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, msg.Content)
		case model.RoleAssistant:
			c := &genai.Content{Role: string(genai.RoleModel)}
			if msg.Content != "" {
				c.Parts = append(c.Parts, genai.NewPartFromText(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
						log.Warnf("gemini: drop malformed arguments of call %s: %v", tc.ID, err)
					}
				}
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
					Args: args,
				}})
			}
			if len(c.Parts) > 0 {
				contents = append(contents, c)
			}
		case model.RoleTool:
			key := outputKey
			if msg.IsError {
				key = errorKey
			}
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       msg.ToolID,
				Name:     msg.ToolName,
				Response: map[string]any{key: toolResultValue(msg.Content)},
			}}
			// Consecutive tool results belong to the same user turn.
			if n := len(contents); n > 0 && contents[n-1].Role == string(genai.RoleUser) &&
				len(contents[n-1].Parts) > 0 && contents[n-1].Parts[0].FunctionResponse != nil {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: string(genai.RoleUser), Parts: []*genai.Part{part}})
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return contents, nil
	}
	return contents, genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
}

// toolResultValue keeps structured tool results structured.
func toolResultValue(content string) any {
	var v any
	if err := json.Unmarshal([]byte(content), &v); err == nil {
		return v
	}
	return content
}

func convertSchema(s *tool.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        convertType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	if s.Nullable {
		nullable := true
		out.Nullable = &nullable
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = convertSchema(p)
		}
	}
	if s.Items != nil {
		out.Items = convertSchema(s.Items)
	}
	return out
}

func convertType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeObject
	}
}

func (m *Model) convertResponse(rsp *genai.GenerateContentResponse) *model.Response {
	response := &model.Response{
		ID:        rsp.ResponseID,
		Model:     m.name,
		Timestamp: time.Now(),
	}
	if rsp.ModelVersion != "" {
		response.Model = rsp.ModelVersion
	}
	if rsp.UsageMetadata != nil {
		response.Usage = &model.Usage{
			PromptTokens:     int(rsp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(rsp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(rsp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(rsp.Candidates) == 0 || rsp.Candidates[0].Content == nil {
		response.Error = &model.ResponseError{
			Message: "no candidates in response",
			Type:    agent.ErrorTypeEmptyResponse,
		}
		return response
	}
	cand := rsp.Candidates[0]
	msg := model.Message{Role: model.RoleAssistant}
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				args = []byte("{}")
			}
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
				Type: "function",
				ID:   id,
				Function: model.FunctionDefinitionParam{
					Name:      part.FunctionCall.Name,
					Arguments: string(args),
				},
			})
			continue
		}
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	msg.Content = text.String()
	response.Message = msg
	switch {
	case len(msg.ToolCalls) > 0:
		response.FinishReason = model.FinishReasonToolCalls
	case cand.FinishReason == genai.FinishReasonMaxTokens:
		response.FinishReason = model.FinishReasonLength
	default:
		response.FinishReason = model.FinishReasonStop
	}
	return response
}
