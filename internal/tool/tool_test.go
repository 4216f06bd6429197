//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherArgs struct {
	City  string   `json:"city" description:"city to look up"`
	Days  int      `json:"days,omitempty"`
	Units *string  `json:"units"`
	Tags  []string `json:"tags,omitempty"`
	skip  bool
}

type nested struct {
	Inner weatherArgs       `json:"inner"`
	Meta  map[string]string `json:"meta,omitempty"`
	Score float64           `json:"score"`
}

func TestGenerateJSONSchema(t *testing.T) {
	s := GenerateJSONSchema(reflect.TypeOf(weatherArgs{}))
	require.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"city"}, s.Required)
	assert.Equal(t, "city to look up", s.Properties["city"].Description)
	assert.Equal(t, "integer", s.Properties["days"].Type)
	assert.Equal(t, "string", s.Properties["units"].Type)
	assert.True(t, s.Properties["units"].Nullable)
	assert.Equal(t, "array", s.Properties["tags"].Type)
	assert.Equal(t, "string", s.Properties["tags"].Items.Type)
	assert.NotContains(t, s.Properties, "skip")

	p := GenerateJSONSchema(reflect.TypeOf(&nested{}))
	require.Equal(t, "object", p.Type)
	assert.ElementsMatch(t, []string{"inner", "score"}, p.Required)
	assert.Equal(t, []string{"city"}, p.Properties["inner"].Required)
	assert.Equal(t, "number", p.Properties["score"].Type)

	assert.Equal(t, "object", GenerateJSONSchema(nil).Type)
}

func TestValidateJSON(t *testing.T) {
	s := GenerateJSONSchema(reflect.TypeOf(nested{}))
	cases := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"ok", `{"inner":{"city":"Hanoi","units":null},"score":1.5}`, ""},
		{"integer score", `{"inner":{"city":"Hanoi"},"score":2}`, ""},
		{"missing required", `{"score":1}`, `missing required argument "inner"`},
		{"nested missing", `{"inner":{},"score":1}`, `missing required argument "inner.city"`},
		{"wrong type", `{"inner":{"city":3},"score":1}`, `argument "inner.city" must be "string"`},
		{"non integer", `{"inner":{"city":"x","days":1.5},"score":1}`, `must be "integer"`},
		{"array item", `{"inner":{"city":"x","tags":["a",1]},"score":1}`, `inner.tags[1]`},
		{"null not allowed", `{"inner":{"city":null},"score":1}`, "got null"},
		{"map values", `{"inner":{"city":"x"},"score":1,"meta":{"a":1}}`, `argument "meta.a" must be "string"`},
		{"not object", `[1,2]`, "must be a JSON object"},
		{"bad json", `{`, "invalid JSON arguments"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateJSON(s, []byte(c.raw))
			if c.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.wantErr)
		})
	}
}

func TestValidateUnknownArgument(t *testing.T) {
	s := GenerateJSONSchema(reflect.TypeOf(weatherArgs{}))
	s.AdditionalProperties = false
	err := ValidateJSON(s, []byte(`{"city":"x","units":null,"extra":true}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown argument "extra"`)

	s.AdditionalProperties = nil
	assert.NoError(t, ValidateJSON(s, []byte(`{"city":"x","extra":true}`)))
}

func TestDecodeObjectEmpty(t *testing.T) {
	obj, err := DecodeObject([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, obj)
	assert.NoError(t, ValidateArguments(nil, obj))
}
