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
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"

	"trpc.group/trpc-go/trpc-agent-turn/tool"
)

// DecodeObject decodes raw JSON into a generic object. Empty input is treated as {}.
func DecodeObject(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("arguments must be a JSON object, got %s", jsonKind(v))
	}
	return obj, nil
}

// ValidateJSON decodes raw and validates it against schema.
func ValidateJSON(schema *tool.Schema, raw []byte) error {
	obj, err := DecodeObject(raw)
	if err != nil {
		return err
	}
	return ValidateArguments(schema, obj)
}

// ValidateArguments checks required fields, unknown fields and value types of
// args against schema. A nil schema accepts anything.
func ValidateArguments(schema *tool.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	return validateObject("", schema, args)
}

func validateObject(path string, schema *tool.Schema, obj map[string]any) error {
	for _, field := range schema.Required {
		if _, ok := obj[field]; !ok {
			return fmt.Errorf("missing required argument %q", join(path, field))
		}
	}
	additional, allowAdditional := additionalPolicy(schema)
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		prop, ok := schema.Properties[key]
		if !ok {
			if additional != nil {
				prop = additional
			} else if len(schema.Properties) > 0 && !allowAdditional {
				return fmt.Errorf("unknown argument %q", join(path, key))
			} else {
				continue
			}
		}
		if err := validateValue(join(path, key), prop, obj[key]); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(path string, schema *tool.Schema, v any) error {
	if schema == nil || schema.Type == "" {
		return nil
	}
	if v == nil {
		if schema.Nullable {
			return nil
		}
		return fmt.Errorf("argument %q must be %q, got null", path, schema.Type)
	}
	if !matchesType(schema.Type, v) {
		return fmt.Errorf("argument %q must be %q, got %s", path, schema.Type, jsonKind(v))
	}
	switch schema.Type {
	case "string":
		if len(schema.Enum) > 0 && !slices.Contains(schema.Enum, v.(string)) {
			return fmt.Errorf("argument %q must be one of %v", path, schema.Enum)
		}
	case "object":
		if obj, ok := v.(map[string]any); ok {
			return validateObject(path, schema, obj)
		}
	case "array":
		for i, item := range v.([]any) {
			if err := validateValue(fmt.Sprintf("%s[%d]", path, i), schema.Items, item); err != nil {
				return err
			}
		}
	}
	return nil
}

func additionalPolicy(schema *tool.Schema) (*tool.Schema, bool) {
	switch v := schema.AdditionalProperties.(type) {
	case nil:
		return nil, true
	case bool:
		return nil, v
	case *tool.Schema:
		return v, true
	default:
		return nil, true
	}
}

func matchesType(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		_, ok := asFloat(v)
		return ok
	case "integer":
		f, ok := asFloat(v)
		return ok && f == math.Trunc(f)
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64, float32, int, int64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
