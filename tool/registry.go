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
	"fmt"
	"regexp"
	"sort"

	"trpc.group/trpc-go/trpc-agent-turn/agent"
)

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Registry is the immutable set of tools available to a runner.
// It is validated once at construction and read concurrently afterwards.
type Registry struct {
	tools map[string]CallableTool
	names []string
}

// NewRegistry validates and registers tools. Duplicate or malformed
// declarations are rejected so that schema problems surface at startup
// rather than mid-turn.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]CallableTool, len(tools))}
	for _, t := range tools {
		if t == nil {
			return nil, fmt.Errorf("%w: nil tool", agent.ErrInvalidToolSchema)
		}
		ct, ok := t.(CallableTool)
		if !ok {
			return nil, fmt.Errorf("%w: tool %T is not callable", agent.ErrInvalidToolSchema, t)
		}
		decl := t.Declaration()
		if err := ValidateDeclaration(decl); err != nil {
			return nil, err
		}
		if _, dup := r.tools[decl.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tool name %q", agent.ErrInvalidToolSchema, decl.Name)
		}
		r.tools[decl.Name] = ct
		r.names = append(r.names, decl.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on error.
func MustNewRegistry(tools ...Tool) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// ValidateDeclaration checks that a declaration can be offered to a model.
func ValidateDeclaration(decl *Declaration) error {
	if decl == nil {
		return fmt.Errorf("%w: nil declaration", agent.ErrInvalidToolSchema)
	}
	if !toolNamePattern.MatchString(decl.Name) {
		return fmt.Errorf("%w: invalid tool name %q", agent.ErrInvalidToolSchema, decl.Name)
	}
	if decl.InputSchema != nil && decl.InputSchema.Type != "object" {
		return fmt.Errorf("%w: tool %q input schema must be an object, got %q",
			agent.ErrInvalidToolSchema, decl.Name, decl.InputSchema.Type)
	}
	if decl.InputSchema != nil {
		for _, req := range decl.InputSchema.Required {
			if _, ok := decl.InputSchema.Properties[req]; !ok {
				return fmt.Errorf("%w: tool %q requires undeclared property %q",
					agent.ErrInvalidToolSchema, decl.Name, req)
			}
		}
	}
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (CallableTool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns the registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.names...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.names)
}

// Declarations returns the declarations of all tools in name order.
func (r *Registry) Declarations() []*Declaration {
	if r == nil {
		return nil
	}
	decls := make([]*Declaration, 0, len(r.names))
	for _, name := range r.names {
		decls = append(decls, r.tools[name].Declaration())
	}
	return decls
}
