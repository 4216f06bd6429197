//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package model defines the inference capability used by the turn runner.
package model

import "context"

// Model is the interface that all language models must implement.
type Model interface {
	// GenerateContent performs one inference over the request.
	//
	// Returns:
	// - The complete response of the model
	// - An error for system-level failures (transport, marshalling)
	//
	// The Response may carry its own Error field for API-level errors.
	GenerateContent(ctx context.Context, request *Request) (*Response, error)

	// Info returns basic information about the model.
	Info() Info
}

// Info contains basic information about a Model.
type Info struct {
	Name string
}
