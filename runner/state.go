//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package runner

import "fmt"

// State is a step of the turn state machine:
//
//	Loaded → Trimmed → Inferring → (ToolPending → ToolExecuting → Trimmed → Inferring)* → Extracting → Committed
//
// Any step may move to Failed. Committed and Failed are terminal.
type State int

// Turn states.
const (
	StateLoaded State = iota
	StateTrimmed
	StateInferring
	StateToolPending
	StateToolExecuting
	StateExtracting
	StateCommitted
	StateFailed
)

var stateNames = [...]string{
	StateLoaded:        "loaded",
	StateTrimmed:       "trimmed",
	StateInferring:     "inferring",
	StateToolPending:   "tool_pending",
	StateToolExecuting: "tool_executing",
	StateExtracting:    "extracting",
	StateCommitted:     "committed",
	StateFailed:        "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed
}

// TurnError is returned by Run when a turn fails. State is the step the turn
// was in when it failed. Nothing is persisted for a failed turn.
type TurnError struct {
	ThreadID string
	State    State
	Err      error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn on thread %s failed while %s: %v", e.ThreadID, e.State, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }
