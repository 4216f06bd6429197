//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package model

// PairToolMessages returns msgs with every tool exchange made well formed for
// providers that require a tool result to directly follow the assistant
// message that issued its call:
//
//   - a tool message is kept only inside the run of tool messages right after
//     an assistant message that carries its call id;
//   - an assistant message keeps only the calls answered in that run, and is
//     dropped when nothing is left of it.
//
// History compaction can cut a round in half, so adapters apply this before
// encoding. msgs is not modified.
func PairToolMessages(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for i := 0; i < len(msgs); i++ {
		msg := msgs[i]
		if msg.Role == RoleTool {
			// Not preceded by its call.
			continue
		}
		if msg.Role != RoleAssistant || len(msg.ToolCalls) == 0 {
			out = append(out, msg)
			continue
		}

		end := i + 1
		for end < len(msgs) && msgs[end].Role == RoleTool {
			end++
		}
		issued := make(map[string]bool, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			issued[tc.ID] = true
		}
		answered := make(map[string]bool, end-i-1)
		var results []Message
		for _, r := range msgs[i+1 : end] {
			if issued[r.ToolID] && !answered[r.ToolID] {
				answered[r.ToolID] = true
				results = append(results, r)
			}
		}

		assistant := msg.Clone()
		assistant.ToolCalls = assistant.ToolCalls[:0]
		for _, tc := range msg.ToolCalls {
			if answered[tc.ID] {
				assistant.ToolCalls = append(assistant.ToolCalls, tc)
			}
		}
		if len(assistant.ToolCalls) == 0 {
			assistant.ToolCalls = nil
			if assistant.Content != "" {
				out = append(out, assistant)
			}
		} else {
			out = append(out, assistant)
			out = append(out, results...)
		}
		i = end - 1
	}
	return out
}
