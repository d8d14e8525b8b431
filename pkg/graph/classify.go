// Package graph implements the orchestration state machine: one node per
// team role, a tool-dispatch node, and a human-suspension node, with
// deterministic routing over classified agent turns.
package graph

import (
	"strings"

	"devteam/pkg/proto"
	"devteam/pkg/team"
)

// Kind labels what an agent turn asks the graph to do next.
type Kind int

const (
	// KindToolCalls: the turn requests tool invocations. Always takes
	// priority over content inspection, because a turn can legally carry
	// both filler text and tool calls.
	KindToolCalls Kind = iota
	// KindClarify: the turn asks the human a question.
	KindClarify
	// KindComplete: the turn declares the project finished.
	KindComplete
	// KindApprove: QA accepts the implementation.
	KindApprove
	// KindReject: QA sends the implementation back for rework.
	KindReject
	// KindHandoff: plain content, pass control to the next role.
	KindHandoff
)

func (k Kind) String() string {
	switch k {
	case KindToolCalls:
		return "tool_calls"
	case KindClarify:
		return "clarify"
	case KindComplete:
		return "complete"
	case KindApprove:
		return "approve"
	case KindReject:
		return "reject"
	case KindHandoff:
		return "handoff"
	default:
		return "invalid"
	}
}

// Classification is the routing decision for one turn. Text carries the
// human-facing remainder with any sentinel marker stripped.
type Classification struct {
	Kind Kind
	Text string
}

// Classify inspects a turn and decides its routing class. Rules, in
// priority order: tool calls, clarification sentinel, completion
// sentinel, QA verdict markers, plain handoff.
func Classify(turn *proto.Turn) Classification {
	if turn.HasToolCalls() {
		return Classification{Kind: KindToolCalls}
	}

	content := strings.TrimSpace(turn.Content)

	if text, ok := stripSentinel(content, team.SentinelClarification); ok {
		return Classification{Kind: KindClarify, Text: text}
	}
	if text, ok := stripSentinel(content, team.SentinelCompleted); ok {
		return Classification{Kind: KindComplete, Text: text}
	}
	if turn.Node == team.RoleQA {
		if text, ok := stripSentinel(content, team.SentinelQAApproved); ok {
			return Classification{Kind: KindApprove, Text: text}
		}
		if text, ok := stripSentinel(content, team.SentinelQARejected); ok {
			return Classification{Kind: KindReject, Text: text}
		}
	}

	return Classification{Kind: KindHandoff, Text: content}
}

// stripSentinel removes marker from content wherever it appears and
// returns the trimmed remainder. Models sometimes wrap the marker in
// preamble text, so substring matching is deliberate.
func stripSentinel(content, marker string) (string, bool) {
	idx := strings.Index(content, marker)
	if idx < 0 {
		return "", false
	}
	// Preserve any preamble before the marker.
	preamble := strings.TrimSpace(content[:idx])
	remainder := strings.TrimSpace(content[idx+len(marker):])
	remainder = strings.TrimSpace(strings.TrimPrefix(remainder, ":"))
	switch {
	case preamble == "":
		return remainder, true
	case remainder == "":
		return preamble, true
	default:
		return preamble + " " + remainder, true
	}
}
