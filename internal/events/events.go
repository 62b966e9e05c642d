// Package events defines the closed set of agent events and the adapter that
// turns framework callback payloads into them.
//
// Event is a sealed interface: only the types in this package implement it,
// and a type switch over Event is exhaustive. Nothing outside adapter.go reads
// framework-shaped data.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind names an event type on the wire
type Kind string

const (
	KindToolCall     Kind = "tool_call"
	KindToolResponse Kind = "tool_response"
	KindThought      Kind = "agent_thinking"
	KindFinalAnswer  Kind = "final_response"
	KindError        Kind = "error"
	KindTokenUsage   Kind = "token_usage"
	KindCodeProposal Kind = "code_proposal"
)

// Event is one step of an agent execution
type Event interface {
	Kind() Kind
	sealed()
}

// ToolCall is an invocation of a tool or, when IsAgent is set, a sub-agent
type ToolCall struct {
	Tool    string         `json:"tool"`
	Alias   string         `json:"tool_name"`
	IsAgent bool           `json:"is_agent"`
	Args    map[string]any `json:"args,omitempty"`
}

// ToolResponse is the result of a ToolCall, reduced to a one-line summary
type ToolResponse struct {
	Tool    string `json:"tool"`
	Alias   string `json:"tool_name"`
	IsAgent bool   `json:"is_agent"`
	Summary string `json:"response_summary"`
}

// Thought is intermediate agent reasoning text
type Thought struct {
	Text string `json:"thought"`
}

// FinalAnswer is a piece of the agent's final response
type FinalAnswer struct {
	Text string `json:"text"`
}

// Error reports a failure inside the agent run
type Error struct {
	Code    string `json:"error_code,omitempty"`
	Message string `json:"message"`
}

// TokenUsage reports model token counts for one step
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CandidatesTokens int `json:"candidates_tokens"`
	ThoughtsTokens   int `json:"thoughts_tokens"`
	CachedTokens     int `json:"cached_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CodeProposal announces a pending file edit awaiting accept or reject
type CodeProposal struct {
	ProposalID      string `json:"proposal_id"`
	FilePath        string `json:"file_path"`
	OriginalContent string `json:"original_content"`
	ProposedContent string `json:"proposed_content"`
}

func (ToolCall) Kind() Kind     { return KindToolCall }
func (ToolResponse) Kind() Kind { return KindToolResponse }
func (Thought) Kind() Kind      { return KindThought }
func (FinalAnswer) Kind() Kind  { return KindFinalAnswer }
func (Error) Kind() Kind        { return KindError }
func (TokenUsage) Kind() Kind   { return KindTokenUsage }
func (CodeProposal) Kind() Kind { return KindCodeProposal }

func (ToolCall) sealed()     {}
func (ToolResponse) sealed() {}
func (Thought) sealed()      {}
func (FinalAnswer) sealed()  {}
func (Error) sealed()        {}
func (TokenUsage) sealed()   {}
func (CodeProposal) sealed() {}

// Record is an event stamped with its time and the agent that produced it
type Record struct {
	Timestamp time.Time
	Agent     string
	Event     Event
}

type wireRecord struct {
	Type      Kind            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Agent     string          `json:"agent"`
	Data      json.RawMessage `json:"data"`
}

// MarshalJSON encodes the record as {type, timestamp, agent, data}
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Event == nil {
		return nil, fmt.Errorf("record has no event")
	}
	data, err := json.Marshal(r.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireRecord{
		Type:      r.Event.Kind(),
		Timestamp: r.Timestamp,
		Agent:     r.Agent,
		Data:      data,
	})
}

// UnmarshalJSON decodes the data payload into the concrete type named by type
func (r *Record) UnmarshalJSON(b []byte) error {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ev, err := decodeEvent(w.Type, w.Data)
	if err != nil {
		return err
	}
	r.Timestamp = w.Timestamp
	r.Agent = w.Agent
	r.Event = ev
	return nil
}

func decodeEvent(kind Kind, data json.RawMessage) (Event, error) {
	switch kind {
	case KindToolCall:
		return decodeAs[ToolCall](data)
	case KindToolResponse:
		return decodeAs[ToolResponse](data)
	case KindThought:
		return decodeAs[Thought](data)
	case KindFinalAnswer:
		return decodeAs[FinalAnswer](data)
	case KindError:
		return decodeAs[Error](data)
	case KindTokenUsage:
		return decodeAs[TokenUsage](data)
	case KindCodeProposal:
		return decodeAs[CodeProposal](data)
	default:
		return nil, fmt.Errorf("unknown event type %q", kind)
	}
}

func decodeAs[T Event](data json.RawMessage) (Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}
