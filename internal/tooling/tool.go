// Package tooling implements the Tool Invocation Runtime (spec.md §4.1):
// a uniform dispatch surface shared by every registered tool, with
// JSON-Schema argument validation and a structured error envelope.
package tooling

import (
	"context"
	"encoding/json"
)

// Tool is the single interface every tool implements, modeled as a value
// rather than discovered through reflection (spec.md §9 "Dynamic dispatch
// over tools"), mirroring internal/agent/provider_types.go's Tool shape.
type Tool interface {
	// ID returns the tool's unique identifier.
	ID() string

	// Description returns a natural-language description the LLM uses to
	// decide when to call the tool.
	Description() string

	// Schema returns the JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool against validated parameters.
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Categorized is implemented by tools that declare a category/tag set
// (spec.md §3 "Tool"). Optional — tools that don't implement it are
// treated as category "".
type Categorized interface {
	Category() string
	Tags() []string
}

// Instructed is implemented by tools carrying extra AI-facing usage
// instructions beyond their schema (spec.md §4.1 "the registry exposes...
// each tool's schema + AI-prompt instructions").
type Instructed interface {
	Instructions() string
}

// Result is a tool's successful output, wrapped by the runtime into the
// uniform envelope spec.md §4.1 describes.
type Result struct {
	// Data is the JSON-encodable structured result, when the tool
	// produces one.
	Data any `json:"data,omitempty"`

	// Text is a human-readable result, when the tool produces one
	// instead of (or alongside) Data.
	Text string `json:"text,omitempty"`
}

// Envelope is the outcome the Dispatcher reports for every tool call: either
// {ok:true, data} or {ok:false, error_type, message, suggestions[]}.
type Envelope struct {
	OK          bool     `json:"ok"`
	Data        any      `json:"data,omitempty"`
	ErrorType   string   `json:"error_type,omitempty"`
	Message     string   `json:"message,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}
