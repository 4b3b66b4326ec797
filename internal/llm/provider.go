// Package llm provides the LLM provider abstraction the AI Interaction Loop
// (spec.md §4.3) drives: a uniform streaming Complete() call backed by
// concrete Anthropic and OpenAI implementations.
package llm

import (
	"context"

	"github.com/haasonsaas/aiwhisperer/pkg/models"
)

// Provider is the interface every backend LLM implements. Implementations
// must be safe for concurrent use; the AI Loop may have several sessions
// in flight against the same Provider.
type Provider interface {
	// Name identifies the provider for routing, logging, and metrics
	// ("anthropic", "openai").
	Name() string

	// Complete sends req and returns a channel of streamed chunks. The
	// channel is closed when the stream ends, successfully or not; a
	// terminal chunk always has Done=true or a non-nil Error.
	Complete(ctx context.Context, req *Request) (<-chan *Chunk, error)
}

// Request is one turn's worth of input to a Provider.
type Request struct {
	// Model selects the backend model; if empty the provider's default
	// is used.
	Model string

	// System is the system prompt.
	System string

	// Temperature controls sampling randomness. Providers apply their
	// own default when HasTemperature is false.
	Temperature    float64
	HasTemperature bool

	// Messages is the conversation history in chronological order.
	Messages []models.Message

	// Tools are the tool descriptors advertised to the model this turn.
	Tools []ToolDescriptor

	// MaxTokens bounds the generated response length; 0 uses the
	// provider's default.
	MaxTokens int
}

// ToolDescriptor is the wire shape a Provider needs to advertise one tool,
// mirroring internal/tooling.Descriptor without importing that package
// (providers should not depend on the tool runtime).
type ToolDescriptor struct {
	ID          string
	Description string
	Schema      []byte
}

// Chunk is one piece of a streamed completion.
type Chunk struct {
	// Text is partial response text.
	Text string

	// ToolCall is a complete tool invocation request, emitted once its
	// arguments have fully streamed in.
	ToolCall *models.ToolCall

	// Done is true on the final chunk of a successful stream.
	Done bool

	// FinishReason is populated on the Done chunk.
	FinishReason models.FinishReason

	// InputTokens/OutputTokens are populated on the Done chunk, when the
	// provider reports usage.
	InputTokens  int
	OutputTokens int

	// Err terminates the stream when non-nil; no further chunks follow.
	Err error
}

// Registry maps provider name to Provider, giving the AI Loop's failover
// chain (SPEC_FULL.md's SUPPLEMENTED FEATURES section) a lookup surface across configured
// backends.
type Registry struct {
	providers map[string]Provider
	order     []string
}

// NewRegistry builds a Registry from providers in preference order; the
// first entry is the primary, the rest are failover candidates.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
		r.order = append(r.order, p.Name())
	}
	return r
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// Primary returns the first provider in preference order, if any.
func (r *Registry) Primary() (Provider, bool) {
	if len(r.order) == 0 {
		return nil, false
	}
	return r.providers[r.order[0]], true
}

// Failovers returns every provider after the primary, in preference
// order.
func (r *Registry) Failovers() []Provider {
	if len(r.order) <= 1 {
		return nil
	}
	out := make([]Provider, 0, len(r.order)-1)
	for _, name := range r.order[1:] {
		out = append(out, r.providers[name])
	}
	return out
}
