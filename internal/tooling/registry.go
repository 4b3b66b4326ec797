package tooling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/aiwhisperer/internal/errs"
)

// MaxToolIDLength bounds tool identifiers accepted by Register.
const MaxToolIDLength = 256

// MaxParamsSize bounds the serialized size of a single tool call's
// parameters, guarding against a runaway model argument.
const MaxParamsSize = 10 << 20 // 10 MiB

// Registry is the Tool Invocation Runtime's dispatch table: an immutable
// (post-startup) set of tools keyed by ID, with compiled JSON schemas
// cached at registration time so argument validation never recompiles a
// schema on the hot path.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry returns an empty Registry ready for Register calls.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds tool to the registry, compiling its schema up front so a
// malformed schema fails at startup rather than on first invocation.
// Registering a tool under an ID already present replaces it; callers that
// need strict immutability should check Get first.
func (r *Registry) Register(tool Tool) error {
	id := tool.ID()
	if id == "" {
		return errs.New(errs.KindInvalidConfiguration, "tool ID must not be empty")
	}
	if len(id) > MaxToolIDLength {
		return errs.New(errs.KindInvalidConfiguration, fmt.Sprintf("tool ID exceeds %d characters", MaxToolIDLength))
	}

	compiled, err := compileSchema(id, tool.Schema())
	if err != nil {
		return errs.Wrap(errs.KindInvalidConfiguration, err, "tool schema failed to compile").WithFilePath(id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[id] = tool
	r.schemas[id] = compiled
	return nil
}

// Unregister removes a tool. Within the module only the registry tests
// call it.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, id)
	delete(r.schemas, id)
}

// Get returns the tool registered under id, if any.
func (r *Registry) Get(id string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// List returns every registered tool in no particular order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}

// Descriptor is the wire-level shape exposed to an LLM provider for tool
// advertisement: id, description, and schema, with instructions folded in
// when a tool implements Instructed.
type Descriptor struct {
	ID           string          `json:"id"`
	Description  string          `json:"description"`
	Schema       json.RawMessage `json:"schema"`
	Instructions string          `json:"instructions,omitempty"`
}

// Descriptors projects every registered tool into its LLM-facing
// advertisement shape.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.tools))
	for id, t := range r.tools {
		d := Descriptor{ID: id, Description: t.Description(), Schema: t.Schema()}
		if ins, ok := t.(Instructed); ok {
			d.Instructions = ins.Instructions()
		}
		out = append(out, d)
	}
	return out
}

func compileSchema(id string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	compiler := jsonschema.NewCompiler()
	resource := "mem://tools/" + id + ".json"
	if err := compiler.AddResource(resource, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(resource)
}
