package tooling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/aiwhisperer/internal/errs"
	"github.com/haasonsaas/aiwhisperer/internal/observability"
	"github.com/haasonsaas/aiwhisperer/pkg/models"
)

// Call pairs an inbound tool_call with the index it appeared at in the
// assistant message, so dispatch can run concurrently while still
// reporting results back in model-emitted order (spec.md §4.1 "Dispatch
// ordering").
type Call struct {
	Index    int
	ToolCall models.ToolCall
}

// CallResult is one tool call's outcome, keyed back to its ToolCallID so
// the caller can build the matching tool-result messages.
type CallResult struct {
	Index      int
	ToolCallID string
	Envelope   Envelope
	Duration   time.Duration
	TimedOut   bool
}

// DispatchConfig controls the runtime's execution policy.
type DispatchConfig struct {
	// Concurrency bounds how many tool calls run at once. Default 4.
	Concurrency int

	// PerCallTimeout bounds a single tool's execution. Default 30s.
	PerCallTimeout time.Duration
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.PerCallTimeout <= 0 {
		c.PerCallTimeout = 30 * time.Second
	}
	return c
}

// Dispatcher executes tool calls against a Registry.
type Dispatcher struct {
	registry *Registry
	config   DispatchConfig
	recorder *observability.EventRecorder
}

// NewDispatcher builds a Dispatcher bound to registry. recorder may be nil,
// in which case lifecycle events are not emitted.
func NewDispatcher(registry *Registry, config DispatchConfig, recorder *observability.EventRecorder) *Dispatcher {
	return &Dispatcher{registry: registry, config: config.withDefaults(), recorder: recorder}
}

// DispatchAll runs every call concurrently (bounded by Concurrency) and
// returns results in the same order the calls were supplied in, matching
// spec.md §4.1's ordering guarantee for multi-tool-call assistant turns.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []models.ToolCall) []CallResult {
	results := make([]CallResult, len(calls))
	sem := make(chan struct{}, d.config.Concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = CallResult{
					Index:      idx,
					ToolCallID: tc.ID,
					Envelope:   errEnvelope(errs.New(errs.KindProcessingTimeout, "context canceled before dispatch")),
				}
				return
			}

			r := d.dispatchOne(ctx, call)
			r.Index = idx
			results[idx] = r
		}(i, call)
	}

	wg.Wait()
	return results
}

// DispatchSequential runs calls one at a time, in order, used by batch
// script steps where pass_context requires the previous step's output.
func (d *Dispatcher) DispatchSequential(ctx context.Context, calls []models.ToolCall) []CallResult {
	results := make([]CallResult, len(calls))
	for i, call := range calls {
		r := d.dispatchOne(ctx, call)
		r.Index = i
		results[i] = r
	}
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call models.ToolCall) CallResult {
	start := time.Now()

	if d.recorder != nil {
		d.recorder.Record(ctx, observability.SessionIDFromContext(ctx), observability.EventToolExecutionStart, map[string]any{
			"tool_call_id": call.ID,
			"tool":         call.Name,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, d.config.PerCallTimeout)
	defer cancel()

	env, timedOut := d.invoke(callCtx, call)
	duration := time.Since(start)

	if d.recorder != nil {
		d.recorder.Record(ctx, observability.SessionIDFromContext(ctx), observability.EventToolExecutionEnd, map[string]any{
			"tool_call_id": call.ID,
			"tool":         call.Name,
			"ok":           env.OK,
			"duration_ms":  duration.Milliseconds(),
		})
	}

	return CallResult{
		Index:      0,
		ToolCallID: call.ID,
		Envelope:   env,
		Duration:   duration,
		TimedOut:   timedOut,
	}
}

// invoke validates arguments against the tool's compiled schema, then
// executes it, translating every failure into the {ok:false, ...} envelope
// rather than a bare Go error — tool failures are data, not exceptions,
// from the AI Loop's point of view.
func (d *Dispatcher) invoke(ctx context.Context, call models.ToolCall) (Envelope, bool) {
	if len(call.Arguments) > MaxParamsSize {
		return errEnvelope(errs.New(errs.KindToolArgsInvalid, fmt.Sprintf("arguments exceed %d bytes", MaxParamsSize))), false
	}

	d.registry.mu.RLock()
	tool, ok := d.registry.tools[call.Name]
	schema := d.registry.schemas[call.Name]
	d.registry.mu.RUnlock()

	if !ok {
		return errEnvelope(errs.New(errs.KindToolNotFound, fmt.Sprintf("no tool registered with id %q", call.Name)).
			WithSuggestions("check the tool name against the advertised tool list")), false
	}

	if schema != nil {
		var v any
		if err := json.Unmarshal(call.Arguments, &v); err != nil {
			return errEnvelope(errs.Wrap(errs.KindInvalidArguments, err, "arguments are not valid JSON")), false
		}
		if err := schema.Validate(v); err != nil {
			return errEnvelope(errs.Wrap(errs.KindInvalidArguments, err, "arguments failed schema validation").
				WithSuggestions("re-check required fields and types against the tool schema")), false
		}
	}

	resultCh := make(chan struct {
		res *Result
		err error
	}, 1)

	go func() {
		res, err := tool.Execute(ctx, call.Arguments)
		select {
		case resultCh <- struct {
			res *Result
			err error
		}{res, err}:
		default:
		}
	}()

	select {
	case <-ctx.Done():
		timedOut := ctx.Err() == context.DeadlineExceeded
		kind := errs.KindProcessingTimeout
		msg := "tool execution canceled"
		if timedOut {
			msg = "tool execution timed out"
		}
		return errEnvelope(errs.New(kind, msg)), timedOut
	case out := <-resultCh:
		if out.err != nil {
			if e, ok := errs.As(out.err); ok {
				return errEnvelope(e), false
			}
			return errEnvelope(errs.Wrap(errs.KindToolExecutionError, out.err, "")), false
		}
		return Envelope{OK: true, Data: toolResultData(out.res)}, false
	}
}

func toolResultData(r *Result) any {
	if r == nil {
		return nil
	}
	if r.Data != nil {
		return r.Data
	}
	return r.Text
}

func errEnvelope(e *errs.Error) Envelope {
	return Envelope{
		OK:          false,
		ErrorType:   string(e.Kind),
		Message:     e.Message,
		Suggestions: e.Suggestions,
	}
}
