package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/haasonsaas/aiwhisperer/internal/errs"
	"github.com/haasonsaas/aiwhisperer/internal/tooling"
	"github.com/haasonsaas/aiwhisperer/pkg/models"
)

// Mode controls one Run's execution semantics, spec.md §4.7's four modes.
type Mode struct {
	// StopOnError halts the run at the first failed step instead of
	// continuing to the end.
	StopOnError bool

	// DryRun resolves and interpolates every step without invoking the
	// Tool Runtime, reporting what would have run.
	DryRun bool

	// PassContext merges a step result's "_context" object into a dict
	// threaded into subsequent steps' interpolation, via {{context.field}}.
	PassContext bool

	// ValidateFirst validates the whole script up front before running any
	// step, in addition to the per-step validation done right before each
	// step runs.
	ValidateFirst bool
}

// StepResult is one step's outcome within a Report.
type StepResult struct {
	Index    int
	Action   string
	Success  bool
	Data     any
	Error    string
	Duration time.Duration
}

// Report is the result envelope spec.md §4.7 calls for:
// {success, completed, failed, total, per_step[]}.
type Report struct {
	Success   bool
	Completed int
	Failed    int
	Total     int
	PerStep   []StepResult
}

// ProgressFunc is invoked after each step completes.
type ProgressFunc func(index, total int, result StepResult)

// Executor runs a parsed, validated Script sequentially against the Tool
// Runtime, bypassing the LLM entirely (spec.md §4.7).
type Executor struct {
	dispatcher *tooling.Dispatcher
}

// NewExecutor builds an Executor that dispatches tool calls through
// dispatcher.
func NewExecutor(dispatcher *tooling.Dispatcher) *Executor {
	return &Executor{dispatcher: dispatcher}
}

// Run executes script's steps in order. A step with Command set and no
// Action is resolved through InterpretCommand first.
func (e *Executor) Run(ctx context.Context, script *Script, mode Mode, progress ProgressFunc) (*Report, error) {
	if mode.ValidateFirst {
		if err := Validate(script); err != nil {
			return nil, err
		}
	}

	report := &Report{Total: len(script.Steps)}
	results := make([]any, len(script.Steps))
	contextValues := map[string]any{}

	for i, step := range script.Steps {
		start := time.Now()

		if err := validateStep(step); err != nil {
			res := StepResult{Index: i, Error: err.Error(), Duration: time.Since(start)}
			e.finish(report, res, progress)
			if mode.StopOnError {
				break
			}
			continue
		}

		action, params, err := resolveStep(step)
		if err != nil {
			res := StepResult{Index: i, Error: err.Error(), Duration: time.Since(start)}
			e.finish(report, res, progress)
			if mode.StopOnError {
				break
			}
			continue
		}

		if step.Command != "" {
			// action/params were just derived from a natural-language
			// command; validate.go never saw them, so check now.
			if err := Validate(&Script{Steps: []Step{{Action: action, Params: params}}}); err != nil {
				res := StepResult{Index: i, Action: action, Error: err.Error(), Duration: time.Since(start)}
				e.finish(report, res, progress)
				if mode.StopOnError {
					break
				}
				continue
			}
		}

		interpolated := interpolateParams(params, results, contextValues)

		var res StepResult
		if mode.DryRun {
			res = StepResult{
				Index:   i,
				Action:  action,
				Success: true,
				Data:    map[string]any{"dry_run": true, "action": action, "params": interpolated},
			}
		} else {
			res = e.invoke(ctx, i, action, interpolated)
		}
		res.Duration = time.Since(start)
		results[i] = res.Data

		if mode.PassContext {
			mergeContext(contextValues, res.Data)
		}

		e.finish(report, res, progress)
		if !res.Success && mode.StopOnError {
			break
		}
	}

	report.Success = report.Failed == 0
	return report, nil
}

func (e *Executor) finish(report *Report, res StepResult, progress ProgressFunc) {
	report.PerStep = append(report.PerStep, res)
	if res.Success {
		report.Completed++
	} else {
		report.Failed++
	}
	if progress != nil {
		progress(res.Index, report.Total, res)
	}
}

// resolveStep returns a step's {action, params}, running the
// natural-language interpreter when only Command is set.
func resolveStep(step Step) (action string, params map[string]any, err error) {
	if step.Action != "" {
		return step.Action, step.Params, nil
	}
	action, params, ok := InterpretCommand(step.Command)
	if !ok {
		return "", nil, errs.New(errs.KindSyntaxError, "could not interpret command: "+step.Command)
	}
	return action, params, nil
}

func (e *Executor) invoke(ctx context.Context, index int, action string, params map[string]any) StepResult {
	argsJSON, err := json.Marshal(params)
	if err != nil {
		return StepResult{Index: index, Action: action, Error: err.Error()}
	}

	call := models.ToolCall{ID: fmt.Sprintf("batch_%d", index), Name: action, Arguments: argsJSON}
	results := e.dispatcher.DispatchSequential(ctx, []models.ToolCall{call})
	r := results[0]

	if !r.Envelope.OK {
		return StepResult{Index: index, Action: action, Error: r.Envelope.Message}
	}
	return StepResult{Index: index, Action: action, Success: true, Data: r.Envelope.Data}
}

func mergeContext(contextValues map[string]any, data any) {
	dataMap, ok := data.(map[string]any)
	if !ok {
		return
	}
	sub, ok := dataMap["_context"].(map[string]any)
	if !ok {
		return
	}
	for k, v := range sub {
		contextValues[k] = v
	}
}

var (
	resultsRefPattern = regexp.MustCompile(`\{\{results\[(\d+)\]\.([a-zA-Z0-9_.\[\]]+)\}\}`)
	contextRefPattern = regexp.MustCompile(`\{\{context\.([a-zA-Z0-9_.\[\]]+)\}\}`)
)

// interpolateParams resolves {{results[i].field}} and {{context.field}}
// references in step params against prior step outputs and the
// pass_context dict, spec.md §4.7.
func interpolateParams(params map[string]any, results []any, contextValues map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = interpolateValue(v, results, contextValues)
	}
	return out
}

func interpolateValue(v any, results []any, contextValues map[string]any) any {
	switch val := v.(type) {
	case string:
		return interpolateString(val, results, contextValues)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = interpolateValue(child, results, contextValues)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = interpolateValue(child, results, contextValues)
		}
		return out
	default:
		return v
	}
}

func interpolateString(s string, results []any, contextValues map[string]any) string {
	s = resultsRefPattern.ReplaceAllStringFunc(s, func(m string) string {
		groups := resultsRefPattern.FindStringSubmatch(m)
		idx, err := strconv.Atoi(groups[1])
		if err != nil || idx < 0 || idx >= len(results) || results[idx] == nil {
			return m
		}
		data, err := json.Marshal(results[idx])
		if err != nil {
			return m
		}
		val := gjson.GetBytes(data, groups[2])
		if !val.Exists() {
			return m
		}
		return val.String()
	})

	return contextRefPattern.ReplaceAllStringFunc(s, func(m string) string {
		groups := contextRefPattern.FindStringSubmatch(m)
		data, err := json.Marshal(contextValues)
		if err != nil {
			return m
		}
		val := gjson.GetBytes(data, groups[1])
		if !val.Exists() {
			return m
		}
		return val.String()
	})
}
