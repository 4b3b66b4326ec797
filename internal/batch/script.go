// Package batch implements the Batch Script Runtime (spec.md §4.7): a
// parser for JSON/YAML/text scripts, pre-execution validation against an
// allow-list and path-safety rules, and a sequential executor that drives
// the Tool Runtime directly, bypassing the LLM.
package batch

import (
	"strings"

	"github.com/haasonsaas/aiwhisperer/internal/errs"
)

// Format is the batch script's source encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// Step is one script entry: either a direct tool invocation (Action set)
// or a natural-language command resolved at execution time (Command set).
type Step struct {
	Action  string
	Command string
	Params  map[string]any
}

// Script is a parsed batch script, spec.md §3's "Batch Script (parsed)".
type Script struct {
	Format      Format
	Name        string
	Description string
	Steps       []Step
}

const maxScriptBytes = 1 << 20 // 1 MiB, spec.md §3 "file size ≤ 1 MiB"

// ParseScript detects script's format from filename's extension, falling
// back to content-sniffing, and parses accordingly.
func ParseScript(data []byte, filename string) (*Script, error) {
	if len(data) > maxScriptBytes {
		return nil, errs.New(errs.KindEncodingError, "script exceeds 1 MiB size limit")
	}

	switch detectFormat(filename, data) {
	case FormatJSON:
		return parseJSON(data)
	case FormatYAML:
		return parseYAML(data)
	default:
		return parseText(data), nil
	}
}

func detectFormat(filename string, data []byte) Format {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".json"):
		return FormatJSON
	case strings.HasSuffix(lower, ".yml"), strings.HasSuffix(lower, ".yaml"):
		return FormatYAML
	case strings.HasSuffix(lower, ".txt"), strings.HasSuffix(lower, ".script"):
		return FormatText
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		return FormatJSON
	}
	if looksLikeYAML(trimmed) {
		return FormatYAML
	}
	return FormatText
}

// looksLikeYAML is a cheap content-sniff: a "key: value" or "key:\n" line
// at the start of the document, without being valid JSON.
func looksLikeYAML(trimmed string) bool {
	firstLine := trimmed
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		firstLine = trimmed[:idx]
	}
	firstLine = strings.TrimSpace(firstLine)
	if firstLine == "" || strings.HasPrefix(firstLine, "#") {
		return false
	}
	return strings.Contains(firstLine, ":") && !strings.HasPrefix(firstLine, "{")
}

// stepFromMap builds a Step from a decoded step object, pulling the
// reserved "action"/"command" keys out and leaving the rest as params.
func stepFromMap(m map[string]any) Step {
	step := Step{Params: make(map[string]any)}
	for k, v := range m {
		switch k {
		case "action":
			step.Action, _ = v.(string)
		case "command":
			step.Command, _ = v.(string)
		default:
			step.Params[k] = v
		}
	}
	return step
}

// scriptFromRaw builds a Script from a generically-decoded top-level
// object, shared by the JSON and YAML parsers.
func scriptFromRaw(raw map[string]any, format Format) (*Script, error) {
	name, _ := raw["name"].(string)
	if name == "" {
		return nil, errs.New(errs.KindSyntaxError, "script requires a top-level \"name\"")
	}
	description, _ := raw["description"].(string)

	stepsRaw, _ := raw["steps"].([]any)
	steps := make([]Step, 0, len(stepsRaw))
	for _, s := range stepsRaw {
		m, ok := s.(map[string]any)
		if !ok {
			return nil, errs.New(errs.KindSyntaxError, "each step must be an object")
		}
		steps = append(steps, stepFromMap(m))
	}

	return &Script{Format: format, Name: name, Description: description, Steps: steps}, nil
}

// valueDepth measures the nesting depth of a generically-decoded JSON/YAML
// value, used to enforce spec.md §3's "parameter sub-tree depth ≤ 10".
func valueDepth(v any) int {
	switch val := v.(type) {
	case map[string]any:
		max := 0
		for _, child := range val {
			if d := valueDepth(child); d > max {
				max = d
			}
		}
		return max + 1
	case []any:
		max := 0
		for _, child := range val {
			if d := valueDepth(child); d > max {
				max = d
			}
		}
		return max + 1
	default:
		return 0
	}
}
