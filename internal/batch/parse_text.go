package batch

import "strings"

// parseText builds one Step per non-blank, non-comment line. Each line is
// kept verbatim as Step.Command; translating it into {action, params} is
// the interpreter's job (interpreter.go), run at execution time so the
// same natural-language resolution also applies to {command: "..."} steps
// embedded in JSON/YAML scripts.
func parseText(data []byte) *Script {
	lines := strings.Split(string(data), "\n")
	steps := make([]Step, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		steps = append(steps, Step{Command: line})
	}
	return &Script{Format: FormatText, Steps: steps}
}
