package batch

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/haasonsaas/aiwhisperer/internal/errs"
)

const (
	maxSteps            = 1000
	maxFileContentBytes = 1 << 20 // 1 MiB
)

// allowedActions is spec.md §4.7's allow-list.
var allowedActions = map[string]bool{
	"list_files":   true,
	"read_file":    true,
	"create_file":  true,
	"write_file":   true,
	"search_files": true,
	"switch_agent": true,
	"list_agents":  true,
	"get_status":   true,
}

// deniedActions are explicitly rejected even though nothing would stop
// the Tool Runtime from running them, per spec.md §4.7.
var deniedActions = map[string]bool{
	"delete_file":   true,
	"execute_shell": true,
	"eval":          true,
}

var reservedDeviceNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true,
	"lpt1": true, "lpt2": true, "lpt3": true,
}

var systemPathPrefixes = []string{
	"/etc", "/proc", "/sys", "/dev", "/root", "/boot",
	"c:\\windows", "c:\\program files",
}

// dangerousShellPatterns catches destructive shell idioms inside raw text
// commands the natural-language interpreter doesn't recognize and which
// would otherwise fall through to Step.Command unexamined.
var dangerousShellPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf`),
	regexp.MustCompile(`dd\s+if=`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`), // fork bomb
	regexp.MustCompile(`mkfs\.`),
	regexp.MustCompile(`(?i)\bsudo\b`),
	regexp.MustCompile(`\bchmod\s+-R\s+777\b`),
}

// Validate runs spec.md §4.7's pre-execution validation over every step of
// script: step count, action allow-list, path-parameter safety, file
// content size, and dangerous-shell-pattern scanning.
func Validate(script *Script) error {
	if len(script.Steps) > maxSteps {
		return errs.New(errs.KindInvalidConfiguration, "script exceeds 1000 step limit").WithStage("batch_validate")
	}
	for i, step := range script.Steps {
		if err := validateStep(step); err != nil {
			if e, ok := errs.As(err); ok {
				return errs.New(e.Kind, fmt.Sprintf("step %d: %s", i, e.Message)).WithStage("batch_validate")
			}
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.Action != "" {
		if deniedActions[step.Action] {
			return errs.New(errs.KindDangerousCommand, "action \""+step.Action+"\" is not permitted in batch scripts")
		}
		if !allowedActions[step.Action] {
			return errs.New(errs.KindDangerousCommand, "action \""+step.Action+"\" is not in the batch allow-list")
		}
		if depth := valueDepth(step.Params); depth > maxParamDepth {
			return errs.New(errs.KindNestingTooDeep, "step parameters exceed depth limit of 10")
		}
		if err := validateParamValue(step.Params); err != nil {
			return err
		}
		if err := validateContentSize(step); err != nil {
			return err
		}
	}
	if step.Command != "" {
		if err := scanDangerousShell(step.Command); err != nil {
			return err
		}
	}
	return nil
}

func validateContentSize(step Step) error {
	content, ok := step.Params["content"].(string)
	if !ok {
		return nil
	}
	if len(content) > maxFileContentBytes {
		return errs.New(errs.KindDiskFull, "file content exceeds 1 MiB limit")
	}
	return nil
}

func scanDangerousShell(command string) error {
	for _, pattern := range dangerousShellPatterns {
		if pattern.MatchString(command) {
			return errs.New(errs.KindDangerousCommand, "command matches a disallowed shell pattern: "+command)
		}
	}
	return nil
}

// validateParamValue recursively scans a decoded params tree for unsafe
// path-like strings, regardless of which key holds them.
func validateParamValue(v any) error {
	switch val := v.(type) {
	case string:
		return validatePathString(val)
	case map[string]any:
		for _, child := range val {
			if err := validateParamValue(child); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range val {
			if err := validateParamValue(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func validatePathString(s string) error {
	if strings.ContainsRune(s, 0) {
		return errs.New(errs.KindInvalidPath, "parameter contains a null byte")
	}
	if strings.Contains(s, "..") {
		return errs.New(errs.KindInvalidPath, "parameter contains a path traversal sequence")
	}
	for _, metachar := range []string{"$(", "`", "${"} {
		if strings.Contains(s, metachar) {
			return errs.New(errs.KindDangerousCommand, "parameter contains a command-substitution metacharacter")
		}
	}

	lower := strings.ToLower(s)
	for _, prefix := range systemPathPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return errs.New(errs.KindPermissionDenied, "parameter points into a system directory: "+s)
		}
	}

	base := strings.ToLower(strings.TrimSuffix(filepath.Base(s), filepath.Ext(s)))
	if reservedDeviceNames[base] {
		return errs.New(errs.KindInvalidPath, "parameter uses a reserved device name: "+s)
	}
	return nil
}
