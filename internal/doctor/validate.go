package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// CheckStatus is a single check's outcome, spec.md §4.9's
// "pass,warning,fail,info" enum.
type CheckStatus string

const (
	StatusPass    CheckStatus = "pass"
	StatusWarning CheckStatus = "warning"
	StatusFail    CheckStatus = "fail"
	StatusInfo    CheckStatus = "info"
)

var statusRank = map[CheckStatus]int{
	StatusPass:    0,
	StatusInfo:    1,
	StatusWarning: 2,
	StatusFail:    3,
}

// Check is one validator finding.
type Check struct {
	Name           string
	Category       string
	Status         CheckStatus
	Message        string
	Recommendation string
}

// Report is the Validator's aggregate result: every check plus the
// worst status among them.
type Report struct {
	Checks  []Check
	Overall CheckStatus
}

// DependencyProbe names a critical runtime dependency and a function
// that reports whether it is reachable.
type DependencyProbe struct {
	Name  string
	Probe func(ctx context.Context) error
}

// ValidatorConfig is the Validator's input: everything it needs to know
// about the workspace it is checking, gathered by the caller so this
// package never imports the config layer directly.
type ValidatorConfig struct {
	WorkspacePath string
	// RequiredEnvVars are checked for presence only; their values are
	// never read into a Check message.
	RequiredEnvVars []string
	// RequiredConfigKeys maps a human-readable key name to its already
	// resolved value; an empty value is reported as missing.
	RequiredConfigKeys map[string]string
	Dependencies       []DependencyProbe
}

// expectedWorkspaceDirs are the directories a workspace is expected to
// have, spec.md §6's on-disk layout under .WHISPER.
var expectedWorkspaceDirs = []string{
	".WHISPER",
	filepath.Join(".WHISPER", "rfc", "in_progress"),
	filepath.Join(".WHISPER", "rfc", "archived"),
	filepath.Join(".WHISPER", "plans", "in_progress"),
	filepath.Join(".WHISPER", "plans", "archived"),
	filepath.Join(".WHISPER", "logs"),
	filepath.Join(".WHISPER", "state"),
	filepath.Join(".WHISPER", "output"),
}

// Validate runs every static and runtime self-test spec.md §4.9
// describes and returns their aggregate Report.
func Validate(ctx context.Context, cfg ValidatorConfig) Report {
	var checks []Check
	checks = append(checks, checkWorkspaceDirectories(cfg.WorkspacePath)...)
	checks = append(checks, checkRequiredConfigKeys(cfg.RequiredConfigKeys)...)
	checks = append(checks, checkEnvVars(cfg.RequiredEnvVars)...)
	checks = append(checks, checkWritePermissions(cfg.WorkspacePath)...)
	checks = append(checks, checkDependencies(ctx, cfg.Dependencies)...)
	return Report{Checks: checks, Overall: worstStatus(checks)}
}

func worstStatus(checks []Check) CheckStatus {
	worst := StatusPass
	for _, c := range checks {
		if statusRank[c.Status] > statusRank[worst] {
			worst = c.Status
		}
	}
	return worst
}

func checkWorkspaceDirectories(workspacePath string) []Check {
	if workspacePath == "" {
		return []Check{{
			Name:           "workspace path",
			Category:       "workspace",
			Status:         StatusFail,
			Message:        "no workspace path configured",
			Recommendation: "set workspace.path in configuration",
		}}
	}

	var checks []Check
	for _, dir := range expectedWorkspaceDirs {
		full := filepath.Join(workspacePath, dir)
		info, err := os.Stat(full)
		switch {
		case err == nil && info.IsDir():
			checks = append(checks, Check{Name: dir, Category: "workspace", Status: StatusPass, Message: "present"})
		case os.IsNotExist(err):
			checks = append(checks, Check{
				Name:           dir,
				Category:       "workspace",
				Status:         StatusWarning,
				Message:        "missing",
				Recommendation: fmt.Sprintf("create %s (`aiwhisperer setup` creates the full workspace layout)", full),
			})
		default:
			checks = append(checks, Check{
				Name:     dir,
				Category: "workspace",
				Status:   StatusFail,
				Message:  fmt.Sprintf("cannot stat %s: %v", full, err),
			})
		}
	}
	return checks
}

func checkRequiredConfigKeys(keys map[string]string) []Check {
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]Check, 0, len(names))
	for _, name := range names {
		if keys[name] == "" {
			checks = append(checks, Check{
				Name:           name,
				Category:       "config",
				Status:         StatusFail,
				Message:        "not set",
				Recommendation: fmt.Sprintf("set %s in configuration", name),
			})
			continue
		}
		checks = append(checks, Check{Name: name, Category: "config", Status: StatusPass, Message: "set"})
	}
	return checks
}

// checkEnvVars reports presence only; a variable's value is never
// logged, per spec.md §4.9 ("API-key presence, no value logged").
func checkEnvVars(vars []string) []Check {
	checks := make([]Check, 0, len(vars))
	for _, name := range vars {
		if os.Getenv(name) == "" {
			checks = append(checks, Check{
				Name:           name,
				Category:       "environment",
				Status:         StatusFail,
				Message:        "environment variable is not set",
				Recommendation: fmt.Sprintf("export %s", name),
			})
			continue
		}
		checks = append(checks, Check{Name: name, Category: "environment", Status: StatusPass, Message: "set"})
	}
	return checks
}

func checkWritePermissions(workspacePath string) []Check {
	if workspacePath == "" {
		return nil
	}
	probePath := filepath.Join(workspacePath, ".WHISPER", ".doctor-write-probe")
	if err := os.MkdirAll(filepath.Dir(probePath), 0o755); err != nil {
		return []Check{{
			Name:     "workspace write permission",
			Category: "filesystem",
			Status:   StatusFail,
			Message:  fmt.Sprintf("cannot create .WHISPER: %v", err),
		}}
	}
	if err := os.WriteFile(probePath, []byte("ok"), 0o644); err != nil {
		return []Check{{
			Name:     "workspace write permission",
			Category: "filesystem",
			Status:   StatusFail,
			Message:  fmt.Sprintf("workspace is not writable: %v", err),
		}}
	}
	_ = os.Remove(probePath)
	return []Check{{Name: "workspace write permission", Category: "filesystem", Status: StatusPass, Message: "writable"}}
}

func checkDependencies(ctx context.Context, deps []DependencyProbe) []Check {
	checks := make([]Check, 0, len(deps))
	for _, dep := range deps {
		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := dep.Probe(probeCtx)
		cancel()
		if err != nil {
			checks = append(checks, Check{
				Name:           dep.Name,
				Category:       "dependency",
				Status:         StatusFail,
				Message:        err.Error(),
				Recommendation: fmt.Sprintf("verify %s is reachable", dep.Name),
			})
			continue
		}
		checks = append(checks, Check{Name: dep.Name, Category: "dependency", Status: StatusPass, Message: "reachable"})
	}
	return checks
}
