// Package workspace scaffolds the on-disk layout spec.md §6 describes
// under a workspace root: the .WHISPER directory tree the RFC/Plan
// Lifecycle (C8) and Workspace Validator (C9) both expect to find.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// expectedDirs mirrors spec.md §6's on-disk layout. Kept in sync with
// internal/doctor's own expectedWorkspaceDirs list; duplicated rather than
// imported so this package doesn't need to depend on internal/doctor just
// to bootstrap the tree doctor later validates.
var expectedDirs = []string{
	".WHISPER",
	filepath.Join(".WHISPER", "rfc", "in_progress"),
	filepath.Join(".WHISPER", "rfc", "archived"),
	filepath.Join(".WHISPER", "plans", "in_progress"),
	filepath.Join(".WHISPER", "plans", "archived"),
	filepath.Join(".WHISPER", "logs"),
	filepath.Join(".WHISPER", "state"),
	filepath.Join(".WHISPER", "output"),
}

// BootstrapResult reports which directories setup created versus found
// already in place.
type BootstrapResult struct {
	Created []string
	Skipped []string
}

// EnsureWorkspaceDirs creates every directory spec.md §6 expects under
// root, skipping any that already exist. It is idempotent: running it
// twice against the same root produces an empty Created list the second
// time.
func EnsureWorkspaceDirs(root string) (BootstrapResult, error) {
	var result BootstrapResult

	base := strings.TrimSpace(root)
	if base == "" {
		base = "."
	}

	for _, dir := range expectedDirs {
		path := filepath.Join(base, dir)
		if info, err := os.Stat(path); err == nil {
			if !info.IsDir() {
				return result, fmt.Errorf("%s exists and is not a directory", path)
			}
			result.Skipped = append(result.Skipped, path)
			continue
		} else if !os.IsNotExist(err) {
			return result, fmt.Errorf("stat %s: %w", path, err)
		}

		if err := os.MkdirAll(path, 0o755); err != nil {
			return result, fmt.Errorf("create %s: %w", path, err)
		}
		result.Created = append(result.Created, path)
	}

	return result, nil
}
