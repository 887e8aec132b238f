// Package security guards the filesystem paths the server derives from
// uploads and stored trials.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDirectory is returned when a path resolves outside the
// directory it must stay in.
var ErrOutsideDirectory = errors.New("path escapes directory")

// maxFilenameLen bounds SanitizeFilename output.
const maxFilenameLen = 128

// ValidatePathWithinDirectory returns ErrOutsideDirectory unless filePath
// resolves inside dir. Symlinks are followed for the part of each path
// that exists on disk, so a link inside dir pointing elsewhere is rejected.
func ValidatePathWithinDirectory(filePath, dir string) error {
	canonicalPath, err := canonical(filePath)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", filePath, err)
	}
	canonicalDir, err := canonical(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	rel, err := filepath.Rel(canonicalDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrOutsideDirectory, filePath)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is not under %s", ErrOutsideDirectory, filePath, dir)
	}
	return nil
}

// canonical makes p absolute and resolves symlinks in its deepest existing
// ancestor. Components that do not exist yet are appended unchanged.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	existing := abs
	for {
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			rest, _ := filepath.Rel(existing, abs)
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		existing = parent
	}
}

// SanitizeFilename keeps ASCII letters, digits, dot, underscore and dash.
// Runs of anything else become a single underscore, and leading or
// trailing dots and underscores are dropped. fallback is returned when
// nothing usable is left.
func SanitizeFilename(s, fallback string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return fallback
	}
	return out
}
