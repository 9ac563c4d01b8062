// Package security validates file paths that arrive from configuration,
// HTTP requests or user-visible names before they are written to disk.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// ErrOutsideDirectory is returned when a path resolves outside its allowed root.
var ErrOutsideDirectory = errors.New("path outside allowed directory")

// canonical resolves symlinks in the longest existing prefix of path so a
// not-yet-created file under a symlinked directory is judged by its target.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rest := ""
	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
	}
}

// ValidatePathWithinDirectory returns ErrOutsideDirectory when path, after
// cleaning and symlink resolution, is not inside dir. dir must exist.
func ValidatePathWithinDirectory(path, dir string) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}
	target, err := canonical(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s escapes %s", ErrOutsideDirectory, path, dir)
	}
	return nil
}

const maxFilenameLen = 96

// SanitizeFilename lowercases s and replaces every run of characters other
// than ASCII letters, digits and dash with a single underscore, so
// "Three Finger Pinch Grasp" becomes "three_finger_pinch_grasp".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-') {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte('_')
			pending = false
		}
		if b.Len() >= maxFilenameLen {
			break
		}
		b.WriteRune(r)
	}
	out := strings.TrimRight(b.String(), "_")
	if out == "" {
		return "unnamed"
	}
	return out
}
