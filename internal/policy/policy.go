// Package policy enforces the write-side file rules: which extensions may
// be created and how large file content may grow. Checks are pure and
// carry the exact texts surfaced to clients.
package policy

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Policy holds the configured write constraints. The zero value allows
// every extension and any size; callers construct it from server config.
type Policy struct {
	// Extensions is the allow-list of lowercase extensions including the
	// leading dot, for example ".txt". Empty means every extension passes.
	Extensions []string
	// MaxBytes caps content size in bytes of UTF-8 encoded text. Zero or
	// negative disables the check.
	MaxBytes int64
}

// CheckExtension verifies the extension of the file named by relPath
// against the allow-list. Matching is case-insensitive; a file with no
// extension only passes when the list is empty.
func (p Policy) CheckExtension(relPath string) error {
	if len(p.Extensions) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(relPath))
	for _, allowed := range p.Extensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("File extension not allowed. Allowed: %s", strings.Join(p.Extensions, ", "))
}

// CheckSize verifies that content fits under the configured ceiling. The
// measure is encoded bytes, not characters.
func (p Policy) CheckSize(content string) error {
	if p.MaxBytes <= 0 {
		return nil
	}
	if int64(len(content)) > p.MaxBytes {
		return fmt.Errorf("File size exceeds limit of %.1fMB", float64(p.MaxBytes)/(1024*1024))
	}
	return nil
}

// NormalizeExtensions lowercases entries, prepends a missing dot, trims
// whitespace, and drops empties. Config accepts both "txt" and ".txt".
func NormalizeExtensions(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}
