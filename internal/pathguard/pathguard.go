// Package pathguard confines client-supplied paths to a single base
// directory. Every file operation resolves its path arguments here before
// touching the filesystem; nothing outside the base directory is ever
// reachable, regardless of `..` segments, absolute-looking paths, or
// symlinks pointing above the root.
package pathguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscape reports a path that resolves outside the base directory.
var ErrEscape = errors.New("Path outside allowed directory")

// maxLinkDepth bounds symlink chains during manual resolution, mirroring
// the kernel's ELOOP limit.
const maxLinkDepth = 40

// Resolved is a validated path inside the sandbox.
type Resolved struct {
	// Abs is the canonical absolute path used for syscalls.
	Abs string
	// Rel is the slash-separated path relative to the base directory.
	// All user-visible messages reference Rel, never Abs.
	Rel string
}

// IsBase reports whether the resolved path is the base directory itself.
func (r Resolved) IsBase() bool {
	return r.Rel == "."
}

// Resolver validates raw client paths against a fixed base directory.
type Resolver struct {
	base string
}

// NewResolver canonicalizes baseDir and returns a resolver rooted there.
// The directory must exist; symlinks in the base path itself are resolved
// once so later containment checks compare canonical forms.
func NewResolver(baseDir string) (*Resolver, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("pathguard: absolute base: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("pathguard: canonicalize base %q: %w", baseDir, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("pathguard: stat base %q: %w", baseDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pathguard: base %q is not a directory", baseDir)
	}
	return &Resolver{base: canonical}, nil
}

// Base returns the canonical base directory.
func (r *Resolver) Base() string {
	return r.base
}

// BaseName returns the last element of the base directory path.
func (r *Resolver) BaseName() string {
	return filepath.Base(r.base)
}

// Resolve validates raw and returns its canonical location inside the
// sandbox. A single leading separator is stripped first, so "/notes.txt"
// means "notes.txt" relative to the base, not the filesystem root. "."
// resolves to the base itself. Resolving an already-resolved relative path
// yields the same result.
func (r *Resolver) Resolve(raw string) (Resolved, error) {
	cleaned := strings.TrimPrefix(raw, "/")
	joined := filepath.Join(r.base, cleaned)
	if !r.contains(joined) {
		return Resolved{}, ErrEscape
	}
	canonical, err := resolveThroughExisting(joined, 0)
	if err != nil {
		return Resolved{}, fmt.Errorf("pathguard: resolve %q: %w", cleaned, err)
	}
	if !r.contains(canonical) {
		return Resolved{}, ErrEscape
	}
	rel, err := filepath.Rel(r.base, canonical)
	if err != nil {
		return Resolved{}, fmt.Errorf("pathguard: relativize %q: %w", cleaned, err)
	}
	return Resolved{Abs: canonical, Rel: filepath.ToSlash(rel)}, nil
}

// contains reports whether p equals the base or sits under it. The check is
// component-wise: /allowed2 must not pass for base /allowed.
func (r *Resolver) contains(p string) bool {
	if p == r.base {
		return true
	}
	return strings.HasPrefix(p, r.base+string(os.PathSeparator))
}

// resolveThroughExisting canonicalizes p even when its final components do
// not exist yet: symlinks are evaluated through the deepest existing
// ancestor and the non-existent suffix is re-joined lexically. A dangling
// symlink counts as existing; its target continues resolution so an
// escaping link target is still caught by the caller's containment check.
func resolveThroughExisting(p string, depth int) (string, error) {
	if depth > maxLinkDepth {
		return "", fmt.Errorf("%q: too many levels of symbolic links", p)
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	var suffix []string
	current := p
	for {
		info, lerr := os.Lstat(current)
		if lerr == nil {
			if info.Mode()&os.ModeSymlink != 0 {
				target, rerr := os.Readlink(current)
				if rerr != nil {
					return "", rerr
				}
				if !filepath.IsAbs(target) {
					target = filepath.Join(filepath.Dir(current), target)
				}
				return resolveThroughExisting(rejoin(target, suffix), depth+1)
			}
			canonical, rerr := filepath.EvalSymlinks(current)
			if rerr != nil {
				return "", rerr
			}
			return rejoin(canonical, suffix), nil
		}
		if !errors.Is(lerr, os.ErrNotExist) {
			return "", lerr
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", os.ErrNotExist
		}
		suffix = append(suffix, filepath.Base(current))
		current = parent
	}
}

func rejoin(prefix string, suffix []string) string {
	for i := len(suffix) - 1; i >= 0; i-- {
		prefix = filepath.Join(prefix, suffix[i])
	}
	return prefix
}
