// Package fileops implements the sandboxed filesystem operations behind
// the server's tools. Every operation is stateless and one-shot: validate
// preconditions, perform the syscalls, return a human-readable result
// string. Paths arrive already confined by pathguard; result and error
// texts reference the sandbox-relative path only.
//
// Concurrent calls against the same path follow last-writer-wins
// semantics. Operations that rewrite content read the whole file, compute
// the new content, and write it back without file locking.
package fileops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"pkt.systems/filed/internal/pathguard"
)

// Kind classifies an operation failure for protocol error mapping.
type Kind int

const (
	// KindNotFound reports a missing file or directory.
	KindNotFound Kind = iota + 1
	// KindConflict reports a path that already exists or is not empty.
	KindConflict
	// KindTypeMismatch reports file-versus-directory confusion.
	KindTypeMismatch
	// KindEncoding reports content that is not valid UTF-8 text.
	KindEncoding
	// KindInvalidArgument reports a bad line range, pattern, or argument.
	KindInvalidArgument
)

// OpError is a failed precondition with a client-safe message. Unexpected
// syscall failures are returned as plain errors instead and must not be
// shown to clients verbatim, since OS error strings embed absolute paths.
type OpError struct {
	Kind Kind
	Msg  string
}

func (e *OpError) Error() string {
	return e.Msg
}

func notFoundf(format string, args ...any) error {
	return &OpError{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func conflictf(format string, args ...any) error {
	return &OpError{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func typeMismatchf(format string, args ...any) error {
	return &OpError{Kind: KindTypeMismatch, Msg: fmt.Sprintf(format, args...)}
}

func encodingf(format string, args ...any) error {
	return &OpError{Kind: KindEncoding, Msg: fmt.Sprintf(format, args...)}
}

func invalidf(format string, args ...any) error {
	return &OpError{Kind: KindInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// Ops executes file operations inside one sandbox. It carries no mutable
// state and is safe for concurrent use.
type Ops struct {
	guard *pathguard.Resolver
}

// New returns an Ops bound to the given sandbox resolver.
func New(guard *pathguard.Resolver) *Ops {
	return &Ops{guard: guard}
}

// CreateFile writes a new file, creating parent directories as needed.
// The path must not already exist. The reported character count follows
// text semantics, counting code points rather than bytes.
func (o *Ops) CreateFile(res pathguard.Resolved, content string) (string, error) {
	if _, err := os.Lstat(res.Abs); err == nil {
		return "", conflictf("File already exists: %s", res.Rel)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(res.Abs), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(res.Abs, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully created %s with %d characters", res.Rel, utf8.RuneCountInString(content)), nil
}

// ReadFile returns the full text of an existing file.
func (o *Ops) ReadFile(res pathguard.Resolved) (string, error) {
	content, err := o.readTextFile(res)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("File: %s\n\n%s", res.Rel, content), nil
}

// WriteFile replaces the content of an existing file. Unlike CreateFile it
// never creates the file or its parents.
func (o *Ops) WriteFile(res pathguard.Resolved, content string) (string, error) {
	info, err := os.Stat(res.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", notFoundf("File does not exist: %s", res.Rel)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", typeMismatchf("Path is a directory: %s", res.Rel)
	}
	if err := os.WriteFile(res.Abs, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully wrote %d characters to %s", utf8.RuneCountInString(content), res.Rel), nil
}

// DeleteFile removes a single file. Directories are refused; deleting an
// already-deleted path fails rather than succeeding silently.
func (o *Ops) DeleteFile(res pathguard.Resolved) (string, error) {
	info, err := os.Lstat(res.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", notFoundf("File does not exist: %s", res.Rel)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", typeMismatchf("Cannot delete directory: %s", res.Rel)
	}
	if err := os.Remove(res.Abs); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully deleted %s", res.Rel), nil
}

// readTextFile loads a file as UTF-8 text, enforcing the shared
// preconditions of every text-reading operation.
func (o *Ops) readTextFile(res pathguard.Resolved) (string, error) {
	info, err := os.Stat(res.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", notFoundf("File does not exist: %s", res.Rel)
	}
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", typeMismatchf("Path is a directory: %s", res.Rel)
	}
	data, err := os.ReadFile(res.Abs)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", encodingf("File is not text readable: %s", res.Rel)
	}
	return string(data), nil
}

func (o *Ops) writeTextFile(res pathguard.Resolved, content string) error {
	return os.WriteFile(res.Abs, []byte(content), 0o644)
}
