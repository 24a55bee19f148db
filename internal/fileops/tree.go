package fileops

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"

	"pkt.systems/filed/internal/pathguard"
)

// displayPath prefixes a sandbox-relative path with the base directory
// name for listing headers, so "sub" renders as "allowed/sub" and the
// base itself as "allowed".
func (o *Ops) displayPath(res pathguard.Resolved) string {
	return path.Join(o.guard.BaseName(), res.Rel)
}

// ListFiles returns the immediate children of a directory, one
// "type: path" line per entry, sorted by name.
func (o *Ops) ListFiles(res pathguard.Resolved) (string, error) {
	info, err := os.Stat(res.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", notFoundf("Directory does not exist: %s", res.Rel)
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", typeMismatchf("Path is a file: %s", res.Rel)
	}
	entries, err := os.ReadDir(res.Abs)
	if err != nil {
		return "", err
	}
	items := make([]string, 0, len(entries))
	for _, entry := range entries {
		kind := "file"
		if entry.IsDir() {
			kind = "directory"
		}
		items = append(items, fmt.Sprintf("%s: %s", kind, path.Join(res.Rel, entry.Name())))
	}
	return fmt.Sprintf("Contents of %s:\n%s", o.displayPath(res), strings.Join(items, "\n")), nil
}

// ListFilesRecursive walks the full subtree under a directory. Files are
// annotated with a human-readable size. A non-empty pattern is a glob
// matched against each entry's path relative to the listed directory,
// with ** crossing directory boundaries.
func (o *Ops) ListFilesRecursive(res pathguard.Resolved, pattern string) (string, error) {
	info, err := os.Stat(res.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", notFoundf("Directory does not exist: %s", res.Rel)
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", typeMismatchf("Path is a file: %s", res.Rel)
	}
	if pattern != "" && !doublestar.ValidatePattern(pattern) {
		return "", invalidf("Invalid glob pattern: %s", pattern)
	}
	var items []string
	walkErr := filepath.WalkDir(res.Abs, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == res.Abs {
			return nil
		}
		relFromTarget, err := filepath.Rel(res.Abs, p)
		if err != nil {
			return err
		}
		relFromTarget = filepath.ToSlash(relFromTarget)
		if pattern != "" {
			ok, err := doublestar.Match(pattern, relFromTarget)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		shown := path.Join(res.Rel, relFromTarget)
		if d.IsDir() {
			items = append(items, fmt.Sprintf("directory: %s", shown))
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		items = append(items, fmt.Sprintf("file: %s (%s)", shown, humanize.Bytes(uint64(fi.Size()))))
		return nil
	})
	if walkErr != nil {
		return "", walkErr
	}
	return fmt.Sprintf("Contents of %s (recursive):\n%s", o.displayPath(res), strings.Join(items, "\n")), nil
}

// CopyFile duplicates a file to a new path, creating destination parents
// and preserving mode and modification time. The destination must not
// exist.
func (o *Ops) CopyFile(src, dest pathguard.Resolved) (string, error) {
	srcInfo, err := os.Stat(src.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", notFoundf("Source file does not exist: %s", src.Rel)
	}
	if err != nil {
		return "", err
	}
	if srcInfo.IsDir() {
		return "", typeMismatchf("Source path is a directory: %s", src.Rel)
	}
	if _, err := os.Lstat(dest.Abs); err == nil {
		return "", conflictf("Destination already exists: %s", dest.Rel)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest.Abs), 0o755); err != nil {
		return "", err
	}
	if err := copyContents(src.Abs, dest.Abs, srcInfo); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully copied %s to %s", src.Rel, dest.Rel), nil
}

func copyContents(srcPath, destPath string, srcInfo os.FileInfo) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, srcInfo.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// OpenFile mode is subject to umask; restore the source mode exactly.
	if err := os.Chmod(destPath, srcInfo.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(destPath, srcInfo.ModTime(), srcInfo.ModTime())
}

// MoveFile relocates a file, creating destination parents. The
// destination must not exist.
func (o *Ops) MoveFile(src, dest pathguard.Resolved) (string, error) {
	srcInfo, err := os.Stat(src.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", notFoundf("Source file does not exist: %s", src.Rel)
	}
	if err != nil {
		return "", err
	}
	if srcInfo.IsDir() {
		return "", typeMismatchf("Source path is a directory: %s", src.Rel)
	}
	if _, err := os.Lstat(dest.Abs); err == nil {
		return "", conflictf("Destination already exists: %s", dest.Rel)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest.Abs), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(src.Abs, dest.Abs); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully moved %s to %s", src.Rel, dest.Rel), nil
}

// GetFileInfo reports type, size, modification time, and permissions for
// a file or directory.
func (o *Ops) GetFileInfo(res pathguard.Resolved) (string, error) {
	info, err := os.Stat(res.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", notFoundf("Path does not exist: %s", res.Rel)
	}
	if err != nil {
		return "", err
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf("Information for %s:\nType: %s\nSize: %s (%d bytes)\nModified: %s\nPermissions: %s",
		res.Rel, kind,
		humanize.Bytes(uint64(info.Size())), info.Size(),
		info.ModTime().UTC().Format(time.RFC3339),
		info.Mode()), nil
}

// FileExists reports whether a path exists and what it is. Absence is a
// normal result, never an error.
func (o *Ops) FileExists(res pathguard.Resolved) (string, error) {
	info, err := os.Stat(res.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Sprintf("Path does not exist: %s", res.Rel), nil
	}
	if err != nil {
		return "", err
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	return fmt.Sprintf("Path exists: %s (%s)", res.Rel, kind), nil
}

// CreateDirectory creates a directory and any missing parents. The path
// must not already exist.
func (o *Ops) CreateDirectory(res pathguard.Resolved) (string, error) {
	if info, err := os.Lstat(res.Abs); err == nil {
		if info.IsDir() {
			return "", conflictf("Directory already exists: %s", res.Rel)
		}
		return "", conflictf("File already exists: %s", res.Rel)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if err := os.MkdirAll(res.Abs, 0o755); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully created directory: %s", res.Rel), nil
}

// DeleteDirectory removes a directory. Without recursive the directory
// must be empty. The sandbox root itself is never deletable.
func (o *Ops) DeleteDirectory(res pathguard.Resolved, recursive bool) (string, error) {
	if res.IsBase() {
		return "", invalidf("Cannot delete the base directory")
	}
	info, err := os.Stat(res.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", notFoundf("Directory does not exist: %s", res.Rel)
	}
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", typeMismatchf("Path is a file: %s", res.Rel)
	}
	if !recursive {
		entries, err := os.ReadDir(res.Abs)
		if err != nil {
			return "", err
		}
		if len(entries) > 0 {
			return "", conflictf("Directory is not empty: %s", res.Rel)
		}
		if err := os.Remove(res.Abs); err != nil {
			return "", err
		}
	} else if err := os.RemoveAll(res.Abs); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully deleted directory: %s", res.Rel), nil
}

// MoveDirectory relocates a whole subtree. The destination must not exist
// and must not sit inside the source.
func (o *Ops) MoveDirectory(src, dest pathguard.Resolved) (string, error) {
	if src.IsBase() {
		return "", invalidf("Cannot move the base directory")
	}
	srcInfo, err := os.Stat(src.Abs)
	if errors.Is(err, os.ErrNotExist) {
		return "", notFoundf("Source directory does not exist: %s", src.Rel)
	}
	if err != nil {
		return "", err
	}
	if !srcInfo.IsDir() {
		return "", typeMismatchf("Source path is a file: %s", src.Rel)
	}
	if _, err := os.Lstat(dest.Abs); err == nil {
		return "", conflictf("Destination already exists: %s", dest.Rel)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if strings.HasPrefix(dest.Abs, src.Abs+string(os.PathSeparator)) {
		return "", invalidf("Cannot move a directory into itself")
	}
	if err := os.MkdirAll(filepath.Dir(dest.Abs), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(src.Abs, dest.Abs); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully moved directory %s to %s", src.Rel, dest.Rel), nil
}
