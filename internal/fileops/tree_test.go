package fileops

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestListFiles(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	seedFile(t, guard, "b.txt", "x")
	seedFile(t, guard, "a.txt", "x")
	if err := os.MkdirAll(filepath.Join(guard.Base(), "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := ops.ListFiles(resolve(t, guard, "."))
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	want := "Contents of allowed:\nfile: a.txt\nfile: b.txt\ndirectory: sub"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestListFilesSubdirectoryPathsRelativeToBase(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	seedFile(t, guard, "sub/inner.txt", "x")

	got, err := ops.ListFiles(resolve(t, guard, "sub"))
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	want := "Contents of allowed/sub:\nfile: sub/inner.txt"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestListFilesErrors(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	seedFile(t, guard, "plain.txt", "x")

	_, err := ops.ListFiles(resolve(t, guard, "nope"))
	oe := wantKind(t, err, KindNotFound)
	if oe.Msg != "Directory does not exist: nope" {
		t.Fatalf("unexpected message %q", oe.Msg)
	}

	_, err = ops.ListFiles(resolve(t, guard, "plain.txt"))
	oe = wantKind(t, err, KindTypeMismatch)
	if oe.Msg != "Path is a file: plain.txt" {
		t.Fatalf("unexpected message %q", oe.Msg)
	}
}

func TestListFilesRecursive(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	seedFile(t, guard, "a.txt", "abc")
	seedFile(t, guard, "sub/b.md", "xy")
	seedFile(t, guard, "sub/deep/c.txt", "z")

	got, err := ops.ListFilesRecursive(resolve(t, guard, "."), "")
	if err != nil {
		t.Fatalf("ListFilesRecursive: %v", err)
	}
	want := "Contents of allowed (recursive):\n" +
		"file: a.txt (3 B)\n" +
		"directory: sub\n" +
		"file: sub/b.md (2 B)\n" +
		"directory: sub/deep\n" +
		"file: sub/deep/c.txt (1 B)"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestListFilesRecursiveGlobFilter(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	seedFile(t, guard, "a.txt", "abc")
	seedFile(t, guard, "sub/b.md", "xy")
	seedFile(t, guard, "sub/deep/c.txt", "z")

	got, err := ops.ListFilesRecursive(resolve(t, guard, "."), "**/*.txt")
	if err != nil {
		t.Fatalf("ListFilesRecursive: %v", err)
	}
	want := "Contents of allowed (recursive):\n" +
		"file: a.txt (3 B)\n" +
		"file: sub/deep/c.txt (1 B)"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestListFilesRecursiveInvalidPattern(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	_, err := ops.ListFilesRecursive(resolve(t, guard, "."), "[unclosed")
	oe := wantKind(t, err, KindInvalidArgument)
	if oe.Msg != "Invalid glob pattern: [unclosed" {
		t.Fatalf("unexpected message %q", oe.Msg)
	}
}

func TestCopyFilePreservesMetadata(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	src := seedFile(t, guard, "orig.txt", "payload")
	modTime := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	if err := os.Chmod(src.Abs, 0o600); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.Chtimes(src.Abs, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	dest := resolve(t, guard, "backup/copy.txt")
	got, err := ops.CopyFile(src, dest)
	if err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	if got != "Successfully copied orig.txt to backup/copy.txt" {
		t.Fatalf("unexpected result %q", got)
	}
	if readBack(t, dest) != "payload" {
		t.Fatal("expected content copied")
	}
	info, err := os.Stat(dest.Abs)
	if err != nil {
		t.Fatalf("stat dest: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600 preserved, got %v", info.Mode().Perm())
	}
	if !info.ModTime().Equal(modTime) {
		t.Fatalf("expected modtime preserved, got %v", info.ModTime())
	}
	if readBack(t, src) != "payload" {
		t.Fatal("expected source untouched")
	}
}

func TestCopyFileErrors(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	seedFile(t, guard, "exists.txt", "x")
	if err := os.MkdirAll(filepath.Join(guard.Base(), "adir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tests := []struct {
		name    string
		src     string
		dest    string
		kind    Kind
		wantMsg string
	}{
		{name: "source missing", src: "nope.txt", dest: "d.txt", kind: KindNotFound, wantMsg: "Source file does not exist: nope.txt"},
		{name: "source is directory", src: "adir", dest: "d.txt", kind: KindTypeMismatch, wantMsg: "Source path is a directory: adir"},
		{name: "destination exists", src: "exists.txt", dest: "exists.txt", kind: KindConflict, wantMsg: "Destination already exists: exists.txt"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ops.CopyFile(resolve(t, guard, tc.src), resolve(t, guard, tc.dest))
			oe := wantKind(t, err, tc.kind)
			if oe.Msg != tc.wantMsg {
				t.Fatalf("expected %q, got %q", tc.wantMsg, oe.Msg)
			}
		})
	}
}

func TestMoveFileCreatesDestinationParents(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	src := seedFile(t, guard, "a.txt", "contents")

	got, err := ops.MoveFile(src, resolve(t, guard, "sub/b.txt"))
	if err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if got != "Successfully moved a.txt to sub/b.txt" {
		t.Fatalf("unexpected result %q", got)
	}
	if readBack(t, resolve(t, guard, "sub/b.txt")) != "contents" {
		t.Fatal("expected content relocated")
	}
	_, err = ops.ReadFile(resolve(t, guard, "a.txt"))
	oe := wantKind(t, err, KindNotFound)
	if oe.Msg != "File does not exist: a.txt" {
		t.Fatalf("unexpected message %q", oe.Msg)
	}
}

func TestGetFileInfo(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	res := seedFile(t, guard, "info.txt", "hello")
	modTime := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	if err := os.Chmod(res.Abs, 0o644); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	if err := os.Chtimes(res.Abs, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	got, err := ops.GetFileInfo(res)
	if err != nil {
		t.Fatalf("GetFileInfo: %v", err)
	}
	want := "Information for info.txt:\n" +
		"Type: file\n" +
		"Size: 5 B (5 bytes)\n" +
		"Modified: 2024-05-01T12:30:00Z\n" +
		"Permissions: -rw-r--r--"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestGetFileInfoDirectoryAndMissing(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	if err := os.MkdirAll(filepath.Join(guard.Base(), "adir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	got, err := ops.GetFileInfo(resolve(t, guard, "adir"))
	if err != nil {
		t.Fatalf("GetFileInfo: %v", err)
	}
	if want := "Information for adir:\nType: directory"; len(got) < len(want) || got[:len(want)] != want {
		t.Fatalf("expected directory info header, got %q", got)
	}

	_, err = ops.GetFileInfo(resolve(t, guard, "ghost"))
	oe := wantKind(t, err, KindNotFound)
	if oe.Msg != "Path does not exist: ghost" {
		t.Fatalf("unexpected message %q", oe.Msg)
	}
}

func TestFileExists(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	seedFile(t, guard, "here.txt", "x")
	if err := os.MkdirAll(filepath.Join(guard.Base(), "adir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "file", raw: "here.txt", want: "Path exists: here.txt (file)"},
		{name: "directory", raw: "adir", want: "Path exists: adir (directory)"},
		{name: "absent", raw: "ghost.txt", want: "Path does not exist: ghost.txt"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ops.FileExists(resolve(t, guard, tc.raw))
			if err != nil {
				t.Fatalf("FileExists: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestCreateDirectory(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)

	got, err := ops.CreateDirectory(resolve(t, guard, "new/nested"))
	if err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	if got != "Successfully created directory: new/nested" {
		t.Fatalf("unexpected result %q", got)
	}
	info, err := os.Stat(filepath.Join(guard.Base(), "new", "nested"))
	if err != nil || !info.IsDir() {
		t.Fatalf("expected directory created, err %v", err)
	}

	_, err = ops.CreateDirectory(resolve(t, guard, "new/nested"))
	oe := wantKind(t, err, KindConflict)
	if oe.Msg != "Directory already exists: new/nested" {
		t.Fatalf("unexpected message %q", oe.Msg)
	}

	seedFile(t, guard, "taken.txt", "x")
	_, err = ops.CreateDirectory(resolve(t, guard, "taken.txt"))
	oe = wantKind(t, err, KindConflict)
	if oe.Msg != "File already exists: taken.txt" {
		t.Fatalf("unexpected message %q", oe.Msg)
	}
}

func TestDeleteDirectory(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	if err := os.MkdirAll(filepath.Join(guard.Base(), "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	seedFile(t, guard, "full/inner.txt", "x")

	got, err := ops.DeleteDirectory(resolve(t, guard, "empty"), false)
	if err != nil {
		t.Fatalf("DeleteDirectory empty: %v", err)
	}
	if got != "Successfully deleted directory: empty" {
		t.Fatalf("unexpected result %q", got)
	}

	_, err = ops.DeleteDirectory(resolve(t, guard, "full"), false)
	oe := wantKind(t, err, KindConflict)
	if oe.Msg != "Directory is not empty: full" {
		t.Fatalf("unexpected message %q", oe.Msg)
	}

	got, err = ops.DeleteDirectory(resolve(t, guard, "full"), true)
	if err != nil {
		t.Fatalf("DeleteDirectory recursive: %v", err)
	}
	if got != "Successfully deleted directory: full" {
		t.Fatalf("unexpected result %q", got)
	}
	if _, statErr := os.Lstat(filepath.Join(guard.Base(), "full")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("expected subtree removed")
	}
}

func TestDeleteDirectoryErrors(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	seedFile(t, guard, "plain.txt", "x")

	_, err := ops.DeleteDirectory(resolve(t, guard, "ghost"), false)
	oe := wantKind(t, err, KindNotFound)
	if oe.Msg != "Directory does not exist: ghost" {
		t.Fatalf("unexpected message %q", oe.Msg)
	}

	_, err = ops.DeleteDirectory(resolve(t, guard, "plain.txt"), false)
	oe = wantKind(t, err, KindTypeMismatch)
	if oe.Msg != "Path is a file: plain.txt" {
		t.Fatalf("unexpected message %q", oe.Msg)
	}

	_, err = ops.DeleteDirectory(resolve(t, guard, "."), true)
	wantKind(t, err, KindInvalidArgument)
}

func TestMoveDirectory(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	seedFile(t, guard, "src/a.txt", "x")
	seedFile(t, guard, "src/deep/b.txt", "y")

	got, err := ops.MoveDirectory(resolve(t, guard, "src"), resolve(t, guard, "archive/dst"))
	if err != nil {
		t.Fatalf("MoveDirectory: %v", err)
	}
	if got != "Successfully moved directory src to archive/dst" {
		t.Fatalf("unexpected result %q", got)
	}
	if readBack(t, resolve(t, guard, "archive/dst/deep/b.txt")) != "y" {
		t.Fatal("expected subtree contents relocated")
	}
	if _, statErr := os.Lstat(filepath.Join(guard.Base(), "src")); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatal("expected source removed")
	}
}

func TestMoveDirectoryErrors(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	seedFile(t, guard, "plain.txt", "x")
	seedFile(t, guard, "a/inner.txt", "x")
	if err := os.MkdirAll(filepath.Join(guard.Base(), "b"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tests := []struct {
		name    string
		src     string
		dest    string
		kind    Kind
		wantMsg string
	}{
		{name: "source missing", src: "ghost", dest: "d", kind: KindNotFound, wantMsg: "Source directory does not exist: ghost"},
		{name: "source is file", src: "plain.txt", dest: "d", kind: KindTypeMismatch, wantMsg: "Source path is a file: plain.txt"},
		{name: "destination exists", src: "a", dest: "b", kind: KindConflict, wantMsg: "Destination already exists: b"},
		{name: "into itself", src: "a", dest: "a/child", kind: KindInvalidArgument, wantMsg: "Cannot move a directory into itself"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ops.MoveDirectory(resolve(t, guard, tc.src), resolve(t, guard, tc.dest))
			oe := wantKind(t, err, tc.kind)
			if oe.Msg != tc.wantMsg {
				t.Fatalf("expected %q, got %q", tc.wantMsg, oe.Msg)
			}
		})
	}
}

func TestMoveDirectoryRefusesBase(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	_, err := ops.MoveDirectory(resolve(t, guard, "."), resolve(t, guard, "elsewhere"))
	wantKind(t, err, KindInvalidArgument)
}
