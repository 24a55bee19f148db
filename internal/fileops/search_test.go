package fileops

import (
	"testing"
)

func TestSearchInFileLiteral(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	res := seedFile(t, guard, "log.txt", "info: started\nerror: boom\ninfo: done\nERROR: loud")

	got, err := ops.SearchInFile(res, "error", false)
	if err != nil {
		t.Fatalf("SearchInFile: %v", err)
	}
	want := "Found 1 matching line(s) in log.txt:\nLine 2: error: boom"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSearchInFileRegex(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	res := seedFile(t, guard, "doc.md", "# title\nbody\n# sub")

	got, err := ops.SearchInFile(res, "^#", true)
	if err != nil {
		t.Fatalf("SearchInFile: %v", err)
	}
	want := "Found 2 matching line(s) in doc.md:\nLine 1: # title\nLine 3: # sub"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSearchInFileNoMatches(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	res := seedFile(t, guard, "a.txt", "nothing here")

	got, err := ops.SearchInFile(res, "absent", false)
	if err != nil {
		t.Fatalf("SearchInFile: %v", err)
	}
	if got != "No matches found in a.txt" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestSearchInFileInvalidRegex(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	res := seedFile(t, guard, "a.txt", "x")

	_, err := ops.SearchInFile(res, "(unclosed", true)
	wantKind(t, err, KindInvalidArgument)
}

func TestReplaceInFile(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		initial    string
		search     string
		replace    string
		all        bool
		wantResult string
		want       string
	}{
		{
			name:       "replace all",
			initial:    "aaa bbb aaa",
			search:     "aaa",
			replace:    "x",
			all:        true,
			wantResult: "Successfully replaced 2 occurrence(s) in f.txt",
			want:       "x bbb x",
		},
		{
			name:       "replace first only",
			initial:    "aaa bbb aaa",
			search:     "aaa",
			replace:    "x",
			all:        false,
			wantResult: "Successfully replaced 1 occurrence(s) in f.txt",
			want:       "x bbb aaa",
		},
		{
			name:       "replacement spans lines",
			initial:    "one\ntwo\none",
			search:     "one",
			replace:    "uno",
			all:        true,
			wantResult: "Successfully replaced 2 occurrence(s) in f.txt",
			want:       "uno\ntwo\nuno",
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ops, guard := newTestOps(t)
			res := seedFile(t, guard, "f.txt", tc.initial)
			got, err := ops.ReplaceInFile(res, tc.search, tc.replace, tc.all)
			if err != nil {
				t.Fatalf("ReplaceInFile: %v", err)
			}
			if got != tc.wantResult {
				t.Fatalf("expected %q, got %q", tc.wantResult, got)
			}
			if back := readBack(t, res); back != tc.want {
				t.Fatalf("expected content %q, got %q", tc.want, back)
			}
		})
	}
}

func TestReplaceInFileNoMatches(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	res := seedFile(t, guard, "f.txt", "untouched")

	got, err := ops.ReplaceInFile(res, "missing", "x", true)
	if err != nil {
		t.Fatalf("ReplaceInFile: %v", err)
	}
	if got != "No occurrences of search text found in f.txt" {
		t.Fatalf("unexpected result %q", got)
	}
	if back := readBack(t, res); back != "untouched" {
		t.Fatalf("expected file untouched, got %q", back)
	}
}

func TestReplaceInFileEmptySearch(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	res := seedFile(t, guard, "f.txt", "x")
	_, err := ops.ReplaceInFile(res, "", "y", true)
	wantKind(t, err, KindInvalidArgument)
}

func TestFindAndReplaceLines(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	res := seedFile(t, guard, "conf.txt", "port = 1\nhost = a\nport = 2\n")

	got, err := ops.FindAndReplaceLines(res, "port", "port = 9")
	if err != nil {
		t.Fatalf("FindAndReplaceLines: %v", err)
	}
	if got != "Successfully replaced 2 line(s) in conf.txt" {
		t.Fatalf("unexpected result %q", got)
	}
	if back := readBack(t, res); back != "port = 9\nhost = a\nport = 9\n" {
		t.Fatalf("unexpected content %q", back)
	}
}

func TestFindAndReplaceLinesNoMatches(t *testing.T) {
	t.Parallel()
	ops, guard := newTestOps(t)
	res := seedFile(t, guard, "conf.txt", "host = a")

	got, err := ops.FindAndReplaceLines(res, "port", "x")
	if err != nil {
		t.Fatalf("FindAndReplaceLines: %v", err)
	}
	if got != "No lines matching pattern found in conf.txt" {
		t.Fatalf("unexpected result %q", got)
	}
	if back := readBack(t, res); back != "host = a" {
		t.Fatalf("expected file untouched, got %q", back)
	}
}
