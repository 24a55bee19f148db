package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestCurrentNeverEmpty(t *testing.T) {
	t.Parallel()
	v := Current()
	if v == "" {
		t.Fatal("expected a version string")
	}
	if !strings.HasPrefix(v, "v") {
		t.Fatalf("expected v-prefixed version, got %q", v)
	}
}

func TestModuleNeverEmpty(t *testing.T) {
	t.Parallel()
	if Module() == "" {
		t.Fatal("expected a module path")
	}
}

func TestPseudoVersion(t *testing.T) {
	t.Parallel()
	settings := func(rev, ts, modified string) []debug.BuildSetting {
		out := []debug.BuildSetting{}
		if rev != "" {
			out = append(out, debug.BuildSetting{Key: "vcs.revision", Value: rev})
		}
		if ts != "" {
			out = append(out, debug.BuildSetting{Key: "vcs.time", Value: ts})
		}
		if modified != "" {
			out = append(out, debug.BuildSetting{Key: "vcs.modified", Value: modified})
		}
		return out
	}

	got := pseudoVersion(settings("abcdef1234567890", "2026-02-03T04:05:06Z", "false"))
	if got != "v0.0.0-20260203040506-abcdef123456" {
		t.Fatalf("unexpected pseudo version %q", got)
	}
	got = pseudoVersion(settings("abcdef1234567890", "2026-02-03T04:05:06Z", "true"))
	if !strings.HasSuffix(got, "+dirty") {
		t.Fatalf("expected dirty suffix, got %q", got)
	}
	if got := pseudoVersion(settings("abcdef", "", "")); got != "" {
		t.Fatalf("missing timestamp should yield empty, got %q", got)
	}
	if got := pseudoVersion(settings("", "2026-02-03T04:05:06Z", "")); got != "" {
		t.Fatalf("missing revision should yield empty, got %q", got)
	}
	if got := pseudoVersion(settings("abc", "not-a-time", "")); got != "" {
		t.Fatalf("bad timestamp should yield empty, got %q", got)
	}
}
