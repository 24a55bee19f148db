// Package version resolves the binary's version string from linker
// flags, module build info, or VCS metadata, in that order.
package version

import (
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

const defaultModule = "pkt.systems/filed"

// buildVersion is set via -ldflags "-X pkt.systems/filed/internal/version.buildVersion=...".
var buildVersion = ""

var buildInfo = sync.OnceValue(func() *debug.BuildInfo {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	return info
})

// Current returns the best available version string.
func Current() string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return v
	}
	info := buildInfo()
	if info == nil {
		return "v0.0.0-unknown"
	}
	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return v
	}
	if v := pseudoVersion(info.Settings); v != "" {
		return v
	}
	return "v0.0.0-unknown"
}

// Module returns the module path from build info when available.
func Module() string {
	if info := buildInfo(); info != nil {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			return path
		}
	}
	return defaultModule
}

// pseudoVersion derives a v0.0.0-<stamp>-<rev> string from VCS build
// settings, in the toolchain's pseudo-version layout.
func pseudoVersion(settings []debug.BuildSetting) string {
	var revision, stamp string
	var dirty bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			stamp = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" || stamp == "" {
		return ""
	}
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	v := "v0.0.0-" + at.UTC().Format("20060102150405") + "-" + revision
	if dirty {
		v += "+dirty"
	}
	return v
}
