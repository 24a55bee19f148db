package filed

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestConfigValidateDefaults(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Listen != DefaultListen {
		t.Fatalf("expected listen default %q, got %q", DefaultListen, cfg.Listen)
	}
	if cfg.RPCPath != DefaultRPCPath {
		t.Fatalf("expected rpc path default %q, got %q", DefaultRPCPath, cfg.RPCPath)
	}
	if cfg.ServerName != DefaultServerName {
		t.Fatalf("expected server name default %q, got %q", DefaultServerName, cfg.ServerName)
	}
	if cfg.AllowedDirectory != DefaultAllowedDirectory {
		t.Fatalf("expected allowed directory default %q, got %q", DefaultAllowedDirectory, cfg.AllowedDirectory)
	}
	if cfg.MaxFileBytes != DefaultMaxFileBytes {
		t.Fatalf("expected max file size default %d, got %d", DefaultMaxFileBytes, cfg.MaxFileBytes)
	}
	if !reflect.DeepEqual(cfg.AllowedExtensions, DefaultAllowedExtensions) {
		t.Fatalf("expected default extensions, got %v", cfg.AllowedExtensions)
	}
	if cfg.ShutdownTimeout != DefaultShutdownTimeout {
		t.Fatalf("expected shutdown timeout default %v, got %v", DefaultShutdownTimeout, cfg.ShutdownTimeout)
	}
}

func TestConfigValidateRPCPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "/"},
		{in: "/", want: "/"},
		{in: "rpc", want: "/rpc"},
		{in: "/rpc/", want: "/rpc"},
		{in: "/rpc//", want: "/rpc"},
	}
	for _, tc := range tests {
		cfg := Config{RPCPath: tc.in}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("validate %q: %v", tc.in, err)
		}
		if cfg.RPCPath != tc.want {
			t.Fatalf("rpc path %q: expected %q, got %q", tc.in, tc.want, cfg.RPCPath)
		}
	}

	cfg := Config{RPCPath: "/health"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for rpc path on the health endpoint")
	}
	if !strings.Contains(err.Error(), "collides") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigValidateMaxFileBytes(t *testing.T) {
	cfg := Config{MaxFileBytes: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative max file size")
	}

	cfg = Config{MaxFileBytes: 42}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.MaxFileBytes != 42 {
		t.Fatalf("expected explicit size kept, got %d", cfg.MaxFileBytes)
	}
}

func TestConfigValidateExtensions(t *testing.T) {
	cfg := Config{AllowedExtensions: []string{" TXT ", ".Md", "", "yml"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := []string{".txt", ".md", ".yml"}
	if !reflect.DeepEqual(cfg.AllowedExtensions, want) {
		t.Fatalf("expected %v, got %v", want, cfg.AllowedExtensions)
	}

	// An explicitly empty list disables the allow-list entirely.
	cfg = Config{AllowedExtensionsSet: true}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(cfg.AllowedExtensions) != 0 {
		t.Fatalf("expected empty extension list kept, got %v", cfg.AllowedExtensions)
	}
	if got := cfg.Policy().CheckExtension("anything.exe"); got != nil {
		t.Fatalf("expected allow-all policy, got %v", got)
	}
}

func TestConfigValidateKeys(t *testing.T) {
	cfg := Config{ReadKey: " read-1 ", WriteKey: "write-1", AdminKey: "admin-1"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.ReadKey != "read-1" {
		t.Fatalf("expected trimmed read key, got %q", cfg.ReadKey)
	}
	if cfg.Unrestricted() {
		t.Fatal("expected restricted mode with keys configured")
	}

	cfg = Config{ReadKey: "same", AdminKey: "same"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for duplicate keys")
	}
	if !strings.Contains(err.Error(), "distinct") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigUnrestricted(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !cfg.Unrestricted() {
		t.Fatal("expected unrestricted mode without keys")
	}

	cfg = Config{WriteKey: "w"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Unrestricted() {
		t.Fatal("expected restricted mode with a write key")
	}
}

func TestConfigProfilingRequiresMetricsListen(t *testing.T) {
	cfg := Config{EnableProfilingMetrics: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when profiling metrics lack a metrics listener")
	}

	cfg = Config{EnableProfilingMetrics: true, MetricsListen: "127.0.0.1:9100"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestConfigPolicyMapping(t *testing.T) {
	cfg := Config{MaxFileBytes: 128, AllowedExtensions: []string{".txt"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	pol := cfg.Policy()
	if pol.MaxBytes != 128 {
		t.Fatalf("expected policy max 128, got %d", pol.MaxBytes)
	}
	if !reflect.DeepEqual(pol.Extensions, []string{".txt"}) {
		t.Fatalf("unexpected policy extensions: %v", pol.Extensions)
	}
	keys := cfg.Keys()
	if keys.ReadKey != "" || keys.WriteKey != "" || keys.AdminKey != "" {
		t.Fatalf("expected empty key slots, got %+v", keys)
	}
}

func TestDefaultConfigDir(t *testing.T) {
	abs := t.TempDir()
	t.Setenv("FILED_CONFIG_DIR", abs)
	dir, err := DefaultConfigDir()
	if err != nil {
		t.Fatalf("DefaultConfigDir: %v", err)
	}
	if dir != abs {
		t.Fatalf("expected override %q, got %q", abs, dir)
	}

	t.Setenv("FILED_CONFIG_DIR", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir, err = DefaultConfigDir()
	if err != nil {
		t.Fatalf("DefaultConfigDir: %v", err)
	}
	if dir != filepath.Join(home, ".filed") {
		t.Fatalf("expected %q, got %q", filepath.Join(home, ".filed"), dir)
	}

	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath: %v", err)
	}
	if path != filepath.Join(home, ".filed", DefaultConfigFileName) {
		t.Fatalf("unexpected config path %q", path)
	}
}
