package filed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pkt.systems/filed/internal/policy"
	"pkt.systems/filed/internal/scopes"
)

const (
	// DefaultListen is the default TCP endpoint the server binds to.
	// Loopback only: the server fronts a local directory.
	DefaultListen = "127.0.0.1:8082"
	// DefaultRPCPath is the HTTP path accepting JSON-RPC POST requests.
	DefaultRPCPath = "/"
	// DefaultHealthPath is the liveness endpoint path.
	DefaultHealthPath = "/health"
	// DefaultServerName is reported in the initialize handshake and the
	// health body.
	DefaultServerName = "Local File Server"
	// DefaultAllowedDirectory is the sandbox root when none is configured.
	DefaultAllowedDirectory = "./allowed"
	// DefaultMaxFileBytes caps written file content (10 MiB).
	DefaultMaxFileBytes = int64(10 * 1024 * 1024)
	// DefaultMetricsListen is the default metrics endpoint (Prometheus
	// scrape). Empty disables metrics unless explicitly configured.
	DefaultMetricsListen = ""
	// DefaultPprofListen is the default pprof debug listener (empty disables).
	DefaultPprofListen = ""
	// DefaultShutdownTimeout caps graceful HTTP shutdown duration.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultConfigFileName is the config file searched for when --config
	// is omitted.
	DefaultConfigFileName = "config.yaml"
)

// DefaultAllowedExtensions is the creation allow-list applied when the
// configuration does not set one.
var DefaultAllowedExtensions = []string{
	".txt", ".json", ".md", ".csv", ".log", ".xml", ".yaml", ".yml", ".conf", ".cfg",
}

// Config captures the tunables for a filed.Server instance.
type Config struct {
	// Listen is the server bind address (for example "127.0.0.1:8082").
	Listen string
	// RPCPath is the HTTP path accepting JSON-RPC POST requests.
	RPCPath string
	// ServerName is reported in the initialize handshake and the health body.
	ServerName string
	// Version overrides the reported server version; empty uses build info.
	Version string
	// AllowedDirectory is the sandbox root. Created at startup when missing.
	AllowedDirectory string
	// MaxFileBytes caps written file content in bytes of encoded UTF-8.
	MaxFileBytes int64
	// AllowedExtensions is the creation allow-list (".txt" or "txt" forms).
	// An explicitly empty list allows every extension.
	AllowedExtensions []string
	// AllowedExtensionsSet reports whether AllowedExtensions was explicitly
	// set by caller/flags/env, so an empty list is honored instead of
	// replaced by the default list.
	AllowedExtensionsSet bool
	// ReadKey grants read:files. Empty disables this credential slot.
	ReadKey string
	// WriteKey grants read:files, write:files and edit:files.
	WriteKey string
	// AdminKey grants every scope.
	AdminKey string
	// DisableCORS turns off the permissive CORS headers on RPC responses.
	DisableCORS bool
	// MetricsListen is the metrics endpoint bind address; empty disables metrics.
	MetricsListen string
	// PprofListen is the pprof endpoint bind address; empty disables pprof.
	PprofListen string
	// EnableProfilingMetrics adds Go runtime metrics to the metrics endpoint.
	EnableProfilingMetrics bool
	// OTLPEndpoint enables OTLP trace export to the given collector endpoint.
	OTLPEndpoint string
	// ShutdownTimeout caps total graceful shutdown duration.
	ShutdownTimeout time.Duration
}

// Validate normalizes cfg in place, applying defaults and rejecting
// combinations that cannot serve.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		c.Listen = DefaultListen
	}
	path := strings.TrimSpace(c.RPCPath)
	if path == "" {
		path = DefaultRPCPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}
	if path == DefaultHealthPath {
		return fmt.Errorf("config: rpc path %q collides with the health endpoint", path)
	}
	c.RPCPath = path
	if strings.TrimSpace(c.ServerName) == "" {
		c.ServerName = DefaultServerName
	}
	if strings.TrimSpace(c.AllowedDirectory) == "" {
		c.AllowedDirectory = DefaultAllowedDirectory
	}
	if c.MaxFileBytes < 0 {
		return fmt.Errorf("config: max file size must be >= 0")
	}
	if c.MaxFileBytes == 0 {
		c.MaxFileBytes = DefaultMaxFileBytes
	}
	if !c.AllowedExtensionsSet && len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = append([]string(nil), DefaultAllowedExtensions...)
	}
	c.AllowedExtensions = policy.NormalizeExtensions(c.AllowedExtensions)
	c.ReadKey = strings.TrimSpace(c.ReadKey)
	c.WriteKey = strings.TrimSpace(c.WriteKey)
	c.AdminKey = strings.TrimSpace(c.AdminKey)
	if err := validateDistinctKeys(c.ReadKey, c.WriteKey, c.AdminKey); err != nil {
		return err
	}
	if c.EnableProfilingMetrics && strings.TrimSpace(c.MetricsListen) == "" {
		return fmt.Errorf("config: profiling metrics require metrics-listen")
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	return nil
}

// validateDistinctKeys rejects duplicate keys across credential slots: a
// key shared between tiers would resolve to an ambiguous identity.
func validateDistinctKeys(keys ...string) error {
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("config: api keys must be distinct across read/write/admin")
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Unrestricted reports whether no API key is configured, selecting the
// no-auth mode in which every caller holds every scope.
func (c Config) Unrestricted() bool {
	return c.ReadKey == "" && c.WriteKey == "" && c.AdminKey == ""
}

// Keys maps the configured credential slots onto authorizer input.
func (c Config) Keys() scopes.Keys {
	return scopes.Keys{ReadKey: c.ReadKey, WriteKey: c.WriteKey, AdminKey: c.AdminKey}
}

// Policy maps the configured write constraints onto the policy checks.
func (c Config) Policy() policy.Policy {
	return policy.Policy{Extensions: c.AllowedExtensions, MaxBytes: c.MaxFileBytes}
}

// DefaultConfigDir returns the default configuration directory
// ($HOME/.filed, or $FILED_CONFIG_DIR when set).
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("FILED_CONFIG_DIR")); override != "" {
		if filepath.IsAbs(override) {
			return override, nil
		}
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", err
		}
		return abs, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".filed"), nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFileName), nil
}
