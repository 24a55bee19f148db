package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"pkt.systems/filed"
	"pkt.systems/filed/internal/svcfields"
	"pkt.systems/pslog"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix("FILED_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "filed")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	executed, err := cmd.ExecuteContextC(ctx)
	if err != nil {
		if err != context.Canceled {
			// Root invocations log through the structured logger; subcommand
			// failures go to stderr the way cobra users expect.
			if executed == nil || !executed.HasParent() {
				svcfields.WithSubsystem(baseLogger, "cli.root").Error("command failed", "error", err)
			} else {
				fmt.Fprintf(os.Stderr, "%s\n", err)
			}
		}
		return 1
	}
	return 0
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}

// humanizeBytes renders a byte count the way flag defaults want it,
// without the space ("10MiB") so ParseBytes round-trips exactly.
func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.IBytes(uint64(n)), " ", "")
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	explicit := cfgPath != ""

	if cfgPath == "" {
		if dir, err := filed.DefaultConfigDir(); err == nil {
			candidate := filepath.Join(dir, filed.DefaultConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}

	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}

	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	var cfg filed.Config

	cmd := &cobra.Command{
		Use:           "filed",
		Short:         "filed is a single-binary sandboxed file server speaking JSON-RPC 2.0 tool calls over HTTP or stdio",
		SilenceErrors: true,
		Example: `
  # Serve ./allowed on the default loopback port without authentication
  filed

  # Serve a project directory with API keys per access tier
  FILED_READ_KEY=$(filed auth newkey) FILED_WRITE_KEY=$(filed auth newkey) \
  FILED_ADMIN_KEY=$(filed auth newkey) filed --allowed-directory /srv/agent-files

  # Loosen the write policy: any extension, 50 MiB ceiling
  filed -d /tmp/scratch --allowed-extensions= --max-file-size 50MiB

  # Prometheus metrics on a side listener
  filed --metrics-listen 127.0.0.1:9100
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := baseLogger
			cliLogger := svcfields.WithSubsystem(logger, "cli.root")
			ctx := cmd.Context()
			cmd.SilenceUsage = true
			svcfields.WithSubsystem(logger, "server.lifecycle.init").WithLogLevel().Info(
				"welcome to filed",
				"app", "filed",
				"pid", os.Getpid(),
				"uid", os.Getuid(),
				"gid", os.Getgid(),
			)

			configFile, err := loadConfigFile()
			if err != nil {
				return err
			}
			if configFile != "" {
				cliLogger.Info("loaded config file", "path", configFile)
			}

			if err := bindConfig(&cfg, cmd); err != nil {
				return err
			}
			if level, ok := pslog.ParseLevel(resolvedLogLevel()); ok {
				logger = logger.LogLevel(level)
			}

			server, err := filed.NewServer(filed.NewServerRequest{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			return server.Run(ctx)
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/.filed/"+filed.DefaultConfigFileName+")")

	flags := cmd.Flags()
	flags.String("listen", filed.DefaultListen, "listen address for the HTTP transport")
	flags.String("rpc-path", filed.DefaultRPCPath, "HTTP path accepting JSON-RPC POST requests")
	flags.String("server-name", filed.DefaultServerName, "server name reported by initialize and /health")
	flags.StringP("allowed-directory", "d", filed.DefaultAllowedDirectory, "sandbox root directory served to clients (created when missing)")
	flags.String("max-file-size", humanizeBytes(filed.DefaultMaxFileBytes), "maximum written file size (accepts 512KB, 10MiB, ...)")
	flags.StringSlice("allowed-extensions", filed.DefaultAllowedExtensions, "extension allow-list for new files (empty value allows every extension)")
	flags.String("read-key", "", "API key granting read:files (empty disables the slot)")
	flags.String("write-key", "", "API key granting read, write, and edit scopes")
	flags.String("admin-key", "", "API key granting every scope including delete:files")
	flags.Bool("disable-cors", false, "omit CORS headers on RPC responses")
	flags.String("metrics-listen", filed.DefaultMetricsListen, "metrics listen address (Prometheus scrape endpoint; empty disables)")
	flags.String("pprof-listen", filed.DefaultPprofListen, "pprof listen address (debug/pprof endpoints; empty disables)")
	flags.Bool("enable-profiling-metrics", false, "enable Go runtime profiling metrics on the Prometheus endpoint")
	flags.String("otlp-endpoint", "", "OTLP collector endpoint (e.g. grpc://localhost:4317)")
	flags.Duration("shutdown-timeout", filed.DefaultShutdownTimeout, "graceful HTTP shutdown time limit")
	flags.String("log-level", "", "minimum log level (trace, debug, info, warn, error)")

	bindFlag := func(name string) {
		flag := flags.Lookup(name)
		if flag == nil {
			flag = persistentFlags.Lookup(name)
		}
		if flag == nil {
			panic(fmt.Sprintf("flag %q not found", name))
		}
		if err := viper.BindPFlag(name, flag); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("FILED")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for _, name := range []string{
		"config",
		"listen", "rpc-path", "server-name", "allowed-directory",
		"max-file-size", "allowed-extensions",
		"read-key", "write-key", "admin-key", "disable-cors",
		"metrics-listen", "pprof-listen", "enable-profiling-metrics", "otlp-endpoint",
		"shutdown-timeout", "log-level",
	} {
		bindFlag(name)
	}

	cmd.AddCommand(newStdioCommand(baseLogger))
	cmd.AddCommand(newAuthCommand())
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func bindConfig(cfg *filed.Config, cmd *cobra.Command) error {
	cfg.Listen = viper.GetString("listen")
	cfg.RPCPath = viper.GetString("rpc-path")
	cfg.ServerName = viper.GetString("server-name")
	cfg.AllowedDirectory = viper.GetString("allowed-directory")
	if raw := strings.TrimSpace(viper.GetString("max-file-size")); raw != "" {
		size, err := humanize.ParseBytes(raw)
		if err != nil {
			return fmt.Errorf("parse max-file-size: %w", err)
		}
		cfg.MaxFileBytes = int64(size)
	}
	cfg.AllowedExtensions = splitExtensions(viper.GetStringSlice("allowed-extensions"))
	flagChanged := func(name string) bool {
		if f := cmd.Flags().Lookup(name); f != nil {
			return f.Changed
		}
		return false
	}
	envSet := func(key string) bool {
		_, ok := os.LookupEnv(key)
		return ok
	}
	cfg.AllowedExtensionsSet = flagChanged("allowed-extensions") ||
		viper.InConfig("allowed-extensions") || envSet("FILED_ALLOWED_EXTENSIONS")
	cfg.ReadKey = viper.GetString("read-key")
	cfg.WriteKey = viper.GetString("write-key")
	cfg.AdminKey = viper.GetString("admin-key")
	cfg.DisableCORS = viper.GetBool("disable-cors")
	cfg.MetricsListen = viper.GetString("metrics-listen")
	cfg.PprofListen = viper.GetString("pprof-listen")
	cfg.EnableProfilingMetrics = viper.GetBool("enable-profiling-metrics")
	cfg.OTLPEndpoint = viper.GetString("otlp-endpoint")
	cfg.ShutdownTimeout = viper.GetDuration("shutdown-timeout")
	return nil
}

func resolvedLogLevel() string {
	level := strings.TrimSpace(viper.GetString("log-level"))
	if level == "" {
		level = "info"
	}
	return level
}

// splitExtensions flattens slice input that may arrive as one
// comma-separated token from environment variables.
func splitExtensions(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
	}
	return out
}
