package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"pkt.systems/filed"
	"pkt.systems/filed/internal/stdiorpc"
	"pkt.systems/filed/internal/svcfields"
	"pkt.systems/pslog"
)

func newStdioCommand(baseLogger pslog.Logger) *cobra.Command {
	var cfg filed.Config

	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve the file tools over stdin/stdout with Content-Length framing",
		Long: `stdio serves the same JSON-RPC tool surface as the HTTP transport on
stdin/stdout, for clients that spawn filed as a child process. Stream
callers are trusted; API keys are not consulted on this transport.

Configuration follows the same environment variables and config file as
the HTTP server; the local flags below override both.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := baseLogger
			cmd.SilenceUsage = true

			configFile, err := loadConfigFile()
			if err != nil {
				return err
			}
			if configFile != "" {
				svcfields.WithSubsystem(logger, "cli.stdio").Info("loaded config file", "path", configFile)
			}
			if err := bindConfig(&cfg, cmd); err != nil {
				return err
			}
			if err := applyStdioOverrides(&cfg, cmd); err != nil {
				return err
			}
			if level, ok := pslog.ParseLevel(resolvedLogLevel()); ok {
				logger = logger.LogLevel(level)
			}

			dispatcher, err := filed.NewDispatcher(cfg, logger)
			if err != nil {
				return err
			}
			srv, err := stdiorpc.NewServer(stdiorpc.NewServerRequest{
				Dispatcher: dispatcher,
				In:         cmd.InOrStdin(),
				Out:        cmd.OutOrStdout(),
				Logger:     svcfields.WithSubsystem(logger, "stdio"),
			})
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	flags := cmd.Flags()
	flags.StringP("allowed-directory", "d", filed.DefaultAllowedDirectory, "sandbox root directory served to clients (created when missing)")
	flags.String("max-file-size", humanizeBytes(filed.DefaultMaxFileBytes), "maximum written file size (accepts 512KB, 10MiB, ...)")
	flags.StringSlice("allowed-extensions", filed.DefaultAllowedExtensions, "extension allow-list for new files (empty value allows every extension)")
	flags.String("server-name", filed.DefaultServerName, "server name reported by initialize")
	return cmd
}

// applyStdioOverrides layers the stdio command's local flags on top of
// whatever the environment and config file resolved.
func applyStdioOverrides(cfg *filed.Config, cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("allowed-directory") {
		dir, err := flags.GetString("allowed-directory")
		if err != nil {
			return err
		}
		cfg.AllowedDirectory = dir
	}
	if flags.Changed("max-file-size") {
		raw, err := flags.GetString("max-file-size")
		if err != nil {
			return err
		}
		size, err := humanize.ParseBytes(raw)
		if err != nil {
			return fmt.Errorf("parse max-file-size: %w", err)
		}
		cfg.MaxFileBytes = int64(size)
	}
	if flags.Changed("allowed-extensions") {
		values, err := flags.GetStringSlice("allowed-extensions")
		if err != nil {
			return err
		}
		cfg.AllowedExtensions = splitExtensions(values)
		cfg.AllowedExtensionsSet = true
	}
	if flags.Changed("server-name") {
		name, err := flags.GetString("server-name")
		if err != nil {
			return err
		}
		cfg.ServerName = name
	}
	return nil
}
