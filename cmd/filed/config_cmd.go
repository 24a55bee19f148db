package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/filed"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage filed configuration files",
	}
	cmd.AddCommand(newConfigGenCommand())
	return cmd
}

func newConfigGenCommand() *cobra.Command {
	var outPath string
	var force bool
	var stdout bool
	defaultOutput := "$HOME/.filed/" + filed.DefaultConfigFileName
	if dir, err := filed.DefaultConfigDir(); err == nil {
		defaultOutput = filepath.Join(dir, filed.DefaultConfigFileName)
	}

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a default filed configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if stdout && outPath != "" {
				return fmt.Errorf("--stdout and --out are mutually exclusive")
			}
			if outPath == "" {
				dir, err := filed.DefaultConfigDir()
				if err != nil {
					return fmt.Errorf("resolve config dir: %w", err)
				}
				outPath = filepath.Join(dir, filed.DefaultConfigFileName)
			}

			data, err := defaultConfigYAML()
			if err != nil {
				return err
			}

			if stdout {
				fmt.Fprint(cmd.OutOrStdout(), string(data))
				return nil
			}

			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if !force {
				if _, err := os.Stat(outPath); err == nil {
					return fmt.Errorf("config file %s already exists (use --force to overwrite)", outPath)
				} else if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("stat config file: %w", err)
				}
			}
			if err := os.WriteFile(outPath, data, 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default config to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", fmt.Sprintf("output path for generated config (defaults to %s)", defaultOutput))
	cmd.Flags().BoolVar(&force, "force", false, "overwrite the target file if it already exists")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the config to stdout instead of writing a file")
	return cmd
}

type configDefaults struct {
	Listen                 string   `yaml:"listen"`
	RPCPath                string   `yaml:"rpc-path"`
	ServerName             string   `yaml:"server-name"`
	AllowedDirectory       string   `yaml:"allowed-directory"`
	MaxFileSize            string   `yaml:"max-file-size"`
	AllowedExtensions      []string `yaml:"allowed-extensions"`
	ReadKey                string   `yaml:"read-key"`
	WriteKey               string   `yaml:"write-key"`
	AdminKey               string   `yaml:"admin-key"`
	DisableCORS            bool     `yaml:"disable-cors"`
	MetricsListen          string   `yaml:"metrics-listen"`
	PprofListen            string   `yaml:"pprof-listen"`
	EnableProfilingMetrics bool     `yaml:"enable-profiling-metrics"`
	OTLPEndpoint           string   `yaml:"otlp-endpoint"`
	ShutdownTimeout        string   `yaml:"shutdown-timeout"`
	LogLevel               string   `yaml:"log-level"`
}

func defaultConfigYAML(overrides ...func(*configDefaults)) ([]byte, error) {
	defaults := configDefaults{
		Listen:                 filed.DefaultListen,
		RPCPath:                filed.DefaultRPCPath,
		ServerName:             filed.DefaultServerName,
		AllowedDirectory:       filed.DefaultAllowedDirectory,
		MaxFileSize:            humanizeBytes(filed.DefaultMaxFileBytes),
		AllowedExtensions:      filed.DefaultAllowedExtensions,
		ReadKey:                "",
		WriteKey:               "",
		AdminKey:               "",
		DisableCORS:            false,
		MetricsListen:          filed.DefaultMetricsListen,
		PprofListen:            filed.DefaultPprofListen,
		EnableProfilingMetrics: false,
		OTLPEndpoint:           "",
		ShutdownTimeout:        filed.DefaultShutdownTimeout.String(),
		LogLevel:               "info",
	}
	for _, override := range overrides {
		override(&defaults)
	}
	out, err := yaml.Marshal(&defaults)
	if err != nil {
		return nil, fmt.Errorf("marshal default config: %w", err)
	}
	return out, nil
}
