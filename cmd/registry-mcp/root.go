package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/spf13/cobra"
)

// config holds the runtime settings, populated from the environment and
// overridable by flags. Flags win when both are set.
type config struct {
	RegistryURL string `env:"REGISTRY_MCP_REGISTRY_URL,default=http://localhost:8081"`
	LogLevel    string `env:"REGISTRY_MCP_LOG_LEVEL,default=info"`
	LogFormat   string `env:"REGISTRY_MCP_LOG_FORMAT,default=text"`
	HTTPAddr    string `env:"REGISTRY_MCP_HTTP_ADDR,default=:8080"`
	QueueBound  int    `env:"REGISTRY_MCP_QUEUE_BOUND,default=0"`
}

func newRootCommand() *cobra.Command {
	var cfg config

	cmd := &cobra.Command{
		Use:           "registry-mcp",
		Short:         "MCP server exposing a schema registry as tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var envCfg config
			if err := envdecode.StrictDecode(&envCfg); err != nil {
				return fmt.Errorf("read environment: %w", err)
			}
			// Flags left at their defaults fall back to the environment.
			if !cmd.Flags().Changed("registry-url") {
				cfg.RegistryURL = envCfg.RegistryURL
			}
			if !cmd.Flags().Changed("log-level") {
				cfg.LogLevel = envCfg.LogLevel
			}
			if !cmd.Flags().Changed("log-format") {
				cfg.LogFormat = envCfg.LogFormat
			}
			if !cmd.Flags().Changed("addr") {
				cfg.HTTPAddr = envCfg.HTTPAddr
			}
			if !cmd.Flags().Changed("queue-bound") {
				cfg.QueueBound = envCfg.QueueBound
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfg.RegistryURL, "registry-url", "http://localhost:8081", "base URL of the schema registry API")
	pf.StringVar(&cfg.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&cfg.LogFormat, "log-format", "text", "log format (text, json)")

	cmd.AddCommand(newStdioCommand(&cfg))
	cmd.AddCommand(newHTTPCommand(&cfg))
	return cmd
}

// newLogger builds the process logger. It always writes to stderr so the
// stdio transport keeps stdout to itself.
func newLogger(cfg *config) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
}
