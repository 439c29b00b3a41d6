package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/schemahub/registry-mcp-go/internal/dispatch"
	"github.com/schemahub/registry-mcp-go/mcpserver"
	"github.com/schemahub/registry-mcp-go/registry"
	"github.com/schemahub/registry-mcp-go/transport/stdio"
)

const serverVersion = "0.3.0"

func newStdioCommand(cfg *config) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve MCP over stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStdio(cmd.Context(), cfg)
		},
	}
}

// buildDispatcher assembles the registry client, the tool catalog, and the
// MCP server behind a frame dispatcher. Both serve modes share it.
func buildDispatcher(cfg *config, log *slog.Logger) (*dispatch.Dispatcher, error) {
	client, err := registry.NewClient(cfg.RegistryURL,
		registry.WithLogger(log))
	if err != nil {
		return nil, err
	}

	srv := mcpserver.New(newToolSet(client),
		mcpserver.WithLogger(log),
		mcpserver.WithServerInfo("registry-mcp", serverVersion),
		mcpserver.WithInstructions("Tools for browsing, publishing, and checking schemas in the connected schema registry."))

	return dispatch.New(srv, dispatch.WithLogger(log)), nil
}

func runStdio(ctx context.Context, cfg *config) error {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	d, err := buildDispatcher(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var tr *stdio.Transport
	tr = stdio.New(func(ctx context.Context, frame string) {
		d.Handler(tr)(ctx, frame)
	}, stdio.WithLogger(log))

	if err := tr.Start(ctx); err != nil {
		return fmt.Errorf("start stdio transport: %w", err)
	}
	log.InfoContext(ctx, "stdio.serve.start", slog.String("registry_url", cfg.RegistryURL))

	// Run until the client hangs up or we get a signal.
	select {
	case <-tr.Done():
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop stdio transport: %w", err)
	}
	log.Info("stdio.serve.stop")
	return nil
}
