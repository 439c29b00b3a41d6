package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/schemahub/registry-mcp-go/transport/ssehttp"
)

func newHTTPCommand(cfg *config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve MCP over HTTP with SSE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHTTP(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.HTTPAddr, "addr", ":8080", "address to listen on")
	cmd.Flags().IntVar(&cfg.QueueBound, "queue-bound", 0, "max queued outbound frames, 0 for unbounded")
	return cmd
}

func runHTTP(ctx context.Context, cfg *config) error {
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

	tr := ssehttp.New(
		ssehttp.WithLogger(log),
		ssehttp.WithResponder(d.Responder()),
		ssehttp.WithQueueBound(cfg.QueueBound))
	if err := tr.Start(ctx); err != nil {
		return fmt.Errorf("start sse transport: %w", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           tr,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "http.serve.start",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("registry_url", cfg.RegistryURL))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listen: %w", err)
		}
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(stopCtx); err != nil {
		log.Warn("http.shutdown.fail", slog.String("err", err.Error()))
	}
	if err := tr.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop sse transport: %w", err)
	}
	log.Info("http.serve.stop")
	return nil
}
