package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tejas96/sdlc-agents-sub000/internal/api"
	"github.com/tejas96/sdlc-agents-sub000/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the sessions API over HTTP. Turns are streamed as server-sent
events; closing the connection cancels the agent.

Endpoints:
  POST   /api/sessions                  create a session
  GET    /api/sessions                  list sessions
  GET    /api/sessions/{id}             get a session and its conversation
  DELETE /api/sessions/{id}             delete a session
  POST   /api/sessions/{id}/messages    send a message and stream the turn
  GET    /api/sessions/{id}/artifacts   list artifacts (?type=epic)
  GET    /api/workflows                 list workflows
  GET    /api/logs                      tail the log
  GET    /api/health                    health check

Example:
  sdlc-agents serve                       # listen on server.addr
  sdlc-agents serve --addr :8080`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Without a debug log, entries are still published for /api/logs.
	if !debugEnabled() {
		log.InitWriter(io.Discard, log.LevelInfo)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	server, err := api.NewServer(api.ServerConfig{
		Addr: addr,
		Handler: api.HandlerConfig{
			Sessions:  a.sessions,
			Templates: a.templates,
			Tracer:    a.tracing.Tracer(),
		},
	})
	if err != nil {
		_ = a.Close(context.WithoutCancel(ctx))
		return fmt.Errorf("creating API server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "sdlc-agents listening on port %d\n", server.Port())
	_, _ = fmt.Fprintln(out, "Press Ctrl+C to stop")

	var serveErr error
	select {
	case <-ctx.Done():
		_, _ = fmt.Fprintln(out, "\nShutting down...")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error(log.CatHTTP, "Error stopping API server", "error", err)
	}
	if err := a.Close(shutdownCtx); err != nil {
		log.Error(log.CatHTTP, "Error closing components", "error", err)
	}
	return serveErr
}
