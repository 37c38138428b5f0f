package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/renderinc/tgsift/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve <export-dir>",
		Short: "Start the web interface for an indexed export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if host != "" {
				a.cfg.Serve.Host = host
			}
			if port != 0 {
				a.cfg.Serve.Port = port
			}
			return a.runServe(cmd, args[0])
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "host to bind to (default localhost)")
	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (default 6894)")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command, exportDir string) error {
	out := cmd.OutOrStdout()

	idx, err := a.openIndex(exportDir)
	if err != nil {
		return err
	}
	defer idx.Close()

	compiler, err := a.compiler()
	if err != nil {
		return err
	}

	server, err := web.NewServer(idx, compiler, exportDir, web.Options{
		Limit:     a.cfg.Search.Limit,
		Fragments: a.cfg.Search.Fragments,
		Metrics:   a.metrics,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	addr := a.cfg.Serve.Addr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	fmt.Fprintln(out)
	fmt.Fprintln(out, "=== tgsift Web Server ===")
	fmt.Fprintf(out, "Server running at: http://%s\n", addr)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop")
	slog.Info("listening", "addr", addr, "export", exportDir)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
