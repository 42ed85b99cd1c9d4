// Package main is the CLI entry point for the Tool & Automation Server's
// ROLE=mcp_server surface: the Tool Registry exposing feishu.v1.bitable.*
// and feishu.v1.doc.search over the `POST /mcp/tools/{tool_name}` HTTP
// envelope (spec.md §4.7, §6).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldbridge/fieldbridge/internal/bitable"
	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/docsearch"
	"github.com/fieldbridge/fieldbridge/internal/logging"
	"github.com/fieldbridge/fieldbridge/internal/mcptools"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fieldbridge-mcp",
		Short:        "Run the fieldbridge Tool Registry's HTTP MCP surface",
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd())
	return root
}

func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP tool server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := logging.NewLogger(logging.LogConfig{Level: level, Format: cfg.Logging.Format})
	logger.Info(ctx, "starting fieldbridge mcp tool server", "addr", cfg.Server.Addr)

	bitableClient := bitable.New(cfg.Bitable.BaseURL, "", 10*time.Second)
	docClient := docsearch.New(cfg.Bitable.BaseURL, "", 10*time.Second)

	registry := mcptools.New()
	mcptools.RegisterBitableTools(registry, bitableClient)
	mcptools.RegisterDocTools(registry, docClient)

	server := mcptools.NewServer(registry, logger)
	mux := http.NewServeMux()
	server.Mount(mux)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           logger.HTTPMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server error", "error", err)
		}
	}()
	logger.Info(ctx, "mcp tool server started", "addr", cfg.Server.Addr)

	<-ctx.Done()
	logger.Info(ctx, "shutting down mcp tool server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}
