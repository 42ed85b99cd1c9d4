// Package main is the CLI entry point for the Tool & Automation Server's
// automation worker: the Event/Webhook Dispatcher, the fetch-diff-match-
// execute Processor, the delayed-action Poller, and the Schema Watcher.
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

	"github.com/fieldbridge/fieldbridge/internal/actions"
	"github.com/fieldbridge/fieldbridge/internal/automation"
	"github.com/fieldbridge/fieldbridge/internal/bitable"
	"github.com/fieldbridge/fieldbridge/internal/checkpoint"
	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/deadletter"
	"github.com/fieldbridge/fieldbridge/internal/idempotency"
	"github.com/fieldbridge/fieldbridge/internal/logging"
	"github.com/fieldbridge/fieldbridge/internal/netguard"
	"github.com/fieldbridge/fieldbridge/internal/rules"
	"github.com/fieldbridge/fieldbridge/internal/runlog"
	"github.com/fieldbridge/fieldbridge/internal/schema"
	"github.com/fieldbridge/fieldbridge/internal/scheduler"
	"github.com/fieldbridge/fieldbridge/internal/snapshot"
	"github.com/fieldbridge/fieldbridge/internal/webhookauth"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fieldbridge-automation",
		Short:        "Run the fieldbridge Tool & Automation Server's event worker",
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
		Short: "Start the automation worker's dispatcher, processor, and poller",
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
	logger.Info(ctx, "starting fieldbridge automation worker", "addr", cfg.Server.Addr)

	client := bitable.New(cfg.Bitable.BaseURL, "", 10*time.Second)

	snapshots, err := snapshot.Open(dbPath(cfg, "snapshots.db"))
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	idem, err := idempotency.Open(dbPath(cfg, "idempotency.db"), 24*time.Hour)
	if err != nil {
		return fmt.Errorf("open idempotency store: %w", err)
	}
	checkpoints, err := checkpoint.Open(dbPath(cfg, "checkpoints.db"))
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	deadLetters, err := deadletter.Open(dbPath(cfg, "deadletters.db"))
	if err != nil {
		return fmt.Errorf("open dead letter store: %w", err)
	}
	delayStore, err := scheduler.OpenStore(dbPath(cfg, "delay_tasks.db"))
	if err != nil {
		return fmt.Errorf("open delay task store: %w", err)
	}

	var runLog runlog.Store
	if cfg.Database.Driver == "jsonl" {
		runLog, err = runlog.OpenJSONL(dbPath(cfg, "runlog.jsonl"))
	} else {
		runLog, err = runlog.OpenSQLite(dbPath(cfg, "runlog.db"))
	}
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}

	rulesRegistry := rules.New(cfg.RulesFile, logger)
	if err := rulesRegistry.Load(); err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	go func() {
		if err := rulesRegistry.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn(ctx, "rules watcher stopped", "error", err)
		}
	}()

	allowlist := &netguard.AllowlistPolicy{AllowedDomains: cfg.Automation.HTTP.AllowedDomains}
	executor := actions.New(client, allowlist, delayStore, logger, cfg.Automation.Action.MaxRetries, cfg.Automation.Action.RetryDelay)

	processor := automation.New(&bitableFetcher{client: client}, snapshots, idem, checkpoints, rulesRegistry, executor, runLog, deadLetters, logger, automation.Options{
		TriggerOnNewRecordEvent: cfg.Automation.NewRecord.TriggerOnEvent,
		TriggerOnNewRecordScan:  cfg.Automation.NewRecord.TriggerOnScan,
		ScanRequiresCheckpoint:  cfg.Automation.NewRecord.ScanRequiresCheckpoint,
		StatusWriteEnabled:      cfg.Automation.StatusWriteEnabled,
	})

	schemaCache := schema.New(&webhookRiskNotifier{cfg: cfg.Automation.Schema, logger: logger}, logger)

	dispatcher := automation.NewDispatcher(processor, schemaCache, &bitableSchemaFetcher{client: client}, rulesRegistry, delayStore, webhookauth.Config{
		APIKey:           cfg.Automation.Webhook.APIKey,
		HMACSecret:       cfg.Automation.Webhook.SignatureSecret,
		ToleranceSeconds: int64(cfg.Automation.Webhook.TimestampTolerance.Seconds()),
	}, cfg.Automation.Webhook.VerificationToken, logger, cfg.Bitable.AppToken, cfg.Bitable.TableID)

	mux := http.NewServeMux()
	dispatcher.Mount(mux)
	dispatcher.MountScan(mux, client)

	var poller *scheduler.Poller
	if cfg.Automation.Poller.Enabled {
		poller = scheduler.NewPoller(delayStore, processor, logger, cfg.Automation.Poller.Interval)
		poller.Start(ctx)
	}

	server := &http.Server{
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
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server error", "error", err)
		}
	}()
	logger.Info(ctx, "automation worker started", "addr", cfg.Server.Addr)

	<-ctx.Done()
	logger.Info(ctx, "shutting down automation worker")

	if poller != nil {
		poller.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func dbPath(cfg *config.Config, name string) string {
	if cfg.Database.Driver == "jsonl" {
		return cfg.Database.DSN + "." + name + ".jsonl"
	}
	return cfg.Database.DSN + "." + name
}

// bitableFetcher adapts *bitable.Client to automation.RecordFetcher: the
// backend only exposes whole-record reads, so a field subset is carved out
// client-side rather than pushed down as a query parameter.
type bitableFetcher struct {
	client *bitable.Client
}

func (f *bitableFetcher) FetchFields(ctx context.Context, loc models.Locator, fields []string) (models.Fields, error) {
	record, err := f.client.GetRecord(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return record.Fields, nil
	}
	subset := make(models.Fields, len(fields))
	for _, name := range fields {
		if value, ok := record.Fields[name]; ok {
			subset[name] = value
		}
	}
	return subset, nil
}

// bitableSchemaFetcher adapts *bitable.Client to automation.SchemaFetcher.
type bitableSchemaFetcher struct {
	client *bitable.Client
}

func (f *bitableSchemaFetcher) FetchSchema(ctx context.Context, appToken, tableID string) (schema.FieldSchema, error) {
	fields, err := f.client.GetTableSchema(ctx, appToken, tableID)
	if err != nil {
		return nil, err
	}
	out := make(schema.FieldSchema, len(fields))
	for _, field := range fields {
		out[field.Name] = field.Kind
	}
	return out, nil
}
