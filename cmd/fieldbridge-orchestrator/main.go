// Package main is the CLI entry point for the Conversation Orchestrator
// (spec.md §4.5): the channel webhook adapter, the L0/Intent/Router/Skill
// pipeline, and the background Reminder scheduler.
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
	"github.com/fieldbridge/fieldbridge/internal/channel"
	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/conversation"
	"github.com/fieldbridge/fieldbridge/internal/dedupe"
	"github.com/fieldbridge/fieldbridge/internal/intent"
	"github.com/fieldbridge/fieldbridge/internal/llm"
	"github.com/fieldbridge/fieldbridge/internal/logging"
	"github.com/fieldbridge/fieldbridge/internal/orchestrator"
	"github.com/fieldbridge/fieldbridge/internal/reminder"
	"github.com/fieldbridge/fieldbridge/internal/render"
	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/internal/skills"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "fieldbridge-orchestrator",
		Short:        "Run the fieldbridge Conversation Orchestrator",
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
		Short: "Start the conversation orchestrator's webhook and reminder scheduler",
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
	logger.Info(ctx, "starting fieldbridge conversation orchestrator", "addr", cfg.Server.Addr)

	bitableClient := bitable.New(cfg.Bitable.BaseURL, "", 10*time.Second)
	llmRouter := llm.NewRouter(cfg.LLM)

	convStore, err := conversation.Open(dbPath(cfg, "conversations.db"), conversation.DefaultIdleTTL)
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}

	reminderStore, err := reminder.OpenStore(dbPath(cfg, "reminders.db"))
	if err != nil {
		return fmt.Errorf("open reminder store: %w", err)
	}

	sender := &logSender{logger: logger}

	skillRouter := router.New()
	querySkill := skills.NewQuerySkill(bitableClient, llmRouter, cfg.Tables)
	createSkill := skills.NewCreateSkill(bitableClient, llmRouter, cfg.Tables)
	updateSkill := skills.NewUpdateSkill(bitableClient, llmRouter, cfg.Tables)
	deleteSkill := skills.NewDeleteSkill(bitableClient, llmRouter, cfg.Tables)
	summarySkill := skills.NewSummarySkill(llmRouter)
	reminderSkill := skills.NewReminderSkill(reminderStore, cfg.Tables.Timezone)
	chitchatSkill := skills.NewChitchatSkill(render.DefaultPool())

	skillRouter.Register(querySkill)
	skillRouter.Register(createSkill)
	skillRouter.Register(updateSkill)
	skillRouter.Register(deleteSkill)
	skillRouter.Register(summarySkill)
	skillRouter.Register(reminderSkill)
	skillRouter.Register(chitchatSkill)

	intentParser := intent.New(cfg.Intent, llmRouter)
	renderer := render.NewRenderer(render.DefaultPool(), nil)
	formatter := render.NewFormatter()

	orch, err := orchestrator.New(orchestrator.Deps{
		Conversation: convStore,
		Intent:       intentParser,
		Router:       skillRouter,
		Renderer:     renderer,
		Formatter:    formatter,
		Sender:       sender,
		DeleteSkill:  deleteSkill,
		Logger:       logger,
		MaxHops:      cfg.Intent.MaxHops,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}

	adapter := channel.NewAdapter(cfg.Channel, orch, logger)

	mux := http.NewServeMux()
	adapter.Mount(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var reminderScheduler *reminder.Scheduler
	if cfg.Reminder.SchedulerEnabled {
		dedupeCache := dedupe.NewDedupeCache(dedupe.DedupeCacheOptions{TTL: 24 * time.Hour, MaxSize: 10000})
		reminderScheduler = reminder.NewScheduler(reminderStore, sender, dedupeCache, cfg.Reminder.PollInterval, logger)
		go reminderScheduler.Run(ctx)
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

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "http server error", "error", err)
		}
	}()
	logger.Info(ctx, "conversation orchestrator started", "addr", cfg.Server.Addr)

	<-ctx.Done()
	logger.Info(ctx, "shutting down conversation orchestrator")

	if reminderScheduler != nil {
		reminderScheduler.Stop()
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

// logSender is the orchestrator's and reminder scheduler's ReplySender/
// Sender implementation: the actual chat-platform send is an out-of-scope
// collaborator (spec.md §1), so this seam just logs what would have been
// delivered. A real deployment swaps this for the channel SDK's send call.
type logSender struct {
	logger *logging.Logger
}

func (s *logSender) SendMessage(ctx context.Context, openID string, msg render.ChannelMessage) error {
	s.logger.Info(ctx, "reply dispatched", "open_id", openID, "text", msg.Text, "has_card", msg.Card != nil)
	return nil
}

func (s *logSender) SendText(ctx context.Context, openID, text string) error {
	s.logger.Info(ctx, "reminder dispatched", "open_id", openID, "text", text)
	return nil
}
