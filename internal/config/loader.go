package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file (if path is non-empty and exists), applies
// environment-variable overrides per spec.md §6's enumerated keys, fills in
// defaults, and validates required collaborators. A missing required
// collaborator is returned as an error so main() can exit(1) — config
// validation never happens lazily at first use (spec.md §5).
func Load(path string) (*Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config populated with the defaults the teacher applies
// throughout internal/config (sane timeouts, sqlite driver, disabled
// optional subsystems).
func Default() *Config {
	return &Config{
		Role:    RoleOrchestrator,
		Server:  ServerConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "fieldbridge.db",
		},
		Automation: AutomationConfig{
			Enabled: true,
			Poller:  PollerConfig{Enabled: false, Interval: 5 * time.Minute},
			NewRecord: NewRecordConfig{
				TriggerOnEvent:         false,
				TriggerOnScan:          false,
				ScanRequiresCheckpoint: true,
			},
			Schema: SchemaSyncConfig{Enabled: true, Interval: 10 * time.Minute, EventDriven: true},
			Action: ActionConfig{MaxRetries: 3, RetryDelay: 2 * time.Second},
			Sync:   SyncConfig{DeletionsEnabled: true, MaxPerRun: 200},
			HTTP:   HTTPActionConfig{Timeout: 10 * time.Second},
			Webhook: WebhookAuthConfig{TimestampTolerance: 5 * time.Minute},
		},
		RulesFile: "rules.yaml",
		MCP:       MCPConfig{ServerBase: "http://127.0.0.1:8081", Timeout: 10 * time.Second},
		Channel:   ChannelConfig{DedupeTTL: 10 * time.Minute},
		LLM:       LLMConfig{Timeout: 10 * time.Second},
		Reminder: ReminderConfig{
			SchedulerEnabled: true,
			PollInterval:     30 * time.Second,
			LockTTL:          2 * time.Minute,
		},
		Tables: TablesConfig{DisambiguateThreshold: 0.65, Timezone: "Asia/Shanghai"},
		Intent: IntentConfig{
			DirectExecuteThreshold: 0.8,
			LLMConfirmThreshold:    0.4,
			DefaultSkill:           "chitchat",
			MaxHops:                2,
		},
	}
}

// applyEnv overrides cfg fields from the environment variables enumerated in
// spec.md §6, following the teacher's ExpandEnv-at-load-time idiom.
func applyEnv(cfg *Config) {
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			} else if secs, err := strconv.Atoi(v); err == nil {
				*dst = time.Duration(secs) * time.Second
			}
		}
	}

	setString("ROLE", (*string)(&cfg.Role))

	setBool("AUTOMATION_ENABLED", &cfg.Automation.Enabled)
	setBool("AUTOMATION_POLLER_ENABLED", &cfg.Automation.Poller.Enabled)
	setBool("AUTOMATION_STATUS_WRITE_ENABLED", &cfg.Automation.StatusWriteEnabled)
	setBool("AUTOMATION_TRIGGER_ON_NEW_RECORD_EVENT", &cfg.Automation.NewRecord.TriggerOnEvent)
	setBool("AUTOMATION_TRIGGER_ON_NEW_RECORD_SCAN", &cfg.Automation.NewRecord.TriggerOnScan)
	setBool("AUTOMATION_TRIGGER_ON_NEW_RECORD_SCAN_REQUIRES_CHECKPOINT", &cfg.Automation.NewRecord.ScanRequiresCheckpoint)

	setBool("AUTOMATION_SCHEMA_SYNC_ENABLED", &cfg.Automation.Schema.Enabled)
	setDuration("AUTOMATION_SCHEMA_SYNC_INTERVAL", &cfg.Automation.Schema.Interval)
	setBool("AUTOMATION_SCHEMA_SYNC_EVENT_DRIVEN", &cfg.Automation.Schema.EventDriven)
	setString("AUTOMATION_SCHEMA_WEBHOOK_URL", &cfg.Automation.Schema.WebhookURL)
	setString("AUTOMATION_SCHEMA_WEBHOOK_SECRET", &cfg.Automation.Schema.WebhookSecret)
	setBool("AUTOMATION_SCHEMA_WEBHOOK_DRILL", &cfg.Automation.Schema.WebhookDrill)

	setInt("AUTOMATION_ACTION_MAX_RETRIES", &cfg.Automation.Action.MaxRetries)
	setDuration("AUTOMATION_ACTION_RETRY_DELAY_SECONDS", &cfg.Automation.Action.RetryDelay)

	setBool("AUTOMATION_SYNC_DELETIONS_ENABLED", &cfg.Automation.Sync.DeletionsEnabled)
	setInt("AUTOMATION_SYNC_DELETIONS_MAX_PER_RUN", &cfg.Automation.Sync.MaxPerRun)

	if v, ok := os.LookupEnv("AUTOMATION_HTTP_ALLOWED_DOMAINS"); ok {
		cfg.Automation.HTTP.AllowedDomains = splitCSV(v)
	}
	setDuration("AUTOMATION_HTTP_TIMEOUT_SECONDS", &cfg.Automation.HTTP.Timeout)

	setString("AUTOMATION_WEBHOOK_API_KEY", &cfg.Automation.Webhook.APIKey)
	setString("AUTOMATION_WEBHOOK_SIGNATURE_SECRET", &cfg.Automation.Webhook.SignatureSecret)
	setDuration("AUTOMATION_WEBHOOK_TIMESTAMP_TOLERANCE_SECONDS", &cfg.Automation.Webhook.TimestampTolerance)

	setString("TASK_LLM_BASE_URL", &cfg.LLM.Task.BaseURL)
	setString("TASK_LLM_API_KEY", &cfg.LLM.Task.APIKey)
	setString("TASK_LLM_MODEL", &cfg.LLM.Task.Model)
	setString("LLM_BASE_URL", &cfg.LLM.Chat.BaseURL)
	setString("LLM_API_KEY", &cfg.LLM.Chat.APIKey)
	setString("LLM_MODEL", &cfg.LLM.Chat.Model)
	setDuration("LLM_TIMEOUT_SECONDS", &cfg.LLM.Timeout)

	setString("FEISHU_VERIFICATION_TOKEN", &cfg.Channel.VerificationToken)
	setString("FEISHU_ENCRYPT_KEY", &cfg.Channel.EncryptKey)
	setString("FEISHU_APP_ID", &cfg.Channel.AppID)
	setString("FEISHU_APP_SECRET", &cfg.Channel.AppSecret)

	setString("BITABLE_BASE_URL", &cfg.Bitable.BaseURL)
	setString("BITABLE_APP_TOKEN", &cfg.Bitable.AppToken)
	setString("BITABLE_TABLE_ID", &cfg.Bitable.TableID)
	setString("BITABLE_VIEW_ID", &cfg.Bitable.ViewID)
	setString("BITABLE_DOMAIN", &cfg.Bitable.Domain)

	setString("MCP_SERVER_BASE", &cfg.MCP.ServerBase)

	setString("POSTGRES_DSN", &cfg.Database.DSN)
	setBool("REMINDER_SCHEDULER_ENABLED", &cfg.Reminder.SchedulerEnabled)

	if v, ok := os.LookupEnv("INTENT_DIRECT_EXECUTE_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Intent.DirectExecuteThreshold = f
		}
	}
	if v, ok := os.LookupEnv("INTENT_LLM_CONFIRM_THRESHOLD"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Intent.LLMConfirmThreshold = f
		}
	}
	setString("INTENT_DEFAULT_SKILL", &cfg.Intent.DefaultSkill)
	setInt("INTENT_MAX_HOPS", &cfg.Intent.MaxHops)
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks for missing required collaborators. The Conversation
// Orchestrator must fail fast (exit code 1) rather than lazily at first use
// if a required collaborator is absent (spec.md §5).
func (c *Config) Validate() error {
	switch c.Role {
	case RoleMCPServer, RoleAutomationWorker, RoleOrchestrator:
	default:
		return fmt.Errorf("config: invalid ROLE %q", c.Role)
	}

	if c.Role == RoleAutomationWorker {
		if strings.TrimSpace(c.RulesFile) == "" {
			return fmt.Errorf("config: automation_worker requires rules_file")
		}
		if c.Database.Driver != "sqlite" && c.Database.Driver != "jsonl" {
			return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
		}
	}

	if c.Role == RoleOrchestrator {
		if strings.TrimSpace(c.MCP.ServerBase) == "" {
			return fmt.Errorf("config: orchestrator requires mcp.server_base (MCP_SERVER_BASE)")
		}
	}

	return nil
}
