package config

import "time"

// AutomationConfig mirrors the `AUTOMATION_*` environment keys of
// spec.md §6.
type AutomationConfig struct {
	// Enabled is the master on/off switch (AUTOMATION_ENABLED).
	Enabled bool `yaml:"enabled"`

	Poller PollerConfig `yaml:"poller"`

	// StatusWriteEnabled mirrors run status into the source table
	// (AUTOMATION_STATUS_WRITE_ENABLED).
	StatusWriteEnabled bool `yaml:"status_write_enabled"`

	NewRecord  NewRecordConfig  `yaml:"new_record"`
	Schema     SchemaSyncConfig `yaml:"schema_sync"`
	Action     ActionConfig     `yaml:"action"`
	Sync       SyncConfig       `yaml:"sync"`
	HTTP       HTTPActionConfig `yaml:"http"`
	Webhook    WebhookAuthConfig `yaml:"webhook"`
}

// PollerConfig controls the polling-compensation loop
// (AUTOMATION_POLLER_ENABLED).
type PollerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// NewRecordConfig controls whether rules fire for a record observed for the
// first time via the event path or the scan path (spec.md §4.2 step 3).
type NewRecordConfig struct {
	TriggerOnEvent            bool `yaml:"trigger_on_event"`
	TriggerOnScan             bool `yaml:"trigger_on_scan"`
	ScanRequiresCheckpoint    bool `yaml:"scan_requires_checkpoint"`
}

// SchemaSyncConfig controls the Schema Watcher (spec.md §4.4).
type SchemaSyncConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Interval         time.Duration `yaml:"interval"`
	EventDriven      bool          `yaml:"event_driven"`
	WebhookURL       string        `yaml:"webhook_url"`
	WebhookSecret    string        `yaml:"webhook_secret"`
	WebhookDrill     bool          `yaml:"webhook_drill"`
}

// ActionConfig controls the Action Executors' retry policy (spec.md §4.3).
type ActionConfig struct {
	MaxRetries        int           `yaml:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
}

// SyncConfig controls `/automation/sync` deletion reconciliation
// (AUTOMATION_SYNC_DELETIONS_ENABLED / …_MAX_PER_RUN).
type SyncConfig struct {
	DeletionsEnabled bool `yaml:"deletions_enabled"`
	MaxPerRun        int  `yaml:"max_per_run"`
}

// HTTPActionConfig controls http.request's safety rules (spec.md §4.3,
// §8 invariant 7).
type HTTPActionConfig struct {
	AllowedDomains []string      `yaml:"allowed_domains"`
	Timeout        time.Duration `yaml:"timeout"`
}

// WebhookAuthConfig controls `/automation/webhook/{rule_id}` authentication
// (spec.md §4.1).
type WebhookAuthConfig struct {
	APIKey                  string        `yaml:"api_key"`
	SignatureSecret         string        `yaml:"signature_secret"`
	TimestampTolerance      time.Duration `yaml:"timestamp_tolerance"`
	VerificationToken       string        `yaml:"verification_token"`
}

// MCPConfig configures where the orchestrator finds the Tool Server
// (MCP_SERVER_BASE).
type MCPConfig struct {
	ServerBase string        `yaml:"server_base"`
	Timeout    time.Duration `yaml:"timeout"`
}

// BitableConfig configures default table coordinates
// (BITABLE_* env keys).
type BitableConfig struct {
	BaseURL       string `yaml:"base_url"`
	AppToken      string `yaml:"app_token"`
	TableID       string `yaml:"table_id"`
	ViewID        string `yaml:"view_id"`
	Domain        string `yaml:"domain"`
}
