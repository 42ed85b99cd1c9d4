// Package config defines fieldbridge's configuration structures and the
// loader that merges a YAML file with environment-variable overrides,
// mirroring the teacher's one-struct-per-concern layout.
package config

// Config is the root configuration for every fieldbridge process. Which
// sub-sections matter depends on Role: the automation worker reads
// Automation/Rules/Database/HTTP; the orchestrator reads Channel/LLM/Tables/
// Reminder/Database.
type Config struct {
	Role     Role           `yaml:"role"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`

	Automation AutomationConfig `yaml:"automation"`
	RulesFile  string           `yaml:"rules_file"`

	MCP MCPConfig `yaml:"mcp"`

	Channel  ChannelConfig  `yaml:"channel"`
	Bitable  BitableConfig  `yaml:"bitable"`
	LLM      LLMConfig      `yaml:"llm"`
	Reminder ReminderConfig `yaml:"reminder"`
	Tables   TablesConfig   `yaml:"tables"`
	Intent   IntentConfig   `yaml:"intent"`
}

// Role selects which HTTP surface a process process exposes (spec.md §6
// `ROLE`).
type Role string

const (
	RoleMCPServer        Role = "mcp_server"
	RoleAutomationWorker Role = "automation_worker"
	RoleOrchestrator     Role = "orchestrator"
)

// ServerConfig configures the process's HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig configures the durable store backing every persisted
// store (Snapshot/Idempotency/Checkpoint/RunLog/DeadLetter/DelayTasks/
// Reminders). SQLite is canonical; an empty DSN falls back to an in-memory
// store suitable only for tests.
type DatabaseConfig struct {
	// Driver is "sqlite" (canonical) or "jsonl" (compatibility fallback,
	// spec.md §3 "Run Log").
	Driver string `yaml:"driver"`
	// DSN is the sqlite file path, or the JSONL directory when Driver is
	// "jsonl".
	DSN string `yaml:"dsn"`
}

// LoggingConfig configures the process-wide structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
