package config

import "time"

// ChannelConfig configures the chat-platform webhook adapter
// (`FEISHU_*` env keys — named generically since the transport is an
// OUT-OF-SCOPE collaborator per spec.md §1).
type ChannelConfig struct {
	VerificationToken string `yaml:"verification_token"`
	EncryptKey        string `yaml:"encrypt_key"`
	AppID             string `yaml:"app_id"`
	AppSecret         string `yaml:"app_secret"`

	// DedupeTTL bounds how long a message/event id is remembered for
	// retransmit dedup (spec.md §8 invariant 9).
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
}

// LLMConfig configures the dual-model routing described by spec.md §6
// (`TASK_LLM_*` / `LLM_*`).
type LLMConfig struct {
	Chat LLMProviderConfig `yaml:"chat"`
	Task LLMProviderConfig `yaml:"task"`

	// Timeout bounds every LLM call (spec.md §5 "LLM default 10s").
	Timeout time.Duration `yaml:"timeout"`
}

// LLMProviderConfig is one model endpoint's connection details.
type LLMProviderConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// ReminderConfig configures the reminder store and its background
// scheduler (`POSTGRES_DSN`, `REMINDER_SCHEDULER_ENABLED`).
type ReminderConfig struct {
	SchedulerEnabled bool          `yaml:"scheduler_enabled"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
}

// TablesConfig configures table-alias disambiguation for QuerySkill
// (spec.md §4.6): maps a spoken alias to a table locator, plus the
// confidence threshold below which the LLM is consulted.
type TablesConfig struct {
	Aliases               map[string]TableAlias `yaml:"aliases"`
	DisambiguateThreshold float64               `yaml:"disambiguate_threshold"`
	Timezone              string                `yaml:"timezone"`
	// LinkedWrites configures secondary-table writes after a primary create
	// (spec.md §4.6 "Multi-table linked write").
	LinkedWrites []LinkedWriteConfig `yaml:"linked_writes"`
}

// TableAlias is one configured natural-language alias for a table.
type TableAlias struct {
	AppToken string   `yaml:"app_token"`
	TableID  string   `yaml:"table_id"`
	Aliases  []string `yaml:"aliases"`

	// DateField names the date-kind field QuerySkill ranges over for
	// "today's X" style queries (spec.md S2 "开庭日").
	DateField string `yaml:"date_field"`
	// PersonField names the person-kind field QuerySkill restricts to the
	// current user for "my X" style queries (spec.md S1 "主办律师").
	PersonField string `yaml:"person_field"`
	// RequiredFields lists the fields CreateSkill must have before it will
	// write a record; a missing one triggers a complete_fields pending
	// action (spec.md §4.6).
	RequiredFields []string `yaml:"required_fields"`
	// Fields lists every field name CreateSkill/UpdateSkill recognize when
	// slot-filling free text (a superset of RequiredFields).
	Fields []string `yaml:"fields"`
}

// LinkedWriteConfig describes a one-directional secondary-table write
// attempted after a successful primary create (spec.md §9 "Cyclic
// references... avoided by making linked writes one-directional").
type LinkedWriteConfig struct {
	Name          string            `yaml:"name"`
	FromTableID   string            `yaml:"from_table_id"`
	ToTableID     string            `yaml:"to_table_id"`
	ToAppToken    string            `yaml:"to_app_token"`
	FieldMapping  map[string]string `yaml:"field_mapping"`
}
