package models

import "time"

// RunResult enumerates the outcome of evaluating one event against the
// rules registered for its table.
type RunResult string

const (
	RunSuccess RunResult = "success"
	RunPartial RunResult = "partial"
	RunFailed  RunResult = "failed"
	RunNoMatch RunResult = "no_match"
)

// ActionDetail records the outcome of one pipeline step.
type ActionDetail struct {
	Type       ActionType `json:"type"`
	RetryCount int        `json:"retry_count"`
	DurationMS int64      `json:"duration_ms"`
	OK         bool       `json:"ok"`
	Error      string     `json:"error,omitempty"`
}

// RunLogRow is the fixed-shape, append-only record of one rule evaluation
// (spec.md §3, §6 "Run-log row").
type RunLogRow struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	EventID        string         `json:"event_id"`
	RuleID         string         `json:"rule_id,omitempty"`
	AppToken       string         `json:"app_token"`
	TableID        string         `json:"table_id"`
	RecordID       string         `json:"record_id"`
	RulesEvaluated []string       `json:"rules_evaluated"`
	RulesMatched   []string       `json:"rules_matched"`
	TriggerField   string         `json:"trigger_field,omitempty"`
	Changed        *Change        `json:"changed,omitempty"`
	ActionsExec    []ActionType   `json:"actions_executed"`
	ActionsDetail  []ActionDetail `json:"actions_detail"`
	Result         RunResult      `json:"result"`
	Error          string         `json:"error,omitempty"`
	RetryCount     int            `json:"retry_count"`
	SentDeadLetter bool           `json:"sent_to_dead_letter"`
	DurationMS     int64          `json:"duration_ms"`
}

// DeadLetter is a persisted, reprocessable record of a permanently failing
// action.
type DeadLetter struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	RuleID     string    `json:"rule_id"`
	AppToken   string    `json:"app_token"`
	TableID    string    `json:"table_id"`
	RecordID   string    `json:"record_id"`
	ActionType ActionType `json:"action_type"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retry_count"`
	Payload    []byte    `json:"payload,omitempty"`
	Reprocessed bool     `json:"reprocessed"`
}

// DelayTaskStatus enumerates the lifecycle of a persisted delay task.
type DelayTaskStatus string

const (
	DelayScheduled DelayTaskStatus = "scheduled"
	DelayRunning   DelayTaskStatus = "running"
	DelayDone      DelayTaskStatus = "done"
	DelayCancelled DelayTaskStatus = "cancelled"
	DelayFailed    DelayTaskStatus = "failed"
)

// DelayTask is a persisted scheduled task created by the `delay` action; the
// scheduler later replays its downstream sub-pipeline.
type DelayTask struct {
	TaskID      string          `json:"task_id"`
	RuleID      string          `json:"rule_id"`
	AppToken    string          `json:"app_token"`
	TableID     string          `json:"table_id"`
	RecordID    string          `json:"record_id"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	Pipeline    []Action        `json:"pipeline"`
	Status      DelayTaskStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	RunAt       time.Time       `json:"run_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
}
