package models

// TriggerOn enumerates the record lifecycle events a rule can react to.
type TriggerOn string

const (
	TriggerOnCreated TriggerOn = "created"
	TriggerOnUpdated TriggerOn = "updated"
)

// ConditionKind enumerates the predicates the match engine understands.
type ConditionKind string

const (
	ConditionChanged         ConditionKind = "changed"
	ConditionEquals          ConditionKind = "equals"
	ConditionIn              ConditionKind = "in"
	ConditionAnyFieldChanged ConditionKind = "any_field_changed"
)

// Condition is one leaf predicate, or a boolean combinator over nested
// conditions via All/Any.
type Condition struct {
	Kind ConditionKind `yaml:"kind,omitempty" json:"kind,omitempty"`

	// Field is the target field name for Changed/Equals/In.
	Field string `yaml:"field,omitempty" json:"field,omitempty"`
	Value any    `yaml:"value,omitempty" json:"value,omitempty"`
	// Exclude lists field names ignored by AnyFieldChanged.
	Exclude []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`

	All []Condition `yaml:"all,omitempty" json:"all,omitempty"`
	Any []Condition `yaml:"any,omitempty" json:"any,omitempty"`
}

// Trigger describes what record lifecycle events and predicate a rule
// matches against.
type Trigger struct {
	On        []TriggerOn `yaml:"on" json:"on"`
	Field     string      `yaml:"field,omitempty" json:"field,omitempty"`
	Condition *Condition  `yaml:"condition,omitempty" json:"condition,omitempty"`
	All       []Condition `yaml:"all,omitempty" json:"all,omitempty"`
	Any       []Condition `yaml:"any,omitempty" json:"any,omitempty"`
}

// TableRef scopes a rule (or an action target) to a table, optionally a
// different app_token than the record being processed.
type TableRef struct {
	AppToken string `yaml:"app_token,omitempty" json:"app_token,omitempty"`
	TableID  string `yaml:"table_id" json:"table_id"`
}

// ActionType enumerates the supported pipeline step kinds.
type ActionType string

const (
	ActionLogWrite       ActionType = "log.write"
	ActionBitableUpdate  ActionType = "bitable.update"
	ActionBitableUpsert  ActionType = "bitable.upsert"
	ActionCalendarCreate ActionType = "calendar.create"
	ActionHTTPRequest    ActionType = "http.request"
	ActionDelay          ActionType = "delay"
)

// Action is one tagged-variant pipeline step. Only the fields relevant to
// Type are populated; see internal/actions for the executors.
type Action struct {
	Type ActionType `yaml:"type" json:"type"`

	// log.write
	Template string `yaml:"template,omitempty" json:"template,omitempty"`

	// bitable.update / bitable.upsert
	Target      *TableRef         `yaml:"target,omitempty" json:"target,omitempty"`
	Fields      map[string]string `yaml:"fields,omitempty" json:"fields,omitempty"`
	AnchorField string            `yaml:"anchor_field,omitempty" json:"anchor_field,omitempty"`

	// calendar.create
	Title      string `yaml:"title,omitempty" json:"title,omitempty"`
	StartField string `yaml:"start_field,omitempty" json:"start_field,omitempty"`
	EndField   string `yaml:"end_field,omitempty" json:"end_field,omitempty"`

	// http.request
	Method  string            `yaml:"method,omitempty" json:"method,omitempty"`
	URL     string            `yaml:"url,omitempty" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Body    map[string]any    `yaml:"body,omitempty" json:"body,omitempty"`

	// delay
	Seconds  int      `yaml:"seconds,omitempty" json:"seconds,omitempty"`
	Pipeline []Action `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`
}

// Rule is a declarative automation unit loaded from the rules file.
type Rule struct {
	ID      string   `yaml:"id" json:"id"`
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Table   TableRef `yaml:"table" json:"table"`
	Trigger Trigger  `yaml:"trigger" json:"trigger"`

	Pipeline []Action `yaml:"pipeline" json:"pipeline"`
}

// RuleFile is the top-level declarative YAML document shape (spec.md §6).
type RuleFile struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// TriggerFields returns the set of field names the rule's trigger directly
// names (its Field plus any leaf condition fields), used by the Processor to
// compute the minimal fetch set (spec.md §4.2 step 1).
func (r Rule) TriggerFields() []string {
	seen := map[string]bool{}
	var out []string
	add := func(f string) {
		if f != "" && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	add(r.Trigger.Field)
	var walk func(c Condition)
	walk = func(c Condition) {
		add(c.Field)
		for _, sub := range c.All {
			walk(sub)
		}
		for _, sub := range c.Any {
			walk(sub)
		}
	}
	if r.Trigger.Condition != nil {
		walk(*r.Trigger.Condition)
	}
	for _, c := range r.Trigger.All {
		walk(c)
	}
	for _, c := range r.Trigger.Any {
		walk(c)
	}
	return out
}

// UsesAnyFieldChanged reports whether the rule's trigger (at any nesting
// depth) relies on any_field_changed, which forces a full-field fetch.
func (r Rule) UsesAnyFieldChanged() bool {
	var walk func(c Condition) bool
	walk = func(c Condition) bool {
		if c.Kind == ConditionAnyFieldChanged {
			return true
		}
		for _, sub := range c.All {
			if walk(sub) {
				return true
			}
		}
		for _, sub := range c.Any {
			if walk(sub) {
				return true
			}
		}
		return false
	}
	if r.Trigger.Condition != nil && walk(*r.Trigger.Condition) {
		return true
	}
	for _, c := range r.Trigger.All {
		if walk(c) {
			return true
		}
	}
	for _, c := range r.Trigger.Any {
		if walk(c) {
			return true
		}
	}
	return false
}
