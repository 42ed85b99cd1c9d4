// Package models provides the shared wire-ish domain types for fieldbridge:
// tabular records/fields, rules, actions, events, and the stores built on top
// of them. Both the automation worker and the conversation orchestrator
// import this package so the two processes agree on one wire shape.
package models

import "time"

// FieldKind tags the known field value variants the tabular backend exposes.
// Unknown carries the raw payload untouched so the match engine can still
// treat it as "changed if bytes differ" without understanding its shape.
type FieldKind string

const (
	FieldKindText         FieldKind = "text"
	FieldKindSingleSelect FieldKind = "single_select"
	FieldKindMultiSelect  FieldKind = "multi_select"
	FieldKindDate         FieldKind = "date"
	FieldKindPerson       FieldKind = "person"
	FieldKindPhone        FieldKind = "phone"
	FieldKindLocation     FieldKind = "location"
	FieldKindLink         FieldKind = "link"
	FieldKindUnknown      FieldKind = "unknown"
)

// FieldValue is a tagged variant over the field kinds the tabular backend's
// schema can describe. Exactly one of the typed members is meaningful for a
// given Kind; Raw is always populated so unknown-kind diffing and template
// rendering can fall back to a byte comparison.
type FieldValue struct {
	Kind FieldKind `json:"kind"`

	Text         string   `json:"text,omitempty"`
	SingleSelect string   `json:"single_select,omitempty"`
	MultiSelect  []string `json:"multi_select,omitempty"`
	// DateMS is epoch-milliseconds UTC, per spec.
	DateMS   int64    `json:"date_ms,omitempty"`
	Persons  []string `json:"persons,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Location string   `json:"location,omitempty"`
	LinkIDs  []string `json:"link_ids,omitempty"`

	// Raw carries the untouched payload bytes for FieldKindUnknown, and is
	// also kept populated for every other kind so Equal has a cheap fallback.
	Raw []byte `json:"raw,omitempty"`
}

// Equal reports whether two field values are the same observed value. For
// FieldKindUnknown this degrades to a byte comparison per spec §9.
func (v FieldValue) Equal(o FieldValue) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case FieldKindText, FieldKindPhone, FieldKindLocation:
		return v.Text == o.Text && v.Phone == o.Phone && v.Location == o.Location
	case FieldKindSingleSelect:
		return v.SingleSelect == o.SingleSelect
	case FieldKindMultiSelect:
		return stringSliceEqual(v.MultiSelect, o.MultiSelect)
	case FieldKindDate:
		return v.DateMS == o.DateMS
	case FieldKindPerson:
		return stringSliceEqual(v.Persons, o.Persons)
	case FieldKindLink:
		return stringSliceEqual(v.LinkIDs, o.LinkIDs)
	default:
		return string(v.Raw) == string(o.Raw)
	}
}

func stringSliceEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

// Fields is a mapping from field-name to typed value, the payload of a
// Record. Field schema is authoritative server-side; fieldbridge only
// caches it (see internal/schema).
type Fields map[string]FieldValue

// Clone returns a deep-enough copy safe to mutate independently.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Locator identifies a single record: the locator triplet required for any
// mutating call per the GLOSSARY.
type Locator struct {
	AppToken string `json:"app_token"`
	TableID  string `json:"table_id"`
	RecordID string `json:"record_id"`
}

// Record is one tabular-backend row, opaque identifier scoped within a table
// within an app token.
type Record struct {
	Locator
	Fields    Fields    `json:"fields"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Change is a single field delta derived by diffing current fetched fields
// against a Snapshot.
type Change struct {
	Field string     `json:"field"`
	Old   FieldValue `json:"old"`
	New   FieldValue `json:"new"`
}

// ChangeSet is the changes observed between two Fields snapshots, keyed by
// field name for O(1) lookup by the match engine.
type ChangeSet map[string]Change

// EventType enumerates the normalized event types the Processor reacts to.
type EventType string

const (
	EventCreated      EventType = "created"
	EventUpdated      EventType = "updated"
	EventFieldChanged EventType = "field_changed"
	EventSchemaChange EventType = "schema_changed"
)

// EventEnvelope is the normalized shape every dispatcher entry path converges
// to before handing off to the Processor.
type EventEnvelope struct {
	EventID    string         `json:"event_id"`
	EventType  EventType      `json:"event_type"`
	AppToken   string         `json:"app_token"`
	TableID    string         `json:"table_id"`
	RecordID   string         `json:"record_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}
