// Package match is the Match Engine: evaluates a rule's trigger condition
// set against (old, new, changes) using the predicates and boolean
// combinators of spec.md §4.2 step 2.
package match

import (
	"fmt"

	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// Input is the evaluation context passed to Evaluate: the previous and
// current field values plus the computed change set for one record.
type Input struct {
	Old     models.Fields
	New     models.Fields
	Changes models.ChangeSet
}

// Evaluate reports whether a rule's trigger fires for this input: the
// event type must be one the trigger listens on, and the condition tree
// (if any) must be satisfied.
func Evaluate(rule models.Rule, eventOn models.TriggerOn, in Input) (bool, error) {
	onMatch := false
	for _, on := range rule.Trigger.On {
		if on == eventOn {
			onMatch = true
			break
		}
	}
	if !onMatch {
		return false, nil
	}

	if rule.Trigger.Condition != nil {
		ok, err := evalCondition(*rule.Trigger.Condition, rule.Trigger.Field, in)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	if len(rule.Trigger.All) > 0 {
		if !all(rule.Trigger.All, in) {
			return false, nil
		}
	}
	if len(rule.Trigger.Any) > 0 {
		if !any(rule.Trigger.Any, in) {
			return false, nil
		}
	}

	return true, nil
}

func evalCondition(cond models.Condition, defaultField string, in Input) (bool, error) {
	field := cond.Field
	if field == "" {
		field = defaultField
	}

	switch cond.Kind {
	case models.ConditionChanged:
		_, changed := in.Changes[field]
		return changed, nil

	case models.ConditionEquals:
		val, ok := in.New[field]
		if !ok {
			return false, nil
		}
		return fieldValueEquals(val, cond.Value), nil

	case models.ConditionIn:
		values, ok := cond.Value.([]any)
		if !ok {
			return false, fmt.Errorf("match: condition 'in' on %s requires a list value", field)
		}
		val, ok := in.New[field]
		if !ok {
			return false, nil
		}
		for _, candidate := range values {
			if fieldValueEquals(val, candidate) {
				return true, nil
			}
		}
		return false, nil

	case models.ConditionAnyFieldChanged:
		excluded := make(map[string]bool, len(cond.Exclude))
		for _, f := range cond.Exclude {
			excluded[f] = true
		}
		for changedField := range in.Changes {
			if !excluded[changedField] {
				return true, nil
			}
		}
		return false, nil

	default:
		return false, fmt.Errorf("match: unknown condition kind %q", cond.Kind)
	}
}

func all(conds []models.Condition, in Input) bool {
	for _, c := range conds {
		ok, err := evalCondition(c, c.Field, in)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func any(conds []models.Condition, in Input) bool {
	for _, c := range conds {
		ok, err := evalCondition(c, c.Field, in)
		if err == nil && ok {
			return true
		}
	}
	return false
}

// fieldValueEquals compares a FieldValue's scalar representation against a
// raw condition value decoded from YAML/JSON (string, number, bool).
func fieldValueEquals(v models.FieldValue, want any) bool {
	switch s := want.(type) {
	case string:
		switch v.Kind {
		case models.FieldKindText:
			return v.Text == s
		case models.FieldKindSingleSelect:
			return v.SingleSelect == s
		case models.FieldKindPhone:
			return v.Phone == s
		case models.FieldKindLocation:
			return v.Location == s
		case models.FieldKindMultiSelect:
			for _, opt := range v.MultiSelect {
				if opt == s {
					return true
				}
			}
			return false
		case models.FieldKindPerson:
			for _, p := range v.Persons {
				if p == s {
					return true
				}
			}
			return false
		case models.FieldKindLink:
			for _, id := range v.LinkIDs {
				if id == s {
					return true
				}
			}
			return false
		}
	case float64:
		if v.Kind == models.FieldKindDate {
			return float64(v.DateMS) == s
		}
	}
	return false
}
