package match

import (
	"testing"

	"github.com/fieldbridge/fieldbridge/pkg/models"
)

func TestEvaluateChangedCondition(t *testing.T) {
	rule := models.Rule{
		Trigger: models.Trigger{
			On:    []models.TriggerOn{models.TriggerOnUpdated},
			Field: "案件分类",
			Condition: &models.Condition{
				Kind: models.ConditionChanged,
			},
		},
	}

	in := Input{
		Changes: models.ChangeSet{
			"案件分类": {Field: "案件分类"},
		},
	}

	ok, err := Evaluate(rule, models.TriggerOnUpdated, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected match on changed field")
	}

	ok, err = Evaluate(rule, models.TriggerOnCreated, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ok {
		t.Fatalf("expected no match for an unlisted trigger event")
	}
}

func TestEvaluateEqualsCondition(t *testing.T) {
	rule := models.Rule{
		Trigger: models.Trigger{
			On: []models.TriggerOn{models.TriggerOnUpdated},
			Condition: &models.Condition{
				Kind:  models.ConditionEquals,
				Field: "案件分类",
				Value: "劳动争议",
			},
		},
	}

	in := Input{
		New: models.Fields{
			"案件分类": {Kind: models.FieldKindSingleSelect, SingleSelect: "劳动争议"},
		},
	}

	ok, err := Evaluate(rule, models.TriggerOnUpdated, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected match on equals condition")
	}
}

func TestEvaluateAnyFieldChangedExcludes(t *testing.T) {
	rule := models.Rule{
		Trigger: models.Trigger{
			On: []models.TriggerOn{models.TriggerOnUpdated},
			Condition: &models.Condition{
				Kind:    models.ConditionAnyFieldChanged,
				Exclude: []string{"更新时间"},
			},
		},
	}

	onlyExcluded := Input{Changes: models.ChangeSet{"更新时间": {Field: "更新时间"}}}
	ok, err := Evaluate(rule, models.TriggerOnUpdated, onlyExcluded)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if ok {
		t.Fatalf("expected no match when only the excluded field changed")
	}

	withOther := Input{Changes: models.ChangeSet{
		"更新时间": {Field: "更新时间"},
		"状态":   {Field: "状态"},
	}}
	ok, err = Evaluate(rule, models.TriggerOnUpdated, withOther)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected match when a non-excluded field also changed")
	}
}

func TestEvaluateInCondition(t *testing.T) {
	rule := models.Rule{
		Trigger: models.Trigger{
			On: []models.TriggerOn{models.TriggerOnUpdated},
			Condition: &models.Condition{
				Kind:  models.ConditionIn,
				Field: "状态",
				Value: []any{"已结案", "已撤诉"},
			},
		},
	}

	in := Input{New: models.Fields{
		"状态": {Kind: models.FieldKindSingleSelect, SingleSelect: "已撤诉"},
	}}

	ok, err := Evaluate(rule, models.TriggerOnUpdated, in)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !ok {
		t.Fatalf("expected match for value present in the 'in' list")
	}
}
