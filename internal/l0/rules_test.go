package l0

import (
	"testing"

	"github.com/fieldbridge/fieldbridge/pkg/models"
)

func TestEvaluateEmptyInput(t *testing.T) {
	out := Evaluate("   ", models.ConversationState{})
	if out.Kind != KindEmptyInput || out.CannedPrompt == "" {
		t.Fatalf("expected empty-input outcome, got %#v", out)
	}
}

func TestEvaluateConfirmationRequiresPendingAction(t *testing.T) {
	out := Evaluate("确认", models.ConversationState{})
	if out.Kind != NoMatch {
		t.Fatalf("expected no match without a pending action, got %#v", out)
	}

	out = Evaluate("确认", models.ConversationState{
		PendingAction: &models.PendingAction{Kind: models.PendingConfirmDelete},
	})
	if out.Kind != KindConfirmation || !out.Confirmed {
		t.Fatalf("expected confirmed outcome, got %#v", out)
	}

	out = Evaluate("取消", models.ConversationState{
		PendingAction: &models.PendingAction{Kind: models.PendingConfirmDelete},
	})
	if out.Kind != KindConfirmation || out.Confirmed {
		t.Fatalf("expected cancelled outcome, got %#v", out)
	}
}

func TestEvaluatePaginationRequiresResults(t *testing.T) {
	out := Evaluate("下一页", models.ConversationState{})
	if out.Kind != NoMatch {
		t.Fatalf("expected no match without prior results, got %#v", out)
	}

	out = Evaluate("下一页", models.ConversationState{
		LastResultIDs: []models.Locator{{RecordID: "rec1"}},
	})
	if out.Kind != KindPagination || out.PageDirection != "next" {
		t.Fatalf("expected pagination outcome, got %#v", out)
	}
}

func TestEvaluateReferentOrdinal(t *testing.T) {
	state := models.ConversationState{
		LastResultIDs: []models.Locator{
			{RecordID: "rec1"}, {RecordID: "rec2"}, {RecordID: "rec3"},
		},
	}
	out := Evaluate("第2个", state)
	if out.Kind != KindReferent || out.ResolvedRecord == nil || out.ResolvedRecord.RecordID != "rec2" {
		t.Fatalf("expected referent resolved to rec2, got %#v", out)
	}

	out = Evaluate("这个", state)
	if out.Kind != KindReferent || out.ResolvedRecord.RecordID != "rec1" {
		t.Fatalf("expected referent resolved to rec1, got %#v", out)
	}
}

func TestEvaluateFallsThroughToIntentParser(t *testing.T) {
	out := Evaluate("帮我查一下案件状态", models.ConversationState{})
	if out.Kind != NoMatch {
		t.Fatalf("expected no L0 match for ordinary query, got %#v", out)
	}
}
