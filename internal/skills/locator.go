package skills

import (
	"regexp"

	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// activeRecordFrom reads a Locator the L0 layer resolved from a referent
// token ("这个"/"第N个") and forwarded as turn context, per spec.md §4.5
// step 1 ("resolved against last_result_ids to seed active_record and
// forward to the appropriate skill").
func activeRecordFrom(turn router.Turn) (models.Locator, bool) {
	if turn.Context == nil {
		return models.Locator{}, false
	}
	if loc, ok := turn.Context[DataKeyActiveRecord].(models.Locator); ok {
		return loc, true
	}
	return models.Locator{}, false
}

var recordIDPattern = regexp.MustCompile(`[A-Za-z]+-[A-Za-z0-9]+|rec[A-Za-z0-9]+`)

// extractRecordID pulls a record-id-looking token out of free text
// (spec.md S4 "删除 P-0042").
func extractRecordID(text string) string {
	return recordIDPattern.FindString(text)
}

var bulkMarkers = []string{"所有", "全部", "批量"}

// isBulkRequest reports whether text asks for an operation across many
// records at once, which DeleteSkill must refuse outright (spec.md §4.6
// "bulk delete is blocked by a safety guard", S5).
func isBulkRequest(text string) bool {
	return containsAny(text, bulkMarkers)
}
