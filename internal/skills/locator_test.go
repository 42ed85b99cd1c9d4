package skills

import (
	"testing"

	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestExtractRecordIDFindsPatternedToken(t *testing.T) {
	assert.Equal(t, "P-0042", extractRecordID("删除 P-0042"))
	assert.Equal(t, "", extractRecordID("删除这条记录"))
}

func TestIsBulkRequestDetectsMarkers(t *testing.T) {
	assert.True(t, isBulkRequest("删掉所有案件"))
	assert.True(t, isBulkRequest("批量删除"))
	assert.False(t, isBulkRequest("删除 P-0042"))
}

func TestActiveRecordFromReadsContext(t *testing.T) {
	loc := models.Locator{AppToken: "app1", TableID: "tbl1", RecordID: "rec1"}
	turn := router.Turn{Context: map[string]any{DataKeyActiveRecord: loc}}
	got, ok := activeRecordFrom(turn)
	assert.True(t, ok)
	assert.Equal(t, loc, got)

	empty := router.Turn{}
	_, ok = activeRecordFrom(empty)
	assert.False(t, ok)
}
