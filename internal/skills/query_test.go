package skills

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/bitable"
	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSearchServer(t *testing.T, wantMode bitable.SearchMode, records []models.Record) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantMode != "" {
			require.Contains(t, r.URL.Path, string(wantMode))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"records": records, "total": len(records)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestQuerySkillDispatchesPersonSearch(t *testing.T) {
	srv := newSearchServer(t, bitable.SearchPerson, []models.Record{
		{Locator: models.Locator{TableID: "tbl_cases", RecordID: "rec1"}, Fields: models.Fields{"案号": {Kind: models.FieldKindText, Text: "A"}}},
	})
	client := bitable.New(srv.URL, "", time.Second)
	s := NewQuerySkill(client, nil, tablesFixture())

	result, err := s.Execute(context.Background(), router.Turn{Text: "我的案件", OpenID: "ou_1"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Message, "找到 1 条记录")
}

func TestQuerySkillDispatchesDateRangeSearch(t *testing.T) {
	srv := newSearchServer(t, bitable.SearchDateRange, nil)
	client := bitable.New(srv.URL, "", time.Second)
	s := NewQuerySkill(client, nil, tablesFixture())

	result, err := s.Execute(context.Background(), router.Turn{Text: "今天的案件开庭安排", OpenID: "ou_1"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "没有找到符合条件的记录。", result.Message)
}

func TestQuerySkillFallsBackToKeywordSearch(t *testing.T) {
	srv := newSearchServer(t, bitable.SearchKeyword, []models.Record{
		{Locator: models.Locator{TableID: "tbl_cases", RecordID: "rec2"}},
	})
	client := bitable.New(srv.URL, "", time.Second)
	s := NewQuerySkill(client, nil, tablesFixture())

	result, err := s.Execute(context.Background(), router.Turn{Text: "查一下案件 张三", OpenID: "ou_1"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.NotNil(t, result.Data[DataKeyResultSet])
}

func TestQuerySkillUnresolvableTableFails(t *testing.T) {
	s := NewQuerySkill(bitable.New("http://unused", "", time.Second), nil, tablesFixture())
	result, err := s.Execute(context.Background(), router.Turn{Text: "今天天气怎么样"})
	require.NoError(t, err)
	assert.False(t, result.OK)
}
