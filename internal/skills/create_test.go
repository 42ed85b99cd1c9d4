package skills

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/bitable"
	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCreateServer(t *testing.T, recordID string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"record_id": recordID})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateSkillPromptsForMissingRequiredFields(t *testing.T) {
	client := bitable.New("http://unused", "", time.Second)
	s := NewCreateSkill(client, nil, tablesFixture())

	result, err := s.Execute(context.Background(), router.Turn{Text: "新建案件 案号 (2026)沪01民终1号"})
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Contains(t, result.Message, "还差以下信息")

	pending, ok := result.Data[DataKeyPendingAction].(models.PendingAction)
	require.True(t, ok)
	assert.Equal(t, models.PendingCompleteFields, pending.Kind)
	assert.Equal(t, "create", pending.Payload["skill"])
}

func TestCreateSkillResumesAcrossTurnsUntilComplete(t *testing.T) {
	srv := newCreateServer(t, "rec_new")
	client := bitable.New(srv.URL, "", time.Second)
	s := NewCreateSkill(client, nil, tablesFixture())

	first, err := s.Execute(context.Background(), router.Turn{Text: "新建案件 案号 (2026)沪01民终1号"})
	require.NoError(t, err)
	require.False(t, first.OK)
	pending := first.Data[DataKeyPendingAction].(models.PendingAction)

	second, err := s.Execute(context.Background(), router.Turn{
		Text:  "委托人 张三",
		State: models.ConversationState{PendingAction: &pending},
	})
	require.NoError(t, err)
	assert.True(t, second.OK)
	assert.Equal(t, "创建成功。", second.Message)
	loc := second.Data[DataKeyActiveRecord].(models.Locator)
	assert.Equal(t, "rec_new", loc.RecordID)
}

func TestCreateSkillLinkedWriteFailureKeepsPendingForRetry(t *testing.T) {
	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount == 1 {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"record_id": "rec_primary"})
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := bitable.New(srv.URL, "", time.Second)
	cfg := tablesFixture()
	cfg.LinkedWrites = []config.LinkedWriteConfig{{
		Name: "contact_link", FromTableID: "tbl_cases", ToTableID: "tbl_contacts", ToAppToken: "app1",
		FieldMapping: map[string]string{"委托人": "姓名"},
	}}
	s := NewCreateSkill(client, nil, cfg)

	result, err := s.Execute(context.Background(), router.Turn{Text: "新建案件 案号 (2026)沪01民终1号 委托人 张三"})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Contains(t, result.Message, "关联写入")
	_, stillPending := result.Data[DataKeyPendingAction]
	assert.True(t, stillPending)
}
