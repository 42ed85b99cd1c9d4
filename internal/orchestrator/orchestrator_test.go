package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldbridge/fieldbridge/internal/channel"
	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/conversation"
	"github.com/fieldbridge/fieldbridge/internal/intent"
	"github.com/fieldbridge/fieldbridge/internal/logging"
	"github.com/fieldbridge/fieldbridge/internal/render"
	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/internal/skills"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

type fakeSender struct {
	sent []render.ChannelMessage
}

func (f *fakeSender) SendMessage(_ context.Context, _ string, msg render.ChannelMessage) error {
	f.sent = append(f.sent, msg)
	return nil
}

type fakeDeleter struct {
	called bool
	target models.Locator
}

func (f *fakeDeleter) ConfirmDelete(_ context.Context, target models.Locator) (models.SkillResult, error) {
	f.called = true
	f.target = target
	return models.SkillResult{OK: true, Message: "已删除。", Data: map[string]any{skills.DataKeyClearPending: true}}, nil
}

type echoSkill struct{ name string }

func (e echoSkill) Name() string { return e.name }
func (e echoSkill) Execute(_ context.Context, turn router.Turn) (models.SkillResult, error) {
	return models.SkillResult{OK: true, Message: "echo:" + turn.Text}, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeSender, *fakeDeleter, *conversation.Store) {
	t.Helper()
	convStore, err := conversation.Open(":memory:", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { convStore.Close() })

	r := router.New()
	r.Register(echoSkill{name: "chitchat"})

	intentParser := intent.New(config.IntentConfig{
		DirectExecuteThreshold: 1,
		LLMConfirmThreshold:    0.5,
		DefaultSkill:           "chitchat",
		Skills:                 map[string]config.SkillIntentConfig{},
	}, nil)

	sender := &fakeSender{}
	deleter := &fakeDeleter{}
	logger := logging.NewLogger(logging.LogConfig{Level: "error"})

	orch, err := New(Deps{
		Conversation: convStore,
		Intent:       intentParser,
		Router:       r,
		Renderer:     render.NewRenderer(nil, nil),
		Formatter:    render.NewFormatter(),
		Sender:       sender,
		DeleteSkill:  deleter,
		Logger:       logger,
	})
	require.NoError(t, err)
	return orch, sender, deleter, convStore
}

func TestNewRequiresAllCollaborators(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestHandleMessageEmptyInputShortCircuits(t *testing.T) {
	orch, sender, _, _ := newTestOrchestrator(t)
	err := orch.HandleMessage(context.Background(), channel.InboundMessage{OpenID: "ou_1", Text: "   "})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.NotEmpty(t, sender.sent[0].Text)
}

func TestHandleMessageFallsThroughToDefaultSkill(t *testing.T) {
	orch, sender, _, _ := newTestOrchestrator(t)
	err := orch.HandleMessage(context.Background(), channel.InboundMessage{OpenID: "ou_2", Text: "你好"})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "echo:你好")
}

func TestHandleMessageConfirmDeleteDispatchesToDeleter(t *testing.T) {
	orch, sender, deleter, convStore := newTestOrchestrator(t)
	ctx := context.Background()

	target := models.Locator{AppToken: "app1", TableID: "tbl1", RecordID: "P-0042"}
	require.NoError(t, convStore.Save(ctx, models.ConversationState{
		OpenID: "ou_3",
		PendingAction: &models.PendingAction{
			Kind:      models.PendingConfirmDelete,
			TargetRef: target,
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}))

	err := orch.HandleMessage(ctx, channel.InboundMessage{OpenID: "ou_3", Text: "确认"})
	require.NoError(t, err)
	assert.True(t, deleter.called)
	assert.Equal(t, target, deleter.target)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "已删除")

	state, err := convStore.Load(ctx, "ou_3")
	require.NoError(t, err)
	assert.Nil(t, state.PendingAction)
}

func TestHandleMessageCancelClearsPendingAction(t *testing.T) {
	orch, sender, deleter, convStore := newTestOrchestrator(t)
	ctx := context.Background()

	require.NoError(t, convStore.Save(ctx, models.ConversationState{
		OpenID: "ou_4",
		PendingAction: &models.PendingAction{
			Kind:      models.PendingConfirmDelete,
			TargetRef: models.Locator{RecordID: "rec1"},
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}))

	err := orch.HandleMessage(ctx, channel.InboundMessage{OpenID: "ou_4", Text: "取消"})
	require.NoError(t, err)
	assert.False(t, deleter.called)
	require.Len(t, sender.sent, 1)

	state, err := convStore.Load(ctx, "ou_4")
	require.NoError(t, err)
	assert.Nil(t, state.PendingAction)
}

func TestHandleMessagePaginationRendersNextPage(t *testing.T) {
	orch, sender, _, convStore := newTestOrchestrator(t)
	ctx := context.Background()

	records := make([]models.Record, 0, 15)
	for i := 0; i < 15; i++ {
		records = append(records, models.Record{Locator: models.Locator{RecordID: "rec" + string(rune('a'+i))}})
	}
	require.NoError(t, convStore.Save(ctx, models.ConversationState{
		OpenID:        "ou_5",
		LastResultIDs: []models.Locator{records[0].Locator},
		LastResultSet: &models.ResultSet{Records: records, Total: 15},
	}))

	err := orch.HandleMessage(ctx, channel.InboundMessage{OpenID: "ou_5", Text: "下一页"})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "第 11-15 条")
}
