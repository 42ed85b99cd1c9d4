// Package orchestrator is the Conversation Orchestrator (spec.md §4.5): the
// per-open_id pipeline that runs L0 short-circuits, falls through to the
// Intent Parser and Skill Router, and renders/formats a reply. It is the
// single place turn-by-turn ConversationState transitions are applied, per
// spec.md §9 "Pending actions... avoids invisible control flow spread
// across skills."
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldbridge/fieldbridge/internal/channel"
	"github.com/fieldbridge/fieldbridge/internal/conversation"
	"github.com/fieldbridge/fieldbridge/internal/intent"
	"github.com/fieldbridge/fieldbridge/internal/keylock"
	"github.com/fieldbridge/fieldbridge/internal/l0"
	"github.com/fieldbridge/fieldbridge/internal/logging"
	"github.com/fieldbridge/fieldbridge/internal/render"
	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/internal/skills"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// ReplySender delivers a formatted channel message back to the user. The
// concrete channel send is an out-of-scope collaborator (spec.md §1); this
// is the seam fieldbridge owns, mirroring internal/reminder's Sender.
type ReplySender interface {
	SendMessage(ctx context.Context, openID string, msg render.ChannelMessage) error
}

// DeleteConfirmer is satisfied by skills.DeleteSkill: the L0 confirmation
// short-circuit (spec.md §4.5 step 1) calls it directly rather than
// re-entering the Router, since "确认"/"取消" themselves carry no skill
// keywords the Intent Parser could score.
type DeleteConfirmer interface {
	ConfirmDelete(ctx context.Context, target models.Locator) (models.SkillResult, error)
}

// Deps are the Orchestrator's required collaborators. Every field is
// mandatory: per spec.md §5, a missing required collaborator is a startup
// fatal, never a lazy-at-first-use failure.
type Deps struct {
	Conversation *conversation.Store
	Intent       *intent.Parser
	Router       *router.Router
	Renderer     *render.Renderer
	Formatter    *render.Formatter
	Sender       ReplySender
	DeleteSkill  DeleteConfirmer
	Logger       *logging.Logger

	// MaxHops bounds the Intent Parser's chain/skill-driven expansion
	// (spec.md §4.5 step 2, default 2).
	MaxHops int
}

// Orchestrator drives one chat request's lifecycle end to end (spec.md
// §4.5): L0 -> Intent Parser -> Router -> Skill(s) -> Response Renderer ->
// Channel Formatter. It implements channel.MessageHandler.
type Orchestrator struct {
	conv      *conversation.Store
	intent    *intent.Parser
	router    *router.Router
	renderer  *render.Renderer
	formatter *render.Formatter
	sender    ReplySender
	deleter   DeleteConfirmer
	logger    *logging.Logger
	maxHops   int

	locker *keylock.Locker
}

// New builds an Orchestrator, failing fast if any required collaborator is
// missing (spec.md §5 "constructed with its collaborators injected").
func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Conversation == nil:
		return nil, errors.New("orchestrator: Conversation store is required")
	case deps.Intent == nil:
		return nil, errors.New("orchestrator: Intent parser is required")
	case deps.Router == nil:
		return nil, errors.New("orchestrator: Router is required")
	case deps.Renderer == nil:
		return nil, errors.New("orchestrator: Renderer is required")
	case deps.Formatter == nil:
		return nil, errors.New("orchestrator: Formatter is required")
	case deps.Sender == nil:
		return nil, errors.New("orchestrator: Sender is required")
	case deps.DeleteSkill == nil:
		return nil, errors.New("orchestrator: DeleteSkill is required")
	case deps.Logger == nil:
		return nil, errors.New("orchestrator: Logger is required")
	}
	maxHops := deps.MaxHops
	if maxHops <= 0 {
		maxHops = 2
	}
	return &Orchestrator{
		conv:      deps.Conversation,
		intent:    deps.Intent,
		router:    deps.Router,
		renderer:  deps.Renderer,
		formatter: deps.Formatter,
		sender:    deps.Sender,
		deleter:   deps.DeleteSkill,
		logger:    deps.Logger,
		maxHops:   maxHops,
		locker:    keylock.New(),
	}, nil
}

// HandleMessage satisfies channel.MessageHandler: it serializes processing
// per open_id (spec.md §5 "the conversation orchestrator serializes
// processing per open_id") and runs the full turn pipeline.
func (o *Orchestrator) HandleMessage(ctx context.Context, msg channel.InboundMessage) error {
	unlock, err := o.locker.Lock(ctx, msg.OpenID)
	if err != nil {
		return fmt.Errorf("orchestrator: acquire conversation lock: %w", err)
	}
	defer unlock()

	state, err := o.conv.Load(ctx, msg.OpenID)
	if err != nil {
		return fmt.Errorf("orchestrator: load conversation state: %w", err)
	}

	resp, newState := o.runTurn(ctx, msg, state)

	if err := o.conv.Save(ctx, newState); err != nil {
		return fmt.Errorf("orchestrator: save conversation state: %w", err)
	}

	channelMsg := o.formatter.Format(resp)
	if err := o.sender.SendMessage(ctx, msg.OpenID, channelMsg); err != nil {
		return fmt.Errorf("orchestrator: send reply: %w", err)
	}
	return nil
}

// runTurn executes the pipeline for one turn and returns the rendered
// response plus the conversation state to persist afterward.
func (o *Orchestrator) runTurn(ctx context.Context, msg channel.InboundMessage, state models.ConversationState) (models.RenderedResponse, models.ConversationState) {
	state.OpenID = msg.OpenID

	outcome := l0.Evaluate(msg.Text, state)
	switch outcome.Kind {
	case l0.KindEmptyInput:
		return models.RenderedResponse{TextFallback: outcome.CannedPrompt}, state

	case l0.KindConfirmation:
		return o.handleConfirmation(ctx, outcome, state)

	case l0.KindPagination:
		return o.handlePagination(state)

	case l0.KindReferent:
		state.ActiveRecord = outcome.ResolvedRecord.RecordID
		state.ActiveTable = outcome.ResolvedRecord.TableID
	}

	turn := router.Turn{
		OpenID: msg.OpenID,
		Text:   msg.Text,
		State:  state,
	}
	if outcome.Kind == l0.KindReferent {
		turn.Context = map[string]any{"active_record": *outcome.ResolvedRecord}
	}

	decision, err := o.intent.Parse(ctx, msg.Text)
	if err != nil {
		o.logger.Warn(ctx, "intent parse failed, falling back to chitchat", "error", err.Error())
		decision = intent.Decision{Skills: []string{"chitchat"}, Source: intent.SourceDefault}
	}

	results, err := o.router.Dispatch(ctx, decision.Skills, turn, o.maxHops)
	if err != nil || len(results) == 0 {
		if err != nil {
			o.logger.Error(ctx, "skill dispatch failed", "error", err.Error(), "skills", decision.Skills)
		}
		return o.renderer.RenderNamed("generic_error"), state
	}

	last := results[len(results)-1]
	state = applyResult(state, last)

	greet := decision.Skills[0] == "chitchat"
	return o.renderer.Render(last, greet), state
}

// handleConfirmation resolves the "确认"/"取消" short-circuit against an
// existing pending action (spec.md §4.5 step 1, §8 invariant 10).
func (o *Orchestrator) handleConfirmation(ctx context.Context, outcome l0.Outcome, state models.ConversationState) (models.RenderedResponse, models.ConversationState) {
	pending := state.PendingAction
	if pending == nil {
		return o.renderer.RenderNamed("nothing_pending"), state
	}

	if !outcome.Confirmed {
		state.PendingAction = nil
		return o.renderer.RenderNamed("cancelled"), state
	}

	switch pending.Kind {
	case models.PendingConfirmDelete:
		result, err := o.deleter.ConfirmDelete(ctx, pending.TargetRef)
		if err != nil {
			o.logger.Error(ctx, "confirm delete failed", "error", err.Error())
			return o.renderer.RenderNamed("generic_error"), state
		}
		state = applyResult(state, result)
		return o.renderer.Render(result, false), state
	default:
		// No other pending kind currently requires an explicit confirm
		// step (UpdateSkill commits immediately once slots are complete;
		// complete_fields is resolved by ordinary free-text turns, not by
		// a confirm token).
		state.PendingAction = nil
		return o.renderer.RenderNamed("cancelled"), state
	}
}

const pageSize = 10

// handlePagination renders the next page of the previous query's result
// set (spec.md §4.5 step 1 "下一页"). Paging state lives in SlotMemory
// rather than re-querying the tabular backend, mirroring how SummarySkill
// consumes the persisted LastResultSet.
func (o *Orchestrator) handlePagination(state models.ConversationState) (models.RenderedResponse, models.ConversationState) {
	if state.LastResultSet == nil || len(state.LastResultSet.Records) == 0 {
		return o.renderer.RenderNamed("nothing_pending"), state
	}
	if state.SlotMemory == nil {
		state.SlotMemory = map[string]any{}
	}
	offset, _ := state.SlotMemory["page_offset"].(float64)
	next := int(offset) + pageSize
	records := state.LastResultSet.Records
	if next >= len(records) {
		next = 0
	}
	state.SlotMemory["page_offset"] = float64(next)

	end := next + pageSize
	if end > len(records) {
		end = len(records)
	}
	page := records[next:end]

	result := models.SkillResult{OK: true, Message: formatPage(page, next, len(records))}
	return o.renderer.Render(result, false), state
}

func formatPage(page []models.Record, offset, total int) string {
	if len(page) == 0 {
		return "没有更多记录了。"
	}
	msg := fmt.Sprintf("第 %d-%d 条（共 %d 条）：\n", offset+1, offset+len(page), total)
	for i, r := range page {
		msg += fmt.Sprintf("%d. %s\n", offset+i+1, r.RecordID)
	}
	return msg
}

// applyResult folds a skill's uniform SkillResult.Data back into
// ConversationState (spec.md §9's documented single place state
// transitions happen), reading the well-known keys internal/skills
// publishes.
func applyResult(state models.ConversationState, result models.SkillResult) models.ConversationState {
	if result.Data == nil {
		return state
	}
	if _, clear := result.Data[skills.DataKeyClearPending]; clear {
		state.PendingAction = nil
	}
	if pa, ok := result.Data[skills.DataKeyPendingAction].(models.PendingAction); ok {
		// A new pending action supersedes an existing one (spec.md §8
		// invariant 10); the superseding notice is carried in the
		// triggering skill's own Message rather than appended here, since
		// only the skill knows what changed.
		state.PendingAction = &pa
	}
	if rs, ok := result.Data[skills.DataKeyResultSet].(models.ResultSet); ok {
		state.LastResultSet = &rs
		if state.SlotMemory == nil {
			state.SlotMemory = map[string]any{}
		}
		state.SlotMemory["page_offset"] = float64(0)
	}
	if ids, ok := result.Data["last_result_ids"].([]models.Locator); ok {
		state.LastResultIDs = ids
	}
	if table, ok := result.Data[skills.DataKeyActiveTable].(string); ok {
		state.ActiveTable = table
	}
	if loc, ok := result.Data[skills.DataKeyActiveRecord].(models.Locator); ok {
		state.ActiveRecord = loc.RecordID
		state.ActiveTable = loc.TableID
	}
	return state
}
