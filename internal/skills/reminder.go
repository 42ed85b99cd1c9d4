package skills

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/reminder"
	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// ReminderSkill parses a natural-language reminder request, defaulting to
// 18:00 today when no explicit time is given, and rejects a time already in
// the past (spec.md §4.6 ReminderSkill, S9). It also handles the
// list/complete/delete variants of the same intent.
type ReminderSkill struct {
	store *reminder.Store
	tz    string
	now   func() time.Time
}

// NewReminderSkill builds a ReminderSkill.
func NewReminderSkill(store *reminder.Store, tz string) *ReminderSkill {
	return &ReminderSkill{store: store, tz: tz, now: time.Now}
}

// Name satisfies router.Skill.
func (s *ReminderSkill) Name() string { return "reminder" }

var (
	listMarkers     = []string{"查看提醒", "我的提醒", "提醒列表"}
	completeMarkers = []string{"完成提醒", "提醒已完成", "标记完成"}
	deleteMarkers   = []string{"删除提醒", "取消提醒"}
)

// Execute satisfies router.Skill.
func (s *ReminderSkill) Execute(ctx context.Context, turn router.Turn) (models.SkillResult, error) {
	switch {
	case containsAny(turn.Text, listMarkers):
		return s.list(ctx, turn.OpenID)
	case containsAny(turn.Text, completeMarkers):
		return s.mutate(ctx, turn, s.store.Complete, "已标记为完成。")
	case containsAny(turn.Text, deleteMarkers):
		return s.mutate(ctx, turn, s.store.Delete, "已删除提醒。")
	default:
		return s.create(ctx, turn)
	}
}

func (s *ReminderSkill) list(ctx context.Context, openID string) (models.SkillResult, error) {
	reminders, err := s.store.List(ctx, openID, true)
	if err != nil {
		return models.SkillResult{OK: false, Message: "查询提醒失败，请稍后再试。"}, nil
	}
	if len(reminders) == 0 {
		return models.SkillResult{OK: true, Message: "目前没有待处理的提醒。"}, nil
	}
	loc := defaultLocation(s.tz)
	var b strings.Builder
	b.WriteString("待处理的提醒：\n")
	for i, r := range reminders {
		fmt.Fprintf(&b, "%d. [%s] %s（%s）\n", i+1, r.ID, r.Message, r.TriggerAt.In(loc).Format("01-02 15:04"))
	}
	return models.SkillResult{OK: true, Message: strings.TrimRight(b.String(), "\n")}, nil
}

func (s *ReminderSkill) mutate(ctx context.Context, turn router.Turn, op func(context.Context, string, string) error, okMessage string) (models.SkillResult, error) {
	id := extractReminderID(turn.Text)
	if id == "" {
		return models.SkillResult{OK: false, Message: "请指定要操作的提醒编号。"}, nil
	}
	if err := op(ctx, turn.OpenID, id); err != nil {
		return models.SkillResult{OK: false, Message: "操作失败，请确认提醒编号是否正确。"}, nil
	}
	return models.SkillResult{OK: true, Message: okMessage}, nil
}

func (s *ReminderSkill) create(ctx context.Context, turn router.Turn) (models.SkillResult, error) {
	loc := defaultLocation(s.tz)
	now := s.now().In(loc)

	trigger, defaulted := parseReminderTime(turn.Text, now, loc)
	if trigger.Before(now) {
		return models.SkillResult{
			OK:      false,
			Message: "这个时间已经过去了，请指定一个将来的时间。",
		}, nil
	}

	message := reminderMessageFrom(turn.Text)
	r, err := s.store.Create(ctx, models.Reminder{
		OpenID:        turn.OpenID,
		Message:       message,
		TriggerAt:     trigger.UTC(),
		TargetDay:     trigger.Format("2006-01-02"),
		DefaultedTime: defaulted,
	})
	if err != nil {
		return models.SkillResult{OK: false, Message: "创建提醒失败，请稍后再试。"}, nil
	}

	suffix := ""
	if defaulted {
		suffix = "（未指定具体时间，默认为当天 18:00）"
	}
	return models.SkillResult{
		OK:      true,
		Message: fmt.Sprintf("已设置提醒：%s，时间 %s%s。", r.Message, r.TriggerAt.In(loc).Format("01-02 15:04"), suffix),
	}, nil
}

var reminderIDPattern = regexp.MustCompile(`[0-9a-fA-F-]{8,}`)

func extractReminderID(text string) string {
	return reminderIDPattern.FindString(text)
}

func reminderMessageFrom(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "提醒"
	}
	return trimmed
}

var hourMinutePattern = regexp.MustCompile(`(\d{1,2})[:：](\d{2})`)
var hourOnlyPattern = regexp.MustCompile(`(\d{1,2})点`)

// parseReminderTime extracts an explicit time-of-day from free text,
// anchored to today (or tomorrow if "明天" appears), defaulting to 18:00
// when nothing explicit is found (spec.md S9 "提醒我明天交材料" -> 18:00
// tomorrow).
func parseReminderTime(text string, now time.Time, loc *time.Location) (time.Time, bool) {
	day := now
	if containsAny(text, tomorrowMarkers) {
		day = now.AddDate(0, 0, 1)
	}

	if m := hourMinutePattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		return time.Date(day.Year(), day.Month(), day.Day(), h, mm, 0, 0, loc), false
	}
	if m := hourOnlyPattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		return time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, loc), false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 18, 0, 0, 0, loc), true
}
