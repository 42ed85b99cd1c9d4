package skills

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/bitable"
	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/llm"
	"github.com/fieldbridge/fieldbridge/internal/router"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

var personQueryMarkers = []string{"我的", "我负责", "我经手", "我办理"}
var todayMarkers = []string{"今天"}
var tomorrowMarkers = []string{"明天"}
var yesterdayMarkers = []string{"昨天"}

// QuerySkill resolves a search-shaped turn to the right bitable search
// variant: search_person, search_date_range, or a keyword/default search
// (spec.md §4.6 QuerySkill).
type QuerySkill struct {
	bitable *bitable.Client
	llm     *llm.Router
	tables  config.TablesConfig
	now     func() time.Time
}

// NewQuerySkill builds a QuerySkill. llmRouter may be nil, degrading table
// disambiguation to "always take the top keyword match".
func NewQuerySkill(client *bitable.Client, llmRouter *llm.Router, tables config.TablesConfig) *QuerySkill {
	return &QuerySkill{bitable: client, llm: llmRouter, tables: tables, now: time.Now}
}

// Name satisfies router.Skill.
func (s *QuerySkill) Name() string { return "query" }

// Execute satisfies router.Skill.
func (s *QuerySkill) Execute(ctx context.Context, turn router.Turn) (models.SkillResult, error) {
	tableName, alias, err := resolveTable(ctx, s.tables, s.llm, turn.Text)
	if err != nil {
		return models.SkillResult{OK: false, Message: "没能确定要查询哪张表，请说明具体的表名。"}, nil
	}
	target := models.TableRef{AppToken: alias.AppToken, TableID: alias.TableID}

	var (
		records []models.Record
		total   int
	)

	switch {
	case alias.PersonField != "" && containsAny(turn.Text, personQueryMarkers):
		records, total, err = s.bitable.Search(ctx, bitable.SearchPerson, bitable.SearchParams{
			Table: target, Field: alias.PersonField, PersonID: turn.OpenID, PageSize: 20,
		})
	case alias.DateField != "" && (containsAny(turn.Text, todayMarkers) || containsAny(turn.Text, tomorrowMarkers) || containsAny(turn.Text, yesterdayMarkers)):
		from, to := s.dayRangeMS(turn.Text, alias)
		records, total, err = s.bitable.Search(ctx, bitable.SearchDateRange, bitable.SearchParams{
			Table: target, Field: alias.DateField, StartMS: from, EndMS: to, PageSize: 20,
		})
	default:
		records, total, err = s.bitable.Search(ctx, bitable.SearchKeyword, bitable.SearchParams{
			Table: target, Query: turn.Text, PageSize: 20,
		})
	}
	if err != nil {
		return models.SkillResult{OK: false, Message: "查询失败，请稍后再试。"}, nil
	}

	resultSet := models.ResultSet{TableRef: target, Records: records, Total: total, Query: turn.Text}
	locators := make([]models.Locator, 0, len(records))
	for _, r := range records {
		locators = append(locators, r.Locator)
	}

	message := formatRecordList(tableName, records, total)
	return models.SkillResult{
		OK:      true,
		Message: message,
		Data: map[string]any{
			DataKeyResultSet:   resultSet,
			"last_result_ids":  locators,
			DataKeyActiveTable: tableName,
			"records":          records,
		},
	}, nil
}

func (s *QuerySkill) dayRangeMS(text string, alias config.TableAlias) (int64, int64) {
	loc := defaultLocation(s.tables.Timezone)
	now := s.now().In(loc)
	day := now
	switch {
	case containsAny(text, tomorrowMarkers):
		day = now.AddDate(0, 0, 1)
	case containsAny(text, yesterdayMarkers):
		day = now.AddDate(0, 0, -1)
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	end := time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, loc)
	return start.UnixMilli(), end.UnixMilli()
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func formatRecordList(tableName string, records []models.Record, total int) string {
	if total == 0 {
		return "没有找到符合条件的记录。"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "在「%s」中找到 %d 条记录：\n", tableName, total)
	for i, r := range records {
		if i >= 10 {
			fmt.Fprintf(&b, "…（还有 %d 条，回复“下一页”查看更多）", total-10)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, summarizeRecord(r))
	}
	return strings.TrimRight(b.String(), "\n")
}

func summarizeRecord(r models.Record) string {
	if r.Fields == nil {
		return r.RecordID
	}
	parts := make([]string, 0, 3)
	count := 0
	for name, v := range r.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", name, fieldDisplay(v)))
		count++
		if count >= 3 {
			break
		}
	}
	if len(parts) == 0 {
		return r.RecordID
	}
	return strings.Join(parts, "，")
}

func fieldDisplay(v models.FieldValue) string {
	switch v.Kind {
	case models.FieldKindText, models.FieldKindPhone, models.FieldKindLocation:
		if v.Text != "" {
			return v.Text
		}
		if v.Phone != "" {
			return v.Phone
		}
		return v.Location
	case models.FieldKindSingleSelect:
		return v.SingleSelect
	case models.FieldKindMultiSelect:
		return strings.Join(v.MultiSelect, "/")
	case models.FieldKindDate:
		return time.UnixMilli(v.DateMS).UTC().Format("2006-01-02")
	case models.FieldKindPerson:
		return strings.Join(v.Persons, "/")
	case models.FieldKindLink:
		return strings.Join(v.LinkIDs, "/")
	default:
		return string(v.Raw)
	}
}
