package skills

import (
	"strings"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// parseSlots splits free text into field-name/value pairs for the subset
// of a table's known field names that appear in it, in the order they
// appear (spec.md S3 "新建案件 案号 (2026)沪01民终1号 委托人 张三").
func parseSlots(text string, fieldNames []string) map[string]string {
	type hit struct {
		name  string
		start int
		end   int
	}
	var hits []hit
	for _, name := range fieldNames {
		if name == "" {
			continue
		}
		idx := strings.Index(text, name)
		if idx >= 0 {
			hits = append(hits, hit{name: name, start: idx, end: idx + len(name)})
		}
	}
	if len(hits) == 0 {
		return nil
	}
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].start < hits[i].start {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}

	slots := make(map[string]string, len(hits))
	for i, h := range hits {
		valueEnd := len(text)
		if i+1 < len(hits) {
			valueEnd = hits[i+1].start
		}
		value := strings.TrimSpace(text[h.end:valueEnd])
		if value != "" {
			slots[h.name] = value
		}
	}
	return slots
}

// mergeSlots layers new values over existing ones, used when a
// complete_fields pending action carries values from an earlier turn.
func mergeSlots(existing, fresh map[string]string) map[string]string {
	out := make(map[string]string, len(existing)+len(fresh))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range fresh {
		out[k] = v
	}
	return out
}

// missingRequired returns which of alias.RequiredFields have no slot value.
func missingRequired(alias config.TableAlias, slots map[string]string) []string {
	var missing []string
	for _, name := range alias.RequiredFields {
		if strings.TrimSpace(slots[name]) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// fieldsFromSlots converts string slot values into typed Fields, treating
// the alias's configured date/person fields specially and defaulting
// everything else to text.
func fieldsFromSlots(slots map[string]string, alias config.TableAlias, openID string, tz string) models.Fields {
	fields := make(models.Fields, len(slots))
	loc := defaultLocation(tz)
	for name, value := range slots {
		switch {
		case alias.DateField != "" && name == alias.DateField:
			if ms, ok := parseDateMS(value, loc); ok {
				fields[name] = models.FieldValue{Kind: models.FieldKindDate, DateMS: ms}
				continue
			}
			fields[name] = models.FieldValue{Kind: models.FieldKindText, Text: value}
		case alias.PersonField != "" && name == alias.PersonField:
			persons := []string{value}
			if openID != "" && (value == "我" || value == "自己") {
				persons = []string{openID}
			}
			fields[name] = models.FieldValue{Kind: models.FieldKindPerson, Persons: persons}
		default:
			fields[name] = models.FieldValue{Kind: models.FieldKindText, Text: value}
		}
	}
	return fields
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006年1月2日", "1月2日"}

func parseDateMS(value string, loc *time.Location) (int64, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			if t.Year() == 0 {
				now := time.Now().In(loc)
				t = time.Date(now.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
			}
			return t.UnixMilli(), true
		}
	}
	return 0, false
}
