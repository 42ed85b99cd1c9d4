package skills

import (
	"testing"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSlotsOrdersByAppearance(t *testing.T) {
	slots := parseSlots("案号 (2026)沪01民终1号 委托人 张三", []string{"案号", "委托人", "开庭日"})
	require.Len(t, slots, 2)
	assert.Equal(t, "(2026)沪01民终1号", slots["案号"])
	assert.Equal(t, "张三", slots["委托人"])
}

func TestParseSlotsNoFieldNamesPresent(t *testing.T) {
	slots := parseSlots("随便说点什么", []string{"案号", "委托人"})
	assert.Nil(t, slots)
}

func TestMergeSlotsOverlaysFresh(t *testing.T) {
	existing := map[string]string{"案号": "old", "委托人": "张三"}
	fresh := map[string]string{"案号": "new"}
	merged := mergeSlots(existing, fresh)
	assert.Equal(t, "new", merged["案号"])
	assert.Equal(t, "张三", merged["委托人"])
}

func TestMissingRequiredReportsBlankOrAbsent(t *testing.T) {
	alias := config.TableAlias{RequiredFields: []string{"案号", "委托人"}}
	missing := missingRequired(alias, map[string]string{"案号": "  "})
	assert.Equal(t, []string{"案号", "委托人"}, missing)
}

func TestFieldsFromSlotsHandlesDateAndPersonFields(t *testing.T) {
	alias := config.TableAlias{DateField: "开庭日", PersonField: "主办律师"}
	fields := fieldsFromSlots(map[string]string{
		"开庭日":  "2026-08-01",
		"主办律师": "我",
		"备注":   "无",
	}, alias, "ou_123", "Asia/Shanghai")

	require.Contains(t, fields, "开庭日")
	assert.Equal(t, int64(0), fields["开庭日"].DateMS%1000)

	require.Contains(t, fields, "主办律师")
	assert.Equal(t, []string{"ou_123"}, fields["主办律师"].Persons)

	require.Contains(t, fields, "备注")
	assert.Equal(t, "无", fields["备注"].Text)
}

func TestParseDateMSRecognizesConfiguredLayouts(t *testing.T) {
	loc := time.UTC
	ms, ok := parseDateMS("2026-08-01", loc)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, loc).UnixMilli(), ms)

	_, ok = parseDateMS("not a date", loc)
	assert.False(t, ok)
}
