// Package l0 is the deterministic short-circuit layer that runs before
// intent parsing (spec.md §4.5 step 1): empty input, confirmation tokens
// against a pending action, pagination tokens against the last result set,
// and referent tokens resolved against last_result_ids.
package l0

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// Outcome is what L0 decided to do with the turn; at most one of its
// fields is meaningful, selected by Kind.
type Outcome struct {
	Kind OutcomeKind

	// CannedPrompt is set for KindEmptyInput.
	CannedPrompt string

	// Confirmed/Cancelled apply to KindConfirmation.
	Confirmed bool

	// Page direction for KindPagination ("next" is the only token spec.md
	// names; kept as a string so a future "上一页" token slots in cleanly).
	PageDirection string

	// ResolvedRecord is set for KindReferent: the locator the referent
	// token resolved to, seeded as conversation.ActiveRecord.
	ResolvedRecord *models.Locator
}

// OutcomeKind discriminates which L0 rule matched, or NoMatch if none did
// and the turn should fall through to the Intent Parser.
type OutcomeKind string

const (
	NoMatch          OutcomeKind = ""
	KindEmptyInput   OutcomeKind = "empty_input"
	KindConfirmation OutcomeKind = "confirmation"
	KindPagination   OutcomeKind = "pagination"
	KindReferent     OutcomeKind = "referent"
)

const cannedEmptyPrompt = "我没有收到任何内容，可以再说一次吗？"

var (
	confirmTokens = map[string]bool{"确认": true, "是": true}
	cancelTokens  = map[string]bool{"取消": true, "否": true}
	paginationTokens = map[string]string{"下一页": "next"}
	ordinalPattern   = regexp.MustCompile(`^第([0-9一二三四五六七八九十]+)个$`)
	referentTokens   = map[string]bool{"这个": true, "那条": true}
)

// Evaluate runs the L0 ladder against one user turn and the conversation
// state it arrived in.
func Evaluate(text string, state models.ConversationState) Outcome {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Outcome{Kind: KindEmptyInput, CannedPrompt: cannedEmptyPrompt}
	}

	if state.PendingAction != nil {
		if confirmTokens[trimmed] {
			return Outcome{Kind: KindConfirmation, Confirmed: true}
		}
		if cancelTokens[trimmed] {
			return Outcome{Kind: KindConfirmation, Confirmed: false}
		}
	}

	if direction, ok := paginationTokens[trimmed]; ok && len(state.LastResultIDs) > 0 {
		return Outcome{Kind: KindPagination, PageDirection: direction}
	}

	if referentTokens[trimmed] && len(state.LastResultIDs) > 0 {
		loc := state.LastResultIDs[0]
		return Outcome{Kind: KindReferent, ResolvedRecord: &loc}
	}

	if m := ordinalPattern.FindStringSubmatch(trimmed); m != nil {
		if n, ok := parseOrdinal(m[1]); ok && n >= 1 && n <= len(state.LastResultIDs) {
			loc := state.LastResultIDs[n-1]
			return Outcome{Kind: KindReferent, ResolvedRecord: &loc}
		}
	}

	return Outcome{Kind: NoMatch}
}

var chineseDigits = map[rune]int{'一': 1, '二': 2, '三': 3, '四': 4, '五': 5, '六': 6, '七': 7, '八': 8, '九': 9, '十': 10}

func parseOrdinal(raw string) (int, bool) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, true
	}
	runes := []rune(raw)
	if len(runes) == 1 {
		if n, ok := chineseDigits[runes[0]]; ok {
			return n, true
		}
		return 0, false
	}
	// "十一".."十九" style: 十 followed by a units digit.
	if len(runes) == 2 && runes[0] == '十' {
		if units, ok := chineseDigits[runes[1]]; ok && units < 10 {
			return 10 + units, true
		}
	}
	return 0, false
}
