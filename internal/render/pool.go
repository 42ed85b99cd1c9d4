// Package render turns a skill's SkillResult into a channel-neutral
// RenderedResponse (the Response Renderer, spec.md §4.5 step 5) and then
// into a channel-specific payload (the Channel Formatter, step 6). The
// renderer draws from a hot-reloadable template pool of phrasing variants
// so replies don't read as a single canned string, and branches greetings
// by time of day.
package render

import (
	"math/rand"
	"sync"
	"time"
)

// Pool holds response phrasing variants keyed by template name, swapped
// atomically under a read-write lock so in-flight renders keep whichever
// pool they started with (spec.md §5 "Hot-reload... atomic swap under a
// read-write lock").
type Pool struct {
	mu        sync.RWMutex
	variants  map[string][]string
	greetings map[TimeOfDay][]string
	rand      *rand.Rand
	randMu    sync.Mutex
}

// TimeOfDay buckets the conversation's local clock for greeting selection.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
)

// NewPool builds a Pool from a set of named variant lists and a per-time-
// of-day greeting set. A nil/empty input is valid; Render falls back to the
// template name itself when no variant is registered.
func NewPool(variants map[string][]string, greetings map[TimeOfDay][]string) *Pool {
	p := &Pool{
		variants:  cloneVariants(variants),
		greetings: cloneGreetings(greetings),
		rand:      rand.New(rand.NewSource(1)),
	}
	return p
}

// Swap atomically replaces the pool's contents, the hot-reload path.
func (p *Pool) Swap(variants map[string][]string, greetings map[TimeOfDay][]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.variants = cloneVariants(variants)
	p.greetings = cloneGreetings(greetings)
}

// Pick returns one randomly-selected variant for name, or name itself if no
// variants are registered (so an unconfigured template degrades instead of
// panicking).
func (p *Pool) Pick(name string) string {
	p.mu.RLock()
	options := p.variants[name]
	p.mu.RUnlock()
	if len(options) == 0 {
		return name
	}
	return options[p.index(len(options))]
}

// Greeting returns one randomly-selected greeting appropriate for now.
func (p *Pool) Greeting(now time.Time) string {
	bucket := BucketOf(now)
	p.mu.RLock()
	options := p.greetings[bucket]
	p.mu.RUnlock()
	if len(options) == 0 {
		return "你好"
	}
	return options[p.index(len(options))]
}

func (p *Pool) index(n int) int {
	p.randMu.Lock()
	defer p.randMu.Unlock()
	return p.rand.Intn(n)
}

// BucketOf maps a wall-clock hour to a TimeOfDay bucket.
func BucketOf(t time.Time) TimeOfDay {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 18:
		return Afternoon
	case h >= 18 && h < 22:
		return Evening
	default:
		return Night
	}
}

func cloneVariants(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func cloneGreetings(in map[TimeOfDay][]string) map[TimeOfDay][]string {
	out := make(map[TimeOfDay][]string, len(in))
	for k, v := range in {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// DefaultPool returns a Pool seeded with a small built-in set of variants,
// suitable when no template file is configured.
func DefaultPool() *Pool {
	return NewPool(
		map[string][]string{
			"no_results":      {"没有找到符合条件的记录。", "查了一下，没有匹配的结果。"},
			"delete_disabled": {"批量删除已被禁用，请逐条确认删除。"},
			"confirm_delete":  {"确定要删除这条记录吗？回复“确认”继续，“取消”放弃。"},
			"deleted":         {"已删除。", "好的，已经删掉了。"},
			"cancelled":       {"已取消。", "好的，不操作了。"},
			"nothing_pending": {"没有待确认的操作了。"},
			"generic_error":   {"出了点问题，请稍后再试。"},
		},
		map[TimeOfDay][]string{
			Morning:   {"早上好！", "早！"},
			Afternoon: {"下午好！"},
			Evening:   {"晚上好！"},
			Night:     {"这么晚还在忙？"},
		},
	)
}
