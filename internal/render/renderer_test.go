package render

import (
	"testing"
	"time"

	"github.com/fieldbridge/fieldbridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRendererGreetsByTimeOfDay(t *testing.T) {
	pool := NewPool(nil, map[TimeOfDay][]string{Morning: {"早上好"}})
	morning := time.Date(2026, 2, 7, 8, 0, 0, 0, time.UTC)
	r := NewRenderer(pool, func() time.Time { return morning })

	resp := r.Render(models.SkillResult{OK: true, Message: "这是今天的日程"}, true)
	assert.Contains(t, resp.TextFallback, "早上好")
	assert.Contains(t, resp.TextFallback, "这是今天的日程")
}

func TestRendererNoGreetingWhenNotRequested(t *testing.T) {
	r := NewRenderer(DefaultPool(), nil)
	resp := r.Render(models.SkillResult{OK: true, Message: "完成"}, false)
	assert.Equal(t, "完成", resp.TextFallback)
}

func TestRenderNamedFallsBackToNameWhenUnregistered(t *testing.T) {
	r := NewRenderer(NewPool(nil, nil), nil)
	resp := r.RenderNamed("unregistered_template")
	assert.Equal(t, "unregistered_template", resp.TextFallback)
}

func TestPoolSwapIsAtomic(t *testing.T) {
	pool := NewPool(map[string][]string{"a": {"one"}}, nil)
	require.Equal(t, "one", pool.Pick("a"))
	pool.Swap(map[string][]string{"a": {"two"}}, nil)
	assert.Equal(t, "two", pool.Pick("a"))
}

func TestFormatterTextFallbackWhenNoBlocks(t *testing.T) {
	f := NewFormatter()
	msg := f.Format(models.RenderedResponse{TextFallback: "hello"})
	assert.Equal(t, "hello", msg.Text)
	assert.Nil(t, msg.Card)
}

func TestFormatterRoundTripsBlocks(t *testing.T) {
	f := NewFormatter()
	resp := models.RenderedResponse{
		TextFallback: "records",
		Blocks:       []models.Block{{Type: "list", Data: map[string]any{"count": float64(2)}}},
	}
	msg := f.Format(resp)
	require.NotNil(t, msg.Card)

	back := f.Parse(msg)
	assert.Equal(t, resp.TextFallback, back.TextFallback)
	require.Len(t, back.Blocks, 1)
	assert.Equal(t, "list", back.Blocks[0].Type)
}

func TestBucketOf(t *testing.T) {
	cases := map[int]TimeOfDay{6: Morning, 13: Afternoon, 19: Evening, 2: Night}
	for hour, want := range cases {
		got := BucketOf(time.Date(2026, 1, 1, hour, 0, 0, 0, time.UTC))
		assert.Equal(t, want, got, "hour %d", hour)
	}
}
