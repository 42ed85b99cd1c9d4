package skills

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldbridge/fieldbridge/internal/config"
	"github.com/fieldbridge/fieldbridge/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tablesFixture() config.TablesConfig {
	return config.TablesConfig{
		DisambiguateThreshold: 0.65,
		Aliases: map[string]config.TableAlias{
			"cases": {
				AppToken: "app1", TableID: "tbl_cases",
				Aliases:        []string{"案件", "案子"},
				DateField:      "开庭日",
				PersonField:    "主办律师",
				RequiredFields: []string{"案号", "委托人"},
				Fields:         []string{"案号", "委托人", "开庭日", "主办律师"},
			},
			"contacts": {
				AppToken: "app1", TableID: "tbl_contacts",
				Aliases: []string{"联系人"},
				Fields:  []string{"姓名", "电话"},
			},
		},
	}
}

func TestResolveTableUnambiguousMatch(t *testing.T) {
	name, alias, err := resolveTable(context.Background(), tablesFixture(), nil, "查一下案件进度")
	require.NoError(t, err)
	assert.Equal(t, "cases", name)
	assert.Equal(t, "tbl_cases", alias.TableID)
}

func TestResolveTableNoMatchErrors(t *testing.T) {
	_, _, err := resolveTable(context.Background(), tablesFixture(), nil, "今天天气怎么样")
	assert.Error(t, err)
}

func TestResolveTableTieBreaksViaLLMShortlist(t *testing.T) {
	cfg := tablesFixture()
	cfg.Aliases["cases2"] = config.TableAlias{
		AppToken: "app1", TableID: "tbl_cases2", Aliases: []string{"案件"},
	}
	// Force the LLM shortlist path by requiring confidence the 2-way tie
	// (0.5) can't clear.
	cfg.DisambiguateThreshold = 0.9

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": `{"table":"cases2"}`}}},
		})
	}))
	defer srv.Close()

	router := llm.NewRouter(config.LLMConfig{
		Task:    config.LLMProviderConfig{BaseURL: srv.URL, Model: "task"},
		Chat:    config.LLMProviderConfig{BaseURL: srv.URL, Model: "chat"},
		Timeout: time.Second,
	})

	name, _, err := resolveTable(context.Background(), cfg, router, "案件怎么样了")
	require.NoError(t, err)
	assert.Equal(t, "cases2", name)
}
