// Package rules is the Rule Registry: rules loaded from a declarative YAML
// file, indexed by table, hot-reloaded on file change under a read-write
// lock so in-flight processing keeps the snapshot it started with
// (spec.md §3 "Rule Registry", §5 "Hot-reload").
package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/fieldbridge/fieldbridge/internal/logging"
	"github.com/fieldbridge/fieldbridge/pkg/models"
)

// Registry holds the current rule set, indexed by table, and watches the
// backing file for changes.
type Registry struct {
	path   string
	logger *logging.Logger

	mu       sync.RWMutex
	rules    map[string]models.Rule   // rule_id -> rule
	byTable  map[string][]string      // app_token+"/"+table_id -> rule ids, insertion order
	disabled map[string]bool          // rule_id -> runtime-disabled

	watcher   *fsnotify.Watcher
	watchOnce sync.Once
	debounce  time.Duration
}

// New creates a registry that will load rules from path on Load/Watch.
func New(path string, logger *logging.Logger) *Registry {
	return &Registry{
		path:     path,
		logger:   logger,
		rules:    make(map[string]models.Rule),
		byTable:  make(map[string][]string),
		disabled: make(map[string]bool),
		debounce: 250 * time.Millisecond,
	}
}

// Load reads the rules file and atomically replaces the in-memory index.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("rules: read %s: %w", r.path, err)
	}

	var file models.RuleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("rules: parse %s: %w", r.path, err)
	}

	rules := make(map[string]models.Rule, len(file.Rules))
	byTable := make(map[string][]string)
	for _, rule := range file.Rules {
		if !rule.Enabled {
			continue
		}
		rules[rule.ID] = rule
		key := tableKey(rule.Table.AppToken, rule.Table.TableID)
		byTable[key] = append(byTable[key], rule.ID)
	}

	r.mu.Lock()
	r.rules = rules
	r.byTable = byTable
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Info(context.Background(), "rules reloaded", "path", r.path, "count", len(rules))
	}
	return nil
}

func tableKey(appToken, tableID string) string { return appToken + "/" + tableID }

// Watch starts an fsnotify watcher on the rules file's directory and
// reloads on write/create events, debounced so a multi-write editor save
// doesn't trigger a storm of reloads. It is safe to call once; subsequent
// calls are no-ops.
func (r *Registry) Watch(ctx context.Context) error {
	var startErr error
	r.watchOnce.Do(func() {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			startErr = fmt.Errorf("rules: new watcher: %w", err)
			return
		}
		dir := filepath.Dir(r.path)
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			startErr = fmt.Errorf("rules: watch %s: %w", dir, err)
			return
		}
		r.watcher = watcher

		go r.watchLoop(ctx)
	})
	return startErr
}

func (r *Registry) watchLoop(ctx context.Context) {
	var timer *time.Timer
	reload := func() {
		if err := r.Load(); err != nil && r.logger != nil {
			r.logger.Error(ctx, "rules reload failed", "error", err.Error())
		}
	}

	for {
		select {
		case <-ctx.Done():
			r.watcher.Close()
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(r.debounce, reload)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			if r.logger != nil {
				r.logger.Warn(ctx, "rules watcher error", "error", err.Error())
			}
		}
	}
}

// RulesForTable returns the enabled rules configured for a table, in
// declaration order, skipping any runtime-disabled by a schema change.
func (r *Registry) RulesForTable(appToken, tableID string) []models.Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byTable[tableKey(appToken, tableID)]
	out := make([]models.Rule, 0, len(ids))
	for _, id := range ids {
		if r.disabled[id] {
			continue
		}
		out = append(out, r.rules[id])
	}
	return out
}

// Disable runtime-disables a rule without modifying the rules file
// (spec.md §4.4).
func (r *Registry) Disable(ruleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[ruleID] = true
}

// Enable clears a runtime-disable override.
func (r *Registry) Enable(ruleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.disabled, ruleID)
}

// Get returns a single rule by id.
func (r *Registry) Get(ruleID string) (models.Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[ruleID]
	return rule, ok
}
