package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
role: orchestrator
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("expected default sqlite driver, got %q", cfg.Database.Driver)
	}
	if cfg.LLM.Timeout.Seconds() != 10 {
		t.Fatalf("expected default 10s llm timeout, got %v", cfg.LLM.Timeout)
	}
}

func TestLoadRejectsInvalidRole(t *testing.T) {
	path := writeConfig(t, `
role: banana
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for invalid role")
	}
}

func TestLoadValidatesAutomationWorkerRequiresRulesFile(t *testing.T) {
	path := writeConfig(t, `
role: automation_worker
rules_file: ""
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "rules_file") {
		t.Fatalf("expected rules_file error, got %v", err)
	}
}

func TestLoadValidatesOrchestratorRequiresMCPServerBase(t *testing.T) {
	path := writeConfig(t, `
role: orchestrator
mcp:
  server_base: ""
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "mcp.server_base") {
		t.Fatalf("expected mcp.server_base error, got %v", err)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("ROLE", "automation_worker")
	t.Setenv("AUTOMATION_ENABLED", "false")
	t.Setenv("AUTOMATION_ACTION_MAX_RETRIES", "7")
	t.Setenv("AUTOMATION_HTTP_ALLOWED_DOMAINS", "example.com, api.example.com")
	t.Setenv("POSTGRES_DSN", "postgres://override@localhost:5432/fieldbridge")

	path := writeConfig(t, `
role: orchestrator
automation:
  enabled: true
  action:
    max_retries: 3
database:
  dsn: fieldbridge.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Role != RoleAutomationWorker {
		t.Fatalf("expected role override, got %q", cfg.Role)
	}
	if cfg.Automation.Enabled {
		t.Fatalf("expected automation.enabled override to false")
	}
	if cfg.Automation.Action.MaxRetries != 7 {
		t.Fatalf("expected max_retries override, got %d", cfg.Automation.Action.MaxRetries)
	}
	if len(cfg.Automation.HTTP.AllowedDomains) != 2 || cfg.Automation.HTTP.AllowedDomains[1] != "api.example.com" {
		t.Fatalf("expected allowed_domains override, got %v", cfg.Automation.HTTP.AllowedDomains)
	}
	if cfg.Database.DSN != "postgres://override@localhost:5432/fieldbridge" {
		t.Fatalf("expected dsn override, got %q", cfg.Database.DSN)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Role != RoleOrchestrator {
		t.Fatalf("expected default role orchestrator, got %q", cfg.Role)
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fieldbridge.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}
