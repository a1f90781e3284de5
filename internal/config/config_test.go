package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cmms/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("unexpected base path %q", cfg.Server.BasePath)
	}
	if !cfg.GuardRoleChanges() {
		t.Fatalf("role change guard should default on")
	}
	if cfg.Policies.Assignment.AllowTerminalActivities {
		t.Fatalf("terminal assignments should default off")
	}
	if cfg.CacheTTL() != 5*time.Minute {
		t.Fatalf("unexpected ttl %s", cfg.CacheTTL())
	}
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"driver":    "database:\n  driver: oracle\n",
		"pg dsn":    "database:\n  driver: postgres\n",
		"base path": "server:\n  base_path: v0\n",
		"level":     "logging:\n  level: loud\n",
		"format":    "logging:\n  format: xml\n",
		"webhook":   "webhooks:\n  - events: [activity.created]\n",
	}
	for name, doc := range cases {
		if _, err := config.FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestGuardRoleChangesCanBeDisabled(t *testing.T) {
	cfg, err := config.FromYAML([]byte("policies:\n  hierarchy:\n    guard_role_changes: false\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.GuardRoleChanges() {
		t.Fatalf("expected guard disabled")
	}
}

func TestLoadAndLoadOptional(t *testing.T) {
	dir := t.TempDir()
	if _, err := config.Load(dir); err == nil || !strings.Contains(err.Error(), "cmms init") {
		t.Fatalf("expected missing config error, got %v", err)
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil || cfg == nil {
		t.Fatalf("load optional: %v", err)
	}
	doc := "server:\n  addr: 0.0.0.0:9000\nwebhooks:\n  - url: http://example.test/hook\n    enabled: false\n"
	if err := os.WriteFile(filepath.Join(dir, "cmms.yml"), []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].IsEnabled() {
		t.Fatalf("expected one disabled webhook, got %+v", cfg.Webhooks)
	}
}
