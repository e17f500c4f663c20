package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	path := writeConfig(t, `{
		"server": {"port": 8080},
		"paths": {"actions": "actions", "flux": "flux"},
		"plugins": {"database": {"type": "postgres", "dsn": "postgres://localhost/app"}}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("expected default host, got %q", cfg.Server.Host)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default logging level, got %q", cfg.Logging.Level)
	}
	if cfg.Plugins["database"].Type != "postgres" {
		t.Fatalf("expected plugin type postgres, got %q", cfg.Plugins["database"].Type)
	}
	if cfg.Plugins["database"].Opts["dsn"] != "postgres://localhost/app" {
		t.Fatalf("expected dsn to survive in opts, got %v", cfg.Plugins["database"].Opts)
	}
}

func TestLoadMissingRequiredFieldFails(t *testing.T) {
	path := writeConfig(t, `{"server": {}, "paths": {}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation failure for missing required fields")
	}
}

func TestEnvVarInterpolation(t *testing.T) {
	t.Setenv("FLUX_TEST_PORT", "9090")

	path := writeConfig(t, `{
		"server": {"port": "${FLUX_TEST_PORT}"},
		"paths": {"actions": "${FLUX_TEST_ACTIONS:default-actions}", "flux": "flux"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected interpolated port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Paths.Actions != "default-actions" {
		t.Fatalf("expected default fallback, got %q", cfg.Paths.Actions)
	}
}
