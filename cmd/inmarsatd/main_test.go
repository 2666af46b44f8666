package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Port != 8080 || cfg.Concurrency != runtime.NumCPU() || cfg.MaxBodyMB != 32 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Repair.PaddingStrategy != "terminator" {
		t.Fatalf("padding = %q", cfg.Repair.PaddingStrategy)
	}
	if cfg.Logs.Directory != filepath.Join("data", "logs") || cfg.Logs.FileName != "inmarsatd.log" {
		t.Fatalf("logs = %+v", cfg.Logs)
	}
}

func TestLoadConfigResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, `
port: 9090
storageDir: store
auditLog: audit/repairs.jsonl
repair:
  paddingStrategy: Stored-Time
logs:
  level: debug
`)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	base := filepath.Dir(path)
	if cfg.StorageDir != filepath.Join(base, "store") {
		t.Fatalf("storageDir = %q", cfg.StorageDir)
	}
	if cfg.AuditLog != filepath.Join(base, "audit", "repairs.jsonl") {
		t.Fatalf("auditLog = %q", cfg.AuditLog)
	}
	if cfg.Logs.Directory != filepath.Join(base, "store", "logs") {
		t.Fatalf("log dir = %q", cfg.Logs.Directory)
	}
	if cfg.Repair.PaddingStrategy != "stored-time" || cfg.Port != 9090 || cfg.Logs.Level != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]string{
		"unknown strategy": "repair:\n  paddingStrategy: guess\n",
		"unknown field":    "listen: 1\n",
		"bad port":         "port: 70000\n",
	}
	for name, body := range cases {
		if _, err := loadConfig(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "missing.yaml") {
		t.Fatalf("missing file error = %v", err)
	}
}
