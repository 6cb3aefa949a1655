package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaultsAndPaths(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "profiles"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("port: 9090\nprofilesDir: profiles\nlogs:\n  maxSizeMB: 3\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Port != 9090 || cfg.Concurrency <= 0 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ProfilesDir != filepath.Join(dir, "profiles") {
		t.Fatalf("profilesDir = %q", cfg.ProfilesDir)
	}
	if cfg.Logs.MaxSizeMB != 3 || cfg.Logs.MaxBackups != 5 || cfg.Logs.FileName != "ocld.log" {
		t.Fatalf("logs = %+v", cfg.Logs)
	}
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("prot: 1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatalf("expected an error")
	}
}
