package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LAZYHOST_CONFIG", "")
	return home
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log.level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Development {
		t.Error("log.development should default to false")
	}
	want := filepath.Join(home, ".local", "share", "lazyhost", "kv.db")
	if cfg.KV.Path != want {
		t.Errorf("kv.path = %q, want %q", cfg.KV.Path, want)
	}
	if len(cfg.Modules.Preload) != 0 {
		t.Errorf("modules.preload = %v, want empty", cfg.Modules.Preload)
	}
}

func TestLoadFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "lazyhost.toml")
	data := []byte(`
[log]
level = "debug"
development = true

[modules]
preload = ["math"]
disabled = ["kv"]

[kv]
path = "/tmp/lazyhost-test.db"
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LAZYHOST_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Development {
		t.Errorf("log = %+v, want debug/development", cfg.Log)
	}
	if len(cfg.Modules.Preload) != 1 || cfg.Modules.Preload[0] != "math" {
		t.Errorf("modules.preload = %v, want [math]", cfg.Modules.Preload)
	}
	if cfg.ModuleEnabled("kv") {
		t.Error("kv should be disabled")
	}
	if !cfg.ModuleEnabled("math") {
		t.Error("math should be enabled")
	}
	if cfg.KV.Path != "/tmp/lazyhost-test.db" {
		t.Errorf("kv.path = %q", cfg.KV.Path)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("LAZYHOST_LOG_LEVEL", "warn")
	t.Setenv("LAZYHOST_KV_PATH", "/var/tmp/kv.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log.level = %q, want %q", cfg.Log.Level, "warn")
	}
	if cfg.KV.Path != "/var/tmp/kv.db" {
		t.Errorf("kv.path = %q, want %q", cfg.KV.Path, "/var/tmp/kv.db")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	t.Setenv("LAZYHOST_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestModuleEnabledIgnoresCaseAndSpace(t *testing.T) {
	cfg := Default()
	cfg.Modules.Disabled = []string{" UUID "}
	if cfg.ModuleEnabled("uuid") {
		t.Error("uuid should be disabled")
	}
}
