package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "linkpad", "config.json")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "info" || cfg.DatabaseFile != "linkpad.db" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
}

func TestLoadConfigKeepsDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"logLevel":"debug","kernelPath":"/opt/mihomo"}`), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" || cfg.KernelPath != "/opt/mihomo" || cfg.LogFile != "linkpad.log" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"level.json":  `{"logLevel":"loud"}`,
		"db.json":     `{"databaseFile":""}`,
		"syntax.json": `{"logLevel":`,
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestPaths(t *testing.T) {
	p := NewPaths(filepath.Join("home", "linkpad"))
	if p.RuntimeDir != filepath.Join("home", "linkpad", "runtime") {
		t.Errorf("runtime = %s", p.RuntimeDir)
	}
	if p.InstallPath() != filepath.Join("home", "linkpad", "bin", KernelBinaryName()) {
		t.Errorf("install = %s", p.InstallPath())
	}
	if p.ConfigFile() != filepath.Join("home", "linkpad", "config.json") {
		t.Errorf("config = %s", p.ConfigFile())
	}

	cfg := DefaultConfig()
	if got := cfg.ResolvePath(p, "linkpad.db"); got != filepath.Join("home", "linkpad", "linkpad.db") {
		t.Errorf("relative = %s", got)
	}
	abs := filepath.Join(t.TempDir(), "linkpad.db")
	if got := cfg.ResolvePath(p, abs); got != abs {
		t.Errorf("absolute = %s", got)
	}
	if cfg.ResolvePath(p, "") != "" {
		t.Errorf("empty path should stay empty")
	}
}
