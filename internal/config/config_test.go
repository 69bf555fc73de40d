package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTuningValid(t *testing.T) {
	if err := DefaultTuning().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadTuningOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	raw := "alliances:\n  capacity: 5\npolicy:\n  cooldown_ticks: 200\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	tu, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if tu.Alliances.Capacity != 5 || tu.Policy.CooldownTicks != 200 {
		t.Fatalf("overlay not applied: %+v %+v", tu.Alliances, tu.Policy)
	}
	if tu.Relations.AttractorBand != 40 {
		t.Fatalf("unset fields should keep defaults, got band %d", tu.Relations.AttractorBand)
	}
}

func TestLoadTuningRejectsBadJitter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	if err := os.WriteFile(path, []byte("schedule:\n  jitter: 1.5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuning(path); err == nil {
		t.Fatal("expected validation error for jitter 1.5")
	}
}

func TestLoadRuntimeFromEnv(t *testing.T) {
	t.Setenv("KINGDOMS_API_PORT", "9191")
	t.Setenv("KINGDOMS_SEED", "7")
	t.Setenv("KINGDOMS_LOG_LEVEL", "debug")
	r, err := LoadRuntime()
	if err != nil {
		t.Fatalf("LoadRuntime: %v", err)
	}
	if r.APIPort != 9191 || r.Seed != 7 {
		t.Fatalf("env not parsed: %+v", r)
	}
	if r.DBPath != "data/kingdoms.db" {
		t.Fatalf("default DB path not applied: %q", r.DBPath)
	}
	if r.Level().String() != "DEBUG" {
		t.Fatalf("expected debug level, got %v", r.Level())
	}
}
