package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := DefaultConfig()
	if cfg.Threshold != def.Threshold || cfg.Method != def.Method || cfg.Source != def.Source {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Threshold = 0.9
	cfg.Method = "ccoeff_normed"
	cfg.Source = "video"
	cfg.Input = "run.mp4"
	cfg.SelectionW, cfg.SelectionH = 100, 40
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *got != *cfg {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"threshold":0.8,"stride":2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCORESPLIT_THRESHOLD", "0.97")
	t.Setenv("SCORESPLIT_SOURCE", "dir")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Threshold != 0.97 || cfg.Source != "dir" || cfg.Stride != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidateClamps(t *testing.T) {
	cfg := &Config{Threshold: 3, Stride: -1, FPS: -2, FailureWarnAfter: 0, LogFormat: "xml"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Threshold != 0.95 || cfg.Stride != 1 || cfg.FPS != 2 || cfg.FailureWarnAfter != 10 || cfg.LogFormat != "" || cfg.Source != "screen" {
		t.Fatalf("values not clamped: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	for _, cfg := range []*Config{{Method: "sqdiff"}, {Source: "webcam"}} {
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}

func TestSelection(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Selection() != nil {
		t.Fatal("expected full screen by default")
	}
	cfg.SelectionX, cfg.SelectionY, cfg.SelectionW, cfg.SelectionH = 10, 20, 30, 40
	if r := cfg.Selection(); r == nil || r.Dx() != 30 || r.Min.Y != 20 {
		t.Fatalf("unexpected selection %v", r)
	}
}
