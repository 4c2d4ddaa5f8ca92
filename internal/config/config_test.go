package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Columns.ID != "id" || cfg.Columns.AudioPath != "audio_path" {
		t.Errorf("columns = %+v", cfg.Columns)
	}
	if cfg.Columns.Source != "audio_source" || cfg.Columns.Speaker != "speaker" {
		t.Errorf("columns = %+v", cfg.Columns)
	}
	if cfg.MaxRows != 10000 {
		t.Errorf("max rows = %d", cfg.MaxRows)
	}
	if cfg.Mode != "copy" {
		t.Errorf("mode = %s", cfg.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxRows != Default().MaxRows {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxpack.yaml")
	content := `
columns:
  id: utt_id
  audio_path: path
  source: origin
  speaker: voice
defaults:
  source: youtube
max_rows: 500
mode: hardlink
verify: true
concurrency: 4
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Columns.ID != "utt_id" || cfg.Columns.Speaker != "voice" {
		t.Errorf("columns = %+v", cfg.Columns)
	}
	if cfg.Defaults.Source != "youtube" || cfg.Defaults.Speaker != "" {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
	if cfg.MaxRows != 500 || cfg.Mode != "hardlink" || !cfg.Verify || cfg.Concurrency != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxpack.yaml")
	if err := os.WriteFile(path, []byte("max_rows: 250\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxRows != 250 {
		t.Errorf("max rows = %d", cfg.MaxRows)
	}
	if cfg.Columns.ID != "id" || cfg.Mode != "copy" {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero max rows", "max_rows: 0\n"},
		{"bad mode", "mode: symlink\n"},
		{"negative concurrency", "concurrency: -1\n"},
		{"empty id column", "columns:\n  id: \"\"\n"},
		{"not yaml", "{{{\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "voxpack.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error")
	}
}

func TestEffectiveConcurrency(t *testing.T) {
	cfg := Default()
	if n := cfg.EffectiveConcurrency(); n < 1 || n > 8 {
		t.Errorf("default concurrency = %d", n)
	}
	cfg.Concurrency = 3
	if n := cfg.EffectiveConcurrency(); n != 3 {
		t.Errorf("explicit concurrency = %d", n)
	}
}
