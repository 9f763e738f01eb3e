package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/panelflow/panelflow/pkg/engine"
)

func TestDefaultSettingsValidate(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got %v", err)
	}
	if diff := cmp.Diff(engine.DefaultSettings(), s.EngineSettings()); diff != "" {
		t.Errorf("Engine settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSettingsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "panelflow.yaml", `
panels:
  default_input_scheme: Explore
  mask_color: "#10203040"
  path_format: screens/%s
catalog:
  paths: [catalog, extra]
  watch: true
journal:
  enabled: true
  path: journal.db
telemetry:
  logging:
    level: debug
    format: json
`)

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}

	want := DefaultSettings()
	want.Panels.DefaultInputScheme = "Explore"
	want.Panels.MaskColor = "#10203040"
	want.Panels.PathFormat = "screens/%s"
	want.Catalog.Paths = []string{"catalog", "extra"}
	want.Catalog.Watch = true
	want.Journal.Enabled = true
	want.Journal.Path = "journal.db"
	want.Telemetry.Logging.Level = "debug"
	want.Telemetry.Logging.Format = "json"

	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("Settings mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSettingsEnvOverride(t *testing.T) {
	t.Setenv("PANELFLOW_PANELS_MASK_COLOR", "#112233")
	t.Setenv("PANELFLOW_PANELS_POP_INPUT_SCHEME", "Menu")

	s, err := LoadSettings("")
	if err != nil {
		t.Fatalf("LoadSettings failed: %v", err)
	}
	if s.Panels.MaskColor != "#112233" {
		t.Errorf("Expected env mask color, got %s", s.Panels.MaskColor)
	}
	if s.Panels.PopInputScheme != "Menu" {
		t.Errorf("Expected env pop scheme, got %s", s.Panels.PopInputScheme)
	}
	if s.Panels.DefaultInputScheme != "Game" {
		t.Errorf("Expected default scheme Game, got %s", s.Panels.DefaultInputScheme)
	}
}

func TestLoadSettingsInvalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"mask color", "panels:\n  mask_color: black\n", "mask_color"},
		{"path format", "panels:\n  path_format: fixed\n", "path_format"},
		{"journal path", "journal:\n  enabled: true\n  path: \"\"\n", "path"},
		{"telemetry", "telemetry:\n  logging:\n    level: loud\n", "telemetry"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, filepath.Join("case", string(rune('a'+i))+".yaml"), tt.content)
			_, err := LoadSettings(path)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadSettingsMissingFile(t *testing.T) {
	if _, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing explicit config file")
	}
}
