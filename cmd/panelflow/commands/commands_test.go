package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/panelflow/panelflow/pkg/config"
	"github.com/panelflow/panelflow/pkg/scenario"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
}

func TestValidateCatalog(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "panels.yaml", `
panels:
  bag:
    layer: 20
    roles: [focusable, pop]
    behavior: confirm
  shop:
    layer: 30
    behavior: haggle
behaviors:
  confirm: confirm.star
`)
	writeFile(t, dir, "confirm.star", "def on_show(panel):\n    pass\n")

	res, err := validateCatalog(context.Background(), config.DefaultSettings(), []string{dir})
	if err != nil {
		t.Fatalf("validateCatalog failed: %v", err)
	}

	if !res.Valid {
		t.Fatalf("Expected valid catalog, got errors %v", res.Errors)
	}
	if res.Panels != 2 {
		t.Errorf("Expected 2 panels, got %d", res.Panels)
	}
	if len(res.Behaviors) != 1 || res.Behaviors[0] != "confirm" {
		t.Errorf("Expected behaviors [confirm], got %v", res.Behaviors)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %v", res.Warnings)
	}
	if res.Warnings[0].Path != "ui/shop" || !strings.Contains(res.Warnings[0].Message, "haggle") {
		t.Errorf("Unexpected warning: %v", res.Warnings[0])
	}
	if len(res.Notes) != 1 || !strings.Contains(res.Notes[0].Message, "policy main-screen") {
		t.Errorf("Expected a main-screen note, got %v", res.Notes)
	}
}

func TestValidateCatalogPolicies(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "panels.yaml", `
panels:
  town:
    path: scenes/town
    roles: [main]
  tip:
    layer: 60
    roles: [pop]
`)
	writeFile(t, dir, "policies/layers.rego", `# severity: error
package panelflow.custom.layers

import rego.v1

deny contains sprintf("%s is above layer 50", [input.panel.path]) if {
	input.panel.layer > 50
}
`)

	settings := config.DefaultSettings()
	settings.Policy.Paths = []string{filepath.Join(dir, "policies")}

	res, err := validateCatalog(context.Background(), settings, []string{filepath.Join(dir, "panels.yaml")})
	if err != nil {
		t.Fatalf("validateCatalog failed: %v", err)
	}
	if res.Valid {
		t.Fatal("Expected custom policy error to invalidate the catalog")
	}
	if len(res.Errors) != 1 || res.Errors[0].Path != "ui/tip" {
		t.Errorf("Expected one error for ui/tip, got %v", res.Errors)
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0].Message, "policy focus") {
		t.Errorf("Expected focus warning for the unfocusable pop, got %v", res.Warnings)
	}

	settings.Policy.Disabled = []string{"layers", "focus"}
	res, err = validateCatalog(context.Background(), settings, []string{filepath.Join(dir, "panels.yaml")})
	if err != nil {
		t.Fatalf("validateCatalog failed: %v", err)
	}
	if !res.Valid || len(res.Warnings) != 0 {
		t.Errorf("Expected disabled policies to be skipped, got errors %v warnings %v", res.Errors, res.Warnings)
	}

	settings.Policy.Disabled = []string{"missing"}
	if _, err := validateCatalog(context.Background(), settings, []string{filepath.Join(dir, "panels.yaml")}); err == nil {
		t.Error("Expected error for unknown disabled policy")
	}
}

func TestValidateCatalogErrors(t *testing.T) {
	t.Run("schema", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "panels.yaml", "panels:\n  bag:\n    layer: -4\n")

		res, err := validateCatalog(context.Background(), config.DefaultSettings(), []string{dir})
		if err != nil {
			t.Fatalf("validateCatalog failed: %v", err)
		}
		if res.Valid {
			t.Fatal("Expected invalid catalog")
		}
		if len(res.Errors) == 0 {
			t.Error("Expected validation errors")
		}
	})

	t.Run("script", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "panels.yaml", "panels:\n  bag:\n    behavior: broken\nbehaviors:\n  broken: broken.star\n")
		writeFile(t, dir, "broken.star", "def on_show(panel)\n")

		res, err := validateCatalog(context.Background(), config.DefaultSettings(), []string{dir})
		if err != nil {
			t.Fatalf("validateCatalog failed: %v", err)
		}
		if res.Valid {
			t.Fatal("Expected invalid catalog")
		}
		if len(res.Errors) != 1 || !strings.Contains(res.Errors[0].Message, "broken") {
			t.Errorf("Expected script error, got %v", res.Errors)
		}
	})
}

func TestPruneCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	got, err := pruneCutoff("", 48*time.Hour, now)
	if err != nil {
		t.Fatalf("pruneCutoff failed: %v", err)
	}
	if !got.Equal(now.Add(-48 * time.Hour)) {
		t.Errorf("Expected two days before now, got %v", got)
	}

	got, err = pruneCutoff("2026-01-02T03:04:05Z", 0, now)
	if err != nil {
		t.Fatalf("pruneCutoff failed: %v", err)
	}
	if !got.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("Unexpected RFC 3339 cutoff: %v", got)
	}

	got, err = pruneCutoff("2026-01-02", 0, now)
	if err != nil {
		t.Fatalf("pruneCutoff failed: %v", err)
	}
	if got.Year() != 2026 || got.Month() != time.January || got.Day() != 2 {
		t.Errorf("Unexpected date cutoff: %v", got)
	}

	if _, err := pruneCutoff("last week", 0, now); err == nil {
		t.Error("Expected error for unparseable cutoff")
	}
}

func TestPrintReport(t *testing.T) {
	report := &scenario.Report{
		Name: "bag",
		Steps: []*scenario.StepResult{
			{Index: 1, Op: "show", Path: "ui/bag", OperationID: 7, State: "completed"},
			{Index: 2, Failures: []string{"scheme: expected UI, got Game"}},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	for _, want := range []string{"Scenario: bag", "ui/bag", "completed", "expect", "scheme: expected UI, got Game", "2 steps, 1 failed expectations"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}
