package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSchemaRegistryBuiltins(t *testing.T) {
	sr := NewSchemaRegistry()

	if diff := cmp.Diff([]string{"catalog", "panel"}, sr.ListSchemas()); diff != "" {
		t.Errorf("Schema list mismatch (-want +got):\n%s", diff)
	}
	for _, name := range sr.ListSchemas() {
		schema, ok := sr.GetSchema(name)
		if !ok {
			t.Fatalf("Built-in schema %s not found", name)
		}
		if schema.Err() != nil {
			t.Errorf("Schema %s has errors: %v", name, schema.Err())
		}
	}
}

func TestSchemaRegistryRegister(t *testing.T) {
	sr := NewSchemaRegistry()

	if err := sr.RegisterSchema("scene", `#Schema: close({name: string, layers: [...int]})`); err != nil {
		t.Fatalf("RegisterSchema failed: %v", err)
	}
	if err := sr.ValidateAgainstSchema("scene", map[string]interface{}{"name": "town", "layers": []int{0, 10}}); err != nil {
		t.Errorf("Expected valid scene, got %v", err)
	}
	if err := sr.ValidateAgainstSchema("scene", map[string]interface{}{"name": 3}); err == nil {
		t.Error("Expected invalid scene to fail")
	}

	if err := sr.RegisterSchema("nodef", `name: string`); err == nil {
		t.Error("Expected error for schema without #Schema")
	}
	if err := sr.RegisterSchema("broken", `#Schema: {`); err == nil {
		t.Error("Expected compile error")
	}
}

func TestPanelSchema(t *testing.T) {
	sr := NewSchemaRegistry()

	tests := []struct {
		name    string
		panel   map[string]interface{}
		wantErr bool
	}{
		{"minimal", map[string]interface{}{}, false},
		{"full", map[string]interface{}{
			"layer":      10,
			"roles":      []string{"main", "loadable"},
			"mask_color": "#00000080",
			"auto_close": map[string]string{"mask_click": "hide"},
			"loading":    map[string]string{"type": "fade"},
		}, false},
		{"unknown role", map[string]interface{}{"roles": []string{"boss"}}, true},
		{"negative layer", map[string]interface{}{"layer": -3}, true},
		{"bad color", map[string]interface{}{"mask_color": "black"}, true},
		{"unknown reason", map[string]interface{}{"auto_close": map[string]string{"sunset": "close"}}, true},
		{"unknown field", map[string]interface{}{"colour": "red"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateAgainstSchema("panel", tt.panel)
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
