// Package policy lints panel catalogs with Open Policy Agent (OPA) Rego policies.
//
// Each policy is a Rego module whose deny set yields violations. The engine
// evaluates every enabled policy once with the whole catalog as input, and
// once per panel with input.panel set, so a rule picks its scope by
// requiring or negating input.panel.
//
// # Input
//
//	{
//	  "panel":    {"path": "ui/bag", "layer": 10, "roles": ["focusable", "pop"], "use_mask": true, ...},
//	  "catalog":  [ ...every panel... ],
//	  "settings": {"default_input_scheme": "Game", "pop_input_scheme": "UI", "mask_clickable": true, ...}
//	}
//
// # Violations
//
// A deny entry is a message string or an object:
//
//	deny contains violation if {
//		panel := input.panel
//		panel.layer > 100
//		violation := {
//			"message":  sprintf("%s is above the HUD band", [panel.path]),
//			"severity": "error",
//		}
//	}
//
// Entries without a severity take the policy's. Only error severity makes a
// result disallowed.
//
// # Built-in Policies
//
//   - panel-naming: lowercase slash-separated panel paths (error)
//   - focus: pops and input schemes on panels that cannot hold focus (warning)
//   - mask: mask settings on unmasked panels, masked panels sharing a layer (warning)
//   - main-screen: main panels that are also pops, catalogs with no main panel
//
// # Custom Policies
//
// Policies load from .rego files, named after the file, or from .json files
// with name, description, rego, severity and enabled fields. A leading
// "# severity: error" comment sets the severity of a .rego policy:
//
//	# Overlays must stay below the tooltip band.
//	# severity: error
//	package panelflow.custom.layers
//
//	import rego.v1
//
//	deny contains sprintf("%s is above layer 50", [input.panel.path]) if {
//		input.panel.layer > 50
//	}
package policy
