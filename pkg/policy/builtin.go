package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		panelNamingPolicy(),
		focusPolicy(),
		maskPolicy(),
		mainScreenPolicy(),
	}
}

// panelNamingPolicy enforces lowercase slash-separated panel paths.
func panelNamingPolicy() Policy {
	return Policy{
		Name:        "panel-naming",
		Description: "Panel paths are lowercase segments separated by '/'",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		Rego: `package panelflow.policies.naming

import rego.v1

deny contains violation if {
	path := input.panel.path
	not regex.match("^[a-z0-9_-]+(/[a-z0-9_-]+)*$", path)
	violation := {
		"message": sprintf("panel path '%s' must be lowercase letters, digits, '_' or '-' in '/'-separated segments", [path]),
		"panel": path,
	}
}

deny contains violation if {
	path := input.panel.path
	count(path) > 128
	violation := {
		"message": sprintf("panel path '%s' must not exceed 128 characters", [path]),
		"panel": path,
	}
}`,
	}
}

// focusPolicy flags settings that can never take effect without focus.
func focusPolicy() Policy {
	return Policy{
		Name:        "focus",
		Description: "Pops and input schemes need the focusable role",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"focus", "input"},
		Rego: `package panelflow.policies.focus

import rego.v1

deny contains violation if {
	panel := input.panel
	"pop" in panel.roles
	not "focusable" in panel.roles
	violation := {
		"message": sprintf("pop panel %s is not focusable and never requests an input scheme", [panel.path]),
		"panel": panel.path,
	}
}

deny contains violation if {
	panel := input.panel
	scheme := panel.input_scheme
	not "focusable" in panel.roles
	violation := {
		"message": sprintf("input_scheme %s on %s has no effect without the focusable role", [scheme, panel.path]),
		"panel": panel.path,
	}
}`,
	}
}

// maskPolicy flags mask settings that are ignored or order-dependent.
func maskPolicy() Policy {
	return Policy{
		Name:        "mask",
		Description: "Mask settings apply only to masked panels on distinct layers",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"mask", "layers"},
		Rego: `package panelflow.policies.mask

import rego.v1

deny contains violation if {
	panel := input.panel
	not panel.use_mask
	panel.mask_click
	violation := {
		"message": sprintf("mask_click on %s has no effect without use_mask", [panel.path]),
		"panel": panel.path,
	}
}

deny contains violation if {
	panel := input.panel
	not panel.use_mask
	panel.mask_color
	violation := {
		"message": sprintf("mask_color on %s has no effect without use_mask", [panel.path]),
		"panel": panel.path,
	}
}

deny contains violation if {
	panel := input.panel
	panel.use_mask
	panel.mask_click
	input.settings.mask_clickable == false
	violation := {
		"message": sprintf("mask_click on %s is ignored while panels.mask_clickable is off", [panel.path]),
		"panel": panel.path,
		"severity": "info",
	}
}

deny contains violation if {
	not input.panel
	some a in input.catalog
	some b in input.catalog
	a.use_mask
	b.use_mask
	a.layer == b.layer
	a.path < b.path
	violation := {
		"message": sprintf("masked panels %s and %s share layer %d; the mask follows whichever was shown last", [a.path, b.path, a.layer]),
		"panel": a.path,
	}
}`,
	}
}

// mainScreenPolicy flags main screens that behave like overlays.
func mainScreenPolicy() Policy {
	return Policy{
		Name:        "main-screen",
		Description: "Main screens are not pops and the catalog has at least one",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"main"},
		Rego: `package panelflow.policies.main

import rego.v1

deny contains violation if {
	panel := input.panel
	"main" in panel.roles
	"pop" in panel.roles
	violation := {
		"message": sprintf("main panel %s is also a pop; auto_close_top can hide the main screen", [panel.path]),
		"panel": panel.path,
	}
}

deny contains violation if {
	not input.panel
	mains := [p | some p in input.catalog; "main" in p.roles]
	count(input.catalog) > 0
	count(mains) == 0
	violation := {
		"message": "catalog has no main panel; show_main and switch_main have no targets",
		"severity": "info",
	}
}`,
	}
}
