// Package config loads panelflow settings, the panel catalog, and Starlark
// panel behaviors.
//
// # Settings
//
// LoadSettings reads a YAML, JSON or TOML file through viper and applies
// PANELFLOW_ environment overrides:
//
//	panels:
//	  default_input_scheme: Game
//	  pop_input_scheme: UI
//	  mask_color: "#000000F2"
//	  path_format: ui/%s
//	catalog:
//	  paths: [panels]
//	  watch: true
//	journal:
//	  enabled: true
//	  path: panelflow.db
//
// PANELFLOW_PANELS_MASK_COLOR=#00000080 overrides panels.mask_color.
//
// # Catalog
//
// A Catalog implements engine.TemplateLoader. Catalog files are YAML or CUE
// documents with a panels map and an optional behaviors map:
//
//	panels:
//	  bag:
//	    layer: 20
//	    roles: [focusable, pop]
//	    mask_click: close
//	  town:
//	    roles: [main, loadable]
//	    loading: {type: fade, title: Town}
//	behaviors:
//	  confirm: scripts/confirm.star
//
// CUE files are unified with a built-in schema (see SchemaRegistry) before
// decoding; every entry is then checked with go-playground/validator. Entry
// paths default to path_format applied to the entry name. Unknown paths are
// reported with close matches.
//
// Catalog.Watch reloads the catalog when files change.
//
// # Behaviors
//
// A behavior script is Starlark defining any of on_create, on_show, on_shown,
// on_hide, on_hidden, on_close, on_closed, on_loading and auto_close. Scripts
// may call submit, set_input_scheme, input_scheme and log. Each invocation is
// bounded by a timeout and a step limit.
package config
