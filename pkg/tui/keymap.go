package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/panelflow/panelflow/pkg/engine"
)

// Action is what a key press does.
type Action string

const (
	ActionQuit       Action = "quit"
	ActionToggle     Action = "toggle"
	ActionSwitchMain Action = "switch_main"
	ActionGoBackMain Action = "go_back_main"
	ActionAutoClose  Action = "auto_close_top"
	ActionMaskClick  Action = "mask_click"
	ActionRefresh    Action = "refresh"
	ActionDestroyAll Action = "destroy_all"
)

// ScopeGlobal bindings apply under every input scheme.
const ScopeGlobal = "global"

// Binding maps keys in one or more scopes to an action. Scopes are input
// scheme names or ScopeGlobal.
type Binding struct {
	Action Action
	Keys   []string
	Help   string
	Path   string
	Scopes []string
}

// Operation returns the engine operation for the binding, or false for
// actions handled by the UI itself.
func (b Binding) Operation(useAnimation bool) (engine.Operation, bool) {
	op := engine.Operation{Path: b.Path, UseAnimation: useAnimation}
	switch b.Action {
	case ActionToggle:
		op.Type = engine.OperationToggle
	case ActionSwitchMain:
		op.Type = engine.OperationSwitchMain
	case ActionGoBackMain:
		op.Type = engine.OperationGoBackMain
	case ActionAutoClose:
		op.Type = engine.OperationAutoCloseTop
	case ActionMaskClick:
		op.Type = engine.OperationMaskClick
	case ActionRefresh:
		op.Type = engine.OperationRefresh
	case ActionDestroyAll:
		op.Type = engine.OperationDestroyAll
	default:
		return engine.Operation{}, false
	}
	return op, true
}

// KeyMap indexes bindings by scope and key.
type KeyMap struct {
	bindingsByScope map[string][]*Binding
	indexByScope    map[string]map[string]*Binding
}

// NewKeyMap creates an empty key map.
func NewKeyMap() *KeyMap {
	return &KeyMap{
		bindingsByScope: make(map[string][]*Binding),
		indexByScope:    make(map[string]map[string]*Binding),
	}
}

// DefaultKeyMap binds the stock keys for a catalog. Number keys toggle the
// first nine non-main panels and function keys switch to the first nine main
// screens, both under the default scheme. ESC and the mask key are global.
func DefaultKeyMap(settings engine.Settings, templates []engine.Template) *KeyMap {
	km := NewKeyMap()

	km.Register(Binding{Action: ActionQuit, Keys: []string{"ctrl+c"}, Help: "quit", Scopes: []string{ScopeGlobal}})
	km.Register(Binding{Action: ActionAutoClose, Keys: []string{"esc"}, Help: "back", Scopes: []string{ScopeGlobal}})
	km.Register(Binding{Action: ActionMaskClick, Keys: []string{"m"}, Help: "click mask", Scopes: []string{ScopeGlobal}})
	km.Register(Binding{Action: ActionQuit, Keys: []string{"q"}, Help: "quit", Scopes: []string{settings.DefaultInputScheme}})
	km.Register(Binding{Action: ActionGoBackMain, Keys: []string{"backspace"}, Help: "previous main", Scopes: []string{settings.DefaultInputScheme}})
	km.Register(Binding{Action: ActionRefresh, Keys: []string{"r"}, Help: "refresh", Scopes: []string{settings.DefaultInputScheme}})
	km.Register(Binding{Action: ActionDestroyAll, Keys: []string{"X"}, Help: "destroy all", Scopes: []string{settings.DefaultInputScheme}})

	sorted := append([]engine.Template(nil), templates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var panels, mains int
	for _, t := range sorted {
		if t.Roles.Has(engine.RoleMainUI) {
			if mains < 9 {
				mains++
				km.Register(Binding{
					Action: ActionSwitchMain,
					Keys:   []string{fmt.Sprintf("f%d", mains)},
					Help:   t.Path,
					Path:   t.Path,
					Scopes: []string{settings.DefaultInputScheme},
				})
			}
			continue
		}
		if panels < 9 {
			panels++
			km.Register(Binding{
				Action: ActionToggle,
				Keys:   []string{fmt.Sprintf("%d", panels)},
				Help:   t.Path,
				Path:   t.Path,
				Scopes: []string{settings.DefaultInputScheme},
			})
		}
	}
	return km
}

// Register adds b to each of its scopes. A binding whose keys are already
// taken in a scope is skipped for that scope.
func (km *KeyMap) Register(b Binding) {
	keys := normalizeKeyList(b.Keys)
	if len(keys) == 0 {
		return
	}
	for _, scope := range b.Scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		index, ok := km.indexByScope[scope]
		if !ok {
			index = make(map[string]*Binding)
			km.indexByScope[scope] = index
		}
		if hasAnyKey(index, keys) {
			continue
		}

		copyBinding := b
		copyBinding.Keys = keys
		copyBinding.Scopes = []string{scope}
		km.bindingsByScope[scope] = append(km.bindingsByScope[scope], &copyBinding)
		for _, k := range keys {
			index[k] = &copyBinding
		}
	}
}

// Lookup finds the binding for key under scheme, falling back to the global scope.
func (km *KeyMap) Lookup(key, scheme string) *Binding {
	key = normalizeKeyName(key)
	if key == "" {
		return nil
	}
	if b := km.indexByScope[scheme][key]; b != nil {
		return b
	}
	return km.indexByScope[ScopeGlobal][key]
}

// Bindings returns the bindings live under scheme, scheme-specific first.
func (km *KeyMap) Bindings(scheme string) []Binding {
	var out []Binding
	for _, b := range km.bindingsByScope[scheme] {
		out = append(out, *b)
	}
	if scheme == ScopeGlobal {
		return out
	}
	for _, b := range km.bindingsByScope[ScopeGlobal] {
		shadowed := false
		for _, k := range b.Keys {
			if _, ok := km.indexByScope[scheme][k]; ok {
				shadowed = true
				break
			}
		}
		if !shadowed {
			out = append(out, *b)
		}
	}
	return out
}

func hasAnyKey(index map[string]*Binding, keys []string) bool {
	for _, k := range keys {
		if _, ok := index[k]; ok {
			return true
		}
	}
	return false
}

func normalizeKeyList(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool)
	for _, k := range keys {
		n := normalizeKeyName(k)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// normalizeKeyName lowercases named keys but keeps single characters as typed,
// so "X" and "x" stay distinct.
func normalizeKeyName(k string) string {
	if k == " " {
		return "space"
	}
	k = strings.TrimSpace(k)
	if len(k) <= 1 {
		return k
	}
	return strings.ToLower(k)
}
