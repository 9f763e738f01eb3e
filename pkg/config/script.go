package config

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/panelflow/panelflow/pkg/engine"
)

const (
	// DefaultScriptTimeout bounds a single hook invocation.
	DefaultScriptTimeout = 2 * time.Second

	// DefaultScriptMaxSteps bounds the Starlark steps of a single hook invocation.
	DefaultScriptMaxSteps = 1_000_000
)

// Thread-local keys.
const (
	localSystem      = "panelflow.system"
	localPanel       = "panelflow.panel"
	localOwner       = "panelflow.owner"
	localCooperative = "panelflow.cooperative"
)

// hookFunctions are the global functions a behavior script may define.
var hookFunctions = []string{
	"on_create", "on_show", "on_shown", "on_hide", "on_hidden",
	"on_close", "on_closed", "on_loading", "auto_close",
}

// Script is a compiled Starlark behavior. A script defines any of the hook
// functions; each receives the panel as a struct with path, id, layer, state,
// roles, showing, focused and user_data fields.
//
//	def on_shown(panel):
//	    set_input_scheme("Dialog")
//
//	def on_loading(panel, loading):
//	    loading.set_text("Loading " + panel.path)
//	    loading.set_progress(1.0)
//
//	def auto_close(panel, reason):
//	    return "hide" if reason == "mask_click" else None
type Script struct {
	name     string
	file     string
	globals  starlark.StringDict
	timeout  time.Duration
	maxSteps uint64
	logger   zerolog.Logger
}

// ScriptOption configures a Script.
type ScriptOption func(*Script)

// WithScriptTimeout sets the per-invocation timeout.
func WithScriptTimeout(d time.Duration) ScriptOption {
	return func(s *Script) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithScriptMaxSteps sets the per-invocation step limit.
func WithScriptMaxSteps(n uint64) ScriptOption {
	return func(s *Script) { s.maxSteps = n }
}

// WithScriptLogger sets the logger receiving log() and print() output.
func WithScriptLogger(l zerolog.Logger) ScriptOption {
	return func(s *Script) { s.logger = l }
}

// CompileScript executes src as the behavior named name and freezes its globals.
func CompileScript(name, file string, src []byte, opts ...ScriptOption) (*Script, error) {
	s := &Script{
		name:     name,
		file:     file,
		timeout:  DefaultScriptTimeout,
		maxSteps: DefaultScriptMaxSteps,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("behavior", name).Logger()

	thread := s.newThread(nil, nil, nil, false)
	globals, err := starlark.ExecFile(thread, file, src, s.predeclared())
	if err != nil {
		return nil, fmt.Errorf("behavior %s: starlark execution failed: %w", name, err)
	}
	globals.Freeze()

	for _, fn := range hookFunctions {
		if v, ok := globals[fn]; ok {
			if _, callable := v.(starlark.Callable); !callable {
				return nil, fmt.Errorf("behavior %s: %s must be a function, got %s", name, fn, v.Type())
			}
		}
	}
	s.globals = globals
	return s, nil
}

// LoadScripts compiles every behavior script. behaviors maps names to files,
// as returned by Catalog.Behaviors.
func LoadScripts(behaviors map[string]string, opts ...ScriptOption) (map[string]*Script, error) {
	names := make([]string, 0, len(behaviors))
	for name := range behaviors {
		names = append(names, name)
	}
	sort.Strings(names)

	scripts := make(map[string]*Script, len(behaviors))
	for _, name := range names {
		file := behaviors[name]
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("behavior %s: failed to read %s: %w", name, file, err)
		}
		s, err := CompileScript(name, file, src, opts...)
		if err != nil {
			return nil, err
		}
		scripts[name] = s
	}
	return scripts, nil
}

// Name returns the behavior name.
func (s *Script) Name() string { return s.name }

// Defines reports whether the script defines the hook function fn.
func (s *Script) Defines(fn string) bool {
	_, ok := s.globals[fn]
	return ok
}

// Factory returns a behavior factory whose hooks run this script against sys.
func (s *Script) Factory(sys *engine.System) engine.BehaviorFactory {
	return func() engine.Hooks {
		return &scriptHooks{script: s, sys: sys}
	}
}

func (s *Script) predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct":           starlark.NewBuiltin("struct", starlarkstruct.Make),
		"submit":           starlark.NewBuiltin("submit", builtinSubmit),
		"set_input_scheme": starlark.NewBuiltin("set_input_scheme", builtinSetInputScheme),
		"input_scheme":     starlark.NewBuiltin("input_scheme", builtinInputScheme),
		"log":              starlark.NewBuiltin("log", s.builtinLog),
	}
}

func (s *Script) newThread(sys *engine.System, p *engine.Panel, owner any, cooperative bool) *starlark.Thread {
	thread := &starlark.Thread{
		Name: "panelflow:" + s.name,
		Print: func(_ *starlark.Thread, msg string) {
			s.logger.Debug().Msg(msg)
		},
	}
	thread.SetMaxExecutionSteps(s.maxSteps)
	thread.SetLocal(localSystem, sys)
	thread.SetLocal(localPanel, p)
	thread.SetLocal(localOwner, owner)
	thread.SetLocal(localCooperative, cooperative)
	return thread
}

// call invokes fn if the script defines it. A missing function returns (nil, nil).
func (s *Script) call(fn string, thread *starlark.Thread, args ...starlark.Value) (starlark.Value, error) {
	v, ok := s.globals[fn]
	if !ok {
		return nil, nil
	}

	timer := time.AfterFunc(s.timeout, func() {
		thread.Cancel(fmt.Sprintf("execution timeout after %v", s.timeout))
	})
	defer timer.Stop()

	res, err := starlark.Call(thread, v, args, nil)
	if err != nil {
		return nil, fmt.Errorf("behavior %s: %s failed: %w", s.name, fn, err)
	}
	return res, nil
}

// scriptHooks adapts a Script to the engine hook interfaces.
type scriptHooks struct {
	script *Script
	sys    *engine.System
}

// hook runs a cooperative lifecycle hook. Errors panic so the engine reports
// them as callback failures.
func (h *scriptHooks) hook(fn string, p *engine.Panel) {
	thread := h.script.newThread(h.sys, p, h, true)
	if _, err := h.script.call(fn, thread, panelValue(p)); err != nil {
		panic(err)
	}
}

func (h *scriptHooks) OnCreate(p *engine.Panel) { h.hook("on_create", p) }
func (h *scriptHooks) OnShow(p *engine.Panel)   { h.hook("on_show", p) }
func (h *scriptHooks) OnShown(p *engine.Panel)  { h.hook("on_shown", p) }
func (h *scriptHooks) OnHide(p *engine.Panel)   { h.hook("on_hide", p) }
func (h *scriptHooks) OnHidden(p *engine.Panel) { h.hook("on_hidden", p) }
func (h *scriptHooks) OnClose(p *engine.Panel)  { h.hook("on_close", p) }

func (h *scriptHooks) OnClosed(p *engine.Panel) {
	defer h.sys.SetInputScheme(h, "")
	h.hook("on_closed", p)
}

// OnLoading runs outside the cooperative context, so set_input_scheme is unavailable.
func (h *scriptHooks) OnLoading(ctx context.Context, p *engine.Panel, ctrl engine.LoadingController) error {
	if !h.script.Defines("on_loading") {
		return nil
	}
	thread := h.script.newThread(h.sys, p, h, false)

	stop := context.AfterFunc(ctx, func() { thread.Cancel(ctx.Err().Error()) })
	defer stop()

	_, err := h.script.call("on_loading", thread, panelValue(p), loadingValue(ctrl))
	return err
}

// AutoCloseAction returns the script's decision; None defers to the template.
func (h *scriptHooks) AutoCloseAction(p *engine.Panel, reason engine.AutoCloseReason) engine.AutoCloseAction {
	thread := h.script.newThread(h.sys, p, h, true)
	res, err := h.script.call("auto_close", thread, panelValue(p), starlark.String(reason))
	if err != nil {
		panic(err)
	}
	s, ok := res.(starlark.String)
	if !ok {
		return ""
	}
	action := engine.AutoCloseAction(s)
	switch action {
	case engine.AutoCloseNone, engine.AutoCloseHide, engine.AutoCloseClose:
		return action
	}
	panic(fmt.Errorf("behavior %s: auto_close returned unknown action %q", h.script.name, string(s)))
}

func panelValue(p *engine.Panel) starlark.Value {
	if p == nil {
		return starlark.None
	}

	roles := make([]starlark.Value, 0, 4)
	for _, r := range []engine.Role{engine.RoleMainUI, engine.RoleLoadable, engine.RoleFocusable, engine.RolePop} {
		if p.HasRole(r) {
			roles = append(roles, starlark.String(r.String()))
		}
	}

	userData, err := toStarlarkValue(p.UserData())
	if err != nil {
		userData = starlark.None
	}

	return starlarkstruct.FromStringDict(starlark.String("panel"), starlark.StringDict{
		"path":      starlark.String(p.Path()),
		"id":        starlark.MakeUint64(p.ID()),
		"layer":     starlark.MakeInt(p.Layer()),
		"state":     starlark.String(p.State()),
		"roles":     starlark.NewList(roles),
		"showing":   starlark.Bool(p.IsShowing()),
		"focused":   starlark.Bool(p.IsFocused()),
		"user_data": userData,
	})
}

func loadingValue(ctrl engine.LoadingController) starlark.Value {
	if ctrl == nil {
		return starlark.None
	}
	return starlarkstruct.FromStringDict(starlark.String("loading"), starlark.StringDict{
		"set_progress": starlark.NewBuiltin("set_progress", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var f starlark.Value
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &f); err != nil {
				return nil, err
			}
			fraction, ok := starlark.AsFloat(f)
			if !ok {
				return nil, fmt.Errorf("%s: want number, got %s", b.Name(), f.Type())
			}
			ctrl.SetProgress(fraction)
			return starlark.None, nil
		}),
		"set_text": starlark.NewBuiltin("set_text", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var text string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &text); err != nil {
				return nil, err
			}
			ctrl.SetText(text)
			return starlark.None, nil
		}),
		"set_title": starlark.NewBuiltin("set_title", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var title string
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &title); err != nil {
				return nil, err
			}
			ctrl.SetTitle(title)
			return starlark.None, nil
		}),
	})
}

func threadSystem(thread *starlark.Thread, name string) (*engine.System, error) {
	sys, _ := thread.Local(localSystem).(*engine.System)
	if sys == nil {
		return nil, fmt.Errorf("%s: only available inside a hook", name)
	}
	return sys, nil
}

// builtinSubmit implements submit(op, path="", anim=True, force=False, user_data=None).
// An empty path targets the calling panel. It returns the operation ID as an int.
func builtinSubmit(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sys, err := threadSystem(thread, b.Name())
	if err != nil {
		return nil, err
	}

	var (
		opType   string
		path     string
		anim     = true
		force    bool
		userData starlark.Value = starlark.None
	)
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"op", &opType, "path?", &path, "anim?", &anim, "force?", &force, "user_data?", &userData); err != nil {
		return nil, err
	}

	op := engine.Operation{
		Type:         engine.OperationType(opType),
		Path:         path,
		UseAnimation: anim,
		Force:        force,
	}
	if err := op.Type.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if path == "" {
		if p, _ := thread.Local(localPanel).(*engine.Panel); p != nil {
			op.Panel = p
		}
	}
	if userData != starlark.None {
		data, err := fromStarlarkValue(userData)
		if err != nil {
			return nil, fmt.Errorf("%s: user_data: %w", b.Name(), err)
		}
		op.UserData = data
	}

	return starlark.MakeUint64(sys.Submit(op).ID()), nil
}

// builtinSetInputScheme implements set_input_scheme(scheme). An empty scheme
// withdraws the calling behavior's request.
func builtinSetInputScheme(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sys, err := threadSystem(thread, b.Name())
	if err != nil {
		return nil, err
	}
	if cooperative, _ := thread.Local(localCooperative).(bool); !cooperative {
		return nil, fmt.Errorf("%s: not available during loading", b.Name())
	}

	var scheme string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &scheme); err != nil {
		return nil, err
	}
	sys.SetInputScheme(thread.Local(localOwner), scheme)
	return starlark.None, nil
}

// builtinInputScheme implements input_scheme(), returning the effective scheme.
func builtinInputScheme(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sys, err := threadSystem(thread, b.Name())
	if err != nil {
		return nil, err
	}
	if cooperative, _ := thread.Local(localCooperative).(bool); !cooperative {
		return nil, fmt.Errorf("%s: not available during loading", b.Name())
	}
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.String(sys.InputScheme()), nil
}

func (s *Script) builtinLog(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &msg); err != nil {
		return nil, err
	}
	event := s.logger.Info()
	if p, _ := thread.Local(localPanel).(*engine.Panel); p != nil {
		event = event.Str("path", p.Path()).Uint64("panel_id", p.ID())
	}
	event.Msg(msg)
	return starlark.None, nil
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case uint64:
		return starlark.MakeUint64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			starlarkItem, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = starlarkItem
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			starlarkVal, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), starlarkVal); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{})
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
