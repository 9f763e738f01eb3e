package engine

import (
	"context"
)

// mainState tracks the exclusive main-screen slot.
type mainState struct {
	current *Panel
	history []string
}

type switchMode int

const (
	// switchShow applies each displaced panel's policy and records history.
	switchShow switchMode = iota
	// switchReplace always closes the previous main and clears history.
	switchReplace
	// switchBack applies policies without recording history.
	switchBack
)

func (m switchMode) String() string {
	switch m {
	case switchReplace:
		return "switch"
	case switchBack:
		return "back"
	default:
		return "show"
	}
}

// ShowMainUI queues a main-screen switch to path. The previous main reacts
// according to its own policy and is remembered for GoBackMainUI.
func (s *System) ShowMainUI(path string, useAnimation bool, userData any) *OperationHandle {
	return s.Submit(Operation{Type: OperationShowMain, Path: path, UseAnimation: useAnimation, UserData: userData})
}

// SwitchMainUI queues a main-screen switch that always closes the previous main and clears history.
func (s *System) SwitchMainUI(path string, useAnimation bool, userData any) *OperationHandle {
	return s.Submit(Operation{Type: OperationSwitchMain, Path: path, UseAnimation: useAnimation, UserData: userData})
}

// GoBackMainUI queues a switch back to the previous main screen. It is a no-op when history is empty.
func (s *System) GoBackMainUI(useAnimation bool) *OperationHandle {
	return s.Submit(Operation{Type: OperationGoBackMain, UseAnimation: useAnimation})
}

// CurrentMain returns the current main panel, or nil.
// It must be called from the cooperative context.
func (s *System) CurrentMain() *Panel { return s.main.current }

// MainHistory returns the main-screen history, most recent last.
// It must be called from the cooperative context.
func (s *System) MainHistory() []string { return append([]string(nil), s.main.history...) }

// ClearMainHistory drops the main-screen history.
// It must be called from the cooperative context.
func (s *System) ClearMainHistory() { s.main.history = nil }

// showMain runs the main-screen switch protocol. It is called with the cooperative lock held.
func (s *System) showMain(ctx context.Context, path string, useAnimation bool, userData any, mode switchMode) *Panel {
	tmpl, err := s.mainTemplate(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Str("mode", mode.String()).Msg("Main screen switch rejected")
		return nil
	}

	var ctrl LoadingController
	loading := false
	if s.loading != nil && tmpl.Roles.Has(RoleLoadable) && tmpl.Loading != nil {
		cfg := *tmpl.Loading
		err := s.suspend(func() error {
			var err error
			ctrl, err = s.loading.ShowLoading(ctx, cfg)
			return err
		})
		if err != nil {
			s.callbackFailed(path, "ShowLoading", err)
		} else {
			loading = ctrl != nil
		}
	}

	prev := s.main.current
	if prev != nil && prev.destroyed {
		prev = nil
	}

	target := s.switchMain(ctx, tmpl, prev, useAnimation, userData, mode)

	prevPath, curPath := "", ""
	if prev != nil {
		prevPath = prev.Path()
	}
	if target != nil {
		curPath = target.Path()
	}
	s.publishPanel(EventMainChanged, target, map[string]interface{}{
		"previous": prevPath,
		"current":  curPath,
		"mode":     mode.String(),
	})
	for _, o := range s.observers {
		o.MainChanged(prevPath, curPath)
	}
	s.logger.Info().
		Str("previous", prevPath).
		Str("current", curPath).
		Str("mode", mode.String()).
		Int("history", len(s.main.history)).
		Msg("Main screen changed")

	if loading {
		if target != nil && !target.destroyed {
			if hook, ok := target.hooks.(LoadingHook); ok {
				if err := s.suspend(func() error { return hook.OnLoading(ctx, target, ctrl) }); err != nil {
					s.callbackFailed(path, "OnLoading", err)
				}
			}
		}
		if err := s.suspend(func() error { return s.loading.HideLoading(ctx) }); err != nil {
			s.callbackFailed(path, "HideLoading", err)
		}
	}
	return target
}

// switchMain performs the suppressed batch of the switch and commits the main pointer.
func (s *System) switchMain(ctx context.Context, tmpl *Template, prev *Panel, useAnimation bool, userData any, mode switchMode) (target *Panel) {
	release := s.suppress()
	defer func() {
		release()
		s.resolve()
	}()

	for _, p := range s.registry.snapshot() {
		if p.destroyed || p.HasRole(RoleMainUI) {
			continue
		}
		if s.registry.isPersistent(p) {
			if p.IsVisible() {
				p.hide(ctx, false, true)
			}
			continue
		}
		s.autoClose(ctx, p, ReasonMainUISwitch, false)
	}

	if prev != nil && !prev.destroyed && prev.Path() != tmpl.Path {
		if mode == switchReplace {
			prev.close(ctx, false)
		} else {
			s.autoClose(ctx, prev, ReasonMainUISwitch, false)
		}
	}

	target = s.registry.find(tmpl.Path)
	if target != nil && target.IsVisible() {
		// a visible target is replaced by a fresh instance
		target.close(ctx, false)
		target = nil
	}
	if target == nil {
		target = s.instantiate(tmpl)
	}
	s.registry.raise(target)
	s.containerFor(target).Raise(target)
	target.userData = userData
	target.show(ctx, useAnimation)

	switch mode {
	case switchShow:
		if prev != nil && prev.Path() != tmpl.Path {
			s.main.history = append(s.main.history, prev.Path())
		}
	case switchReplace:
		s.main.history = nil
	}

	if target.destroyed {
		s.main.current = nil
		return nil
	}
	s.main.current = target
	return target
}

// mainTemplate validates that path carries the MainUI role, checking the live instance first.
func (s *System) mainTemplate(path string) (*Template, error) {
	if p := s.registry.find(path); p != nil {
		if !p.HasRole(RoleMainUI) {
			return nil, NewInvalidRoleError(path, RoleMainUI)
		}
		t := p.tmpl
		return &t, nil
	}
	tmpl, err := s.registry.template(path)
	if err != nil {
		return nil, err
	}
	if !tmpl.Roles.Has(RoleMainUI) {
		return nil, NewInvalidRoleError(path, RoleMainUI)
	}
	return tmpl, nil
}

func (s *System) goBackMain(ctx context.Context, useAnimation bool) *Panel {
	n := len(s.main.history)
	if n == 0 {
		s.logger.Debug().Msg("Main screen history is empty")
		return nil
	}
	path := s.main.history[n-1]
	s.main.history = s.main.history[:n-1]
	return s.showMain(ctx, path, useAnimation, nil, switchBack)
}

// suspend releases the cooperative lock while fn runs, converting a panic into an error.
func (s *System) suspend(fn func() error) (err error) {
	s.mu.Unlock()
	defer s.mu.Lock()
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return fn()
}
