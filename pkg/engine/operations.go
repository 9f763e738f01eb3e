package engine

import (
	"context"
)

// Show queues showing the panel at path.
func (s *System) Show(path string, useAnimation bool, userData any) *OperationHandle {
	return s.Submit(Operation{Type: OperationShow, Path: path, UseAnimation: useAnimation, UserData: userData})
}

// Hide queues hiding the panel at path.
func (s *System) Hide(path string, useAnimation bool) *OperationHandle {
	return s.Submit(Operation{Type: OperationHide, Path: path, UseAnimation: useAnimation})
}

// HidePanel queues hiding a specific instance.
func (s *System) HidePanel(p *Panel, useAnimation bool) *OperationHandle {
	return s.Submit(Operation{Type: OperationHide, Panel: p, UseAnimation: useAnimation})
}

// Close queues closing the panel at path.
func (s *System) Close(path string, useAnimation bool) *OperationHandle {
	return s.Submit(Operation{Type: OperationClose, Path: path, UseAnimation: useAnimation})
}

// ClosePanel queues closing a specific instance.
func (s *System) ClosePanel(p *Panel, useAnimation bool) *OperationHandle {
	return s.Submit(Operation{Type: OperationClose, Panel: p, UseAnimation: useAnimation})
}

// Toggle queues showing the panel at path if hidden or missing, hiding it otherwise.
func (s *System) Toggle(path string, useAnimation bool, userData any) *OperationHandle {
	return s.Submit(Operation{Type: OperationToggle, Path: path, UseAnimation: useAnimation, UserData: userData})
}

// Destroy queues tearing down the panel at path. Persistent panels survive unless force is set.
func (s *System) Destroy(path string, force bool) *OperationHandle {
	return s.Submit(Operation{Type: OperationDestroy, Path: path, Force: force})
}

// DestroyPanel queues tearing down a specific instance.
func (s *System) DestroyPanel(p *Panel, force bool) *OperationHandle {
	return s.Submit(Operation{Type: OperationDestroy, Panel: p, Force: force})
}

// DestroyAll queues tearing down every live panel. Persistent panels survive unless force is set.
func (s *System) DestroyAll(force bool) *OperationHandle {
	return s.Submit(Operation{Type: OperationDestroyAll, Force: force})
}

// LoadPersistent queues instantiating the panel at path hidden and marking it persistent.
func (s *System) LoadPersistent(path string) *OperationHandle {
	return s.Submit(Operation{Type: OperationLoadPersistent, Path: path})
}

// SetPersistent queues adding or removing the panel at path from the persistence set.
func (s *System) SetPersistent(path string, persistent bool) *OperationHandle {
	return s.Submit(Operation{Type: OperationSetPersistent, Path: path, Force: persistent})
}

// SetPanelPersistent queues adding or removing a specific instance from the persistence set.
func (s *System) SetPanelPersistent(p *Panel, persistent bool) *OperationHandle {
	return s.Submit(Operation{Type: OperationSetPersistent, Panel: p, Force: persistent})
}

// Refresh queues a resolver pass.
func (s *System) Refresh() *OperationHandle {
	return s.Submit(Operation{Type: OperationRefresh})
}

// AutoCloseTopPop queues the ESC/back policy of the topmost visible pop panel.
func (s *System) AutoCloseTopPop(useAnimation bool) *OperationHandle {
	return s.Submit(Operation{Type: OperationAutoCloseTop, UseAnimation: useAnimation})
}

// MaskClick queues the mask-click policy of the current mask target.
func (s *System) MaskClick() *OperationHandle {
	return s.Submit(Operation{Type: OperationMaskClick})
}

// HandleRequest translates a request event into a queued operation.
// It returns nil for events that are not requests.
func (s *System) HandleRequest(e *Event) *OperationHandle {
	opType, ok := requestOperations[e.Type]
	if !ok {
		return nil
	}
	op := Operation{Type: opType, Path: e.Path, UseAnimation: true}
	if v, ok := e.Details["use_animation"].(bool); ok {
		op.UseAnimation = v
	}
	if v, ok := e.Details["force"].(bool); ok {
		op.Force = v
	}
	if v, ok := e.Details["persistent"].(bool); ok {
		op.Force = v
	}
	if v, ok := e.Details["user_data"]; ok {
		op.UserData = v
	}
	s.logger.Debug().Str("event_type", string(e.Type)).Str("path", e.Path).Msg("Request event received")
	return s.Submit(op)
}

// target resolves the panel an operation refers to. Operations naming a
// destroyed instance are stale and resolve to nil.
func (s *System) target(op Operation) *Panel {
	if op.Panel != nil {
		if op.Panel.destroyed || op.Panel.sys != s {
			s.logger.Debug().Err(NewStaleReferenceError(op.Panel.Path()).WithOperation(string(op.Type))).Msg("Ignoring stale panel")
			return nil
		}
		return op.Panel
	}
	return s.registry.find(op.Path)
}

// resolveOrInstantiate returns the live panel for path, creating it when missing.
func (s *System) resolveOrInstantiate(path string) *Panel {
	if p := s.registry.find(path); p != nil {
		return p
	}
	tmpl, err := s.registry.template(path)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Cannot instantiate panel")
		return nil
	}
	return s.instantiate(tmpl)
}

// autoClose applies p's policy for reason.
func (s *System) autoClose(ctx context.Context, p *Panel, reason AutoCloseReason, useAnimation bool) {
	action := p.autoCloseAction(reason)
	s.logger.Debug().
		Str("path", p.Path()).
		Str("reason", string(reason)).
		Str("action", string(action)).
		Msg("Auto-closing panel")
	switch action {
	case AutoCloseHide:
		p.hide(ctx, useAnimation, false)
	case AutoCloseClose:
		p.close(ctx, useAnimation)
	}
}

func (s *System) opShow(ctx context.Context, op Operation) *Panel {
	tmpl, err := s.templateFor(op)
	if err != nil {
		s.logger.Warn().Err(err).Str("path", op.Path).Msg("Show ignored")
		return nil
	}
	if tmpl.Roles.Has(RoleMainUI) {
		return s.showMain(ctx, tmpl.Path, op.UseAnimation, op.UserData, switchShow)
	}

	if existing := s.registry.find(tmpl.Path); existing != nil && existing.IsVisible() {
		s.autoClose(ctx, existing, ReasonPathSuperseded, false)
	}

	p := s.resolveOrInstantiate(tmpl.Path)
	if p == nil {
		return nil
	}
	s.registry.raise(p)
	s.containerFor(p).Raise(p)
	p.userData = op.UserData
	p.show(ctx, op.UseAnimation)
	return p
}

// templateFor returns the template of the targeted instance or path.
func (s *System) templateFor(op Operation) (*Template, error) {
	if op.Panel != nil {
		if op.Panel.destroyed {
			return nil, NewStaleReferenceError(op.Panel.Path())
		}
		t := op.Panel.tmpl
		return &t, nil
	}
	if p := s.registry.find(op.Path); p != nil {
		t := p.tmpl
		return &t, nil
	}
	return s.registry.template(op.Path)
}

func (s *System) opHide(ctx context.Context, op Operation) *Panel {
	p := s.target(op)
	if p == nil || !p.IsVisible() {
		return p
	}
	p.hide(ctx, op.UseAnimation, false)
	return p
}

func (s *System) opClose(ctx context.Context, op Operation) *Panel {
	p := s.target(op)
	if p == nil {
		return nil
	}
	p.close(ctx, op.UseAnimation)
	return p
}

func (s *System) opToggle(ctx context.Context, op Operation) *Panel {
	p := s.target(op)
	if p != nil && p.IsVisible() && !p.hiding {
		p.hide(ctx, op.UseAnimation, false)
		return p
	}
	show := op
	show.Type = OperationShow
	if p != nil {
		show.Path = p.Path()
	}
	show.Panel = nil
	return s.opShow(ctx, show)
}

func (s *System) opDestroy(ctx context.Context, op Operation) *Panel {
	p := s.target(op)
	if p == nil {
		return nil
	}
	if s.registry.isPersistent(p) && !op.Force {
		s.logger.Debug().Str("path", p.Path()).Msg("Destroy skipped for persistent panel")
		return p
	}
	s.destroyPanel(ctx, p)
	return p
}

// destroyPanel hides p without animation if needed and tears it down.
func (s *System) destroyPanel(ctx context.Context, p *Panel) {
	if p.IsVisible() {
		p.hide(ctx, false, true)
	}
	if !p.close(ctx, false) {
		s.teardown(p)
	}
}

func (s *System) opDestroyAll(ctx context.Context, force bool) {
	if force {
		s.registry.clearPersistent()
	}
	release := s.suppress()
	defer func() {
		release()
		s.resolve()
	}()

	destroyed := 0
	for _, p := range s.registry.snapshot() {
		if p.destroyed || s.registry.isPersistent(p) {
			continue
		}
		s.destroyPanel(ctx, p)
		destroyed++
	}
	if force {
		s.main.history = nil
	}
	s.logger.Info().Int("destroyed", destroyed).Bool("force", force).Msg("Destroyed all panels")
}

func (s *System) opLoadPersistent(op Operation) *Panel {
	p := s.resolveOrInstantiate(op.Path)
	if p == nil {
		return nil
	}
	s.registry.setPersistent(p, true)
	return p
}

func (s *System) opSetPersistent(op Operation) *Panel {
	p := s.target(op)
	if p == nil {
		return nil
	}
	s.registry.setPersistent(p, op.Force)
	return p
}

func (s *System) opAutoCloseTop(ctx context.Context, useAnimation bool) *Panel {
	s.refresh()
	for _, p := range s.resolver.order {
		if p.destroyed || p.state != PanelStateShown || !p.HasRole(RolePop) {
			continue
		}
		switch p.tmpl.TopPop {
		case TopPopIgnore:
			continue
		case TopPopNone:
			return nil
		}
		s.autoClose(ctx, p, ReasonPopAutoClose, useAnimation)
		return p
	}
	return nil
}

func (s *System) opMaskClick(ctx context.Context) *Panel {
	if !s.settings.MaskClickable {
		return nil
	}
	p := s.resolver.maskTarget
	if p == nil || p.destroyed {
		return nil
	}
	_, animated := p.tmpl.MaskClick.Action()
	switch p.autoCloseAction(ReasonMaskClick) {
	case AutoCloseHide:
		p.hide(ctx, animated, false)
	case AutoCloseClose:
		p.close(ctx, animated)
	}
	return p
}
