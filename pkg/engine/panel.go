package engine

import (
	"context"
)

// Panel is a live panel instance.
//
// All fields are owned by the cooperative context of its System: read them
// from lifecycle hooks, from inside System.Inspect, or after the operation
// handle that produced the panel has completed while the queue is idle.
type Panel struct {
	sys  *System
	tmpl Template
	id   uint64

	state   PanelState
	showing bool
	hiding  bool

	// generation is bumped by every transition; a transition commits only
	// while its captured generation is current.
	generation uint64
	cancel     context.CancelFunc

	order     uint64
	userData  any
	hooks     Hooks
	views     []View
	focused   bool
	destroyed bool
}

// ID returns the instance ID. IDs are never reused.
func (p *Panel) ID() uint64 { return p.id }

// Path returns the panel path.
func (p *Panel) Path() string { return p.tmpl.Path }

// Layer returns the stacking layer.
func (p *Panel) Layer() int { return p.tmpl.Layer }

// Roles returns the capability flags.
func (p *Panel) Roles() Role { return p.tmpl.Roles }

// HasRole reports whether the panel carries role.
func (p *Panel) HasRole(role Role) bool { return p.tmpl.Roles.Has(role) }

// Template returns a copy of the template the panel was created from.
func (p *Panel) Template() Template { return p.tmpl }

// State returns the committed lifecycle state.
func (p *Panel) State() PanelState { return p.state }

// IsShowing reports an in-flight show transition.
func (p *Panel) IsShowing() bool { return p.showing }

// IsHiding reports an in-flight hide transition.
func (p *Panel) IsHiding() bool { return p.hiding }

// IsVisible reports whether the panel is shown or in the middle of being shown.
func (p *Panel) IsVisible() bool {
	return p.state == PanelStateShown || (p.state == PanelStateHidden && p.showing)
}

// IsFocused reports whether the panel holds input focus.
func (p *Panel) IsFocused() bool { return p.focused }

// IsDestroyed reports whether the panel has been torn down.
func (p *Panel) IsDestroyed() bool { return p.destroyed }

// Generation returns the transition generation counter.
func (p *Panel) Generation() uint64 { return p.generation }

// UserData returns the data assigned by the last Show.
func (p *Panel) UserData() any { return p.userData }

// SetUserData replaces the panel's user data.
func (p *Panel) SetUserData(data any) { p.userData = data }

// Hooks returns the behavior attached to the panel.
func (p *Panel) Hooks() Hooks { return p.hooks }

// System returns the owning system.
func (p *Panel) System() *System { return p.sys }

// AddView registers a child view mirroring the panel's lifecycle callbacks.
func (p *Panel) AddView(v View) {
	p.views = append(p.views, v)
}

// RemoveView unregisters a child view.
func (p *Panel) RemoveView(v View) {
	for i, existing := range p.views {
		if existing == v {
			p.views = append(p.views[:i], p.views[i+1:]...)
			return
		}
	}
}

// Show runs the show transition immediately, bypassing the operation queue.
// It interleaves with queued operations only at their suspension points.
func (p *Panel) Show(ctx context.Context, useAnimation bool) error {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	if p.destroyed {
		return NewStaleReferenceError(p.Path()).WithOperation("show")
	}
	p.show(ctx, useAnimation)
	return nil
}

// Hide runs the hide transition immediately, bypassing the operation queue.
func (p *Panel) Hide(ctx context.Context, useAnimation bool) error {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	if p.destroyed {
		return NewStaleReferenceError(p.Path()).WithOperation("hide")
	}
	p.hide(ctx, useAnimation, false)
	return nil
}

// Close runs the close transition immediately, bypassing the operation queue.
func (p *Panel) Close(ctx context.Context, useAnimation bool) error {
	p.sys.mu.Lock()
	defer p.sys.mu.Unlock()
	if p.destroyed {
		return NewStaleReferenceError(p.Path()).WithOperation("close")
	}
	p.close(ctx, useAnimation)
	return nil
}

// beginTransition invalidates any in-flight transition and returns the new generation.
func (p *Panel) beginTransition() uint64 {
	p.generation++
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.showing = false
	p.hiding = false
	return p.generation
}

func (p *Panel) current(gen uint64) bool {
	return p.generation == gen && !p.destroyed
}

func (p *Panel) show(ctx context.Context, useAnimation bool) bool {
	switch {
	case p.destroyed || p.state == PanelStateClosed:
		return false
	case p.state == PanelStateShown && p.hiding:
		// A show request reverses an in-flight hide; the panel never left Shown.
		p.beginTransition()
		p.sys.containerFor(p).SetActive(p, true)
		p.sys.refresh()
		return true
	case p.state != PanelStateHidden || p.showing:
		return false
	}

	gen := p.beginTransition()
	p.showing = true
	p.sys.containerFor(p).SetActive(p, true)
	p.invoke("OnShow", Lifecycle.OnShow)
	p.sys.refresh()

	if useAnimation && !p.await(ctx, gen, "show", p.sys.playShow) {
		return false
	}
	if !p.current(gen) {
		return false
	}

	p.showing = false
	p.setState(PanelStateShown)
	p.invoke("OnShown", Lifecycle.OnShown)
	p.sys.publishPanel(EventPanelShown, p, nil)
	p.sys.refresh()
	return true
}

// hide runs the hide phase. When restart is false an in-flight hide is left alone.
func (p *Panel) hide(ctx context.Context, useAnimation, restart bool) bool {
	if p.destroyed || p.state == PanelStateClosed || !p.IsVisible() {
		return false
	}
	if p.hiding && !restart {
		return false
	}

	gen := p.beginTransition()
	p.hiding = true
	p.invoke("OnHide", Lifecycle.OnHide)

	if useAnimation && !p.await(ctx, gen, "hide", p.sys.playHide) {
		return false
	}
	if !p.current(gen) {
		return false
	}

	p.hiding = false
	p.sys.containerFor(p).SetActive(p, false)
	p.setState(PanelStateHidden)
	p.invoke("OnHidden", Lifecycle.OnHidden)
	p.sys.publishPanel(EventPanelHidden, p, nil)
	p.sys.refresh()
	return true
}

func (p *Panel) close(ctx context.Context, useAnimation bool) bool {
	if p.destroyed || p.state == PanelStateClosed {
		return false
	}
	if p.IsVisible() && !p.hide(ctx, useAnimation, true) {
		return false
	}

	gen := p.beginTransition()
	p.invoke("OnClose", Lifecycle.OnClose)
	if !p.current(gen) {
		return false
	}

	p.setState(PanelStateClosed)
	p.sys.publishPanel(EventPanelClosed, p, nil)
	p.sys.teardown(p)
	p.invoke("OnClosed", Lifecycle.OnClosed)
	return true
}

// await releases the cooperative lock for the duration of an animation and
// reports whether the transition is still current once it resumes.
func (p *Panel) await(ctx context.Context, gen uint64, phase string, play func(context.Context, *Panel) error) bool {
	s := p.sys
	actx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	details := map[string]interface{}{"phase": phase, "block_input": p.blocksInput()}
	s.publishPanel(EventAnimationStarted, p, details)

	err := s.suspend(func() error { return play(actx, p) })
	cancel()

	stale := !p.current(gen)
	if !stale {
		p.cancel = nil
	}
	if err != nil && !stale {
		s.callbackFailed(p.Path(), "animator."+phase, err)
	}

	finished := map[string]interface{}{"phase": phase, "block_input": p.blocksInput(), "superseded": stale}
	s.publishPanel(EventAnimationFinished, p, finished)
	return !stale
}

func (p *Panel) invoke(hook string, fn func(Lifecycle, *Panel)) {
	p.sys.safeCall(p.Path(), hook, func() { fn(p.hooks, p) })
	views := append([]View(nil), p.views...)
	for _, v := range views {
		v := v
		p.sys.safeCall(p.Path(), "view."+hook, func() { fn(v, p) })
	}
}

func (p *Panel) setState(next PanelState) {
	prev := p.state
	if prev == next {
		return
	}
	p.state = next
	p.sys.publishPanel(EventPanelStateChanged, p, map[string]interface{}{
		"from": string(prev),
		"to":   string(next),
	})
}

func (p *Panel) blocksInput() bool {
	if p.tmpl.BlockInput != nil {
		return *p.tmpl.BlockInput
	}
	return p.sys.settings.BlockInputDuringAnimation
}

// inputScheme returns the scheme requested while the panel holds focus.
func (p *Panel) inputScheme() string {
	if p.tmpl.InputScheme != "" {
		return p.tmpl.InputScheme
	}
	if p.HasRole(RolePop) {
		return p.sys.settings.PopInputScheme
	}
	return ""
}

func (p *Panel) autoCloseAction(reason AutoCloseReason) AutoCloseAction {
	if ac, ok := p.hooks.(AutoCloser); ok {
		var action AutoCloseAction
		p.sys.safeCall(p.Path(), "AutoCloseAction", func() { action = ac.AutoCloseAction(p, reason) })
		if action != "" {
			return action
		}
	}
	if action, ok := p.tmpl.AutoClose[reason]; ok {
		return action
	}
	switch reason {
	case ReasonMainUISwitch:
		return p.tmpl.MainChange.Action()
	case ReasonMaskClick:
		action, _ := p.tmpl.MaskClick.Action()
		return action
	case ReasonPopAutoClose:
		switch p.tmpl.TopPop {
		case TopPopClose:
			return AutoCloseClose
		case TopPopNone, TopPopIgnore:
			return AutoCloseNone
		default:
			return AutoCloseHide
		}
	default:
		return AutoCloseClose
	}
}
