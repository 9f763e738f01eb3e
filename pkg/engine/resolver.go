package engine

import (
	"sort"
)

// resolver recomputes panel order, mask placement and focus after state changes.
type resolver struct {
	suppressed int
	passes     uint64

	maskActive bool
	maskTarget *Panel
	maskColor  string
	focus      *Panel
	order      []*Panel
}

// suppress defers resolver passes until the returned release is called.
// Releasing does not run a pass; the batch owner forces exactly one.
func (s *System) suppress() (release func()) {
	s.resolver.suppressed++
	released := false
	return func() {
		if released {
			return
		}
		released = true
		s.resolver.suppressed--
	}
}

// refresh runs a resolver pass unless a batch suppresses it.
func (s *System) refresh() {
	if s.resolver.suppressed > 0 {
		return
	}
	s.resolve()
}

// resolve runs one resolver pass unconditionally.
func (s *System) resolve() ResolverResult {
	r := &s.resolver
	r.passes++

	s.registry.prune()
	ordered := s.registry.snapshot()
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if av, bv := a.IsVisible(), b.IsVisible(); av != bv {
			return av
		}
		if a.Layer() != b.Layer() {
			return a.Layer() > b.Layer()
		}
		return a.order > b.order
	})
	r.order = ordered

	var maskTarget, focus *Panel
	for _, p := range ordered {
		if !p.IsVisible() {
			break
		}
		if maskTarget == nil && p.tmpl.UseMask {
			maskTarget = p
		}
		if focus == nil && p.HasRole(RoleFocusable) {
			focus = p
		}
		if maskTarget != nil && focus != nil {
			break
		}
	}

	result := ResolverResult{Order: ordered, MaskTarget: maskTarget, Focus: focus}

	mask := s.factory.Mask()
	if maskTarget != nil {
		color := maskTarget.tmpl.MaskColor
		if color == "" {
			color = s.settings.MaskColor
		}
		mask.PlaceBehind(maskTarget, color)
		result.MaskColor = color
		result.MaskChanged = !r.maskActive || r.maskTarget != maskTarget || r.maskColor != color
		r.maskActive, r.maskTarget, r.maskColor = true, maskTarget, color
	} else {
		mask.Deactivate()
		result.MaskChanged = r.maskActive
		r.maskActive, r.maskTarget, r.maskColor = false, nil, ""
	}

	prev := r.focus
	if focus != prev {
		if prev != nil {
			prev.focused = false
			if !prev.destroyed {
				s.schemes.set(prev, "", prev)
			}
		}
		if focus != nil {
			focus.focused = true
			if scheme := focus.inputScheme(); scheme != "" {
				s.schemes.set(focus, scheme, focus)
			}
		}
		r.focus = focus
		result.FocusChanged = true
	}

	if result.MaskChanged {
		details := map[string]interface{}{"active": maskTarget != nil, "color": result.MaskColor}
		s.publishPanel(EventMaskChanged, maskTarget, details)
	}
	if result.FocusChanged {
		var details map[string]interface{}
		if prev != nil {
			details = map[string]interface{}{"previous": prev.Path(), "previous_id": prev.id}
		}
		s.publishPanel(EventFocusChanged, focus, details)
	}
	for _, o := range s.observers {
		o.ResolverPass(result)
	}
	return result
}

// forget drops focus from a torn-down panel. r.focus keeps pointing at it so
// the next pass reports the holder change.
func (r *resolver) forget(p *Panel) {
	if r.focus == p {
		p.focused = false
	}
}
