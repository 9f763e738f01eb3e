package engine

import (
	"context"
)

type schemeEntry struct {
	owner  any
	scheme string
}

// inputSchemeStack resolves the effective input scheme from nested owner requests.
// Each owner has at most one entry; the tail entry wins.
type inputSchemeStack struct {
	sys      *System
	entries  []schemeEntry
	fallback string
	handler  InputSchemeHandler
}

func (st *inputSchemeStack) effective() string {
	if n := len(st.entries); n > 0 {
		return st.entries[n-1].scheme
	}
	return st.fallback
}

func (st *inputSchemeStack) removeOwner(owner any) bool {
	for i, e := range st.entries {
		if e.owner == owner {
			st.entries = append(st.entries[:i], st.entries[i+1:]...)
			return true
		}
	}
	return false
}

// set upserts owner's request at the tail. An empty scheme only removes the entry.
func (st *inputSchemeStack) set(owner any, scheme string, source any) {
	if owner == nil {
		return
	}
	prev := st.effective()
	st.removeOwner(owner)
	if scheme != "" {
		st.entries = append(st.entries, schemeEntry{owner: owner, scheme: scheme})
	}
	st.notify(prev, source)
}

// remove drops owner's entry, e.g. on teardown.
func (st *inputSchemeStack) remove(owner any) {
	prev := st.effective()
	if st.removeOwner(owner) {
		st.notify(prev, owner)
	}
}

func (st *inputSchemeStack) notify(prev string, source any) {
	cur := st.effective()
	if cur == prev {
		return
	}
	if st.handler != nil {
		st.sys.safeCall("", "ApplyInputScheme", func() { st.handler.ApplyInputScheme(prev, cur, source) })
	}

	event := &Event{
		Type: EventInputSchemeChanged,
		Details: map[string]interface{}{
			"previous": prev,
			"current":  cur,
			"depth":    len(st.entries),
		},
	}
	if p, ok := source.(*Panel); ok && p != nil {
		event.Path = p.Path()
		event.PanelID = p.ID()
	} else if s, ok := source.(string); ok {
		event.Details["source"] = s
	}
	st.sys.publish(context.Background(), event)
	st.sys.logger.Debug().
		Str("previous", prev).
		Str("current", cur).
		Int("depth", len(st.entries)).
		Msg("Input scheme changed")
}

// SetInputScheme sets owner's requested scheme; an empty scheme removes the request.
// It must be called from the cooperative context (a hook or System.Inspect).
func (s *System) SetInputScheme(owner any, scheme string) {
	s.schemes.set(owner, scheme, owner)
}

// InputScheme returns the effective input scheme.
// It must be called from the cooperative context (a hook or System.Inspect).
func (s *System) InputScheme() string {
	return s.schemes.effective()
}

// InputSchemeDepth returns the number of owner requests on the stack.
func (s *System) InputSchemeDepth() int {
	return len(s.schemes.entries)
}
