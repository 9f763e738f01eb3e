package tui

import (
	"sort"
	"sync"

	"github.com/panelflow/panelflow/pkg/engine"
)

// Screen is the terminal compositing backend. It implements
// engine.ContainerFactory and keeps one container per layer plus a single mask.
//
// The engine mutates a Screen from inside its cooperative context; the
// bubbletea program reads it through Snapshot. Both sides go through the
// Screen's own mutex and never touch engine state while rendering.
type Screen struct {
	mu       sync.Mutex
	layers   map[int]*layerContainer
	mask     *maskOverlay
	loading  LoadingView
	anims    map[uint64]Transition
	version  uint64
	onChange func()
}

// NewScreen creates an empty screen. onChange, if not nil, is called after
// every mutation, e.g. to wake the bubbletea program.
func NewScreen(onChange func()) *Screen {
	s := &Screen{
		layers:   make(map[int]*layerContainer),
		anims:    make(map[uint64]Transition),
		onChange: onChange,
	}
	s.mask = &maskOverlay{screen: s}
	return s
}

// SetOnChange replaces the change callback.
func (s *Screen) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Container returns the container for layer, creating it on first use.
func (s *Screen) Container(layer int) engine.Container {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.layers[layer]
	if !ok {
		c = &layerContainer{screen: s, layer: layer}
		s.layers[layer] = c
	}
	return c
}

// Mask returns the shared mask overlay.
func (s *Screen) Mask() engine.Mask { return s.mask }

// update runs fn under the lock, bumps the version, then notifies.
func (s *Screen) update(fn func()) {
	s.mu.Lock()
	fn()
	s.version++
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// PanelView is a rendered panel in a Snapshot.
type PanelView struct {
	ID     uint64
	Path   string
	Layer  int
	Active bool
	Roles  engine.Role

	// Transition is the animation in progress, if any.
	Transition *Transition
}

// MaskView is the mask state in a Snapshot.
type MaskView struct {
	Active bool
	// BehindID is the panel the mask sits directly behind.
	BehindID uint64
	Color    string
}

// LoadingView is the loading overlay state in a Snapshot.
type LoadingView struct {
	Visible  bool
	Type     string
	Title    string
	Text     string
	Progress float64
}

// Snapshot is an immutable copy of the screen, bottom-most panel first.
type Snapshot struct {
	Version uint64
	Panels  []PanelView
	Mask    MaskView
	Loading LoadingView
}

// Visible returns the active panels, bottom-most first.
func (snap Snapshot) Visible() []PanelView {
	out := make([]PanelView, 0, len(snap.Panels))
	for _, p := range snap.Panels {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

// Snapshot copies the current screen state.
func (s *Screen) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	layers := make([]int, 0, len(s.layers))
	for l := range s.layers {
		layers = append(layers, l)
	}
	sort.Ints(layers)

	snap := Snapshot{
		Version: s.version,
		Loading: s.loading,
		Mask: MaskView{
			Active: s.mask.active,
			Color:  s.mask.color,
		},
	}
	if s.mask.active && s.mask.behind != nil {
		snap.Mask.BehindID = s.mask.behind.id
	}

	for _, l := range layers {
		for _, e := range s.layers[l].entries {
			pv := PanelView{
				ID:     e.id,
				Path:   e.path,
				Layer:  l,
				Active: e.active,
				Roles:  e.roles,
			}
			if tr, ok := s.anims[e.id]; ok {
				tr := tr
				pv.Transition = &tr
			}
			snap.Panels = append(snap.Panels, pv)
		}
	}
	return snap
}

// entry is a panel attached to a layer. Identity fields are copied on attach
// so rendering never reads the engine's Panel.
type entry struct {
	id     uint64
	path   string
	roles  engine.Role
	active bool
}

// layerContainer keeps its panels in sibling order, bottom-most first.
type layerContainer struct {
	screen  *Screen
	layer   int
	entries []*entry
}

func (c *layerContainer) index(id uint64) int {
	for i, e := range c.entries {
		if e.id == id {
			return i
		}
	}
	return -1
}

func (c *layerContainer) Attach(p *engine.Panel) {
	c.screen.update(func() {
		if c.index(p.ID()) >= 0 {
			return
		}
		c.entries = append(c.entries, &entry{id: p.ID(), path: p.Path(), roles: p.Roles()})
	})
}

func (c *layerContainer) Detach(p *engine.Panel) {
	c.screen.update(func() {
		if i := c.index(p.ID()); i >= 0 {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
		}
		delete(c.screen.anims, p.ID())
		if c.screen.mask.behind != nil && c.screen.mask.behind.id == p.ID() {
			c.screen.mask.behind = nil
			c.screen.mask.active = false
		}
	})
}

func (c *layerContainer) SetActive(p *engine.Panel, active bool) {
	c.screen.update(func() {
		if i := c.index(p.ID()); i >= 0 {
			c.entries[i].active = active
		}
	})
}

func (c *layerContainer) Raise(p *engine.Panel) {
	c.screen.update(func() {
		i := c.index(p.ID())
		if i < 0 || i == len(c.entries)-1 {
			return
		}
		e := c.entries[i]
		c.entries = append(append(c.entries[:i], c.entries[i+1:]...), e)
	})
}

// maskOverlay is the screen's single mask.
type maskOverlay struct {
	screen *Screen
	behind *entry
	color  string
	active bool
}

func (m *maskOverlay) PlaceBehind(p *engine.Panel, color string) {
	m.screen.update(func() {
		c, ok := m.screen.layers[p.Layer()]
		if !ok {
			return
		}
		if i := c.index(p.ID()); i >= 0 {
			m.behind = c.entries[i]
			m.color = color
			m.active = true
		}
	})
}

func (m *maskOverlay) Deactivate() {
	m.screen.update(func() {
		m.behind = nil
		m.active = false
	})
}
