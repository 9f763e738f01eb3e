package engine

import (
	"errors"
)

// registry tracks live panels, the persistence set, layer containers and the template cache.
// Every panel in persistent is also in live.
type registry struct {
	loader    TemplateLoader
	factory   ContainerFactory
	live      []*Panel
	persist   map[*Panel]struct{}
	layers    map[int]Container
	templates map[string]*Template
	nextID    uint64
	nextOrder uint64
}

func newRegistry(loader TemplateLoader, factory ContainerFactory) *registry {
	return &registry{
		loader:    loader,
		factory:   factory,
		persist:   make(map[*Panel]struct{}),
		layers:    make(map[int]Container),
		templates: make(map[string]*Template),
	}
}

// template resolves a path through the cache, loading it on a miss.
func (r *registry) template(path string) (*Template, error) {
	if t, ok := r.templates[path]; ok {
		return t, nil
	}
	if r.loader == nil {
		return nil, NewAssetNotFoundError(path, ErrTemplateNotFound)
	}
	t, err := r.loader.Load(path)
	if err != nil {
		var ee *EngineError
		if errors.As(err, &ee) {
			return nil, ee
		}
		return nil, NewAssetNotFoundError(path, err)
	}
	if t == nil {
		return nil, NewAssetNotFoundError(path, ErrTemplateNotFound)
	}
	if t.Path == "" {
		cp := *t
		cp.Path = path
		t = &cp
	}
	r.templates[path] = t
	return t, nil
}

// invalidate drops cached templates. An empty path clears the whole cache.
func (r *registry) invalidate(path string) {
	if path == "" {
		r.templates = make(map[string]*Template)
		return
	}
	delete(r.templates, path)
}

// find returns the most recent live, non-terminal instance for path.
func (r *registry) find(path string) *Panel {
	for i := len(r.live) - 1; i >= 0; i-- {
		p := r.live[i]
		if p.Path() == path && !p.destroyed && p.state != PanelStateClosed {
			return p
		}
	}
	return nil
}

func (r *registry) contains(p *Panel) bool {
	for _, candidate := range r.live {
		if candidate == p {
			return true
		}
	}
	return false
}

func (r *registry) add(p *Panel) {
	r.nextOrder++
	p.order = r.nextOrder
	r.live = append(r.live, p)
}

// raise makes p the most recent sibling.
func (r *registry) raise(p *Panel) {
	r.nextOrder++
	p.order = r.nextOrder
}

// remove drops p from the live list and the persistence set.
func (r *registry) remove(p *Panel) {
	delete(r.persist, p)
	for i, candidate := range r.live {
		if candidate == p {
			r.live = append(r.live[:i], r.live[i+1:]...)
			return
		}
	}
}

// prune drops destroyed or closed panels that are still listed.
func (r *registry) prune() {
	kept := r.live[:0]
	for _, p := range r.live {
		if p.destroyed || p.state == PanelStateClosed {
			delete(r.persist, p)
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(r.live); i++ {
		r.live[i] = nil
	}
	r.live = kept
}

// setPersistent adds or removes p from the persistence set. Only live panels can be persistent.
func (r *registry) setPersistent(p *Panel, persistent bool) bool {
	if !persistent {
		delete(r.persist, p)
		return true
	}
	if !r.contains(p) {
		return false
	}
	r.persist[p] = struct{}{}
	return true
}

func (r *registry) isPersistent(p *Panel) bool {
	_, ok := r.persist[p]
	return ok
}

func (r *registry) clearPersistent() {
	r.persist = make(map[*Panel]struct{})
}

// container returns the container for a layer, creating it on first use.
func (r *registry) container(layer int) Container {
	if c, ok := r.layers[layer]; ok {
		return c
	}
	c := r.factory.Container(layer)
	r.layers[layer] = c
	return c
}

// snapshot returns a copy of the live list.
func (r *registry) snapshot() []*Panel {
	return append([]*Panel(nil), r.live...)
}
