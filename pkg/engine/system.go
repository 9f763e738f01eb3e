package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// System is the panel orchestration runtime. Construct it with New, start it
// with Initialize and stop it with Shutdown.
type System struct {
	// mu is the cooperative lock. Whoever holds it may mutate panel,
	// registry, resolver and input-scheme state. The scheduler holds it while
	// an operation runs and releases it only at suspension points.
	mu sync.Mutex

	logger    zerolog.Logger
	settings  Settings
	registry  *registry
	resolver  resolver
	schemes   inputSchemeStack
	main      mainState
	queue     *operationQueue
	factory   ContainerFactory
	animator  Animator
	loading   LoadingHandler
	publisher EventPublisher
	observers []Observer
	behaviors map[string]BehaviorFactory

	subscriptionID string
	initialized    bool
	baseCtx        context.Context
	cancel         context.CancelFunc
	drainDone      chan struct{}
}

// Option configures a System.
type Option func(*System)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *System) {
		s.logger = logger.With().Str("component", "panel-system").Logger()
	}
}

// WithSettings replaces the default settings.
func WithSettings(settings Settings) Option {
	return func(s *System) { s.settings = settings }
}

// WithAnimator sets the animation collaborator.
func WithAnimator(a Animator) Option {
	return func(s *System) { s.animator = a }
}

// WithLoadingHandler sets the loading collaborator.
func WithLoadingHandler(h LoadingHandler) Option {
	return func(s *System) { s.loading = h }
}

// WithContainerFactory sets the visual container factory.
func WithContainerFactory(f ContainerFactory) Option {
	return func(s *System) { s.factory = f }
}

// WithPublisher sets the event publisher. If it also implements
// EventSubscriber, Initialize subscribes to request events.
func WithPublisher(p EventPublisher) Option {
	return func(s *System) { s.publisher = p }
}

// WithObserver adds an instrumentation observer.
func WithObserver(o Observer) Option {
	return func(s *System) { s.observers = append(s.observers, o) }
}

// WithInputSchemeHandler sets the input backend bridge.
func WithInputSchemeHandler(h InputSchemeHandler) Option {
	return func(s *System) { s.schemes.handler = h }
}

// WithBehavior registers a named behavior factory.
func WithBehavior(name string, factory BehaviorFactory) Option {
	return func(s *System) { s.behaviors[name] = factory }
}

// New creates a System resolving templates through loader.
func New(loader TemplateLoader, opts ...Option) *System {
	s := &System{
		logger:    zerolog.Nop(),
		settings:  DefaultSettings(),
		factory:   nopFactory{},
		behaviors: make(map[string]BehaviorFactory),
	}
	s.queue = newOperationQueue()
	for _, opt := range opts {
		opt(s)
	}
	s.registry = newRegistry(loader, s.factory)
	s.schemes.sys = s
	s.schemes.fallback = s.settings.DefaultInputScheme
	return s
}

// Initialize starts the scheduler and subscribes to request events.
func (s *System) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return fmt.Errorf("system already initialized")
	}

	if sub, ok := s.publisher.(EventSubscriber); ok {
		id, err := sub.Subscribe(ctx, EventFilter{Types: RequestEventTypes()}, func(ctx context.Context, e *Event) {
			s.HandleRequest(e)
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to request events: %w", err)
		}
		s.subscriptionID = id
	}

	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.drainDone = make(chan struct{})
	s.initialized = true
	go s.drain(s.baseCtx)

	s.publish(ctx, &Event{Type: EventSystemInitialized, Message: "panel system initialized"})
	s.logger.Info().
		Str("default_scheme", s.settings.DefaultInputScheme).
		Bool("animator", s.animator != nil).
		Bool("loading", s.loading != nil).
		Msg("Panel system initialized")
	return nil
}

// Shutdown stops the scheduler. Pending operations are resolved as Canceled
// and in-flight animations are canceled.
func (s *System) Shutdown(ctx context.Context) error {
	pending := s.queue.close()
	for _, h := range pending {
		h.resolve(OperationStateCanceled, nil, ErrSystemShutdown)
	}

	s.mu.Lock()
	initialized := s.initialized
	cancel := s.cancel
	done := s.drainDone
	subID := s.subscriptionID
	s.mu.Unlock()

	if !initialized {
		return nil
	}
	if sub, ok := s.publisher.(EventSubscriber); ok && subID != "" {
		if err := sub.Unsubscribe(ctx, subID); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to unsubscribe from request events")
		}
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for scheduler: %w", ctx.Err())
	}
	s.logger.Info().Int("canceled", len(pending)).Msg("Panel system shut down")
	return nil
}

// Inspect runs fn inside the cooperative context.
// It must not be called from a lifecycle hook.
func (s *System) Inspect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Settings returns the active settings.
func (s *System) Settings() Settings { return s.settings }

// RegisterBehavior registers a named behavior factory for templates.
func (s *System) RegisterBehavior(name string, factory BehaviorFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behaviors[name] = factory
}

// InvalidateTemplates drops cached templates so the next instantiation
// reloads them. An empty path clears the whole cache.
func (s *System) InvalidateTemplates(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.invalidate(path)
	s.logger.Debug().Str("path", path).Msg("Template cache invalidated")
}

// The following queries must be called from the cooperative context.

// Find returns the live instance for path, or nil.
func (s *System) Find(path string) *Panel { return s.registry.find(path) }

// LivePanels returns the live panels in creation order.
func (s *System) LivePanels() []*Panel { return s.registry.snapshot() }

// Order returns the live panels as ordered by the last resolver pass, topmost first.
func (s *System) Order() []*Panel { return append([]*Panel(nil), s.resolver.order...) }

// IsPersistent reports whether p is in the persistence set.
func (s *System) IsPersistent(p *Panel) bool { return s.registry.isPersistent(p) }

// MaskTarget returns the panel the mask sits behind, or nil.
func (s *System) MaskTarget() *Panel { return s.resolver.maskTarget }

// FocusHolder returns the focused panel, or nil.
func (s *System) FocusHolder() *Panel {
	if f := s.resolver.focus; f != nil && !f.destroyed {
		return f
	}
	return nil
}

// ResolverPasses returns the number of resolver passes run so far.
func (s *System) ResolverPasses() uint64 { return s.resolver.passes }

// QueueDepth returns the number of pending operations.
func (s *System) QueueDepth() int { return s.queue.len() }

// instantiate creates, registers and announces a new panel for tmpl.
func (s *System) instantiate(tmpl *Template) *Panel {
	s.registry.nextID++
	p := &Panel{
		sys:   s,
		tmpl:  *tmpl,
		id:    s.registry.nextID,
		state: PanelStateHidden,
		hooks: s.hooksFor(tmpl),
	}
	s.registry.add(p)
	c := s.containerFor(p)
	c.Attach(p)
	c.SetActive(p, false)
	s.safeCall(p.Path(), "OnCreate", func() { p.hooks.OnCreate(p) })
	s.publishPanel(EventPanelCreated, p, map[string]interface{}{"layer": p.Layer(), "roles": p.Roles().String()})
	s.logger.Debug().Str("path", p.Path()).Uint64("panel_id", p.id).Msg("Panel created")
	return p
}

func (s *System) hooksFor(tmpl *Template) Hooks {
	if tmpl.Behavior == "" {
		return BaseHooks{}
	}
	factory, ok := s.behaviors[tmpl.Behavior]
	if !ok {
		s.logger.Warn().Str("path", tmpl.Path).Str("behavior", tmpl.Behavior).Msg("Unknown behavior, using defaults")
		return BaseHooks{}
	}
	var hooks Hooks
	s.safeCall(tmpl.Path, "BehaviorFactory", func() { hooks = factory() })
	if hooks == nil {
		return BaseHooks{}
	}
	return hooks
}

// teardown removes p from every structure and announces its destruction.
func (s *System) teardown(p *Panel) {
	if p.destroyed {
		return
	}
	p.beginTransition()
	p.destroyed = true
	if p.state != PanelStateClosed {
		p.setState(PanelStateClosed)
	}
	s.registry.remove(p)
	s.schemes.remove(p)
	s.resolver.forget(p)
	if s.main.current == p {
		s.main.current = nil
	}
	c := s.containerFor(p)
	c.SetActive(p, false)
	c.Detach(p)

	s.publishPanel(EventPanelDestroyed, p, nil)
	s.logger.Debug().Str("path", p.Path()).Uint64("panel_id", p.id).Msg("Panel destroyed")
	s.refresh()
}

func (s *System) containerFor(p *Panel) Container {
	return s.registry.container(p.Layer())
}

func (s *System) playShow(ctx context.Context, p *Panel) error {
	if s.animator == nil {
		return nil
	}
	return s.animator.PlayShow(ctx, p)
}

func (s *System) playHide(ctx context.Context, p *Panel) error {
	if s.animator == nil {
		return nil
	}
	return s.animator.PlayHide(ctx, p)
}

// safeCall runs fn, containing any panic as a callback failure.
func (s *System) safeCall(path, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.callbackFailed(path, hook, panicError(r))
			s.logger.Debug().Str("stack", string(debug.Stack())).Msg("Recovered callback panic")
		}
	}()
	fn()
}

func panicError(r interface{}) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}

func (s *System) callbackFailed(path, hook string, err error) {
	cerr := NewCallbackError(path, hook, err)
	s.logger.Error().Err(cerr).Str("path", path).Str("hook", hook).Msg("Callback failed")
	for _, o := range s.observers {
		o.CallbackFailed(path, hook, err)
	}
}

func (s *System) publish(ctx context.Context, event *Event) {
	if s.publisher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = "info"
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("Failed to publish event")
	}
}

func (s *System) publishPanel(t EventType, p *Panel, details map[string]interface{}) {
	event := &Event{Type: t, Details: details}
	if p != nil {
		event.Path = p.Path()
		event.PanelID = p.id
	}
	s.publish(context.Background(), event)
}

type nopFactory struct{}

func (nopFactory) Container(int) Container { return nopContainer{} }
func (nopFactory) Mask() Mask              { return nopMask{} }

type nopContainer struct{}

func (nopContainer) Attach(*Panel)          {}
func (nopContainer) Detach(*Panel)          {}
func (nopContainer) SetActive(*Panel, bool) {}
func (nopContainer) Raise(*Panel)           {}

type nopMask struct{}

func (nopMask) PlaceBehind(*Panel, string) {}
func (nopMask) Deactivate()                {}
