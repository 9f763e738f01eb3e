package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// mapLoader serves templates from a map.
type mapLoader map[string]*Template

func (m mapLoader) Load(path string) (*Template, error) {
	t, ok := m[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrTemplateNotFound)
	}
	return t, nil
}

// recordingPublisher records every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{}
}

func (r *recordingPublisher) Publish(ctx context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *recordingPublisher) count(t EventType, path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t && (path == "" || e.Path == path) {
			n++
		}
	}
	return n
}

func (r *recordingPublisher) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// gatedAnimator blocks every transition until released or canceled.
type gatedAnimator struct {
	started chan string
	release chan struct{}
}

func newGatedAnimator() *gatedAnimator {
	return &gatedAnimator{
		started: make(chan string, 32),
		release: make(chan struct{}),
	}
}

func (a *gatedAnimator) play(ctx context.Context, phase string, p *Panel) error {
	a.started <- phase + ":" + p.Path()
	select {
	case <-a.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *gatedAnimator) PlayShow(ctx context.Context, p *Panel) error { return a.play(ctx, "show", p) }
func (a *gatedAnimator) PlayHide(ctx context.Context, p *Panel) error { return a.play(ctx, "hide", p) }

func (a *gatedAnimator) waitStarted(t *testing.T) string {
	t.Helper()
	select {
	case s := <-a.started:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("animation never started")
		return ""
	}
}

// callLog records hook invocations in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) count(s string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c == s {
			n++
		}
	}
	return n
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// recordingHooks logs each lifecycle callback as "Hook:path".
type recordingHooks struct {
	log *callLog
}

func (h recordingHooks) OnCreate(p *Panel) { h.log.add("OnCreate:" + p.Path()) }
func (h recordingHooks) OnShow(p *Panel)   { h.log.add("OnShow:" + p.Path()) }
func (h recordingHooks) OnShown(p *Panel)  { h.log.add("OnShown:" + p.Path()) }
func (h recordingHooks) OnHide(p *Panel)   { h.log.add("OnHide:" + p.Path()) }
func (h recordingHooks) OnHidden(p *Panel) { h.log.add("OnHidden:" + p.Path()) }
func (h recordingHooks) OnClose(p *Panel)  { h.log.add("OnClose:" + p.Path()) }
func (h recordingHooks) OnClosed(p *Panel) { h.log.add("OnClosed:" + p.Path()) }

// recordingObserver records operation starts and callback failures.
type recordingObserver struct {
	NopObserver
	mu       sync.Mutex
	started  []string
	failures []string
}

func (o *recordingObserver) OperationStarted(ctx context.Context, op *OperationHandle) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, fmt.Sprintf("%s:%s", op.Type(), op.Path()))
	return ctx
}

func (o *recordingObserver) CallbackFailed(path, hook string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, hook+":"+path)
}

func (o *recordingObserver) startedOps() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.started...)
}

func (o *recordingObserver) failureCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.failures)
}

func newTestSystem(t *testing.T, templates mapLoader, opts ...Option) (*System, *recordingPublisher) {
	t.Helper()
	pub := newRecordingPublisher()
	opts = append([]Option{WithPublisher(pub)}, opts...)
	sys := New(templates, opts...)
	if err := sys.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize system: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sys.Shutdown(ctx); err != nil {
			t.Errorf("Failed to shut down system: %v", err)
		}
	})
	return sys, pub
}

func mustWait(t *testing.T, h *OperationHandle) *Panel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Operation %d (%s %s) failed: %v", h.ID(), h.Type(), h.Path(), err)
	}
	return p
}

func basicTemplates(paths ...string) mapLoader {
	m := make(mapLoader)
	for _, p := range paths {
		m[p] = &Template{Path: p, Layer: 10}
	}
	return m
}
