package engine

import (
	"context"
	"time"
)

// Animator plays show and hide transitions for a panel.
// Implementations must return promptly once ctx is canceled; a canceled
// transition has been superseded and its result is discarded.
type Animator interface {
	// PlayShow plays the show transition.
	PlayShow(ctx context.Context, p *Panel) error

	// PlayHide plays the hide transition.
	PlayHide(ctx context.Context, p *Panel) error
}

// LoadingHandler displays a loading overlay during gated main-screen switches.
type LoadingHandler interface {
	// ShowLoading displays the overlay and returns a controller for it.
	ShowLoading(ctx context.Context, cfg LoadingConfig) (LoadingController, error)

	// HideLoading removes the overlay.
	HideLoading(ctx context.Context) error
}

// LoadingController updates a visible loading overlay.
type LoadingController interface {
	SetProgress(fraction float64)
	SetText(text string)
	SetTitle(title string)
}

// LoadingConfig describes the loading overlay requested by a loadable panel.
type LoadingConfig struct {
	// Type selects the overlay variant.
	Type string `json:"type" yaml:"type"`

	// Title is shown before the loading callback runs.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Text is shown before the loading callback runs.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`
}

// TemplateLoader resolves a panel path to its template.
// Returning (nil, nil) or an error wrapping ErrTemplateNotFound marks the path as unknown.
type TemplateLoader interface {
	Load(path string) (*Template, error)
}

// ContainerFactory supplies per-layer containers and the mask overlay.
type ContainerFactory interface {
	// Container returns the container for a layer, creating it on first use.
	Container(layer int) Container

	// Mask returns the shared mask overlay.
	Mask() Mask
}

// Container is an opaque per-layer visual container.
type Container interface {
	// Attach parents the panel to this container.
	Attach(p *Panel)

	// Detach removes the panel from this container.
	Detach(p *Panel)

	// SetActive shows or hides the panel's visual.
	SetActive(p *Panel, active bool)

	// Raise orders the panel above its siblings.
	Raise(p *Panel)
}

// Mask is the interaction-blocking overlay placed behind the topmost masked panel.
type Mask interface {
	// PlaceBehind positions the mask directly behind p, filling p's container, using color.
	PlaceBehind(p *Panel, color string)

	// Deactivate hides the mask.
	Deactivate()
}

// InputSchemeHandler applies the effective input scheme to the input backend.
type InputSchemeHandler interface {
	ApplyInputScheme(previous, current string, source any)
}

// EventPublisher receives notifications from the system.
// Publish is invoked from within the cooperative context and must not block on it.
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
}

// EventHandler consumes an event delivered by an EventSubscriber.
type EventHandler func(ctx context.Context, event *Event)

// EventSubscriber is implemented by buses that can deliver request events to the system.
type EventSubscriber interface {
	// Subscribe registers handler for events matching filter and returns a subscription ID.
	Subscribe(ctx context.Context, filter EventFilter, handler EventHandler) (string, error)

	// Unsubscribe removes a subscription.
	Unsubscribe(ctx context.Context, subscriptionID string) error
}

// Observer receives instrumentation callbacks from the scheduler and resolver.
type Observer interface {
	// OperationSubmitted is called when an operation enters the queue.
	OperationSubmitted(op *OperationHandle, depth int)

	// OperationStarted is called when an operation starts running. The returned
	// context is used for the remainder of the operation.
	OperationStarted(ctx context.Context, op *OperationHandle) context.Context

	// OperationFinished is called after the handle has been resolved.
	OperationFinished(ctx context.Context, op *OperationHandle, elapsed time.Duration)

	// ResolverPass is called after each resolver pass.
	ResolverPass(result ResolverResult)

	// CallbackFailed is called when a hook or collaborator fails.
	CallbackFailed(path, hook string, err error)

	// MainChanged is called after a main-screen switch commits.
	MainChanged(previous, current string)
}

// NopObserver implements Observer with no-ops. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) OperationSubmitted(*OperationHandle, int) {}
func (NopObserver) OperationStarted(ctx context.Context, _ *OperationHandle) context.Context {
	return ctx
}
func (NopObserver) OperationFinished(context.Context, *OperationHandle, time.Duration) {}
func (NopObserver) ResolverPass(ResolverResult)                                        {}
func (NopObserver) CallbackFailed(string, string, error)                               {}
func (NopObserver) MainChanged(string, string)                                         {}

// Lifecycle receives the lifecycle callbacks of a panel.
// OnShow and OnHide run before the transition's animation; OnShown and
// OnHidden after it commits. OnClosed runs after teardown.
// Callbacks run inside the cooperative context: they may read system state
// and submit queued operations, but must not wait on operation handles or
// call the direct Panel transition methods.
type Lifecycle interface {
	OnShow(p *Panel)
	OnShown(p *Panel)
	OnHide(p *Panel)
	OnHidden(p *Panel)
	OnClose(p *Panel)
	OnClosed(p *Panel)
}

// Hooks is the behavior attached to a panel instance.
type Hooks interface {
	Lifecycle

	// OnCreate runs once after the instance is registered.
	OnCreate(p *Panel)
}

// View is a child element mirroring its panel's lifecycle callbacks.
type View interface {
	Lifecycle
}

// LoadingHook is implemented by hooks of loadable panels. OnLoading runs
// outside the cooperative context after the main-screen switch committed;
// it may use the controller and submit operations but must not wait on them.
type LoadingHook interface {
	OnLoading(ctx context.Context, p *Panel, ctrl LoadingController) error
}

// AutoCloser is implemented by hooks that override the template's auto-close policy.
type AutoCloser interface {
	AutoCloseAction(p *Panel, reason AutoCloseReason) AutoCloseAction
}

// BaseHooks implements Hooks with no-ops. Embed it to implement a subset.
type BaseHooks struct{}

func (BaseHooks) OnCreate(*Panel) {}
func (BaseHooks) OnShow(*Panel)   {}
func (BaseHooks) OnShown(*Panel)  {}
func (BaseHooks) OnHide(*Panel)   {}
func (BaseHooks) OnHidden(*Panel) {}
func (BaseHooks) OnClose(*Panel)  {}
func (BaseHooks) OnClosed(*Panel) {}

// BehaviorFactory creates the hooks for a new panel instance.
type BehaviorFactory func() Hooks
