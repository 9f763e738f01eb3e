package engine

import (
	"time"
)

// Template describes how to instantiate the panel at a path.
// Roles are resolved once here; the system never inspects hook types to decide capabilities.
type Template struct {
	// Path is the unique panel path.
	Path string `json:"path" yaml:"path"`

	// Layer is the stacking layer. Higher layers are drawn above lower ones.
	Layer int `json:"layer" yaml:"layer"`

	// Roles are the panel's capabilities.
	Roles Role `json:"roles" yaml:"-"`

	// UseMask requests the mask overlay behind this panel while it is visible.
	UseMask bool `json:"use_mask" yaml:"use_mask"`

	// MaskColor overrides the default mask color.
	MaskColor string `json:"mask_color,omitempty" yaml:"mask_color,omitempty"`

	// Behavior names the registered BehaviorFactory providing the hooks.
	Behavior string `json:"behavior,omitempty" yaml:"behavior,omitempty"`

	// MainChange is the reaction to a main-screen switch. Empty means close.
	MainChange MainChangeBehavior `json:"main_change,omitempty" yaml:"main_change,omitempty"`

	// MaskClick is the reaction to a click on this panel's mask.
	MaskClick MaskClickOperation `json:"mask_click,omitempty" yaml:"mask_click,omitempty"`

	// TopPop is the ESC/back policy for pop panels. Empty means hide.
	TopPop TopPopPolicy `json:"top_pop,omitempty" yaml:"top_pop,omitempty"`

	// AutoClose overrides the action taken for specific reasons.
	AutoClose map[AutoCloseReason]AutoCloseAction `json:"auto_close,omitempty" yaml:"auto_close,omitempty"`

	// Loading configures the loading overlay for loadable main panels.
	Loading *LoadingConfig `json:"loading,omitempty" yaml:"loading,omitempty"`

	// InputScheme is pushed while the panel holds focus.
	InputScheme string `json:"input_scheme,omitempty" yaml:"input_scheme,omitempty"`

	// BlockInput overrides the global block-input-during-animation setting.
	BlockInput *bool `json:"block_input,omitempty" yaml:"block_input,omitempty"`
}

// Settings are the system-wide defaults.
type Settings struct {
	// DefaultInputScheme is effective when no owner requests a scheme.
	DefaultInputScheme string

	// PopInputScheme is requested by focused pop panels without their own scheme.
	PopInputScheme string

	// MaskColor is used when the mask target has no override.
	MaskColor string

	// MaskClickable enables mask-click handling.
	MaskClickable bool

	// BlockInputDuringAnimation is reported with animation events.
	BlockInputDuringAnimation bool
}

// DefaultSettings returns the stock settings.
func DefaultSettings() Settings {
	return Settings{
		DefaultInputScheme:        "Game",
		PopInputScheme:            "UI",
		MaskColor:                 "#000000F2",
		MaskClickable:             true,
		BlockInputDuringAnimation: true,
	}
}

// Operation is a request submitted to the scheduler.
type Operation struct {
	// Type selects the operation.
	Type OperationType `json:"type"`

	// Path identifies the target when Panel is nil.
	Path string `json:"path,omitempty"`

	// Panel targets a specific instance.
	Panel *Panel `json:"-"`

	// UseAnimation plays transitions.
	UseAnimation bool `json:"use_animation"`

	// Force bypasses persistence for destroy operations; for set_persistent it is the new value.
	Force bool `json:"force,omitempty"`

	// UserData is assigned to the shown panel.
	UserData any `json:"-"`
}

// target returns the path the operation refers to.
func (o Operation) target() string {
	if o.Panel != nil {
		return o.Panel.Path()
	}
	return o.Path
}

// ResolverResult is the outcome of one resolver pass.
type ResolverResult struct {
	// Order is the live panel order, topmost first.
	Order []*Panel

	// MaskTarget is the panel the mask sits behind, or nil.
	MaskTarget *Panel

	// MaskColor is the applied mask color.
	MaskColor string

	// Focus is the focus holder, or nil.
	Focus *Panel

	// MaskChanged reports a mask change since the previous pass.
	MaskChanged bool

	// FocusChanged reports a focus change since the previous pass.
	FocusChanged bool
}

// EventType represents the type of event.
type EventType string

// Notification events published by the system.
const (
	EventPanelCreated       EventType = "panel.created"
	EventPanelDestroyed     EventType = "panel.destroyed"
	EventPanelStateChanged  EventType = "panel.state_changed"
	EventPanelShown         EventType = "panel.shown"
	EventPanelHidden        EventType = "panel.hidden"
	EventPanelClosed        EventType = "panel.closed"
	EventMainChanged        EventType = "main.changed"
	EventInputSchemeChanged EventType = "input_scheme.changed"
	EventMaskChanged        EventType = "mask.changed"
	EventFocusChanged       EventType = "focus.changed"
	EventAnimationStarted   EventType = "animation.started"
	EventAnimationFinished  EventType = "animation.finished"
	EventSystemInitialized  EventType = "system.initialized"
)

// Request events translated 1:1 into queued operations.
const (
	EventRequestShow           EventType = "request.show"
	EventRequestHide           EventType = "request.hide"
	EventRequestClose          EventType = "request.close"
	EventRequestToggle         EventType = "request.toggle"
	EventRequestDestroy        EventType = "request.destroy"
	EventRequestDestroyAll     EventType = "request.destroy_all"
	EventRequestShowMain       EventType = "request.show_main"
	EventRequestSwitchMain     EventType = "request.switch_main"
	EventRequestGoBackMain     EventType = "request.go_back_main"
	EventRequestLoadPersistent EventType = "request.load_persistent"
	EventRequestSetPersistent  EventType = "request.set_persistent"
	EventRequestRefresh        EventType = "request.refresh"
	EventRequestAutoCloseTop   EventType = "request.auto_close_top"
	EventRequestMaskClick      EventType = "request.mask_click"
)

// requestOperations maps request events onto operation types.
var requestOperations = map[EventType]OperationType{
	EventRequestShow:           OperationShow,
	EventRequestHide:           OperationHide,
	EventRequestClose:          OperationClose,
	EventRequestToggle:         OperationToggle,
	EventRequestDestroy:        OperationDestroy,
	EventRequestDestroyAll:     OperationDestroyAll,
	EventRequestShowMain:       OperationShowMain,
	EventRequestSwitchMain:     OperationSwitchMain,
	EventRequestGoBackMain:     OperationGoBackMain,
	EventRequestLoadPersistent: OperationLoadPersistent,
	EventRequestSetPersistent:  OperationSetPersistent,
	EventRequestRefresh:        OperationRefresh,
	EventRequestAutoCloseTop:   OperationAutoCloseTop,
	EventRequestMaskClick:      OperationMaskClick,
}

// RequestEventTypes returns every request event type.
func RequestEventTypes() []EventType {
	types := make([]EventType, 0, len(requestOperations))
	for t := range requestOperations {
		types = append(types, t)
	}
	return types
}

// IsRequest returns true for request events.
func (t EventType) IsRequest() bool {
	_, ok := requestOperations[t]
	return ok
}

// Event is a notification or request carried by the event bus.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Type is the type of event.
	Type EventType `json:"type"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Path is the panel path, if applicable.
	Path string `json:"path,omitempty"`

	// PanelID is the panel instance ID, if applicable.
	PanelID uint64 `json:"panel_id,omitempty"`

	// OperationID is the operation that produced the event, if any.
	OperationID uint64 `json:"operation_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message,omitempty"`

	// Details contains additional event-specific data.
	Details map[string]interface{} `json:"details,omitempty"`

	// Level is the log level (debug, info, warn, error).
	Level string `json:"level"`
}

// EventFilter represents criteria for filtering events.
type EventFilter struct {
	// Path filters events by panel path.
	Path string `json:"path,omitempty"`

	// Types filters events by type.
	Types []EventType `json:"types,omitempty"`

	// Levels filters events by level.
	Levels []string `json:"levels,omitempty"`
}

// Matches reports whether the event satisfies the filter.
func (f EventFilter) Matches(e *Event) bool {
	if f.Path != "" && e.Path != f.Path {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, e.Type) {
		return false
	}
	if len(f.Levels) > 0 {
		found := false
		for _, l := range f.Levels {
			if l == e.Level {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsType(types []EventType, t EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// RequestEvent builds a request event for the bus.
func RequestEvent(t EventType, path string, useAnimation bool) *Event {
	return &Event{
		Type:      t,
		Timestamp: time.Now(),
		Path:      path,
		Level:     "info",
		Details:   map[string]interface{}{"use_animation": useAnimation},
	}
}
