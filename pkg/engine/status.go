package engine

import (
	"fmt"
	"strings"
)

// PanelState represents the lifecycle state of a panel.
type PanelState string

const (
	// PanelStateHidden is the initial state. The panel exists but is not displayed.
	PanelStateHidden PanelState = "hidden"

	// PanelStateShown indicates the panel finished its show transition.
	PanelStateShown PanelState = "shown"

	// PanelStateClosed is terminal. A closed panel is torn down and never resurrected.
	PanelStateClosed PanelState = "closed"
)

// IsTerminal returns true if no further transition is legal.
func (s PanelState) IsTerminal() bool {
	return s == PanelStateClosed
}

// Validate checks if the panel state is valid.
func (s PanelState) Validate() error {
	switch s {
	case PanelStateHidden, PanelStateShown, PanelStateClosed:
		return nil
	default:
		return fmt.Errorf("invalid panel state: %s", s)
	}
}

// OperationType represents the kind of queued operation.
type OperationType string

const (
	// OperationShow shows a panel by path, instantiating it when needed.
	OperationShow OperationType = "show"

	// OperationHide hides a visible panel.
	OperationHide OperationType = "hide"

	// OperationClose hides (if needed) and closes a panel.
	OperationClose OperationType = "close"

	// OperationToggle shows a hidden panel or hides a shown one.
	OperationToggle OperationType = "toggle"

	// OperationDestroy tears a panel down without animation.
	OperationDestroy OperationType = "destroy"

	// OperationDestroyAll tears down every qualifying live panel as one batch.
	OperationDestroyAll OperationType = "destroy_all"

	// OperationShowMain runs the main-screen switch flow, keeping history.
	OperationShowMain OperationType = "show_main"

	// OperationSwitchMain runs the main-screen switch flow, always closing the previous main.
	OperationSwitchMain OperationType = "switch_main"

	// OperationGoBackMain returns to the previous main screen from history.
	OperationGoBackMain OperationType = "go_back_main"

	// OperationLoadPersistent instantiates a panel hidden and marks it persistent.
	OperationLoadPersistent OperationType = "load_persistent"

	// OperationSetPersistent adds or removes a panel from the persistence set.
	OperationSetPersistent OperationType = "set_persistent"

	// OperationRefresh forces one resolver pass.
	OperationRefresh OperationType = "refresh"

	// OperationAutoCloseTop applies the top-pop auto-close policy (ESC/back).
	OperationAutoCloseTop OperationType = "auto_close_top"

	// OperationMaskClick applies the mask-click policy of the current mask target.
	OperationMaskClick OperationType = "mask_click"
)

// Validate checks if the operation type is valid.
func (o OperationType) Validate() error {
	switch o {
	case OperationShow, OperationHide, OperationClose, OperationToggle,
		OperationDestroy, OperationDestroyAll, OperationShowMain, OperationSwitchMain,
		OperationGoBackMain, OperationLoadPersistent, OperationSetPersistent,
		OperationRefresh, OperationAutoCloseTop, OperationMaskClick:
		return nil
	default:
		return fmt.Errorf("invalid operation type: %s", o)
	}
}

// OperationState represents the completion state of an operation handle.
type OperationState string

const (
	// OperationStatePending indicates the operation is queued.
	OperationStatePending OperationState = "pending"

	// OperationStateRunning indicates the scheduler is executing the operation.
	OperationStateRunning OperationState = "running"

	// OperationStateCompleted indicates the operation finished, possibly as a no-op.
	OperationStateCompleted OperationState = "completed"

	// OperationStateFailed indicates the scheduler's own bookkeeping failed.
	OperationStateFailed OperationState = "failed"

	// OperationStateCanceled indicates the operation never ran because the system shut down.
	OperationStateCanceled OperationState = "canceled"
)

// IsTerminal returns true if the handle has been resolved.
func (s OperationState) IsTerminal() bool {
	return s == OperationStateCompleted || s == OperationStateFailed || s == OperationStateCanceled
}

// AutoCloseReason identifies why the system is asking a panel to close itself.
type AutoCloseReason string

const (
	// ReasonMaskClick is used when the user clicks the mask behind a panel.
	ReasonMaskClick AutoCloseReason = "mask_click"

	// ReasonPopAutoClose is used for ESC/back handling of the topmost pop panel.
	ReasonPopAutoClose AutoCloseReason = "pop_auto_close"

	// ReasonMainUISwitch is used for panels displaced by a main-screen switch.
	ReasonMainUISwitch AutoCloseReason = "main_ui_switch"

	// ReasonDestroyAll is used during batch teardown.
	ReasonDestroyAll AutoCloseReason = "destroy_all"

	// ReasonPathSuperseded is used when a Show request finds the path already visible.
	ReasonPathSuperseded AutoCloseReason = "path_superseded"
)

// AutoCloseAction is what a panel does in response to an auto-close request.
type AutoCloseAction string

const (
	// AutoCloseNone leaves the panel untouched.
	AutoCloseNone AutoCloseAction = "none"

	// AutoCloseHide hides the panel and keeps the instance.
	AutoCloseHide AutoCloseAction = "hide"

	// AutoCloseClose closes and destroys the panel.
	AutoCloseClose AutoCloseAction = "close"
)

// MainChangeBehavior is how a panel reacts when the main screen changes.
type MainChangeBehavior string

const (
	MainChangeNone  MainChangeBehavior = "none"
	MainChangeHide  MainChangeBehavior = "hide"
	MainChangeClose MainChangeBehavior = "close"
)

// Action maps the behavior onto an auto-close action.
func (b MainChangeBehavior) Action() AutoCloseAction {
	switch b {
	case MainChangeNone:
		return AutoCloseNone
	case MainChangeHide:
		return AutoCloseHide
	default:
		return AutoCloseClose
	}
}

// MaskClickOperation is how a panel reacts when its mask is clicked.
type MaskClickOperation string

const (
	MaskClickNone        MaskClickOperation = "none"
	MaskClickHide        MaskClickOperation = "hide"
	MaskClickClose       MaskClickOperation = "close"
	MaskClickDirectHide  MaskClickOperation = "direct_hide"
	MaskClickDirectClose MaskClickOperation = "direct_close"
)

// Action returns the auto-close action and whether it should be animated.
func (m MaskClickOperation) Action() (AutoCloseAction, bool) {
	switch m {
	case MaskClickHide:
		return AutoCloseHide, true
	case MaskClickClose:
		return AutoCloseClose, true
	case MaskClickDirectHide:
		return AutoCloseHide, false
	case MaskClickDirectClose:
		return AutoCloseClose, false
	default:
		return AutoCloseNone, false
	}
}

// TopPopPolicy controls how the topmost pop panel reacts to ESC/back.
type TopPopPolicy string

const (
	// TopPopNone stops the search: nothing below is closed either.
	TopPopNone TopPopPolicy = "none"

	// TopPopIgnore skips this panel and continues with the next pop below it.
	TopPopIgnore TopPopPolicy = "ignore"

	TopPopHide  TopPopPolicy = "hide"
	TopPopClose TopPopPolicy = "close"
)

// Role is a bitset of panel capabilities resolved once per template.
type Role uint8

const (
	// RoleMainUI marks a candidate for the exclusive main-screen slot.
	RoleMainUI Role = 1 << iota

	// RoleLoadable marks a panel whose main-screen switch may be gated by the loading handler.
	RoleLoadable

	// RoleFocusable marks a panel that can hold input focus.
	RoleFocusable

	// RolePop marks a modal pop panel subject to ESC/back auto-close.
	RolePop
)

var roleNames = []struct {
	role Role
	name string
}{
	{RoleMainUI, "main"},
	{RoleLoadable, "loadable"},
	{RoleFocusable, "focusable"},
	{RolePop, "pop"},
}

// Has reports whether every bit in other is set.
func (r Role) Has(other Role) bool {
	return r&other == other
}

// String returns the role names joined with '|'.
func (r Role) String() string {
	if r == 0 {
		return "none"
	}
	var parts []string
	for _, rn := range roleNames {
		if r&rn.role != 0 {
			parts = append(parts, rn.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseRole converts a role name to its flag.
func ParseRole(name string) (Role, error) {
	for _, rn := range roleNames {
		if strings.EqualFold(rn.name, name) {
			return rn.role, nil
		}
	}
	return 0, fmt.Errorf("unknown role: %s", name)
}
