package engine

import (
	"testing"
)

func TestRoleFlags(t *testing.T) {
	r := RoleMainUI | RoleLoadable

	if !r.Has(RoleMainUI) || !r.Has(RoleMainUI|RoleLoadable) {
		t.Error("Expected role to contain its flags")
	}
	if r.Has(RolePop) {
		t.Error("Expected role not to contain pop")
	}
	if got := r.String(); got != "main|loadable" {
		t.Errorf("Expected main|loadable, got %s", got)
	}
	if got := Role(0).String(); got != "none" {
		t.Errorf("Expected none, got %s", got)
	}

	parsed, err := ParseRole("Focusable")
	if err != nil || parsed != RoleFocusable {
		t.Errorf("Expected focusable, got %v (%v)", parsed, err)
	}
	if _, err := ParseRole("sidebar"); err == nil {
		t.Error("Expected unknown role to fail")
	}
}

func TestPolicyActions(t *testing.T) {
	mainChange := map[MainChangeBehavior]AutoCloseAction{
		MainChangeNone:  AutoCloseNone,
		MainChangeHide:  AutoCloseHide,
		MainChangeClose: AutoCloseClose,
		"":              AutoCloseClose,
	}
	for b, want := range mainChange {
		if got := b.Action(); got != want {
			t.Errorf("MainChange %q: expected %s, got %s", b, want, got)
		}
	}

	maskClick := []struct {
		op       MaskClickOperation
		action   AutoCloseAction
		animated bool
	}{
		{MaskClickNone, AutoCloseNone, false},
		{MaskClickHide, AutoCloseHide, true},
		{MaskClickClose, AutoCloseClose, true},
		{MaskClickDirectHide, AutoCloseHide, false},
		{MaskClickDirectClose, AutoCloseClose, false},
	}
	for _, tt := range maskClick {
		action, animated := tt.op.Action()
		if action != tt.action || animated != tt.animated {
			t.Errorf("MaskClick %q: expected (%s, %v), got (%s, %v)", tt.op, tt.action, tt.animated, action, animated)
		}
	}
}

func TestStateValidation(t *testing.T) {
	if err := PanelState("floating").Validate(); err == nil {
		t.Error("Expected invalid panel state to fail")
	}
	if !PanelStateClosed.IsTerminal() || PanelStateShown.IsTerminal() {
		t.Error("Expected only closed to be terminal")
	}
	if err := OperationType("explode").Validate(); err == nil {
		t.Error("Expected invalid operation type to fail")
	}
	for _, s := range []OperationState{OperationStateCompleted, OperationStateFailed, OperationStateCanceled} {
		if !s.IsTerminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
	}
}
