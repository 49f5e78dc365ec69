package sla

import "testing"

func TestEscalationLevelAtLeastIsMonotone(t *testing.T) {
	if !EscalationManager.AtLeast(EscalationReminder) {
		t.Errorf("manager should be at least reminder")
	}
	if EscalationReminder.AtLeast(EscalationManager) {
		t.Errorf("reminder should not be at least manager")
	}
	if !EscalationExecutive.AtLeast(EscalationExecutive) {
		t.Errorf("a level should be at least itself")
	}
}
