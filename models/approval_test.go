package models

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/docflow_backend/utils"
)

// These tests are intentionally DB-free: the whole transition table
// lives in nextState, and ApplyApproval only adds locking and the CAS
// write around it.

func TestNextState_ApproveAdvancesOneStep(t *testing.T) {
	status, step, err := nextState(DocumentStatusPending, 1, UserRoleReviewer, ApprovalActionApprove)
	if err != nil {
		t.Fatalf("step 1 approve: %v", err)
	}
	if status != DocumentStatusPending || step != 2 {
		t.Fatalf("step 1 approve: got (%s, %d), want (pending, 2)", status, step)
	}

	status, step, err = nextState(DocumentStatusPending, 2, UserRoleManager, ApprovalActionApprove)
	if err != nil {
		t.Fatalf("step 2 approve: %v", err)
	}
	if status != DocumentStatusPending || step != 3 {
		t.Fatalf("step 2 approve: got (%s, %d), want (pending, 3)", status, step)
	}
}

func TestNextState_FinalApproveIsTerminal(t *testing.T) {
	status, _, err := nextState(DocumentStatusPending, 3, UserRoleAdmin, ApprovalActionApprove)
	if err != nil {
		t.Fatalf("step 3 approve: %v", err)
	}
	if status != DocumentStatusApproved {
		t.Fatalf("step 3 approve: got %s, want approved", status)
	}
}

func TestNextState_RejectAtAnyStepIsTerminal(t *testing.T) {
	cases := []struct {
		step int
		role UserRole
	}{
		{1, UserRoleReviewer},
		{2, UserRoleManager},
		{3, UserRoleAdmin},
	}
	for _, tc := range cases {
		status, _, err := nextState(DocumentStatusPending, tc.step, tc.role, ApprovalActionReject)
		if err != nil {
			t.Fatalf("step %d reject: %v", tc.step, err)
		}
		if status != DocumentStatusRejected {
			t.Fatalf("step %d reject: got %s, want rejected", tc.step, status)
		}
	}
}

func TestNextState_WrongRoleIsForbiddenWithoutStateChange(t *testing.T) {
	cases := []struct {
		step int
		role UserRole
	}{
		{1, UserRoleManager},
		{1, UserRoleAdmin},
		{1, UserRoleViewer},
		{2, UserRoleReviewer},
		{2, UserRoleAdmin},
		{3, UserRoleManager},
		{3, UserRoleReviewer},
		{3, UserRoleViewer},
	}
	for _, tc := range cases {
		status, step, err := nextState(DocumentStatusPending, tc.step, tc.role, ApprovalActionApprove)
		if !errors.Is(err, utils.ErrorForbidden) {
			t.Fatalf("step %d as %s: err = %v, want ErrorForbidden", tc.step, tc.role, err)
		}
		if status != DocumentStatusPending || step != tc.step {
			t.Fatalf("step %d as %s: state changed to (%s, %d)", tc.step, tc.role, status, step)
		}
	}
}

func TestNextState_TerminalDocumentRejectsAllActions(t *testing.T) {
	for _, status := range []DocumentStatus{DocumentStatusApproved, DocumentStatusRejected} {
		for _, action := range []ApprovalAction{ApprovalActionApprove, ApprovalActionReject} {
			_, _, err := nextState(status, 3, UserRoleAdmin, action)
			if !errors.Is(err, utils.ErrorInvalidState) {
				t.Fatalf("%s %s: err = %v, want ErrorInvalidState", status, action, err)
			}
		}
	}
}

func TestNextState_OutOfRangeStepIsInvalidState(t *testing.T) {
	for _, step := range []int{0, 4} {
		_, _, err := nextState(DocumentStatusPending, step, UserRoleAdmin, ApprovalActionApprove)
		if !errors.Is(err, utils.ErrorInvalidState) {
			t.Fatalf("step %d: err = %v, want ErrorInvalidState", step, err)
		}
	}
}

func TestRequiredRoleForStep(t *testing.T) {
	want := map[int]UserRole{1: UserRoleReviewer, 2: UserRoleManager, 3: UserRoleAdmin}
	for step, role := range want {
		got, ok := RequiredRoleForStep(step)
		if !ok || got != role {
			t.Fatalf("step %d: got (%s, %v), want (%s, true)", step, got, ok, role)
		}
	}
	if _, ok := RequiredRoleForStep(4); ok {
		t.Fatal("step 4 should have no required role")
	}
}

func TestNormalizeRole_ApproverAlias(t *testing.T) {
	role, ok := NormalizeRole("Approver")
	if !ok || role != UserRoleManager {
		t.Fatalf("approver alias: got (%s, %v), want (manager, true)", role, ok)
	}
	if _, ok := NormalizeRole("superuser"); ok {
		t.Fatal("unknown role should not normalize")
	}
}
