package models

import "strings"

type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusApproved DocumentStatus = "approved"
	DocumentStatusRejected DocumentStatus = "rejected"
)

// Terminal statuses accept no further approval actions.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusApproved || s == DocumentStatusRejected
}

func ParseDocumentStatus(s string) (DocumentStatus, bool) {
	switch DocumentStatus(strings.ToLower(strings.TrimSpace(s))) {
	case DocumentStatusPending:
		return DocumentStatusPending, true
	case DocumentStatusApproved:
		return DocumentStatusApproved, true
	case DocumentStatusRejected:
		return DocumentStatusRejected, true
	}
	return "", false
}

type ApprovalAction string

const (
	ApprovalActionApprove ApprovalAction = "approve"
	ApprovalActionReject  ApprovalAction = "reject"
)

func ParseApprovalAction(s string) (ApprovalAction, bool) {
	switch ApprovalAction(strings.ToLower(strings.TrimSpace(s))) {
	case ApprovalActionApprove:
		return ApprovalActionApprove, true
	case ApprovalActionReject:
		return ApprovalActionReject, true
	}
	return "", false
}

type UserRole string

const (
	UserRoleAdmin    UserRole = "admin"
	UserRoleManager  UserRole = "manager"
	UserRoleReviewer UserRole = "reviewer"
	UserRoleViewer   UserRole = "viewer"
)

// NormalizeRole maps the legacy "approver" alias onto manager and
// rejects anything outside the known set.
func NormalizeRole(s string) (UserRole, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return UserRoleAdmin, true
	case "manager", "approver":
		return UserRoleManager, true
	case "reviewer":
		return UserRoleReviewer, true
	case "viewer":
		return UserRoleViewer, true
	}
	return "", false
}
