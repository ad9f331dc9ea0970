package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/docflow_backend/config"
	"bitbucket.org/mmdatafocus/docflow_backend/utils"
	"gorm.io/gorm"
)

const approvalFinalStep = 3

// Each pending step is gated by exactly one role.
var stepRequiredRole = map[int]UserRole{
	1: UserRoleReviewer,
	2: UserRoleManager,
	3: UserRoleAdmin,
}

// RequiredRoleForStep exposes the stage gating so handlers can tell a
// rejected caller which role the current step wants.
func RequiredRoleForStep(step int) (UserRole, bool) {
	role, ok := stepRequiredRole[step]
	return role, ok
}

// Approval is the audit trail of workflow decisions. One row per
// successful transition, written in the same transaction.
type Approval struct {
	ID         int            `gorm:"primary_key" json:"id"`
	DocumentID int            `gorm:"not null;index" json:"document_id"`
	Step       int            `gorm:"not null" json:"step"`
	ApproverID int            `gorm:"not null" json:"approver_id"`
	Action     ApprovalAction `gorm:"size:20;not null" json:"action"`
	Comment    string         `gorm:"size:500" json:"comment"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

type NewApproval struct {
	Action  string `json:"action" binding:"required"`
	Comment string `json:"comment"`
}

// nextState computes the successor of (status, step) for an action by
// a caller holding role. It is the whole transition table:
//   - terminal document        -> ErrorInvalidState
//   - wrong role for the step  -> ErrorForbidden
//   - approve below step 3     -> advance one step
//   - approve at step 3        -> approved
//   - reject at any step       -> rejected
func nextState(status DocumentStatus, step int, role UserRole, action ApprovalAction) (DocumentStatus, int, error) {
	if status.IsTerminal() {
		return status, step, fmt.Errorf("%w: document is already %s", utils.ErrorInvalidState, status)
	}
	required, ok := stepRequiredRole[step]
	if !ok {
		return status, step, fmt.Errorf("%w: document step %d is out of range", utils.ErrorInvalidState, step)
	}
	if role != required {
		return status, step, fmt.Errorf("%w: step %d requires role %s", utils.ErrorForbidden, step, required)
	}
	switch action {
	case ApprovalActionApprove:
		if step >= approvalFinalStep {
			return DocumentStatusApproved, step, nil
		}
		return DocumentStatusPending, step + 1, nil
	case ApprovalActionReject:
		return DocumentStatusRejected, step, nil
	}
	return status, step, fmt.Errorf("%w: unknown action %q", utils.ErrorInvalidState, action)
}

// acquireApprovalLock serializes transitions per document across
// instances using MySQL advisory locks. GET_LOCK is connection-scoped,
// so it must run on the same *gorm.DB that performs the transition.
func acquireApprovalLock(tx *gorm.DB, documentId int) error {
	lockName := fmt.Sprintf("approval:%d", documentId)
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 5)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("%w: could not acquire approval lock for document %d", utils.ErrorConflict, documentId)
	}
	return nil
}

func releaseApprovalLock(tx *gorm.DB, documentId int) {
	lockName := fmt.Sprintf("approval:%d", documentId)
	var released int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error
}

// ApplyApproval runs one approval action against a document. The actor
// id and role come from the request context (JWT claims). The
// transition persists with compare-and-swap on (status, current_step):
// even if two callers race past the advisory lock, at most one update
// matches the starting step and the loser sees ErrorConflict with no
// state change.
func ApplyApproval(ctx context.Context, documentId int, input *NewApproval) (*Document, error) {
	roleStr, ok := utils.GetUserRoleFromContext(ctx)
	if !ok {
		return nil, utils.ErrorForbidden
	}
	role, ok := NormalizeRole(roleStr)
	if !ok {
		return nil, fmt.Errorf("%w: unknown role %q", utils.ErrorForbidden, roleStr)
	}
	action, ok := ParseApprovalAction(input.Action)
	if !ok {
		return nil, fmt.Errorf("%w: action must be approve or reject", utils.ErrorInvalidState)
	}
	approverId, _ := utils.GetUserIdFromContext(ctx)

	db := config.GetDB()
	var updated *Document
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := acquireApprovalLock(tx, documentId); err != nil {
			return err
		}
		defer releaseApprovalLock(tx, documentId)

		var doc Document
		if err := tx.WithContext(ctx).First(&doc, documentId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}

		nextStatus, nextStep, err := nextState(doc.Status, doc.CurrentStep, role, action)
		if err != nil {
			return err
		}

		res := tx.WithContext(ctx).Model(&Document{}).
			Where("id = ? AND status = ? AND current_step = ?", documentId, DocumentStatusPending, doc.CurrentStep).
			Updates(map[string]interface{}{
				"status":       nextStatus,
				"current_step": nextStep,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: document changed underneath this action, refetch and retry", utils.ErrorConflict)
		}

		audit := Approval{
			DocumentID: documentId,
			Step:       doc.CurrentStep,
			ApproverID: approverId,
			Action:     action,
			Comment:    input.Comment,
		}
		if err := tx.WithContext(ctx).Create(&audit).Error; err != nil {
			return err
		}

		doc.Status = nextStatus
		doc.CurrentStep = nextStep
		updated = &doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListApprovals returns the audit trail for one document, oldest first.
func ListApprovals(ctx context.Context, documentId int) ([]*Approval, error) {
	db := config.GetDB()
	var results []*Approval
	if err := db.WithContext(ctx).
		Where("document_id = ?", documentId).
		Order("id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
