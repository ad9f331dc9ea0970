package models

import (
	"context"

	"bitbucket.org/mmdatafocus/docflow_backend/config"
)

// Duplicate policy: once vendor, invoice number and amount are all
// known, two documents sharing that tuple are duplicates. Before
// extraction completes, a byte-identical re-upload (same filename and
// content ref) counts instead. The flag is monotonic; evaluation never
// clears it.

// MatchesDuplicate reports whether candidate duplicates other under the
// current policy. Pure; both evaluation paths funnel through it.
func MatchesDuplicate(candidate, other *Document) bool {
	if other.ID == candidate.ID {
		return false
	}
	if candidate.Vendor != nil && candidate.InvoiceNumber != nil && candidate.Amount != nil {
		return other.Vendor != nil && *other.Vendor == *candidate.Vendor &&
			other.InvoiceNumber != nil && *other.InvoiceNumber == *candidate.InvoiceNumber &&
			other.Amount != nil && other.Amount.Equal(*candidate.Amount)
	}
	return other.Filename == candidate.Filename && other.ContentRef == candidate.ContentRef
}

// EvaluateDuplicate decides the flag for doc against the store and
// persists a true result. Running it twice on unchanged data yields the
// same outcome, and a flag already set stays set regardless of what the
// re-evaluation finds.
func EvaluateDuplicate(ctx context.Context, doc *Document) (bool, error) {
	db := config.GetDB()

	dbCtx := db.WithContext(ctx).Model(&Document{}).Where("id <> ?", doc.ID)
	if doc.Vendor != nil && doc.InvoiceNumber != nil && doc.Amount != nil {
		dbCtx = dbCtx.Where("vendor = ? AND invoice_number = ? AND amount = ?",
			*doc.Vendor, *doc.InvoiceNumber, *doc.Amount)
	} else {
		dbCtx = dbCtx.Where("filename = ? AND content_ref = ?", doc.Filename, doc.ContentRef)
	}

	var count int64
	if err := dbCtx.Count(&count).Error; err != nil {
		return doc.IsDuplicate, err
	}
	if count == 0 {
		return doc.IsDuplicate, nil
	}

	if !doc.IsDuplicate {
		// Monotonic set; the guard keeps a concurrent evaluation from
		// writing twice.
		if err := db.WithContext(ctx).Model(&Document{}).
			Where("id = ? AND is_duplicate = ?", doc.ID, false).
			Update("is_duplicate", true).Error; err != nil {
			return doc.IsDuplicate, err
		}
		doc.IsDuplicate = true
	}
	return true, nil
}
