package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/docflow_backend/config"
	"bitbucket.org/mmdatafocus/docflow_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Document is a financial document (invoice or credit note) moving
// through the three-step approval workflow. Vendor, invoice number,
// date, amount and VAT are populated asynchronously by extraction and
// stay nil until it completes; nil means "not extracted", which is a
// valid displayable state, not an error.
type Document struct {
	ID            int              `gorm:"primary_key" json:"id"`
	Filename      string           `gorm:"size:255;not null" json:"filename"`
	ContentRef    string           `gorm:"size:128;not null;index" json:"content_ref"`
	Vendor        *string          `gorm:"size:255;index" json:"vendor"`
	InvoiceNumber *string          `gorm:"size:100;index" json:"invoice_number"`
	Date          *time.Time       `json:"date"`
	Amount        *decimal.Decimal `gorm:"type:decimal(20,6)" json:"amount"`
	Vat           *decimal.Decimal `gorm:"type:decimal(20,6)" json:"vat"`
	Status        DocumentStatus   `gorm:"size:20;not null;default:pending;index" json:"status"`
	CurrentStep   int              `gorm:"not null;default:1" json:"current_step"`
	IsDuplicate   bool             `gorm:"not null;default:false" json:"is_duplicate"`
	RawText       string           `gorm:"type:text" json:"-"`
	ThumbnailRef  string           `gorm:"size:128" json:"thumbnail_ref,omitempty"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// ExtractedFields is the one-way merge payload the extraction
// collaborator delivers. Nil fields are left untouched; status,
// current_step and is_duplicate are never writable through it.
type ExtractedFields struct {
	Vendor        *string          `json:"vendor"`
	InvoiceNumber *string          `json:"invoice_number"`
	Date          *time.Time       `json:"date"`
	Amount        *decimal.Decimal `json:"amount"`
	Vat           *decimal.Decimal `json:"vat"`
	RawText       *string          `json:"raw_text"`
}

// DocumentFilter narrows list/report queries. Zero-valued fields mean
// "no constraint".
type DocumentFilter struct {
	Status    DocumentStatus
	Vendor    string
	Start     *time.Time
	End       *time.Time
	AmountMin *decimal.Decimal
	AmountMax *decimal.Decimal
	Skip      int
	Limit     int
}

func (f *DocumentFilter) apply(dbCtx *gorm.DB) *gorm.DB {
	if f == nil {
		return dbCtx
	}
	if f.Status != "" {
		dbCtx = dbCtx.Where("status = ?", f.Status)
	}
	if f.Vendor != "" {
		dbCtx = dbCtx.Where("vendor LIKE ?", "%"+f.Vendor+"%")
	}
	if f.Start != nil {
		dbCtx = dbCtx.Where("created_at >= ?", *f.Start)
	}
	if f.End != nil {
		dbCtx = dbCtx.Where("created_at <= ?", *f.End)
	}
	if f.AmountMin != nil {
		dbCtx = dbCtx.Where("amount >= ?", *f.AmountMin)
	}
	if f.AmountMax != nil {
		dbCtx = dbCtx.Where("amount <= ?", *f.AmountMax)
	}
	return dbCtx
}

func CreateDocument(ctx context.Context, filename string, contentRef string, thumbnailRef string) (*Document, error) {
	db := config.GetDB()
	doc := Document{
		Filename:     filename,
		ContentRef:   contentRef,
		ThumbnailRef: thumbnailRef,
		Status:       DocumentStatusPending,
		CurrentStep:  1,
	}
	if err := db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func GetDocument(ctx context.Context, id int) (*Document, error) {
	var result Document
	db := config.GetDB()
	if err := db.WithContext(ctx).First(&result, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func ListDocuments(ctx context.Context, filter *DocumentFilter) ([]*Document, error) {
	db := config.GetDB()
	dbCtx := filter.apply(db.WithContext(ctx).Model(&Document{})).Order("id")
	if filter != nil {
		if filter.Skip > 0 {
			dbCtx = dbCtx.Offset(filter.Skip)
		}
		if filter.Limit > 0 {
			dbCtx = dbCtx.Limit(filter.Limit)
		}
	}
	var results []*Document
	if err := dbCtx.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateExtractedFields merges extraction output into the document.
// Only non-nil fields are written, so a partial or repeated extraction
// never erases previously known values and can race harmlessly with
// readers. Workflow columns are out of reach here.
func UpdateExtractedFields(ctx context.Context, id int, fields *ExtractedFields) (*Document, error) {
	db := config.GetDB()

	updates := map[string]interface{}{}
	if fields.Vendor != nil {
		updates["vendor"] = *fields.Vendor
	}
	if fields.InvoiceNumber != nil {
		updates["invoice_number"] = *fields.InvoiceNumber
	}
	if fields.Date != nil {
		updates["date"] = *fields.Date
	}
	if fields.Amount != nil {
		updates["amount"] = *fields.Amount
	}
	if fields.Vat != nil {
		updates["vat"] = *fields.Vat
	}
	if fields.RawText != nil {
		updates["raw_text"] = *fields.RawText
	}

	if len(updates) > 0 {
		res := db.WithContext(ctx).Model(&Document{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, utils.ErrorRecordNotFound
		}
	}
	return GetDocument(ctx, id)
}
