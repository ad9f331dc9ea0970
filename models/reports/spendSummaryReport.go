package reports

import (
	"bitbucket.org/mmdatafocus/docflow_backend/models"
	"github.com/shopspring/decimal"
)

type VendorTotal struct {
	Vendor string          `json:"vendor"`
	Total  decimal.Decimal `json:"total"`
	Count  int             `json:"count"`
}

type SpendSummaryResponse struct {
	Total      decimal.Decimal `json:"total"`
	Count      int             `json:"count"`
	TopVendors []VendorTotal   `json:"top_vendors"`
}

// BuildSpendSummary totals the filtered snapshot. Count covers every
// document in the set; documents without an amount contribute zero.
func BuildSpendSummary(docs []*models.Document) *SpendSummaryResponse {
	total := decimal.Zero
	for _, d := range docs {
		if d.Amount != nil {
			total = total.Add(*d.Amount)
		}
	}
	return &SpendSummaryResponse{
		Total:      total,
		Count:      len(docs),
		TopVendors: RankVendors(docs),
	}
}
