package reports

import (
	"time"

	"bitbucket.org/mmdatafocus/docflow_backend/models"
	"github.com/shopspring/decimal"
)

type TaxReportItem struct {
	ID            int                   `json:"id"`
	Vendor        *string               `json:"vendor"`
	InvoiceNumber *string               `json:"invoice_number"`
	Date          *time.Time            `json:"date"`
	Amount        *decimal.Decimal      `json:"amount"`
	Vat           *decimal.Decimal      `json:"vat"`
	Status        models.DocumentStatus `json:"status"`
}

type TaxReportResponse struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalVat    decimal.Decimal `json:"total_vat"`
	Items       []TaxReportItem `json:"items"`
}

// BuildTaxReport rolls up amount and VAT over the filtered snapshot and
// echoes the item list for drill-down.
func BuildTaxReport(docs []*models.Document) *TaxReportResponse {
	resp := &TaxReportResponse{
		TotalAmount: decimal.Zero,
		TotalVat:    decimal.Zero,
		Items:       make([]TaxReportItem, 0, len(docs)),
	}
	for _, d := range docs {
		if d.Amount != nil {
			resp.TotalAmount = resp.TotalAmount.Add(*d.Amount)
		}
		if d.Vat != nil {
			resp.TotalVat = resp.TotalVat.Add(*d.Vat)
		}
		resp.Items = append(resp.Items, TaxReportItem{
			ID:            d.ID,
			Vendor:        d.Vendor,
			InvoiceNumber: d.InvoiceNumber,
			Date:          d.Date,
			Amount:        d.Amount,
			Vat:           d.Vat,
			Status:        d.Status,
		})
	}
	return resp
}
