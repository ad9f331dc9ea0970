package workflow

import (
	"testing"

	"github.com/shopspring/decimal"
)

const sampleInvoice = `Acme Trading Ltd
123 Harbour Road

Invoice No: INV-2025-014
Date: 2025-03-10

Subtotal: 1,000.00
VAT: 150.00
Total: $1,150.00
`

func TestParseInvoiceFields_FullInvoice(t *testing.T) {
	fields := ParseInvoiceFields(sampleInvoice)

	if fields.Vendor == nil || *fields.Vendor != "Acme Trading Ltd" {
		t.Fatalf("vendor = %v, want Acme Trading Ltd", fields.Vendor)
	}
	if fields.InvoiceNumber == nil || *fields.InvoiceNumber != "INV-2025-014" {
		t.Fatalf("invoice number = %v, want INV-2025-014", fields.InvoiceNumber)
	}
	if fields.Date == nil || fields.Date.Format("2006-01-02") != "2025-03-10" {
		t.Fatalf("date = %v, want 2025-03-10", fields.Date)
	}
	if fields.Amount == nil || !fields.Amount.Equal(decimal.RequireFromString("1000.00")) {
		t.Fatalf("amount = %v, want 1000.00", fields.Amount)
	}
	if fields.Vat == nil || !fields.Vat.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("vat = %v, want 150.00", fields.Vat)
	}
}

func TestParseInvoiceFields_VatFallback(t *testing.T) {
	text := `Beta Supplies
Invoice #B-77
Total: 200.00
`
	fields := ParseInvoiceFields(text)
	if fields.Amount == nil || !fields.Amount.Equal(decimal.RequireFromString("200.00")) {
		t.Fatalf("amount = %v, want 200.00", fields.Amount)
	}
	// No VAT line: assume the local standard rate.
	if fields.Vat == nil || !fields.Vat.Equal(decimal.RequireFromString("30")) {
		t.Fatalf("vat fallback = %v, want 30", fields.Vat)
	}
}

func TestParseInvoiceFields_EmptyText(t *testing.T) {
	for _, text := range []string{"", "   \n\t"} {
		fields := ParseInvoiceFields(text)
		if fields.Vendor != nil || fields.InvoiceNumber != nil || fields.Date != nil || fields.Amount != nil || fields.Vat != nil {
			t.Fatalf("empty text should extract nothing: %+v", fields)
		}
	}
}

func TestParseInvoiceFields_SlashDates(t *testing.T) {
	fields := ParseInvoiceFields("Date: 3/7/2025\nTotal: 10.00\n")
	if fields.Date == nil || fields.Date.Format("2006-01-02") != "2025-03-07" {
		t.Fatalf("date = %v, want 2025-03-07", fields.Date)
	}
}

func TestParseInvoiceFields_CommaAmounts(t *testing.T) {
	fields := ParseInvoiceFields("Amount: 12,345.67\n")
	if fields.Amount == nil || !fields.Amount.Equal(decimal.RequireFromString("12345.67")) {
		t.Fatalf("amount = %v, want 12345.67", fields.Amount)
	}
}

func TestParseVendor_SkipsHeaderLines(t *testing.T) {
	text := `Invoice
Total: 50.00
Gamma Industrial Corp
`
	fields := ParseInvoiceFields(text)
	if fields.Vendor == nil || *fields.Vendor != "Gamma Industrial Corp" {
		t.Fatalf("vendor = %v, want Gamma Industrial Corp", fields.Vendor)
	}
}

func TestParseVendor_LabelledLineWins(t *testing.T) {
	text := `Invoice Statement
Vendor: Delta Logistics
Total: 75.00
`
	fields := ParseInvoiceFields(text)
	if fields.Vendor == nil || *fields.Vendor != "Delta Logistics" {
		t.Fatalf("vendor = %v, want Delta Logistics", fields.Vendor)
	}
}
