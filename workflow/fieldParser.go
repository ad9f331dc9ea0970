package workflow

import (
	"regexp"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/docflow_backend/models"
	"github.com/shopspring/decimal"
)

// Regex-based invoice field parsing over extracted text. Parsing is
// best-effort: any field it cannot find stays nil and the document is
// still valid.

var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Date|Invoice\s*Date|Due\s*Date)[:\s]*(\d{4}-\d{2}-\d{2})`),
	regexp.MustCompile(`(?i)(?:Date|Invoice\s*Date)[:\s]*(\d{1,2}[/-]\d{1,2}[/-]\d{2,4})`),
	regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`),
	regexp.MustCompile(`(\d{1,2}/\d{1,2}/\d{4})`),
}

var invoicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Invoice\s*No|Invoice\s*#|Invoice\s+Number|Invoice|Inv)[:\s#-]*([A-Za-z0-9-]+)`),
	regexp.MustCompile(`(?i)INV[:\s]+([A-Za-z0-9-]+)`),
}

var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:Total|Amount|Sum|Balance)[:\s]*\$?\s*([\d,]+\.?\d{0,2})`),
	regexp.MustCompile(`\$\s*([\d,]+\.\d{2})`),
	regexp.MustCompile(`([\d,]+\.\d{2})\s*(?:USD|EUR|GBP|ZAR|R)`),
}

var vatPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:VAT|Tax|GST)[:\s]*\$?\s*([\d,]+\.?\d{0,2})`),
}

var vendorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:From|Bill\s*From|Vendor|Supplier|Company)[:\s]+(.+)`),
	regexp.MustCompile(`^([A-Z][A-Za-z\s&]+(?:Inc|LLC|Ltd|Pty|Corp|Company)?)`),
}

var vendorHeaderLine = regexp.MustCompile(`(?i)^(Invoice|Date|Total|Amount|Tax|VAT)`)

// VAT fallback when the document states an amount but no VAT line.
var vatFallbackRate = decimal.NewFromFloat(0.15)

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

func parseAmountString(s string) *decimal.Decimal {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "." {
		return nil
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return nil
	}
	return &d
}

func parseDateString(s string) *time.Time {
	layouts := []string{"2006-01-02", "1/2/2006", "1/2/06", "1-2-2006", "1-2-06"}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return &t
		}
	}
	return nil
}

func parseVendor(text string) string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	limit := len(lines)
	if limit > 10 {
		limit = 10
	}
	for _, line := range lines[:limit] {
		for i, p := range vendorPatterns {
			// The bare company-name pattern would happily claim header
			// lines like "Invoice"; only the labelled pattern may.
			if i > 0 && vendorHeaderLine.MatchString(line) {
				continue
			}
			if m := p.FindStringSubmatch(line); m != nil {
				vendor := strings.TrimSpace(m[1])
				if len(vendor) > 100 {
					vendor = vendor[:100]
				}
				return vendor
			}
		}
	}

	// Fallback: first substantial line that is not a common header.
	limit = len(lines)
	if limit > 5 {
		limit = 5
	}
	for _, line := range lines[:limit] {
		if vendorHeaderLine.MatchString(line) {
			continue
		}
		if len(line) > 3 && len(line) < 100 {
			return line
		}
	}
	return ""
}

// ParseInvoiceFields derives vendor, invoice number, date, amount and
// VAT from free text. Empty text yields an empty payload.
func ParseInvoiceFields(text string) *models.ExtractedFields {
	fields := &models.ExtractedFields{}
	if strings.TrimSpace(text) == "" {
		return fields
	}

	if v := firstMatch(datePatterns, text); v != "" {
		fields.Date = parseDateString(v)
	}
	if v := firstMatch(invoicePatterns, text); v != "" {
		fields.InvoiceNumber = &v
	}
	if v := firstMatch(amountPatterns, text); v != "" {
		fields.Amount = parseAmountString(v)
	}
	if v := firstMatch(vatPatterns, text); v != "" {
		fields.Vat = parseAmountString(v)
	}
	if v := parseVendor(text); v != "" {
		fields.Vendor = &v
	}

	if fields.Vat == nil && fields.Amount != nil && fields.Amount.IsPositive() {
		vat := fields.Amount.Mul(vatFallbackRate).Round(2)
		fields.Vat = &vat
	}

	return fields
}
