package reports

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/docflow_backend/models"
	"github.com/shopspring/decimal"
)

// The insights engine is a pure function of a document snapshot and a
// query: no I/O, no clock reads, identical inputs always produce
// identical output.

type Granularity string

const (
	GranularityMinute Granularity = "minute"
	GranularityHour   Granularity = "hour"
	GranularityDay    Granularity = "day"
	GranularityMonth  Granularity = "month"
)

func ParseGranularity(s string) Granularity {
	switch Granularity(strings.ToLower(strings.TrimSpace(s))) {
	case GranularityMinute:
		return GranularityMinute
	case GranularityHour:
		return GranularityHour
	case GranularityMonth:
		return GranularityMonth
	}
	return GranularityDay
}

const (
	// Below this many amounts the anomaly statistics are meaningless.
	anomalyMinSamples = 2

	DefaultAnomalyFactor = 2.0

	// MaxTrendBuckets bounds the trend axis. Document dates come out of
	// parsed invoice text, so the axis span is attacker-influenced; past
	// this many buckets the granularity degrades instead of enumerating
	// them all.
	MaxTrendBuckets = 10000
)

type InsightsQuery struct {
	Start         *time.Time
	End           *time.Time
	Granularity   Granularity
	AnomalyFactor float64
}

type StatusCount struct {
	Name   string                `json:"name"`
	Value  int                   `json:"value"`
	Status models.DocumentStatus `json:"status"`
}

// TrendPoint is one time bucket. Series carries one entry per document
// in range, keyed doc_<id>, zero when the document has no activity in
// the bucket, so consumers can tell "no data" from "missing bucket".
type TrendPoint struct {
	Period    string                     `json:"period"`
	Documents int                        `json:"documents"`
	Spend     decimal.Decimal            `json:"spend"`
	Series    map[string]decimal.Decimal `json:"series"`
}

type DocumentSeries struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type AnomalyItem struct {
	ID       int             `json:"id"`
	Filename string          `json:"filename"`
	Vendor   *string         `json:"vendor"`
	Amount   decimal.Decimal `json:"amount"`
}

type SpendingInsights struct {
	TotalSpend    decimal.Decimal                           `json:"total_spend"`
	DocumentCount int                                       `json:"document_count"`
	AverageAmount decimal.Decimal                           `json:"average_amount"`
	TopVendors    []VendorTotal                             `json:"top_vendors"`
	ByStatus      map[models.DocumentStatus]decimal.Decimal `json:"by_status"`
}

type InsightsResponse struct {
	DocumentsUploaded int              `json:"documents_uploaded"`
	Pending           int              `json:"pending"`
	Approved          int              `json:"approved"`
	Rejected          int              `json:"rejected"`
	Duplicates        int              `json:"duplicates"`
	StatusCounts      []StatusCount    `json:"status_counts"`
	Trends            []TrendPoint     `json:"trends"`
	DocumentSeries    []DocumentSeries `json:"document_series"`
	Anomalies         []AnomalyItem    `json:"anomalies"`
	SpendingInsights  SpendingInsights `json:"spending_insights"`
}

// filterSnapshot restricts docs to the query's date range. Undated
// documents cannot be placed on the axis and drop out whenever a range
// is given.
func filterSnapshot(docs []*models.Document, q InsightsQuery) []*models.Document {
	if q.Start == nil && q.End == nil {
		return docs
	}
	out := make([]*models.Document, 0, len(docs))
	for _, d := range docs {
		if d.Date == nil {
			continue
		}
		if q.Start != nil && d.Date.Before(*q.Start) {
			continue
		}
		if q.End != nil && d.Date.After(*q.End) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// BuildInsights computes the full dashboard aggregation. When the query
// carries a date range, every aggregate (counters, anomalies, spending,
// trends) is computed over the in-range documents only.
func BuildInsights(docs []*models.Document, q InsightsQuery) *InsightsResponse {
	docs = filterSnapshot(docs, q)
	resp := &InsightsResponse{
		DocumentsUploaded: len(docs),
		StatusCounts:      []StatusCount{},
		Trends:            []TrendPoint{},
		DocumentSeries:    []DocumentSeries{},
		Anomalies:         []AnomalyItem{},
	}

	for _, d := range docs {
		switch d.Status {
		case models.DocumentStatusPending:
			resp.Pending++
		case models.DocumentStatusApproved:
			resp.Approved++
		case models.DocumentStatusRejected:
			resp.Rejected++
		}
		if d.IsDuplicate {
			resp.Duplicates++
		}
	}
	resp.StatusCounts = []StatusCount{
		{Name: "Pending", Value: resp.Pending, Status: models.DocumentStatusPending},
		{Name: "Approved", Value: resp.Approved, Status: models.DocumentStatusApproved},
		{Name: "Rejected", Value: resp.Rejected, Status: models.DocumentStatusRejected},
	}

	resp.Trends, resp.DocumentSeries = buildTrends(docs, q)
	resp.Anomalies = DetectAnomalies(docs, q.AnomalyFactor)
	resp.SpendingInsights = buildSpendingInsights(docs)

	return resp
}

// TruncateToBucket aligns t to the calendar boundary of its bucket.
func TruncateToBucket(t time.Time, g Granularity) time.Time {
	t = t.UTC()
	switch g {
	case GranularityMinute:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
	case GranularityHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nextBucket(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityMinute:
		return t.Add(time.Minute)
	case GranularityHour:
		return t.Add(time.Hour)
	case GranularityMonth:
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(0, 0, 1)
}

func bucketKey(t time.Time, g Granularity) string {
	switch g {
	case GranularityMinute:
		return t.Format("2006-01-02 15:04")
	case GranularityHour:
		return t.Format("2006-01-02 15:00")
	case GranularityMonth:
		return t.Format("2006-01")
	}
	return t.Format("2006-01-02")
}

// CountBuckets reports how many buckets span [start,end]; boundary
// handlers use it to refuse pathological ranges before building them.
// Computed arithmetically so a multi-century span costs nothing.
func CountBuckets(start, end time.Time, g Granularity) int {
	from := TruncateToBucket(start, g)
	to := TruncateToBucket(end, g)
	if to.Before(from) {
		return 0
	}
	switch g {
	case GranularityMinute:
		return int(to.Sub(from)/time.Minute) + 1
	case GranularityHour:
		return int(to.Sub(from)/time.Hour) + 1
	case GranularityMonth:
		return (to.Year()-from.Year())*12 + int(to.Month()-from.Month()) + 1
	}
	return int(to.Sub(from)/(24*time.Hour)) + 1
}

// buildTrends buckets documents on their extracted date field (not the
// ingestion timestamp) and emits every bucket across the range, empty
// ones included. Documents without a date cannot be placed on the axis
// and are left out of the series.
func buildTrends(docs []*models.Document, q InsightsQuery) ([]TrendPoint, []DocumentSeries) {
	g := q.Granularity
	if g == "" {
		g = GranularityDay
	}

	inRange := func(t time.Time) bool {
		if q.Start != nil && t.Before(*q.Start) {
			return false
		}
		if q.End != nil && t.After(*q.End) {
			return false
		}
		return true
	}

	var dated []*models.Document
	var axisStart, axisEnd time.Time
	for _, d := range docs {
		if d.Date == nil || !inRange(*d.Date) {
			continue
		}
		dated = append(dated, d)
		if axisStart.IsZero() || d.Date.Before(axisStart) {
			axisStart = *d.Date
		}
		if axisEnd.IsZero() || d.Date.After(axisEnd) {
			axisEnd = *d.Date
		}
	}
	if q.Start != nil {
		axisStart = *q.Start
	}
	if q.End != nil {
		axisEnd = *q.End
	}
	if axisStart.IsZero() || axisEnd.IsZero() {
		return []TrendPoint{}, []DocumentSeries{}
	}

	// The axis defaults to min..max document date, which an uploaded
	// invoice controls. Degrade granularity until the bucket count is
	// sane; as a last resort keep only the newest MaxTrendBuckets.
	for CountBuckets(axisStart, axisEnd, g) > MaxTrendBuckets {
		switch g {
		case GranularityMinute:
			g = GranularityHour
		case GranularityHour:
			g = GranularityDay
		case GranularityDay:
			g = GranularityMonth
		default:
			axisStart = TruncateToBucket(axisEnd, g).AddDate(0, -(MaxTrendBuckets - 1), 0)
		}
	}

	series := make([]DocumentSeries, 0, len(dated))
	for _, d := range dated {
		name := d.Filename
		if name == "" {
			name = fmt.Sprintf("Doc %d", d.ID)
		}
		series = append(series, DocumentSeries{Key: fmt.Sprintf("doc_%d", d.ID), Name: name})
	}

	from := TruncateToBucket(axisStart, g)
	to := TruncateToBucket(axisEnd, g)
	var points []TrendPoint
	index := map[string]int{}
	for b := from; !b.After(to); b = nextBucket(b, g) {
		p := TrendPoint{
			Period: bucketKey(b, g),
			Spend:  decimal.Zero,
			Series: make(map[string]decimal.Decimal, len(series)),
		}
		for _, s := range series {
			p.Series[s.Key] = decimal.Zero
		}
		index[p.Period] = len(points)
		points = append(points, p)
	}

	for _, d := range dated {
		key := bucketKey(TruncateToBucket(*d.Date, g), g)
		i, ok := index[key]
		if !ok {
			continue
		}
		amount := decimal.Zero
		if d.Amount != nil {
			amount = d.Amount.Round(2)
		}
		points[i].Documents++
		points[i].Spend = points[i].Spend.Add(amount)
		points[i].Series[fmt.Sprintf("doc_%d", d.ID)] = amount
	}

	return points, series
}

// DetectAnomalies flags documents whose amount exceeds
// mean + factor*stddev over the snapshot. Small or uniform samples
// yield no anomalies rather than a division error.
func DetectAnomalies(docs []*models.Document, factor float64) []AnomalyItem {
	if factor <= 0 {
		factor = DefaultAnomalyFactor
	}

	var amounts []float64
	for _, d := range docs {
		if d.Amount != nil {
			amounts = append(amounts, d.Amount.InexactFloat64())
		}
	}
	if len(amounts) < anomalyMinSamples {
		return []AnomalyItem{}
	}

	var sum float64
	for _, a := range amounts {
		sum += a
	}
	mean := sum / float64(len(amounts))
	var variance float64
	for _, a := range amounts {
		variance += (a - mean) * (a - mean)
	}
	variance /= float64(len(amounts))
	std := math.Sqrt(variance)
	if std == 0 {
		return []AnomalyItem{}
	}
	threshold := mean + factor*std

	anomalies := []AnomalyItem{}
	for _, d := range docs {
		if d.Amount == nil {
			continue
		}
		if d.Amount.InexactFloat64() > threshold {
			anomalies = append(anomalies, AnomalyItem{
				ID:       d.ID,
				Filename: d.Filename,
				Vendor:   d.Vendor,
				Amount:   *d.Amount,
			})
		}
	}
	return anomalies
}

func buildSpendingInsights(docs []*models.Document) SpendingInsights {
	total := decimal.Zero
	count := 0
	byStatus := map[models.DocumentStatus]decimal.Decimal{}
	for _, d := range docs {
		if d.Amount == nil {
			continue
		}
		total = total.Add(*d.Amount)
		count++
		byStatus[d.Status] = byStatus[d.Status].Add(*d.Amount)
	}
	avg := decimal.Zero
	if count > 0 {
		avg = total.Div(decimal.NewFromInt(int64(count))).Round(2)
	}
	return SpendingInsights{
		TotalSpend:    total,
		DocumentCount: count,
		AverageAmount: avg,
		TopVendors:    RankVendors(docs),
		ByStatus:      byStatus,
	}
}

// RankVendors sums amounts per vendor and orders descending, ties
// broken by vendor name ascending. The full ranking comes back; top-N
// truncation belongs to the presentation boundary.
func RankVendors(docs []*models.Document) []VendorTotal {
	totals := map[string]*VendorTotal{}
	for _, d := range docs {
		vendor := "Unknown"
		if d.Vendor != nil && *d.Vendor != "" {
			vendor = *d.Vendor
		}
		vt := totals[vendor]
		if vt == nil {
			vt = &VendorTotal{Vendor: vendor, Total: decimal.Zero}
			totals[vendor] = vt
		}
		vt.Count++
		if d.Amount != nil {
			vt.Total = vt.Total.Add(*d.Amount)
		}
	}

	ranked := make([]VendorTotal, 0, len(totals))
	for _, vt := range totals {
		ranked = append(ranked, *vt)
	}
	sort.Slice(ranked, func(i, j int) bool {
		cmp := ranked[i].Total.Cmp(ranked[j].Total)
		if cmp != 0 {
			return cmp > 0
		}
		return ranked[i].Vendor < ranked[j].Vendor
	})
	return ranked
}
