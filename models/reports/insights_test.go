package reports

import (
	"reflect"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/docflow_backend/models"
	"github.com/shopspring/decimal"
)

// The engine is a pure function of (snapshot, query); everything here
// runs without a database.

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func timePtr(t time.Time) *time.Time { return &t }

func doc(id int, vendor, amount string, status models.DocumentStatus, date time.Time) *models.Document {
	d := &models.Document{
		ID:       id,
		Filename: "invoice.pdf",
		Status:   status,
		Date:     timePtr(date),
	}
	if vendor != "" {
		d.Vendor = strPtr(vendor)
	}
	if amount != "" {
		d.Amount = decPtr(amount)
	}
	return d
}

func TestBuildInsights_EmptySnapshot(t *testing.T) {
	resp := BuildInsights(nil, InsightsQuery{})

	if resp.DocumentsUploaded != 0 || resp.Pending != 0 || resp.Approved != 0 || resp.Rejected != 0 || resp.Duplicates != 0 {
		t.Fatalf("empty snapshot should yield zero counters: %+v", resp)
	}
	if len(resp.Trends) != 0 || len(resp.Anomalies) != 0 || len(resp.DocumentSeries) != 0 {
		t.Fatal("empty snapshot should yield empty slices, not nil-driven omissions")
	}
	if !resp.SpendingInsights.TotalSpend.IsZero() || !resp.SpendingInsights.AverageAmount.IsZero() {
		t.Fatalf("empty snapshot should yield zero spend: %+v", resp.SpendingInsights)
	}
	if len(resp.StatusCounts) != 3 {
		t.Fatalf("status counts should always enumerate all three statuses, got %d", len(resp.StatusCounts))
	}
}

func TestBuildInsights_StatusAndDuplicateCounters(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	docs := []*models.Document{
		doc(1, "Acme", "100", models.DocumentStatusPending, day),
		doc(2, "Acme", "100", models.DocumentStatusApproved, day),
		doc(3, "Beta", "50", models.DocumentStatusRejected, day),
		doc(4, "Beta", "50", models.DocumentStatusPending, day),
	}
	docs[3].IsDuplicate = true

	resp := BuildInsights(docs, InsightsQuery{})
	if resp.DocumentsUploaded != 4 || resp.Pending != 2 || resp.Approved != 1 || resp.Rejected != 1 {
		t.Fatalf("counters wrong: %+v", resp)
	}
	if resp.Duplicates != 1 {
		t.Fatalf("duplicates = %d, want 1", resp.Duplicates)
	}
}

func TestBuildTrends_HourGranularityEmitsEmptyBuckets(t *testing.T) {
	d1 := doc(1, "Acme", "100.005", models.DocumentStatusPending, time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC))
	d2 := doc(2, "Beta", "40", models.DocumentStatusPending, time.Date(2025, 3, 10, 12, 45, 0, 0, time.UTC))

	q := InsightsQuery{
		Start:       timePtr(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)),
		End:         timePtr(time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)),
		Granularity: GranularityHour,
	}
	trends, series := buildTrends([]*models.Document{d1, d2}, q)

	if len(trends) != 5 {
		t.Fatalf("expected 5 hourly buckets 09:00..13:00, got %d", len(trends))
	}
	if trends[0].Period != "2025-03-10 09:00" || trends[4].Period != "2025-03-10 13:00" {
		t.Fatalf("bucket labels wrong: %s .. %s", trends[0].Period, trends[4].Period)
	}
	if len(series) != 2 {
		t.Fatalf("expected one series per dated document, got %d", len(series))
	}

	// Every bucket carries every series key, zero when idle.
	for _, p := range trends {
		for _, s := range series {
			if _, ok := p.Series[s.Key]; !ok {
				t.Fatalf("bucket %s missing series key %s", p.Period, s.Key)
			}
		}
	}
	if trends[1].Documents != 0 || !trends[1].Spend.IsZero() {
		t.Fatalf("10:00 should be an empty bucket: %+v", trends[1])
	}

	// Amounts land in their bucket, rounded to cents.
	if trends[0].Documents != 1 || !trends[0].Spend.Equal(decimal.RequireFromString("100.01")) {
		t.Fatalf("09:00 bucket wrong: docs=%d spend=%s", trends[0].Documents, trends[0].Spend)
	}
	if !trends[0].Series["doc_1"].Equal(decimal.RequireFromString("100.01")) {
		t.Fatalf("doc_1 series wrong in 09:00: %s", trends[0].Series["doc_1"])
	}
	if !trends[3].Series["doc_2"].Equal(decimal.RequireFromString("40")) {
		t.Fatalf("doc_2 series wrong in 12:00: %s", trends[3].Series["doc_2"])
	}
}

func TestBuildTrends_UndatedDocumentsStayOffTheAxis(t *testing.T) {
	dated := doc(1, "Acme", "100", models.DocumentStatusPending, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	undated := &models.Document{ID: 2, Filename: "nodate.pdf", Amount: decPtr("999")}

	trends, series := buildTrends([]*models.Document{dated, undated}, InsightsQuery{Granularity: GranularityDay})
	if len(series) != 1 || series[0].Key != "doc_1" {
		t.Fatalf("only the dated document should get a series: %+v", series)
	}
	if len(trends) != 1 || trends[0].Documents != 1 {
		t.Fatalf("axis should span only the dated document: %+v", trends)
	}
}

func TestBuildInsights_Deterministic(t *testing.T) {
	docs := []*models.Document{
		doc(1, "Acme", "100", models.DocumentStatusPending, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)),
		doc(2, "Beta", "40", models.DocumentStatusApproved, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)),
		doc(3, "", "75", models.DocumentStatusPending, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)),
	}
	q := InsightsQuery{Granularity: GranularityDay}

	first := BuildInsights(docs, q)
	second := BuildInsights(docs, q)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical inputs must produce identical output")
	}
}

func TestDetectAnomalies_SmallOrUniformSamples(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	one := []*models.Document{doc(1, "Acme", "5000", models.DocumentStatusPending, day)}
	if got := DetectAnomalies(one, DefaultAnomalyFactor); len(got) != 0 {
		t.Fatalf("single sample should yield no anomalies, got %d", len(got))
	}

	uniform := []*models.Document{
		doc(1, "Acme", "100", models.DocumentStatusPending, day),
		doc(2, "Acme", "100", models.DocumentStatusPending, day),
		doc(3, "Acme", "100", models.DocumentStatusPending, day),
	}
	if got := DetectAnomalies(uniform, DefaultAnomalyFactor); len(got) != 0 {
		t.Fatalf("zero stddev should yield no anomalies, got %d", len(got))
	}
}

func TestDetectAnomalies_FlagsOutlier(t *testing.T) {
	// A single outlier among n samples has z at most (n-1)/sqrt(n) under
	// the population stddev, so the baseline must be wide enough for any
	// point to clear mean + 2*stddev.
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	docs := []*models.Document{
		doc(1, "Acme", "95", models.DocumentStatusPending, day),
		doc(2, "Acme", "100", models.DocumentStatusPending, day),
		doc(3, "Acme", "100", models.DocumentStatusPending, day),
		doc(4, "Acme", "105", models.DocumentStatusPending, day),
		doc(5, "Acme", "110", models.DocumentStatusPending, day),
		doc(6, "Acme", "90", models.DocumentStatusPending, day),
		doc(7, "Acme", "100", models.DocumentStatusPending, day),
		doc(8, "Beta", "5000", models.DocumentStatusPending, day),
	}
	// mean = 712.5, stddev ~ 1620.5, threshold ~ 3953.6: only 5000 clears it.
	got := DetectAnomalies(docs, DefaultAnomalyFactor)
	if len(got) != 1 || got[0].ID != 8 {
		t.Fatalf("expected only the 5000 outlier, got %+v", got)
	}
}

func TestBuildInsights_RangeRestrictsEveryAggregate(t *testing.T) {
	inRange1 := doc(1, "Acme", "50", models.DocumentStatusPending, time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC))
	inRange2 := doc(2, "Beta", "150", models.DocumentStatusPending, time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC))
	outside := doc(3, "Gamma", "99999", models.DocumentStatusApproved, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	outside.IsDuplicate = true

	q := InsightsQuery{
		Start:       timePtr(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)),
		End:         timePtr(time.Date(2025, 3, 11, 23, 59, 59, 0, time.UTC)),
		Granularity: GranularityDay,
	}
	resp := BuildInsights([]*models.Document{inRange1, inRange2, outside}, q)

	if resp.DocumentsUploaded != 2 || resp.Pending != 2 || resp.Approved != 0 {
		t.Fatalf("counters must cover the in-range set only: %+v", resp)
	}
	if resp.Duplicates != 0 {
		t.Fatalf("out-of-range duplicate leaked into the count: %d", resp.Duplicates)
	}
	if !resp.SpendingInsights.TotalSpend.Equal(decimal.RequireFromString("200")) {
		t.Fatalf("total spend = %s, want 200", resp.SpendingInsights.TotalSpend)
	}
	for _, a := range resp.Anomalies {
		if a.ID == outside.ID {
			t.Fatal("out-of-range document surfaced as an anomaly")
		}
	}
	for _, v := range resp.SpendingInsights.TopVendors {
		if v.Vendor == "Gamma" {
			t.Fatal("out-of-range vendor surfaced in the ranking")
		}
	}
}

func TestBuildTrends_WideAxisDegradesGranularity(t *testing.T) {
	// No explicit range: the axis spans min..max document date, and the
	// dates come out of parsed invoice text. A year apart at minute
	// granularity must not enumerate half a million buckets.
	docs := []*models.Document{
		doc(1, "Acme", "100", models.DocumentStatusPending, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		doc(2, "Beta", "200", models.DocumentStatusPending, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	trends, _ := buildTrends(docs, InsightsQuery{Granularity: GranularityMinute})

	if len(trends) == 0 || len(trends) > MaxTrendBuckets {
		t.Fatalf("axis has %d buckets, want 1..%d", len(trends), MaxTrendBuckets)
	}
	// 2024 is a leap year: 366*24+1 hourly buckets.
	if len(trends) != 8785 {
		t.Fatalf("expected hourly fallback with 8785 buckets, got %d", len(trends))
	}
	placed := 0
	for _, p := range trends {
		placed += p.Documents
	}
	if placed != 2 {
		t.Fatalf("both documents must land on the degraded axis, placed %d", placed)
	}
}

func TestRankVendors_OrderingAndUnknown(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	docs := []*models.Document{
		doc(1, "Beta", "100", models.DocumentStatusPending, day),
		doc(2, "Acme", "100", models.DocumentStatusPending, day),
		doc(3, "Acme", "50", models.DocumentStatusPending, day),
		doc(4, "", "30", models.DocumentStatusPending, day),
	}
	ranked := RankVendors(docs)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 vendors, got %d", len(ranked))
	}
	if ranked[0].Vendor != "Acme" || !ranked[0].Total.Equal(decimal.RequireFromString("150")) || ranked[0].Count != 2 {
		t.Fatalf("top vendor wrong: %+v", ranked[0])
	}
	if ranked[1].Vendor != "Beta" {
		t.Fatalf("second vendor wrong: %+v", ranked[1])
	}
	if ranked[2].Vendor != "Unknown" {
		t.Fatalf("nil vendor should rank as Unknown: %+v", ranked[2])
	}
}

func TestRankVendors_TiesBreakByName(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	docs := []*models.Document{
		doc(1, "Zeta", "100", models.DocumentStatusPending, day),
		doc(2, "Alpha", "100", models.DocumentStatusPending, day),
	}
	ranked := RankVendors(docs)
	if ranked[0].Vendor != "Alpha" || ranked[1].Vendor != "Zeta" {
		t.Fatalf("equal totals should order by vendor name: %+v", ranked)
	}
}

func TestCountBuckets(t *testing.T) {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	if n := CountBuckets(start, end, GranularityDay); n != 3 {
		t.Fatalf("day buckets = %d, want 3", n)
	}
	if n := CountBuckets(start, start.Add(2*time.Hour), GranularityMinute); n != 121 {
		t.Fatalf("minute buckets = %d, want 121", n)
	}
	if n := CountBuckets(end, start, GranularityDay); n != 0 {
		t.Fatalf("reversed range should count 0 buckets, got %d", n)
	}
}

func TestBuildSpendSummary_TotalsAndCount(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	docs := []*models.Document{
		doc(1, "Acme", "100.50", models.DocumentStatusPending, day),
		doc(2, "Beta", "49.50", models.DocumentStatusApproved, day),
		doc(3, "Gamma", "", models.DocumentStatusPending, day),
	}
	resp := BuildSpendSummary(docs)
	if !resp.Total.Equal(decimal.RequireFromString("150")) {
		t.Fatalf("total = %s, want 150", resp.Total)
	}
	if resp.Count != 3 {
		t.Fatalf("count covers all documents, got %d", resp.Count)
	}
}

func TestBuildTaxReport_VatRollup(t *testing.T) {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	d1 := doc(1, "Acme", "100", models.DocumentStatusApproved, day)
	d1.Vat = decPtr("15")
	d2 := doc(2, "Beta", "200", models.DocumentStatusPending, day)
	d2.Vat = decPtr("30")
	d3 := doc(3, "Gamma", "", models.DocumentStatusPending, day)

	resp := BuildTaxReport([]*models.Document{d1, d2, d3})
	if !resp.TotalAmount.Equal(decimal.RequireFromString("300")) {
		t.Fatalf("total amount = %s, want 300", resp.TotalAmount)
	}
	if !resp.TotalVat.Equal(decimal.RequireFromString("45")) {
		t.Fatalf("total vat = %s, want 45", resp.TotalVat)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("items should echo the snapshot, got %d", len(resp.Items))
	}
}
