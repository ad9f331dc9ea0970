package main

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/docflow_backend/config"
	"bitbucket.org/mmdatafocus/docflow_backend/models"
	"bitbucket.org/mmdatafocus/docflow_backend/models/reports"
	"bitbucket.org/mmdatafocus/docflow_backend/utils"
	"github.com/gin-gonic/gin"
)

const (
	defaultTopVendors  = 10
	insightsTopVendors = 10
	maxAnomalies       = 20
)

func truncateVendors(vendors []reports.VendorTotal, n int) []reports.VendorTotal {
	if n > 0 && len(vendors) > n {
		return vendors[:n]
	}
	return vendors
}

func reportSnapshot(c *gin.Context) ([]*models.Document, *models.DocumentFilter, bool) {
	if _, ok := sessionClaims(c); !ok {
		return nil, nil, false
	}
	filter, err := parseDocumentFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	docs, err := models.ListDocuments(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load documents"})
		return nil, nil, false
	}
	return docs, filter, true
}

func spendSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, _, ok := reportSnapshot(c)
		if !ok {
			return
		}
		resp := reports.BuildSpendSummary(docs)
		resp.TopVendors = truncateVendors(resp.TopVendors, intQuery(c, "top", defaultTopVendors))
		c.JSON(http.StatusOK, gin.H{"data": resp})
	}
}

func vendorAnalysisHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, _, ok := reportSnapshot(c)
		if !ok {
			return
		}
		resp := reports.BuildVendorAnalysis(docs)
		if top := intQuery(c, "top", 0); top > 0 {
			resp.Vendors = truncateVendors(resp.Vendors, top)
		}
		c.JSON(http.StatusOK, gin.H{"data": resp})
	}
}

func taxReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, _, ok := reportSnapshot(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": reports.BuildTaxReport(docs)})
	}
}

func reportListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, _, ok := reportSnapshot(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": docs, "count": len(docs)})
	}
}

func anomalyFactor(c *gin.Context) float64 {
	if v := strings.TrimSpace(c.Query("factor")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	if v := strings.TrimSpace(os.Getenv("ANOMALY_STDDEV_FACTOR")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return reports.DefaultAnomalyFactor
}

func insightsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := sessionClaims(c); !ok {
			return
		}
		filter, err := parseDocumentFilter(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// The range keys on the document date, not the ingestion
		// timestamp: move it out of the created_at row filter and let
		// the engine restrict every aggregate to the in-range set.
		query := reports.InsightsQuery{
			Start:         filter.Start,
			End:           filter.End,
			Granularity:   reports.ParseGranularity(c.Query("granularity")),
			AnomalyFactor: anomalyFactor(c),
		}
		filter.Start = nil
		filter.End = nil
		filter.Skip = 0
		filter.Limit = 0

		if query.Start != nil && query.End != nil {
			if query.End.Before(*query.Start) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "end must not be before start"})
				return
			}
			if reports.CountBuckets(*query.Start, *query.End, query.Granularity) > reports.MaxTrendBuckets {
				c.JSON(http.StatusBadRequest, gin.H{"error": "range too wide for the requested granularity"})
				return
			}
		}

		cacheKey := "insights:" + c.Request.URL.RawQuery
		if cached, ok := reports.CachedInsights(cacheKey); ok {
			c.JSON(http.StatusOK, gin.H{"data": cached})
			return
		}

		docs, err := models.ListDocuments(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load documents"})
			return
		}

		resp := reports.BuildInsights(docs, query)
		if len(resp.Anomalies) > maxAnomalies {
			resp.Anomalies = resp.Anomalies[:maxAnomalies]
		}
		resp.SpendingInsights.TopVendors = truncateVendors(resp.SpendingInsights.TopVendors, insightsTopVendors)

		reports.StoreInsights(cacheKey, resp)
		c.JSON(http.StatusOK, gin.H{"data": resp})
	}
}

func exportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		docs, _, ok := reportSnapshot(c)
		if !ok {
			return
		}

		artifact, err := reports.ExportDocuments(c.Param("format"), docs, time.Now())
		if err != nil {
			if errors.Is(err, utils.ErrorUnsupportedFormat) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			config.LogError(logger, "reports.go", "exportHandler", "render export", c.Param("format"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render export"})
			return
		}

		c.Header("Content-Disposition", `attachment; filename="`+artifact.Filename+`"`)
		c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
	}
}
