package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/docflow_backend/config"
	"bitbucket.org/mmdatafocus/docflow_backend/middlewares"
	"bitbucket.org/mmdatafocus/docflow_backend/models"
	"bitbucket.org/mmdatafocus/docflow_backend/utils"
	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxUploadSizeBytes int64 = 5 * 1024 * 1024

var allowedUploadExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".txt":  true,
}

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// sessionClaims pulls the validated JWT claims out of the request
// context. Anonymous requests get a 401 at the call site.
func sessionClaims(c *gin.Context) (*utils.JwtCustomClaim, bool) {
	claims := middlewares.CtxValue(c.Request.Context())
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return claims, true
}

func uploadDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		if _, ok := sessionClaims(c); !ok {
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if !allowedUploadExtensions[ext] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file type"})
			return
		}

		f, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxUploadSizeBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read file"})
			return
		}
		if int64(len(data)) > maxUploadSizeBytes {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file size exceeds 5MB limit"})
			return
		}

		contentRef, err := blobStore.Save(fileHeader.Filename, data)
		if err != nil {
			config.LogError(logger, "documents.go", "uploadDocumentHandler", "save blob", fileHeader.Filename, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
			return
		}

		thumbnailRef := ""
		if imageExtensions[ext] {
			// Thumbnail failure never blocks ingestion.
			thumbnailRef, err = createThumbnail(fileHeader.Filename, data)
			if err != nil {
				config.LogError(logger, "documents.go", "uploadDocumentHandler", "create thumbnail", fileHeader.Filename, err)
				thumbnailRef = ""
			}
		}

		doc, err := models.CreateDocument(c.Request.Context(), filepath.Base(fileHeader.Filename), contentRef, thumbnailRef)
		if err != nil {
			config.LogError(logger, "documents.go", "uploadDocumentHandler", "create document", fileHeader.Filename, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create document"})
			return
		}

		// Flag byte-identical re-uploads right away; extraction will
		// re-evaluate once fields are known.
		if _, err := models.EvaluateDuplicate(c.Request.Context(), doc); err != nil {
			config.LogError(logger, "documents.go", "uploadDocumentHandler", "evaluate duplicate", doc.ID, err)
		}

		go extractionWorker.ProcessDocument(context.Background(), doc.ID)

		logger.WithFields(logrus.Fields{
			"document_id": doc.ID,
			"filename":    doc.Filename,
			"content_ref": doc.ContentRef,
		}).Info("[document.upload]")

		c.JSON(http.StatusCreated, gin.H{"data": doc})
	}
}

func createThumbnail(filename string, data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	thumbnail := imaging.Resize(img, 200, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return "", err
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return blobStore.Save("thumb_"+base+".jpg", buf.Bytes())
}

// parseDocumentFilter reads the shared list/report query parameters.
// start and end accept a date or RFC 3339; a date-only end is pushed to
// the end of that day so the range is inclusive.
func parseDocumentFilter(c *gin.Context) (*models.DocumentFilter, error) {
	filter := &models.DocumentFilter{}

	if v := strings.TrimSpace(c.Query("status")); v != "" {
		status, ok := models.ParseDocumentStatus(v)
		if !ok {
			return nil, errors.New("status must be pending, approved or rejected")
		}
		filter.Status = status
	}
	filter.Vendor = strings.TrimSpace(c.Query("vendor"))

	if v := strings.TrimSpace(c.Query("start")); v != "" {
		t, _, err := parseTimeParam(v)
		if err != nil {
			return nil, errors.New("start must be YYYY-MM-DD or RFC 3339")
		}
		filter.Start = &t
	}
	if v := strings.TrimSpace(c.Query("end")); v != "" {
		t, dateOnly, err := parseTimeParam(v)
		if err != nil {
			return nil, errors.New("end must be YYYY-MM-DD or RFC 3339")
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Second)
		}
		filter.End = &t
	}

	if v := strings.TrimSpace(c.Query("amount_min")); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, errors.New("amount_min must be a number")
		}
		filter.AmountMin = &d
	}
	if v := strings.TrimSpace(c.Query("amount_max")); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, errors.New("amount_max must be a number")
		}
		filter.AmountMax = &d
	}

	filter.Skip = intQuery(c, "skip", 0)
	filter.Limit = intQuery(c, "limit", 0)
	return filter, nil
}

func parseTimeParam(v string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.ParseInLocation("2006-01-02", v, time.UTC); err == nil {
		return t, true, nil
	}
	if t, err = time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), false, nil
	}
	return time.Time{}, false, err
}

func intQuery(c *gin.Context, name string, def int) int {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func listDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := sessionClaims(c); !ok {
			return
		}
		filter, err := parseDocumentFilter(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		docs, err := models.ListDocuments(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": docs, "count": len(docs)})
	}
}

func documentIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return 0, false
	}
	return id, true
}

func getDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := sessionClaims(c); !ok {
			return
		}
		id, ok := documentIdParam(c)
		if !ok {
			return
		}
		doc, err := models.GetDocument(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": doc})
	}
}

func listApprovalsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := sessionClaims(c); !ok {
			return
		}
		id, ok := documentIdParam(c)
		if !ok {
			return
		}
		if _, err := models.GetDocument(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		approvals, err := models.ListApprovals(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list approvals"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": approvals})
	}
}

func approveDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		claims, ok := sessionClaims(c)
		if !ok {
			return
		}
		id, ok := documentIdParam(c)
		if !ok {
			return
		}

		var input models.NewApproval
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "action is required"})
			return
		}

		doc, err := models.ApplyApproval(c.Request.Context(), id, &input)
		if err != nil {
			switch {
			case errors.Is(err, utils.ErrorRecordNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			case errors.Is(err, utils.ErrorForbidden):
				c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			case errors.Is(err, utils.ErrorInvalidState), errors.Is(err, utils.ErrorConflict):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				config.LogError(logger, "documents.go", "approveDocumentHandler", "apply approval", id, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply approval"})
			}
			return
		}

		logger.WithFields(logrus.Fields{
			"document_id": doc.ID,
			"status":      doc.Status,
			"step":        doc.CurrentStep,
			"approver_id": claims.ID,
			"action":      input.Action,
		}).Info("[document.approval]")

		c.JSON(http.StatusOK, gin.H{"data": doc})
	}
}
