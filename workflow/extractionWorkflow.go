package workflow

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"bitbucket.org/mmdatafocus/docflow_backend/config"
	"bitbucket.org/mmdatafocus/docflow_backend/models"
	"bitbucket.org/mmdatafocus/docflow_backend/utils"
	"github.com/bsm/redislock"
)

// TextExtractor turns stored document bytes into raw text. OCR for
// scanned formats is an external collaborator behind this interface;
// the shipped implementation only understands text-bearing payloads and
// returns empty text for anything else, which leaves the extracted
// fields null without failing the pipeline.
type TextExtractor interface {
	ExtractText(ctx context.Context, doc *models.Document) (string, error)
}

type PlainTextExtractor struct {
	Store utils.BlobStore
}

func (e *PlainTextExtractor) ExtractText(ctx context.Context, doc *models.Document) (string, error) {
	data, err := e.Store.Open(doc.ContentRef)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", nil
	}
	return string(data), nil
}

const extractionLockTTL = 2 * time.Minute

// ExtractionWorker runs the post-upload pipeline for one document:
// extract text, parse fields, merge them into the record and
// re-evaluate the duplicate flag. Failures are logged and swallowed; a
// document whose extraction never completes simply keeps null fields.
type ExtractionWorker struct {
	Extractor TextExtractor
}

func NewExtractionWorker(extractor TextExtractor) *ExtractionWorker {
	return &ExtractionWorker{Extractor: extractor}
}

func (w *ExtractionWorker) ProcessDocument(ctx context.Context, documentId int) {
	logger := config.GetLogger()

	// One extraction per document across replicas. Lost lock means
	// another instance is already on it; no redis means single
	// instance, proceed.
	if locker := config.GetRedisLock(); locker != nil {
		lock, err := locker.Obtain(ctx, fmt.Sprintf("extract:%d", documentId), extractionLockTTL, nil)
		if err == redislock.ErrNotObtained {
			return
		}
		if err != nil {
			config.LogError(logger, "workflow", "ProcessDocument", "obtain extraction lock", documentId, err)
		} else {
			defer lock.Release(ctx)
		}
	}

	doc, err := models.GetDocument(ctx, documentId)
	if err != nil {
		config.LogError(logger, "workflow", "ProcessDocument", "load document", documentId, err)
		return
	}

	text, err := w.Extractor.ExtractText(ctx, doc)
	if err != nil {
		// Extraction failure is not a document failure.
		config.LogError(logger, "workflow", "ProcessDocument", "extract text", documentId, err)
		text = ""
	}

	fields := ParseInvoiceFields(text)
	if text != "" {
		fields.RawText = &text
	}

	updated, err := models.UpdateExtractedFields(ctx, documentId, fields)
	if err != nil {
		config.LogError(logger, "workflow", "ProcessDocument", "merge extracted fields", documentId, err)
		return
	}

	if _, err := models.EvaluateDuplicate(ctx, updated); err != nil {
		config.LogError(logger, "workflow", "ProcessDocument", "evaluate duplicate", documentId, err)
	}
}
