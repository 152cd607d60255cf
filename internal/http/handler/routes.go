package handler

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arsip/internal/model"
	"arsip/internal/ocr"
	"arsip/internal/reconcile"
	"arsip/internal/service"
)

// OCRProber reports whether OCR binaries are usable on this host.
type OCRProber interface {
	Probe(ctx context.Context) ocr.Health
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers only translate HTTP to service calls.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService, prober OCRProber, gatherer prometheus.Gatherer) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())
	app.Get("/health/ocr", OCRHealth(prober))
	app.Get("/metrics", Metrics(gatherer))

	app.Get("/documents", ListDocuments(docSvc))
	app.Post("/documents", UploadDocument(docSvc))
	app.Post("/documents/analyze", AnalyzeDocument(docSvc))
	app.Get("/documents/:id", GetDocument(docSvc))
	app.Patch("/documents/:id", UpdateDocument(docSvc))
	app.Delete("/documents/:id", DeleteDocument(docSvc))
	app.Get("/documents/:id/file", DownloadDocument(docSvc))
	app.Get("/documents/:id/text", DocumentText(docSvc))

	app.Post("/reconcile", Reconcile(docSvc))
}

// HealthCheck checks DB connectivity only.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a plain liveness check.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// OCRHealth serializes the OCR probe. The archive keeps working without OCR, so an
// unavailable engine is reported but still answered with the probe body.
func OCRHealth(prober OCRProber) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if prober == nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "ocr is not configured")
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
		defer cancel()
		h := prober.Probe(ctx)
		status := fiber.StatusOK
		if !h.Available {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(h)
	}
}

func Metrics(gatherer prometheus.Gatherer) fiber.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// ListDocuments lists documents with limit & offset and optional kind, year and q filters.
func ListDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}
		year := 0
		if y := c.Query("year"); y != "" {
			if year, err = strconv.Atoi(y); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_YEAR", "invalid year")
			}
		}

		res, err := docSvc.List(c.UserContext(), service.ListParams{
			Limit:  limit,
			Offset: offset,
			Kind:   model.Kind(c.Query("kind")),
			Year:   year,
			Search: strings.TrimSpace(c.Query("q")),
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// UploadDocument ingests a multipart upload (field name: file).
// reject_duplicate=true fails with 409 instead of recording a back-reference.
func UploadDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		reject, _ := strconv.ParseBool(c.FormValue("reject_duplicate"))
		res, err := docSvc.Ingest(c.UserContext(), f, fh.Filename, fh.Header.Get("Content-Type"), service.IngestOptions{
			RejectDuplicate: reject,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	}
}

// AnalyzeDocument runs the pipeline on an upload without storing it.
func AnalyzeDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		res, err := docSvc.Analyze(c.UserContext(), f, fh.Filename, fh.Header.Get("Content-Type"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

func documentID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// GetDocument returns the index row of a document.
func GetDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := docSvc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// UpdateDocument applies a partial edit from a JSON body.
// Changing letter_date or kind needs ?confirm=true.
func UpdateDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var fields service.UpdateFields
		if err := c.BodyParser(&fields); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "body must be a JSON object")
		}
		doc, err := docSvc.Update(c.UserContext(), id, fields, c.QueryBool("confirm"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// DeleteDocument removes the files and the index row.
func DeleteDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := docSvc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DownloadDocument streams the archived bytes under the original filename.
func DownloadDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		rc, doc, err := docSvc.Open(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Attachment(doc.OriginalFilename)
		c.Set(fiber.HeaderContentType, doc.MimeType)
		// fasthttp closes rc once the body is written
		return c.SendStream(rc, int(doc.Size))
	}
}

// DocumentText returns the extracted text kept beside the document.
func DocumentText(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := documentID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		text, err := docSvc.Text(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
		return c.SendString(text)
	}
}

// Reconcile compares the index with the sidecars on disk (?mode=report|repair).
// A divergent report is still a 200; the body carries the findings.
func Reconcile(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		mode := reconcile.Mode(c.Query("mode", string(reconcile.ModeReport)))
		if !mode.Valid() {
			return writeError(c, fiber.StatusBadRequest, "INVALID_MODE", "mode must be report or repair")
		}
		rep, err := docSvc.Reconcile(c.UserContext(), mode)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(rep)
	}
}
