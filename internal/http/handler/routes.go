package handler

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"filevault/internal/service"
)

// UserIDHeader carries the acting user's identifier. The upstream gateway is
// trusted to have authenticated and authorized the caller; no authorization
// logic lives here.
const UserIDHeader = "X-User-ID"

// Options carry the operator-tunable defaults for the HTTP surface.
type Options struct {
	// DefaultPresignExpiry is used when a download request does not specify
	// an expiry. Zero falls through to the storage default (3600s).
	DefaultPresignExpiry time.Duration
	// DefaultSweepGrace is the reconciliation grace window used when the
	// request does not specify older_than_minutes.
	DefaultSweepGrace time.Duration
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay free of business logic — parsing and translation only.
func RegisterRoutes(app *fiber.App, db *sql.DB, fileSvc service.FileService, reg *prometheus.Registry, opts Options) {
	// Serve OpenAPI spec and Swagger UI
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Type("yaml")
		return c.SendFile("openapi.yaml")
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
		return c.Type("html").SendString(html)
	})

	app.Get("/health", HealthCheck(db))

	// Simple liveness probe
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	if reg != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	app.Post("/entities/:entityType/:entityId/files", UploadFile(fileSvc))
	app.Get("/entities/:entityType/:entityId/files", ListEntityFiles(fileSvc))
	app.Get("/files/:id", GetFile(fileSvc))
	app.Get("/files/:id/download", DownloadFile(fileSvc, opts.DefaultPresignExpiry))
	app.Delete("/files/:id", DeleteFile(fileSvc))

	app.Post("/admin/reconcile", ReconcileOrphans(fileSvc, opts.DefaultSweepGrace))
}

// HealthCheck reports readiness based on DB connectivity.
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

// UploadFile ingests a multipart upload (field name: file) for an entity.
func UploadFile(fileSvc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entityType, entityID, ok := entityParams(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ENTITY", "invalid entity reference")
		}

		uploadedBy, err := strconv.ParseInt(c.Get(UserIDHeader), 10, 64)
		if err != nil || uploadedBy <= 0 {
			return writeError(c, fiber.StatusBadRequest, "USER_REQUIRED", "missing or invalid "+UserIDHeader+" header")
		}

		documentType := c.FormValue("document_type")
		if documentType == "" {
			return writeError(c, fiber.StatusBadRequest, "DOCUMENT_TYPE_REQUIRED", "document_type is required")
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = "application/octet-stream"
		}

		rec, err := fileSvc.Ingest(c.UserContext(), service.IngestRequest{
			Reader:       f,
			FileName:     fh.Filename,
			MimeType:     ct,
			DocumentType: documentType,
			EntityType:   entityType,
			EntityID:     entityID,
			UploadedBy:   uploadedBy,
			Notes:        c.FormValue("notes"),
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(rec)
	}
}

// ListEntityFiles returns an entity's records, newest upload first.
// The optional document_type query parameter narrows the listing.
func ListEntityFiles(fileSvc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entityType, entityID, ok := entityParams(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ENTITY", "invalid entity reference")
		}

		items, err := fileSvc.ListByEntity(c.UserContext(), entityType, entityID, c.Query("document_type"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"data": items, "total": len(items)})
	}
}

// GetFile returns a single record by ID.
func GetFile(fileSvc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		rec, err := fileSvc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(rec)
	}
}

// DownloadFile returns a time-limited signed URL for the record's blob.
func DownloadFile(fileSvc service.FileService, defaultExpiry time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		expirySec, err := strconv.Atoi(c.Query("expiry", "0"))
		if err != nil || expirySec < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_EXPIRY", "invalid expiry")
		}
		expiry := time.Duration(expirySec) * time.Second
		if expiry == 0 {
			expiry = defaultExpiry
		}

		url, err := fileSvc.DownloadURL(c.UserContext(), id, expiry)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"url": url})
	}
}

// DeleteFile removes a record and its blob.
func DeleteFile(fileSvc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := idParam(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := fileSvc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ReconcileOrphans triggers an orphan-blob sweep for one storage folder.
func ReconcileOrphans(fileSvc service.FileService, defaultGrace time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		folder := c.Query("folder")
		if folder == "" {
			return writeError(c, fiber.StatusBadRequest, "FOLDER_REQUIRED", "folder is required")
		}
		olderThanMin, err := strconv.Atoi(c.Query("older_than_minutes", "0"))
		if err != nil || olderThanMin < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_GRACE", "invalid older_than_minutes")
		}
		grace := time.Duration(olderThanMin) * time.Minute
		if grace == 0 {
			grace = defaultGrace
		}

		report, err := fileSvc.ReconcileOrphans(c.UserContext(), folder, grace)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(report)
	}
}

func entityParams(c *fiber.Ctx) (string, int64, bool) {
	entityType := c.Params("entityType")
	entityID, err := strconv.ParseInt(c.Params("entityId"), 10, 64)
	if entityType == "" || err != nil || entityID <= 0 {
		return "", 0, false
	}
	return entityType, entityID, true
}

func idParam(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
