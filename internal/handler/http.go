package handler

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/amaumene/vodarr/internal/domain"
	"github.com/amaumene/vodarr/internal/service"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Registry is the subset of storage.Registry exposed over HTTP.
type Registry interface {
	Mark(id domain.ContentID, filename string, sizeMB float64) error
	MarkBatch(records []domain.DownloadRecord) error
	Unmark(id domain.ContentID) error
	List() []domain.DownloadRecord
}

type Deps struct {
	Queue        *service.Queue
	Worker       *service.Worker
	Status       *service.StatusReporter
	Scanner      *service.Scanner
	Library      *service.Library
	Registry     Registry
	Catalog      domain.Catalog
	History      domain.HistoryRepository
	DownloadDir  string
	HistoryLimit int
}

type HTTPHandler struct {
	deps Deps
}

func NewHTTPHandler(deps Deps) *HTTPHandler {
	return &HTTPHandler{deps: deps}
}

// response is the envelope of every reply.
type response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type enqueueRequest struct {
	ContentID domain.ContentID `json:"content_id"`
	Title     string           `json:"title"`
	Extension string           `json:"extension"`
	Force     bool             `json:"force"`
}

type reorderRequest struct {
	JobIDs []string `json:"job_ids"`
}

type markRequest struct {
	ContentID domain.ContentID `json:"content_id"`
	Filename  string           `json:"filename"`
	SizeMB    float64          `json:"size_mb"`
}

type markBatchRequest struct {
	Records []markRequest `json:"records"`
}

// NewApp returns a fiber app with every route registered.
func NewApp(h *HTTPHandler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "vodarr",
		Immutable:             true,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	h.RegisterRoutes(app)
	return app
}

func (h *HTTPHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.handleHealth)

	api := app.Group("/api")
	api.Get("/queue", h.handleListQueue)
	api.Post("/queue", h.handleEnqueue)
	api.Delete("/queue", h.handleClearQueue)
	api.Put("/queue/order", h.handleReorder)
	api.Delete("/queue/:jobID", h.handleRemoveJob)

	api.Post("/worker/:action", h.handleWorkerControl)
	api.Get("/status", h.handleStatus)

	api.Get("/downloads", h.handleListDownloads)
	api.Post("/downloads", h.handleMark)
	api.Post("/downloads/batch", h.handleMarkBatch)
	api.Delete("/downloads/:contentID", h.handleUnmark)
	api.Post("/series/:seriesID/mark", h.handleMarkSeries)

	api.Post("/scan", h.handleScan)
	api.Get("/history", h.handleHistory)
}

func (h *HTTPHandler) handleHealth(c *fiber.Ctx) error {
	return ok(c, "healthy", nil)
}

func (h *HTTPHandler) handleListQueue(c *fiber.Ctx) error {
	return ok(c, "", h.deps.Queue.List())
}

func (h *HTTPHandler) handleEnqueue(c *fiber.Ctx) error {
	var req enqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}

	if req.Title == "" && h.deps.Catalog != nil && !req.ContentID.IsZero() {
		title, err := h.deps.Catalog.ResolveTitle(c.UserContext(), req.ContentID)
		if err != nil {
			log.WithFields(log.Fields{
				"contentID": req.ContentID.String(),
				"error":     err,
			}).Debug("could not resolve title")
		}
		req.Title = title
	}

	jobID, err := h.deps.Queue.Enqueue(domain.EnqueueRequest{
		ContentID: req.ContentID,
		Title:     req.Title,
		Extension: req.Extension,
		Force:     req.Force,
	})
	if err != nil {
		return err
	}

	label := req.Title
	if label == "" {
		label = req.ContentID.String()
	}
	c.Status(fiber.StatusCreated)
	return ok(c, fmt.Sprintf("queued %s", label), fiber.Map{"job_id": jobID})
}

func (h *HTTPHandler) handleClearQueue(c *fiber.Ctx) error {
	n := h.deps.Queue.Clear()
	return ok(c, fmt.Sprintf("cleared %d pending jobs", n), fiber.Map{"cleared": n})
}

func (h *HTTPHandler) handleReorder(c *fiber.Ctx) error {
	var req reorderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	if err := h.deps.Queue.Reorder(req.JobIDs); err != nil {
		return err
	}
	return ok(c, "queue reordered", h.deps.Queue.List())
}

func (h *HTTPHandler) handleRemoveJob(c *fiber.Ctx) error {
	label, err := h.deps.Queue.Remove(c.Params("jobID"))
	if err != nil {
		return err
	}
	return ok(c, fmt.Sprintf("removed %s", label), nil)
}

func (h *HTTPHandler) handleWorkerControl(c *fiber.Ctx) error {
	var err error
	action := c.Params("action")
	switch action {
	case "pause":
		err = h.deps.Worker.Pause()
	case "resume":
		err = h.deps.Worker.Resume()
	case "stop":
		err = h.deps.Worker.Stop()
	default:
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("unknown worker action %q", action))
	}
	if err != nil {
		return err
	}
	return ok(c, fmt.Sprintf("worker %s", h.deps.Worker.State()), h.deps.Status.Report())
}

func (h *HTTPHandler) handleStatus(c *fiber.Ctx) error {
	return ok(c, "", h.deps.Status.Report())
}

func (h *HTTPHandler) handleListDownloads(c *fiber.Ctx) error {
	return ok(c, "", h.deps.Registry.List())
}

func (h *HTTPHandler) handleMark(c *fiber.Ctx) error {
	var req markRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}
	if req.ContentID.IsZero() {
		return fmt.Errorf("%w: content_id is required", domain.ErrValidation)
	}
	if err := h.deps.Registry.Mark(req.ContentID, req.Filename, req.SizeMB); err != nil {
		return err
	}
	return ok(c, fmt.Sprintf("marked %s as downloaded", req.ContentID), nil)
}

func (h *HTTPHandler) handleMarkBatch(c *fiber.Ctx) error {
	var req markBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(err)
	}

	records := make([]domain.DownloadRecord, 0, len(req.Records))
	for _, r := range req.Records {
		if r.ContentID.IsZero() {
			return fmt.Errorf("%w: content_id is required", domain.ErrValidation)
		}
		records = append(records, domain.DownloadRecord{
			ContentID: r.ContentID,
			Filename:  r.Filename,
			SizeMB:    r.SizeMB,
		})
	}
	if err := h.deps.Registry.MarkBatch(records); err != nil {
		return err
	}
	return ok(c, fmt.Sprintf("marked %d items as downloaded", len(records)), fiber.Map{"marked": len(records)})
}

func (h *HTTPHandler) handleUnmark(c *fiber.Ctx) error {
	id, err := domain.ParseContentID(c.Params("contentID"))
	if err != nil {
		return err
	}
	if err := h.deps.Registry.Unmark(id); err != nil {
		return err
	}
	return ok(c, fmt.Sprintf("removed %s from downloads", id), nil)
}

func (h *HTTPHandler) handleMarkSeries(c *fiber.Ctx) error {
	seriesID, err := strconv.ParseInt(c.Params("seriesID"), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: series id must be numeric", domain.ErrValidation)
	}

	n, err := h.deps.Library.MarkSeries(c.UserContext(), seriesID)
	if err != nil {
		return err
	}
	return ok(c, fmt.Sprintf("marked %d episodes as downloaded", n), fiber.Map{"marked": n})
}

func (h *HTTPHandler) handleScan(c *fiber.Ctx) error {
	report, err := h.deps.Scanner.Run(c.UserContext(), h.deps.Catalog, h.deps.DownloadDir)
	if err != nil {
		return err
	}
	return ok(c, fmt.Sprintf("matched %d of %d files", report.Matched, report.FilesFound), report)
}

func (h *HTTPHandler) handleHistory(c *fiber.Ctx) error {
	if raw := c.Query("content_id"); raw != "" {
		id, err := domain.ParseContentID(raw)
		if err != nil {
			return err
		}
		entries, err := h.deps.History.FindByContentID(c.UserContext(), id)
		if err != nil {
			return fmt.Errorf("%w: reading history: %v", domain.ErrPersistence, err)
		}
		return ok(c, "", entries)
	}

	limit := c.QueryInt("limit", h.deps.HistoryLimit)
	if limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", domain.ErrValidation)
	}

	entries, err := h.deps.History.Recent(c.UserContext(), limit)
	if err != nil {
		return fmt.Errorf("%w: reading history: %v", domain.ErrPersistence, err)
	}
	return ok(c, "", entries)
}

func ok(c *fiber.Ctx, message string, data interface{}) error {
	return c.JSON(response{Status: statusOK, Message: message, Data: data})
}

func badRequest(err error) error {
	return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
}

// errorHandler turns any error returned by a route into the response envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	code := statusCode(err)
	if code >= fiber.StatusInternalServerError {
		log.WithFields(log.Fields{
			"path":  c.Path(),
			"error": err,
		}).Error("request failed")
	}
	return c.Status(code).JSON(response{Status: statusError, Message: err.Error()})
}

func statusCode(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, domain.ErrAlreadyQueued),
		errors.Is(err, domain.ErrAlreadyDownloaded),
		errors.Is(err, domain.ErrInvalidState):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidPermutation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrFetch):
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}
