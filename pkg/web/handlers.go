package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/drafts/pkg/models"
	"github.com/dukex/drafts/pkg/search"
	"github.com/dukex/drafts/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

const (
	UserIDHeader      = "X-User-ID"
	UserRolesHeader   = "X-User-Roles"
	IndexStatusHeader = "X-Index-Status"
)

type APIHandlers struct {
	drafts    *services.Drafts
	validator *validator.Validate
	logger    *slog.Logger
}

func NewAPIHandlers(drafts *services.Drafts, validator *validator.Validate, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		drafts:    drafts,
		validator: validator,
		logger:    logger.With("module", "web"),
	}
}

// Routes registers every drafts endpoint on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	r := router.Group("/records")
	r.Post("/", h.CreateDraft)
	r.Get("/", h.SearchRecords)
	r.Get("/:id", h.ReadRecord)
	r.Get("/:id/draft", h.ReadDraft)
	r.Post("/:id/draft", h.EditRecord)
	r.Put("/:id/draft", h.UpdateDraft)
	r.Delete("/:id/draft", h.DeleteDraft)
	r.Post("/:id/draft/actions/publish", h.PublishDraft)
	r.Post("/:id/versions", h.NewVersion)

	router.Get("/user/records", h.SearchUserDrafts)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, ok := h.drafts.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Drafts API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if ok {
		status = "healthy"
		message = "Drafts API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateDraft(c fiber.Ctx) error {
	identity := identityFrom(c)
	if identity.IsAnonymous() {
		return unauthorized(c)
	}

	req, err := h.draftRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.drafts.Create(c.Context(), identity, req.Metadata)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return h.draft(c, fiber.StatusCreated, result)
}

func (h *APIHandlers) ReadDraft(c fiber.Ctx) error {
	result, err := h.drafts.ReadDraft(c.Context(), identityFrom(c), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return h.draft(c, fiber.StatusOK, result)
}

// EditRecord opens a published record for editing.
func (h *APIHandlers) EditRecord(c fiber.Ctx) error {
	result, err := h.drafts.Edit(c.Context(), identityFrom(c), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return h.draft(c, fiber.StatusCreated, result)
}

func (h *APIHandlers) UpdateDraft(c fiber.Ctx) error {
	revision, err := revisionFrom(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	req, err := h.draftRequest(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.drafts.UpdateDraft(c.Context(), identityFrom(c), c.Params("id"), req.Metadata, revision)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return h.draft(c, fiber.StatusOK, result)
}

func (h *APIHandlers) DeleteDraft(c fiber.Ctx) error {
	revision, err := revisionFrom(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.drafts.DeleteDraft(c.Context(), identityFrom(c), c.Params("id"), revision)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	setIndexStatus(c, result.Degraded())

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) PublishDraft(c fiber.Ctx) error {
	revision, err := revisionFrom(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.drafts.Publish(c.Context(), identityFrom(c), c.Params("id"), revision)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return h.record(c, fiber.StatusAccepted, result)
}

func (h *APIHandlers) NewVersion(c fiber.Ctx) error {
	result, err := h.drafts.NewVersion(c.Context(), identityFrom(c), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return h.draft(c, fiber.StatusCreated, result)
}

func (h *APIHandlers) ReadRecord(c fiber.Ctx) error {
	result, err := h.drafts.Read(c.Context(), identityFrom(c), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return h.record(c, fiber.StatusOK, result)
}

func (h *APIHandlers) SearchRecords(c fiber.Ctx) error {
	req, err := h.searchRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.drafts.Search(c.Context(), identityFrom(c), req.query())
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(newSearchResponse(req, result))
}

// SearchUserDrafts lists the caller's own drafts.
func (h *APIHandlers) SearchUserDrafts(c fiber.Ctx) error {
	identity := identityFrom(c)
	if identity.IsAnonymous() {
		return unauthorized(c)
	}

	req, err := h.searchRequest(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	query := req.query()
	query.CreatedBy = identity.ID

	result, err := h.drafts.SearchDrafts(c.Context(), identity, query)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(newSearchResponse(req, result))
}

func (h *APIHandlers) draftRequest(c fiber.Ctx) (*DraftRequest, error) {
	var req DraftRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, errInvalidJSON
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, err
	}

	return &req, nil
}

func (h *APIHandlers) searchRequest(c fiber.Ctx) (*SearchRequest, error) {
	var req SearchRequest
	if err := c.Bind().Query(&req); err != nil {
		return nil, err
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, err
	}

	return &req, nil
}

func (h *APIHandlers) draft(c fiber.Ctx, status int, result *services.DraftResult) error {
	setIndexStatus(c, result.Degraded())
	c.Set(fiber.HeaderETag, etag(result.Draft.RevisionID))

	return c.Status(status).JSON(newDraftResponse(result))
}

func (h *APIHandlers) record(c fiber.Ctx, status int, result *services.RecordResult) error {
	setIndexStatus(c, result.Degraded())
	c.Set(fiber.HeaderETag, etag(result.Record.RevisionID))

	return c.Status(status).JSON(newRecordResponse(result))
}

func newSearchResponse(req *SearchRequest, result *search.Result) SearchResponse {
	q := req.query()

	page, size := q.Page, q.Size
	if page <= 0 {
		page = 1
	}

	if size <= 0 {
		size = search.DefaultPageSize
	}

	return SearchResponse{
		Hits:  result.Hits,
		Total: result.Total,
		Page:  page,
		Size:  size,
	}
}

// identityFrom reads the caller from the headers set by the authenticating proxy.
func identityFrom(c fiber.Ctx) models.Identity {
	identity := models.Identity{ID: strings.TrimSpace(c.Get(UserIDHeader))}

	for role := range strings.SplitSeq(c.Get(UserRolesHeader), ",") {
		if role = strings.TrimSpace(role); role != "" {
			identity.Roles = append(identity.Roles, role)
		}
	}

	return identity
}

// revisionFrom parses the If-Match header. A missing header skips the revision check.
func revisionFrom(c fiber.Ctx) (*int, error) {
	raw := strings.TrimSpace(c.Get(fiber.HeaderIfMatch))
	if raw == "" {
		return nil, nil
	}

	raw = strings.TrimPrefix(raw, "W/")

	revision, err := strconv.Atoi(strings.Trim(raw, `"`))
	if err != nil || revision < 0 {
		return nil, errInvalidRevision
	}

	return &revision, nil
}

func etag(revision int) string {
	return `"` + strconv.Itoa(revision) + `"`
}

func setIndexStatus(c fiber.Ctx, degraded bool) {
	if degraded {
		c.Set(IndexStatusHeader, "degraded")
	}
}
