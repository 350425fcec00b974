package web

import (
	"errors"

	"github.com/dukex/drafts/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func unauthorized(c fiber.Ctx) error {
	problem := problems.NewStatusProblem(401).
		WithInstance(c.Path()).
		WithType("unauthorized").
		WithDetail("missing " + UserIDHeader + " header")

	return c.Status(fiber.StatusUnauthorized).JSON(problem)
}

// handleServiceError maps the workflow error taxonomy onto HTTP problems. Storage
// failures are logged and answered with a generic detail.
func (h *APIHandlers) handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("not_found").
			WithDetail("record or draft not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case services.IsPermissionDenied(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("permission_denied").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsConflictError(err):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	default:
		h.logger.ErrorContext(c.Context(), "Request failed", "method", c.Method(), "path", c.Path(), "error", err)

		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("storage_failure").
			WithDetail(errStorageDetail)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}

const errStorageDetail = "the request could not be completed, try again later"

var (
	errInvalidJSON     = errors.New("invalid JSON format")
	errInvalidRevision = errors.New("If-Match must hold a revision number")
)
