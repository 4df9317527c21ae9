package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/plmhub/backend/internal/models"
	"github.com/plmhub/backend/internal/services"
	"github.com/plmhub/backend/pkg/utils"
)

func strconvID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseID(value string) (uint, error) {
	parsed, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(parsed), nil
}

func parseContainerRef(kind, id string) (models.ContainerRef, error) {
	ref := models.ContainerRef{Kind: models.ContainerKind(strings.ToLower(strings.TrimSpace(kind)))}
	if !ref.Kind.Valid() {
		return ref, &services.ValidationError{Field: "container", Reason: `must be "stage" or "iteration"`}
	}
	containerID, err := parseID(id)
	if err != nil {
		return ref, &services.ValidationError{Field: "containerID", Reason: "must be a positive integer"}
	}
	ref.ID = containerID
	return ref, nil
}

// serviceErrorResponse maps the core error taxonomy onto HTTP statuses.
func serviceErrorResponse(c *fiber.Ctx, err error) error {
	var validationErr *services.ValidationError
	var storageErr *services.StorageError

	switch {
	case errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrContainerNotFound),
		errors.Is(err, services.ErrParentNotFound),
		errors.Is(err, services.ErrFileNotFound),
		errors.Is(err, services.ErrRevisionNotFound):
		return utils.Error(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidNesting),
		errors.Is(err, services.ErrContainerMismatch):
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrConflict):
		return utils.Error(c, fiber.StatusConflict, err.Error())
	case errors.As(err, &validationErr):
		return utils.Error(c, fiber.StatusBadRequest, validationErr.Error())
	case errors.As(err, &storageErr):
		return utils.Error(c, fiber.StatusBadGateway, "blob store unavailable")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "internal error")
	}
}
