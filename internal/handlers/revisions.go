package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/plmhub/backend/internal/models"
	"github.com/plmhub/backend/internal/storage"
	"github.com/plmhub/backend/pkg/utils"
	"gorm.io/gorm"
)

type RevisionsHandler struct {
	DB    *gorm.DB
	Store storage.BlobStore
}

func NewRevisionsHandler(db *gorm.DB, store storage.BlobStore) *RevisionsHandler {
	return &RevisionsHandler{DB: db, Store: store}
}

func (h *RevisionsHandler) Get(c *fiber.Ctx) error {
	revisionID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid revision id")
	}

	var revision models.FileRevision
	if err := h.DB.Preload("CreatedBy").First(&revision, "id = ?", revisionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "revision not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching revision")
	}

	return utils.Success(c, fiber.StatusOK, revision)
}

func (h *RevisionsHandler) DownloadURL(c *fiber.Ctx) error {
	revisionID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid revision id")
	}

	var revision models.FileRevision
	if err := h.DB.First(&revision, "id = ?", revisionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "revision not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching revision")
	}

	url, err := h.Store.PresignedGetURL(c.Context(), revision.StoragePath, 15*time.Minute)
	if err != nil {
		return utils.Error(c, fiber.StatusBadGateway, "failed generating download url")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}
