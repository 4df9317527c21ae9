package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/plmhub/backend/internal/middleware"
	"github.com/plmhub/backend/internal/models"
	"github.com/plmhub/backend/internal/services"
	"github.com/plmhub/backend/internal/storage"
	"github.com/plmhub/backend/pkg/logger"
	"github.com/plmhub/backend/pkg/utils"
	"gorm.io/gorm"
)

// ContainersHandler serves the /api/stages and /api/iterations surfaces.
// Both kinds share one handler; the kind is fixed per route.
type ContainersHandler struct {
	DB      *gorm.DB
	Service *services.ContainerService
	Store   storage.BlobStore
}

func NewContainersHandler(db *gorm.DB, service *services.ContainerService, store storage.BlobStore) *ContainersHandler {
	return &ContainersHandler{DB: db, Service: service, Store: store}
}

type containerRequest struct {
	ProductID      *uint   `json:"productID"`
	Name           *string `json:"name"`
	Description    *string `json:"description"`
	SequenceNumber *int    `json:"sequenceNumber"`
	DisplayType    *string `json:"displayType"`
	Color          *string `json:"color"`
	SortOrder      *int    `json:"sortOrder"`
}

func (h *ContainersHandler) CreateStage(c *fiber.Ctx) error {
	return h.create(c, models.ContainerKindStage)
}

func (h *ContainersHandler) CreateIteration(c *fiber.Ctx) error {
	return h.create(c, models.ContainerKindIteration)
}

func (h *ContainersHandler) create(c *fiber.Ctx, kind models.ContainerKind) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req containerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.ProductID == nil {
		return utils.Error(c, fiber.StatusBadRequest, "productID is required")
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	in := services.CreateContainerInput{
		ProductID:      *req.ProductID,
		Name:           strings.TrimSpace(*req.Name),
		SequenceNumber: req.SequenceNumber,
	}
	if req.Description != nil {
		in.Description = strings.TrimSpace(*req.Description)
	}
	if req.DisplayType != nil {
		in.DisplayType = strings.TrimSpace(*req.DisplayType)
	}
	if req.Color != nil {
		in.Color = strings.TrimSpace(*req.Color)
	}
	if req.SortOrder != nil {
		in.SortOrder = *req.SortOrder
	}

	var created interface{}
	var err error
	if kind == models.ContainerKindStage {
		created, err = h.Service.CreateStage(c.Context(), in)
	} else {
		created, err = h.Service.CreateIteration(c.Context(), in)
	}
	if err != nil {
		return serviceErrorResponse(c, err)
	}

	logger.InfoWithUser(strconvID(currentUser.ID), "container_created", map[string]interface{}{
		"kind":       string(kind),
		"product_id": *req.ProductID,
		"name":       in.Name,
	})

	return utils.Success(c, fiber.StatusCreated, created)
}

func (h *ContainersHandler) GetStage(c *fiber.Ctx) error {
	return h.get(c, models.ContainerKindStage)
}

func (h *ContainersHandler) GetIteration(c *fiber.Ctx) error {
	return h.get(c, models.ContainerKindIteration)
}

func (h *ContainersHandler) get(c *fiber.Ctx, kind models.ContainerKind) error {
	containerID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid container id")
	}

	container, err := h.Service.Resolve(c.Context(), models.ContainerRef{Kind: kind, ID: containerID})
	if err != nil {
		return serviceErrorResponse(c, err)
	}
	return utils.Success(c, fiber.StatusOK, container)
}

func (h *ContainersHandler) UpdateStage(c *fiber.Ctx) error {
	return h.update(c, models.ContainerKindStage)
}

func (h *ContainersHandler) UpdateIteration(c *fiber.Ctx) error {
	return h.update(c, models.ContainerKindIteration)
}

// update never touches sequence numbers: they are immutable after
// creation.
func (h *ContainersHandler) update(c *fiber.Ctx, kind models.ContainerKind) error {
	containerID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid container id")
	}

	var req containerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return utils.Error(c, fiber.StatusBadRequest, "name cannot be empty")
		}
		updates["name"] = name
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.DisplayType != nil {
		updates["display_type"] = strings.TrimSpace(*req.DisplayType)
	}
	if req.Color != nil {
		updates["color"] = strings.TrimSpace(*req.Color)
	}
	if req.SortOrder != nil {
		updates["sort_order"] = *req.SortOrder
	}
	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no fields to update")
	}

	var model interface{}
	if kind == models.ContainerKindStage {
		model = &models.Stage{}
	} else {
		model = &models.Iteration{}
	}

	result := h.DB.Model(model).Where("id = ?", containerID).Updates(updates)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating container")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "container not found")
	}

	container, err := h.Service.Resolve(c.Context(), models.ContainerRef{Kind: kind, ID: containerID})
	if err != nil {
		return serviceErrorResponse(c, err)
	}
	return utils.Success(c, fiber.StatusOK, container)
}

func (h *ContainersHandler) DeleteStage(c *fiber.Ctx) error {
	return h.delete(c, models.ContainerKindStage)
}

func (h *ContainersHandler) DeleteIteration(c *fiber.Ctx) error {
	return h.delete(c, models.ContainerKindIteration)
}

// delete cascades to the container's files and their revisions. Other
// containers keep their sequence numbers; nothing is renumbered.
func (h *ContainersHandler) delete(c *fiber.Ctx, kind models.ContainerKind) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	containerID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid container id")
	}
	ref := models.ContainerRef{Kind: kind, ID: containerID}

	var blobPaths []string
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := deleteContainerFiles(tx, ref, &blobPaths); err != nil {
			return err
		}
		var result *gorm.DB
		if kind == models.ContainerKindStage {
			result = tx.Delete(&models.Stage{}, containerID)
		} else {
			result = tx.Delete(&models.Iteration{}, containerID)
		}
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "container not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting container")
	}

	cleanupBlobs(h.Store, blobPaths)

	logger.InfoWithUser(strconvID(currentUser.ID), "container_deleted", map[string]interface{}{
		"kind":         string(kind),
		"container_id": containerID,
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}
