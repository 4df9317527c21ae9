package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/plmhub/backend/internal/middleware"
	"github.com/plmhub/backend/internal/models"
	"github.com/plmhub/backend/internal/storage"
	"github.com/plmhub/backend/pkg/logger"
	"github.com/plmhub/backend/pkg/utils"
	"gorm.io/gorm"
)

type ProductsHandler struct {
	DB    *gorm.DB
	Store storage.BlobStore
}

func NewProductsHandler(db *gorm.DB, store storage.BlobStore) *ProductsHandler {
	return &ProductsHandler{DB: db, Store: store}
}

type productRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *ProductsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return utils.Error(c, fiber.StatusBadRequest, "name is required")
	}

	product := models.Product{
		Name:    strings.TrimSpace(*req.Name),
		OwnerID: &currentUser.ID,
	}
	if req.Description != nil {
		product.Description = strings.TrimSpace(*req.Description)
	}

	if err := h.DB.Create(&product).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating product")
	}

	logger.InfoWithUser(strconvID(currentUser.ID), "product_created", map[string]interface{}{
		"product_id": product.ID,
		"name":       product.Name,
	})

	return utils.Success(c, fiber.StatusCreated, product)
}

func (h *ProductsHandler) List(c *fiber.Ctx) error {
	p := utils.ParsePagination(c)

	query := h.DB.Model(&models.Product{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed counting products")
	}

	var products []models.Product
	if err := utils.ApplyPagination(query.Order("created_at DESC"), p).Find(&products).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing products")
	}

	return utils.Paginated(c, products, p.Page, p.Limit, total)
}

func (h *ProductsHandler) Get(c *fiber.Ctx) error {
	productID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid product id")
	}

	var product models.Product
	if err := h.DB.
		Preload("Stages", func(db *gorm.DB) *gorm.DB { return db.Order("sequence_number ASC") }).
		Preload("Iterations", func(db *gorm.DB) *gorm.DB { return db.Order("sequence_number ASC") }).
		First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "product not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching product")
	}

	return utils.Success(c, fiber.StatusOK, product)
}

func (h *ProductsHandler) Update(c *fiber.Ctx) error {
	productID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid product id")
	}

	var req productRequest
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
	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no fields to update")
	}

	result := h.DB.Model(&models.Product{}).Where("id = ?", productID).Updates(updates)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating product")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "product not found")
	}

	var product models.Product
	if err := h.DB.First(&product, "id = ?", productID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching product")
	}
	return utils.Success(c, fiber.StatusOK, product)
}

// Delete removes the product and cascades through its stages, iterations,
// files and revisions. Blob removal happens after the transaction commits
// and is best-effort.
func (h *ProductsHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	productID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid product id")
	}

	var blobPaths []string
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.First(&product, "id = ?", productID).Error; err != nil {
			return err
		}

		var stages []models.Stage
		if err := tx.Where("product_id = ?", productID).Find(&stages).Error; err != nil {
			return err
		}
		for _, stage := range stages {
			ref := models.ContainerRef{Kind: models.ContainerKindStage, ID: stage.ID}
			if err := deleteContainerFiles(tx, ref, &blobPaths); err != nil {
				return err
			}
		}

		var iterations []models.Iteration
		if err := tx.Where("product_id = ?", productID).Find(&iterations).Error; err != nil {
			return err
		}
		for _, iteration := range iterations {
			ref := models.ContainerRef{Kind: models.ContainerKindIteration, ID: iteration.ID}
			if err := deleteContainerFiles(tx, ref, &blobPaths); err != nil {
				return err
			}
		}

		if err := tx.Where("product_id = ?", productID).Delete(&models.Stage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", productID).Delete(&models.Iteration{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Product{}, productID).Error
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "product not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting product")
	}

	cleanupBlobs(h.Store, blobPaths)

	logger.InfoWithUser(strconvID(currentUser.ID), "product_deleted", map[string]interface{}{
		"product_id": productID,
		"blobs":      len(blobPaths),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

func (h *ProductsHandler) ListStages(c *fiber.Ctx) error {
	return h.listContainers(c, models.ContainerKindStage)
}

func (h *ProductsHandler) ListIterations(c *fiber.Ctx) error {
	return h.listContainers(c, models.ContainerKindIteration)
}

func (h *ProductsHandler) listContainers(c *fiber.Ctx, kind models.ContainerKind) error {
	productID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid product id")
	}

	var count int64
	if err := h.DB.Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking product")
	}
	if count == 0 {
		return utils.Error(c, fiber.StatusNotFound, "product not found")
	}

	if kind == models.ContainerKindStage {
		var stages []models.Stage
		if err := h.DB.Where("product_id = ?", productID).Order("sequence_number ASC").Find(&stages).Error; err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed listing stages")
		}
		return utils.Success(c, fiber.StatusOK, stages)
	}

	var iterations []models.Iteration
	if err := h.DB.Where("product_id = ?", productID).Order("sequence_number ASC").Find(&iterations).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing iterations")
	}
	return utils.Success(c, fiber.StatusOK, iterations)
}

// ListFiles returns every file attached to any of the product's
// containers. The product of a file is derived through its container,
// never stored on the file itself.
func (h *ProductsHandler) ListFiles(c *fiber.Ctx) error {
	productID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid product id")
	}

	var count int64
	if err := h.DB.Model(&models.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking product")
	}
	if count == 0 {
		return utils.Error(c, fiber.StatusNotFound, "product not found")
	}

	var stageIDs []uint
	if err := h.DB.Model(&models.Stage{}).Where("product_id = ?", productID).Pluck("id", &stageIDs).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing stages")
	}
	var iterationIDs []uint
	if err := h.DB.Model(&models.Iteration{}).Where("product_id = ?", productID).Pluck("id", &iterationIDs).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing iterations")
	}

	query := h.DB.Model(&models.File{}).Where("1 = 0")
	if len(stageIDs) > 0 {
		query = query.Or("container_kind = ? AND container_id IN ?", models.ContainerKindStage, stageIDs)
	}
	if len(iterationIDs) > 0 {
		query = query.Or("container_kind = ? AND container_id IN ?", models.ContainerKindIteration, iterationIDs)
	}

	var files []models.File
	if err := query.Order("created_at DESC").Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing files")
	}
	return utils.Success(c, fiber.StatusOK, files)
}

// cleanupBlobs removes stored objects after a successful metadata
// transaction. Failures are logged, never surfaced.
func cleanupBlobs(store storage.BlobStore, paths []string) {
	if store == nil || len(paths) == 0 {
		return
	}
	go func() {
		for _, path := range paths {
			if err := store.Delete(context.Background(), path); err != nil {
				logger.Warn("blob_cleanup_failed", map[string]interface{}{
					"object_name": path,
					"error":       err.Error(),
				})
			}
		}
	}()
}
