package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/plmhub/backend/internal/middleware"
	"github.com/plmhub/backend/internal/models"
	"github.com/plmhub/backend/internal/services"
	"github.com/plmhub/backend/internal/storage"
	"github.com/plmhub/backend/pkg/logger"
	"github.com/plmhub/backend/pkg/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type FilesHandler struct {
	DB      *gorm.DB
	Store   storage.BlobStore
	Uploads *services.UploadService
}

func NewFilesHandler(db *gorm.DB, store storage.BlobStore, uploads *services.UploadService) *FilesHandler {
	return &FilesHandler{DB: db, Store: store, Uploads: uploads}
}

// Upload accepts a multipart form and runs the upload state machine:
// repeated uploads of the same (name, container, parent) accumulate as
// revisions of one logical file.
func (h *FilesHandler) Upload(c *fiber.Ctx) error {
	user := h.resolveUploadUser(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}

	ref, err := parseContainerRef(c.FormValue("container"), c.FormValue("containerID"))
	if err != nil {
		return serviceErrorResponse(c, err)
	}

	name := strings.TrimSpace(c.FormValue("name"))
	if name == "" {
		name = filepath.Base(strings.TrimSpace(fileHeader.Filename))
	}
	if name == "" || name == "." {
		return utils.Error(c, fiber.StatusBadRequest, "invalid filename")
	}

	var parentID *uint
	if raw := strings.TrimSpace(c.FormValue("parentID")); raw != "" {
		parsed, parseErr := parseID(raw)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid parentID")
		}
		parentID = &parsed
	}

	status := models.FileStatus(strings.TrimSpace(c.FormValue("status")))
	if status != "" && !status.Valid() {
		return utils.Error(c, fiber.StatusBadRequest, "invalid status")
	}

	quantity := 0
	if raw := strings.TrimSpace(c.FormValue("quantity")); raw != "" {
		quantity, err = strconv.Atoi(raw)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid quantity")
		}
	}

	var price *float64
	if raw := strings.TrimSpace(c.FormValue("price")); raw != "" {
		parsed, parseErr := strconv.ParseFloat(raw, 64)
		if parseErr != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid price")
		}
		price = &parsed
	}

	var metadata datatypes.JSON
	if raw := strings.TrimSpace(c.FormValue("metadata")); raw != "" {
		if !json.Valid([]byte(raw)) {
			return utils.Error(c, fiber.StatusBadRequest, "metadata must be valid JSON")
		}
		metadata = datatypes.JSON(raw)
	}

	stream, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed opening uploaded file")
	}
	defer stream.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, err := h.Uploads.Upload(c.Context(), services.UploadInput{
		Name:              name,
		Container:         ref,
		ParentID:          parentID,
		Description:       strings.TrimSpace(c.FormValue("description")),
		ChangeDescription: strings.TrimSpace(c.FormValue("changeDescription")),
		Status:            status,
		Quantity:          quantity,
		Price:             price,
		Metadata:          metadata,
		Content:           stream,
		Size:              fileHeader.Size,
		ContentType:       contentType,
		Owner:             user,
	})
	if err != nil {
		return serviceErrorResponse(c, err)
	}

	details := map[string]interface{}{
		"file_id":   result.File.ID,
		"file_name": result.File.Name,
		"container": ref.String(),
		"revision":  result.Revision.RevisionNumber,
		"created":   result.Created,
	}
	if user != nil {
		logger.InfoWithUser(strconvID(user.ID), "file_uploaded", details)
	} else {
		logger.Info("file_uploaded", details)
	}

	return utils.Success(c, fiber.StatusCreated, result)
}

// resolveUploadUser returns the authenticated user, or the first user as
// the anonymous fallback, or nil when no users exist yet.
func (h *FilesHandler) resolveUploadUser(c *fiber.Ctx) *models.User {
	if user := middleware.GetCurrentUser(c); user != nil {
		return user
	}
	var fallback models.User
	if err := h.DB.Order("id ASC").First(&fallback).Error; err != nil {
		return nil
	}
	return &fallback
}

// List returns the root files (no parent) of one container.
func (h *FilesHandler) List(c *fiber.Ctx) error {
	ref, err := parseContainerRef(c.Query("container"), c.Query("containerID"))
	if err != nil {
		return serviceErrorResponse(c, err)
	}

	if _, err := h.Uploads.Containers.Resolve(c.Context(), ref); err != nil {
		return serviceErrorResponse(c, err)
	}

	var files []models.File
	if err := h.DB.
		Preload("Children").
		Where("container_kind = ? AND container_id = ? AND parent_id IS NULL", ref.Kind, ref.ID).
		Order("created_at DESC").
		Find(&files).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing files")
	}

	return utils.Success(c, fiber.StatusOK, files)
}

func (h *FilesHandler) Get(c *fiber.Ctx) error {
	fileID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.
		Preload("Owner").
		Preload("Parent").
		Preload("Children").
		First(&file, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching file")
	}

	return utils.Success(c, fiber.StatusOK, file)
}

func (h *FilesHandler) ListChildren(c *fiber.Ctx) error {
	fileID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var count int64
	if err := h.DB.Model(&models.File{}).Where("id = ?", fileID).Count(&count).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking file")
	}
	if count == 0 {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	var children []models.File
	if err := h.DB.Where("parent_id = ?", fileID).Order("created_at ASC").Find(&children).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing children")
	}
	return utils.Success(c, fiber.StatusOK, children)
}

func (h *FilesHandler) ListRevisions(c *fiber.Ctx) error {
	fileID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var count int64
	if err := h.DB.Model(&models.File{}).Where("id = ?", fileID).Count(&count).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking file")
	}
	if count == 0 {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	var revisions []models.FileRevision
	if err := h.DB.
		Preload("CreatedBy").
		Where("file_id = ?", fileID).
		Order("revision_number ASC").
		Find(&revisions).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing revisions")
	}
	return utils.Success(c, fiber.StatusOK, revisions)
}

type updateFileRequest struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	Status      *models.FileStatus `json:"status"`
	Quantity    *int               `json:"quantity"`
	Price       *float64           `json:"price"`
	Metadata    *datatypes.JSON    `json:"metadata"`
}

func (h *FilesHandler) Update(c *fiber.Ctx) error {
	fileID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var req updateFileRequest
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
		updates["kind"] = models.KindForName(name)
	}
	if req.Description != nil {
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return utils.Error(c, fiber.StatusBadRequest, "invalid status")
		}
		updates["status"] = *req.Status
	}
	if req.Quantity != nil {
		if *req.Quantity < 1 {
			return utils.Error(c, fiber.StatusBadRequest, "quantity must be positive")
		}
		updates["quantity"] = *req.Quantity
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return utils.Error(c, fiber.StatusBadRequest, "price must not be negative")
		}
		updates["price"] = *req.Price
	}
	if req.Metadata != nil {
		updates["metadata"] = *req.Metadata
	}
	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no fields to update")
	}

	result := h.DB.Model(&models.File{}).Where("id = ?", fileID).Updates(updates)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating file")
	}
	if result.RowsAffected == 0 {
		return utils.Error(c, fiber.StatusNotFound, "file not found")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", fileID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching file")
	}
	return utils.Success(c, fiber.StatusOK, file)
}

// Delete removes the file, its revisions and its child files (with their
// revisions). Blob removal is best-effort after commit.
func (h *FilesHandler) Delete(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	fileID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var blobPaths []string
	txErr := h.DB.Transaction(func(tx *gorm.DB) error {
		var file models.File
		if err := tx.First(&file, "id = ?", fileID).Error; err != nil {
			return err
		}
		return deleteFileTree(tx, file.ID, &blobPaths)
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting file")
	}

	cleanupBlobs(h.Store, blobPaths)

	logger.InfoWithUser(strconvID(currentUser.ID), "file_deleted", map[string]interface{}{
		"file_id": fileID,
		"blobs":   len(blobPaths),
	})

	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

func (h *FilesHandler) Download(c *fiber.Ctx) error {
	fileID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching file")
	}

	stream, err := h.Store.Get(c.Context(), file.StoragePath)
	if err != nil {
		return utils.Error(c, fiber.StatusBadGateway, "failed fetching file content")
	}

	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", file.Name))
	return c.SendStream(stream)
}

func (h *FilesHandler) DownloadURL(c *fiber.Ctx) error {
	fileID, err := parseID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid file id")
	}

	var file models.File
	if err := h.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusNotFound, "file not found")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching file")
	}

	url, err := h.Store.PresignedGetURL(c.Context(), file.StoragePath, 15*time.Minute)
	if err != nil {
		return utils.Error(c, fiber.StatusBadGateway, "failed generating download url")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}

// deleteFileTree removes a file, its revisions and its children inside
// the given transaction, collecting blob paths for post-commit cleanup.
// Nesting is at most one level deep, so recursion terminates on the
// second call.
func deleteFileTree(tx *gorm.DB, fileID uint, blobPaths *[]string) error {
	var children []models.File
	if err := tx.Where("parent_id = ?", fileID).Find(&children).Error; err != nil {
		return err
	}
	for _, child := range children {
		if err := deleteFileTree(tx, child.ID, blobPaths); err != nil {
			return err
		}
	}

	var revisions []models.FileRevision
	if err := tx.Where("file_id = ?", fileID).Find(&revisions).Error; err != nil {
		return err
	}
	for _, revision := range revisions {
		if revision.StoragePath != "" {
			*blobPaths = append(*blobPaths, revision.StoragePath)
		}
	}
	if err := tx.Where("file_id = ?", fileID).Delete(&models.FileRevision{}).Error; err != nil {
		return err
	}

	return tx.Delete(&models.File{}, fileID).Error
}

// deleteContainerFiles cascades deletion through every file of a
// container.
func deleteContainerFiles(tx *gorm.DB, ref models.ContainerRef, blobPaths *[]string) error {
	var roots []models.File
	if err := tx.
		Where("container_kind = ? AND container_id = ? AND parent_id IS NULL", ref.Kind, ref.ID).
		Find(&roots).Error; err != nil {
		return err
	}
	for _, root := range roots {
		if err := deleteFileTree(tx, root.ID, blobPaths); err != nil {
			return err
		}
	}
	return nil
}
