package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/plmhub/backend/internal/models"
	"github.com/plmhub/backend/internal/storage"
	"github.com/plmhub/backend/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UploadService ties container resolution, parent validation, identity
// resolution and the revision ledger into one upload operation.
type UploadService struct {
	DB         *gorm.DB
	Store      storage.BlobStore
	Containers *ContainerService
	Identity   *IdentityService
	Revisions  *RevisionService
}

func NewUploadService(db *gorm.DB, store storage.BlobStore) *UploadService {
	return &UploadService{
		DB:         db,
		Store:      store,
		Containers: NewContainerService(db),
		Identity:   NewIdentityService(db),
		Revisions:  NewRevisionService(db),
	}
}

type UploadInput struct {
	Name              string
	Container         models.ContainerRef
	ParentID          *uint
	Description       string
	ChangeDescription string
	Status            models.FileStatus
	Quantity          int
	Price             *float64
	Metadata          datatypes.JSON
	Content           io.Reader
	Size              int64
	ContentType       string
	Owner             *models.User
}

type UploadResult struct {
	File     *models.File         `json:"file"`
	Revision *models.FileRevision `json:"revision"`
	Created  bool                 `json:"created"`
}

// Upload runs the full state machine: resolve container, validate the
// parent if one is supplied, resolve identity, write the blob, then
// commit the metadata in a single transaction. The blob write happens
// before the transaction; if the transaction fails the blob is removed
// best-effort without blocking the response.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if in.Status == "" {
		in.Status = models.FileStatusInWork
	}
	if !in.Status.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", in.Status)}
	}
	if in.Quantity < 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Price != nil && *in.Price < 0 {
		return nil, &ValidationError{Field: "price", Reason: "must not be negative"}
	}

	if _, err := s.Containers.Resolve(ctx, in.Container); err != nil {
		return nil, err
	}

	if in.ParentID != nil {
		var parent models.File
		if err := s.DB.WithContext(ctx).First(&parent, "id = ?", *in.ParentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrParentNotFound
			}
			return nil, err
		}
		if err := ValidateChildPlacement(&parent, in.Container); err != nil {
			return nil, err
		}
	}

	existing, err := s.Identity.Resolve(ctx, name, in.Container, in.ParentID)
	if err != nil {
		return nil, err
	}

	// Blob first. The hinted revision number is a peek outside the row
	// lock; the number persisted on the row is recomputed under the lock,
	// so a race can at worst rename the object, never misnumber the
	// ledger.
	var hint string
	if existing == nil {
		hint = fmt.Sprintf("uploads/%s/%s", in.Container, name)
	} else {
		hint = fmt.Sprintf("uploads/%d/revision_%d/%s", existing.ID, existing.CurrentRevision+1, name)
	}

	blob, err := s.Store.Put(ctx, hint, in.Content, in.Size, in.ContentType)
	if err != nil {
		return nil, &StorageError{Op: "put", Err: err}
	}

	var ownerID *uint
	if in.Owner != nil {
		ownerID = &in.Owner.ID
	}

	result := &UploadResult{}
	txErr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fileID := uint(0)
		if existing == nil {
			file := models.File{
				Name:          name,
				Description:   in.Description,
				Kind:          models.KindForName(name),
				StoragePath:   blob.Path,
				FileSize:      blob.Size,
				OwnerID:       ownerID,
				ContainerKind: in.Container.Kind,
				ContainerID:   in.Container.ID,
				ParentID:      in.ParentID,
				Status:        in.Status,
				Quantity:      in.Quantity,
				Price:         in.Price,
				Metadata:      in.Metadata,
			}
			if err := tx.Create(&file).Error; err != nil {
				return err
			}
			fileID = file.ID
			result.Created = true
		} else {
			fileID = existing.ID
		}

		revision, err := s.Revisions.AppendInTx(tx, AppendInput{
			FileID:            fileID,
			Blob:              blob,
			ChangeDescription: in.ChangeDescription,
			Status:            in.Status,
			Price:             in.Price,
			CreatedByID:       ownerID,
		})
		if err != nil {
			return err
		}
		result.Revision = revision

		var file models.File
		if err := tx.First(&file, "id = ?", fileID).Error; err != nil {
			return err
		}
		result.File = &file
		return nil
	})
	if txErr != nil {
		// Orphaned-blob cleanup; never blocks the response.
		go func(path string) {
			if err := s.Store.Delete(context.Background(), path); err != nil {
				logger.Warn("blob_cleanup_failed", map[string]interface{}{
					"object_name": path,
					"error":       err.Error(),
				})
			}
		}(blob.Path)
		return nil, txErr
	}

	return result, nil
}
