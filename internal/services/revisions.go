package services

import (
	"context"
	"errors"
	"time"

	"github.com/plmhub/backend/internal/models"
	"github.com/plmhub/backend/internal/storage"
	"gorm.io/gorm"
)

// RevisionService is the append-only revision ledger. Appending a
// revision also writes the new current-revision state back onto the
// owning file, in the same transaction, so the "current_revision equals
// the highest revision number" invariant is enforced at one call site.
type RevisionService struct {
	DB *gorm.DB
}

func NewRevisionService(db *gorm.DB) *RevisionService {
	return &RevisionService{DB: db}
}

type AppendInput struct {
	FileID            uint
	Blob              storage.PutResult
	ChangeDescription string
	Status            models.FileStatus
	Price             *float64
	CreatedByID       *uint
}

func (s *RevisionService) Append(ctx context.Context, in AppendInput) (*models.FileRevision, error) {
	var revision *models.FileRevision
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		revision, txErr = s.AppendInTx(tx, in)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return revision, nil
}

// AppendInTx appends within an already-open transaction. The FOR UPDATE
// lock on the file row serializes concurrent appends so two uploads
// cannot claim the same revision number.
func (s *RevisionService) AppendInTx(tx *gorm.DB, in AppendInput) (*models.FileRevision, error) {
	var file models.File
	if err := lockForUpdate(tx).
		First(&file, "id = ?", in.FileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	var last int
	if err := tx.Model(&models.FileRevision{}).
		Where("file_id = ?", file.ID).
		Select("COALESCE(MAX(revision_number), 0)").
		Scan(&last).Error; err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = file.Status
	}

	revision := &models.FileRevision{
		FileID:            file.ID,
		RevisionNumber:    last + 1,
		StoragePath:       in.Blob.Path,
		FileSize:          in.Blob.Size,
		ChangeDescription: in.ChangeDescription,
		Status:            status,
		Price:             in.Price,
		CreatedByID:       in.CreatedByID,
	}
	if err := tx.Create(revision).Error; err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"current_revision": revision.RevisionNumber,
		"storage_path":     revision.StoragePath,
		"file_size":        revision.FileSize,
		"updated_at":       time.Now(),
	}
	if err := tx.Model(&models.File{}).Where("id = ?", file.ID).Updates(updates).Error; err != nil {
		return nil, err
	}

	return revision, nil
}
