package services

import (
	"context"
	"errors"

	"github.com/plmhub/backend/internal/models"
	"gorm.io/gorm"
)

// IdentityService decides whether an upload is a brand-new logical file
// or a new revision of an existing one. Logical identity is
// (name, container, parent) — not a client-supplied key — so repeated
// uploads of a same-named file accumulate as revisions while same-named
// files in other containers or under other parents stay distinct
// lineages.
type IdentityService struct {
	DB *gorm.DB
}

func NewIdentityService(db *gorm.DB) *IdentityService {
	return &IdentityService{DB: db}
}

// Resolve returns the File owning the lineage, or nil when the upload
// starts a new one. Matching is exact and case-sensitive on name, and
// deliberately not owner-scoped.
func (s *IdentityService) Resolve(ctx context.Context, name string, ref models.ContainerRef, parentID *uint) (*models.File, error) {
	query := s.DB.WithContext(ctx).
		Where("name = ? AND container_kind = ? AND container_id = ?", name, ref.Kind, ref.ID)
	if parentID != nil {
		query = query.Where("parent_id = ?", *parentID)
	} else {
		query = query.Where("parent_id IS NULL")
	}

	var file models.File
	if err := query.First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &file, nil
}
