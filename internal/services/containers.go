package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/plmhub/backend/internal/models"
	"gorm.io/gorm"
)

// ContainerService resolves polymorphic container references and owns
// sequence-number assignment for stages and iterations.
type ContainerService struct {
	DB *gorm.DB
}

func NewContainerService(db *gorm.DB) *ContainerService {
	return &ContainerService{DB: db}
}

// Resolve looks up the concrete container behind a tagged reference.
// Pure lookup, no side effects.
func (s *ContainerService) Resolve(ctx context.Context, ref models.ContainerRef) (models.Container, error) {
	switch ref.Kind {
	case models.ContainerKindStage:
		var stage models.Stage
		if err := s.DB.WithContext(ctx).First(&stage, "id = ?", ref.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrContainerNotFound
			}
			return nil, err
		}
		return &stage, nil
	case models.ContainerKindIteration:
		var iteration models.Iteration
		if err := s.DB.WithContext(ctx).First(&iteration, "id = ?", ref.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrContainerNotFound
			}
			return nil, err
		}
		return &iteration, nil
	default:
		return nil, &ValidationError{Field: "container", Reason: `must be "stage" or "iteration"`}
	}
}

// NextSequenceNumber returns 1 + the highest sequence number among
// containers of the given kind for the product, or 1 if none exist.
// Callers must hold the product row lock for the duration of the
// surrounding create so concurrent creates cannot claim the same number.
func NextSequenceNumber(tx *gorm.DB, productID uint, kind models.ContainerKind) (int, error) {
	var query *gorm.DB
	switch kind {
	case models.ContainerKindStage:
		query = tx.Model(&models.Stage{})
	case models.ContainerKindIteration:
		query = tx.Model(&models.Iteration{})
	default:
		return 0, &ValidationError{Field: "container", Reason: fmt.Sprintf("unknown kind %q", kind)}
	}

	var last int
	err := query.Where("product_id = ?", productID).
		Select("COALESCE(MAX(sequence_number), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// CreateContainerInput carries the caller-supplied fields for a new
// stage or iteration. SequenceNumber nil means "assign the next one".
type CreateContainerInput struct {
	ProductID      uint
	Name           string
	Description    string
	SequenceNumber *int
	DisplayType    string
	Color          string
	SortOrder      int
}

func (s *ContainerService) CreateStage(ctx context.Context, in CreateContainerInput) (*models.Stage, error) {
	stage := &models.Stage{
		ProductID:   in.ProductID,
		Name:        in.Name,
		Description: in.Description,
		DisplayType: in.DisplayType,
		Color:       in.Color,
		SortOrder:   in.SortOrder,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := s.claimSequenceNumber(tx, in, models.ContainerKindStage)
		if err != nil {
			return err
		}
		stage.SequenceNumber = seq

		var count int64
		if err := tx.Model(&models.Stage{}).
			Where("product_id = ? AND name = ?", in.ProductID, in.Name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &ValidationError{Field: "name", Reason: "already used in this product"}
		}

		return tx.Create(stage).Error
	})
	if err != nil {
		return nil, err
	}
	return stage, nil
}

func (s *ContainerService) CreateIteration(ctx context.Context, in CreateContainerInput) (*models.Iteration, error) {
	iteration := &models.Iteration{
		ProductID:   in.ProductID,
		Name:        in.Name,
		Description: in.Description,
		DisplayType: in.DisplayType,
		Color:       in.Color,
		SortOrder:   in.SortOrder,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := s.claimSequenceNumber(tx, in, models.ContainerKindIteration)
		if err != nil {
			return err
		}
		iteration.SequenceNumber = seq

		var count int64
		if err := tx.Model(&models.Iteration{}).
			Where("product_id = ? AND name = ?", in.ProductID, in.Name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &ValidationError{Field: "name", Reason: "already used in this product"}
		}

		return tx.Create(iteration).Error
	})
	if err != nil {
		return nil, err
	}
	return iteration, nil
}

// claimSequenceNumber locks the owning product row, then either validates
// an explicitly supplied number or assigns the next one. The lock
// serializes assignment per (product, kind).
func (s *ContainerService) claimSequenceNumber(tx *gorm.DB, in CreateContainerInput, kind models.ContainerKind) (int, error) {
	var product models.Product
	if err := lockForUpdate(tx).
		First(&product, "id = ?", in.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrProductNotFound
		}
		return 0, err
	}

	if in.SequenceNumber == nil {
		return NextSequenceNumber(tx, in.ProductID, kind)
	}

	seq := *in.SequenceNumber
	if seq < 1 {
		return 0, &ValidationError{Field: "sequenceNumber", Reason: "must be positive"}
	}

	var query *gorm.DB
	if kind == models.ContainerKindStage {
		query = tx.Model(&models.Stage{})
	} else {
		query = tx.Model(&models.Iteration{})
	}
	var count int64
	if err := query.Where("product_id = ? AND sequence_number = ?", in.ProductID, seq).
		Count(&count).Error; err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, ErrConflict
	}
	return seq, nil
}
