package services

import "github.com/plmhub/backend/internal/models"

// ValidateChildPlacement enforces the two nesting rules for child files:
// at most one level of nesting, and co-location with the parent. It runs
// on both the create-file and append-revision paths whenever a parent is
// supplied.
func ValidateChildPlacement(parent *models.File, target models.ContainerRef) error {
	if parent.ParentID != nil {
		return ErrInvalidNesting
	}
	if parent.ContainerKind != target.Kind || parent.ContainerID != target.ID {
		return ErrContainerMismatch
	}
	return nil
}
