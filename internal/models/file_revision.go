package models

import "time"

// FileRevision is one uploaded version of a logical file, immutable once
// created. Revision numbers are strictly increasing per file, starting
// at 1.
type FileRevision struct {
	ID                uint       `json:"id" gorm:"primaryKey"`
	FileID            uint       `json:"fileID" gorm:"not null;index:idx_revisions_file_number,unique,priority:1"`
	RevisionNumber    int        `json:"revisionNumber" gorm:"not null;index:idx_revisions_file_number,unique,priority:2"`
	StoragePath       string     `json:"storagePath" gorm:"type:text;not null"`
	FileSize          int64      `json:"fileSize" gorm:"not null;default:0"`
	ChangeDescription string     `json:"changeDescription" gorm:"type:text"`
	Status            FileStatus `json:"status" gorm:"type:varchar(20);not null;default:'in_work'"`
	Price             *float64   `json:"price,omitempty"`
	CreatedByID       *uint      `json:"createdByID,omitempty" gorm:"index"`
	CreatedAt         time.Time  `json:"createdAt"`

	File      *File `json:"-" gorm:"foreignKey:FileID"`
	CreatedBy *User `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID;constraint:OnDelete:SET NULL"`
}
