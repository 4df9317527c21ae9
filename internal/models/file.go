package models

import (
	"path/filepath"
	"strings"

	"gorm.io/datatypes"
)

type FileStatus string

const (
	FileStatusInWork        FileStatus = "in_work"
	FileStatusPendingReview FileStatus = "pending_review"
	FileStatusApproved      FileStatus = "approved"
	FileStatusRejected      FileStatus = "rejected"
	FileStatusFinal         FileStatus = "final"
)

func (s FileStatus) Valid() bool {
	switch s {
	case FileStatusInWork, FileStatusPendingReview, FileStatusApproved, FileStatusRejected, FileStatusFinal:
		return true
	default:
		return false
	}
}

type FileKind string

const (
	FileKindDocument     FileKind = "document"
	FileKindSpreadsheet  FileKind = "spreadsheet"
	FileKindPresentation FileKind = "presentation"
	FileKindImage        FileKind = "image"
	FileKindDrawing      FileKind = "drawing"
	FileKindModel        FileKind = "model"
	FileKindArchive      FileKind = "archive"
	FileKindOther        FileKind = "other"
)

var kindByExtension = map[string]FileKind{
	".pdf":  FileKindDocument,
	".doc":  FileKindDocument,
	".docx": FileKindDocument,
	".txt":  FileKindDocument,
	".md":   FileKindDocument,
	".rtf":  FileKindDocument,
	".xls":  FileKindSpreadsheet,
	".xlsx": FileKindSpreadsheet,
	".csv":  FileKindSpreadsheet,
	".ppt":  FileKindPresentation,
	".pptx": FileKindPresentation,
	".png":  FileKindImage,
	".jpg":  FileKindImage,
	".jpeg": FileKindImage,
	".gif":  FileKindImage,
	".svg":  FileKindImage,
	".webp": FileKindImage,
	".dwg":  FileKindDrawing,
	".dxf":  FileKindDrawing,
	".stl":  FileKindModel,
	".step": FileKindModel,
	".stp":  FileKindModel,
	".iges": FileKindModel,
	".igs":  FileKindModel,
	".obj":  FileKindModel,
	".zip":  FileKindArchive,
	".rar":  FileKindArchive,
	".7z":   FileKindArchive,
	".tar":  FileKindArchive,
	".gz":   FileKindArchive,
}

// KindForName derives the file kind from the name's extension, falling
// back to "other" when the extension is unmapped.
func KindForName(name string) FileKind {
	ext := strings.ToLower(filepath.Ext(name))
	if kind, ok := kindByExtension[ext]; ok {
		return kind
	}
	return FileKindOther
}

// File is one logical file: the lineage identified by (name, container,
// parent) across all its revisions. StoragePath, FileSize and
// CurrentRevision always mirror the latest revision.
type File struct {
	BaseModel
	Name            string         `json:"name" gorm:"type:varchar(255);not null;index"`
	Description     string         `json:"description" gorm:"type:text"`
	Kind            FileKind       `json:"kind" gorm:"type:varchar(30);not null;default:'other'"`
	StoragePath     string         `json:"storagePath" gorm:"type:text;not null"`
	FileSize        int64          `json:"fileSize" gorm:"not null;default:0"`
	OwnerID         *uint          `json:"ownerID,omitempty" gorm:"index"`
	ContainerKind   ContainerKind  `json:"containerKind" gorm:"type:varchar(20);not null;index:idx_files_container,priority:1"`
	ContainerID     uint           `json:"containerID" gorm:"not null;index:idx_files_container,priority:2"`
	ParentID        *uint          `json:"parentID,omitempty" gorm:"index"`
	CurrentRevision int            `json:"currentRevision" gorm:"not null;default:0"`
	Status          FileStatus     `json:"status" gorm:"type:varchar(20);not null;default:'in_work'"`
	Quantity        int            `json:"quantity" gorm:"not null;default:1"`
	Price           *float64       `json:"price,omitempty"`
	Metadata        datatypes.JSON `json:"metadata,omitempty"`

	Parent    *File          `json:"parent,omitempty" gorm:"foreignKey:ParentID"`
	Children  []File         `json:"children,omitempty" gorm:"foreignKey:ParentID"`
	Owner     *User          `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Revisions []FileRevision `json:"revisions,omitempty" gorm:"foreignKey:FileID"`
}

// ContainerRef returns the tagged container reference this file carries.
func (f *File) ContainerRef() ContainerRef {
	return ContainerRef{Kind: f.ContainerKind, ID: f.ContainerID}
}
