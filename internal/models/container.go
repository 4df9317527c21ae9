package models

import (
	"fmt"

	"gorm.io/gorm"
)

// ContainerKind discriminates the two entities a File can belong to.
type ContainerKind string

const (
	ContainerKindStage     ContainerKind = "stage"
	ContainerKindIteration ContainerKind = "iteration"
)

func (k ContainerKind) Valid() bool {
	return k == ContainerKindStage || k == ContainerKindIteration
}

// Prefix is the short-ID prefix for the kind ("S" for stages, "I" for
// iterations).
func (k ContainerKind) Prefix() string {
	if k == ContainerKindIteration {
		return "I"
	}
	return "S"
}

// ContainerRef is the tagged reference a File carries to whatever owns
// it: exactly one of Stage(id) or Iteration(id).
type ContainerRef struct {
	Kind ContainerKind `json:"kind"`
	ID   uint          `json:"id"`
}

func (r ContainerRef) String() string {
	return fmt.Sprintf("%s_%d", r.Kind, r.ID)
}

// Container is a resolved Stage or Iteration.
type Container interface {
	ContainerKind() ContainerKind
	ContainerID() uint
	OwnerProductID() uint
	Sequence() int
	ShortID() string
}

type Stage struct {
	BaseModel
	ProductID      uint   `json:"productID" gorm:"not null;index:idx_stages_product_seq,unique,priority:1;index:idx_stages_product_name,unique,priority:1"`
	Name           string `json:"name" gorm:"type:varchar(255);not null;index:idx_stages_product_name,unique,priority:2"`
	Description    string `json:"description" gorm:"type:text"`
	SequenceNumber int    `json:"sequenceNumber" gorm:"not null;index:idx_stages_product_seq,unique,priority:2"`
	DisplayType    string `json:"displayType" gorm:"type:varchar(50)"`
	Color          string `json:"color" gorm:"type:varchar(20)"`
	SortOrder      int    `json:"sortOrder" gorm:"not null;default:0"`
	DisplayID      string `json:"displayID" gorm:"-"`

	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

func (s *Stage) ContainerKind() ContainerKind { return ContainerKindStage }
func (s *Stage) ContainerID() uint            { return s.ID }
func (s *Stage) OwnerProductID() uint         { return s.ProductID }
func (s *Stage) Sequence() int                { return s.SequenceNumber }

func (s *Stage) ShortID() string {
	return fmt.Sprintf("S%d", s.SequenceNumber)
}

func (s *Stage) AfterFind(*gorm.DB) error {
	s.DisplayID = s.ShortID()
	return nil
}

func (s *Stage) AfterCreate(*gorm.DB) error {
	s.DisplayID = s.ShortID()
	return nil
}

type Iteration struct {
	BaseModel
	ProductID      uint   `json:"productID" gorm:"not null;index:idx_iterations_product_seq,unique,priority:1;index:idx_iterations_product_name,unique,priority:1"`
	Name           string `json:"name" gorm:"type:varchar(255);not null;index:idx_iterations_product_name,unique,priority:2"`
	Description    string `json:"description" gorm:"type:text"`
	SequenceNumber int    `json:"sequenceNumber" gorm:"not null;index:idx_iterations_product_seq,unique,priority:2"`
	DisplayType    string `json:"displayType" gorm:"type:varchar(50)"`
	Color          string `json:"color" gorm:"type:varchar(20)"`
	SortOrder      int    `json:"sortOrder" gorm:"not null;default:0"`
	DisplayID      string `json:"displayID" gorm:"-"`

	Product *Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

func (i *Iteration) ContainerKind() ContainerKind { return ContainerKindIteration }
func (i *Iteration) ContainerID() uint            { return i.ID }
func (i *Iteration) OwnerProductID() uint         { return i.ProductID }
func (i *Iteration) Sequence() int                { return i.SequenceNumber }

func (i *Iteration) ShortID() string {
	return fmt.Sprintf("I%d", i.SequenceNumber)
}

func (i *Iteration) AfterFind(*gorm.DB) error {
	i.DisplayID = i.ShortID()
	return nil
}

func (i *Iteration) AfterCreate(*gorm.DB) error {
	i.DisplayID = i.ShortID()
	return nil
}
