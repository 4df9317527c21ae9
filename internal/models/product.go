package models

type Product struct {
	BaseModel
	Name        string `json:"name" gorm:"type:varchar(255);not null"`
	Description string `json:"description" gorm:"type:text"`
	OwnerID     *uint  `json:"ownerID,omitempty" gorm:"index"`

	Owner      *User       `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Stages     []Stage     `json:"stages,omitempty" gorm:"foreignKey:ProductID"`
	Iterations []Iteration `json:"iterations,omitempty" gorm:"foreignKey:ProductID"`
}
