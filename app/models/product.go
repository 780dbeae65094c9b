package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ProductStatusActive   = "ACTIVE"
	ProductStatusSold     = "SOLD"
	ProductStatusHidden   = "HIDDEN"
	ProductStatusArchived = "ARCHIVED"
)

const (
	MinProductImages = 1
	MaxProductImages = 3
)

type Product struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	Title       string   `gorm:"type:varchar(200);not null" json:"title" validate:"required,min=3,max=200"`
	Description string   `gorm:"type:text;not null" json:"description" validate:"required,min=10,max=5000"`
	Price       float64  `gorm:"type:decimal(12,2);not null;index" json:"price" validate:"gt=0"`
	Images      []string `gorm:"serializer:json;type:text;not null" json:"images" validate:"min=1,max=3,dive,url"`
	CategoryID  uint     `gorm:"not null;index" json:"category_id" validate:"required"`
	UserID      uint     `gorm:"not null;index" json:"user_id"`
	City        string   `gorm:"type:varchar(100);index" json:"city" validate:"required,max=100"`
	State       string   `gorm:"type:varchar(100);index" json:"state" validate:"required,max=100"`
	Pincode     string   `gorm:"type:varchar(10)" json:"pincode" validate:"omitempty,numeric,len=6"`
	Latitude    float64  `gorm:"default:0" json:"latitude,omitempty"`
	Longitude   float64  `gorm:"default:0" json:"longitude,omitempty"`
	Status      string   `gorm:"type:varchar(20);default:'ACTIVE';not null;index" json:"status" validate:"oneof=ACTIVE SOLD HIDDEN ARCHIVED"`
	Views       int64    `gorm:"default:0" json:"views"`
	PhoneClicks int64    `gorm:"default:0" json:"phone_clicks"`

	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty" validate:"-"`
	User     *User     `gorm:"foreignKey:UserID" json:"seller,omitempty" validate:"-"`

	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (p *Product) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// IsOwnerSettableStatus lists the statuses an owner may set directly.
// HIDDEN belongs to subscription handling and moderation.
func IsOwnerSettableStatus(status string) bool {
	switch status {
	case ProductStatusActive, ProductStatusSold, ProductStatusArchived:
		return true
	}
	return false
}
