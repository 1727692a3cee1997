package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Card is a stored payment method reference. Exactly one of CompanyID or
// UserID is set; within one owner's card set at most one row has
// IsDefault=true, and exactly one once any card exists.
type Card struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	PaymentMethodID string     `json:"payment_method_id" gorm:"not null"`
	IsDefault       bool       `json:"is_default" gorm:"default:false"`
	CompanyID       *uuid.UUID `json:"company_id,omitempty" gorm:"type:uuid;index"`
	UserID          *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid;index"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (Card) TableName() string {
	return "cards"
}

func (c *Card) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
