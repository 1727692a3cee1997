package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company represents the billing and organizational unit that employs users
type Company struct {
	ID                uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	Name              string     `json:"name" gorm:"not null"`
	IndustryID        *uuid.UUID `json:"industry_id,omitempty" gorm:"type:uuid"`
	Logo              *string    `json:"logo,omitempty"`
	IncludeLogoOnWall bool       `json:"include_logo_on_wall" gorm:"default:false"`
	Website           *string    `json:"website,omitempty"`
	CustomerID        *string    `json:"customer_id,omitempty"`
	Linkedin          *string    `json:"linkedin,omitempty"`
	Facebook          *string    `json:"facebook,omitempty"`
	Twitter           *string    `json:"twitter,omitempty"`
	BrandColor        *string    `json:"brand_color,omitempty"`
	Size              int        `json:"size" gorm:"default:0"`
	Country           *string    `json:"country,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Relationships
	Industry *Industry        `json:"industry,omitempty" gorm:"foreignKey:IndustryID"`
	Users    []User           `json:"users,omitempty" gorm:"foreignKey:CompanyID"`
	Cards    []Card           `json:"cards,omitempty" gorm:"foreignKey:CompanyID"`
	Hashtags []CompanyHashtag `json:"hashtags,omitempty" gorm:"foreignKey:CompanyID"`
}

func (Company) TableName() string {
	return "companies"
}

func (c *Company) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Industry is a static lookup table
type Industry struct {
	ID    uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Value string    `json:"value" gorm:"uniqueIndex;not null"`
}

func (Industry) TableName() string {
	return "industries"
}

func (i *Industry) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Hashtag is a reference value companies can associate themselves with
type Hashtag struct {
	ID    uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	Value string    `json:"value" gorm:"uniqueIndex;not null"`
}

func (Hashtag) TableName() string {
	return "hashtags"
}

func (h *Hashtag) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// CompanyHashtag joins companies to hashtags
type CompanyHashtag struct {
	CompanyID uuid.UUID `json:"company_id" gorm:"type:uuid;primaryKey"`
	HashtagID uuid.UUID `json:"hashtag_id" gorm:"type:uuid;primaryKey"`

	Hashtag *Hashtag `json:"hashtag,omitempty" gorm:"foreignKey:HashtagID"`
}

func (CompanyHashtag) TableName() string {
	return "company_hashtags"
}
