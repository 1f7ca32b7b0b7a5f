package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Product struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	BranchID  snowflake.ID `json:"branch_id" gorm:"not null;index"`
	SKU       string       `json:"sku" gorm:"type:text"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Price     float64      `json:"price" gorm:"not null"`
	Cost      float64      `json:"cost" gorm:"not null"`
	Category  string       `json:"category" gorm:"type:text"`
	Available bool         `json:"available" gorm:"not null;default:true"`
	ImageURL  string       `json:"image_url" gorm:"column:image_url;type:text"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }
