package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type ProductStock struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	BranchID  snowflake.ID `json:"branch_id" gorm:"not null;index"`
	ProductID snowflake.ID `json:"product_id" gorm:"not null"`
	Qty       float64      `json:"qty" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (ProductStock) TableName() string { return "product_stocks" }
