package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	SourcePOS        = "pos"
	SourceAggregator = "aggregator"

	StatusCompleted = "completed"
)

type Sale struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID      snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	BranchID      snowflake.ID `json:"branch_id" gorm:"not null;index"`
	InvoiceNo     string       `json:"invoice_no" gorm:"type:text;not null"`
	Source        string       `json:"source" gorm:"type:text;not null"`
	SourceRef     string       `json:"source_ref" gorm:"type:text"`
	CustomerName  string       `json:"customer_name" gorm:"type:text"`
	CustomerPhone string       `json:"customer_phone" gorm:"type:text"`
	Subtotal      float64      `json:"subtotal" gorm:"not null"`
	DeliveryFee   float64      `json:"delivery_fee" gorm:"not null"`
	Discount      float64      `json:"discount" gorm:"not null"`
	Total         float64      `json:"total" gorm:"not null"`
	TotalCost     float64      `json:"total_cost" gorm:"not null"`
	PaymentMethod string       `json:"payment_method" gorm:"type:text"`
	Status        string       `json:"status" gorm:"type:text;not null"`
	Notes         string       `json:"notes" gorm:"type:text"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
}

func (Sale) TableName() string { return "sales" }

type SaleItem struct {
	ID        snowflake.ID  `json:"id" gorm:"primaryKey"`
	SaleID    snowflake.ID  `json:"sale_id" gorm:"not null;index"`
	ProductID *snowflake.ID `json:"product_id"`
	Name      string        `json:"name" gorm:"type:text;not null"`
	Qty       float64       `json:"qty" gorm:"not null"`
	UnitPrice float64       `json:"unit_price" gorm:"not null"`
	UnitCost  float64       `json:"unit_cost" gorm:"not null"`
	Total     float64       `json:"total" gorm:"not null"`
	CreatedAt time.Time     `json:"created_at" gorm:"not null"`
}

func (SaleItem) TableName() string { return "sale_items" }
