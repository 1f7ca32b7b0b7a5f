package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, tenantID, branchID, id snowflake.ID) (*Product, error)
	FindBySKU(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, sku string) (*Product, error)
	FindByName(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, name string) (*Product, error)
	ListAvailable(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID) ([]Product, error)
}
