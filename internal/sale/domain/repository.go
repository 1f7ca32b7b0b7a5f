package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, sale *Sale, items []SaleItem) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, branchID, id snowflake.ID) (*Sale, error)
	// LastAggregatorSeq returns the highest numeric suffix among AGG-<n>
	// invoice numbers for the tenant/branch, 0 when none exist.
	LastAggregatorSeq(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID) (int64, error)
}
