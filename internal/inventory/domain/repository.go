package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Decrement atomically subtracts qty from the stock row. The row's qty
	// may go negative; oversells are recorded, not blocked.
	Decrement(ctx context.Context, db *gorm.DB, tenantID, branchID, productID snowflake.ID, qty float64) error
	FindByProduct(ctx context.Context, db *gorm.DB, tenantID, branchID, productID snowflake.ID) (*ProductStock, error)
}
