package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sufrahq/sufra/internal/inventory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Decrement(ctx context.Context, db *gorm.DB, tenantID, branchID, productID snowflake.ID, qty float64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE product_stocks
		 SET qty = qty - ?, updated_at = ?
		 WHERE tenant_id = ? AND branch_id = ? AND product_id = ?`,
		qty,
		time.Now().UTC(),
		tenantID,
		branchID,
		productID,
	).Error
}

func (r *repo) FindByProduct(ctx context.Context, db *gorm.DB, tenantID, branchID, productID snowflake.ID) (*domain.ProductStock, error) {
	var stock domain.ProductStock
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, branch_id, product_id, qty, updated_at
		 FROM product_stocks
		 WHERE tenant_id = ? AND branch_id = ? AND product_id = ?
		 LIMIT 1`,
		tenantID,
		branchID,
		productID,
	).Scan(&stock).Error
	if err != nil {
		return nil, err
	}
	if stock.ID == 0 {
		return nil, nil
	}
	return &stock, nil
}
