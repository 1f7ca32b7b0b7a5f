package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/sufrahq/sufra/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const productColumns = `id, tenant_id, branch_id, sku, name, price, cost, category, available, image_url, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, branchID, id snowflake.ID) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+`
		 FROM products WHERE tenant_id = ? AND branch_id = ? AND id = ?
		 LIMIT 1`,
		tenantID,
		branchID,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindBySKU(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, sku string) (*domain.Product, error) {
	if sku == "" {
		return nil, nil
	}
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+`
		 FROM products WHERE tenant_id = ? AND branch_id = ? AND sku = ?
		 LIMIT 1`,
		tenantID,
		branchID,
		sku,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, name string) (*domain.Product, error) {
	if name == "" {
		return nil, nil
	}
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+`
		 FROM products WHERE tenant_id = ? AND branch_id = ? AND name = ?
		 LIMIT 1`,
		tenantID,
		branchID,
		name,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) ListAvailable(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID) ([]domain.Product, error) {
	var items []domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT `+productColumns+`
		 FROM products WHERE tenant_id = ? AND branch_id = ? AND available = ?
		 ORDER BY name ASC`,
		tenantID,
		branchID,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
