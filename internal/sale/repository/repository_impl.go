package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/sufrahq/sufra/internal/sale/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, sale *domain.Sale, items []domain.SaleItem) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO sales (
			id, tenant_id, branch_id, invoice_no, source, source_ref,
			customer_name, customer_phone, subtotal, delivery_fee, discount,
			total, total_cost, payment_method, status, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID,
		sale.TenantID,
		sale.BranchID,
		sale.InvoiceNo,
		sale.Source,
		sale.SourceRef,
		sale.CustomerName,
		sale.CustomerPhone,
		sale.Subtotal,
		sale.DeliveryFee,
		sale.Discount,
		sale.Total,
		sale.TotalCost,
		sale.PaymentMethod,
		sale.Status,
		sale.Notes,
		sale.CreatedAt,
	).Error
	if err != nil {
		return err
	}

	for i := range items {
		item := items[i]
		err := db.WithContext(ctx).Exec(
			`INSERT INTO sale_items (
				id, sale_id, product_id, name, qty, unit_price, unit_cost, total, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.SaleID,
			item.ProductID,
			item.Name,
			item.Qty,
			item.UnitPrice,
			item.UnitCost,
			item.Total,
			item.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, branchID, id snowflake.ID) (*domain.Sale, error) {
	var s domain.Sale
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, branch_id, invoice_no, source, source_ref,
			customer_name, customer_phone, subtotal, delivery_fee, discount,
			total, total_cost, payment_method, status, notes, created_at
		 FROM sales WHERE tenant_id = ? AND branch_id = ? AND id = ?
		 LIMIT 1`,
		tenantID,
		branchID,
		id,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) LastAggregatorSeq(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID) (int64, error) {
	var seq int64
	// SUBSTR(invoice_no, 5) strips the AGG- prefix; works on both the
	// postgres and sqlite dialects we run against.
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(CAST(SUBSTR(invoice_no, 5) AS INTEGER)), 0)
		 FROM sales
		 WHERE tenant_id = ? AND branch_id = ? AND invoice_no LIKE 'AGG-%'`,
		tenantID,
		branchID,
	).Scan(&seq).Error
	if err != nil {
		return 0, err
	}
	return seq, nil
}
