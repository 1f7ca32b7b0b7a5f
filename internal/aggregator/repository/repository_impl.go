package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sufrahq/sufra/internal/aggregator/domain"
	pkgdb "github.com/sufrahq/sufra/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, tenant_id, branch_id, provider, provider_order_id, status,
	customer_name, customer_phone, customer_address, items,
	subtotal, delivery_fee, total, vat, commission, service_fee,
	payment_method, currency, notes,
	raw_payload, mapped_sale_id, last_error, retry_count,
	received_at, created_at, updated_at`

func (r *repo) InsertOrder(ctx context.Context, db *gorm.DB, order *domain.Order) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO aggregator_orders (
			id, tenant_id, branch_id, provider, provider_order_id, status,
			customer_name, customer_phone, customer_address, items,
			subtotal, delivery_fee, total, vat, commission, service_fee,
			payment_method, currency, notes,
			raw_payload, mapped_sale_id, last_error, retry_count,
			received_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, provider_order_id) DO NOTHING`,
		order.ID,
		order.TenantID,
		order.BranchID,
		order.Provider,
		order.ProviderOrderID,
		order.Status,
		order.CustomerName,
		order.CustomerPhone,
		order.CustomerAddress,
		order.Items,
		order.Subtotal,
		order.DeliveryFee,
		order.Total,
		order.VAT,
		order.Commission,
		order.ServiceFee,
		order.PaymentMethod,
		order.Currency,
		order.Notes,
		order.RawPayload,
		order.MappedSaleID,
		order.LastError,
		order.RetryCount,
		order.ReceivedAt,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if res.Error != nil {
		// Some dialects surface the conflict instead of swallowing it.
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindOrderByID(ctx context.Context, db *gorm.DB, tenantID, branchID, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM aggregator_orders
		 WHERE tenant_id = ? AND branch_id = ? AND id = ?
		 LIMIT 1`,
		tenantID,
		branchID,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindOrderByProviderRef(ctx context.Context, db *gorm.DB, provider, providerOrderID string) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM aggregator_orders
		 WHERE provider = ? AND provider_order_id = ?
		 LIMIT 1`,
		provider,
		providerOrderID,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListOrders(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, filter domain.OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + `
	 FROM aggregator_orders
	 WHERE tenant_id = ? AND branch_id = ?`
	args := []any{tenantID, branchID}

	if filter.Provider != "" {
		query += ` AND provider = ?`
		args = append(args, filter.Provider)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY received_at DESC`

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	var orders []domain.Order
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) UpdateOrder(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Exec(
		`UPDATE aggregator_orders
		 SET status = ?, mapped_sale_id = ?, last_error = ?, retry_count = ?, updated_at = ?
		 WHERE tenant_id = ? AND branch_id = ? AND id = ?`,
		order.Status,
		order.MappedSaleID,
		order.LastError,
		order.RetryCount,
		order.UpdatedAt,
		order.TenantID,
		order.BranchID,
		order.ID,
	).Error
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.OrderEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO aggregator_order_events (id, order_id, from_status, to_status, actor, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.OrderID,
		event.FromStatus,
		event.ToStatus,
		event.Actor,
		event.Note,
		event.CreatedAt,
	).Error
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.OrderEvent, error) {
	var events []domain.OrderEvent
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, from_status, to_status, actor, note, created_at
		 FROM aggregator_order_events
		 WHERE order_id = ?
		 ORDER BY created_at ASC, id ASC`,
		orderID,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) UpsertConfig(ctx context.Context, db *gorm.DB, config *domain.ProviderConfig) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO aggregator_provider_configs (
			id, tenant_id, branch_id, provider, enabled, credentials_enc,
			last_webhook_at, last_menu_sync, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, branch_id, provider) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			credentials_enc = EXCLUDED.credentials_enc,
			updated_at = EXCLUDED.updated_at`,
		config.ID,
		config.TenantID,
		config.BranchID,
		config.Provider,
		config.Enabled,
		config.CredentialsEnc,
		config.LastWebhookAt,
		config.LastMenuSync,
		config.CreatedAt,
		config.UpdatedAt,
	).Error
}

func (r *repo) FindConfig(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, provider string) (*domain.ProviderConfig, error) {
	var config domain.ProviderConfig
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, branch_id, provider, enabled, credentials_enc,
			last_webhook_at, last_menu_sync, created_at, updated_at
		 FROM aggregator_provider_configs
		 WHERE tenant_id = ? AND branch_id = ? AND provider = ?
		 LIMIT 1`,
		tenantID,
		branchID,
		provider,
	).Scan(&config).Error
	if err != nil {
		return nil, err
	}
	if config.ID == 0 {
		return nil, nil
	}
	return &config, nil
}

func (r *repo) ListEnabledConfigs(ctx context.Context, db *gorm.DB, provider string) ([]domain.ProviderConfig, error) {
	var configs []domain.ProviderConfig
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, branch_id, provider, enabled, credentials_enc,
			last_webhook_at, last_menu_sync, created_at, updated_at
		 FROM aggregator_provider_configs
		 WHERE provider = ? AND enabled = ?
		 ORDER BY created_at ASC`,
		provider,
		true,
	).Scan(&configs).Error
	if err != nil {
		return nil, err
	}
	return configs, nil
}

func (r *repo) TouchWebhook(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, provider string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE aggregator_provider_configs
		 SET last_webhook_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND branch_id = ? AND provider = ?`,
		at,
		at,
		tenantID,
		branchID,
		provider,
	).Error
}

func (r *repo) TouchMenuSync(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, provider string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE aggregator_provider_configs
		 SET last_menu_sync = ?, updated_at = ?
		 WHERE tenant_id = ? AND branch_id = ? AND provider = ?`,
		at,
		at,
		tenantID,
		branchID,
		provider,
	).Error
}

func (r *repo) CountOrdersByStatus(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, provider string) (domain.StatusCounts, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count
		 FROM aggregator_orders
		 WHERE tenant_id = ? AND branch_id = ? AND provider = ?
		 GROUP BY status`,
		tenantID,
		branchID,
		provider,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := domain.StatusCounts{}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (r *repo) LastReceivedAt(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, provider string) (*time.Time, error) {
	var row struct {
		LastReceivedAt *time.Time `gorm:"column:last_received_at"`
	}
	// MAX(received_at) loses the column's declared type on sqlite, so the
	// driver hands back a string the scanner cannot place into time.Time.
	// Selecting the column directly keeps the type on both dialects.
	err := db.WithContext(ctx).Raw(
		`SELECT received_at AS last_received_at
		 FROM aggregator_orders
		 WHERE tenant_id = ? AND branch_id = ? AND provider = ?
		 ORDER BY received_at DESC
		 LIMIT 1`,
		tenantID,
		branchID,
		provider,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return row.LastReceivedAt, nil
}
