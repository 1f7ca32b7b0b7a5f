package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// OrderFilter narrows staff-facing order listings.
type OrderFilter struct {
	Provider string
	Status   string
	Limit    int
}

// StatusCounts maps status -> number of orders in that status.
type StatusCounts map[string]int64

type Repository interface {
	// InsertOrder persists a new order. Returns false when the
	// (provider, provider_order_id) pair already exists.
	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) (bool, error)
	FindOrderByID(ctx context.Context, db *gorm.DB, tenantID, branchID, id snowflake.ID) (*Order, error)
	FindOrderByProviderRef(ctx context.Context, db *gorm.DB, provider, providerOrderID string) (*Order, error)
	ListOrders(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, filter OrderFilter) ([]Order, error)
	UpdateOrder(ctx context.Context, db *gorm.DB, order *Order) error

	InsertEvent(ctx context.Context, db *gorm.DB, event *OrderEvent) error
	ListEvents(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderEvent, error)

	UpsertConfig(ctx context.Context, db *gorm.DB, config *ProviderConfig) error
	FindConfig(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, provider string) (*ProviderConfig, error)
	ListEnabledConfigs(ctx context.Context, db *gorm.DB, provider string) ([]ProviderConfig, error)
	TouchWebhook(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, provider string, at time.Time) error
	TouchMenuSync(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, provider string, at time.Time) error

	CountOrdersByStatus(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, provider string) (StatusCounts, error)
	LastReceivedAt(ctx context.Context, db *gorm.DB, tenantID, branchID snowflake.ID, provider string) (*time.Time, error)
}
