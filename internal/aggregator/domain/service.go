package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// IngestResult reports the outcome of a webhook delivery. Duplicate
// deliveries are acknowledged, not errored.
type IngestResult struct {
	Order     *Order
	Duplicate bool
}

// AcceptResult is returned when an order is mapped into a sale.
type AcceptResult struct {
	SaleID    snowflake.ID
	InvoiceNo string
	Order     *Order
}

// ProviderInfo is the registry view exposed to staff. MenuSyncEligible
// drives which providers the menu-sync action is offered for.
type ProviderInfo struct {
	Key              string       `json:"key"`
	Display          DisplayInfo  `json:"display"`
	Capabilities     Capabilities `json:"capabilities"`
	MenuSyncEligible bool         `json:"menu_sync_eligible"`
}

// ConfigView is the readable projection of a provider config. Plaintext
// credentials are never read back.
type ConfigView struct {
	Provider       string     `json:"provider"`
	Enabled        bool       `json:"enabled"`
	HasCredentials bool       `json:"has_credentials"`
	LastMenuSync   *time.Time `json:"last_menu_sync,omitempty"`
}

// ConfigUpdate is the write shape for provider configuration.
type ConfigUpdate struct {
	APIKey        string `json:"api_key"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	WebhookSecret string `json:"webhook_secret"`
	Endpoint      string `json:"endpoint"`
	Enabled       bool   `json:"enabled"`
}

// ProviderHealth is the operational snapshot for one provider.
type ProviderHealth struct {
	Provider     string       `json:"provider"`
	Configured   bool         `json:"configured"`
	Enabled      bool         `json:"enabled"`
	Connected    bool         `json:"connected"`
	LastWebhook  *time.Time   `json:"last_webhook,omitempty"`
	OrderCounts  StatusCounts `json:"order_counts"`
	PendingCount int64        `json:"pending_count"`
	FailedCount  int64        `json:"failed_count"`
}

// Service is the reconciliation engine. Staff-facing methods read the
// tenant/branch scope from the request context; orders outside the
// caller's scope are reported as not found.
type Service interface {
	IngestWebhook(ctx context.Context, provider string, rawBody []byte, signature string) (*IngestResult, error)

	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	GetOrder(ctx context.Context, id snowflake.ID) (*Order, []OrderEvent, error)
	Accept(ctx context.Context, id snowflake.ID) (*AcceptResult, error)
	Reject(ctx context.Context, id snowflake.ID, reason string) (*Order, error)
	MarkReady(ctx context.Context, id snowflake.ID) (*Order, error)
	Retry(ctx context.Context, id snowflake.ID) (*Order, error)

	Providers() []ProviderInfo
	GetConfig(ctx context.Context, provider string) (*ConfigView, error)
	PutConfig(ctx context.Context, provider string, update ConfigUpdate) (*ConfigView, error)
	SyncMenu(ctx context.Context, provider string) error

	Health(ctx context.Context, provider string) (*ProviderHealth, error)
	HealthAll(ctx context.Context) ([]ProviderHealth, error)
}
