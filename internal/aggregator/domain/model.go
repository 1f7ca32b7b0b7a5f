package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Order lifecycle statuses. An order is created pending and is never
// deleted; it is the permanent audit record of every provider interaction.
const (
	StatusPending       = "pending"
	StatusAccepted      = "accepted"
	StatusPreparing     = "preparing"
	StatusReady         = "ready"
	StatusDelivered     = "delivered"
	StatusRejected      = "rejected"
	StatusMappingFailed = "mapping_failed"
)

const (
	PaymentOnline = "online"
	PaymentCOD    = "cod"
)

// Order is the persisted form of an inbound aggregator order.
// (provider, provider_order_id) is the idempotency key.
type Order struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	TenantID        snowflake.ID   `json:"tenant_id" gorm:"not null;index"`
	BranchID        snowflake.ID   `json:"branch_id" gorm:"not null;index"`
	Provider        string         `json:"provider" gorm:"type:text;not null"`
	ProviderOrderID string         `json:"provider_order_id" gorm:"type:text;not null"`
	Status          string         `json:"status" gorm:"type:text;not null"`
	CustomerName    string         `json:"customer_name" gorm:"type:text"`
	CustomerPhone   string         `json:"customer_phone" gorm:"type:text"`
	CustomerAddress string         `json:"customer_address" gorm:"type:text"`
	Items           datatypes.JSON `json:"items" gorm:"type:jsonb"`
	Subtotal        float64        `json:"subtotal" gorm:"not null"`
	DeliveryFee     float64        `json:"delivery_fee" gorm:"not null"`
	Total           float64        `json:"total" gorm:"not null"`
	VAT             float64        `json:"vat" gorm:"column:vat;not null"`
	Commission      float64        `json:"commission" gorm:"not null"`
	ServiceFee      float64        `json:"service_fee" gorm:"not null"`
	PaymentMethod   string         `json:"payment_method" gorm:"type:text"`
	Currency        string         `json:"currency" gorm:"type:text"`
	Notes           string         `json:"notes" gorm:"type:text"`
	RawPayload      datatypes.JSON `json:"raw_payload" gorm:"type:jsonb"`
	MappedSaleID    *snowflake.ID  `json:"mapped_sale_id"`
	LastError       string         `json:"last_error" gorm:"type:text"`
	RetryCount      int            `json:"retry_count" gorm:"not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	CreatedAt       time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time      `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "aggregator_orders" }

// OrderEvent is one entry of an order's append-only status history.
type OrderEvent struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID    snowflake.ID `json:"order_id" gorm:"not null;index"`
	FromStatus string       `json:"from_status" gorm:"type:text"`
	ToStatus   string       `json:"to_status" gorm:"type:text;not null"`
	Actor      string       `json:"actor" gorm:"type:text"`
	Note       string       `json:"note" gorm:"type:text"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
}

func (OrderEvent) TableName() string { return "aggregator_order_events" }

// ProviderConfig stores a branch's integration settings for one provider.
// Credentials are encrypted at rest; plaintext never touches the database.
type ProviderConfig struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID       snowflake.ID `json:"tenant_id" gorm:"not null;index"`
	BranchID       snowflake.ID `json:"branch_id" gorm:"not null;index"`
	Provider       string       `json:"provider" gorm:"type:text;not null"`
	Enabled        bool         `json:"enabled" gorm:"not null"`
	CredentialsEnc string       `json:"-" gorm:"column:credentials_enc;type:text"`
	LastWebhookAt  *time.Time   `json:"last_webhook_at"`
	LastMenuSync   *time.Time   `json:"last_menu_sync"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (ProviderConfig) TableName() string { return "aggregator_provider_configs" }

// Credentials is the plaintext credential set held only in memory.
type Credentials struct {
	APIKey        string `json:"api_key,omitempty"`
	ClientID      string `json:"client_id,omitempty"`
	ClientSecret  string `json:"client_secret,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
	Endpoint      string `json:"endpoint,omitempty"`
}

// NormalizedOrder is the provider-agnostic shape adapters parse payloads into.
type NormalizedOrder struct {
	ProviderOrderID string
	Customer        Customer
	Items           []OrderItem
	Financials      Financials
	PaymentMethod   string
	Notes           string
}

type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type OrderItem struct {
	ProviderItemID string  `json:"provider_item_id"`
	Name           string  `json:"name"`
	Qty            float64 `json:"qty"`
	Price          float64 `json:"price"`
	Notes          string  `json:"notes,omitempty"`
}

type Financials struct {
	Subtotal    float64 `json:"subtotal"`
	Total       float64 `json:"total"`
	VAT         float64 `json:"vat"`
	Currency    string  `json:"currency"`
	Commission  float64 `json:"commission"`
	ServiceFee  float64 `json:"service_fee"`
	DeliveryFee float64 `json:"delivery_fee"`
}

// MenuItem is one catalog entry pushed to a provider during menu sync.
type MenuItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Category    string  `json:"category,omitempty"`
	Available   bool    `json:"available"`
	ImageURL    string  `json:"image_url,omitempty"`
}
