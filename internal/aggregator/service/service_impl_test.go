package service_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/sufrahq/sufra/internal/aggregator/adapters"
	"github.com/sufrahq/sufra/internal/aggregator/domain"
	aggregatorrepo "github.com/sufrahq/sufra/internal/aggregator/repository"
	aggregatorservice "github.com/sufrahq/sufra/internal/aggregator/service"
	"github.com/sufrahq/sufra/internal/aggregator/vault"
	catalogrepo "github.com/sufrahq/sufra/internal/catalog/repository"
	"github.com/sufrahq/sufra/internal/config"
	inventoryrepo "github.com/sufrahq/sufra/internal/inventory/repository"
	salerepo "github.com/sufrahq/sufra/internal/sale/repository"
	"github.com/sufrahq/sufra/pkg/tenantctx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	testMasterKey      = "test-master-key"
	testFallbackSecret = "env-fallback-secret"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE aggregator_orders (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			branch_id BIGINT NOT NULL,
			provider TEXT NOT NULL,
			provider_order_id TEXT NOT NULL,
			status TEXT NOT NULL,
			customer_name TEXT,
			customer_phone TEXT,
			customer_address TEXT,
			items TEXT,
			subtotal REAL NOT NULL DEFAULT 0,
			delivery_fee REAL NOT NULL DEFAULT 0,
			total REAL NOT NULL DEFAULT 0,
			vat REAL NOT NULL DEFAULT 0,
			commission REAL NOT NULL DEFAULT 0,
			service_fee REAL NOT NULL DEFAULT 0,
			payment_method TEXT,
			currency TEXT,
			notes TEXT,
			raw_payload TEXT,
			mapped_sale_id BIGINT,
			last_error TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			received_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX uq_aggregator_orders_provider_order ON aggregator_orders(provider, provider_order_id)`,
		`CREATE TABLE aggregator_order_events (
			id BIGINT PRIMARY KEY,
			order_id BIGINT NOT NULL,
			from_status TEXT,
			to_status TEXT NOT NULL,
			actor TEXT,
			note TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE aggregator_provider_configs (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			branch_id BIGINT NOT NULL,
			provider TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			credentials_enc TEXT,
			last_webhook_at TIMESTAMP,
			last_menu_sync TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX uq_aggregator_provider_configs ON aggregator_provider_configs(tenant_id, branch_id, provider)`,
		`CREATE TABLE products (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			branch_id BIGINT NOT NULL,
			sku TEXT,
			name TEXT NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			cost REAL NOT NULL DEFAULT 0,
			category TEXT,
			available BOOLEAN NOT NULL DEFAULT TRUE,
			image_url TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE product_stocks (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			branch_id BIGINT NOT NULL,
			product_id BIGINT NOT NULL,
			qty REAL NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE sales (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			branch_id BIGINT NOT NULL,
			invoice_no TEXT NOT NULL,
			source TEXT NOT NULL,
			source_ref TEXT,
			customer_name TEXT,
			customer_phone TEXT,
			subtotal REAL NOT NULL DEFAULT 0,
			delivery_fee REAL NOT NULL DEFAULT 0,
			discount REAL NOT NULL DEFAULT 0,
			total REAL NOT NULL DEFAULT 0,
			total_cost REAL NOT NULL DEFAULT 0,
			payment_method TEXT,
			status TEXT NOT NULL,
			notes TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE UNIQUE INDEX uq_sales_invoice ON sales(tenant_id, branch_id, invoice_no)`,
		`CREATE TABLE sale_items (
			id BIGINT PRIMARY KEY,
			sale_id BIGINT NOT NULL,
			product_id BIGINT,
			name TEXT NOT NULL,
			qty REAL NOT NULL DEFAULT 0,
			unit_price REAL NOT NULL DEFAULT 0,
			unit_cost REAL NOT NULL DEFAULT 0,
			total REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("schema exec failed: %v", err)
		}
	}

	return db
}

func newTestService(t *testing.T, db *gorm.DB, nodeID int64) (*aggregatorservice.Service, *vault.Vault, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	cfg := config.Config{
		MasterKey:       testMasterKey,
		WebhookSecrets:  map[string]string{"talabat": testFallbackSecret},
		DefaultTenantID: 1,
		DefaultBranchID: 1,
	}
	v := vault.NewWithKey(testMasterKey)

	svc := aggregatorservice.NewService(aggregatorservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Config:      cfg,
		Vault:       v,
		Registry:    adapters.Default(),
		Repo:        aggregatorrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		SaleRepo:    salerepo.Provide(),
		StockRepo:   inventoryrepo.Provide(),
	})
	return svc, v, node
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func staffCtx(tenantID, branchID int64) context.Context {
	return tenantctx.WithScope(context.Background(), tenantctx.Scope{
		TenantID: snowflake.ID(tenantID),
		BranchID: snowflake.ID(branchID),
		User:     "cashier-1",
	})
}

func talabatPayload(orderID string) []byte {
	return []byte(fmt.Sprintf(`{
		"order_id": %q,
		"customer": {"name": "Ahmed Ali", "phone": "+966501234567", "address": "King Fahd Rd, Riyadh"},
		"items": [
			{"id": "ITEM-1", "name": "Chicken Shawarma", "quantity": 2, "unit_price": 25},
			{"id": "ITEM-9", "name": "Hummus", "quantity": 1, "unit_price": 12}
		],
		"subtotal": 62,
		"delivery_fee": 5,
		"vat": 9.3,
		"commission": 12.4,
		"service_fee": 2,
		"total": 67,
		"payment_method": "cash",
		"notes": "extra garlic sauce"
	}`, orderID))
}

func seedProduct(t *testing.T, db *gorm.DB, node *snowflake.Node, tenantID, branchID int64, sku, name string, price, cost float64) snowflake.ID {
	t.Helper()
	id := node.Generate()
	now := time.Now().UTC()
	err := db.Exec(
		`INSERT INTO products (id, tenant_id, branch_id, sku, name, price, cost, category, available, image_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, tenantID, branchID, sku, name, price, cost, "mains", true, "", now, now,
	).Error
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return id
}

func seedStock(t *testing.T, db *gorm.DB, node *snowflake.Node, tenantID, branchID int64, productID snowflake.ID, qty float64) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO product_stocks (id, tenant_id, branch_id, product_id, qty, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		node.Generate(), tenantID, branchID, productID, qty, time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed stock: %v", err)
	}
}

func stockQty(t *testing.T, db *gorm.DB, productID snowflake.ID) float64 {
	t.Helper()
	var qty float64
	if err := db.Raw("SELECT qty FROM product_stocks WHERE product_id = ?", productID).Scan(&qty).Error; err != nil {
		t.Fatalf("query stock: %v", err)
	}
	return qty
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()
	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("%s: expected %d, got %d", query, expected, count)
	}
}

func TestIngestWebhookCreatesPendingOrder(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, 20)

	payload := talabatPayload("TLB-555")
	result, err := svc.IngestWebhook(ctx, "talabat", payload, sign(testFallbackSecret, payload))
	if err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("expected fresh order, got duplicate")
	}

	order := result.Order
	if order.Status != domain.StatusPending {
		t.Fatalf("expected status pending, got %s", order.Status)
	}
	if order.ProviderOrderID != "TLB-555" {
		t.Fatalf("expected provider order TLB-555, got %s", order.ProviderOrderID)
	}
	if order.TenantID != 1 || order.BranchID != 1 {
		t.Fatalf("expected fallback tenant scope 1/1, got %d/%d", order.TenantID, order.BranchID)
	}
	if order.CustomerName != "Ahmed Ali" {
		t.Fatalf("expected customer name, got %q", order.CustomerName)
	}
	if order.PaymentMethod != domain.PaymentCOD {
		t.Fatalf("expected cod payment, got %s", order.PaymentMethod)
	}
	if order.Total != 67 {
		t.Fatalf("expected total 67, got %v", order.Total)
	}

	assertCount(t, db, "SELECT COUNT(1) FROM aggregator_orders", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM aggregator_order_events", 1)

	// Financial breakdown fields survive on the row itself, not only
	// inside raw_payload.
	var fin struct {
		VAT        float64
		Commission float64
		ServiceFee float64
	}
	if err := db.Raw("SELECT vat, commission, service_fee FROM aggregator_orders LIMIT 1").Scan(&fin).Error; err != nil {
		t.Fatalf("scan financials: %v", err)
	}
	if fin.VAT != 9.3 || fin.Commission != 12.4 || fin.ServiceFee != 2 {
		t.Fatalf("expected vat 9.3 commission 12.4 service_fee 2, got %+v", fin)
	}

	var rawPayload string
	if err := db.Raw("SELECT raw_payload FROM aggregator_orders LIMIT 1").Scan(&rawPayload).Error; err != nil {
		t.Fatalf("scan raw_payload: %v", err)
	}
	if rawPayload != string(payload) {
		t.Fatalf("raw payload must be stored byte for byte")
	}
}

func TestIngestWebhookDuplicateAcknowledged(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, 21)

	payload := talabatPayload("TLB-777")
	signature := sign(testFallbackSecret, payload)

	first, err := svc.IngestWebhook(ctx, "talabat", payload, signature)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	second, err := svc.IngestWebhook(ctx, "talabat", payload, signature)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected duplicate acknowledgement")
	}
	if second.Order.ID != first.Order.ID {
		t.Fatalf("duplicate must return the original order")
	}

	assertCount(t, db, "SELECT COUNT(1) FROM aggregator_orders", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM aggregator_order_events", 1)
}

func TestIngestWebhookRejectsInvalidSignature(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, 22)

	payload := talabatPayload("TLB-888")
	if _, err := svc.IngestWebhook(ctx, "talabat", payload, sign("wrong-secret", payload)); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	assertCount(t, db, "SELECT COUNT(1) FROM aggregator_orders", 0)
}

func TestIngestWebhookNoTargetConfigured(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	node, err := snowflake.NewNode(23)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	// No stored configs and no fallback secret for the provider.
	svc := aggregatorservice.NewService(aggregatorservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Config:      config.Config{MasterKey: testMasterKey},
		Vault:       vault.NewWithKey(testMasterKey),
		Registry:    adapters.Default(),
		Repo:        aggregatorrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		SaleRepo:    salerepo.Provide(),
		StockRepo:   inventoryrepo.Provide(),
	})

	payload := talabatPayload("TLB-999")
	if _, err := svc.IngestWebhook(ctx, "talabat", payload, sign(testFallbackSecret, payload)); !errors.Is(err, domain.ErrNoWebhookTarget) {
		t.Fatalf("expected ErrNoWebhookTarget, got %v", err)
	}
}

func TestIngestWebhookUnknownAndUnsupportedProvider(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, 24)

	payload := talabatPayload("TLB-1")
	if _, err := svc.IngestWebhook(ctx, "doordash", payload, "sig"); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if _, err := svc.IngestWebhook(ctx, "mrsool", payload, "sig"); !errors.Is(err, domain.ErrWebhookUnsupported) {
		t.Fatalf("expected ErrWebhookUnsupported, got %v", err)
	}
}

func TestIngestWebhookMatchesStoredBranchConfig(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc, v, node := newTestService(t, db, 25)

	branchSecret := "branch-webhook-secret"
	encrypted, err := v.EncryptCredentials(domain.Credentials{WebhookSecret: branchSecret}, "talabat")
	if err != nil {
		t.Fatalf("encrypt credentials: %v", err)
	}
	now := time.Now().UTC()
	err = db.Exec(
		`INSERT INTO aggregator_provider_configs (id, tenant_id, branch_id, provider, enabled, credentials_enc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		node.Generate(), 42, 7, "talabat", true, encrypted, now, now,
	).Error
	if err != nil {
		t.Fatalf("seed provider config: %v", err)
	}

	payload := talabatPayload("TLB-4207")
	result, err := svc.IngestWebhook(ctx, "talabat", payload, sign(branchSecret, payload))
	if err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}
	if result.Order.TenantID != 42 || result.Order.BranchID != 7 {
		t.Fatalf("expected order routed to tenant 42 branch 7, got %d/%d", result.Order.TenantID, result.Order.BranchID)
	}

	var lastWebhookAt *time.Time
	if err := db.Raw("SELECT last_webhook_at FROM aggregator_provider_configs WHERE tenant_id = 42").Scan(&lastWebhookAt).Error; err != nil {
		t.Fatalf("scan last_webhook_at: %v", err)
	}
	if lastWebhookAt == nil {
		t.Fatalf("expected last_webhook_at to be recorded")
	}
}

func TestAcceptMapsOrderToSale(t *testing.T) {
	db := setupTestDB(t)
	svc, _, node := newTestService(t, db, 26)

	shawarmaID := seedProduct(t, db, node, 1, 1, "ITEM-1", "Chicken Shawarma", 25, 8)
	hummusID := seedProduct(t, db, node, 1, 1, "", "Hummus", 12, 3)
	seedStock(t, db, node, 1, 1, shawarmaID, 10)
	seedStock(t, db, node, 1, 1, hummusID, 4)

	payload := talabatPayload("TLB-555")
	ingested, err := svc.IngestWebhook(context.Background(), "talabat", payload, sign(testFallbackSecret, payload))
	if err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	ctx := staffCtx(1, 1)
	result, err := svc.Accept(ctx, ingested.Order.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.InvoiceNo != "AGG-1" {
		t.Fatalf("expected invoice AGG-1, got %s", result.InvoiceNo)
	}
	if result.Order.Status != domain.StatusAccepted {
		t.Fatalf("expected accepted, got %s", result.Order.Status)
	}
	if result.Order.MappedSaleID == nil || *result.Order.MappedSaleID != result.SaleID {
		t.Fatalf("expected mapped_sale_id to reference the created sale")
	}

	assertCount(t, db, "SELECT COUNT(1) FROM sales", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM sale_items", 2)

	// Cost comes from the catalog: 2x8 shawarma + 1x3 hummus.
	var totalCost float64
	if err := db.Raw("SELECT total_cost FROM sales LIMIT 1").Scan(&totalCost).Error; err != nil {
		t.Fatalf("scan total_cost: %v", err)
	}
	if totalCost != 19 {
		t.Fatalf("expected total_cost 19, got %v", totalCost)
	}

	var source string
	if err := db.Raw("SELECT source FROM sales LIMIT 1").Scan(&source).Error; err != nil {
		t.Fatalf("scan source: %v", err)
	}
	if source != "talabat" {
		t.Fatalf("expected sale source talabat, got %s", source)
	}

	if qty := stockQty(t, db, shawarmaID); qty != 8 {
		t.Fatalf("expected shawarma stock 8, got %v", qty)
	}
	if qty := stockQty(t, db, hummusID); qty != 3 {
		t.Fatalf("expected hummus stock 3, got %v", qty)
	}

	// Second accept on the same order must fail without a second sale.
	if _, err := svc.Accept(ctx, ingested.Order.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	assertCount(t, db, "SELECT COUNT(1) FROM sales", 1)
}

func TestAcceptSequencesInvoices(t *testing.T) {
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, 27)
	ctx := staffCtx(1, 1)

	for i, want := range []string{"AGG-1", "AGG-2", "AGG-3"} {
		payload := talabatPayload(fmt.Sprintf("TLB-%d", 100+i))
		ingested, err := svc.IngestWebhook(context.Background(), "talabat", payload, sign(testFallbackSecret, payload))
		if err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
		result, err := svc.Accept(ctx, ingested.Order.ID)
		if err != nil {
			t.Fatalf("accept %d: %v", i, err)
		}
		if result.InvoiceNo != want {
			t.Fatalf("expected invoice %s, got %s", want, result.InvoiceNo)
		}
	}
}

func TestAcceptFailureMarksMappingFailed(t *testing.T) {
	db := setupTestDB(t)
	svc, _, node := newTestService(t, db, 28)

	productID := seedProduct(t, db, node, 1, 1, "ITEM-1", "Chicken Shawarma", 25, 8)
	seedStock(t, db, node, 1, 1, productID, 10)

	payload := talabatPayload("TLB-600")
	ingested, err := svc.IngestWebhook(context.Background(), "talabat", payload, sign(testFallbackSecret, payload))
	if err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	// Break the sales table so the mapping transaction cannot commit.
	if err := db.Exec("DROP TABLE sales").Error; err != nil {
		t.Fatalf("drop sales: %v", err)
	}

	ctx := staffCtx(1, 1)
	if _, err := svc.Accept(ctx, ingested.Order.ID); !errors.Is(err, domain.ErrMappingFailed) {
		t.Fatalf("expected ErrMappingFailed, got %v", err)
	}

	order, _, err := svc.GetOrder(ctx, ingested.Order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.StatusMappingFailed {
		t.Fatalf("expected mapping_failed, got %s", order.Status)
	}
	if order.MappedSaleID != nil {
		t.Fatalf("expected no mapped sale on failure")
	}
	if order.RetryCount != 1 {
		t.Fatalf("expected retry_count 1, got %d", order.RetryCount)
	}
	if order.LastError == "" {
		t.Fatalf("expected last_error to be recorded")
	}

	// No partial side effects: stock untouched, no sale items.
	if qty := stockQty(t, db, productID); qty != 10 {
		t.Fatalf("expected stock untouched at 10, got %v", qty)
	}
	assertCount(t, db, "SELECT COUNT(1) FROM sale_items", 0)
}

func TestRetryAfterMappingFailure(t *testing.T) {
	db := setupTestDB(t)
	svc, _, node := newTestService(t, db, 29)

	productID := seedProduct(t, db, node, 1, 1, "ITEM-1", "Chicken Shawarma", 25, 8)
	seedStock(t, db, node, 1, 1, productID, 10)

	payload := talabatPayload("TLB-601")
	ingested, err := svc.IngestWebhook(context.Background(), "talabat", payload, sign(testFallbackSecret, payload))
	if err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}
	ctx := staffCtx(1, 1)

	// Corrupt the stored items so mapping fails deterministically.
	var storedItems string
	if err := db.Raw("SELECT items FROM aggregator_orders WHERE id = ?", ingested.Order.ID).Scan(&storedItems).Error; err != nil {
		t.Fatalf("scan items: %v", err)
	}
	if err := db.Exec("UPDATE aggregator_orders SET items = ? WHERE id = ?", "{not json", ingested.Order.ID).Error; err != nil {
		t.Fatalf("corrupt items: %v", err)
	}

	if _, err := svc.Accept(ctx, ingested.Order.ID); !errors.Is(err, domain.ErrMappingFailed) {
		t.Fatalf("expected ErrMappingFailed, got %v", err)
	}

	// Retry on anything but mapping_failed is rejected.
	retried, err := svc.Retry(ctx, ingested.Order.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != domain.StatusPending {
		t.Fatalf("expected pending after retry, got %s", retried.Status)
	}
	if retried.RetryCount != 2 {
		t.Fatalf("expected retry_count 2, got %d", retried.RetryCount)
	}
	if retried.LastError != "" {
		t.Fatalf("expected last_error cleared, got %q", retried.LastError)
	}
	if _, err := svc.Retry(ctx, ingested.Order.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for retry on pending, got %v", err)
	}

	// Repair the data and accept on the second pass.
	if err := db.Exec("UPDATE aggregator_orders SET items = ? WHERE id = ?", storedItems, ingested.Order.ID).Error; err != nil {
		t.Fatalf("restore items: %v", err)
	}
	result, err := svc.Accept(ctx, ingested.Order.ID)
	if err != nil {
		t.Fatalf("accept after retry: %v", err)
	}
	if result.InvoiceNo != "AGG-1" {
		t.Fatalf("expected invoice AGG-1, got %s", result.InvoiceNo)
	}
	if qty := stockQty(t, db, productID); qty != 8 {
		t.Fatalf("expected stock 8 after accept, got %v", qty)
	}
}

func TestRejectAndMarkReadyTransitions(t *testing.T) {
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, 30)
	ctx := staffCtx(1, 1)

	payload := talabatPayload("TLB-700")
	ingested, err := svc.IngestWebhook(context.Background(), "talabat", payload, sign(testFallbackSecret, payload))
	if err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	// Ready is only reachable from accepted or preparing.
	if _, err := svc.MarkReady(ctx, ingested.Order.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for ready on pending, got %v", err)
	}

	rejected, err := svc.Reject(ctx, ingested.Order.ID, "out of stock")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.StatusRejected {
		t.Fatalf("expected rejected, got %s", rejected.Status)
	}
	if _, err := svc.Reject(ctx, ingested.Order.ID, "again"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for double reject, got %v", err)
	}

	payload2 := talabatPayload("TLB-701")
	second, err := svc.IngestWebhook(context.Background(), "talabat", payload2, sign(testFallbackSecret, payload2))
	if err != nil {
		t.Fatalf("ingest second: %v", err)
	}
	if _, err := svc.Accept(ctx, second.Order.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	ready, err := svc.MarkReady(ctx, second.Order.ID)
	if err != nil {
		t.Fatalf("mark ready: %v", err)
	}
	if ready.Status != domain.StatusReady {
		t.Fatalf("expected ready, got %s", ready.Status)
	}

	_, events, err := svc.GetOrder(ctx, second.Order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 history events, got %d", len(events))
	}
	if events[0].ToStatus != domain.StatusPending || events[2].ToStatus != domain.StatusReady {
		t.Fatalf("unexpected event order: %s .. %s", events[0].ToStatus, events[2].ToStatus)
	}
}

func TestTenantIsolation(t *testing.T) {
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, 31)

	payload := talabatPayload("TLB-800")
	ingested, err := svc.IngestWebhook(context.Background(), "talabat", payload, sign(testFallbackSecret, payload))
	if err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	otherTenant := staffCtx(99, 99)
	if _, _, err := svc.GetOrder(otherTenant, ingested.Order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound across tenants, got %v", err)
	}
	if _, err := svc.Accept(otherTenant, ingested.Order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for cross-tenant accept, got %v", err)
	}

	orders, err := svc.ListOrders(otherTenant, domain.OrderFilter{})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(orders) != 0 {
		t.Fatalf("expected no visible orders for other tenant, got %d", len(orders))
	}

	if _, err := svc.Accept(context.Background(), ingested.Order.ID); !errors.Is(err, domain.ErrScopeMissing) {
		t.Fatalf("expected ErrScopeMissing without tenant scope, got %v", err)
	}
}

func TestPutConfigKeepsCredentialsWriteOnly(t *testing.T) {
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, 32)
	ctx := staffCtx(1, 1)

	view, err := svc.PutConfig(ctx, "talabat", domain.ConfigUpdate{
		Enabled:       true,
		APIKey:        "tlb-live-key",
		WebhookSecret: "tlb-webhook-secret",
	})
	if err != nil {
		t.Fatalf("put config: %v", err)
	}
	if !view.Enabled || !view.HasCredentials {
		t.Fatalf("expected enabled config with credentials, got %+v", view)
	}

	// Plaintext must never reach the database.
	var stored string
	if err := db.Raw("SELECT credentials_enc FROM aggregator_provider_configs LIMIT 1").Scan(&stored).Error; err != nil {
		t.Fatalf("scan credentials_enc: %v", err)
	}
	if stored == "" || containsAny(stored, "tlb-live-key", "tlb-webhook-secret") {
		t.Fatalf("credentials stored in plaintext")
	}

	// Toggling enabled without resubmitting credentials keeps them.
	view, err = svc.PutConfig(ctx, "talabat", domain.ConfigUpdate{Enabled: false})
	if err != nil {
		t.Fatalf("put config toggle: %v", err)
	}
	if view.Enabled {
		t.Fatalf("expected disabled config")
	}
	if !view.HasCredentials {
		t.Fatalf("expected credentials preserved on toggle")
	}

	got, err := svc.GetConfig(ctx, "talabat")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if !got.HasCredentials || got.Enabled {
		t.Fatalf("unexpected config view: %+v", got)
	}

	if _, err := svc.GetConfig(ctx, "doordash"); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestHealthReportsOrderCounts(t *testing.T) {
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, 33)
	ctx := staffCtx(1, 1)

	payload := talabatPayload("TLB-900")
	if _, err := svc.IngestWebhook(context.Background(), "talabat", payload, sign(testFallbackSecret, payload)); err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}

	health, err := svc.Health(ctx, "talabat")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Configured {
		t.Fatalf("expected unconfigured provider")
	}
	if health.PendingCount != 1 {
		t.Fatalf("expected 1 pending order, got %d", health.PendingCount)
	}
	if health.LastWebhook == nil {
		t.Fatalf("expected last webhook timestamp from order history")
	}

	all, err := svc.HealthAll(ctx)
	if err != nil {
		t.Fatalf("health all: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 provider snapshots, got %d", len(all))
	}

	if _, err := svc.Health(ctx, "doordash"); !errors.Is(err, domain.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestProvidersListsRegistry(t *testing.T) {
	db := setupTestDB(t)
	svc, _, _ := newTestService(t, db, 34)

	providers := svc.Providers()
	if len(providers) != 4 {
		t.Fatalf("expected 4 providers, got %d", len(providers))
	}
	if providers[0].Key != "talabat" || !providers[0].Capabilities.Webhook {
		t.Fatalf("expected talabat first with webhook capability, got %+v", providers[0])
	}
	for _, info := range providers {
		if info.MenuSyncEligible != info.Capabilities.SyncMenu {
			t.Fatalf("menu sync eligibility must follow the capability flag: %+v", info)
		}
	}
	if !providers[0].MenuSyncEligible {
		t.Fatalf("talabat supports menu sync and must be flagged eligible")
	}
}

func containsAny(s string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}
