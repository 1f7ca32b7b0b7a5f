package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sufrahq/sufra/internal/aggregator/adapters"
	"github.com/sufrahq/sufra/internal/aggregator/domain"
	"github.com/sufrahq/sufra/internal/aggregator/vault"
	catalogdomain "github.com/sufrahq/sufra/internal/catalog/domain"
	"github.com/sufrahq/sufra/internal/config"
	inventorydomain "github.com/sufrahq/sufra/internal/inventory/domain"
	obsmetrics "github.com/sufrahq/sufra/internal/observability/metrics"
	saledomain "github.com/sufrahq/sufra/internal/sale/domain"
	"github.com/sufrahq/sufra/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Config      config.Config
	Vault       *vault.Vault
	Registry    *adapters.Registry
	Repo        domain.Repository
	CatalogRepo catalogdomain.Repository
	SaleRepo    saledomain.Repository
	StockRepo   inventorydomain.Repository
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	cfg         config.Config
	vault       *vault.Vault
	registry    *adapters.Registry
	repo        domain.Repository
	catalogRepo catalogdomain.Repository
	saleRepo    saledomain.Repository
	stockRepo   inventorydomain.Repository
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("aggregator.service"),
		genID:       p.GenID,
		cfg:         p.Config,
		vault:       p.Vault,
		registry:    p.Registry,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		saleRepo:    p.SaleRepo,
		stockRepo:   p.StockRepo,
		obsMetrics:  p.ObsMetrics,
	}
}

var _ domain.Service = (*Service)(nil)

// IngestWebhook verifies, normalizes and persists an inbound order.
// Signature verification runs over the raw bytes before any parsing, and
// resolves tenancy by matching the signature against each enabled branch
// configuration for the provider, falling back to the deploy-level secret.
func (s *Service) IngestWebhook(ctx context.Context, provider string, rawBody []byte, signature string) (*domain.IngestResult, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter := s.registry.Get(provider)
	if adapter == nil {
		return nil, domain.ErrUnknownProvider
	}
	if !adapter.Capabilities().Webhook {
		return nil, domain.ErrWebhookUnsupported
	}

	scope, matchedConfig, err := s.matchWebhookTarget(ctx, adapter, rawBody, signature)
	if err != nil {
		s.recordWebhook(ctx, provider, "rejected")
		return nil, err
	}

	normalized, err := adapter.ParseOrder(rawBody)
	if err != nil {
		s.recordWebhook(ctx, provider, "invalid")
		return nil, err
	}

	itemsJSON, err := json.Marshal(normalized.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:              s.genID.Generate(),
		TenantID:        scope.TenantID,
		BranchID:        scope.BranchID,
		Provider:        provider,
		ProviderOrderID: normalized.ProviderOrderID,
		Status:          domain.StatusPending,
		CustomerName:    normalized.Customer.Name,
		CustomerPhone:   normalized.Customer.Phone,
		CustomerAddress: normalized.Customer.Address,
		Items:           datatypes.JSON(itemsJSON),
		Subtotal:        normalized.Financials.Subtotal,
		DeliveryFee:     normalized.Financials.DeliveryFee,
		Total:           normalized.Financials.Total,
		VAT:             normalized.Financials.VAT,
		Commission:      normalized.Financials.Commission,
		ServiceFee:      normalized.Financials.ServiceFee,
		PaymentMethod:   normalized.PaymentMethod,
		Currency:        normalized.Financials.Currency,
		Notes:           normalized.Notes,
		RawPayload:      datatypes.JSON(rawBody),
		ReceivedAt:      now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	inserted, err := s.repo.InsertOrder(ctx, s.db, order)
	if err != nil {
		return nil, err
	}
	if !inserted {
		existing, err := s.repo.FindOrderByProviderRef(ctx, s.db, provider, normalized.ProviderOrderID)
		if err != nil {
			return nil, err
		}
		s.recordWebhook(ctx, provider, "duplicate")
		s.log.Info("duplicate webhook acknowledged",
			zap.String("provider", provider),
			zap.String("provider_order_id", normalized.ProviderOrderID),
		)
		return &domain.IngestResult{Order: existing, Duplicate: true}, nil
	}

	if err := s.repo.InsertEvent(ctx, s.db, &domain.OrderEvent{
		ID:        s.genID.Generate(),
		OrderID:   order.ID,
		ToStatus:  domain.StatusPending,
		Actor:     "webhook",
		Note:      "order received from " + provider,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}

	if matchedConfig != nil {
		if err := s.repo.TouchWebhook(ctx, s.db, scope.TenantID, scope.BranchID, provider, now); err != nil {
			s.log.Warn("failed to record webhook timestamp", zap.String("provider", provider), zap.Error(err))
		}
	}

	s.recordWebhook(ctx, provider, "ingested")
	if s.obsMetrics != nil {
		s.obsMetrics.RecordOrderIngested(ctx, provider)
	}
	s.log.Info("aggregator order ingested",
		zap.String("provider", provider),
		zap.String("provider_order_id", order.ProviderOrderID),
		zap.Int64("order_id", int64(order.ID)),
	)
	return &domain.IngestResult{Order: order}, nil
}

// matchWebhookTarget finds the branch whose stored webhook secret signs
// the payload. The env fallback secret covers single-tenant installs.
func (s *Service) matchWebhookTarget(ctx context.Context, adapter domain.Adapter, rawBody []byte, signature string) (tenantctx.Scope, *domain.ProviderConfig, error) {
	provider := adapter.Provider()

	configs, err := s.repo.ListEnabledConfigs(ctx, s.db, provider)
	if err != nil {
		return tenantctx.Scope{}, nil, err
	}

	candidates := 0
	for i := range configs {
		cfg := configs[i]
		creds, err := s.vault.DecryptCredentials(cfg.CredentialsEnc, provider)
		if err != nil {
			s.log.Warn("skipping undecryptable provider config",
				zap.String("provider", provider),
				zap.Int64("tenant_id", int64(cfg.TenantID)),
				zap.Error(err),
			)
			continue
		}
		if creds.WebhookSecret == "" {
			continue
		}
		candidates++
		if adapter.VerifySignature(rawBody, signature, creds.WebhookSecret) {
			return tenantctx.Scope{TenantID: cfg.TenantID, BranchID: cfg.BranchID}, &cfg, nil
		}
	}

	if fallback := s.cfg.WebhookSecret(provider); fallback != "" {
		candidates++
		if adapter.VerifySignature(rawBody, signature, fallback) {
			return tenantctx.Scope{
				TenantID: snowflake.ID(s.cfg.DefaultTenantID),
				BranchID: snowflake.ID(s.cfg.DefaultBranchID),
			}, nil, nil
		}
	}

	if candidates == 0 {
		return tenantctx.Scope{}, nil, domain.ErrNoWebhookTarget
	}
	return tenantctx.Scope{}, nil, domain.ErrInvalidSignature
}

func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}
	filter.Provider = strings.ToLower(strings.TrimSpace(filter.Provider))
	filter.Status = strings.ToLower(strings.TrimSpace(filter.Status))
	return s.repo.ListOrders(ctx, s.db, scope.TenantID, scope.BranchID, filter)
}

func (s *Service) GetOrder(ctx context.Context, id snowflake.ID) (*domain.Order, []domain.OrderEvent, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	order, err := s.repo.FindOrderByID(ctx, s.db, scope.TenantID, scope.BranchID, id)
	if err != nil {
		return nil, nil, err
	}
	if order == nil {
		return nil, nil, domain.ErrOrderNotFound
	}
	events, err := s.repo.ListEvents(ctx, s.db, order.ID)
	if err != nil {
		return nil, nil, err
	}
	return order, events, nil
}

// Accept maps a pending order into a POS sale. The sale insert, order
// update and history entry commit atomically; a failure anywhere in the
// mapping marks the order mapping_failed with no partial sale. Stock is
// decremented after commit and provider notification is best-effort,
// both by design: the local sale is the source of truth.
func (s *Service) Accept(ctx context.Context, id snowflake.ID) (*domain.AcceptResult, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	type stockOp struct {
		productID snowflake.ID
		qty       float64
	}
	var (
		result   *domain.AcceptResult
		stockOps []stockOp
	)

	txErr := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindOrderByID(ctx, tx, scope.TenantID, scope.BranchID, id)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		if order.Status != domain.StatusPending {
			return fmt.Errorf("%w: accept requires pending, order is %s", domain.ErrInvalidTransition, order.Status)
		}

		var items []domain.OrderItem
		if len(order.Items) > 0 {
			if err := json.Unmarshal(order.Items, &items); err != nil {
				return fmt.Errorf("decode order items: %w", err)
			}
		}

		seq, err := s.saleRepo.LastAggregatorSeq(ctx, tx, scope.TenantID, scope.BranchID)
		if err != nil {
			return err
		}
		invoiceNo := "AGG-" + strconv.FormatInt(seq+1, 10)

		now := time.Now().UTC()
		sale := &saledomain.Sale{
			ID:            s.genID.Generate(),
			TenantID:      scope.TenantID,
			BranchID:      scope.BranchID,
			InvoiceNo:     invoiceNo,
			Source:        order.Provider,
			SourceRef:     order.ProviderOrderID,
			CustomerName:  order.CustomerName,
			CustomerPhone: order.CustomerPhone,
			Subtotal:      order.Subtotal,
			DeliveryFee:   order.DeliveryFee,
			Total:         order.Total,
			PaymentMethod: order.PaymentMethod,
			Status:        saledomain.StatusCompleted,
			Notes:         order.Notes,
			CreatedAt:     now,
		}

		saleItems := make([]saledomain.SaleItem, 0, len(items))
		stockOps = stockOps[:0]
		for _, item := range items {
			// Providers report price but never cost; pull the cost
			// snapshot from the catalog.
			unitCost := 0.0
			var productID *snowflake.ID
			product, err := s.lookupProduct(ctx, tx, scope, item)
			if err != nil {
				return err
			}
			if product != nil {
				unitCost = product.Cost
				pid := product.ID
				productID = &pid
				stockOps = append(stockOps, stockOp{productID: pid, qty: item.Qty})
			}
			saleItems = append(saleItems, saledomain.SaleItem{
				ID:        s.genID.Generate(),
				SaleID:    sale.ID,
				ProductID: productID,
				Name:      item.Name,
				Qty:       item.Qty,
				UnitPrice: item.Price,
				UnitCost:  unitCost,
				Total:     item.Qty * item.Price,
				CreatedAt: now,
			})
			sale.TotalCost += unitCost * item.Qty
		}

		if err := s.saleRepo.Create(ctx, tx, sale, saleItems); err != nil {
			return err
		}

		previous := order.Status
		saleID := sale.ID
		order.Status = domain.StatusAccepted
		order.MappedSaleID = &saleID
		order.LastError = ""
		order.UpdatedAt = now
		if err := s.repo.UpdateOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := s.repo.InsertEvent(ctx, tx, &domain.OrderEvent{
			ID:         s.genID.Generate(),
			OrderID:    order.ID,
			FromStatus: previous,
			ToStatus:   domain.StatusAccepted,
			Actor:      scope.User,
			Note:       "mapped to sale " + invoiceNo,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		result = &domain.AcceptResult{SaleID: sale.ID, InvoiceNo: invoiceNo, Order: order}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, domain.ErrOrderNotFound) || errors.Is(txErr, domain.ErrInvalidTransition) {
			return nil, txErr
		}
		return nil, s.recordMappingFailure(ctx, scope, id, txErr)
	}

	// Post-commit effects. Stock failures are logged, never unwound:
	// an audited overshoot beats blocking acceptance on inventory
	// flakiness in a staff-mediated flow.
	for _, op := range stockOps {
		if err := s.stockRepo.Decrement(ctx, s.db, scope.TenantID, scope.BranchID, op.productID, op.qty); err != nil {
			s.log.Error("stock decrement failed",
				zap.Int64("order_id", int64(id)),
				zap.Int64("product_id", int64(op.productID)),
				zap.Float64("qty", op.qty),
				zap.Error(err),
			)
		}
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordOrderAccepted(ctx, result.Order.Provider)
	}
	s.pushStatusAsync(scope, result.Order.Provider, result.Order.ProviderOrderID, domain.StatusAccepted)

	return result, nil
}

func (s *Service) lookupProduct(ctx context.Context, tx *gorm.DB, scope tenantctx.Scope, item domain.OrderItem) (*catalogdomain.Product, error) {
	product, err := s.catalogRepo.FindBySKU(ctx, tx, scope.TenantID, scope.BranchID, item.ProviderItemID)
	if err != nil {
		return nil, err
	}
	if product != nil {
		return product, nil
	}
	return s.catalogRepo.FindByName(ctx, tx, scope.TenantID, scope.BranchID, item.Name)
}

// recordMappingFailure flags the order for manual retry. This runs on
// the base connection, after the mapping transaction rolled back.
func (s *Service) recordMappingFailure(ctx context.Context, scope tenantctx.Scope, id snowflake.ID, cause error) error {
	order, err := s.repo.FindOrderByID(ctx, s.db, scope.TenantID, scope.BranchID, id)
	if err != nil || order == nil {
		s.log.Error("could not record mapping failure", zap.Int64("order_id", int64(id)), zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrMappingFailed, cause)
	}

	now := time.Now().UTC()
	previous := order.Status
	order.Status = domain.StatusMappingFailed
	order.MappedSaleID = nil
	order.LastError = cause.Error()
	order.RetryCount++
	order.UpdatedAt = now
	if err := s.repo.UpdateOrder(ctx, s.db, order); err != nil {
		s.log.Error("could not persist mapping failure", zap.Int64("order_id", int64(id)), zap.Error(err))
	}
	if err := s.repo.InsertEvent(ctx, s.db, &domain.OrderEvent{
		ID:         s.genID.Generate(),
		OrderID:    order.ID,
		FromStatus: previous,
		ToStatus:   domain.StatusMappingFailed,
		Actor:      scope.User,
		Note:       order.LastError,
		CreatedAt:  now,
	}); err != nil {
		s.log.Error("could not persist mapping failure event", zap.Int64("order_id", int64(id)), zap.Error(err))
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordMappingFailure(ctx, order.Provider, "accept")
	}
	s.log.Error("order mapping failed",
		zap.Int64("order_id", int64(id)),
		zap.String("provider", order.Provider),
		zap.Int("retry_count", order.RetryCount),
		zap.Error(cause),
	)
	return fmt.Errorf("%w: %v", domain.ErrMappingFailed, cause)
}

func (s *Service) Reject(ctx context.Context, id snowflake.ID, reason string) (*domain.Order, error) {
	order, err := s.transition(ctx, id, []string{domain.StatusPending}, domain.StatusRejected, strings.TrimSpace(reason))
	if err != nil {
		return nil, err
	}
	scope, _ := scopeFrom(ctx)
	s.pushStatusAsync(scope, order.Provider, order.ProviderOrderID, domain.StatusRejected)
	return order, nil
}

func (s *Service) MarkReady(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	order, err := s.transition(ctx, id, []string{domain.StatusAccepted, domain.StatusPreparing}, domain.StatusReady, "")
	if err != nil {
		return nil, err
	}
	scope, _ := scopeFrom(ctx)
	s.pushStatusAsync(scope, order.Provider, order.ProviderOrderID, domain.StatusReady)
	return order, nil
}

func (s *Service) Retry(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	var updated *domain.Order
	err = s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindOrderByID(ctx, tx, scope.TenantID, scope.BranchID, id)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		if order.Status != domain.StatusMappingFailed {
			return fmt.Errorf("%w: retry requires mapping_failed, order is %s", domain.ErrInvalidTransition, order.Status)
		}

		now := time.Now().UTC()
		order.Status = domain.StatusPending
		order.LastError = ""
		order.RetryCount++
		order.UpdatedAt = now
		if err := s.repo.UpdateOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := s.repo.InsertEvent(ctx, tx, &domain.OrderEvent{
			ID:         s.genID.Generate(),
			OrderID:    order.ID,
			FromStatus: domain.StatusMappingFailed,
			ToStatus:   domain.StatusPending,
			Actor:      scope.User,
			Note:       "retry attempt " + strconv.Itoa(order.RetryCount),
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// transition re-reads the order inside a transaction and applies a
// simple status change. Accept and Retry have their own paths.
func (s *Service) transition(ctx context.Context, id snowflake.ID, from []string, to, note string) (*domain.Order, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	var updated *domain.Order
	err = s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindOrderByID(ctx, tx, scope.TenantID, scope.BranchID, id)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		if !contains(from, order.Status) {
			return fmt.Errorf("%w: %s requires %s, order is %s",
				domain.ErrInvalidTransition, to, strings.Join(from, " or "), order.Status)
		}

		now := time.Now().UTC()
		previous := order.Status
		order.Status = to
		order.UpdatedAt = now
		if err := s.repo.UpdateOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := s.repo.InsertEvent(ctx, tx, &domain.OrderEvent{
			ID:         s.genID.Generate(),
			OrderID:    order.ID,
			FromStatus: previous,
			ToStatus:   to,
			Actor:      scope.User,
			Note:       note,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func scopeFrom(ctx context.Context) (tenantctx.Scope, error) {
	scope, ok := tenantctx.ScopeFromContext(ctx)
	if !ok {
		return tenantctx.Scope{}, domain.ErrScopeMissing
	}
	return scope, nil
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
