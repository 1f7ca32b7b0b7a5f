package service

import (
	"context"
	"strings"
	"time"

	"github.com/sufrahq/sufra/internal/aggregator/domain"
	"github.com/sufrahq/sufra/pkg/tenantctx"
	"go.uber.org/zap"
)

func (s *Service) Providers() []domain.ProviderInfo {
	adapters := s.registry.List()
	menuSyncable := make(map[string]bool, len(adapters))
	for _, adapter := range s.registry.WithCapability("sync_menu") {
		menuSyncable[adapter.Provider()] = true
	}

	infos := make([]domain.ProviderInfo, 0, len(adapters))
	for _, adapter := range adapters {
		infos = append(infos, domain.ProviderInfo{
			Key:              adapter.Provider(),
			Display:          adapter.DisplayInfo(),
			Capabilities:     adapter.Capabilities(),
			MenuSyncEligible: menuSyncable[adapter.Provider()],
		})
	}
	return infos
}

func (s *Service) GetConfig(ctx context.Context, provider string) (*domain.ConfigView, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if s.registry.Get(provider) == nil {
		return nil, domain.ErrUnknownProvider
	}
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	view := &domain.ConfigView{Provider: provider}
	cfg, err := s.repo.FindConfig(ctx, s.db, scope.TenantID, scope.BranchID, provider)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		view.Enabled = cfg.Enabled
		view.HasCredentials = cfg.CredentialsEnc != ""
		view.LastMenuSync = cfg.LastMenuSync
	}
	return view, nil
}

// PutConfig writes a branch's provider settings. Submitted credentials
// are encrypted before storage; an update with no credential fields
// keeps the stored ciphertext so staff can toggle enabled without
// re-entering secrets.
func (s *Service) PutConfig(ctx context.Context, provider string, update domain.ConfigUpdate) (*domain.ConfigView, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if s.registry.Get(provider) == nil {
		return nil, domain.ErrUnknownProvider
	}
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindConfig(ctx, s.db, scope.TenantID, scope.BranchID, provider)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cfg := &domain.ProviderConfig{
		ID:        s.genID.Generate(),
		TenantID:  scope.TenantID,
		BranchID:  scope.BranchID,
		Provider:  provider,
		Enabled:   update.Enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		cfg.ID = existing.ID
		cfg.CredentialsEnc = existing.CredentialsEnc
		cfg.LastWebhookAt = existing.LastWebhookAt
		cfg.LastMenuSync = existing.LastMenuSync
		cfg.CreatedAt = existing.CreatedAt
	}

	creds := domain.Credentials{
		APIKey:        strings.TrimSpace(update.APIKey),
		ClientID:      strings.TrimSpace(update.ClientID),
		ClientSecret:  strings.TrimSpace(update.ClientSecret),
		WebhookSecret: strings.TrimSpace(update.WebhookSecret),
		Endpoint:      strings.TrimSpace(update.Endpoint),
	}
	if creds != (domain.Credentials{}) {
		encrypted, err := s.vault.EncryptCredentials(creds, provider)
		if err != nil {
			return nil, err
		}
		cfg.CredentialsEnc = encrypted
	}

	if err := s.repo.UpsertConfig(ctx, s.db, cfg); err != nil {
		return nil, err
	}
	s.log.Info("provider config updated",
		zap.String("provider", provider),
		zap.Int64("tenant_id", int64(scope.TenantID)),
		zap.Bool("enabled", cfg.Enabled),
	)

	return &domain.ConfigView{
		Provider:       provider,
		Enabled:        cfg.Enabled,
		HasCredentials: cfg.CredentialsEnc != "",
		LastMenuSync:   cfg.LastMenuSync,
	}, nil
}

// SyncMenu pushes the branch's available catalog to the provider.
func (s *Service) SyncMenu(ctx context.Context, provider string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter := s.registry.Get(provider)
	if adapter == nil {
		return domain.ErrUnknownProvider
	}
	if !adapter.Capabilities().SyncMenu {
		return domain.ErrMenuSyncUnsupported
	}
	scope, err := scopeFrom(ctx)
	if err != nil {
		return err
	}

	creds, err := s.credentials(ctx, scope, provider)
	if err != nil {
		return err
	}

	products, err := s.catalogRepo.ListAvailable(ctx, s.db, scope.TenantID, scope.BranchID)
	if err != nil {
		return err
	}
	items := make([]domain.MenuItem, 0, len(products))
	for _, product := range products {
		items = append(items, domain.MenuItem{
			ID:        product.ID.String(),
			Name:      product.Name,
			Price:     product.Price,
			Category:  product.Category,
			Available: product.Available,
			ImageURL:  product.ImageURL,
		})
	}

	if _, err := adapter.SyncMenu(ctx, items, creds); err != nil {
		s.recordMenuSync(ctx, provider, "error")
		return err
	}

	now := time.Now().UTC()
	if err := s.repo.TouchMenuSync(ctx, s.db, scope.TenantID, scope.BranchID, provider, now); err != nil {
		s.log.Warn("failed to record menu sync timestamp", zap.String("provider", provider), zap.Error(err))
	}
	s.recordMenuSync(ctx, provider, "ok")
	s.log.Info("menu synced",
		zap.String("provider", provider),
		zap.Int("items", len(items)),
	)
	return nil
}

func (s *Service) credentials(ctx context.Context, scope tenantctx.Scope, provider string) (domain.Credentials, error) {
	cfg, err := s.repo.FindConfig(ctx, s.db, scope.TenantID, scope.BranchID, provider)
	if err != nil {
		return domain.Credentials{}, err
	}
	if cfg == nil || cfg.CredentialsEnc == "" {
		return domain.Credentials{}, domain.ErrCredentialsMissing
	}
	return s.vault.DecryptCredentials(cfg.CredentialsEnc, provider)
}

// pushStatusAsync notifies the provider without blocking or failing the
// local transition. The adapter applies its own timeout; the detached
// context keeps the push alive after the HTTP request completes.
func (s *Service) pushStatusAsync(scope tenantctx.Scope, provider, providerOrderID, status string) {
	adapter := s.registry.Get(provider)
	if adapter == nil || !adapter.Capabilities().PushStatus {
		return
	}

	go func() {
		ctx := context.Background()
		creds, err := s.credentials(ctx, scope, provider)
		if err != nil {
			s.log.Debug("skipping status push, no credentials",
				zap.String("provider", provider),
				zap.String("provider_order_id", providerOrderID),
			)
			return
		}
		if _, err := adapter.PushStatus(ctx, providerOrderID, status, creds); err != nil {
			if s.obsMetrics != nil {
				s.obsMetrics.RecordPushFailure(ctx, provider)
			}
			s.log.Warn("provider status push failed",
				zap.String("provider", provider),
				zap.String("provider_order_id", providerOrderID),
				zap.String("status", status),
				zap.Error(err),
			)
		}
	}()
}

func (s *Service) recordWebhook(ctx context.Context, provider, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWebhook(ctx, provider, outcome)
	}
}

func (s *Service) recordMenuSync(ctx context.Context, provider, outcome string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordMenuSync(ctx, provider, outcome)
	}
}
