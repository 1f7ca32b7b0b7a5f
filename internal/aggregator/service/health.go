package service

import (
	"context"
	"strings"
	"time"

	"github.com/sufrahq/sufra/internal/aggregator/domain"
	"github.com/sufrahq/sufra/pkg/tenantctx"
)

const connectivityTimeout = 5 * time.Second

// Health reports the operational snapshot for one provider within the
// caller's branch: configuration state, connectivity, last webhook and
// order counts by status.
func (s *Service) Health(ctx context.Context, provider string) (*domain.ProviderHealth, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter := s.registry.Get(provider)
	if adapter == nil {
		return nil, domain.ErrUnknownProvider
	}
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}
	return s.providerHealth(ctx, scope, adapter)
}

func (s *Service) HealthAll(ctx context.Context) ([]domain.ProviderHealth, error) {
	scope, err := scopeFrom(ctx)
	if err != nil {
		return nil, err
	}

	adapters := s.registry.List()
	snapshots := make([]domain.ProviderHealth, 0, len(adapters))
	for _, adapter := range adapters {
		snapshot, err := s.providerHealth(ctx, scope, adapter)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, nil
}

func (s *Service) providerHealth(ctx context.Context, scope tenantctx.Scope, adapter domain.Adapter) (*domain.ProviderHealth, error) {
	provider := adapter.Provider()
	snapshot := &domain.ProviderHealth{Provider: provider}

	cfg, err := s.repo.FindConfig(ctx, s.db, scope.TenantID, scope.BranchID, provider)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		snapshot.Configured = cfg.CredentialsEnc != ""
		snapshot.Enabled = cfg.Enabled
		snapshot.LastWebhook = cfg.LastWebhookAt
	}

	if snapshot.Configured {
		if creds, err := s.vault.DecryptCredentials(cfg.CredentialsEnc, provider); err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, connectivityTimeout)
			snapshot.Connected = adapter.TestConnection(pingCtx, creds)
			cancel()
		}
	}

	counts, err := s.repo.CountOrdersByStatus(ctx, s.db, scope.TenantID, scope.BranchID, provider)
	if err != nil {
		return nil, err
	}
	snapshot.OrderCounts = counts
	snapshot.PendingCount = counts[domain.StatusPending]
	snapshot.FailedCount = counts[domain.StatusMappingFailed]

	if snapshot.LastWebhook == nil {
		last, err := s.repo.LastReceivedAt(ctx, s.db, scope.TenantID, scope.BranchID, provider)
		if err != nil {
			return nil, err
		}
		snapshot.LastWebhook = last
	}
	return snapshot, nil
}
