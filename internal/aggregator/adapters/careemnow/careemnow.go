package careemnow

import (
	"context"
	"fmt"
	"strings"

	"github.com/sufrahq/sufra/internal/aggregator/domain"
)

// Adapter is a placeholder until the Careem Now integration lands.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Provider() string { return "careemnow" }

func (a *Adapter) Capabilities() domain.Capabilities {
	return domain.Capabilities{CODSupported: true}
}

func (a *Adapter) DisplayInfo() domain.DisplayInfo {
	return domain.DisplayInfo{
		Name:       "Careem Now",
		Color:      "#4BB543",
		BadgeClass: "badge-careemnow",
		Icon:       "careemnow",
	}
}

func (a *Adapter) SignatureHeader() string { return "x-careem-signature" }

func (a *Adapter) VerifySignature(rawBody []byte, signature, secret string) bool {
	return false
}

func (a *Adapter) ParseOrder(rawPayload []byte) (*domain.NormalizedOrder, error) {
	return nil, fmt.Errorf("careemnow: %w", domain.ErrNotImplemented)
}

func (a *Adapter) MapStatus(internalStatus string) string {
	return strings.ToUpper(internalStatus)
}

func (a *Adapter) PushStatus(ctx context.Context, providerOrderID, internalStatus string, creds domain.Credentials) (*domain.ProviderResponse, error) {
	return nil, fmt.Errorf("careemnow: %w", domain.ErrNotImplemented)
}

func (a *Adapter) SyncMenu(ctx context.Context, items []domain.MenuItem, creds domain.Credentials) (*domain.ProviderResponse, error) {
	return nil, fmt.Errorf("careemnow: %w", domain.ErrNotImplemented)
}

func (a *Adapter) TestConnection(ctx context.Context, creds domain.Credentials) bool {
	return false
}
