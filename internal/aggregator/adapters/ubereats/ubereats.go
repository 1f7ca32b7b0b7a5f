package ubereats

import (
	"context"
	"fmt"
	"strings"

	"github.com/sufrahq/sufra/internal/aggregator/domain"
)

// Adapter is a placeholder until the Uber Eats integration lands. It
// satisfies the full interface so the registry and staff UI can list the
// provider without special-casing it.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Provider() string { return "ubereats" }

func (a *Adapter) Capabilities() domain.Capabilities {
	return domain.Capabilities{CODSupported: false}
}

func (a *Adapter) DisplayInfo() domain.DisplayInfo {
	return domain.DisplayInfo{
		Name:       "Uber Eats",
		Color:      "#06C167",
		BadgeClass: "badge-ubereats",
		Icon:       "ubereats",
	}
}

func (a *Adapter) SignatureHeader() string { return "x-uber-signature" }

func (a *Adapter) VerifySignature(rawBody []byte, signature, secret string) bool {
	return false
}

func (a *Adapter) ParseOrder(rawPayload []byte) (*domain.NormalizedOrder, error) {
	return nil, fmt.Errorf("ubereats: %w", domain.ErrNotImplemented)
}

func (a *Adapter) MapStatus(internalStatus string) string {
	return strings.ToUpper(internalStatus)
}

func (a *Adapter) PushStatus(ctx context.Context, providerOrderID, internalStatus string, creds domain.Credentials) (*domain.ProviderResponse, error) {
	return nil, fmt.Errorf("ubereats: %w", domain.ErrNotImplemented)
}

func (a *Adapter) SyncMenu(ctx context.Context, items []domain.MenuItem, creds domain.Credentials) (*domain.ProviderResponse, error) {
	return nil, fmt.Errorf("ubereats: %w", domain.ErrNotImplemented)
}

func (a *Adapter) TestConnection(ctx context.Context, creds domain.Credentials) bool {
	return false
}
