package domain

import "context"

// Capabilities are static flags callers must branch on instead of
// assuming a provider supports an operation.
type Capabilities struct {
	Webhook      bool `json:"webhook"`
	PushStatus   bool `json:"push_status"`
	SyncMenu     bool `json:"sync_menu"`
	CODSupported bool `json:"cod_supported"`
	Polling      bool `json:"polling"`
}

// DisplayInfo is presentation metadata for staff-facing UIs.
type DisplayInfo struct {
	Name       string `json:"name"`
	Color      string `json:"color"`
	BadgeClass string `json:"badge_class"`
	Icon       string `json:"icon"`
}

// ProviderResponse is the outcome of an outbound provider call.
type ProviderResponse struct {
	StatusCode int
	Body       []byte
}

// Adapter translates between one provider's wire format and the unified
// order vocabulary. Every registered provider implements the full
// interface; unimplemented integrations return ErrNotImplemented from
// data/network methods so the registry can enumerate them uniformly.
type Adapter interface {
	Provider() string
	Capabilities() Capabilities
	DisplayInfo() DisplayInfo

	// SignatureHeader is the HTTP header carrying the webhook signature.
	SignatureHeader() string
	// VerifySignature checks the HMAC over the exact raw request bytes.
	VerifySignature(rawBody []byte, signature, secret string) bool
	// ParseOrder normalizes a raw webhook payload. Missing optional
	// fields default rather than fail.
	ParseOrder(rawPayload []byte) (*NormalizedOrder, error)
	// MapStatus translates an internal status to the provider's
	// vocabulary; unknown statuses pass through uppercased.
	MapStatus(internalStatus string) string

	PushStatus(ctx context.Context, providerOrderID, internalStatus string, creds Credentials) (*ProviderResponse, error)
	SyncMenu(ctx context.Context, items []MenuItem, creds Credentials) (*ProviderResponse, error)
	// TestConnection never returns an error, only false on any failure.
	TestConnection(ctx context.Context, creds Credentials) bool
}
