package domain

import "errors"

var (
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrWebhookUnsupported   = errors.New("provider does not support webhooks")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrInvalidPayload       = errors.New("invalid webhook payload")
	ErrNoWebhookTarget      = errors.New("no enabled configuration or fallback secret for provider")
	ErrMenuSyncUnsupported  = errors.New("provider does not support menu sync")
	ErrOrderNotFound        = errors.New("aggregator order not found")
	ErrMappingFailed        = errors.New("order could not be mapped to a sale")
	ErrScopeMissing         = errors.New("tenant scope missing from request context")
	ErrInvalidTransition    = errors.New("order is not in the required status")
	ErrConfigNotFound       = errors.New("provider configuration not found")
	ErrCredentialsMissing   = errors.New("provider credentials not configured")
	ErrNotImplemented       = errors.New("provider integration not yet implemented")
	ErrMissingMasterKey     = errors.New("master encryption key is not configured")
	ErrCorruptedCredentials = errors.New("stored credentials are corrupted or key mismatch")
)
