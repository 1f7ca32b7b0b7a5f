package adapters

import (
	"strings"

	"github.com/sufrahq/sufra/internal/aggregator/adapters/careemnow"
	"github.com/sufrahq/sufra/internal/aggregator/adapters/mrsool"
	"github.com/sufrahq/sufra/internal/aggregator/adapters/talabat"
	"github.com/sufrahq/sufra/internal/aggregator/adapters/ubereats"
	"github.com/sufrahq/sufra/internal/aggregator/domain"
)

// Registry is the static provider-key -> adapter lookup.
type Registry struct {
	adapters map[string]domain.Adapter
	keys     []string
}

func NewRegistry(adapters ...domain.Adapter) *Registry {
	registry := &Registry{adapters: map[string]domain.Adapter{}}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(adapter.Provider()))
		if key == "" {
			continue
		}
		if _, exists := registry.adapters[key]; !exists {
			registry.keys = append(registry.keys, key)
		}
		registry.adapters[key] = adapter
	}
	return registry
}

// Default registers every known provider.
func Default() *Registry {
	return NewRegistry(
		talabat.New(),
		ubereats.New(),
		careemnow.New(),
		mrsool.New(),
	)
}

// Get returns nil for unknown keys; callers must check.
func (r *Registry) Get(key string) domain.Adapter {
	if r == nil {
		return nil
	}
	return r.adapters[strings.ToLower(strings.TrimSpace(key))]
}

// List returns all adapters in registration order.
func (r *Registry) List() []domain.Adapter {
	if r == nil {
		return nil
	}
	out := make([]domain.Adapter, 0, len(r.keys))
	for _, key := range r.keys {
		out = append(out, r.adapters[key])
	}
	return out
}

// WithCapability filters adapters whose named capability flag is true.
func (r *Registry) WithCapability(name string) []domain.Adapter {
	var out []domain.Adapter
	for _, adapter := range r.List() {
		if hasCapability(adapter.Capabilities(), name) {
			out = append(out, adapter)
		}
	}
	return out
}

func hasCapability(caps domain.Capabilities, name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "webhook":
		return caps.Webhook
	case "push_status", "pushstatus":
		return caps.PushStatus
	case "sync_menu", "syncmenu":
		return caps.SyncMenu
	case "cod_supported", "cod":
		return caps.CODSupported
	case "polling":
		return caps.Polling
	default:
		return false
	}
}
