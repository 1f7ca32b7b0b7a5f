package inventory

import (
	"github.com/sufrahq/sufra/internal/inventory/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory",
	fx.Provide(repository.Provide),
)
