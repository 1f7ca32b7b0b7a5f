package aggregator

import (
	"github.com/sufrahq/sufra/internal/aggregator/adapters"
	"github.com/sufrahq/sufra/internal/aggregator/domain"
	"github.com/sufrahq/sufra/internal/aggregator/repository"
	aggregatorservice "github.com/sufrahq/sufra/internal/aggregator/service"
	"github.com/sufrahq/sufra/internal/aggregator/vault"
	"go.uber.org/fx"
)

var Module = fx.Module("aggregator.service",
	fx.Provide(repository.Provide),
	fx.Provide(vault.New),
	fx.Provide(func() *adapters.Registry {
		return adapters.Default()
	}),
	fx.Provide(aggregatorservice.NewService),
	fx.Provide(func(s *aggregatorservice.Service) domain.Service { return s }),
)
