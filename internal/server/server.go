package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sufrahq/sufra/internal/aggregator"
	"github.com/sufrahq/sufra/internal/aggregator/adapters"
	aggregatordomain "github.com/sufrahq/sufra/internal/aggregator/domain"
	"github.com/sufrahq/sufra/internal/catalog"
	"github.com/sufrahq/sufra/internal/config"
	"github.com/sufrahq/sufra/internal/inventory"
	"github.com/sufrahq/sufra/internal/observability"
	obsmiddleware "github.com/sufrahq/sufra/internal/observability/logger"
	obstracing "github.com/sufrahq/sufra/internal/observability/tracing"
	"github.com/sufrahq/sufra/internal/sale"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	catalog.Module,
	inventory.Module,
	sale.Module,
	aggregator.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	aggregatorSvc aggregatordomain.Service
	registry      *adapters.Registry
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	AggregatorSvc aggregatordomain.Service
	Registry      *adapters.Registry
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		aggregatorSvc: p.AggregatorSvc,
		registry:      p.Registry,
	}

	svc.registerAggregatorRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAggregatorRoutes() {
	api := s.engine.Group("/api")

	// Providers call this; it authenticates via signature, not staff token.
	api.POST("/aggregator/webhooks/:provider", s.HandleAggregatorWebhook)

	agg := api.Group("/aggregator", s.StaffAuthRequired())
	{
		agg.GET("/providers", s.ListAggregatorProviders)

		agg.GET("/orders", s.ListAggregatorOrders)
		agg.GET("/orders/:id", s.GetAggregatorOrder)
		agg.POST("/orders/:id/accept", s.AcceptAggregatorOrder)
		agg.POST("/orders/:id/reject", s.RejectAggregatorOrder)
		agg.POST("/orders/:id/ready", s.MarkAggregatorOrderReady)
		agg.POST("/orders/:id/retry", s.RetryAggregatorOrder)

		agg.POST("/menu/sync/:provider", s.SyncAggregatorMenu)

		agg.GET("/config/:provider", s.GetAggregatorConfig)
		agg.PUT("/config/:provider", s.PutAggregatorConfig)

		agg.GET("/health", s.AggregatorHealthAll)
		agg.GET("/health/:provider", s.AggregatorHealth)
	}
}
