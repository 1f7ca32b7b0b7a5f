package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/sufrahq/sufra/internal/config"
	"github.com/sufrahq/sufra/internal/migration"
	"github.com/sufrahq/sufra/internal/observability"
	"github.com/sufrahq/sufra/internal/server"
	"github.com/sufrahq/sufra/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
