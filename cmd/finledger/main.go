package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/aceylabs/finledger/internal/clock"
	"github.com/aceylabs/finledger/internal/config"
	"github.com/aceylabs/finledger/internal/observability"
	"github.com/aceylabs/finledger/internal/server"
	"github.com/aceylabs/finledger/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

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
