package payout

import (
	"github.com/aceylabs/finledger/internal/payout/repository"
	"github.com/aceylabs/finledger/internal/payout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
