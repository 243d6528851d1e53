package ledger

import (
	"github.com/aceylabs/finledger/internal/ledger/repository"
	"github.com/aceylabs/finledger/internal/ledger/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
