package identity

import (
	"github.com/aceylabs/finledger/internal/identity/repository"
	"github.com/aceylabs/finledger/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
