package event

import (
	"github.com/aceylabs/finledger/internal/event/repository"
	"github.com/aceylabs/finledger/internal/event/service"
	"go.uber.org/fx"
)

var Module = fx.Module("event.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
