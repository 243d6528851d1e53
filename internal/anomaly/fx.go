package anomaly

import (
	"github.com/aceylabs/finledger/internal/anomaly/repository"
	"github.com/aceylabs/finledger/internal/anomaly/service"
	"go.uber.org/fx"
)

var Module = fx.Module("anomaly.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
