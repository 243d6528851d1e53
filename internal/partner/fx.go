package partner

import (
	"github.com/aceylabs/finledger/internal/partner/repository"
	"github.com/aceylabs/finledger/internal/partner/service"
	"go.uber.org/fx"
)

var Module = fx.Module("partner.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
