package audit

import (
	"github.com/aceylabs/finledger/internal/audit/repository"
	"github.com/aceylabs/finledger/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
