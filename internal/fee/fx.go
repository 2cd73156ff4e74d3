package fee

import (
	"github.com/smallbiznis/schoolpay/internal/fee/repository"
	"github.com/smallbiznis/schoolpay/internal/fee/service"
	"go.uber.org/fx"
)

var Module = fx.Module("fee.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
