package platformbilling

import (
	"github.com/smallbiznis/schoolpay/internal/platformbilling/repository"
	"github.com/smallbiznis/schoolpay/internal/platformbilling/service"
	"go.uber.org/fx"
)

var Module = fx.Module("platformbilling.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
