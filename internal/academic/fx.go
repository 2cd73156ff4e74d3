package academic

import (
	"github.com/smallbiznis/schoolpay/internal/academic/repository"
	"github.com/smallbiznis/schoolpay/internal/academic/service"
	"go.uber.org/fx"
)

var Module = fx.Module("academic.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
