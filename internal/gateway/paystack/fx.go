package paystack

import (
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/gateway"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("gateway.paystack",
	fx.Provide(
		fx.Annotate(provide, fx.ResultTags(`group:"gateways"`)),
	),
)

func provide(cfg config.Config, log *zap.Logger) gateway.Gateway {
	return New(cfg.Paystack, log)
}
