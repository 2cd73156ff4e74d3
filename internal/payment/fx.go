package payment

import (
	"github.com/smallbiznis/schoolpay/internal/payment/liveevents"
	"github.com/smallbiznis/schoolpay/internal/payment/repository"
	"github.com/smallbiznis/schoolpay/internal/payment/service"
	"github.com/smallbiznis/schoolpay/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	liveevents.Module,
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(webhook.New),
)
