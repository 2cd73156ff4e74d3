package liveevents

import "go.uber.org/fx"

var Module = fx.Module("payment.liveevents",
	fx.Provide(NewHub),
)
