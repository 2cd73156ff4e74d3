package gateway

import "go.uber.org/fx"

var Module = fx.Module("gateway",
	fx.Provide(
		fx.Annotate(NewRegistry, fx.ParamTags(`group:"gateways"`)),
	),
)
