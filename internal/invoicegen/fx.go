package invoicegen

import "go.uber.org/fx"

var Module = fx.Module("invoicegen",
	fx.Provide(New),
)
