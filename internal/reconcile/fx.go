package reconcile

import "go.uber.org/fx"

var Module = fx.Module("reconcile.engine",
	fx.Provide(New),
)
