package adevents

import (
	"go.uber.org/fx"
)

var Module = fx.Module("adevents",
	fx.Provide(
		NewStore,
	),
)
