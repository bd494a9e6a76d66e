package contribution

import (
	"go.uber.org/fx"

	"rewards-pipeline/pkg/repository"
)

var Module = fx.Module("contribution",
	fx.Provide(
		repository.ProvideStore[Contribution],
		NewController,
		NewHandler,
	),
	fx.Invoke(RegisterHandlers),
)
