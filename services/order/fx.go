package order

import (
	"go.uber.org/fx"

	"rewards-pipeline/pkg/repository"
)

var Module = fx.Module("order",
	fx.Provide(
		repository.ProvideStore[SKUOrder],
		repository.ProvideStore[SKUOrderItem],
		NewPaymentProcessor,
		NewService,
	),
)
