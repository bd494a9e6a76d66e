package credentials

import (
	"go.uber.org/fx"

	"rewards-pipeline/pkg/repository"
	"rewards-pipeline/services/order"
)

var Module = fx.Module("credentials",
	fx.Provide(
		repository.ProvideStore[CredsBatch],
		repository.ProvideStore[UnblindedToken],
		NewIssuerClient,
		NewKeyCache,
		NewService,
		func(s *Service) order.CredsStarter { return s },
	),
)
