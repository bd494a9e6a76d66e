package confirmation

import (
	"go.uber.org/fx"
)

var Module = fx.Module("confirmation",
	fx.Provide(
		NewConfirmationClient,
		NewRedeemer,
		NewHandler,
	),
	fx.Invoke(RegisterHandlers),
)
