package plaid

import (
	"go.uber.org/fx"
)

var Module = fx.Module("plaid",
	fx.Provide(NewClient),
)
