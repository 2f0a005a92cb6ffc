package ack

import "go.uber.org/fx"

var Module = fx.Module("ack",
	fx.Provide(NewPolicy),
)
