package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so transitions can be tested deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func NewSystemClock() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
