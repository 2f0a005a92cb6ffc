package idempotency

import (
	"github.com/smallbiznis/reconcile/internal/idempotency/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("idempotency",
	fx.Provide(repository.Provide),
)
