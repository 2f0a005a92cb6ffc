package guestorder

import (
	"github.com/smallbiznis/reconcile/internal/guestorder/repository"
	"github.com/smallbiznis/reconcile/internal/guestorder/service"
	"go.uber.org/fx"
)

var Module = fx.Module("guestorder.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
