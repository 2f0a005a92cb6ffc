package payment

import (
	"github.com/smallbiznis/reconcile/internal/payment/repository"
	paymentservice "github.com/smallbiznis/reconcile/internal/payment/service"
	"github.com/smallbiznis/reconcile/internal/payment/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
