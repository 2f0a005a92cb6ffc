package authgate

import (
	"time"

	"github.com/smallbiznis/reconcile/internal/clock"
	"github.com/smallbiznis/reconcile/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("authgate",
	fx.Provide(
		provideSignatureVerifier,
		provideBearerVerifier,
		NewGate,
	),
)

func provideSignatureVerifier(cfg config.Config, holder *config.ChannelPolicyHolder, clk clock.Clock) *SignatureVerifier {
	tolerance := func() time.Duration {
		return holder.Get().WebhookTolerance
	}
	return NewSignatureVerifier(cfg.Webhook.Secret, cfg.Webhook.SignatureHeader, tolerance, clk)
}

func provideBearerVerifier(cfg config.Config, clk clock.Clock) *BearerVerifier {
	return NewBearerVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, clk)
}
