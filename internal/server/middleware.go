package server

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/reconcile/internal/audit/domain"
	"github.com/smallbiznis/reconcile/internal/auditcontext"
	"github.com/smallbiznis/reconcile/internal/authgate"
	"github.com/smallbiznis/reconcile/internal/event"
	obscontext "github.com/smallbiznis/reconcile/internal/observability/context"
	"github.com/smallbiznis/reconcile/internal/observability/logger"
	"go.uber.org/zap"
)

const contextUserIDKey = "user_id"

// BearerRequired authenticates API calls with the same bearer identity as
// the order link channel.
func (s *Server) BearerRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := s.gate.Authorize(c.Request.Context(), event.ChannelOrderLink, authgate.RequestContext{
			Headers: c.Request.Header,
		})
		if !decision.Allowed {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, decision.Subject)
		c.Request = c.Request.WithContext(withUserActor(c.Request.Context(), decision.Subject))
		c.Next()
	}
}

// withUserActor attributes audit rows and log lines to the bearer subject.
func withUserActor(ctx context.Context, subject string) context.Context {
	ctx = auditcontext.WithActor(ctx, string(auditdomain.ActorTypeUser), subject)
	return obscontext.WithActor(ctx, string(auditdomain.ActorTypeUser), subject)
}

// withChannel tags the request context with the ingress channel so logs and
// spans for the request carry it.
func withChannel(channel event.Channel) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(obscontext.WithChannel(c.Request.Context(), channel.String()))
		c.Next()
	}
}

// allowRate reports whether the client may proceed on channel. Limiter
// failures fail open.
func (s *Server) allowRate(c *gin.Context, channel event.Channel) bool {
	if !s.limiter.Enabled() {
		return true
	}

	ctx := c.Request.Context()
	res, err := s.limiter.Allow(ctx, channel, c.ClientIP())
	if err != nil {
		logger.FromContext(ctx).Warn("rate limit check failed", zap.String("channel", channel.String()), zap.Error(err))
		return true
	}
	if !res.Allowed {
		logger.FromContext(ctx).Warn("rate limit exceeded", zap.String("channel", channel.String()))
		s.obsMetrics.RecordRateLimitDenied(ctx, channel.String())
		if res.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
		}
		return false
	}
	return true
}
