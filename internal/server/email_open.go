package server

import (
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/reconcile/internal/event"
	obscontext "github.com/smallbiznis/reconcile/internal/observability/context"
	"github.com/smallbiznis/reconcile/internal/observability/logger"
	"go.uber.org/zap"
)

// HandleEmailOpen answers with the tracking pixel whatever happens. When the
// client is rate limited the open is not recorded.
func (s *Server) HandleEmailOpen(c *gin.Context) {
	defer writeAck(c, s.ack.EmailOpen())

	if !s.allowRate(c, event.ChannelEmailOpen) {
		return
	}

	ctx := c.Request.Context()
	res, err := s.trackSvc.RecordOpen(ctx, c.Query("id"))
	if err != nil {
		logger.FromContext(ctx).Debug("email open not recorded", zap.Error(err))
		return
	}
	if res.FirstOpen {
		c.Set(obscontext.OutcomeKey, event.OutcomeApplied.String())
	} else {
		c.Set(obscontext.OutcomeKey, event.OutcomeDuplicate.String())
	}
}
