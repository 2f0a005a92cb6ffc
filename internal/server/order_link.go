package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/reconcile/internal/ack"
	"github.com/smallbiznis/reconcile/internal/authgate"
	"github.com/smallbiznis/reconcile/internal/event"
	guestorderdomain "github.com/smallbiznis/reconcile/internal/guestorder/domain"
	"github.com/smallbiznis/reconcile/internal/observability/logger"
	"go.uber.org/zap"
)

type linkOrderRequest struct {
	OrderNumber string `json:"orderNumber"`
	Email       string `json:"email"`
}

func (s *Server) HandleOrderLink(c *gin.Context) {
	ctx := c.Request.Context()

	if !s.allowRate(c, event.ChannelOrderLink) {
		c.JSON(http.StatusTooManyRequests, ack.OrderLinkError{Error: "Too many requests"})
		return
	}

	decision := s.gate.Authorize(ctx, event.ChannelOrderLink, authgate.RequestContext{Headers: c.Request.Header})
	if !decision.Allowed {
		logger.FromContext(ctx).Info("order link unauthenticated", zap.String("reason", decision.Reason))
		s.obsMetrics.RecordRejected(ctx, event.ChannelOrderLink.String(), decision.Reason)
		writeAck(c, s.ack.OrderLink(guestorderdomain.ErrUnauthenticated))
		return
	}

	c.Request = c.Request.WithContext(withUserActor(ctx, decision.Subject))
	ctx = c.Request.Context()

	var req linkOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeAck(c, s.ack.OrderLink(guestorderdomain.ErrInvalidRequest))
		return
	}

	_, err := s.guestSvc.Link(ctx, guestorderdomain.LinkRequest{
		OrderNumber: req.OrderNumber,
		Email:       req.Email,
		UserID:      decision.Subject,
	})
	writeAck(c, s.ack.OrderLink(err))
}
