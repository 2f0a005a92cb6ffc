package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/reconcile/internal/config"
)

const corsMaxAge = "600"

// openCORS serves the anonymous channels, which any origin may call.
func (s *Server) openCORS(method string, allowHeaders ...string) gin.HandlerFunc {
	headers := append([]string{"Content-Type"}, allowHeaders...)
	allowed := strings.Join(headers, ", ")
	methods := method + ", " + http.MethodOptions
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", allowed)
		c.Header("Access-Control-Max-Age", corsMaxAge)
		c.Next()
	}
}

// orderLinkCORS only reflects origins on the configured allow-list since the
// channel carries an authenticated identity.
func (s *Server) orderLinkCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Vary", "Origin")
		origin := strings.TrimRight(strings.TrimSpace(c.GetHeader("Origin")), "/")
		if origin != "" && s.channelPolicy().OriginAllowed(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
			c.Header("Access-Control-Max-Age", corsMaxAge)
		}
		c.Next()
	}
}

func (s *Server) channelPolicy() config.ChannelPolicy {
	if s.policy == nil {
		return config.DefaultChannelPolicy(s.cfg)
	}
	return s.policy.Get()
}

func (s *Server) webhookAllowHeaders() []string {
	header := strings.TrimSpace(s.cfg.Webhook.SignatureHeader)
	if header == "" {
		header = config.DefaultSignatureHeader
	}
	return []string{header}
}

func preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
