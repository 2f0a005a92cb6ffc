package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/reconcile/internal/ack"
	"github.com/smallbiznis/reconcile/internal/authgate"
	"github.com/smallbiznis/reconcile/internal/config"
	"github.com/smallbiznis/reconcile/internal/event"
	guestorderdomain "github.com/smallbiznis/reconcile/internal/guestorder/domain"
	invoicedomain "github.com/smallbiznis/reconcile/internal/invoice/domain"
	"github.com/smallbiznis/reconcile/internal/observability"
	obsmiddleware "github.com/smallbiznis/reconcile/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/reconcile/internal/observability/metrics"
	obstracing "github.com/smallbiznis/reconcile/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/reconcile/internal/payment/domain"
	"github.com/smallbiznis/reconcile/internal/ratelimit"
	trackingdomain "github.com/smallbiznis/reconcile/internal/tracking/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	PaymentWebhookPath = "/webhooks/payments"
	OrderLinkPath      = "/api/orders/link"
	EmailOpenPath      = "/track/open"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	policy     *config.ChannelPolicyHolder
	gate       *authgate.Gate
	ack        *ack.Policy
	webhookSvc paymentdomain.WebhookService
	guestSvc   guestorderdomain.Service
	trackSvc   trackingdomain.Service
	invoiceSvc invoicedomain.Service
	limiter    *ratelimit.ChannelLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Policy     *config.ChannelPolicyHolder
	Gate       *authgate.Gate
	Ack        *ack.Policy
	WebhookSvc paymentdomain.WebhookService
	GuestSvc   guestorderdomain.Service
	TrackSvc   trackingdomain.Service
	InvoiceSvc invoicedomain.Service
	Limiter    *ratelimit.ChannelLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		policy:     p.Policy,
		gate:       p.Gate,
		ack:        p.Ack,
		webhookSvc: p.WebhookSvc,
		guestSvc:   p.GuestSvc,
		trackSvc:   p.TrackSvc,
		invoiceSvc: p.InvoiceSvc,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerChannelRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerChannelRoutes() {
	webhook := s.engine.Group(PaymentWebhookPath, withChannel(event.ChannelPaymentWebhook), s.openCORS(http.MethodPost, s.webhookAllowHeaders()...))
	webhook.POST("", s.HandlePaymentWebhook)
	webhook.OPTIONS("", preflight)

	pixel := s.engine.Group(EmailOpenPath, withChannel(event.ChannelEmailOpen), s.openCORS(http.MethodGet))
	pixel.GET("", s.HandleEmailOpen)
	pixel.OPTIONS("", preflight)

	link := s.engine.Group(OrderLinkPath, withChannel(event.ChannelOrderLink), s.orderLinkCORS())
	link.POST("", s.HandleOrderLink)
	link.OPTIONS("", preflight)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.orderLinkCORS())

	api.GET("/invoices/:id", s.BearerRequired(), s.GetInvoiceByID)
	api.POST("/invoices/:id/pay", s.BearerRequired(), s.PayInvoice)
	// Preflight per route: a catch-all under /api would collide with OrderLinkPath.
	api.OPTIONS("/invoices/:id", preflight)
	api.OPTIONS("/invoices/:id/pay", preflight)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
	s.engine.NoMethod(func(c *gin.Context) {
		AbortWithError(c, ErrMethodNotAllowed)
	})
}

// writeAck renders an acknowledgment decided by the ack policy.
func writeAck(c *gin.Context, resp ack.Response) {
	for k, v := range resp.Headers {
		c.Header(k, v)
	}
	if resp.Body != nil {
		c.Data(resp.Status, resp.ContentType, resp.Body)
		return
	}
	c.JSON(resp.Status, resp.JSON)
}
