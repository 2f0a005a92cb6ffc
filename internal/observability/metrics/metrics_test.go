package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("channel", "payment_webhook"),
		attribute.String("tracking_id", "abc"),
		attribute.String("outcome", "applied"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "channel" && attrs[1].Key != "channel" {
		t.Fatalf("expected channel to be retained")
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordEvent(context.Background(), "email_open", "open", "applied")
	m.RecordDuplicate(context.Background(), "payment_webhook", "payment.authorized")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "reconcile"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordEvent(context.Background(), "payment_webhook", "payment.authorized", "applied")
}

func TestGinMiddlewareCountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	httpMetrics, err := NewHTTPMetrics(registry)
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}

	r := gin.New()
	r.Use(GinMiddleware(httpMetrics))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	}

	got := testutil.ToFloat64(httpMetrics.requests.WithLabelValues("GET", "/health", "200"))
	if got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
}

func TestGinMiddlewareObservesLatency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	httpMetrics, err := NewHTTPMetrics(registry)
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}

	r := gin.New()
	r.Use(GinMiddleware(httpMetrics))
	r.GET("/track/open", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/track/open?id=a", nil))

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var histogram *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "reconcile_http_request_duration_seconds" {
			histogram = mf
		}
	}
	if histogram == nil || len(histogram.GetMetric()) != 1 {
		t.Fatalf("expected one latency series, got %v", histogram)
	}
	if got := histogram.GetMetric()[0].GetHistogram().GetSampleCount(); got != 1 {
		t.Fatalf("expected one observation, got %d", got)
	}
}
