package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/joynix/joynix-admin"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// API client metrics
	APIRequestsTotal   metric.Int64Counter
	APIRequestDuration metric.Float64Histogram
	APIRetriesTotal    metric.Int64Counter

	// Session metrics
	TokenRefreshTotal         metric.Int64Counter
	TokenRefreshFailuresTotal metric.Int64Counter
	TokenRefreshShared        metric.Int64Counter
	SessionExpiredTotal       metric.Int64Counter

	// Authorization metrics
	PermissionLoadsTotal      metric.Int64Counter
	PermissionLoadErrorsTotal metric.Int64Counter
	RouteDecisionsTotal       metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments.
// Instruments come from the global meter provider, a no-op until Init runs.
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.APIRequestsTotal, _ = meter.Int64Counter(
		"joynix.api.requests.total",
		metric.WithDescription("Total number of requests sent to the Joynix API"),
		metric.WithUnit("{request}"),
	)

	m.APIRequestDuration, _ = meter.Float64Histogram(
		"joynix.api.request.duration",
		metric.WithDescription("Duration of requests sent to the Joynix API"),
		metric.WithUnit("ms"),
	)

	m.APIRetriesTotal, _ = meter.Int64Counter(
		"joynix.api.retries.total",
		metric.WithDescription("Requests retried after a token refresh"),
		metric.WithUnit("{request}"),
	)

	m.TokenRefreshTotal, _ = meter.Int64Counter(
		"joynix.session.refresh.total",
		metric.WithDescription("Token refresh calls made to the API"),
		metric.WithUnit("{refresh}"),
	)

	m.TokenRefreshFailuresTotal, _ = meter.Int64Counter(
		"joynix.session.refresh.failures.total",
		metric.WithDescription("Token refresh calls that failed"),
		metric.WithUnit("{refresh}"),
	)

	m.TokenRefreshShared, _ = meter.Int64Counter(
		"joynix.session.refresh.shared.total",
		metric.WithDescription("Callers that joined an in-flight token refresh"),
		metric.WithUnit("{caller}"),
	)

	m.SessionExpiredTotal, _ = meter.Int64Counter(
		"joynix.session.expired.total",
		metric.WithDescription("Sessions cleared after an unrecoverable authentication failure"),
		metric.WithUnit("{session}"),
	)

	m.PermissionLoadsTotal, _ = meter.Int64Counter(
		"joynix.authz.loads.total",
		metric.WithDescription("Permission tree fetches"),
		metric.WithUnit("{load}"),
	)

	m.PermissionLoadErrorsTotal, _ = meter.Int64Counter(
		"joynix.authz.load.errors.total",
		metric.WithDescription("Permission tree fetches that failed"),
		metric.WithUnit("{error}"),
	)

	m.RouteDecisionsTotal, _ = meter.Int64Counter(
		"joynix.authz.route.decisions.total",
		metric.WithDescription("Route gate decisions by outcome"),
		metric.WithUnit("{decision}"),
	)

	return m
}
