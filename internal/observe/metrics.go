// Package observe holds the OpenTelemetry instruments recorded by the
// interview driver and the HTTP server, plus the Prometheus bridge used to
// expose them on /metrics.
package observe

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const meterName = "github.com/spigell/ai-interviewer"

// Metrics holds all instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	InterviewsStarted   metric.Int64Counter
	InterviewsCompleted metric.Int64Counter
	// Questions counts interviewer questions by kind (opening, followup).
	Questions metric.Int64Counter

	// LLMRequests counts generator calls by kind and status (ok, fallback).
	LLMRequests metric.Int64Counter
	LLMDuration metric.Float64Histogram

	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40}

// NewMetrics creates the instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}

	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.InterviewsStarted, err = m.Int64Counter("interviewer.interviews.started",
		metric.WithDescription("Interviews started."),
	); err != nil {
		return nil, err
	}
	if met.InterviewsCompleted, err = m.Int64Counter("interviewer.interviews.completed",
		metric.WithDescription("Interviews that reached the feedback state."),
	); err != nil {
		return nil, err
	}
	if met.Questions, err = m.Int64Counter("interviewer.questions",
		metric.WithDescription("Interviewer questions asked by kind."),
	); err != nil {
		return nil, err
	}
	if met.LLMRequests, err = m.Int64Counter("interviewer.llm.requests",
		metric.WithDescription("Text generation calls by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("interviewer.llm.duration",
		metric.WithDescription("Latency of text generation including retries."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("interviewer.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordLLM records one text-generation call.
func (m *Metrics) RecordLLM(ctx context.Context, kind string, degraded bool, seconds float64) {
	if m == nil {
		return
	}
	status := "ok"
	if degraded {
		status = "fallback"
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind), attribute.String("status", status))
	m.LLMRequests.Add(ctx, 1, attrs)
	m.LLMDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordQuestion(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.Questions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.InterviewsStarted.Add(ctx, 1)
}

func (m *Metrics) RecordCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.InterviewsCompleted.Add(ctx, 1)
}

func (m *Metrics) RecordHTTP(ctx context.Context, method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}

// InitProvider registers a global MeterProvider backed by the Prometheus
// exporter and returns the scrape handler together with a shutdown func.
func InitProvider(serviceName, version string) (http.Handler, func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	exporter, err := promexporter.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}
