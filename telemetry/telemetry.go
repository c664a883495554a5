// Package telemetry wires Prometheus metrics and OpenTelemetry tracing
// around the HTTP surface and the simulator.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/twingraph/twingraph/config"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twingraph_http_requests_total",
			Help: "Total number of HTTP requests received.",
		},
		[]string{"handler", "method", "code"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "twingraph_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)
	simulationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twingraph_simulations_total",
			Help: "Pipeline simulations by final status.",
		},
		[]string{"status"},
	)
	simulationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "twingraph_simulation_duration_seconds",
			Help:    "Wall time of pipeline simulations.",
			Buckets: prometheus.DefBuckets,
		},
	)
	generationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "twingraph_generations_total",
			Help: "Pipeline code generation requests.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal, httpRequestDuration,
		simulationsTotal, simulationDuration, generationsTotal,
	)
}

// Init sets up the tracing exporter based on config.
// Supported exporters: "stdout", "otlp".
func Init(cfg *config.Config) error {
	serviceName := "twingraph"
	if cfg.Tracing.ServiceName != "" {
		serviceName = cfg.Tracing.ServiceName
	}
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return err
	}
	var exp sdktrace.SpanExporter
	switch cfg.Tracing.Exporter {
	case "otlp":
		opts := []otlptracehttp.Option{}
		if cfg.Tracing.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Tracing.Endpoint))
		}
		exp, err = otlptracehttp.New(context.Background(), opts...)
	default:
		exp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return nil
}

// WrapHandler applies otelhttp tracing and Prometheus metrics middleware.
func WrapHandler(name string, next http.Handler) http.Handler {
	h := otelhttp.NewHandler(next, name)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{w, http.StatusOK}
		h.ServeHTTP(rw, r)
		httpRequestsTotal.WithLabelValues(name, r.Method, fmt.Sprintf("%d", rw.status)).Inc()
		httpRequestDuration.WithLabelValues(name, r.Method).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// ObserveSimulation records one finished simulation.
func ObserveSimulation(status string, wall time.Duration) {
	simulationsTotal.WithLabelValues(status).Inc()
	simulationDuration.Observe(wall.Seconds())
}

// ObserveGeneration records one code generation request.
func ObserveGeneration() {
	generationsTotal.Inc()
}

// MetricsHandler returns the Prometheus metrics endpoint handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
