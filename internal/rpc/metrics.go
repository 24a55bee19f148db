package rpc

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/filed/api"
	"pkt.systems/pslog"
)

type dispatcherMetrics struct {
	requests  metric.Int64Counter
	toolCalls metric.Int64Counter
	duration  metric.Float64Histogram
}

func newDispatcherMetrics(logger pslog.Logger) *dispatcherMetrics {
	meter := otel.Meter("pkt.systems/filed/rpc")
	m := &dispatcherMetrics{}
	var err error

	m.requests, err = meter.Int64Counter(
		"filed.rpc.requests",
		metric.WithDescription("JSON-RPC requests handled"),
	)
	logMetricInitError(logger, "filed.rpc.requests", err)

	m.toolCalls, err = meter.Int64Counter(
		"filed.rpc.tool_calls",
		metric.WithDescription("Tool invocations by tool and outcome"),
	)
	logMetricInitError(logger, "filed.rpc.tool_calls", err)

	m.duration, err = meter.Float64Histogram(
		"filed.rpc.duration",
		metric.WithDescription("Request handling duration"),
		metric.WithUnit("s"),
	)
	logMetricInitError(logger, "filed.rpc.duration", err)

	return m
}

func (m *dispatcherMetrics) recordRequest(ctx context.Context, method string, outcome string, elapsed time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("filed.rpc.method", methodLabel(method)),
		attribute.String("filed.rpc.outcome", outcome),
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	}
}

func (m *dispatcherMetrics) recordToolCall(ctx context.Context, tool string, outcome string) {
	if m == nil || m.toolCalls == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("filed.rpc.tool", tool),
		attribute.String("filed.rpc.outcome", outcome),
	}
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// methodLabel collapses unrecognized methods to keep label cardinality
// bounded against arbitrary client input.
func methodLabel(method string) string {
	switch method {
	case methodInitialize, methodToolsList, methodToolsCall:
		return method
	default:
		return "other"
	}
}

func outcomeOf(resp api.Response) string {
	if resp.Error == nil {
		return "ok"
	}
	return strconv.Itoa(resp.Error.Code)
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("telemetry.metric.init_failed", "name", name, "error", err)
}
