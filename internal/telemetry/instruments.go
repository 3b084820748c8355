package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Scope is the instrumentation scope name for ledger telemetry.
const Scope = "github.com/roach88/litledger/internal/ledger"

// Instruments are the ledger's spans and metrics.
type Instruments struct {
	tracer          trace.Tracer
	eventsCommitted metric.Int64Counter
	batchesRejected metric.Int64Counter
	replayDuration  metric.Float64Histogram
}

// NewInstruments builds instruments on the global providers.
func NewInstruments() (*Instruments, error) {
	return NewInstrumentsFrom(otel.GetMeterProvider(), otel.GetTracerProvider())
}

// NewInstrumentsFrom builds instruments on explicit providers.
func NewInstrumentsFrom(mp metric.MeterProvider, tp trace.TracerProvider) (*Instruments, error) {
	meter := mp.Meter(Scope)
	committed, err := meter.Int64Counter("ledger.events.committed",
		metric.WithDescription("Events appended to the log"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: events counter: %w", err)
	}
	rejected, err := meter.Int64Counter("ledger.batches.rejected",
		metric.WithDescription("Commits rejected by security, strict mode or replay failure"),
		metric.WithUnit("{batch}"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: rejection counter: %w", err)
	}
	replay, err := meter.Float64Histogram("ledger.replay.duration",
		metric.WithDescription("Time spent replaying the event log"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: replay histogram: %w", err)
	}
	return &Instruments{
		tracer:          tp.Tracer(Scope),
		eventsCommitted: committed,
		batchesRejected: rejected,
		replayDuration:  replay,
	}, nil
}

// Noop returns instruments that record nothing.
func Noop() *Instruments {
	in, err := NewInstrumentsFrom(metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider())
	if err != nil {
		panic(err)
	}
	return in
}

// Start opens a span named after a ledger operation.
func (in *Instruments) Start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attrs...))
}

// End closes span, recording err when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Committed counts n events appended by op.
func (in *Instruments) Committed(ctx context.Context, op string, n int) {
	in.eventsCommitted.Add(ctx, int64(n), metric.WithAttributes(attribute.String("operation", op)))
}

// Rejected counts one rejected commit with its error code.
func (in *Instruments) Rejected(ctx context.Context, op, code string) {
	in.batchesRejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("code", code),
	))
}

// Replayed records a replay of n events that started at start.
func (in *Instruments) Replayed(ctx context.Context, start time.Time, n int) {
	in.replayDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.Int("events", n)))
}
