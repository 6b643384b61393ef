// Package metrics wraps an event store adapter with Prometheus
// instrumentation. Every adapter operation is counted and timed; append
// conflicts get their own counter since conflict rate is the signal that
// tells you contention is building on a stream.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-sourced/sourced/adapters"
)

// Metrics holds the Prometheus collectors for adapter instrumentation.
type Metrics struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	conflicts  prometheus.Counter
	appended   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to use the default registry.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "sourced"
	}

	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventstore",
			Name:      "operations_total",
			Help:      "Total adapter operations by name and status.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "eventstore",
			Name:      "operation_duration_seconds",
			Help:      "Adapter operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventstore",
			Name:      "concurrency_conflicts_total",
			Help:      "Appends rejected by the optimistic concurrency check.",
		}),
		appended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventstore",
			Name:      "events_appended_total",
			Help:      "Events successfully appended.",
		}),
	}

	reg.MustRegister(m.operations, m.durations, m.conflicts, m.appended)
	return m
}

// Adapter instruments an EventStoreAdapter with the given metrics.
type Adapter struct {
	next    adapters.EventStoreAdapter
	metrics *Metrics
}

var _ adapters.EventStoreAdapter = (*Adapter)(nil)

// Wrap returns an adapter that records metrics for every operation and
// delegates to next.
func Wrap(next adapters.EventStoreAdapter, metrics *Metrics) *Adapter {
	return &Adapter{next: next, metrics: metrics}
}

func (a *Adapter) observe(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	a.metrics.operations.WithLabelValues(operation, status).Inc()
	a.metrics.durations.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Append delegates to the wrapped adapter, counting appended events and
// concurrency conflicts.
func (a *Adapter) Append(ctx context.Context, streamID string, events []adapters.EventRecord, expectedVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	stored, err := a.next.Append(ctx, streamID, events, expectedVersion)
	a.observe("append", start, err)

	if err == nil {
		a.metrics.appended.Add(float64(len(stored)))
	} else if errors.Is(err, adapters.ErrConcurrencyConflict) {
		a.metrics.conflicts.Inc()
	}
	return stored, err
}

func (a *Adapter) Load(ctx context.Context, streamID string, fromVersion int64) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := a.next.Load(ctx, streamID, fromVersion)
	a.observe("load", start, err)
	return events, err
}

func (a *Adapter) LoadByCategory(ctx context.Context, category string, from, to time.Time) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := a.next.LoadByCategory(ctx, category, from, to)
	a.observe("load_by_category", start, err)
	return events, err
}

func (a *Adapter) LoadAfter(ctx context.Context, t time.Time) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := a.next.LoadAfter(ctx, t)
	a.observe("load_after", start, err)
	return events, err
}

func (a *Adapter) LoadFromPosition(ctx context.Context, fromPosition uint64, limit int) ([]adapters.StoredEvent, error) {
	start := time.Now()
	events, err := a.next.LoadFromPosition(ctx, fromPosition, limit)
	a.observe("load_from_position", start, err)
	return events, err
}

func (a *Adapter) GetStreamInfo(ctx context.Context, streamID string) (*adapters.StreamInfo, error) {
	start := time.Now()
	info, err := a.next.GetStreamInfo(ctx, streamID)
	a.observe("get_stream_info", start, err)
	return info, err
}

func (a *Adapter) GetLastPosition(ctx context.Context) (uint64, error) {
	start := time.Now()
	position, err := a.next.GetLastPosition(ctx)
	a.observe("get_last_position", start, err)
	return position, err
}

func (a *Adapter) Initialize(ctx context.Context) error {
	return a.next.Initialize(ctx)
}

func (a *Adapter) Close() error {
	return a.next.Close()
}
