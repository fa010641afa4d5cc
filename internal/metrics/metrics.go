// Package metrics holds the ledger's OpenTelemetry instruments. Instruments come
// from the global meter provider, which records nothing until an SDK is installed.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/inaiurai/shellmarket"

type Metrics struct {
	transitions metric.Int64Counter
	fees        metric.Int64Counter
	bonuses     metric.Int64Counter
	decayed     metric.Int64Counter
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var err error
	if m.transitions, err = meter.Int64Counter("shellmarket.job.transitions",
		metric.WithDescription("Job status transitions committed"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, fmt.Errorf("transitions counter: %w", err)
	}
	if m.fees, err = meter.Int64Counter("shellmarket.platform.fees",
		metric.WithDescription("Shells collected into the platform fee sink"),
		metric.WithUnit("{shell}")); err != nil {
		return nil, fmt.Errorf("fees counter: %w", err)
	}
	if m.bonuses, err = meter.Int64Counter("shellmarket.bonus.paid",
		metric.WithDescription("Bonus shells paid to agents"),
		metric.WithUnit("{shell}")); err != nil {
		return nil, fmt.Errorf("bonuses counter: %w", err)
	}
	if m.decayed, err = meter.Int64Counter("shellmarket.reputation.decayed",
		metric.WithDescription("Agents whose reputation was decayed"),
		metric.WithUnit("{agent}")); err != nil {
		return nil, fmt.Errorf("decay counter: %w", err)
	}
	return &m, nil
}

// Global returns instruments on the global meter provider.
func Global() *Metrics {
	m, err := New(otel.Meter(instrumentationName))
	if err != nil {
		// The global provider only fails on invalid instrument names.
		panic(err)
	}
	return m
}

// All recorders accept a nil receiver so components can run without metrics.

func (m *Metrics) JobTransition(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) FeeCollected(ctx context.Context, amount int64) {
	if m == nil || amount == 0 {
		return
	}
	m.fees.Add(ctx, amount)
}

func (m *Metrics) BonusPaid(ctx context.Context, kind string, amount int64) {
	if m == nil || amount == 0 {
		return
	}
	m.bonuses.Add(ctx, amount, metric.WithAttributes(attribute.String("type", kind)))
}

func (m *Metrics) AgentsDecayed(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.decayed.Add(ctx, int64(n))
}
