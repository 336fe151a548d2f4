// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package safeop

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/absmach/rmqctl/safeop"

// Metrics holds OpenTelemetry instruments for coordinated operations.
type Metrics struct {
	operations metric.Int64Counter
	processed  metric.Int64Counter
	failed     metric.Int64Counter
	retained   metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}

	var err error
	m.operations, err = meter.Int64Counter(
		"rmqctl.operations.total",
		metric.WithDescription("Coordinated operations executed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operations counter: %w", err)
	}

	m.processed, err = meter.Int64Counter(
		"rmqctl.operation.messages.processed",
		metric.WithDescription("Messages confirmed processed by coordinated operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create processed counter: %w", err)
	}

	m.failed, err = meter.Int64Counter(
		"rmqctl.operation.messages.failed",
		metric.WithDescription("Messages left unprocessed by coordinated operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failed counter: %w", err)
	}

	m.retained, err = meter.Int64Counter(
		"rmqctl.operation.records.retained",
		metric.WithDescription("Operation records retained for recovery"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retained counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"rmqctl.operation.duration.ms",
		metric.WithDescription("Coordinated operation duration in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) record(ctx context.Context, opType string, successful, failed int, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation.type", opType))
	m.operations.Add(ctx, 1, attrs)
	m.processed.Add(ctx, int64(successful), attrs)
	m.failed.Add(ctx, int64(failed), attrs)
	if failed > 0 {
		m.retained.Add(ctx, 1, attrs)
	}
	m.duration.Record(ctx, durationMs, attrs)
}
