// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package safeop executes destructive multi-message operations so that every
// message taken from the broker is durably recorded until it is confirmed
// processed.
package safeop

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/absmach/rmqctl/message"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Provider produces the snapshot of messages an operation works on. It is
// called exactly once per operation.
type Provider func(ctx context.Context) ([]message.Message, error)

// Processor handles one snapshot message.
type Processor func(ctx context.Context, msg message.Message) message.Result

// Backups is the durable progress store used by the coordinator.
type Backups interface {
	Store(ctx context.Context, opID uuid.UUID, opType string, msgs []message.Message) error
	MarkProcessed(ctx context.Context, opID uuid.UUID, id message.ID) error
	Processed(ctx context.Context, opID uuid.UUID) ([]message.Message, error)
	Unprocessed(ctx context.Context, opID uuid.UUID) ([]message.Message, error)
	Complete(ctx context.Context, opID uuid.UUID) (bool, error)
}

// Coordinator runs operations against a Backups store.
type Coordinator struct {
	backups Backups
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// New creates a coordinator. A nil logger uses slog.Default and nil metrics
// disables metric recording.
func New(backups Backups, logger *slog.Logger, metrics *Metrics) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		backups: backups,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer(instrumentationName),
	}
}

// Execute snapshots messages with provider, backs the snapshot up and hands
// each message to processor in snapshot order. The record of the operation is
// deleted when every message succeeded and retained otherwise.
func (c *Coordinator) Execute(ctx context.Context, opID uuid.UUID, opType string, provider Provider, processor Processor) (message.Summary, error) {
	ctx, span := c.tracer.Start(ctx, "safeop.Execute", trace.WithAttributes(
		attribute.String("operation.id", opID.String()),
		attribute.String("operation.type", opType),
	))
	defer span.End()

	start := time.Now()
	log := c.logger.With(slog.String("operation_id", opID.String()), slog.String("operation_type", opType))

	snapshot, err := provider(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider failed")
		return message.Summary{ID: opID}, err
	}
	span.SetAttributes(attribute.Int("operation.messages", len(snapshot)))

	if len(snapshot) == 0 {
		log.Debug("empty snapshot, nothing to do")
		return message.Summary{ID: opID}, nil
	}

	if err := c.backups.Store(ctx, opID, opType, snapshot); err != nil {
		log.Error("failed to back up snapshot", slog.Int("messages", len(snapshot)), slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "backup failed")
		return message.Summary{
			ID:          opID,
			Unprocessed: snapshot,
		}, fmt.Errorf("%w: %w", ErrBackupFailed, err)
	}
	log.Debug("snapshot backed up", slog.Int("messages", len(snapshot)))

	marked := make(map[message.ID]bool, len(snapshot))
	for i, msg := range snapshot {
		res := c.process(ctx, processor, msg)
		if !res.OK() {
			log.Warn("message not processed",
				slog.Int("index", i),
				slog.String("message_id", msg.ID.String()),
				slog.String("reason", res.Reason))
			continue
		}
		if err := c.backups.MarkProcessed(ctx, opID, msg.ID); err != nil {
			// The message stays unprocessed in the record and is reported as failed.
			log.Error("failed to mark message processed",
				slog.String("message_id", msg.ID.String()),
				slog.String("error", err.Error()))
			continue
		}
		marked[msg.ID] = true
	}

	summary := message.Summary{ID: opID}
	processed, perr := c.backups.Processed(ctx, opID)
	unprocessed, uerr := c.backups.Unprocessed(ctx, opID)
	if perr != nil || uerr != nil {
		err := perr
		if err == nil {
			err = uerr
		}
		log.Error("failed to read back operation progress", slog.String("error", err.Error()))
		for _, msg := range snapshot {
			if marked[msg.ID] {
				summary.Processed = append(summary.Processed, msg)
			} else {
				summary.Unprocessed = append(summary.Unprocessed, msg)
			}
		}
		summary.Successful = len(summary.Processed)
		summary.Failed = len(summary.Unprocessed)
		c.finish(ctx, span, opType, summary, start)
		return summary, fmt.Errorf("%w: %w", ErrProgressUnknown, err)
	}

	summary.Processed = processed
	summary.Unprocessed = unprocessed
	summary.Successful = len(processed)
	summary.Failed = len(unprocessed)

	deleted, err := c.backups.Complete(ctx, opID)
	switch {
	case err != nil:
		log.Error("failed to complete operation record", slog.String("error", err.Error()))
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("operation record was not cleaned up: %v", err))
	case deleted:
		log.Debug("operation complete, record deleted")
	default:
		log.Warn("operation incomplete, record retained",
			slog.Int("successful", summary.Successful),
			slog.Int("failed", summary.Failed))
	}

	c.finish(ctx, span, opType, summary, start)
	return summary, nil
}

func (c *Coordinator) process(ctx context.Context, processor Processor, msg message.Message) (res message.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = message.Failure(msg.ID, fmt.Sprintf("exception: %v", r))
		}
	}()
	return processor(ctx, msg)
}

func (c *Coordinator) finish(ctx context.Context, span trace.Span, opType string, s message.Summary, start time.Time) {
	span.SetAttributes(
		attribute.Int("operation.successful", s.Successful),
		attribute.Int("operation.failed", s.Failed),
	)
	if s.Failed > 0 {
		span.SetStatus(codes.Error, "operation incomplete")
	}
	c.metrics.record(ctx, opType, s.Successful, s.Failed, float64(time.Since(start).Microseconds())/1000)
}
