// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package service implements the broker use-cases. Every use-case that takes
// messages off a queue runs as a coordinated operation so that nothing it
// removed is lost when a later step fails.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/absmach/rmqctl/backup"
	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/message"
	"github.com/absmach/rmqctl/safeop"
	"github.com/absmach/rmqctl/webhook"
	"github.com/google/uuid"
)

// Operation types recorded with backups.
const (
	OpDeleteMessage     = "delete-message"
	OpDeleteMessages    = "delete-messages"
	OpRequeueMessage    = "requeue-message"
	OpRequeueMessages   = "requeue-messages"
	OpReprocessMessage  = "reprocess-message"
	OpReprocessMessages = "reprocess-messages"
	OpRecover           = "recover"
)

// Recoverable reports whether the snapshot of an operation of opType was taken
// off its queue, so republishing it restores rather than duplicates messages.
// A single-message requeue publishes a peeked copy and never drains the source.
func Recoverable(opType string) bool {
	return opType != OpRequeueMessage
}

// Executor runs coordinated operations.
type Executor interface {
	Execute(ctx context.Context, opID uuid.UUID, opType string, provider safeop.Provider, processor safeop.Processor) (message.Summary, error)
}

// Records gives access to retained operation records.
type Records interface {
	Get(ctx context.Context, opID uuid.UUID) (backup.Record, error)
	List(ctx context.Context) ([]backup.Record, error)
	Discard(ctx context.Context, opID uuid.UUID) error
}

// Notifier receives the outcome of every coordinated operation.
type Notifier interface {
	Notify(ctx context.Context, ev webhook.Event) error
}

// Service implements queue, message and recovery use-cases over a broker.
type Service struct {
	broker  broker.Client
	ops     Executor
	records Records
	dataDir string
	logger  *slog.Logger
	newID   func() uuid.UUID

	notifier Notifier
}

// New creates a service. dataDir receives recovery files for operations whose
// backup could not be written.
func New(b broker.Client, ops Executor, records Records, dataDir string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		broker:  b,
		ops:     ops,
		records: records,
		dataDir: dataDir,
		logger:  logger,
		newID:   uuid.New,
	}
}

// SetNotifier makes the service report operation outcomes to n.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// run executes a coordinated operation under a fresh id. When the snapshot
// could not be backed up it is written to a recovery file instead.
func (s *Service) run(ctx context.Context, opType string, provider safeop.Provider, processor safeop.Processor) (message.Summary, error) {
	opID := s.newID()
	log := s.logger.With(slog.String("operation_id", opID.String()), slog.String("operation_type", opType))

	summary, err := s.ops.Execute(ctx, opID, opType, provider, processor)
	summary.Type = opType
	defer func() { s.notify(ctx, opType, summary, err) }()

	switch {
	case errors.Is(err, safeop.ErrBackupFailed) && !Recoverable(opType):
		log.Warn("backup failed, source queue left untouched")
		summary.Warnings = append(summary.Warnings, "nothing was taken from the source queue")
		return summary, err
	case errors.Is(err, safeop.ErrBackupFailed) && len(summary.Unprocessed) > 0:
		path := s.RecoveryFile(opID)
		if werr := WriteMessages(path, summary.Unprocessed); werr != nil {
			log.Error("failed to write recovery file", slog.String("path", path), slog.String("error", werr.Error()))
			err = fmt.Errorf("%w; recovery file not written: %v", err, werr)
			return summary, err
		}
		log.Warn("backup failed, snapshot written to recovery file", slog.String("path", path))
		summary.Warnings = append(summary.Warnings, "snapshot written to "+path)
		return summary, err
	case err != nil:
		return summary, err
	}

	if summary.Failed > 0 {
		log.Warn("operation incomplete", slog.Int("successful", summary.Successful), slog.Int("failed", summary.Failed))
	} else {
		log.Info("operation complete", slog.Int("successful", summary.Successful))
	}
	return summary, nil
}

// notify reports the outcome of an operation. Errors that stopped the
// operation before any message was taken are not reported.
func (s *Service) notify(ctx context.Context, opType string, summary message.Summary, err error) {
	if s.notifier == nil {
		return
	}
	var typ string
	switch {
	case errors.Is(err, safeop.ErrBackupFailed):
		typ = webhook.EventBackupFailed
	case err != nil:
		return
	case summary.Failed > 0:
		typ = webhook.EventIncomplete
	case summary.Successful == 0:
		return
	default:
		typ = webhook.EventCompleted
	}

	ev := webhook.Event{
		Type:        typ,
		OperationID: summary.ID,
		Operation:   opType,
		Successful:  summary.Successful,
		Failed:      summary.Failed,
		Unprocessed: message.IDs(summary.Unprocessed),
		Warnings:    summary.Warnings,
	}
	if nerr := s.notifier.Notify(ctx, ev); nerr != nil {
		s.logger.Warn("failed to queue operation notification",
			slog.String("operation_id", summary.ID.String()), slog.String("error", nerr.Error()))
	}
}

// RecoveryFile returns where the snapshot of opID is written when its backup fails.
func (s *Service) RecoveryFile(opID uuid.UUID) string {
	return filepath.Join(s.dataDir, "recovery-"+opID.String()+".json")
}

// publishTo returns a processor publishing every message to a fixed destination.
func (s *Service) publishTo(exchange, routingKey string) safeop.Processor {
	return func(ctx context.Context, m message.Message) message.Result {
		if err := s.broker.Publish(ctx, exchange, routingKey, m.Payload, broker.WithMessage(m)); err != nil {
			return message.Failure(m.ID, "publish failed: "+err.Error())
		}
		return message.Success(m.ID)
	}
}

// republish is a processor publishing every message to its original exchange
// and routing key.
func (s *Service) republish(ctx context.Context, m message.Message) message.Result {
	if err := s.broker.Publish(ctx, m.Exchange, m.RoutingKey, m.Payload, broker.WithMessage(m)); err != nil {
		return message.Failure(m.ID, "republish failed: "+err.Error())
	}
	return message.Success(m.ID)
}

// sourceQueue returns the queue a message was read from. Messages without a
// recorded queue were published through the default exchange, where the
// routing key names the queue.
func sourceQueue(m message.Message) string {
	if m.Queue != "" {
		return m.Queue
	}
	return m.RoutingKey
}
