// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/absmach/rmqctl/backup"
	"github.com/absmach/rmqctl/message"
	"github.com/google/uuid"
)

// Backups returns the retained operation records, oldest first.
func (s *Service) Backups(ctx context.Context) ([]backup.Record, error) {
	return s.records.List(ctx)
}

// Backup returns the retained record of opID.
func (s *Service) Backup(ctx context.Context, opID uuid.UUID) (backup.Record, error) {
	return s.records.Get(ctx, opID)
}

// DiscardBackup deletes the retained record of opID without republishing anything.
func (s *Service) DiscardBackup(ctx context.Context, opID uuid.UUID) error {
	if err := s.records.Discard(ctx, opID); err != nil {
		return err
	}
	s.logger.Info("backup discarded", slog.String("operation_id", opID.String()))
	return nil
}

// Recover republishes the unprocessed messages of a retained record to their
// original exchange and routing key. The record is discarded once every message
// was republished. Records of operations that never took their messages off the
// source queue are refused with ErrNotRecoverable.
func (s *Service) Recover(ctx context.Context, opID uuid.UUID) (message.Summary, error) {
	rec, err := s.records.Get(ctx, opID)
	if err != nil {
		return message.Summary{}, err
	}
	if !Recoverable(rec.Type) {
		return message.Summary{}, fmt.Errorf("%w: %s operation %s left its messages in the source queue, discard it with 'rmqctl backup discard %s --yes'",
			ErrNotRecoverable, rec.Type, opID, opID)
	}
	pending := rec.Unprocessed()
	if len(pending) == 0 {
		return message.Summary{}, fmt.Errorf("%w: %s", ErrNothingToRecover, opID)
	}

	summary, err := s.recover(ctx, pending)
	if err != nil || summary.Failed > 0 {
		return summary, err
	}
	if err := s.records.Discard(ctx, opID); err != nil {
		s.logger.Warn("failed to discard recovered backup", slog.String("operation_id", opID.String()), slog.String("error", err.Error()))
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("operation %s was recovered but its record was kept: %v", opID, err))
	}
	return summary, nil
}

// RecoverFile republishes the messages of a recovery file written for an
// operation whose backup failed.
func (s *Service) RecoverFile(ctx context.Context, path string) (message.Summary, error) {
	msgs, err := ReadMessages(path)
	if err != nil {
		return message.Summary{}, err
	}
	if len(msgs) == 0 {
		return message.Summary{}, fmt.Errorf("%w: %s", ErrNothingToRecover, path)
	}
	return s.recover(ctx, msgs)
}

func (s *Service) recover(ctx context.Context, msgs []message.Message) (message.Summary, error) {
	provider := func(context.Context) ([]message.Message, error) {
		return msgs, nil
	}
	return s.run(ctx, OpRecover, provider, s.republish)
}
