// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/message"
)

// DefaultSearchLimit bounds search results when no limit is given.
const DefaultSearchLimit = 100

// SearchQuery selects messages by a glob over their payload or identity.
type SearchQuery struct {
	Pattern string
	// Queue searches a single queue. When empty, QueuePattern selects the
	// queues to search.
	Queue        string
	QueuePattern string
	Limit        int
}

// FindMessage returns the message of queue identified by id without removing it.
func (s *Service) FindMessage(ctx context.Context, queue string, id message.ID) (message.Message, error) {
	msgs, err := s.peek(ctx, queue, 0)
	if err != nil {
		return message.Message{}, err
	}
	if m, ok := find(msgs, id); ok {
		return m, nil
	}
	return message.Message{}, fmt.Errorf("%w: %s in %s", ErrMessageNotFound, id, queue)
}

// SearchPattern compiles a search glob. The pattern may match anywhere in the input.
func SearchPattern(pattern string) (*regexp.Regexp, error) {
	re, err := message.Glob(pattern, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return re, nil
}

// Search returns the messages whose payload or identity matches q.Pattern. Messages
// are only peeked.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]message.Message, error) {
	re, err := SearchPattern(q.Pattern)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queues := []string{q.Queue}
	if q.Queue == "" {
		qs, err := s.broker.ListQueues(ctx, q.QueuePattern)
		if err != nil {
			return nil, fmt.Errorf("failed to list queues: %w", err)
		}
		queues = queues[:0]
		for _, qu := range qs {
			queues = append(queues, qu.Name)
		}
	}

	var found []message.Message
	for _, name := range queues {
		msgs, err := s.peek(ctx, name, 0)
		if err != nil {
			if q.Queue != "" {
				return nil, err
			}
			s.logger.Warn("skipping queue", slog.String("queue", name), slog.String("error", err.Error()))
			continue
		}
		for _, m := range msgs {
			if re.Match(m.Payload) || re.MatchString(m.ID.String()) {
				found = append(found, m)
				if len(found) == limit {
					return found, nil
				}
			}
		}
	}
	return found, nil
}

// Publish sends payload to exchange with routingKey.
func (s *Service) Publish(ctx context.Context, exchange, routingKey string, payload []byte, opts ...broker.PublishOption) error {
	if exchange == broker.DefaultExchange && routingKey == "" {
		return broker.ErrQueueRequired
	}
	return s.broker.Publish(ctx, exchange, routingKey, payload, opts...)
}

// SafeDelete removes the message identified by id from queue. The whole queue is
// drained and backed up, then every other message is published back to its
// original exchange and routing key.
func (s *Service) SafeDelete(ctx context.Context, queue string, id message.ID) (message.Summary, error) {
	return s.deleteMessages(ctx, OpDeleteMessage, queue, []message.ID{id})
}

// SafeDeleteMany removes every message identified by ids from queue in a single
// coordinated operation. Identities that are not found are reported as warnings.
func (s *Service) SafeDeleteMany(ctx context.Context, queue string, ids []message.ID) (message.Summary, error) {
	return s.deleteMessages(ctx, OpDeleteMessages, queue, ids)
}

func (s *Service) deleteMessages(ctx context.Context, opType, queue string, ids []message.ID) (message.Summary, error) {
	if queue == "" {
		return message.Summary{}, broker.ErrQueueRequired
	}
	if len(ids) == 0 {
		return message.Summary{}, fmt.Errorf("%w: no message ids given", ErrMessageNotFound)
	}

	peeked, err := s.peek(ctx, queue, 0)
	if err != nil {
		return message.Summary{}, err
	}
	if _, missing := selectTargets(peeked, ids); len(missing) == len(ids) {
		return message.Summary{}, fmt.Errorf("%w: %s in %s", ErrMessageNotFound, ids[0], queue)
	}

	var (
		targets map[message.ID]bool
		missing []message.ID
	)
	provider := func(ctx context.Context) ([]message.Message, error) {
		msgs, err := s.broker.Fetch(ctx, queue, 0, true)
		if err != nil {
			return nil, fmt.Errorf("failed to drain %s: %w", queue, err)
		}
		targets, missing = selectTargets(msgs, ids)
		return msgs, nil
	}
	processor := func(ctx context.Context, m message.Message) message.Result {
		if targets[m.ID] {
			return message.Success(m.ID)
		}
		return s.republish(ctx, m)
	}

	summary, err := s.run(ctx, opType, provider, processor)
	if err != nil {
		return summary, err
	}
	for _, id := range missing {
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("message %s left %s before it was deleted", id, queue))
	}
	if len(missing) == len(ids) {
		return summary, fmt.Errorf("%w: %s left %s before it was deleted", ErrMessageNotFound, ids[0], queue)
	}
	return summary, nil
}

// SafeRequeue publishes msg to toQueue and then removes it from the queue it was
// read from. A failed removal leaves a duplicate and is reported as a warning.
func (s *Service) SafeRequeue(ctx context.Context, msg message.Message, toQueue string) (message.Summary, error) {
	if toQueue == "" {
		return message.Summary{}, broker.ErrQueueRequired
	}
	from := sourceQueue(msg)
	if from == toQueue {
		return message.Summary{}, ErrSameQueue
	}

	var warnings []string
	processor := func(ctx context.Context, m message.Message) message.Result {
		if err := s.broker.Publish(ctx, broker.DefaultExchange, toQueue, m.Payload, broker.WithMessage(m)); err != nil {
			return message.Failure(m.ID, "publish failed: "+err.Error())
		}
		if w := s.removeSource(ctx, from, m.ID); w != "" {
			warnings = append(warnings, w)
		}
		return message.Success(m.ID)
	}

	summary, err := s.run(ctx, OpRequeueMessage, single(msg), processor)
	summary.Warnings = append(summary.Warnings, warnings...)
	return summary, err
}

// removeSource deletes a requeued message from its source queue and describes
// any problem.
func (s *Service) removeSource(ctx context.Context, queue string, id message.ID) string {
	del, err := s.SafeDelete(ctx, queue, id)
	switch {
	case err != nil:
		s.logger.Warn("failed to remove requeued message from source queue",
			slog.String("queue", queue), slog.String("message_id", id.String()), slog.String("error", err.Error()))
		return fmt.Sprintf("message %s was not removed from %s: %v", id, queue, err)
	case del.Failed > 0:
		s.logger.Warn("removal from source queue incomplete",
			slog.String("queue", queue), slog.String("operation_id", del.ID.String()), slog.Int("failed", del.Failed))
		return fmt.Sprintf("removal from %s incomplete, operation %s retained", queue, del.ID)
	}
	return ""
}

// SafeReprocess removes msg from the queue it was read from and publishes it again
// to its original exchange and routing key. When the removal fails for any
// message, its summary is returned and nothing is republished.
func (s *Service) SafeReprocess(ctx context.Context, msg message.Message) (message.Summary, error) {
	del, err := s.SafeDelete(ctx, sourceQueue(msg), msg.ID)
	if err != nil || del.Failed > 0 {
		return del, err
	}
	return s.run(ctx, OpReprocessMessage, single(msg), s.republish)
}

// peek reads up to count messages of queue and returns them to the queue.
func (s *Service) peek(ctx context.Context, queue string, count int) ([]message.Message, error) {
	if queue == "" {
		return nil, broker.ErrQueueRequired
	}
	msgs, err := s.broker.Fetch(ctx, queue, count, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", queue, err)
	}
	return msgs, nil
}

func single(m message.Message) func(context.Context) ([]message.Message, error) {
	return func(context.Context) ([]message.Message, error) {
		return []message.Message{m}, nil
	}
}

// find returns the first message whose identity equals id, else the first one
// id matches.
func find(msgs []message.Message, id message.ID) (message.Message, bool) {
	for _, m := range msgs {
		if m.ID == id {
			return m, true
		}
	}
	for _, m := range msgs {
		if id.Matches(m) {
			return m, true
		}
	}
	return message.Message{}, false
}

// selectTargets resolves ids to distinct messages of msgs. Exact identities are
// resolved before fingerprint matches.
func selectTargets(msgs []message.Message, ids []message.ID) (map[message.ID]bool, []message.ID) {
	targets := make(map[message.ID]bool, len(ids))
	resolved := make([]bool, len(ids))
	for i, id := range ids {
		for _, m := range msgs {
			if m.ID == id && !targets[m.ID] {
				targets[m.ID] = true
				resolved[i] = true
				break
			}
		}
	}

	var missing []message.ID
	for i, id := range ids {
		if resolved[i] {
			continue
		}
		found := false
		for _, m := range msgs {
			if !targets[m.ID] && id.Matches(m) {
				targets[m.ID] = true
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, id)
		}
	}
	return targets, missing
}
