// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package management

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/message"
)

type queueInfo struct {
	Name                   string `json:"name"`
	VHost                  string `json:"vhost"`
	MessagesReady          int64  `json:"messages_ready"`
	MessagesUnacknowledged int64  `json:"messages_unacknowledged"`
}

func (q queueInfo) toQueue() message.Queue {
	return message.Queue{
		Name:                   q.Name,
		VHost:                  q.VHost,
		MessagesReady:          q.MessagesReady,
		MessagesUnacknowledged: q.MessagesUnacknowledged,
	}
}

type queuePage struct {
	Items     []queueInfo `json:"items"`
	Page      int         `json:"page"`
	PageCount int         `json:"page_count"`
}

// ListQueues pages through the queues of the virtual host whose names match
// the glob pattern.
func (c *Client) ListQueues(ctx context.Context, pattern string) ([]message.Queue, error) {
	query := url.Values{}
	query.Set("page_size", strconv.Itoa(DefaultPageSize))
	if pattern != "" && pattern != "*" {
		re, err := message.Glob(pattern, true)
		if err != nil {
			return nil, fmt.Errorf("invalid queue pattern %q: %w", pattern, err)
		}
		query.Set("name", re.String())
		query.Set("use_regex", "true")
	}

	var queues []message.Queue
	for page := 1; ; page++ {
		query.Set("page", strconv.Itoa(page))
		var p queuePage
		if err := c.do(ctx, http.MethodGet, query, nil, &p, "queues", c.vhost); err != nil {
			return nil, err
		}
		for _, q := range p.Items {
			queues = append(queues, q.toQueue())
		}
		if page >= p.PageCount {
			return queues, nil
		}
	}
}

// Queue returns a single queue.
func (c *Client) Queue(ctx context.Context, name string) (message.Queue, error) {
	if name == "" {
		return message.Queue{}, broker.ErrQueueRequired
	}
	var q queueInfo
	if err := c.do(ctx, http.MethodGet, nil, nil, &q, "queues", c.vhost, name); err != nil {
		return message.Queue{}, err
	}
	return q.toQueue(), nil
}

type getRequest struct {
	Count    int    `json:"count"`
	AckMode  string `json:"ackmode"`
	Encoding string `json:"encoding"`
}

type getResponse struct {
	Exchange        string         `json:"exchange"`
	RoutingKey      string         `json:"routing_key"`
	Payload         string         `json:"payload"`
	PayloadEncoding string         `json:"payload_encoding"`
	Properties      map[string]any `json:"properties"`
	Redelivered     bool           `json:"redelivered"`
}

// Fetch reads messages with the queue get endpoint. A count of zero or less
// reads as many messages as the queue holds when the call starts.
func (c *Client) Fetch(ctx context.Context, queue string, count int, ack bool) ([]message.Message, error) {
	if queue == "" {
		return nil, broker.ErrQueueRequired
	}
	if count <= 0 {
		q, err := c.Queue(ctx, queue)
		if err != nil {
			return nil, err
		}
		count = int(q.MessagesReady)
		if count == 0 {
			return nil, nil
		}
	}

	req := getRequest{
		Count:    count,
		AckMode:  "ack_requeue_true",
		Encoding: "auto",
	}
	if ack {
		req.AckMode = "ack_requeue_false"
	}

	var resp []getResponse
	if err := c.do(ctx, http.MethodPost, nil, req, &resp, "queues", c.vhost, queue, "get"); err != nil {
		return nil, err
	}

	msgs := make([]message.Message, 0, len(resp))
	for i, r := range resp {
		payload, err := r.payload()
		if err != nil {
			return nil, fmt.Errorf("message %d of %s: %w", i+1, queue, err)
		}
		headers, props := splitProperties(r.Properties)
		msgs = append(msgs, message.Message{
			// The management API exposes no delivery tag; the position in the
			// response stands in for it.
			ID:         message.NewID(int64(i+1), queue, r.Exchange, r.RoutingKey, payload),
			Queue:      queue,
			Exchange:   r.Exchange,
			RoutingKey: r.RoutingKey,
			Payload:    payload,
			Headers:    headers,
			Properties: props,
			Source:     message.SourceHTTP,
		})
	}
	return msgs, nil
}

// Purge deletes the ready messages of queue and returns how many there were
// just before the purge.
func (c *Client) Purge(ctx context.Context, queue string) (int, error) {
	q, err := c.Queue(ctx, queue)
	if err != nil {
		return 0, err
	}
	if err := c.do(ctx, http.MethodDelete, nil, nil, nil, "queues", c.vhost, queue, "contents"); err != nil {
		return 0, err
	}
	return int(q.MessagesReady), nil
}

func (r getResponse) payload() ([]byte, error) {
	if r.PayloadEncoding == "base64" {
		data, err := base64.StdEncoding.DecodeString(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 payload: %w", err)
		}
		return data, nil
	}
	return []byte(r.Payload), nil
}

// splitProperties separates the headers table from the basic properties and
// renders both as strings in the same form the AMQP client uses.
func splitProperties(raw map[string]any) (map[string]string, map[string]string) {
	var headers, props map[string]string
	for k, v := range raw {
		if k == "headers" {
			if h, ok := v.(map[string]any); ok && len(h) > 0 {
				headers = make(map[string]string, len(h))
				for hk, hv := range h {
					headers[hk] = stringify(hv)
				}
			}
			continue
		}
		if props == nil {
			props = make(map[string]string)
		}
		if k == "timestamp" {
			if f, ok := v.(float64); ok {
				props[k] = time.Unix(int64(f), 0).UTC().Format(time.RFC3339)
				continue
			}
		}
		props[k] = stringify(v)
	}
	return headers, props
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
