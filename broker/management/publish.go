// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package management

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/absmach/rmqctl/broker"
)

// defaultExchangeName is how the management API addresses the default exchange.
const defaultExchangeName = "amq.default"

type publishRequest struct {
	Properties      map[string]any `json:"properties"`
	RoutingKey      string         `json:"routing_key"`
	Payload         string         `json:"payload"`
	PayloadEncoding string         `json:"payload_encoding"`
}

type publishResponse struct {
	Routed bool `json:"routed"`
}

// Publish publishes through the exchange publish endpoint. A message the
// broker routed nowhere fails with broker.ErrUnroutable.
func (c *Client) Publish(ctx context.Context, exchange, routingKey string, payload []byte, opts ...broker.PublishOption) error {
	if exchange == broker.DefaultExchange && routingKey == "" {
		return broker.ErrQueueRequired
	}

	props, err := publishProperties(broker.NewPublishOptions(opts...))
	if err != nil {
		return err
	}
	req := publishRequest{
		Properties:      props,
		RoutingKey:      routingKey,
		Payload:         string(payload),
		PayloadEncoding: "string",
	}
	if !utf8.Valid(payload) {
		req.Payload = base64.StdEncoding.EncodeToString(payload)
		req.PayloadEncoding = "base64"
	}

	name := exchange
	if name == broker.DefaultExchange {
		name = defaultExchangeName
	}

	var resp publishResponse
	if err := c.do(ctx, http.MethodPost, nil, req, &resp, "exchanges", c.vhost, name, "publish"); err != nil {
		return err
	}
	if !resp.Routed {
		return fmt.Errorf("%w: %s", broker.ErrUnroutable, broker.Destination(exchange, routingKey))
	}
	return nil
}

func publishProperties(o broker.PublishOptions) (map[string]any, error) {
	props := map[string]any{"delivery_mode": 2}
	for k, v := range o.Properties {
		switch k {
		case "delivery_mode", "priority":
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", k, v, err)
			}
			props[k] = n
		case "timestamp":
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s %q: %w", k, v, err)
			}
			props[k] = ts.Unix()
		default:
			props[k] = v
		}
	}
	if len(o.Headers) > 0 {
		headers := make(map[string]any, len(o.Headers))
		for k, v := range o.Headers {
			headers[k] = v
		}
		props["headers"] = headers
	}
	return props, nil
}
