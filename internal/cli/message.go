// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/config"
	"github.com/absmach/rmqctl/internal/wiring"
	"github.com/absmach/rmqctl/message"
)

func messageCommand() *command {
	return &command{
		name:    "message",
		summary: "Inspect, publish and move individual messages",
		sub: []*command{
			{name: "inspect", usage: "message inspect <queue> <id>", summary: "Show a message with its headers and properties", run: messageInspect},
			{name: "search", usage: "message search --pattern GLOB [--queue NAME | --queues GLOB] [--limit N]", summary: "Search messages by payload or id", run: searchMessages},
			{name: "publish", usage: "message publish [--exchange EX] (--routing-key KEY | --queue NAME) (--payload DATA | --file FILE) [--header k=v] [--property k=v]", summary: "Publish a message", run: messagePublish},
			{name: "delete", usage: "message delete <queue> <id>...", summary: "Delete messages with a backup of everything taken from the queue", run: messageDelete},
			{name: "requeue", usage: "message requeue <queue> <id> --to QUEUE", summary: "Move a message to another queue", run: messageRequeue},
			{name: "reprocess", usage: "message reprocess <queue> <id>", summary: "Publish a message again to its original exchange", run: messageReprocess},
		},
	}
}

func messageInspect(ctx context.Context, a *App, cmd *command, args []string) error {
	pos, err := a.leaf(cmd, a.flags(cmd), args, 2, 2)
	if err != nil {
		return err
	}
	id, err := message.ParseID(pos[1])
	if err != nil {
		return err
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		m, err := rt.Service.FindMessage(ctx, pos[0], id)
		if err != nil {
			return err
		}
		return a.printMessage(m)
	})
}

func messagePublish(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	exchange := fs.String("exchange", broker.DefaultExchange, "Exchange to publish to (default exchange when empty)")
	routingKey := fs.String("routing-key", "", "Routing key")
	queue := fs.String("queue", "", "Queue to publish to through the default exchange")
	payload := fs.String("payload", "", "Message body")
	file := fs.String("file", "", "File holding the message body")
	headers := kvFlag{}
	props := kvFlag{}
	fs.Var(headers, "header", "Header as key=value, repeatable")
	fs.Var(props, "property", "Basic property as key=value, repeatable")
	if _, err := a.leaf(cmd, fs, args, 0, 0); err != nil {
		return err
	}

	switch {
	case *queue != "" && (*exchange != "" || *routingKey != ""):
		return fmt.Errorf("%w: --queue cannot be combined with --exchange or --routing-key", errUsage)
	case *payload != "" && *file != "":
		return fmt.Errorf("%w: --payload and --file are mutually exclusive", errUsage)
	}
	if *queue != "" {
		*routingKey = *queue
	}
	body := []byte(*payload)
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return fmt.Errorf("failed to read payload: %w", err)
		}
		body = data
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		err := rt.Service.Publish(ctx, *exchange, *routingKey, body,
			broker.WithHeaders(headers), broker.WithProperties(props))
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "Published %d byte(s) to %s with routing key %q.\n", len(body), orDefault(*exchange), *routingKey)
		return nil
	})
}

func messageDelete(ctx context.Context, a *App, cmd *command, args []string) error {
	pos, err := a.leaf(cmd, a.flags(cmd), args, 2, -1)
	if err != nil {
		return err
	}
	ids, err := parseIDs(pos[1:])
	if err != nil {
		return err
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		var (
			s   message.Summary
			err error
		)
		if len(ids) == 1 {
			s, err = rt.Service.SafeDelete(ctx, pos[0], ids[0])
		} else {
			s, err = rt.Service.SafeDeleteMany(ctx, pos[0], ids)
		}
		return a.report("delete from "+pos[0], s, err)
	})
}

func messageRequeue(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	to := fs.String("to", "", "Destination queue")
	pos, err := a.leaf(cmd, fs, args, 2, 2)
	if err != nil {
		return err
	}
	if *to == "" {
		fs.Usage()
		return fmt.Errorf("%w: --to is required", errUsage)
	}
	id, err := message.ParseID(pos[1])
	if err != nil {
		return err
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		m, err := rt.Service.FindMessage(ctx, pos[0], id)
		if err != nil {
			return err
		}
		s, err := rt.Service.SafeRequeue(ctx, m, *to)
		return a.report("requeue "+pos[0]+" -> "+*to, s, err)
	})
}

func messageReprocess(ctx context.Context, a *App, cmd *command, args []string) error {
	pos, err := a.leaf(cmd, a.flags(cmd), args, 2, 2)
	if err != nil {
		return err
	}
	id, err := message.ParseID(pos[1])
	if err != nil {
		return err
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		m, err := rt.Service.FindMessage(ctx, pos[0], id)
		if err != nil {
			return err
		}
		s, err := rt.Service.SafeReprocess(ctx, m)
		return a.report("reprocess "+pos[0], s, err)
	})
}
