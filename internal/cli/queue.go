// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/config"
	"github.com/absmach/rmqctl/internal/wiring"
	"github.com/absmach/rmqctl/message"
	"github.com/absmach/rmqctl/service"
)

func queueCommand() *command {
	return &command{
		name:    "queue",
		summary: "Inspect and manipulate queues",
		sub: []*command{
			{name: "list", usage: "queue list [--pattern GLOB]", summary: "List queues", run: queueList},
			{name: "inspect", usage: "queue inspect <queue> [--limit N]", summary: "Show a queue and peek at its first messages", run: queueInspect},
			{name: "purge", usage: "queue purge <queue> --yes", summary: "Remove every ready message from a queue without backup", run: queuePurge},
			{name: "search", usage: "queue search --pattern GLOB [--queue NAME | --queues GLOB] [--limit N]", summary: "Search messages by payload or id", run: searchMessages},
			{name: "export", usage: "queue export --pattern GLOB --output-file FILE [--limit N]", summary: "Write messages of matching queues to a JSON file", run: queueExport},
			{name: "import", usage: "queue import <queue> --input-file FILE", summary: "Publish the messages of a JSON file to a queue", run: queueImport},
			{name: "consume", usage: "queue consume <queue> [--limit N] [--ack] [--prefetch N]", summary: "Stream messages of a queue", run: queueConsume},
			{name: "requeue", usage: "queue requeue --from QUEUE --to QUEUE (--limit N | --all)", summary: "Move messages between queues", run: queueRequeue},
			{name: "reprocess", usage: "queue reprocess --from QUEUE (--limit N | --all)", summary: "Publish messages again to their original exchange", run: queueReprocess},
		},
	}
}

func queueList(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	pattern := fs.String("pattern", "", "Glob selecting queue names")
	if _, err := a.leaf(cmd, fs, args, 0, 0); err != nil {
		return err
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		queues, err := rt.Service.ListQueues(ctx, *pattern)
		if err != nil {
			return err
		}
		if a.output == OutputJSON {
			if queues == nil {
				queues = []message.Queue{}
			}
			return a.json(queues)
		}
		t := newTable(a.Stdout, "NAME", "READY", "UNACKED", "TOTAL")
		for _, q := range queues {
			t.row(q.Name, itoa(q.MessagesReady), itoa(q.MessagesUnacknowledged), itoa(q.TotalMessages()))
		}
		if err := t.flush(); err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "\n%d queue(s)\n", len(queues))
		return nil
	})
}

func queueInspect(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	limit := fs.Int("limit", 10, "Messages to peek at")
	pos, err := a.leaf(cmd, fs, args, 1, 1)
	if err != nil {
		return err
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		q, err := rt.Service.Queue(ctx, pos[0])
		if err != nil {
			return err
		}
		var msgs []message.Message
		if *limit > 0 && q.MessagesReady > 0 {
			if msgs, err = rt.Service.Peek(ctx, q.Name, *limit); err != nil {
				return err
			}
		}
		if a.output == OutputJSON {
			return a.json(struct {
				message.Queue
				Messages []message.Message `json:"messages"`
			}{q, msgs})
		}
		t := newTable(a.Stdout, "FIELD", "VALUE")
		t.row("name", q.Name)
		t.row("vhost", q.VHost)
		t.row("ready", itoa(q.MessagesReady))
		t.row("unacknowledged", itoa(q.MessagesUnacknowledged))
		if err := t.flush(); err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		fmt.Fprintln(a.Stdout)
		return a.printMessages(msgs, nil)
	})
}

func queuePurge(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	yes := fs.Bool("yes", false, "Confirm that the messages are removed without backup")
	pos, err := a.leaf(cmd, fs, args, 1, 1)
	if err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("purging %s removes its messages without backup, pass --yes to confirm", pos[0])
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		n, err := rt.Service.Purge(ctx, pos[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "Purged %d message(s) from %s.\n", n, pos[0])
		return nil
	})
}

func searchMessages(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	var q service.SearchQuery
	fs.StringVar(&q.Pattern, "pattern", "", "Glob matched against payloads and message ids")
	fs.StringVar(&q.Queue, "queue", "", "Queue to search")
	fs.StringVar(&q.QueuePattern, "queues", "", "Glob selecting the queues to search when --queue is not set")
	fs.IntVar(&q.Limit, "limit", service.DefaultSearchLimit, "Maximum number of results")
	if _, err := a.leaf(cmd, fs, args, 0, 0); err != nil {
		return err
	}
	if q.Pattern == "" {
		fs.Usage()
		return fmt.Errorf("%w: --pattern is required", errUsage)
	}
	re, err := service.SearchPattern(q.Pattern)
	if err != nil {
		return err
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		msgs, err := rt.Service.Search(ctx, q)
		if err != nil {
			return err
		}
		return a.printMessages(msgs, func(m message.Message) string {
			if re.Match(m.Payload) {
				return preview([]byte(message.Excerpt(string(m.Payload), re, payloadWidth/3)), payloadWidth)
			}
			return preview(m.Payload, payloadWidth)
		})
	})
}

func queueExport(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	pattern := fs.String("pattern", "", "Glob selecting the queues to export")
	file := fs.String("output-file", "", "File to write")
	fs.StringVar(file, "o", "", "Shorthand for --output-file")
	limit := fs.Int("limit", 100, "Messages to export per queue")
	if _, err := a.leaf(cmd, fs, args, 0, 0); err != nil {
		return err
	}
	if *pattern == "" || *file == "" {
		fs.Usage()
		return fmt.Errorf("%w: --pattern and --output-file are required", errUsage)
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		msgs, err := rt.Service.Export(ctx, *pattern, *limit)
		if err != nil {
			return err
		}
		if err := service.WriteMessages(*file, msgs); err != nil {
			return fmt.Errorf("failed to write %s: %w", *file, err)
		}
		fmt.Fprintf(a.Stdout, "Exported %d message(s) to %s.\n", len(msgs), *file)
		return nil
	})
}

func queueImport(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	file := fs.String("input-file", "", "JSON file written by 'queue export'")
	fs.StringVar(file, "i", "", "Shorthand for --input-file")
	pos, err := a.leaf(cmd, fs, args, 1, 1)
	if err != nil {
		return err
	}
	if *file == "" {
		fs.Usage()
		return fmt.Errorf("%w: --input-file is required", errUsage)
	}
	msgs, err := service.ReadMessages(*file)
	if err != nil {
		return err
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		res, err := rt.Service.Import(ctx, pos[0], msgs)
		if err != nil {
			return err
		}
		if a.output == OutputJSON {
			if err := a.json(res); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(a.Stdout, "Imported %d message(s) to %s, %d failed.\n", res.Imported, pos[0], res.Failed)
			for _, e := range res.Errors {
				fmt.Fprintf(a.Stdout, "error: %s\n", e)
			}
		}
		if res.Failed > 0 {
			return fmt.Errorf("%w: %d of %d messages failed", ErrIncomplete, res.Failed, len(msgs))
		}
		return nil
	})
}

func queueConsume(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	var opts broker.ConsumeOptions
	fs.IntVar(&opts.Limit, "limit", 0, "Stop after N messages (0 streams until interrupted)")
	fs.BoolVar(&opts.AutoAck, "ack", false, "Remove consumed messages from the queue")
	fs.IntVar(&opts.Prefetch, "prefetch", 10, "Deliveries in flight")
	pos, err := a.leaf(cmd, fs, args, 1, 1)
	if err != nil {
		return err
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		n := 0
		err := rt.Service.Consume(ctx, pos[0], opts, func(m message.Message) error {
			n++
			if a.output == OutputJSON {
				return a.json(m)
			}
			fmt.Fprintf(a.Stdout, "%s  %s  %s\n", m.ID, orDefault(m.Exchange)+"/"+m.RoutingKey, preview(m.Payload, 2*payloadWidth))
			return nil
		})
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		a.Logger.Debug("consumer stopped", "queue", pos[0], "messages", n)
		return err
	})
}

func queueRequeue(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	from := fs.String("from", "", "Source queue")
	to := fs.String("to", "", "Destination queue")
	limit := fs.Int("limit", 0, "Messages to move")
	all := fs.Bool("all", false, "Move every message")
	if _, err := a.leaf(cmd, fs, args, 0, 0); err != nil {
		return err
	}
	n, err := limitFlag(*limit, *all)
	if err != nil {
		return err
	}
	if *from == "" || *to == "" {
		fs.Usage()
		return fmt.Errorf("%w: --from and --to are required", errUsage)
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		s, err := rt.Service.RequeueQueue(ctx, *from, *to, n)
		return a.report("requeue "+*from+" -> "+*to, s, err)
	})
}

func queueReprocess(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	from := fs.String("from", "", "Queue to take messages from")
	limit := fs.Int("limit", 0, "Messages to reprocess")
	all := fs.Bool("all", false, "Reprocess every message")
	if _, err := a.leaf(cmd, fs, args, 0, 0); err != nil {
		return err
	}
	n, err := limitFlag(*limit, *all)
	if err != nil {
		return err
	}
	if *from == "" {
		fs.Usage()
		return fmt.Errorf("%w: --from is required", errUsage)
	}

	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		s, err := rt.Service.ReprocessQueue(ctx, *from, n)
		return a.report("reprocess "+*from, s, err)
	})
}
