// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/absmach/rmqctl/backup"
	"github.com/absmach/rmqctl/config"
	"github.com/absmach/rmqctl/internal/wiring"
	"github.com/absmach/rmqctl/message"
)

func backupCommand() *command {
	return &command{
		name:    "backup",
		summary: "Inspect and recover retained operation records",
		sub: []*command{
			{name: "list", usage: "backup list", summary: "List retained operation records", run: backupList},
			{name: "show", usage: "backup show <operation-id>", summary: "Show the messages of an operation record", run: backupShow},
			{name: "recover", usage: "backup recover (<operation-id> | --file FILE)", summary: "Republish the unprocessed messages of a record or recovery file", run: backupRecover},
			{name: "discard", usage: "backup discard <operation-id> --yes", summary: "Delete an operation record", run: backupDiscard},
		},
	}
}

type recordView struct {
	OperationID string            `json:"operation_id"`
	Type        string            `json:"type"`
	CreatedAt   time.Time         `json:"created_at"`
	Messages    int               `json:"messages"`
	Processed   int               `json:"processed"`
	Unprocessed []message.Message `json:"unprocessed,omitempty"`
}

func viewOf(rec backup.Record, withMessages bool) recordView {
	v := recordView{
		OperationID: rec.OperationID.String(),
		Type:        rec.Type,
		CreatedAt:   rec.CreatedAt,
		Messages:    len(rec.Messages),
		Processed:   len(rec.Processed()),
	}
	if withMessages {
		v.Unprocessed = rec.Unprocessed()
	}
	return v
}

func backupList(ctx context.Context, a *App, cmd *command, args []string) error {
	if _, err := a.leaf(cmd, a.flags(cmd), args, 0, 0); err != nil {
		return err
	}

	return a.withOffline(func(rt *wiring.Runtime) error {
		recs, err := rt.Service.Backups(ctx)
		if err != nil {
			return err
		}
		if a.output == OutputJSON {
			views := make([]recordView, len(recs))
			for i, r := range recs {
				views[i] = viewOf(r, false)
			}
			return a.json(views)
		}
		t := newTable(a.Stdout, "OPERATION", "TYPE", "CREATED", "MESSAGES", "PROCESSED")
		for _, r := range recs {
			t.row(r.OperationID.String(), r.Type, r.CreatedAt.Local().Format(time.DateTime),
				strconv.Itoa(len(r.Messages)), strconv.Itoa(len(r.Processed())))
		}
		if err := t.flush(); err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "\n%d record(s)\n", len(recs))
		return nil
	})
}

func backupShow(ctx context.Context, a *App, cmd *command, args []string) error {
	pos, err := a.leaf(cmd, a.flags(cmd), args, 1, 1)
	if err != nil {
		return err
	}
	opID, err := parseOperationID(pos[0])
	if err != nil {
		return err
	}

	return a.withOffline(func(rt *wiring.Runtime) error {
		rec, err := rt.Service.Backup(ctx, opID)
		if err != nil {
			return err
		}
		if a.output == OutputJSON {
			return a.json(viewOf(rec, true))
		}
		fmt.Fprintf(a.Stdout, "Operation %s (%s), created %s\n", rec.OperationID, rec.Type, rec.CreatedAt.Local().Format(time.DateTime))
		fmt.Fprintf(a.Stdout, "%d of %d message(s) processed.\n\n", len(rec.Processed()), len(rec.Messages))
		t := newTable(a.Stdout, "ID", "STATE", "QUEUE", "EXCHANGE", "ROUTING KEY", "PAYLOAD")
		for _, m := range rec.Messages {
			state := "pending"
			if rec.IsProcessed(m.ID) {
				state = "processed"
			}
			t.row(m.ID.String(), state, m.Queue, orDefault(m.Exchange), m.RoutingKey, preview(m.Payload, payloadWidth))
		}
		return t.flush()
	})
}

func backupRecover(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	file := fs.String("file", "", "Recovery file written when a backup could not be stored")
	pos, err := a.leaf(cmd, fs, args, 0, 1)
	if err != nil {
		return err
	}
	if (len(pos) == 1) == (*file != "") {
		fs.Usage()
		return fmt.Errorf("%w: pass either an operation id or --file", errUsage)
	}

	if *file != "" {
		return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
			s, err := rt.Service.RecoverFile(ctx, *file)
			return a.report("recover "+*file, s, err)
		})
	}

	opID, err := parseOperationID(pos[0])
	if err != nil {
		return err
	}
	return a.withRuntime(func(rt *wiring.Runtime, _ config.Connection) error {
		s, err := rt.Service.Recover(ctx, opID)
		return a.report("recover "+opID.String(), s, err)
	})
}

func backupDiscard(ctx context.Context, a *App, cmd *command, args []string) error {
	fs := a.flags(cmd)
	yes := fs.Bool("yes", false, "Confirm that the record and its unprocessed messages are dropped")
	pos, err := a.leaf(cmd, fs, args, 1, 1)
	if err != nil {
		return err
	}
	opID, err := parseOperationID(pos[0])
	if err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("discarding %s drops its unprocessed messages for good, pass --yes to confirm", opID)
	}

	return a.withOffline(func(rt *wiring.Runtime) error {
		if err := rt.Service.DiscardBackup(ctx, opID); err != nil {
			return err
		}
		fmt.Fprintf(a.Stdout, "Discarded operation %s.\n", opID)
		return nil
	})
}
