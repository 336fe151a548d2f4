// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/absmach/rmqctl/message"
	"github.com/absmach/rmqctl/safeop"
	"github.com/absmach/rmqctl/service"
)

const payloadWidth = 60

// table writes aligned columns.
type table struct {
	w *tabwriter.Writer
}

func newTable(out io.Writer, header ...string) *table {
	t := &table{w: tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)}
	t.row(header...)
	return t
}

func (t *table) row(cols ...string) {
	fmt.Fprintln(t.w, strings.Join(cols, "\t"))
}

func (t *table) flush() error {
	return t.w.Flush()
}

func (a *App) json(v any) error {
	enc := json.NewEncoder(a.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// preview renders a payload on one line, shortened to width runes.
func preview(payload []byte, width int) string {
	if !utf8.Valid(payload) {
		return fmt.Sprintf("<%d bytes binary>", len(payload))
	}
	s := strings.Join(strings.Fields(string(payload)), " ")
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	return string([]rune(s)[:width-3]) + "..."
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

func (a *App) printMessages(msgs []message.Message, excerpt func(message.Message) string) error {
	if a.output == OutputJSON {
		if msgs == nil {
			msgs = []message.Message{}
		}
		return a.json(msgs)
	}
	if excerpt == nil {
		excerpt = func(m message.Message) string { return preview(m.Payload, payloadWidth) }
	}
	t := newTable(a.Stdout, "ID", "QUEUE", "EXCHANGE", "ROUTING KEY", "PAYLOAD")
	for _, m := range msgs {
		t.row(m.ID.String(), m.Queue, orDefault(m.Exchange), m.RoutingKey, excerpt(m))
	}
	if err := t.flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.Stdout, "\n%d message(s)\n", len(msgs))
	return nil
}

func (a *App) printMessage(m message.Message) error {
	if a.output == OutputJSON {
		return a.json(m)
	}
	t := newTable(a.Stdout, "FIELD", "VALUE")
	t.row("id", m.ID.String())
	t.row("queue", m.Queue)
	t.row("exchange", orDefault(m.Exchange))
	t.row("routing_key", m.RoutingKey)
	t.row("source", string(m.Source))
	for _, k := range sortedKeys(m.Properties) {
		t.row("property."+k, m.Properties[k])
	}
	for _, k := range sortedKeys(m.Headers) {
		t.row("header."+k, m.Headers[k])
	}
	if err := t.flush(); err != nil {
		return err
	}
	fmt.Fprintln(a.Stdout, "\nPayload:")
	if utf8.Valid(m.Payload) {
		fmt.Fprintln(a.Stdout, string(m.Payload))
	} else {
		fmt.Fprintf(a.Stdout, "<%d bytes binary>\n", len(m.Payload))
	}
	return nil
}

type summaryView struct {
	OperationID string       `json:"operation_id"`
	Operation   string       `json:"operation"`
	Successful  int          `json:"successful"`
	Failed      int          `json:"failed"`
	Unprocessed []message.ID `json:"unprocessed,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// report prints the summary of a coordinated operation and turns failed
// messages into ErrIncomplete.
func (a *App) report(op string, s message.Summary, err error) error {
	if err != nil && !errors.Is(err, safeop.ErrBackupFailed) && !errors.Is(err, safeop.ErrProgressUnknown) {
		return err
	}

	if a.output == OutputJSON {
		if jerr := a.json(summaryView{
			OperationID: s.ID.String(),
			Operation:   op,
			Successful:  s.Successful,
			Failed:      s.Failed,
			Unprocessed: message.IDs(s.Unprocessed),
			Warnings:    s.Warnings,
		}); jerr != nil {
			return jerr
		}
	} else {
		fmt.Fprintf(a.Stdout, "%s: %d succeeded, %d failed (operation %s)\n", op, s.Successful, s.Failed, s.ID)
		for _, w := range s.Warnings {
			fmt.Fprintf(a.Stdout, "warning: %s\n", w)
		}
		if s.Failed > 0 && err == nil {
			if service.Recoverable(s.Type) {
				fmt.Fprintf(a.Stdout, "The operation record was kept in %s.\n", a.Config.Storage.DataDir)
				fmt.Fprintf(a.Stdout, "Inspect it with 'rmqctl backup show %s' and retry with 'rmqctl backup recover %s'.\n", s.ID, s.ID)
			} else {
				fmt.Fprintln(a.Stdout, "The message is still in its source queue and can be requeued again.")
				fmt.Fprintf(a.Stdout, "Drop the kept operation record with 'rmqctl backup discard %s --yes'.\n", s.ID)
			}
		}
	}

	switch {
	case err != nil:
		return err
	case s.Failed > 0:
		return fmt.Errorf("%w: %d of %d messages failed", ErrIncomplete, s.Failed, s.Successful+s.Failed)
	}
	return nil
}

// kvFlag collects repeated key=value flags.
type kvFlag map[string]string

func (f kvFlag) String() string {
	parts := make([]string, 0, len(f))
	for _, k := range sortedKeys(f) {
		parts = append(parts, k+"="+f[k])
	}
	return strings.Join(parts, ",")
}

func (f kvFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	f[k] = v
	return nil
}
