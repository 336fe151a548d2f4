// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/absmach/rmqctl/message"
	"github.com/google/uuid"
)

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func parseIDs(args []string) ([]message.ID, error) {
	ids := make([]message.ID, len(args))
	for i, s := range args {
		id, err := message.ParseID(s)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		ids[i] = id
	}
	return ids, nil
}

func parseOperationID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid operation id %q: %w", s, err)
	}
	return id, nil
}

// limitFlag resolves the --limit/--all pair of bulk commands. Zero means every
// message.
func limitFlag(limit int, all bool) (int, error) {
	switch {
	case all && limit > 0:
		return 0, fmt.Errorf("--limit and --all are mutually exclusive")
	case all:
		return 0, nil
	case limit <= 0:
		return 0, fmt.Errorf("either --limit N or --all is required")
	}
	return limit, nil
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
