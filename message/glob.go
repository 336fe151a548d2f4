// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package message

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Glob compiles a glob pattern (`*` any run, `?` one character) into a regular
// expression. Anchored patterns must match the whole input.
func Glob(pattern string, anchored bool) (*regexp.Regexp, error) {
	var sb strings.Builder
	if anchored {
		sb.WriteString("^")
	}
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if anchored {
		sb.WriteString("$")
	}
	return regexp.Compile(sb.String())
}

// Excerpt returns the part of s around the first match of re, with context bytes on
// each side widened to whole runes. Elided parts are marked with "...".
func Excerpt(s string, re *regexp.Regexp, context int) string {
	loc := re.FindStringIndex(s)
	if loc == nil || len(s) <= 2*context+(loc[1]-loc[0]) {
		return s
	}

	start := max(loc[0]-context, 0)
	end := min(loc[1]+context, len(s))
	for start > 0 && !utf8.RuneStart(s[start]) {
		start--
	}
	for end < len(s) && !utf8.RuneStart(s[end]) {
		end++
	}

	var prefix, suffix string
	if start > 0 {
		prefix = "..."
	}
	if end < len(s) {
		suffix = "..."
	}
	return prefix + s[start:end] + suffix
}
