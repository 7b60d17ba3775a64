// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package protocol

import "strings"

// Normalize erases the three observed reply shapes into one ordered
// sequence of lines:
//
//  1. A pre-split sequence is used unchanged, one element per line.
//  2. A string containing newlines is split on them. Newline splitting
//     takes priority over token splitting because multi-field records use
//     whitespace as the intra-line separator.
//  3. A bare string is split on commas when present (surrounding
//     whitespace trimmed), otherwise on whitespace.
//
// Blank lines are dropped. The empty reply normalizes to an empty
// (non-nil) sequence.
func Normalize(r Reply) []string {
	if r.isList {
		out := make([]string, 0, len(r.list))
		for _, line := range r.list {
			if trimmed := strings.TrimRight(line, "\r"); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}

	if strings.ContainsRune(r.text, '\n') {
		return splitLines(r.text)
	}

	if strings.ContainsRune(r.text, ',') {
		return splitCommas(r.text)
	}

	tokens := strings.Fields(r.text)
	if tokens == nil {
		return []string{}
	}
	return tokens
}

func splitLines(s string) []string {
	raw := strings.Split(s, "\n")
	out := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitCommas(s string) []string {
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
