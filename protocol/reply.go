// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package protocol implements the QLink command vocabulary and reply
// parsing: erasing the bridge's polymorphic reply shapes into ordered
// lines, and interpreting count-prefixed blocks.
//
// The bridge answers a command with one of three shapes, depending on the
// bridge version and the command:
//   - a JSON array of strings (pre-split tokens or lines)
//   - a single string with embedded newlines (one record per line)
//   - a single delimited string (whitespace or comma separated tokens)
//
// All three are decoded into a Reply at the transport edge and normalized
// exactly once; nothing downstream branches on shape again.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Reply is the bridge's response to a command, tagged by the wire shape it
// arrived in. Never mutated after receipt.
type Reply struct {
	list   []string
	text   string
	isList bool
}

// TextReply creates a Reply holding a single string payload.
func TextReply(s string) Reply {
	return Reply{text: s}
}

// ListReply creates a Reply holding a pre-split sequence of strings.
func ListReply(items ...string) Reply {
	return Reply{list: items, isList: true}
}

// IsList reports whether the bridge sent a pre-split sequence.
func (r Reply) IsList() bool {
	return r.isList
}

// UnmarshalJSON decodes either a JSON string or a JSON array of strings.
func (r *Reply) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = TextReply(s)
		return nil
	}

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*r = ListReply(list...)
		return nil
	}

	return fmt.Errorf("reply is neither a string nor an array of strings: %s", truncate(string(data), 80))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
