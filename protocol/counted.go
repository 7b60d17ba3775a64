// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package protocol

import (
	"strconv"
	"strings"

	"github.com/soothill/qlink-enumerator/pkg/errors"
)

// ParseCounted interprets normalized lines as a counted block: the first
// element declares a non-negative item count N, the following elements are
// the items.
//
// A missing or non-integer count yields a FormatError and no items. When
// fewer than N items are present, the available items are returned together
// with a CountMismatchError carrying both numbers; the result is never
// silently truncated or padded. Elements beyond the declared count are
// ignored. The op argument names what is being enumerated and is carried
// into any error.
func ParseCounted(op string, lines []string) ([]string, error) {
	if len(lines) == 0 {
		return nil, errors.NewFormatError(op+" count", "", errors.ErrEmptyReply)
	}

	declared, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || declared < 0 {
		return nil, errors.NewFormatError(op+" count", lines[0], err)
	}

	items := lines[1:]
	if len(items) < declared {
		out := make([]string, len(items))
		copy(out, items)
		return out, errors.NewCountMismatchError(op, declared, len(items))
	}

	out := make([]string, declared)
	copy(out, items[:declared])
	return out, nil
}
