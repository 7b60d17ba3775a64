// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package protocol

import (
	"reflect"
	"testing"

	"github.com/soothill/qlink-enumerator/pkg/errors"
)

func TestParseCounted(t *testing.T) {
	tests := []struct {
		name      string
		lines     []string
		wantItems []string
		wantErr   bool
	}{
		{
			name:      "count matches payload",
			lines:     []string{"2", "M1", "M2"},
			wantItems: []string{"M1", "M2"},
		},
		{
			name:      "zero items",
			lines:     []string{"0"},
			wantItems: []string{},
		},
		{
			name:      "extra trailing elements ignored",
			lines:     []string{"1", "M1", "junk"},
			wantItems: []string{"M1"},
		},
		{
			name:    "non-integer count",
			lines:   []string{"many", "M1"},
			wantErr: true,
		},
		{
			name:    "negative count",
			lines:   []string{"-1"},
			wantErr: true,
		},
		{
			name:    "empty input",
			lines:   []string{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseCounted("masters", tt.lines)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCounted() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !errors.IsFormatError(err) {
					t.Errorf("ParseCounted() error = %T, want FormatError", err)
				}
				return
			}
			if !reflect.DeepEqual(items, tt.wantItems) {
				t.Errorf("ParseCounted() items = %v, want %v", items, tt.wantItems)
			}
		})
	}
}

// A block declaring more items than it supplies must return what is
// present together with a CountMismatchError carrying both numbers.
func TestParseCounted_Mismatch(t *testing.T) {
	items, err := ParseCounted("masters", []string{"3", "M1", "M2"})

	if !reflect.DeepEqual(items, []string{"M1", "M2"}) {
		t.Errorf("ParseCounted() items = %v, want [M1 M2]", items)
	}

	var cme *errors.CountMismatchError
	if !errors.As(err, &cme) {
		t.Fatalf("ParseCounted() error = %v, want CountMismatchError", err)
	}
	if cme.Expected != 3 || cme.Actual != 2 {
		t.Errorf("CountMismatchError = %d/%d, want 3/2", cme.Expected, cme.Actual)
	}
	if cme.Op != "masters" {
		t.Errorf("CountMismatchError.Op = %q, want %q", cme.Op, "masters")
	}
}

func TestIsHandshakeAck(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  bool
	}{
		{"exact ack", []string{"1", "0"}, true},
		{"reversed tokens", []string{"0", "1"}, false},
		{"wrong length", []string{"1"}, false},
		{"extra token", []string{"1", "0", "0"}, false},
		{"empty", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsHandshakeAck(tt.lines); got != tt.want {
				t.Errorf("IsHandshakeAck(%v) = %v, want %v", tt.lines, got, tt.want)
			}
		})
	}
}

func TestCommandBuilders(t *testing.T) {
	if got := ModulesCommand("M1"); got != "VQP M1" {
		t.Errorf("ModulesCommand() = %q, want %q", got, "VQP M1")
	}
	if got := StationsCommand("M2"); got != "VQS M2" {
		t.Errorf("StationsCommand() = %q, want %q", got, "VQS M2")
	}
}
