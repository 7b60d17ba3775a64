// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package topology

import (
	"testing"

	"github.com/soothill/qlink-enumerator/pkg/errors"
)

func TestParseStationLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Station
		wantErr bool
	}{
		{
			name: "seven fields in order",
			line: "M1 S1 0 A1 v1.2 0 SN1",
			want: Station{Master: "M1", Address: "S1", Type: "0", Config: "A1", Version: "v1.2", Flag: false, Serial: "SN1"},
		},
		{
			name: "flag set when nonzero",
			line: "M1 S2 1 B0 v2 1 SN2",
			want: Station{Master: "M1", Address: "S2", Type: "1", Config: "B0", Version: "v2", Flag: true, Serial: "SN2"},
		},
		{
			name: "extra whitespace tolerated",
			line: "  M1   S3  0  A1  v1  0  SN3 ",
			want: Station{Master: "M1", Address: "S3", Type: "0", Config: "A1", Version: "v1", Flag: false, Serial: "SN3"},
		},
		{
			name:    "six fields rejected",
			line:    "M1 S1 0 A1 v1 SN1",
			wantErr: true,
		},
		{
			name:    "eight fields rejected",
			line:    "M1 S1 0 A1 v1 0 SN1 extra",
			wantErr: true,
		},
		{
			name:    "empty line rejected",
			line:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStationLine("M1", "", tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseStationLine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var fe *errors.FormatError
				if !errors.As(err, &fe) {
					t.Fatalf("error = %T, want FormatError", err)
				}
				if fe.Line != tt.line {
					t.Errorf("FormatError.Line = %q, want the offending line", fe.Line)
				}
				return
			}
			if got != tt.want {
				t.Errorf("parseStationLine() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestStationsOrder(t *testing.T) {
	topo := &Topology{
		Masters: []Master{
			{
				Address:  "M1",
				Stations: []Station{{Master: "M1", Address: "S1"}},
				Modules: []Module{
					{Address: "P1", Stations: []Station{{Master: "M1", Module: "P1", Address: "S2"}}},
				},
			},
			{
				Address:  "M2",
				Stations: []Station{{Master: "M2", Address: "S3"}},
			},
		},
	}

	stations := topo.Stations()
	if len(stations) != 3 {
		t.Fatalf("Stations() = %d entries, want 3", len(stations))
	}

	wantOrder := []string{"S1", "S2", "S3"}
	for i, addr := range wantOrder {
		if stations[i].Address != addr {
			t.Errorf("Stations()[%d] = %q, want %q", i, stations[i].Address, addr)
		}
	}

	if topo.StationCount() != 3 {
		t.Errorf("StationCount() = %d, want 3", topo.StationCount())
	}
}
