// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package topology

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/soothill/qlink-enumerator/pkg/errors"
	"github.com/soothill/qlink-enumerator/protocol"
)

// scriptedConn answers each command from a fixed table and records the
// order commands were sent in.
type scriptedConn struct {
	replies map[string]protocol.Reply
	errs    map[string]error
	sent    []string
}

func (c *scriptedConn) Send(_ context.Context, command string) (protocol.Reply, error) {
	c.sent = append(c.sent, command)
	if err, ok := c.errs[command]; ok {
		return protocol.Reply{}, err
	}
	reply, ok := c.replies[command]
	if !ok {
		return protocol.Reply{}, fmt.Errorf("unscripted command %q", command)
	}
	return reply, nil
}

func okHandshake() map[string]protocol.Reply {
	return map[string]protocol.Reply{
		protocol.HandshakeCommand: protocol.ListReply("1", "0"),
	}
}

func TestBuild_FlatSingleStation(t *testing.T) {
	conn := &scriptedConn{replies: okHandshake()}
	conn.replies["VQM"] = protocol.TextReply("2 M1 M2")
	conn.replies["VQS M1"] = protocol.TextReply("1\nM1 S1 0 A1 v1 0 SN1")
	conn.replies["VQS M2"] = protocol.TextReply("0")

	builder := NewBuilder(conn, StrategyFlat, 0)
	topo, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if builder.State() != StateDone {
		t.Errorf("State() = %v, want done", builder.State())
	}
	if len(topo.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", topo.Warnings)
	}
	if len(topo.Masters) != 2 {
		t.Fatalf("Masters = %d, want 2", len(topo.Masters))
	}
	if n := len(topo.Masters[1].Stations); n != 0 {
		t.Errorf("M2 stations = %d, want 0", n)
	}

	stations := topo.Stations()
	if len(stations) != 1 {
		t.Fatalf("StationCount() = %d, want 1", len(stations))
	}

	s := stations[0]
	want := Station{Master: "M1", Address: "S1", Type: "0", Config: "A1", Version: "v1", Flag: false, Serial: "SN1"}
	if s != want {
		t.Errorf("station = %+v, want %+v", s, want)
	}
}

func TestBuild_MasterCountMismatch(t *testing.T) {
	conn := &scriptedConn{replies: okHandshake()}
	conn.replies["VQM"] = protocol.TextReply("3 M1 M2")
	conn.replies["VQS M1"] = protocol.TextReply("0")
	conn.replies["VQS M2"] = protocol.TextReply("0")

	topo, err := NewBuilder(conn, StrategyFlat, 0).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// Both available masters are still enumerated.
	if len(topo.Masters) != 2 {
		t.Errorf("Masters = %d, want 2", len(topo.Masters))
	}

	if len(topo.Warnings) != 1 {
		t.Fatalf("Warnings = %d, want 1", len(topo.Warnings))
	}
	var cme *errors.CountMismatchError
	if !errors.As(topo.Warnings[0].Err, &cme) {
		t.Fatalf("warning = %v, want CountMismatchError", topo.Warnings[0].Err)
	}
	if cme.Expected != 3 || cme.Actual != 2 {
		t.Errorf("CountMismatchError = %d/%d, want 3/2", cme.Expected, cme.Actual)
	}
}

func TestBuild_HandshakeRejected(t *testing.T) {
	conn := &scriptedConn{replies: map[string]protocol.Reply{
		protocol.HandshakeCommand: protocol.ListReply("0", "1"),
	}}

	builder := NewBuilder(conn, StrategyFlat, 0)
	_, err := builder.Build(context.Background())

	if !errors.IsHandshakeError(err) {
		t.Fatalf("Build() error = %v, want HandshakeError", err)
	}
	if builder.State() != StateFailed {
		t.Errorf("State() = %v, want failed", builder.State())
	}

	// Enumeration must never have started.
	for _, cmd := range conn.sent {
		if cmd == protocol.MastersCommand {
			t.Error("VQM sent after failed handshake")
		}
	}
}

func TestBuild_TransportFailureMidEnumeration(t *testing.T) {
	conn := &scriptedConn{
		replies: okHandshake(),
		errs:    map[string]error{"VQS M2": errors.NewTransportError("send", "", fmt.Errorf("connection reset"))},
	}
	conn.replies["VQM"] = protocol.TextReply("2 M1 M2")
	conn.replies["VQS M1"] = protocol.TextReply("1\nM1 S1 0 A1 v1 1 SN1")

	builder := NewBuilder(conn, StrategyFlat, 0)
	topo, err := builder.Build(context.Background())

	if !errors.IsTransportError(err) {
		t.Fatalf("Build() error = %v, want TransportError", err)
	}
	if builder.State() != StateFailed {
		t.Errorf("State() = %v, want failed", builder.State())
	}

	// The partial topology still carries the branch that succeeded.
	if len(topo.Masters) != 1 || len(topo.Masters[0].Stations) != 1 {
		t.Errorf("partial topology = %+v, want M1 with one station", topo.Masters)
	}
}

func TestBuild_MalformedStationLineSkipped(t *testing.T) {
	conn := &scriptedConn{replies: okHandshake()}
	conn.replies["VQM"] = protocol.TextReply("1 M1")
	conn.replies["VQS M1"] = protocol.TextReply("2\nM1 S1 0 A1 v1 0 SN1\nM1 S2 garbage")

	topo, err := NewBuilder(conn, StrategyFlat, 0).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if topo.StationCount() != 1 {
		t.Errorf("StationCount() = %d, want 1 (malformed line skipped)", topo.StationCount())
	}
	if len(topo.Warnings) != 1 || !errors.IsFormatError(topo.Warnings[0].Err) {
		t.Errorf("Warnings = %v, want one FormatError", topo.Warnings)
	}
}

func TestBuild_PerMasterFailureDoesNotAbortSiblings(t *testing.T) {
	conn := &scriptedConn{replies: okHandshake()}
	conn.replies["VQM"] = protocol.TextReply("2 M1 M2")
	conn.replies["VQS M1"] = protocol.TextReply("garbage")
	conn.replies["VQS M2"] = protocol.TextReply("1\nM2 S9 1 B2 v2 1 SN9")

	topo, err := NewBuilder(conn, StrategyFlat, 0).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(topo.Masters) != 2 {
		t.Fatalf("Masters = %d, want 2", len(topo.Masters))
	}
	if topo.StationCount() != 1 {
		t.Errorf("StationCount() = %d, want 1", topo.StationCount())
	}
	if len(topo.Warnings) != 1 {
		t.Errorf("Warnings = %d, want 1 recorded against M1", len(topo.Warnings))
	}
	if topo.Warnings[0].Master != "M1" {
		t.Errorf("warning master = %q, want M1", topo.Warnings[0].Master)
	}
}

func TestBuild_NestedStrategy(t *testing.T) {
	conn := &scriptedConn{replies: okHandshake()}
	conn.replies["VQM"] = protocol.TextReply("1 M1")
	conn.replies["VQP M1"] = protocol.TextReply("2 P1 P2")
	conn.replies["VQS P1"] = protocol.TextReply("1\nM1 S1 0 A1 v1 0 SN1")
	conn.replies["VQS P2"] = protocol.TextReply("0")

	topo, err := NewBuilder(conn, StrategyNested, 0).Build(context.Background())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(topo.Masters) != 1 {
		t.Fatalf("Masters = %d, want 1", len(topo.Masters))
	}
	m := topo.Masters[0]
	if len(m.Modules) != 2 {
		t.Fatalf("Modules = %d, want 2", len(m.Modules))
	}
	if len(m.Stations) != 0 {
		t.Errorf("direct stations = %d, want 0 in nested strategy", len(m.Stations))
	}

	s := m.Modules[0].Stations
	if len(s) != 1 || s[0].Module != "P1" || s[0].Master != "M1" {
		t.Errorf("P1 stations = %+v, want one station owned by M1/P1", s)
	}
}

func TestBuild_SettleDelayCancellable(t *testing.T) {
	conn := &scriptedConn{replies: okHandshake()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	builder := NewBuilder(conn, StrategyFlat, time.Second) // settle would block, context already cancelled
	_, err := builder.Build(ctx)

	if !errors.IsTransportError(err) {
		t.Fatalf("Build() error = %v, want TransportError from cancelled settle", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Build() error should wrap context.Canceled, got %v", err)
	}
}

func TestBuild_CommandSequence(t *testing.T) {
	conn := &scriptedConn{replies: okHandshake()}
	conn.replies["VQM"] = protocol.TextReply("1 M1")
	conn.replies["VQS M1"] = protocol.TextReply("0")

	if _, err := NewBuilder(conn, StrategyFlat, 0).Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	want := []string{"VCL 1", "VQM", "VQS M1"}
	if len(conn.sent) != len(want) {
		t.Fatalf("sent = %v, want %v", conn.sent, want)
	}
	for i := range want {
		if conn.sent[i] != want[i] {
			t.Errorf("sent[%d] = %q, want %q", i, conn.sent[i], want[i])
		}
	}
}
