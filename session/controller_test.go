// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/soothill/qlink-enumerator/pkg/errors"
	"github.com/soothill/qlink-enumerator/pkg/interfaces"
	"github.com/soothill/qlink-enumerator/protocol"
	"github.com/soothill/qlink-enumerator/topology"
)

// fakeBridge scripts the bridge interface and counts lifecycle calls.
type fakeBridge struct {
	servers     []interfaces.ServerDescriptor
	listErr     error
	connectErr  error
	replies     map[string]protocol.Reply
	disconnects int
}

func (f *fakeBridge) ListServers(context.Context) ([]interfaces.ServerDescriptor, error) {
	return f.servers, f.listErr
}

func (f *fakeBridge) Connect(_ context.Context, serverIndex int) (interfaces.Conn, string, error) {
	if f.connectErr != nil {
		return nil, "", f.connectErr
	}
	return &fakeConn{replies: f.replies}, fmt.Sprintf("Connected to server %d", serverIndex), nil
}

func (f *fakeBridge) Disconnect(context.Context) (string, error) {
	f.disconnects++
	return "Disconnected", nil
}

type fakeConn struct {
	replies map[string]protocol.Reply
}

func (c *fakeConn) Send(_ context.Context, command string) (protocol.Reply, error) {
	reply, ok := c.replies[command]
	if !ok {
		return protocol.Reply{}, fmt.Errorf("unscripted command %q", command)
	}
	return reply, nil
}

func oneServer() []interfaces.ServerDescriptor {
	return []interfaces.ServerDescriptor{{Index: 0, Label: "Main Panel"}}
}

// Scenario: one server, clean handshake, one station under M1, none under
// M2. The full run succeeds and disconnect happens exactly once.
func TestRun_EndToEnd(t *testing.T) {
	bridge := &fakeBridge{
		servers: oneServer(),
		replies: map[string]protocol.Reply{
			protocol.HandshakeCommand: protocol.ListReply("1", "0"),
			"VQM":                     protocol.TextReply("2 M1 M2"),
			"VQS M1":                  protocol.TextReply("1\nM1 S1 0 A1 v1 0 SN1"),
			"VQS M2":                  protocol.TextReply("0"),
		},
	}

	ctl := New(bridge, Config{ServerIndex: 0, Strategy: topology.StrategyFlat})
	topo, err := ctl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if topo.StationCount() != 1 {
		t.Errorf("StationCount() = %d, want 1", topo.StationCount())
	}
	if len(topo.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", topo.Warnings)
	}

	s := topo.Stations()[0]
	if s.Master != "M1" || s.Address != "S1" || s.Serial != "SN1" {
		t.Errorf("station = %+v, want M1/S1/SN1", s)
	}

	if bridge.disconnects != 1 {
		t.Errorf("disconnects = %d, want exactly 1", bridge.disconnects)
	}
}

// Scenario: VQM declares three masters but supplies two; the run completes
// with a warning and both present masters enumerated.
func TestRun_CountMismatchWarns(t *testing.T) {
	bridge := &fakeBridge{
		servers: oneServer(),
		replies: map[string]protocol.Reply{
			protocol.HandshakeCommand: protocol.ListReply("1", "0"),
			"VQM":                     protocol.TextReply("3 M1 M2"),
			"VQS M1":                  protocol.TextReply("0"),
			"VQS M2":                  protocol.TextReply("0"),
		},
	}

	ctl := New(bridge, Config{Strategy: topology.StrategyFlat})
	topo, err := ctl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(topo.Masters) != 2 {
		t.Errorf("Masters = %d, want 2", len(topo.Masters))
	}
	if len(topo.Warnings) != 1 || !errors.IsCountMismatchError(topo.Warnings[0].Err) {
		t.Errorf("Warnings = %v, want one CountMismatchError", topo.Warnings)
	}
	if bridge.disconnects != 1 {
		t.Errorf("disconnects = %d, want exactly 1", bridge.disconnects)
	}
}

func TestRun_HandshakeFailureStillDisconnects(t *testing.T) {
	bridge := &fakeBridge{
		servers: oneServer(),
		replies: map[string]protocol.Reply{
			protocol.HandshakeCommand: protocol.TextReply("ERROR"),
		},
	}

	ctl := New(bridge, Config{Strategy: topology.StrategyFlat})
	_, err := ctl.Run(context.Background())

	if !errors.IsHandshakeError(err) {
		t.Fatalf("Run() error = %v, want HandshakeError", err)
	}
	if bridge.disconnects != 1 {
		t.Errorf("disconnects = %d, want exactly 1", bridge.disconnects)
	}
}

func TestRun_ConnectFailureStillDisconnects(t *testing.T) {
	bridge := &fakeBridge{
		servers:    oneServer(),
		connectErr: errors.NewProtocolError("connect", 400, "rejected", nil),
	}

	ctl := New(bridge, Config{Strategy: topology.StrategyFlat})
	_, err := ctl.Run(context.Background())

	if !errors.IsProtocolError(err) {
		t.Fatalf("Run() error = %v, want ProtocolError", err)
	}
	if bridge.disconnects != 1 {
		t.Errorf("disconnects = %d, want disconnect attempted after failed connect", bridge.disconnects)
	}
}

func TestRun_NoServers(t *testing.T) {
	bridge := &fakeBridge{}

	ctl := New(bridge, Config{Strategy: topology.StrategyFlat})
	_, err := ctl.Run(context.Background())

	if !errors.Is(err, errors.ErrNoServers) {
		t.Fatalf("Run() error = %v, want ErrNoServers", err)
	}
}

func TestRun_ServerIndexOutOfRange(t *testing.T) {
	bridge := &fakeBridge{servers: oneServer()}

	ctl := New(bridge, Config{ServerIndex: 3, Strategy: topology.StrategyFlat})
	_, err := ctl.Run(context.Background())

	if !errors.IsProtocolError(err) {
		t.Fatalf("Run() error = %v, want ProtocolError", err)
	}
	if bridge.disconnects != 1 {
		t.Errorf("disconnects = %d, want 1", bridge.disconnects)
	}
}

func TestRun_ListServersTransportFailure(t *testing.T) {
	bridge := &fakeBridge{listErr: errors.NewTransportError("list servers", "", fmt.Errorf("refused"))}

	ctl := New(bridge, Config{Strategy: topology.StrategyFlat})
	_, err := ctl.Run(context.Background())

	if !errors.IsTransportError(err) {
		t.Fatalf("Run() error = %v, want TransportError", err)
	}
	if bridge.disconnects != 1 {
		t.Errorf("disconnects = %d, want disconnect still attempted", bridge.disconnects)
	}
}
