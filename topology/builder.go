// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package topology

import (
	"context"
	"time"

	"github.com/soothill/qlink-enumerator/pkg/errors"
	"github.com/soothill/qlink-enumerator/pkg/logger"
	"github.com/soothill/qlink-enumerator/protocol"
)

// Strategy selects which observed enumeration variant the builder drives.
// The two variants are kept separate rather than merged into one ambiguous
// shape.
type Strategy string

const (
	// StrategyFlat enumerates stations directly under each master
	// (VQM, then VQS per master).
	StrategyFlat Strategy = "flat"

	// StrategyNested enumerates modules under each master and stations
	// under each module (VQM, VQP per master, VQS per module).
	StrategyNested Strategy = "nested"
)

// State is the builder's position in the enumeration sequence.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateHandshaking
	StateEnumeratingMasters
	StateEnumeratingChildren
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateHandshaking:
		return "handshaking"
	case StateEnumeratingMasters:
		return "enumerating_masters"
	case StateEnumeratingChildren:
		return "enumerating_children"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Commander issues one command over the open session and returns the raw
// reply. Commands are issued strictly sequentially; the bus is half-duplex.
type Commander interface {
	Send(ctx context.Context, command string) (protocol.Reply, error)
}

// Builder drives the enumeration command sequence over an open session and
// assembles the topology. A builder is single-use: one Build call per
// session.
type Builder struct {
	conn     Commander
	strategy Strategy
	settle   time.Duration
	state    State
}

// NewBuilder creates a builder for an open session. settle is the delay
// between the handshake acknowledgement and the first enumeration command;
// zero disables it.
func NewBuilder(conn Commander, strategy Strategy, settle time.Duration) *Builder {
	return &Builder{
		conn:     conn,
		strategy: strategy,
		settle:   settle,
		state:    StateConnected,
	}
}

// State returns the builder's current state.
func (b *Builder) State() State {
	return b.state
}

// Build runs handshake and enumeration to completion. Recoverable data
// errors (bad counts, malformed lines) are recorded as warnings on the
// returned topology; transport and protocol failures are fatal and return
// the partial topology together with the error. The caller owns the
// disconnect regardless of outcome.
func (b *Builder) Build(ctx context.Context) (*Topology, error) {
	topo := &Topology{}

	if err := b.handshake(ctx); err != nil {
		b.state = StateFailed
		return topo, err
	}

	if err := b.settleDelay(ctx); err != nil {
		b.state = StateFailed
		return topo, err
	}

	b.state = StateEnumeratingMasters
	masters, err := b.enumerateMasters(ctx, topo)
	if err != nil {
		b.state = StateFailed
		return topo, err
	}

	b.state = StateEnumeratingChildren
	for _, master := range masters {
		if err := b.enumerateChildren(ctx, topo, master); err != nil {
			b.state = StateFailed
			return topo, err
		}
	}

	b.state = StateDone
	logger.Info().
		Int("masters", len(topo.Masters)).
		Int("stations", topo.StationCount()).
		Int("warnings", len(topo.Warnings)).
		Msg("Enumeration complete")
	return topo, nil
}

// handshake sends the handshake command and verifies the exact two-token
// acknowledgement. Any other reply halts before enumeration starts.
func (b *Builder) handshake(ctx context.Context) error {
	b.state = StateHandshaking

	reply, err := b.conn.Send(ctx, protocol.HandshakeCommand)
	if err != nil {
		return err
	}

	ack := protocol.Normalize(reply)
	if !protocol.IsHandshakeAck(ack) {
		return errors.NewHandshakeError(ack)
	}

	logger.Debug().Strs("ack", ack).Msg("Handshake acknowledged")
	return nil
}

// settleDelay blocks for the configured propagation delay, honoring
// context cancellation. Whether the bus strictly requires it is unknown;
// it is configurable and may be zero.
func (b *Builder) settleDelay(ctx context.Context) error {
	if b.settle <= 0 {
		return nil
	}

	logger.Debug().Dur("settle", b.settle).Msg("Waiting for bus to settle")
	timer := time.NewTimer(b.settle)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return errors.NewTransportError("settle", "", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// enumerateMasters sends the master-list command and count-validates the
// reply. A count mismatch is recorded and the available masters are still
// enumerated; an uninterpretable count ends the run with an empty topology
// and a warning.
func (b *Builder) enumerateMasters(ctx context.Context, topo *Topology) ([]string, error) {
	reply, err := b.conn.Send(ctx, protocol.MastersCommand)
	if err != nil {
		return nil, err
	}

	masters, err := protocol.ParseCounted("masters", protocol.Normalize(reply))
	if err != nil {
		if errors.IsFormatError(err) {
			topo.warn("", "", err)
			logger.Warn().Err(err).Msg("Master list unreadable, nothing to enumerate")
			return nil, nil
		}
		// Count mismatch: keep what is present.
		topo.warn("", "", err)
		logger.Warn().Err(err).Msg("Master count mismatch, enumerating available masters")
	}

	logger.Info().Int("masters", len(masters)).Msg("Masters enumerated")
	return masters, nil
}

// enumerateChildren fills in one master's subtree according to the
// strategy. Recoverable errors are recorded against the master and do not
// abort enumeration of sibling masters.
func (b *Builder) enumerateChildren(ctx context.Context, topo *Topology, masterAddr string) error {
	master := Master{Address: masterAddr}

	switch b.strategy {
	case StrategyNested:
		modules, err := b.enumerateModules(ctx, topo, masterAddr)
		if err != nil {
			return err
		}
		for _, modAddr := range modules {
			mod := Module{Address: modAddr}
			stations, err := b.enumerateStations(ctx, topo, masterAddr, modAddr)
			if err != nil {
				return err
			}
			mod.Stations = stations
			master.Modules = append(master.Modules, mod)
		}
	default:
		stations, err := b.enumerateStations(ctx, topo, masterAddr, "")
		if err != nil {
			return err
		}
		master.Stations = stations
	}

	topo.Masters = append(topo.Masters, master)
	return nil
}

func (b *Builder) enumerateModules(ctx context.Context, topo *Topology, masterAddr string) ([]string, error) {
	reply, err := b.conn.Send(ctx, protocol.ModulesCommand(masterAddr))
	if err != nil {
		return nil, err
	}

	modules, err := protocol.ParseCounted("modules", protocol.Normalize(reply))
	if err != nil {
		topo.warn(masterAddr, "", err)
		if errors.IsFormatError(err) {
			logger.Warn().Err(err).Str("master", masterAddr).Msg("Module list unreadable, skipping master")
			return nil, nil
		}
		logger.Warn().Err(err).Str("master", masterAddr).Msg("Module count mismatch")
	}
	return modules, nil
}

// enumerateStations lists stations under a master (flat) or module
// (nested). Individual malformed lines are rejected and skipped; the rest
// of the batch is kept.
func (b *Builder) enumerateStations(ctx context.Context, topo *Topology, masterAddr, moduleAddr string) ([]Station, error) {
	addr := masterAddr
	if moduleAddr != "" {
		addr = moduleAddr
	}

	reply, err := b.conn.Send(ctx, protocol.StationsCommand(addr))
	if err != nil {
		return nil, err
	}

	lines, err := protocol.ParseCounted("stations", protocol.Normalize(reply))
	if err != nil {
		topo.warn(masterAddr, moduleAddr, err)
		if errors.IsFormatError(err) {
			logger.Warn().Err(err).Str("master", masterAddr).Msg("Station list unreadable, skipping branch")
			return nil, nil
		}
		logger.Warn().Err(err).Str("master", masterAddr).Msg("Station count mismatch")
	}

	var stations []Station
	for _, line := range lines {
		station, parseErr := parseStationLine(masterAddr, moduleAddr, line)
		if parseErr != nil {
			topo.warn(masterAddr, moduleAddr, parseErr)
			logger.Warn().Err(parseErr).Str("master", masterAddr).Msg("Rejected malformed station line")
			continue
		}
		stations = append(stations, station)
	}
	return stations, nil
}
