// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package session orchestrates one enumeration run: acquire the session,
// drive the topology builder, and release the session on every exit path.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/soothill/qlink-enumerator/pkg/errors"
	"github.com/soothill/qlink-enumerator/pkg/interfaces"
	"github.com/soothill/qlink-enumerator/pkg/logger"
	"github.com/soothill/qlink-enumerator/topology"
)

// disconnectTimeout bounds the teardown call. It uses a fresh context so
// a cancelled or expired run context cannot skip the disconnect.
const disconnectTimeout = 5 * time.Second

// Config selects the upstream server and enumeration behavior for a run.
type Config struct {
	ServerIndex int               // which listed server to connect to
	Strategy    topology.Strategy // flat or nested enumeration
	SettleDelay time.Duration     // pause between handshake and first enumeration command
}

// Controller runs the full session lifecycle: connect, handshake,
// enumerate, disconnect. Disconnect is attempted exactly once per run even
// when connect itself failed, since some bridges hold transport-level
// locks until an explicit disconnect.
type Controller struct {
	bridge interfaces.Bridge
	cfg    Config
}

// New creates a session controller over a bridge.
func New(bridge interfaces.Bridge, cfg Config) *Controller {
	return &Controller{bridge: bridge, cfg: cfg}
}

// Run performs one enumeration run. The returned topology may carry
// recorded warnings; a non-nil error means the run failed before or during
// enumeration (the partial topology is still returned). Disconnect failure
// is logged, never raised over an in-flight error.
func (c *Controller) Run(ctx context.Context) (topo *topology.Topology, err error) {
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()

		if _, derr := c.bridge.Disconnect(dctx); derr != nil {
			logger.Error().Err(derr).Msg("Disconnect failed")
		}
	}()

	servers, err := c.bridge.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	if len(servers) == 0 {
		return nil, errors.ErrNoServers
	}
	logger.Info().Int("servers", len(servers)).Msg("Bridge server list fetched")

	if c.cfg.ServerIndex < 0 || c.cfg.ServerIndex >= len(servers) {
		return nil, errors.NewProtocolError("connect", 0, "",
			fmt.Errorf("server index %d out of range (%d servers listed)", c.cfg.ServerIndex, len(servers)))
	}

	conn, msg, err := c.bridge.Connect(ctx, c.cfg.ServerIndex)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("message", msg).Str("server", servers[c.cfg.ServerIndex].Label).Msg("Connected")

	builder := topology.NewBuilder(conn, c.cfg.Strategy, c.cfg.SettleDelay)
	return builder.Build(ctx)
}
