// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package interfaces

import (
	"context"

	"github.com/soothill/qlink-enumerator/topology"
)

// Exporter consumes a finished topology and emits it to a sink. The
// topology is immutable once handed over; exporters must produce
// byte-identical output for identical topologies.
type Exporter interface {
	// Name identifies the sink in logs and metrics
	Name() string

	// Export writes the topology to the sink
	Export(ctx context.Context, topo *topology.Topology) error
}
