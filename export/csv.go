// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package export emits a finished topology to its sinks: a flat CSV table,
// a HomeKit-style accessory descriptor list, or an InfluxDB inventory
// measurement. Exporters are deterministic: the same topology always
// produces byte-identical output.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/soothill/qlink-enumerator/pkg/logger"
	"github.com/soothill/qlink-enumerator/topology"
)

var csvHeader = []string{"Master", "Module", "Station", "Station Type", "Config", "Version", "Flag", "Serial Number"}

// CSVExporter writes one row per station to a file.
type CSVExporter struct {
	Path string
}

// NewCSVExporter creates a CSV exporter targeting path.
func NewCSVExporter(path string) *CSVExporter {
	return &CSVExporter{Path: path}
}

// Name identifies the sink in logs and metrics.
func (e *CSVExporter) Name() string {
	return "csv"
}

// Export writes the topology as CSV rows in enumeration order.
func (e *CSVExporter) Export(_ context.Context, topo *topology.Topology) error {
	f, err := os.Create(e.Path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", e.Path, err)
	}
	defer func() { _ = f.Close() }()

	if err := writeCSV(f, topo); err != nil {
		return err
	}

	logger.Info().Str("path", e.Path).Int("stations", topo.StationCount()).Msg("CSV export written")
	return nil
}

func writeCSV(w io.Writer, topo *topology.Topology) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, s := range topo.Stations() {
		row := []string{s.Master, s.Module, s.Address, s.Type, s.Config, s.Version, flagField(s.Flag), s.Serial}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func flagField(flag bool) string {
	if flag {
		return "1"
	}
	return "0"
}
