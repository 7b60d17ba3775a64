// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package export

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/soothill/qlink-enumerator/pkg/logger"
	"github.com/soothill/qlink-enumerator/topology"
)

// inventoryMeasurement is the measurement name for station inventory
// points.
const inventoryMeasurement = "qlink_station"

// InfluxDBExporter records one inventory point per station per run, so a
// time-series of enumeration snapshots accumulates in the bucket. Writes
// are blocking: a one-shot run must not exit before its points land.
type InfluxDBExporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	org      string
}

// NewInfluxDBExporter creates and health-checks the InfluxDB sink.
func NewInfluxDBExporter(url, token, org, bucket string) (*InfluxDBExporter, error) {
	client := influxdb2.NewClient(url, token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}

	if health.Status != "pass" {
		client.Close()
		message := "unknown error"
		if health.Message != nil {
			message = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", message)
	}

	logger.Info().Str("url", url).Str("status", string(health.Status)).Msg("Connected to InfluxDB")

	return &InfluxDBExporter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		bucket:   bucket,
		org:      org,
	}, nil
}

// Name identifies the sink in logs and metrics.
func (e *InfluxDBExporter) Name() string {
	return "influxdb"
}

// Export writes one point per station, all stamped with the same snapshot
// time.
func (e *InfluxDBExporter) Export(ctx context.Context, topo *topology.Topology) error {
	snapshot := time.Now()

	for _, s := range topo.Stations() {
		p := influxdb2.NewPoint(
			inventoryMeasurement,
			map[string]string{
				"master":  s.Master,
				"module":  s.Module,
				"station": s.Address,
			},
			map[string]interface{}{
				"type":    s.Type,
				"config":  s.Config,
				"version": s.Version,
				"flag":    s.Flag,
				"serial":  s.Serial,
			},
			snapshot,
		)
		if err := e.writeAPI.WritePoint(ctx, p); err != nil {
			return fmt.Errorf("failed to write station %s: %w", s.Address, err)
		}
	}

	logger.Info().Int("stations", topo.StationCount()).Str("bucket", e.bucket).Msg("Inventory snapshot written")
	return nil
}

// Health checks if the InfluxDB backend is reachable.
func (e *InfluxDBExporter) Health(ctx context.Context) error {
	health, err := e.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if health.Status != "pass" {
		return fmt.Errorf("InfluxDB unhealthy: %s", health.Status)
	}
	return nil
}

// Close closes the InfluxDB client.
func (e *InfluxDBExporter) Close() {
	logger.Info().Msg("Closing InfluxDB connection")
	e.client.Close()
}
