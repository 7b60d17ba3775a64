// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/soothill/qlink-enumerator/pkg/logger"
	"github.com/soothill/qlink-enumerator/topology"
)

// serviceTypeMap maps QLink station type codes to HomeKit service types.
// Unrecognized codes fall back to a generic outlet.
var serviceTypeMap = map[string]string{
	"0": "Lightbulb",
	"1": "Switch",
}

const defaultServiceType = "Outlet"

// Accessory is one HomeKit accessory descriptor derived from a station.
type Accessory struct {
	Name         string    `json:"name"`
	Manufacturer string    `json:"manufacturer"`
	Model        string    `json:"model"`
	SerialNumber string    `json:"serialNumber"`
	Master       string    `json:"master"`
	Station      string    `json:"station"`
	Type         string    `json:"type"`
	Services     []Service `json:"services"`
}

// Service is one HomeKit service on an accessory.
type Service struct {
	Type            string           `json:"type"`
	Characteristics []Characteristic `json:"characteristics"`
}

// Characteristic is one HomeKit characteristic with its initial value.
type Characteristic struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// HomeKitExporter writes one accessory descriptor per station as an
// indented JSON array.
type HomeKitExporter struct {
	Path string
}

// NewHomeKitExporter creates a descriptor exporter targeting path.
func NewHomeKitExporter(path string) *HomeKitExporter {
	return &HomeKitExporter{Path: path}
}

// Name identifies the sink in logs and metrics.
func (e *HomeKitExporter) Name() string {
	return "homekit"
}

// Export writes the descriptor list. Stations appear in enumeration order
// and the JSON indentation is fixed, so identical topologies produce
// byte-identical files.
func (e *HomeKitExporter) Export(_ context.Context, topo *topology.Topology) error {
	accessories := Accessories(topo)

	data, err := json.MarshalIndent(accessories, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal accessories: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(e.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", e.Path, err)
	}

	logger.Info().Str("path", e.Path).Int("accessories", len(accessories)).Msg("Accessory export written")
	return nil
}

// Accessories maps every station in the topology to its descriptor.
func Accessories(topo *topology.Topology) []Accessory {
	stations := topo.Stations()
	out := make([]Accessory, 0, len(stations))
	for _, s := range stations {
		serviceType := MapStationType(s.Type)
		out = append(out, Accessory{
			Name:         "Vantage Station " + s.Address,
			Manufacturer: "Vantage Controls",
			Model:        "Qlink " + s.Version,
			SerialNumber: s.Serial,
			Master:       s.Master,
			Station:      s.Address,
			Type:         serviceType,
			Services: []Service{
				{
					Type: serviceType,
					Characteristics: []Characteristic{
						{Type: "On", Value: false},
					},
				},
			},
		})
	}
	return out
}

// MapStationType resolves a station type code to a HomeKit service type,
// defaulting to a generic category for unrecognized codes.
func MapStationType(code string) string {
	if t, ok := serviceTypeMap[code]; ok {
		return t
	}
	return defaultServiceType
}
