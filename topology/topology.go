// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package topology models the enumerated lighting network and builds it by
// driving the bus command sequence over an open bridge session.
package topology

import (
	"strings"

	"github.com/soothill/qlink-enumerator/pkg/errors"
)

// stationFieldCount is the fixed width of a VQS station record.
const stationFieldCount = 7

// Station is the leaf device record, parsed from a 7-field VQS line.
type Station struct {
	Master  string // owning master address
	Module  string // owning module address, empty in flat enumeration
	Address string // station address on the bus
	Type    string // station type code
	Config  string // configuration code
	Version string // firmware version string
	Flag    bool   // bit 6 flag, set when the wire token is nonzero
	Serial  string // serial number
}

// Module is an addressable device under a master in nested enumeration.
type Module struct {
	Address  string
	Stations []Station
}

// Master is a controller node on the bus, root of a subtree of modules
// and/or stations.
type Master struct {
	Address  string
	Modules  []Module
	Stations []Station
}

// Warning records a recoverable data error against the branch it occurred
// in. Warnings never abort sibling branches.
type Warning struct {
	Master string // affected master address, empty for top-level enumeration
	Module string // affected module address, if any
	Err    error
}

// Topology is the assembled device inventory. It is built incrementally by
// the Builder and immutable once handed to an exporter.
type Topology struct {
	Masters  []Master
	Warnings []Warning
}

// Stations returns every station in the topology in enumeration order.
func (t *Topology) Stations() []Station {
	var out []Station
	for _, m := range t.Masters {
		out = append(out, m.Stations...)
		for _, mod := range m.Modules {
			out = append(out, mod.Stations...)
		}
	}
	return out
}

// StationCount returns the total number of stations.
func (t *Topology) StationCount() int {
	return len(t.Stations())
}

func (t *Topology) warn(master, module string, err error) {
	t.Warnings = append(t.Warnings, Warning{Master: master, Module: module, Err: err})
}

// parseStationLine parses one fixed-width station record. The wire line
// carries the master address as its first field; the authoritative owning
// addresses come from the enumeration context instead. A line with a field
// count other than 7 is rejected with a FormatError and skipped by the
// caller.
func parseStationLine(master, module, line string) (Station, error) {
	fields := strings.Fields(line)
	if len(fields) != stationFieldCount {
		return Station{}, errors.NewFormatError("station line", line, nil)
	}

	return Station{
		Master:  master,
		Module:  module,
		Address: fields[1],
		Type:    fields[2],
		Config:  fields[3],
		Version: fields[4],
		Flag:    fields[5] != "0",
		Serial:  fields[6],
	}, nil
}
