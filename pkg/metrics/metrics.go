// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the QLink enumerator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsSent tracks the total number of commands sent to the bridge
	CommandsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qlink_commands_sent_total",
		Help: "Total number of commands sent to the bridge",
	}, []string{"command"})

	// CommandErrors tracks the number of failed bridge commands
	CommandErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qlink_command_errors_total",
		Help: "Total number of failed bridge commands",
	})

	// EnumerationRuns tracks completed enumeration runs by outcome
	EnumerationRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qlink_enumeration_runs_total",
		Help: "Total number of enumeration runs by outcome",
	}, []string{"outcome"})

	// EnumerationDuration tracks how long a full enumeration takes
	EnumerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "qlink_enumeration_duration_seconds",
		Help:    "Duration of a full topology enumeration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// MastersDiscovered tracks the number of masters in the last topology
	MastersDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qlink_masters_discovered",
		Help: "Number of masters found in the last enumeration",
	})

	// StationsDiscovered tracks the number of stations in the last topology
	StationsDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qlink_stations_discovered",
		Help: "Number of stations found in the last enumeration",
	})

	// TopologyWarnings tracks recoverable data errors recorded per run
	TopologyWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qlink_topology_warnings_total",
		Help: "Total number of recoverable data errors recorded during enumeration",
	})

	// ExportErrors tracks failed topology exports
	ExportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qlink_export_errors_total",
		Help: "Total number of failed topology exports by sink",
	}, []string{"sink"})
)
