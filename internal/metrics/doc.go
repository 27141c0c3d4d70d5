/*
Package metrics provides Prometheus metrics for docbridge operations.

# Overview

The Collector implements types.MetricsRecorder. The extraction façade, the
embedded strategies and the streaming reader report into it; it keeps the
series in a private registry and an in-memory per-operation summary for
the debug endpoint.

	┌─────────────┐
	│  Collector  │
	└──────┬──────┘
	       │
	   ┌───┴────────────────────────────┐
	   │                                │
	┌──▼───────────┐         ┌─────────▼─────────┐
	│  Prometheus  │         │  HTTP Endpoints   │
	│   Registry   │         │  /metrics         │
	│              │         │  /health          │
	│ - Counters   │         │  /debug/operations│
	│ - Histograms │         └───────────────────┘
	│ - Gauges     │
	└──────────────┘

# Series

	<ns>_operations_total{operation,status}
	<ns>_operation_duration_seconds{operation}
	<ns>_operation_size_bytes{operation}
	<ns>_foreign_calls_total{method,status}
	<ns>_reader_closes_total{status}
	<ns>_open_readers
	<ns>_errors_total{operation,kind}

The kind label of errors_total is the pkg/errors category (io, parse,
unknown, setup, state, configuration, storage, validation).

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "docbridge",
	}, logger)
	if err != nil {
		log.Fatal(err)
	}
	if err := collector.Start(ctx); err != nil {
		log.Fatal(err)
	}
	defer collector.Stop(ctx)

A nil *Collector, and one built from a disabled Config, accepts every call
and records nothing.
*/
package metrics
