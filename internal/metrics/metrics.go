// ABOUTME: Prometheus metrics for the MMS bridge
// ABOUTME: Counts sessions, parsed protocol events, wire commands, and parse failures
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks connected browser clients, one device
	// connection each.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mms_bridge_active_sessions",
			Help: "Number of connected client sessions",
		},
	)

	// EventsParsed counts protocol events decoded from the device stream.
	EventsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mms_bridge_events_parsed_total",
			Help: "Total protocol events parsed from the device stream",
		},
		[]string{"kind"}, // "instances", "browse", "getStatus", "stateChanged", "keyValue"
	)

	// WireCommands counts command lines written to the device.
	WireCommands = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mms_bridge_wire_commands_total",
			Help: "Total command lines written to the device connection",
		},
	)

	// ParseFailures counts malformed wire fragments that were logged and
	// skipped.
	ParseFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mms_bridge_parse_failures_total",
			Help: "Total malformed wire fragments dropped by the parsers",
		},
		[]string{"kind"}, // "xml", "stateChanged", "line"
	)

	// BufferStalls counts receive buffers discarded by the stall timer.
	BufferStalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mms_bridge_buffer_stalls_total",
			Help: "Total receive buffers discarded after the stall timeout",
		},
	)
)
