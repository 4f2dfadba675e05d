// Package metrics provides process-wide counters for the core,
// grounded on the teacher's pkg/stats usage pattern in sfu.go
// (stats.InitStats(), stats.Sessions.Inc/Dec) even though that
// package's own source was not present in the retrieval pack — this
// is the same "global prometheus collector, incremented/decremented
// at lifecycle edges" shape, rebuilt directly against
// github.com/prometheus/client_golang.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// RoutingEntries tracks the live (SSRC, PT) routing entry count,
	// labelled by table ("rtp"/"rtcp").
	RoutingEntries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "roq",
		Name:      "routing_entries",
		Help:      "Number of live (SSRC, PayloadType) routing entries.",
	}, []string{"table"})

	// ReassemblyBuffers tracks receiver stream states holding a pooled
	// reassembly buffer, from their first length prefix until the
	// stream closes.
	ReassemblyBuffers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "roq",
		Name:      "reassembly_buffers_active",
		Help:      "Number of receiver stream states holding a pooled reassembly buffer.",
	})

	// FrameCancellations counts STOP_SENDING-triggered frame
	// cancellations observed by muxers.
	FrameCancellations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "roq",
		Name:      "frame_cancellations_total",
		Help:      "Number of times a muxer cancelled a frame after STOP_SENDING.",
	})

	// RoutingFailures counts packets dropped because no routing
	// entry could be created (spec.md §7 policy: logged at ERROR,
	// non-fatal).
	RoutingFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "roq",
		Name:      "routing_failures_total",
		Help:      "Number of packets dropped due to routing failure.",
	})
)

var registerOnce = func() func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		prometheus.MustRegister(RoutingEntries, ReassemblyBuffers, FrameCancellations, RoutingFailures)
	}
}()

// Register installs the core's collectors into the default
// prometheus registry. Safe to call multiple times.
func Register() {
	registerOnce()
}
