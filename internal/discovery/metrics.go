package discovery

import "github.com/prometheus/client_golang/prometheus"

var (
	probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netsweep",
			Subsystem: "discovery",
			Name:      "probes_total",
			Help:      "SNMP probe attempts by result.",
		},
		[]string{"result"}, // responded, no_response, error
	)
	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "netsweep",
			Subsystem: "discovery",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of completed sweeps.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
	devicesByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "netsweep",
			Subsystem: "discovery",
			Name:      "devices",
			Help:      "Known devices by status after the last sweep.",
		},
		[]string{"status"},
	)
	samplerTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "netsweep",
			Subsystem: "discovery",
			Name:      "sampler_ticks_total",
			Help:      "Completed interface sampler passes.",
		},
	)
	counterResets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "netsweep",
			Subsystem: "discovery",
			Name:      "counter_resets_total",
			Help:      "Interface samples dropped as baseline after a counter reset or clock step.",
		},
	)
	mndpPackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "netsweep",
			Subsystem: "discovery",
			Name:      "mndp_packets_total",
			Help:      "MNDP datagrams received by decode result.",
		},
		[]string{"result"}, // ok, invalid
	)
)

func init() {
	prometheus.MustRegister(probesTotal, sweepDuration, devicesByStatus, samplerTicks, counterResets, mndpPackets)
}
