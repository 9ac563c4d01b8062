package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "limb"

// Metrics holds the Prometheus collectors for the control loop. All methods
// are safe on a nil receiver so components can run without a registry.
type Metrics struct {
	tickDuration     prometheus.Histogram
	ticksSkipped     *prometheus.CounterVec
	classifierStatus *prometheus.GaugeVec
	decisions        *prometheus.CounterVec
	trainingSamples  prometheus.Gauge
	sinkErrors       prometheus.Counter
	packetsDropped   *prometheus.CounterVec
	commands         *prometheus.CounterVec
}

// NewMetrics registers the control loop collectors on reg. Passing nil uses
// prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	auto := promauto.With(reg)
	return &Metrics{
		tickDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one control loop tick",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .02, .05},
		}),
		ticksSkipped: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "ticks_skipped_total",
			Help:      "Ticks that produced no motion update, by reason",
		}, []string{"reason"}),
		classifierStatus: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "status",
			Help:      "1 for the classifier's current status, 0 otherwise",
		}, []string{"status"}),
		decisions: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decision",
			Name:      "total",
			Help:      "Smoothed decisions emitted, by class",
		}, []string{"class"}),
		trainingSamples: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "training",
			Name:      "samples",
			Help:      "Labeled samples currently held by the training store",
		}),
		sinkErrors: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Joint angle sends that returned an error",
		}),
		packetsDropped: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "packets_dropped_total",
			Help:      "Packets dropped because a queue was full, by component",
		}, []string{"component"}),
		commands: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "total",
			Help:      "Commands executed, by kind",
		}, []string{"kind"}),
	}
}

// ObserveTick records the wall time of one tick.
func (m *Metrics) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(d.Seconds())
}

// TickSkipped counts a tick that did not update the plant.
func (m *Metrics) TickSkipped(reason string) {
	if m == nil {
		return
	}
	m.ticksSkipped.WithLabelValues(reason).Inc()
}

// SetClassifierStatus marks current as the active status among all.
func (m *Metrics) SetClassifierStatus(current string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		m.classifierStatus.WithLabelValues(s).Set(v)
	}
}

// Decision counts one smoothed decision.
func (m *Metrics) Decision(class string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(class).Inc()
}

// SetTrainingSamples publishes the store size.
func (m *Metrics) SetTrainingSamples(n int) {
	if m == nil {
		return
	}
	m.trainingSamples.Set(float64(n))
}

// SinkError counts a failed send.
func (m *Metrics) SinkError() {
	if m == nil {
		return
	}
	m.sinkErrors.Inc()
}

// PacketsDropped adds n dropped packets for component.
func (m *Metrics) PacketsDropped(component string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.packetsDropped.WithLabelValues(component).Add(float64(n))
}

// Command counts one executed command.
func (m *Metrics) Command(kind string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind).Inc()
}
