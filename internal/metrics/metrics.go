// Package metrics exposes Prometheus counters and gauges for the gate.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/alfredjeanlab/o3gate/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "o3gate"

// Metrics holds the gate's collectors on a private registry.
type Metrics struct {
	cyclesStarted  *prometheus.CounterVec
	cyclesFinished *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	doorPasses     *prometheus.CounterVec
	triggers       *prometheus.CounterVec

	valveOpen       prometheus.Gauge
	inProcess       prometheus.Gauge
	driverSimulated prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		cyclesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_started_total",
				Help:      "Total number of cycles started",
			},
			[]string{"kind"},
		),
		cyclesFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_finished_total",
				Help:      "Total number of cycles finished, by outcome",
			},
			[]string{"kind", "outcome"},
		),
		cycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Wall-clock duration of cycles in seconds",
				Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 90, 120, 300},
			},
			[]string{"kind"},
		),
		doorPasses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "door_passes_total",
				Help:      "Door cycles by gate and result",
			},
			[]string{"gate", "result"},
		),
		triggers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "triggers_total",
				Help:      "Trigger events seen by the event gate, by decision",
			},
			[]string{"action", "decision"},
		),
		valveOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "valve_open",
			Help:      "1 while the O3 valve is asserted",
		}),
		inProcess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "in_process",
			Help:      "1 while a cycle is running",
		}),
		driverSimulated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "driver_simulated",
			Help:      "1 when the pin driver fell back to simulation",
		}),
	}

	registry.MustRegister(
		m.cyclesStarted,
		m.cyclesFinished,
		m.cycleDuration,
		m.doorPasses,
		m.triggers,
		m.valveOpen,
		m.inProcess,
		m.driverSimulated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// CycleStarted counts a cycle and raises the in-process gauge.
func (m *Metrics) CycleStarted(kind model.CycleKind) {
	if m == nil {
		return
	}
	m.cyclesStarted.WithLabelValues(string(kind)).Inc()
	m.inProcess.Set(1)
}

// CycleFinished records the outcome and duration of a cycle.
func (m *Metrics) CycleFinished(kind model.CycleKind, outcome model.Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.cyclesFinished.WithLabelValues(string(kind), string(outcome)).Inc()
	m.cycleDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
	m.inProcess.Set(0)
}

// DoorPass records whether a door cycle saw a completed pass.
func (m *Metrics) DoorPass(gate model.GateIndex, ok bool) {
	if m == nil {
		return
	}
	result := "passed"
	if !ok {
		result = "failed"
	}
	m.doorPasses.WithLabelValues(gate.String(), result).Inc()
}

// Valve tracks the O3 valve state.
func (m *Metrics) Valve(open bool) {
	if m == nil {
		return
	}
	m.valveOpen.Set(boolGauge(open))
}

// Trigger counts a trigger event and what the gate did with it.
func (m *Metrics) Trigger(action model.Action, decision string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(string(action), decision).Inc()
}

// DriverSimulated records which pin driver is active.
func (m *Metrics) DriverSimulated(simulated bool) {
	if m == nil {
		return
	}
	m.driverSimulated.Set(boolGauge(simulated))
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
