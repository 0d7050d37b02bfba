// Package metrics exposes prometheus collectors for the sweep engine.
// A nil *Sweep is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sweep holds the bench collectors
type Sweep struct {
	Active       prometheus.Gauge
	Runs         *prometheus.CounterVec
	Probes       prometheus.Counter
	Power        prometheus.Gauge
	Voltage      prometheus.Gauge
	Activation   *prometheus.GaugeVec
	PositionWait prometheus.Histogram
	Faults       *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Sweep {
	s := &Sweep{
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emcbench_sweep_active",
			Help: "1 while a sensitivity sweep is running",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emcbench_sweep_runs_total",
			Help: "Finished sweeps by outcome",
		}, []string{"outcome"}),
		Probes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emcbench_sweep_probes_total",
			Help: "Sensor reads taken by the threshold search",
		}),
		Power: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emcbench_generator_power_dbm",
			Help: "Last level applied by the threshold search",
		}),
		Voltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emcbench_sensor_volts",
			Help: "Last sensor voltage read by the threshold search",
		}),
		Activation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "emcbench_activation_dbm",
			Help: "Activation level of the last sweep per angle and polarization",
		}, []string{"angle", "polarization"}),
		PositionWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "emcbench_position_wait_seconds",
			Help:    "Time taken by the turntable to reach each angle",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		Faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emcbench_faults_total",
			Help: "Bench faults that ended a sweep, by kind",
		}, []string{"kind"}),
	}
	reg.MustRegister(s.Active, s.Runs, s.Probes, s.Power, s.Voltage, s.Activation, s.PositionWait, s.Faults)
	return s
}

// SetActive records whether a sweep is running
func (s *Sweep) SetActive(active bool) {
	if s == nil {
		return
	}
	if active {
		s.Active.Set(1)
		s.Activation.Reset()
		return
	}
	s.Active.Set(0)
}

// Probe records one sensor read
func (s *Sweep) Probe(power, volts float64) {
	if s == nil {
		return
	}
	s.Probes.Inc()
	s.Power.Set(power)
	s.Voltage.Set(volts)
}

// Activated records a detected activation level
func (s *Sweep) Activated(angle int, pol string, dbm float64) {
	if s == nil {
		return
	}
	s.Activation.WithLabelValues(strconv.Itoa(angle), pol).Set(dbm)
}

// Waited records a position wait
func (s *Sweep) Waited(d time.Duration) {
	if s == nil {
		return
	}
	s.PositionWait.Observe(d.Seconds())
}

// Finished records the end of a sweep
func (s *Sweep) Finished(outcome string) {
	if s == nil {
		return
	}
	s.Runs.WithLabelValues(outcome).Inc()
}

// Fault records the kind of fault that ended a sweep
func (s *Sweep) Fault(kind string) {
	if s == nil {
		return
	}
	s.Faults.WithLabelValues(kind).Inc()
}
