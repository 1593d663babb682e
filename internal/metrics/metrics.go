// Package metrics exports scheduler tick results as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/quadlane/internal/engine"
)

const (
	namespace = "quadlane"
	subsystem = "scheduler"
)

// Recorder holds one set of scheduler collectors. Each Recorder registers
// its own collectors, so independent engines can export to separate
// registries.
type Recorder struct {
	ticks           prometheus.Counter
	scheduledItems  *prometheus.CounterVec
	scheduledWeight *prometheus.CounterVec
	backlog         *prometheus.GaugeVec
	capacity        *prometheus.GaugeVec
	modifier        prometheus.Gauge
	angle           prometheus.Gauge
	efficacy        *prometheus.GaugeVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ticks_total",
			Help:      "Ticks completed.",
		}),
		scheduledItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "scheduled_items_total",
				Help:      "Work items dequeued, by category.",
			},
			[]string{"category"},
		),
		scheduledWeight: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "scheduled_weight_total",
				Help:      "Work item weight dequeued, by category.",
			},
			[]string{"category"},
		),
		backlog: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "backlog",
				Help:      "Queued work items after the last tick, by category.",
			},
			[]string{"category"},
		),
		capacity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "capacity",
				Help:      "Weight capacity of the last tick, by category.",
			},
			[]string{"category"},
		),
		modifier: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rotation_modifier",
			Help:      "Rotation modifier of the last tick.",
		}),
		angle: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "angle_degrees",
			Help:      "Oscillator angle after the last tick.",
		}),
		efficacy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "efficacy",
				Help:      "Spread of pulled weight over categories in the last tick, by component (1 is even).",
			},
			[]string{"component"},
		),
	}

	for _, c := range []prometheus.Collector{
		r.ticks, r.scheduledItems, r.scheduledWeight, r.backlog, r.capacity, r.modifier, r.angle, r.efficacy,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe records one tick result.
func (r *Recorder) Observe(result *engine.TickResult) {
	r.ticks.Inc()
	r.modifier.Set(result.RotationModifier)
	r.angle.Set(result.Angle)
	r.efficacy.WithLabelValues("score").Set(result.Efficacy.Score)
	r.efficacy.WithLabelValues("balance").Set(result.Efficacy.Balance)
	r.efficacy.WithLabelValues("entropy").Set(result.Efficacy.Entropy)
	r.efficacy.WithLabelValues("dispersion").Set(result.Efficacy.Dispersion)

	for _, c := range result.Categories {
		r.scheduledItems.WithLabelValues(c.Name).Add(float64(c.Scheduled))
		r.scheduledWeight.WithLabelValues(c.Name).Add(c.Pulled)
		r.backlog.WithLabelValues(c.Name).Set(float64(c.Backlog))
		r.capacity.WithLabelValues(c.Name).Set(c.Capacity)
	}
}
