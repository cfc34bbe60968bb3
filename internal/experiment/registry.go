package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/lastsim/internal/metrics"
	"github.com/san-kum/lastsim/internal/sim"
)

type Registry struct {
	metrics map[string]func() sim.Metric
}

func NewRegistry() *Registry {
	r := &Registry{
		metrics: make(map[string]func() sim.Metric),
	}

	r.metrics["mass_drift"] = func() sim.Metric { return metrics.NewMassDrift() }
	r.metrics["saturation"] = func() sim.Metric { return metrics.NewSaturation() }
	r.metrics["solute_mass"] = func() sim.Metric { return metrics.NewSoluteMass() }
	r.metrics["event_fraction"] = func() sim.Metric { return metrics.NewEventFraction() }
	r.metrics["mean_age"] = func() sim.Metric { return metrics.NewMeanAge() }

	return r
}

func (r *Registry) GetMetric(name string) (sim.Metric, error) {
	fn, ok := r.metrics[name]
	if !ok {
		return nil, fmt.Errorf("unknown metric: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListMetrics() []string {
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) DefaultMetrics() []string {
	return []string{"mass_drift", "saturation", "event_fraction"}
}
