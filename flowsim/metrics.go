package flowsim

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// RunCollector exposes the outcome of simulation runs.  A nil *RunCollector
// is valid and records nothing
type RunCollector struct {
	Flows *prometheus.GaugeVec
	Drops *prometheus.CounterVec
}

// NewRunCollector registers the run metrics against reg, sharing any
// that an earlier collector registered there
func NewRunCollector(reg prometheus.Registerer) (*RunCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	flows := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gcasp_sim_flows",
		Help: "Flows of a finished replication, by outcome.",
	}, []string{"replication", "outcome"})
	if err := reg.Register(flows); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return nil, fmt.Errorf("collector gcasp_sim_flows already registered with incompatible type")
		}
		flows = existing
	}

	drops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gcasp_sim_drops_total",
		Help: "Flows dropped by the simulator, by reason.",
	}, []string{"reason"})
	if err := reg.Register(drops); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("collector gcasp_sim_drops_total already registered with incompatible type")
		}
		drops = existing
	}

	return &RunCollector{Flows: flows, Drops: drops}, nil
}

// IncDrop counts a dropped flow
func (c *RunCollector) IncDrop(reason string) {
	if c == nil || c.Drops == nil {
		return
	}
	c.Drops.WithLabelValues(reason).Inc()
}

// SetRunStats publishes the totals of a finished replication
func (c *RunCollector) SetRunStats(replication string, stats Stats) {
	if c == nil || c.Flows == nil {
		return
	}
	c.Flows.WithLabelValues(replication, "total").Set(float64(stats.Generated))
	c.Flows.WithLabelValues(replication, "successful").Set(float64(stats.Successful))
	c.Flows.WithLabelValues(replication, "dropped").Set(float64(stats.Dropped))
}
