package gcasp

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineCollector exposes Prometheus metrics about routing decisions.
// A nil *EngineCollector is valid and records nothing.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	Actions                 *prometheus.CounterVec
	Replans                 *prometheus.CounterVec
	Transitions             *prometheus.CounterVec
	BlockedLinks            prometheus.Counter
	Retargets               prometheus.Counter
	PathComputationDuration prometheus.Histogram
}

// NewEngineCollector registers the engine metrics against reg.  Metrics already
// registered by another engine are shared, so that engines of several
// replications report into the same series
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	actions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gcasp_actions_total",
		Help: "Decisions returned by the routing engine, by kind.",
	}, []string{"kind"}), "gcasp_actions_total")
	if err != nil {
		return nil, err
	}

	replans, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gcasp_replans_total",
		Help: "Path planning calls, by outcome.",
	}, []string{"outcome"}), "gcasp_replans_total")
	if err != nil {
		return nil, err
	}

	transitions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gcasp_transitions_total",
		Help: "Flow state machine transitions, by state entered.",
	}, []string{"state"}), "gcasp_transitions_total")
	if err != nil {
		return nil, err
	}

	blocked, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gcasp_blocked_links_total",
		Help: "Links added to some flow's blocked set for lack of residual capacity.",
	}), "gcasp_blocked_links_total")
	if err != nil {
		return nil, err
	}

	retargets, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gcasp_retargets_total",
		Help: "Random target draws made for greedy flows that reached their target.",
	}), "gcasp_retargets_total")
	if err != nil {
		return nil, err
	}

	pathHistogram, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gcasp_path_computation_duration_seconds",
		Help:    "Duration of shortest-path computations, blocked link exclusion included.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}), "gcasp_path_computation_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:                gatherer,
		Actions:                 actions,
		Replans:                 replans,
		Transitions:             transitions,
		BlockedLinks:            blocked,
		Retargets:               retargets,
		PathComputationDuration: pathHistogram,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// IncAction counts a returned decision
func (c *EngineCollector) IncAction(act Action) {
	if c == nil || c.Actions == nil {
		return
	}
	kind := "process"
	if act == DropAction {
		kind = "drop"
	} else if act.Forwards() {
		kind = "forward"
	}
	c.Actions.WithLabelValues(kind).Inc()
}

// IncReplan counts a planning call, successful or not
func (c *EngineCollector) IncReplan(found bool) {
	if c == nil || c.Replans == nil {
		return
	}
	outcome := "found"
	if !found {
		outcome = "no_path"
	}
	c.Replans.WithLabelValues(outcome).Inc()
}

func (c *EngineCollector) IncTransition(to RoutingState) {
	if c == nil || c.Transitions == nil {
		return
	}
	c.Transitions.WithLabelValues(to.String()).Inc()
}

func (c *EngineCollector) IncBlockedLinks() {
	if c == nil || c.BlockedLinks == nil {
		return
	}
	c.BlockedLinks.Inc()
}

func (c *EngineCollector) IncRetargets() {
	if c == nil || c.Retargets == nil {
		return
	}
	c.Retargets.Inc()
}

// ObservePathComputation records a path computation duration measurement.
func (c *EngineCollector) ObservePathComputation(d time.Duration) {
	if c == nil || c.PathComputationDuration == nil {
		return
	}
	c.PathComputationDuration.Observe(d.Seconds())
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
