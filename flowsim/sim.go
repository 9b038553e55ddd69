package flowsim

// sim.go drives flows through the network with a discrete-event manager.
//
//   Flows are generated at the ingress nodes and every time a flow is at a node
// the decider is handed an observation and returns an action.  Action 0 either
// ends the life of a processed flow at its egress, or applies the next service
// function of the chain at the node, holding the node's capacity for the
// processing delay.  An action naming a neighbor sends the flow over the link,
// holding the link's capacity for the duration of the flow; the flow arrives
// after the link's delay.  Anything else, or a reservation that cannot be met,
// drops the flow.

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/iti/gcasp"
	"github.com/iti/rngstream"
	log "github.com/sirupsen/logrus"
)

// Decider chooses the action for a flow at a node, and is told when the
// simulator is done with a flow
type Decider interface {
	ComputeAction(obs gcasp.Observation) gcasp.Action
	Release(flowID int)
}

// reasons a flow is dropped
const (
	DropByDecider   = "decider"
	DropInvalid     = "invalid_action"
	DropNodeCap     = "node_capacity"
	DropLinkCap     = "link_capacity"
	DropTTL         = "ttl"
	DropNothingToDo = "nothing_to_process"
)

// noTimeLimit is the horizon of a run given no time limit
const noTimeLimit = 1.0e9

// evtm numbers the entries of every event list from one package counter, so
// event loops of different simulators must not run at the same time
var evtLoopMu sync.Mutex

// SimConfig holds the traffic parameters of a run
type SimConfig struct {
	// Duration is the number of flows generated over all ingress nodes
	Duration int

	InterArrivalMean float64
	DataRate         float64
	FlowDuration     float64
	TTL              float64
	SFC              []string
	ProcessingDelay  float64

	// TimeLimit stops the run at this simulation time, if positive
	TimeLimit float64

	// Deterministic spaces arrivals evenly instead of exponentially
	Deterministic bool
}

// ConfigFromRunDesc takes the traffic parameters of a run description
func ConfigFromRunDesc(rd *gcasp.RunDesc) SimConfig {
	return SimConfig{
		Duration:         rd.Duration,
		InterArrivalMean: rd.InterArrivalMean,
		DataRate:         rd.DataRate,
		FlowDuration:     rd.FlowDuration,
		TTL:              rd.TTL,
		SFC:              append([]string{}, rd.SFC...),
		ProcessingDelay:  rd.ProcessingDelay,
		TimeLimit:        rd.TimeLimit,
		Deterministic:    rd.Deterministic,
	}
}

// Stats summarizes a run
type Stats struct {
	Generated   int
	Successful  int
	Dropped     int
	InFlight    int
	DropReasons map[string]int

	// TotalDelay sums the time from creation to departure of successful flows
	TotalDelay float64
	TotalHops  int
}

// MeanDelay is the average end-to-end delay of successful flows
func (st Stats) MeanDelay() float64 {
	if st.Successful == 0 {
		return 0.0
	}
	return st.TotalDelay / float64(st.Successful)
}

// Simulator runs one replication.  It is driven by a single event
// manager and is not safe for concurrent use
type Simulator struct {
	Name string

	net     *Network
	wrp     *Wrapper
	decider Decider
	cfg     SimConfig

	evtMgr    *evtm.EventManager
	arrivals  map[string]*arrivalProcess
	egressRng *rngstream.RngStream

	flows     map[int]*Flow
	nxtFlowID int
	stats     Stats

	trace   *TraceManager
	metrics *RunCollector
}

// SimOption customizes a Simulator at construction
type SimOption func(*Simulator)

// WithTrace has the simulator record every decision into tm
func WithTrace(tm *TraceManager) SimOption {
	return func(sim *Simulator) {
		sim.trace = tm
	}
}

// WithRunCollector has the simulator report drops and totals into c
func WithRunCollector(c *RunCollector) SimOption {
	return func(sim *Simulator) {
		sim.metrics = c
	}
}

// NewSimulator is a constructor.  The random streams are created here, one
// for arrivals at each ingress in order and one for egress selection, all
// advanced by seed
func NewSimulator(name string, net *Network, decider Decider, cfg SimConfig, seed int, opts ...SimOption) (*Simulator, error) {
	if len(net.Ingress) == 0 {
		return nil, fmt.Errorf("network %s has no ingress node", net.Name)
	}
	if len(net.Egress) == 0 {
		return nil, fmt.Errorf("network %s has no egress node", net.Name)
	}
	if !(cfg.InterArrivalMean > 0.0) {
		return nil, errors.New("inter-arrival mean must be positive")
	}

	sim := new(Simulator)
	sim.Name = name
	sim.net = net
	sim.wrp = CreateWrapper(net)
	sim.decider = decider
	sim.cfg = cfg
	sim.evtMgr = evtm.New()
	sim.arrivals = make(map[string]*arrivalProcess)
	for _, ingress := range net.Ingress {
		rng := SeededStream(fmt.Sprintf("%s-arrivals-%s", name, ingress), seed)
		sim.arrivals[ingress] = createArrivalProcess(rng, cfg.InterArrivalMean, cfg.Deterministic)
	}
	sim.egressRng = SeededStream(name+"-egress", seed)
	sim.flows = make(map[int]*Flow)
	sim.stats = Stats{DropReasons: make(map[string]int)}
	sim.trace = CreateTraceManager(name, false)

	for _, opt := range opts {
		opt(sim)
	}
	return sim, nil
}

// Wrapper gives access to the observation builder of the simulator
func (sim *Simulator) Wrapper() *Wrapper {
	return sim.wrp
}

// Run generates cfg.Duration flows and follows them until the event list
// empties or the time limit is reached, and returns the statistics.  Runs
// may be started from several goroutines; their event loops take turns
func (sim *Simulator) Run() Stats {
	evtLoopMu.Lock()
	defer evtLoopMu.Unlock()

	ingresses := append([]string{}, sim.net.Ingress...)
	sort.Strings(ingresses)
	for _, ingress := range ingresses {
		sim.evtMgr.Schedule(ingress, nil, flowArrival(sim), vrtime.SecondsToTime(sim.arrivals[ingress].next()))
	}

	limit := noTimeLimit
	if sim.cfg.TimeLimit > 0.0 {
		limit = sim.cfg.TimeLimit
	}
	sim.evtMgr.Run(limit)

	sim.stats.InFlight = len(sim.flows)
	sim.metrics.SetRunStats(sim.Name, sim.stats)

	log.WithFields(log.Fields{
		"run":        sim.Name,
		"generated":  sim.stats.Generated,
		"successful": sim.stats.Successful,
		"dropped":    sim.stats.Dropped,
		"inflight":   sim.stats.InFlight,
	}).Info("simulation complete")
	return sim.stats
}

// Stats returns the statistics gathered so far
func (sim *Simulator) Stats() Stats {
	return sim.stats
}

// flowArrival creates a flow at the ingress named by the context, sends it
// to its first decision, and schedules the next arrival while flows remain
func flowArrival(sim *Simulator) evtm.EventHandlerFunction {
	return func(evtMgr *evtm.EventManager, context any, data any) any {
		ingress := context.(string)
		if sim.stats.Generated >= sim.cfg.Duration {
			return nil
		}

		egress := sim.net.Egress[sim.egressRng.RandInt(0, len(sim.net.Egress)-1)]
		sim.nxtFlowID += 1
		flow := CreateFlow(sim.nxtFlowID, ingress, egress, sim.cfg.DataRate, sim.cfg.SFC,
			sim.cfg.TTL, sim.cfg.FlowDuration, evtMgr.CurrentSeconds())
		sim.flows[flow.ID] = flow
		sim.stats.Generated += 1
		sim.trace.AddFlow(flow)

		sim.decide(evtMgr, flow)

		if sim.stats.Generated < sim.cfg.Duration {
			evtMgr.Schedule(ingress, nil, flowArrival(sim), vrtime.SecondsToTime(sim.arrivals[ingress].next()))
		}
		return nil
	}
}

// decide asks the decider what to do with the flow at its current node, and does it
func (sim *Simulator) decide(evtMgr *evtm.EventManager, flow *Flow) {
	obs := sim.wrp.Observe(flow)
	act := sim.decider.ComputeAction(obs)

	if act == gcasp.DropAction {
		AddDecisionTrace(sim.trace, evtMgr.CurrentTime(), flow, act.String(), "", "")
		sim.dropFlow(flow, DropByDecider)
		return
	}
	dest, ok := sim.wrp.Apply(obs, act)
	if !ok {
		AddDecisionTrace(sim.trace, evtMgr.CurrentTime(), flow, act.String(), "", "out of range")
		sim.dropFlow(flow, DropInvalid)
		return
	}
	AddDecisionTrace(sim.trace, evtMgr.CurrentTime(), flow, act.String(), dest, "")

	if act == gcasp.ProcessLocally {
		sim.processAtNode(evtMgr, flow)
		return
	}
	sim.forward(evtMgr, flow, dest)
}

// processAtNode ends a processed flow at its egress, or applies the next
// service function of its chain at the current node
func (sim *Simulator) processAtNode(evtMgr *evtm.EventManager, flow *Flow) {
	if flow.Processed() {
		if flow.Current == flow.Egress {
			sim.departFlow(evtMgr, flow)
			return
		}
		sim.dropFlow(flow, DropNothingToDo)
		return
	}

	if !sim.net.ReserveNode(flow.Current, flow.Rate) {
		sim.dropFlow(flow, DropNodeCap)
		return
	}
	sim.net.PlaceSF(flow.Current, flow.CurrentSF())
	evtMgr.Schedule(flow, flow.Current, processingDone(sim), vrtime.SecondsToTime(sim.cfg.ProcessingDelay))
}

// processingDone returns the node capacity held by the flow, advances its
// chain, and asks for the next decision at the same node
func processingDone(sim *Simulator) evtm.EventHandlerFunction {
	return func(evtMgr *evtm.EventManager, context any, data any) any {
		flow := context.(*Flow)
		nodeID := data.(string)
		sim.net.ReleaseNode(nodeID, flow.Rate)
		flow.Position += 1
		sim.decide(evtMgr, flow)
		return nil
	}
}

// linkPassage carries a flow over one link
type linkPassage struct {
	flow *Flow
	src  string
	dst  string
}

// forward sends the flow over the link to dest
func (sim *Simulator) forward(evtMgr *evtm.EventManager, flow *Flow, dest string) {
	lnk, present := sim.net.LinkBetween(flow.Current, dest)
	if !present {
		panic(fmt.Errorf("flow %d sent from %s to non-neighbor %s", flow.ID, flow.Current, dest))
	}
	if flow.Remaining < lnk.Delay() {
		sim.dropFlow(flow, DropTTL)
		return
	}
	if !sim.net.ReserveLink(flow.Current, dest, flow.Rate) {
		sim.dropFlow(flow, DropLinkCap)
		return
	}
	flow.Remaining -= lnk.Delay()

	lp := &linkPassage{flow: flow, src: flow.Current, dst: dest}
	evtMgr.Schedule(lp, nil, linkArrival(sim), vrtime.SecondsToTime(lnk.Delay()))
	evtMgr.Schedule(lp, nil, linkRelease(sim), vrtime.SecondsToTime(flow.Duration))
}

// linkArrival puts the flow at the far end of the link and asks for a decision there
func linkArrival(sim *Simulator) evtm.EventHandlerFunction {
	return func(evtMgr *evtm.EventManager, context any, data any) any {
		lp := context.(*linkPassage)
		if lp.flow.Outcome != InFlight {
			return nil
		}
		lp.flow.Current = lp.dst
		lp.flow.Hops += 1
		sim.decide(evtMgr, lp.flow)
		return nil
	}
}

// linkRelease returns the link capacity a flow held
func linkRelease(sim *Simulator) evtm.EventHandlerFunction {
	return func(evtMgr *evtm.EventManager, context any, data any) any {
		lp := context.(*linkPassage)
		sim.net.ReleaseLink(lp.src, lp.dst, lp.flow.Rate)
		return nil
	}
}

func (sim *Simulator) departFlow(evtMgr *evtm.EventManager, flow *Flow) {
	flow.Outcome = Departed
	sim.stats.Successful += 1
	sim.stats.TotalDelay += evtMgr.CurrentSeconds() - flow.Created
	sim.stats.TotalHops += flow.Hops
	delete(sim.flows, flow.ID)
	sim.decider.Release(flow.ID)

	log.WithFields(log.Fields{"run": sim.Name, "flow": flow.ID, "egress": flow.Egress}).Debug("flow departed")
}

func (sim *Simulator) dropFlow(flow *Flow, reason string) {
	flow.Outcome = Dropped
	sim.stats.Dropped += 1
	sim.stats.DropReasons[reason] += 1
	delete(sim.flows, flow.ID)
	sim.decider.Release(flow.ID)
	sim.metrics.IncDrop(reason)

	log.WithFields(log.Fields{"run": sim.Name, "flow": flow.ID, "node": flow.Current}).Debugf("flow dropped: %s", reason)
}
