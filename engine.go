package gcasp

// engine.go implements GCASP, greedy coordination with adaptive shortest paths.
//
//   For each flow arriving at a node the engine returns one action: process the
// flow here, forward it to a neighbor, or drop it.  A flow with functions of its
// chain still to apply is processed wherever there is node capacity for it, and
// otherwise travels along a least-delay path toward a target node; on reaching
// the target a new target is drawn at random.  Once the chain is complete the
// flow is routed to its egress.  When the link to the next hop cannot carry the
// flow, every incident link that cannot carry it is blocked for that flow and
// the path is planned again; when no path remains the flow is dropped.

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Engine computes forwarding decisions.  It is not safe for concurrent use;
// the simulator calls it for one flow at a time
type Engine struct {
	topo     Topology
	snapshot *Snapshot

	// allNodeIDs is the population retarget draws from
	allNodeIDs []string

	rng     Sampler
	flows   flowTable
	metrics *EngineCollector
}

// EngineOption customizes an Engine at construction
type EngineOption func(*Engine)

// WithCollector has the engine report into c
func WithCollector(c *EngineCollector) EngineOption {
	return func(eng *Engine) {
		eng.metrics = c
	}
}

// NewEngine is a constructor.  The snapshot used for planning is copied
// from topo now; rng is owned by the engine from here on
func NewEngine(topo Topology, rng Sampler, opts ...EngineOption) *Engine {
	if topo == nil {
		panic(errors.New("engine needs a topology"))
	}
	if rng == nil {
		panic(errors.New("engine needs a random number source"))
	}

	eng := new(Engine)
	eng.topo = topo
	eng.snapshot = NewSnapshot(topo)
	eng.allNodeIDs = append([]string{}, topo.NodeIDs()...)
	eng.rng = rng
	eng.flows = make(flowTable)

	for _, opt := range opts {
		opt(eng)
	}

	log.Debugf("gcasp engine built over %d nodes and %d links", eng.snapshot.NumNodes(), eng.snapshot.NumLinks())
	return eng
}

// ComputeAction returns the decision for the flow of obs at its current node
func (eng *Engine) ComputeAction(obs Observation) Action {
	act := eng.computeAction(obs)
	eng.metrics.IncAction(act)
	return act
}

func (eng *Engine) computeAction(obs Observation) Action {
	flow := obs.Flow

	// routing state is attached the first time the flow is seen
	frs, present := eng.flows.lookup(flow.FlowID())
	if !present {
		frs = eng.initFlow(flow)
	}

	// dropped flows are not reconsidered
	if frs.State == Drop {
		return DropAction
	}

	nodeID := flow.CurrentNode()
	if chainComplete(flow) {
		if frs.State != Departure {
			eng.depart(flow, frs)
		}
	} else if nodeID == frs.TargetNode {
		eng.retarget(flow, frs)
	}

	switch frs.State {
	case Greedy:
		// process here if the node can take the flow
		if obs.localNodeCap() >= flow.DataRate() {
			return ProcessLocally
		}
		return eng.selectNeighbor(flow, frs, obs.Neighbors)

	case Departure:
		// no more processing, get to the egress
		if nodeID == flow.EgressNode() {
			return ProcessLocally
		}
		return eng.selectNeighbor(flow, frs, obs.Neighbors)
	}

	return DropAction
}

// initFlow attaches routing state to a flow seen for the first time.  The
// initial target is the egress; no path to it means the flow is dropped at once
func (eng *Engine) initFlow(flow Flow) *FlowRoutingState {
	frs := eng.flows.attach(flow.FlowID(), flow.EgressNode())
	eng.metrics.IncTransition(Greedy)

	if err := eng.setNewPath(flow, frs); err != nil {
		eng.dropFlow(flow, frs, err)
	}
	return frs
}

// depart switches a flow whose chain is complete to its egress
func (eng *Engine) depart(flow Flow, frs *FlowRoutingState) {
	frs.State = Departure
	frs.TargetNode = flow.EgressNode()
	frs.clearBlocked()
	eng.metrics.IncTransition(Departure)

	log.WithFields(log.Fields{"flow": flow.FlowID(), "node": flow.CurrentNode()}).Debug("chain complete, departing")

	if err := eng.setNewPath(flow, frs); err != nil {
		eng.dropFlow(flow, frs, err)
	}
}

// retarget draws a new target distinct from the flow's current node, uniformly
// over all nodes, and plans a path to it
func (eng *Engine) retarget(flow Flow, frs *FlowRoutingState) {
	nodeID := flow.CurrentNode()
	numNodes := len(eng.allNodeIDs)
	if numNodes < 2 {
		panic(fmt.Errorf("flow %d needs a new target but the topology has %d node(s)", flow.FlowID(), numNodes))
	}

	// rejection sampling until the draw differs from where the flow is
	for frs.TargetNode == nodeID {
		idx := eng.rng.RandInt(0, numNodes-1)
		if idx < 0 || idx >= numNodes {
			continue
		}
		frs.TargetNode = eng.allNodeIDs[idx]
	}
	frs.clearBlocked()
	eng.metrics.IncRetargets()

	log.WithFields(log.Fields{"flow": flow.FlowID(), "node": nodeID, "target": frs.TargetNode}).Debug("new target")

	if err := eng.setNewPath(flow, frs); err != nil {
		eng.dropFlow(flow, frs, err)
	}
}

// selectNeighbor forwards the flow along its planned path.  If the link to
// the next hop lacks the capacity for the flow, every incident link that
// lacks it is blocked and the path is planned again around them
func (eng *Engine) selectNeighbor(flow Flow, frs *FlowRoutingState, nbrs NeighborIndex) Action {
	nodeID := flow.CurrentNode()
	rate := flow.DataRate()

	nxtHop := frs.popHop()
	lnk, present := eng.topo.LinkBetween(nodeID, nxtHop)
	if !present {
		panic(fmt.Errorf("flow %d planned hop %s is not adjacent to %s", flow.FlowID(), nxtHop, nodeID))
	}

	// can forward?
	if lnk.RemainingCapacity() >= rate {
		return Action(nbrs.IndexOf(nxtHop))
	}

	// no, block every incident link that cannot carry the flow
	for _, incident := range eng.topo.IncidentLinks(nodeID) {
		if incident.RemainingCapacity()-rate < 0 {
			if frs.blockLink(incident) {
				eng.metrics.IncBlockedLinks()
			}
		}
	}

	log.WithFields(log.Fields{
		"flow":    flow.FlowID(),
		"node":    nodeID,
		"hop":     nxtHop,
		"blocked": frs.blocked.len(),
	}).Debug("link to next hop exhausted, replanning")

	if err := eng.setNewPath(flow, frs); err != nil {
		// every way out is exhausted
		eng.dropFlow(flow, frs, err)
		return DropAction
	}

	nxtHop = frs.popHop()
	return Action(nbrs.IndexOf(nxtHop))
}

// dropFlow moves the flow to the terminal drop state
func (eng *Engine) dropFlow(flow Flow, frs *FlowRoutingState, reason error) {
	frs.State = Drop
	frs.Path = []string{}
	eng.metrics.IncTransition(Drop)

	log.WithFields(log.Fields{
		"flow":   flow.FlowID(),
		"node":   flow.CurrentNode(),
		"target": frs.TargetNode,
	}).Debugf("dropping flow: %v", reason)
}

// Release forgets the routing state of a flow the simulator is done with
func (eng *Engine) Release(flowID int) {
	eng.flows.release(flowID)
}

// NumTracked is the number of flows the engine holds routing state for
func (eng *Engine) NumTracked() int {
	return len(eng.flows)
}
