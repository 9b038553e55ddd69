package gcasp

// topology.go declares what the routing engine consumes from the
// flow-level simulator that owns the live network and the flows

import (
	"errors"
)

// ErrNoPath reports that no path joins a source and target once
// the blocked links of a flow are taken out of the graph.  It is a
// routine outcome of planning, and is turned into a drop by the engine
var ErrNoPath = errors.New("no path found")

// ErrUnknownNode reports a node identifier the topology does not hold
var ErrUnknownNode = errors.New("unknown node")

// NodeAttrs carries the attributes of a node in the live topology
type NodeAttrs struct {
	Type         string
	Cap          float64
	RemainingCap float64
	AvailableSF  []string
}

// Topology is the simulator-owned network.  Links report their current
// residual capacity under AttrRemainingCap.
type Topology interface {
	// NodeIDs lists every node identifier, in a fixed order
	NodeIDs() []string

	// Node returns the attributes of the named node
	Node(id string) (NodeAttrs, bool)

	// Links lists every undirected edge, each once
	Links() []Link

	// NumLinks is the number of undirected edges
	NumLinks() int

	// LinkBetween returns the edge joining a and b, if any
	LinkBetween(a, b string) (Link, bool)

	// IncidentLinks lists the edges touching the named node
	IncidentLinks(id string) []Link
}

// Flow is the simulator's view of a flow, as much of it as routing needs
type Flow interface {
	FlowID() int
	CurrentNode() string
	EgressNode() string
	DataRate() float64
	ChainPosition() int
	ChainLength() int
	TTL() float64
}

// chainComplete is true once every function of the flow's chain was applied
func chainComplete(flow Flow) bool {
	return flow.ChainPosition() >= flow.ChainLength()
}

// Sampler draws integers uniformly from [low, high].  An *rngstream.RngStream
// satisfies it; the engine owns one so that retargeting is reproducible.
type Sampler interface {
	RandInt(low, high int) int
}

// Observation bundles what the simulator reports each time a flow
// arrives at a node and a decision is needed.  Vectors are ordered as
// Neighbors is, and are padded to the maximum degree of the network.
type Observation struct {
	Flow Flow

	// Neighbors is [current node] + neighbors of the current node
	Neighbors NeighborIndex

	// RemNodeCap is the residual capacity of the current node (index 0) and its neighbors
	RemNodeCap []float64

	// RemLinkCap is the residual capacity of the link to each neighbor
	RemLinkCap []float64

	// DistToEgress is, for each neighbor, the delay of reaching the flow's
	// egress through that neighbor; -1 where there is no neighbor
	DistToEgress []float64

	// SFAvailable is 1 where the flow's next service function is available, 0
	// where it is not, -1 as padding.  Index 0 is the current node
	SFAvailable []float64

	// ProcessingFraction is the fraction of the chain already applied
	ProcessingFraction float64

	// AtEgress is true when the current node is the flow's egress
	AtEgress bool
}

// localNodeCap is the residual capacity of the node the flow is at
func (obs *Observation) localNodeCap() float64 {
	if len(obs.RemNodeCap) == 0 {
		panic(errors.New("observation carries no node capacities"))
	}
	return obs.RemNodeCap[0]
}
