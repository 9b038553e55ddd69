package flowsim

// wrapper.go turns the state of the network around one flow into the
// observation a decider is handed, and turns the decider's action back into
// a destination node.  Vectors are padded to the maximum degree of the
// network so that every observation has the same shape.

import (
	"github.com/iti/gcasp"
)

// Wrapper mediates between the simulator and a decider
type Wrapper struct {
	net       *Network
	maxDegree int
}

// CreateWrapper is a constructor
func CreateWrapper(net *Network) *Wrapper {
	return &Wrapper{net: net, maxDegree: net.MaxDegree()}
}

// MaxDegree is the largest number of neighbors of any node
func (wrp *Wrapper) MaxDegree() int {
	return wrp.maxDegree
}

// ActionLimit is the number of distinct non-drop actions: this node and up to MaxDegree neighbors
func (wrp *Wrapper) ActionLimit() int {
	return 1 + wrp.maxDegree
}

// ObservationShape is the length of the flattened observation of Vector:
// processing fraction, at-egress flag, ttl and data rate, then SF availability
// and node capacity over this node and its neighbors, then link capacity and
// distance to egress over the neighbors
func (wrp *Wrapper) ObservationShape() int {
	return 4 + 2*(1+wrp.maxDegree) + 2*wrp.maxDegree
}

// Observe describes the neighborhood of the node the flow is at
func (wrp *Wrapper) Observe(flow *Flow) gcasp.Observation {
	here := flow.Current
	nbrs := wrp.net.Neighbors(here)
	nodeAndNbrs := gcasp.CreateNeighborIndex(here, nbrs)

	remNodeCap := filled(1+wrp.maxDegree, 0.0)
	sfAvailable := filled(1+wrp.maxDegree, -1.0)
	sf := flow.CurrentSF()
	for idx, nodeID := range nodeAndNbrs {
		attrs, _ := wrp.net.Node(nodeID)
		if attrs.Cap > 0.0 {
			remNodeCap[idx] = attrs.RemainingCap
		}
		if len(sf) > 0 && wrp.net.HasSF(nodeID, sf) {
			sfAvailable[idx] = 1.0
		} else {
			sfAvailable[idx] = 0.0
		}
	}

	remLinkCap := filled(wrp.maxDegree, 0.0)
	distToEgress := filled(wrp.maxDegree, -1.0)
	for idx, nbr := range nbrs {
		lnk, _ := wrp.net.LinkBetween(here, nbr)
		if lnk.Capacity() > 0.0 {
			remLinkCap[idx] = lnk.RemainingCapacity()
		}
		if len(flow.Egress) == 0 {
			continue
		}
		toNbr, okNbr := wrp.net.Distance(here, nbr)
		toEgress, okEgress := wrp.net.Distance(nbr, flow.Egress)
		if okNbr && okEgress {
			distToEgress[idx] = toNbr + toEgress
		}
	}

	return gcasp.Observation{
		Flow:               flow,
		Neighbors:          nodeAndNbrs,
		RemNodeCap:         remNodeCap,
		RemLinkCap:         remLinkCap,
		DistToEgress:       distToEgress,
		SFAvailable:        sfAvailable,
		ProcessingFraction: flow.ProcessingFraction(),
		AtEgress:           len(flow.Egress) > 0 && here == flow.Egress,
	}
}

// Vector flattens an observation into the layout ObservationShape describes
func (wrp *Wrapper) Vector(obs gcasp.Observation) []float64 {
	atEgress := 0.0
	if obs.AtEgress {
		atEgress = 1.0
	}
	vec := make([]float64, 0, wrp.ObservationShape())
	vec = append(vec, obs.ProcessingFraction, atEgress, obs.Flow.TTL(), obs.Flow.DataRate())
	vec = append(vec, obs.SFAvailable...)
	vec = append(vec, obs.RemNodeCap...)
	vec = append(vec, obs.RemLinkCap...)
	vec = append(vec, obs.DistToEgress...)
	return vec
}

// Apply translates an action into the node it designates.  The drop
// sentinel and indices past [self]+neighbors designate nothing
func (wrp *Wrapper) Apply(obs gcasp.Observation, act gcasp.Action) (string, bool) {
	return obs.Neighbors.Destination(act)
}

func filled(n int, value float64) []float64 {
	rtn := make([]float64, n)
	for idx := range rtn {
		rtn[idx] = value
	}
	return rtn
}
