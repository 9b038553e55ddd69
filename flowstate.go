package gcasp

import (
	"fmt"
)

// RoutingState is the tag of the per-flow state machine
type RoutingState int

const (
	// Greedy flows still have functions of their chain to apply, and head for a target node
	Greedy RoutingState = iota

	// Departure flows have applied their whole chain and head for their egress
	Departure

	// Drop is terminal
	Drop
)

var rsToStr map[RoutingState]string = map[RoutingState]string{Greedy: "greedy", Departure: "departure", Drop: "drop"}

func (rs RoutingState) String() string {
	str, present := rsToStr[rs]
	if !present {
		return fmt.Sprintf("RoutingState(%d)", int(rs))
	}
	return str
}

// FlowRoutingState is what the engine remembers about one flow
type FlowRoutingState struct {
	State RoutingState

	// TargetNode is the node the flow is currently routed toward
	TargetNode string

	// Path holds the remaining hops toward TargetNode, not including the current node
	Path []string

	// blocked are the links left out of the flow's next planning attempt
	blocked linkSet
}

// createFlowRoutingState is a constructor.  Flows start out greedy, routed to target
func createFlowRoutingState(target string) *FlowRoutingState {
	frs := new(FlowRoutingState)
	frs.State = Greedy
	frs.TargetNode = target
	frs.Path = []string{}
	frs.blocked = createLinkSet()
	return frs
}

// BlockedLinks returns a copy of the links currently blocked for the flow
func (frs *FlowRoutingState) BlockedLinks() []Link {
	return frs.blocked.links()
}

// blockLink adds lnk to the blocked set, returning false if its endpoints were already there
func (frs *FlowRoutingState) blockLink(lnk Link) bool {
	return frs.blocked.add(lnk)
}

func (frs *FlowRoutingState) clearBlocked() {
	frs.blocked.clear()
}

// popHop removes and returns the next hop of the path.  Asking for a hop
// the path does not have is a caller error
func (frs *FlowRoutingState) popHop() string {
	if len(frs.Path) == 0 {
		panic(fmt.Errorf("next hop requested from empty path toward %s", frs.TargetNode))
	}
	var nxt string
	nxt, frs.Path = frs.Path[0], frs.Path[1:]
	return nxt
}

// flowTable is the engine's side table of routing state, keyed by flow id
type flowTable map[int]*FlowRoutingState

func (ft flowTable) lookup(flowID int) (*FlowRoutingState, bool) {
	frs, present := ft[flowID]
	return frs, present
}

// attach creates and saves routing state for a flow seen for the first time.
// Attaching twice is a programming error
func (ft flowTable) attach(flowID int, target string) *FlowRoutingState {
	if _, present := ft[flowID]; present {
		panic(fmt.Errorf("flow %d was already initialized", flowID))
	}
	frs := createFlowRoutingState(target)
	ft[flowID] = frs
	return frs
}

func (ft flowTable) release(flowID int) {
	delete(ft, flowID)
}
