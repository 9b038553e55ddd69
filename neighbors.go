package gcasp

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// Action is the decision returned for a flow at a node.  0 means process
// the flow at the node, i > 0 means forward it to the i-th neighbor
type Action int

const (
	// ProcessLocally keeps the flow at the current node
	ProcessLocally Action = 0

	// DropAction is the sentinel meaning that neither processing nor forwarding applies
	DropAction Action = -1
)

// Forwards is true for actions that name a neighbor
func (act Action) Forwards() bool {
	return act > 0
}

func (act Action) String() string {
	switch {
	case act == ProcessLocally:
		return "process"
	case act == DropAction:
		return "drop"
	case act > 0:
		return fmt.Sprintf("forward(%d)", int(act))
	}
	return fmt.Sprintf("invalid(%d)", int(act))
}

// A NeighborIndex is the list [self] + neighbors(self) fixed by the simulator
// for one decision step.  A node's position in it is its action index.
type NeighborIndex []string

// CreateNeighborIndex is a constructor
func CreateNeighborIndex(self string, neighbors []string) NeighborIndex {
	ni := make(NeighborIndex, 0, 1+len(neighbors))
	ni = append(ni, self)
	ni = append(ni, neighbors...)
	return ni
}

// Self is the node the index is relative to
func (ni NeighborIndex) Self() string {
	if len(ni) == 0 {
		panic(fmt.Errorf("empty neighbor index"))
	}
	return ni[0]
}

// Degree is the number of neighbors
func (ni NeighborIndex) Degree() int {
	if len(ni) == 0 {
		return 0
	}
	return len(ni) - 1
}

// IndexOf returns the position of nodeID.  A node that is not in the list
// means a stale path or a caller out of step with the simulator, and panics
func (ni NeighborIndex) IndexOf(nodeID string) int {
	idx := slices.Index(ni, nodeID)
	if idx < 0 {
		panic(fmt.Errorf("node %s is not %s or one of its neighbors %v", nodeID, ni.Self(), []string(ni[1:])))
	}
	return idx
}

// Destination translates an action back to the node it designates.
// The drop sentinel and indices past the end of the list have none
func (ni NeighborIndex) Destination(act Action) (string, bool) {
	if act < 0 || int(act) >= len(ni) {
		return "", false
	}
	return ni[act], true
}
