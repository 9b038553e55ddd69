package gcasp

// snapshot.go holds the engine's private copy of the topology, kept in the
// form the gonum graph packages need for least-delay path discovery.
//
//   The snapshot is built once, when the engine is constructed, by copying every
// node and edge of the live topology.  After that the only changes it sees are
// the removal and restoration of a flow's blocked links inside a single planning
// call, so its edge count matches the live topology's at every other moment.
// Residual capacities copied at construction are never refreshed; path
// weights are edge delays, which do not change.

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// Snapshot is a mutable copy of the topology structure, used only for planning
type Snapshot struct {
	connGraph *simple.WeightedUndirectedGraph

	// gonum identifies nodes by int64; these translate to and from topology ids
	idByName map[string]int64
	nameByID []string

	nodes map[string]NodeAttrs

	// links present in connGraph, with the attributes they were copied with
	links map[LinkKey]Link
}

// NewSnapshot deep-copies the nodes and edges of topo
func NewSnapshot(topo Topology) *Snapshot {
	ss := new(Snapshot)
	ss.connGraph = simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	ss.idByName = make(map[string]int64)
	ss.nameByID = make([]string, 0)
	ss.nodes = make(map[string]NodeAttrs)
	ss.links = make(map[LinkKey]Link)

	for _, nodeID := range topo.NodeIDs() {
		attrs, present := topo.Node(nodeID)
		if !present {
			panic(fmt.Errorf("topology lists node %s but does not describe it", nodeID))
		}
		ss.addNode(nodeID, attrs)
	}

	for _, lnk := range topo.Links() {
		ss.AddLink(lnk)
	}
	return ss
}

// addNode gives nodeID a gonum identity and saves a copy of its attributes
func (ss *Snapshot) addNode(nodeID string, attrs NodeAttrs) {
	if _, present := ss.idByName[nodeID]; present {
		panic(fmt.Errorf("duplicated node %s in snapshot", nodeID))
	}
	gid := int64(len(ss.nameByID))
	ss.idByName[nodeID] = gid
	ss.nameByID = append(ss.nameByID, nodeID)
	ss.connGraph.AddNode(simple.Node(gid))

	cpy := attrs
	cpy.AvailableSF = make([]string, len(attrs.AvailableSF))
	copy(cpy.AvailableSF, attrs.AvailableSF)
	ss.nodes[nodeID] = cpy
}

// gid returns the gonum id of a node the snapshot must know about
func (ss *Snapshot) gid(nodeID string) int64 {
	gid, present := ss.idByName[nodeID]
	if !present {
		panic(fmt.Errorf("%w %s in snapshot", ErrUnknownNode, nodeID))
	}
	return gid
}

// NumLinks is the number of undirected edges currently in the snapshot
func (ss *Snapshot) NumLinks() int {
	return len(ss.links)
}

// NumNodes is the number of nodes in the snapshot
func (ss *Snapshot) NumNodes() int {
	return len(ss.nameByID)
}

// hasLink reports whether the edge between a and b is present
func (ss *Snapshot) hasLink(a, b string) bool {
	_, present := ss.links[MakeLinkKey(a, b)]
	return present
}

// node returns the attributes copied for nodeID when the snapshot was built
func (ss *Snapshot) node(nodeID string) (NodeAttrs, bool) {
	attrs, present := ss.nodes[nodeID]
	return attrs, present
}

// AddLink puts lnk in the snapshot, weighted by its delay
func (ss *Snapshot) AddLink(lnk Link) {
	if lnk.A == lnk.B {
		panic(fmt.Errorf("self loop on %s", lnk.A))
	}
	key := lnk.Key()
	if _, present := ss.links[key]; present {
		panic(fmt.Errorf("link %s already in snapshot", key))
	}
	from := ss.connGraph.Node(ss.gid(lnk.A))
	to := ss.connGraph.Node(ss.gid(lnk.B))
	ss.connGraph.SetWeightedEdge(simple.WeightedEdge{F: from, T: to, W: lnk.Delay()})
	ss.links[key] = CreateLink(lnk.A, lnk.B, lnk.Attrs)
}

// RemoveLink takes the edge between a and b out of the snapshot and
// returns it with the attributes the snapshot held for it
func (ss *Snapshot) RemoveLink(a, b string) Link {
	key := MakeLinkKey(a, b)
	lnk, present := ss.links[key]
	if !present {
		panic(fmt.Errorf("link %s not in snapshot", key))
	}
	ss.connGraph.RemoveEdge(ss.gid(a), ss.gid(b))
	delete(ss.links, key)
	return lnk
}

// WithLinksExcluded removes links from the snapshot, calls f, and puts
// the removed links back before returning, whether f returned an error,
// or something panicked part way
func (ss *Snapshot) WithLinksExcluded(links []Link, f func() error) error {
	removed := make([]Link, 0, len(links))
	defer func() {
		for _, lnk := range removed {
			ss.AddLink(lnk)
		}
	}()

	for _, lnk := range links {
		removed = append(removed, ss.RemoveLink(lnk.A, lnk.B))
	}
	return f()
}

// ShortestPath returns the least-delay path from src to dst, both ends included.
// ErrNoPath is returned (wrapped) when dst cannot be reached
func (ss *Snapshot) ShortestPath(src, dst string) ([]string, error) {
	srcID, present := ss.idByName[src]
	if !present {
		return nil, fmt.Errorf("%w %s", ErrUnknownNode, src)
	}
	dstID, present := ss.idByName[dst]
	if !present {
		return nil, fmt.Errorf("%w %s", ErrUnknownNode, dst)
	}

	// graph/path.DijkstraFrom computes the tree of shortest paths rooted in src.
	// The snapshot changes between calls, so unlike a static route table
	// the trees are not cached
	spTree := path.DijkstraFrom(ss.connGraph.Node(srcID), orderedGraph{ss.connGraph})
	nodeSeq, weight := spTree.To(dstID)
	if len(nodeSeq) == 0 || math.IsInf(weight, 1) {
		return nil, fmt.Errorf("%w from %s to %s", ErrNoPath, src, dst)
	}
	return ss.convertNodeSeq(nodeSeq), nil
}

// pathDelay sums the delay of the edges along route, and reports false
// if some consecutive pair is not joined in the snapshot
func (ss *Snapshot) pathDelay(route []string) (float64, bool) {
	total := 0.0
	for idx := 1; idx < len(route); idx++ {
		lnk, present := ss.links[MakeLinkKey(route[idx-1], route[idx])]
		if !present {
			return 0.0, false
		}
		total += lnk.Delay()
	}
	return total, true
}

// convertNodeSeq extracts topology node ids from a sequence of graph nodes
func (ss *Snapshot) convertNodeSeq(nsQ []graph.Node) []string {
	rtn := make([]string, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, ss.nameByID[node.ID()])
	}
	return rtn
}

// orderedGraph presents the neighbors of a node in id order, so that the
// search visits them the same way every run and ties between equal-delay
// paths are broken the same way
type orderedGraph struct {
	*simple.WeightedUndirectedGraph
}

func (og orderedGraph) From(id int64) graph.Nodes {
	nodes := graph.NodesOf(og.WeightedUndirectedGraph.From(id))
	if len(nodes) == 0 {
		return graph.Empty
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	return iterator.NewOrderedNodes(nodes)
}
