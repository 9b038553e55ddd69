package flowsim

// network.go holds the live network of a simulation: nodes with processing
// capacity and service functions, undirected links with delay and capacity,
// and the residual capacity of each left after the reservations of flows in
// flight.  Network implements gcasp.Topology.

import (
	"fmt"
	"math"

	"github.com/iti/gcasp"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// capacity comparisons tolerate this much rounding error
const capEps = 1e-9

type nodeState struct {
	name  string
	attrs gcasp.NodeAttrs
}

type linkState struct {
	lnk gcasp.Link
}

// Network is the simulator-owned topology with its residual capacities
type Network struct {
	Name    string
	Ingress []string
	Egress  []string

	nodeIDs []string
	nodes   map[string]*nodeState
	links   map[gcasp.LinkKey]*linkState

	// linkOrder is the description order of the links
	linkOrder []gcasp.LinkKey

	// nbrs lists the neighbors of each node, in description order of the links
	nbrs map[string][]string

	// delay-weighted graph and the shortest path trees computed from it,
	// delays never change so the trees are cached
	gid       map[string]int64
	connGraph *simple.WeightedUndirectedGraph
	cachedSP  map[string]path.Shortest
}

// CreateNetwork builds the live network from a topology description.
// Every node and link starts with its full capacity remaining
func CreateNetwork(td *gcasp.TopoDesc) (*Network, error) {
	if err := td.Validate(); err != nil {
		return nil, fmt.Errorf("topology %s: %w", td.Name, err)
	}

	net := new(Network)
	net.Name = td.Name
	net.Ingress = append([]string{}, td.Ingress...)
	net.Egress = append([]string{}, td.Egress...)
	net.nodeIDs = make([]string, 0, len(td.Nodes))
	net.nodes = make(map[string]*nodeState)
	net.links = make(map[gcasp.LinkKey]*linkState)
	net.linkOrder = make([]gcasp.LinkKey, 0, len(td.Links))
	net.nbrs = make(map[string][]string)
	net.gid = make(map[string]int64)
	net.connGraph = simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	net.cachedSP = make(map[string]path.Shortest)

	for idx, nd := range td.Nodes {
		sfs := append([]string{}, nd.AvailableSF...)
		net.nodeIDs = append(net.nodeIDs, nd.Name)
		net.nodes[nd.Name] = &nodeState{name: nd.Name,
			attrs: gcasp.NodeAttrs{Type: nd.Type, Cap: nd.Cap, RemainingCap: nd.Cap, AvailableSF: sfs}}
		net.nbrs[nd.Name] = []string{}
		net.gid[nd.Name] = int64(idx)
		net.connGraph.AddNode(simple.Node(int64(idx)))
	}

	for _, ld := range td.Links {
		lnk := gcasp.CreateLink(ld.Src, ld.Dst, map[string]float64{
			gcasp.AttrDelay:        ld.Delay,
			gcasp.AttrCap:          ld.Cap,
			gcasp.AttrRemainingCap: ld.Cap,
		})
		net.links[lnk.Key()] = &linkState{lnk: lnk}
		net.linkOrder = append(net.linkOrder, lnk.Key())
		net.nbrs[ld.Src] = append(net.nbrs[ld.Src], ld.Dst)
		net.nbrs[ld.Dst] = append(net.nbrs[ld.Dst], ld.Src)

		net.connGraph.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(net.gid[ld.Src]),
			T: simple.Node(net.gid[ld.Dst]), W: ld.Delay})
	}
	return net, nil
}

// NodeIDs lists the nodes in description order
func (net *Network) NodeIDs() []string {
	return append([]string{}, net.nodeIDs...)
}

// Node returns a copy of the named node's attributes
func (net *Network) Node(id string) (gcasp.NodeAttrs, bool) {
	ns, present := net.nodes[id]
	if !present {
		return gcasp.NodeAttrs{}, false
	}
	attrs := ns.attrs
	attrs.AvailableSF = append([]string{}, ns.attrs.AvailableSF...)
	return attrs, true
}

// Links lists every link once, in description order, as copies
func (net *Network) Links() []gcasp.Link {
	rtn := make([]gcasp.Link, 0, len(net.linkOrder))
	for _, key := range net.linkOrder {
		ls := net.links[key]
		rtn = append(rtn, gcasp.CreateLink(ls.lnk.A, ls.lnk.B, ls.lnk.Attrs))
	}
	return rtn
}

func (net *Network) NumLinks() int {
	return len(net.links)
}

// LinkBetween returns a copy of the link joining a and b
func (net *Network) LinkBetween(a, b string) (gcasp.Link, bool) {
	ls, present := net.links[gcasp.MakeLinkKey(a, b)]
	if !present {
		return gcasp.Link{}, false
	}
	return gcasp.CreateLink(ls.lnk.A, ls.lnk.B, ls.lnk.Attrs), true
}

// IncidentLinks returns copies of the links touching id, ordered as Neighbors
func (net *Network) IncidentLinks(id string) []gcasp.Link {
	rtn := make([]gcasp.Link, 0, len(net.nbrs[id]))
	for _, nbr := range net.nbrs[id] {
		lnk, _ := net.LinkBetween(id, nbr)
		rtn = append(rtn, lnk)
	}
	return rtn
}

// Neighbors lists the nodes adjacent to id.  The order is fixed for the
// life of the network, and is the order of the action indices
func (net *Network) Neighbors(id string) []string {
	return append([]string{}, net.nbrs[id]...)
}

// MaxDegree is the largest number of neighbors any node has
func (net *Network) MaxDegree() int {
	maxDegree := 0
	for _, nbrs := range net.nbrs {
		maxDegree = max(maxDegree, len(nbrs))
	}
	return maxDegree
}

// ReserveNode takes amount from the residual capacity of the node, reporting
// false and changing nothing if there is not that much left
func (net *Network) ReserveNode(id string, amount float64) bool {
	ns := net.mustNode(id)
	if ns.attrs.RemainingCap+capEps < amount {
		return false
	}
	ns.attrs.RemainingCap -= amount
	return true
}

// ReleaseNode returns amount to the node.  Returning more than was taken
// means the simulator lost track of a reservation
func (net *Network) ReleaseNode(id string, amount float64) {
	ns := net.mustNode(id)
	ns.attrs.RemainingCap += amount
	if ns.attrs.RemainingCap > ns.attrs.Cap+capEps {
		panic(fmt.Errorf("node %s released to %f above its capacity %f", id, ns.attrs.RemainingCap, ns.attrs.Cap))
	}
}

// ReserveLink takes amount from the residual capacity of the link joining a and b
func (net *Network) ReserveLink(a, b string, amount float64) bool {
	ls := net.mustLink(a, b)
	if ls.lnk.RemainingCapacity()+capEps < amount {
		return false
	}
	ls.lnk.Attrs[gcasp.AttrRemainingCap] -= amount
	return true
}

// ReleaseLink returns amount to the link joining a and b
func (net *Network) ReleaseLink(a, b string, amount float64) {
	ls := net.mustLink(a, b)
	ls.lnk.Attrs[gcasp.AttrRemainingCap] += amount
	if ls.lnk.RemainingCapacity() > ls.lnk.Capacity()+capEps {
		panic(fmt.Errorf("link %s released to %f above its capacity %f", ls.lnk, ls.lnk.RemainingCapacity(), ls.lnk.Capacity()))
	}
}

// PlaceSF makes service function sf available at the node, if it is not already
func (net *Network) PlaceSF(id, sf string) {
	ns := net.mustNode(id)
	if !slices.Contains(ns.attrs.AvailableSF, sf) {
		ns.attrs.AvailableSF = append(ns.attrs.AvailableSF, sf)
	}
}

// HasSF reports whether sf is available at the node
func (net *Network) HasSF(id, sf string) bool {
	return slices.Contains(net.mustNode(id).attrs.AvailableSF, sf)
}

// Distance is the least total delay between a and b, false if they are not connected
func (net *Network) Distance(a, b string) (float64, bool) {
	srcID, present := net.gid[a]
	if !present {
		return 0.0, false
	}
	dstID, present := net.gid[b]
	if !present {
		return 0.0, false
	}

	spTree, present := net.cachedSP[a]
	if !present {
		spTree = path.DijkstraFrom(simple.Node(srcID), net.connGraph)
		net.cachedSP[a] = spTree
	}
	weight := spTree.WeightTo(dstID)
	if math.IsInf(weight, 1) {
		return 0.0, false
	}
	return weight, true
}

func (net *Network) mustNode(id string) *nodeState {
	ns, present := net.nodes[id]
	if !present {
		panic(fmt.Errorf("%w %s in network %s", gcasp.ErrUnknownNode, id, net.Name))
	}
	return ns
}

func (net *Network) mustLink(a, b string) *linkState {
	ls, present := net.links[gcasp.MakeLinkKey(a, b)]
	if !present {
		panic(fmt.Errorf("no link %s-%s in network %s", a, b, net.Name))
	}
	return ls
}
