package gcasp

import (
	"sort"
)

// stubTopo is a minimal in-memory Topology whose residual capacities
// tests can change between decisions
type stubTopo struct {
	nodeIDs []string
	nodes   map[string]NodeAttrs
	links   map[LinkKey]Link
	order   []LinkKey
}

func createStubTopo() *stubTopo {
	return &stubTopo{
		nodeIDs: []string{},
		nodes:   make(map[string]NodeAttrs),
		links:   make(map[LinkKey]Link),
		order:   []LinkKey{},
	}
}

func (st *stubTopo) addNode(name string, capacity float64) *stubTopo {
	st.nodeIDs = append(st.nodeIDs, name)
	st.nodes[name] = NodeAttrs{Type: "Normal", Cap: capacity, RemainingCap: capacity, AvailableSF: []string{}}
	return st
}

func (st *stubTopo) addLink(a, b string, delay, capacity float64) *stubTopo {
	lnk := CreateLink(a, b, map[string]float64{AttrDelay: delay, AttrCap: capacity, AttrRemainingCap: capacity})
	st.links[lnk.Key()] = lnk
	st.order = append(st.order, lnk.Key())
	return st
}

// setRemaining changes the residual capacity of the link between a and b
func (st *stubTopo) setRemaining(a, b string, rem float64) {
	st.links[MakeLinkKey(a, b)].Attrs[AttrRemainingCap] = rem
}

// removeLink drops an edge from the live topology only, making it disagree with a snapshot
func (st *stubTopo) removeLink(a, b string) {
	key := MakeLinkKey(a, b)
	delete(st.links, key)
	for idx, k := range st.order {
		if k == key {
			st.order = append(st.order[:idx], st.order[idx+1:]...)
			break
		}
	}
}

func (st *stubTopo) NodeIDs() []string {
	return st.nodeIDs
}

func (st *stubTopo) Node(id string) (NodeAttrs, bool) {
	attrs, present := st.nodes[id]
	return attrs, present
}

func (st *stubTopo) Links() []Link {
	rtn := make([]Link, 0, len(st.order))
	for _, key := range st.order {
		rtn = append(rtn, st.links[key])
	}
	return rtn
}

func (st *stubTopo) NumLinks() int {
	return len(st.links)
}

func (st *stubTopo) LinkBetween(a, b string) (Link, bool) {
	lnk, present := st.links[MakeLinkKey(a, b)]
	return lnk, present
}

func (st *stubTopo) IncidentLinks(id string) []Link {
	rtn := []Link{}
	for _, key := range st.order {
		if key.Lo == id || key.Hi == id {
			rtn = append(rtn, st.links[key])
		}
	}
	return rtn
}

// neighbors lists the nodes adjacent to id in sorted order
func (st *stubTopo) neighbors(id string) []string {
	rtn := []string{}
	for _, lnk := range st.IncidentLinks(id) {
		rtn = append(rtn, lnk.Other(id))
	}
	sort.Strings(rtn)
	return rtn
}

// ringTopo is A-B-C-D-A with unit delays and ample capacity everywhere
func ringTopo() *stubTopo {
	st := createStubTopo()
	for _, name := range []string{"A", "B", "C", "D"} {
		st.addNode(name, 10.0)
	}
	st.addLink("A", "B", 1.0, 10.0)
	st.addLink("B", "C", 1.0, 10.0)
	st.addLink("C", "D", 1.0, 10.0)
	st.addLink("D", "A", 1.0, 10.0)
	return st
}

// testFlow is a Flow whose fields tests set directly
type testFlow struct {
	id       int
	current  string
	egress   string
	rate     float64
	position int
	length   int
	ttl      float64
}

func (tf *testFlow) FlowID() int         { return tf.id }
func (tf *testFlow) CurrentNode() string { return tf.current }
func (tf *testFlow) EgressNode() string  { return tf.egress }
func (tf *testFlow) DataRate() float64   { return tf.rate }
func (tf *testFlow) ChainPosition() int  { return tf.position }
func (tf *testFlow) ChainLength() int    { return tf.length }
func (tf *testFlow) TTL() float64        { return tf.ttl }

// seqSampler returns its values in turn, repeating the last one
type seqSampler struct {
	values []int
	calls  int
}

func (ss *seqSampler) RandInt(low, high int) int {
	idx := ss.calls
	if idx >= len(ss.values) {
		idx = len(ss.values) - 1
	}
	ss.calls++
	return ss.values[idx]
}

// observe builds the observation the simulator would report for tf at its current node
func observe(st *stubTopo, tf *testFlow, nodeCap float64) Observation {
	nbrs := st.neighbors(tf.current)
	remNode := []float64{nodeCap}
	remLink := []float64{}
	for _, nbr := range nbrs {
		remNode = append(remNode, st.nodes[nbr].RemainingCap)
		lnk, _ := st.LinkBetween(tf.current, nbr)
		remLink = append(remLink, lnk.RemainingCapacity())
	}
	return Observation{
		Flow:       tf,
		Neighbors:  CreateNeighborIndex(tf.current, nbrs),
		RemNodeCap: remNode,
		RemLinkCap: remLink,
		AtEgress:   tf.current == tf.egress,
	}
}
