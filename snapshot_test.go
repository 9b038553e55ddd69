package gcasp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// diamondTopo has a cheap route S-X-T and a dear one S-Y-T
func diamondTopo() *stubTopo {
	st := createStubTopo()
	for _, name := range []string{"S", "X", "Y", "T"} {
		st.addNode(name, 5.0)
	}
	st.addLink("S", "X", 1.0, 10.0)
	st.addLink("X", "T", 1.0, 10.0)
	st.addLink("S", "Y", 2.0, 10.0)
	st.addLink("Y", "T", 5.0, 10.0)
	return st
}

func TestSnapshotCopiesTopology(t *testing.T) {
	st := diamondTopo()
	ss := NewSnapshot(st)

	assert.Equal(t, 4, ss.NumNodes())
	assert.Equal(t, 4, ss.NumLinks())
	assert.True(t, ss.hasLink("T", "X"))
	assert.False(t, ss.hasLink("X", "Y"))

	// node attributes are copied, service function lists included
	st.nodes["X"] = NodeAttrs{Type: "Normal", Cap: 5.0, RemainingCap: 5.0, AvailableSF: []string{"a"}}
	ss = NewSnapshot(st)
	st.nodes["X"].AvailableSF[0] = "z"
	attrs, present := ss.node("X")
	require.True(t, present)
	assert.Equal(t, []string{"a"}, attrs.AvailableSF)
	_, present = ss.node("Q")
	assert.False(t, present)

	// later changes to the live topology are not seen
	st.setRemaining("S", "X", 0.0)
	removed := ss.RemoveLink("S", "X")
	assert.Equal(t, 10.0, removed.RemainingCapacity())
}

func TestShortestPathLeastDelay(t *testing.T) {
	ss := NewSnapshot(diamondTopo())

	route, err := ss.ShortestPath("S", "T")
	require.NoError(t, err)
	assert.Equal(t, []string{"S", "X", "T"}, route)

	delay, ok := ss.pathDelay(route)
	assert.True(t, ok)
	assert.Equal(t, 2.0, delay)

	route, err = ss.ShortestPath("S", "S")
	require.NoError(t, err)
	assert.Equal(t, []string{"S"}, route)
}

func TestShortestPathTieBreakIsStable(t *testing.T) {
	// A-B-C and A-D-C have equal delay
	ss := NewSnapshot(ringTopo())
	first, err := ss.ShortestPath("A", "C")
	require.NoError(t, err)
	for range 20 {
		route, err := ss.ShortestPath("A", "C")
		require.NoError(t, err)
		assert.Equal(t, first, route)
	}
}

func TestShortestPathErrors(t *testing.T) {
	st := diamondTopo()
	st.addNode("Z", 1.0)
	ss := NewSnapshot(st)

	_, err := ss.ShortestPath("S", "Z")
	assert.True(t, errors.Is(err, ErrNoPath))

	_, err = ss.ShortestPath("S", "Q")
	assert.True(t, errors.Is(err, ErrUnknownNode))
	assert.False(t, errors.Is(err, ErrNoPath))
}

func TestWithLinksExcludedRestores(t *testing.T) {
	ss := NewSnapshot(diamondTopo())
	blocked := []Link{CreateLink("X", "S", nil)}

	var route []string
	err := ss.WithLinksExcluded(blocked, func() error {
		assert.Equal(t, 3, ss.NumLinks())
		var perr error
		route, perr = ss.ShortestPath("S", "T")
		return perr
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"S", "Y", "T"}, route)
	assert.Equal(t, 4, ss.NumLinks())
	assert.True(t, ss.hasLink("S", "X"))

	// restored with the attributes the snapshot held
	route, err = ss.ShortestPath("S", "T")
	require.NoError(t, err)
	assert.Equal(t, []string{"S", "X", "T"}, route)
}

func TestWithLinksExcludedRestoresOnError(t *testing.T) {
	ss := NewSnapshot(diamondTopo())
	blocked := []Link{CreateLink("S", "X", nil), CreateLink("S", "Y", nil)}

	err := ss.WithLinksExcluded(blocked, func() error {
		_, perr := ss.ShortestPath("S", "T")
		return perr
	})
	assert.True(t, errors.Is(err, ErrNoPath))
	assert.Equal(t, 4, ss.NumLinks())
}

func TestWithLinksExcludedRestoresOnPanic(t *testing.T) {
	ss := NewSnapshot(diamondTopo())
	blocked := []Link{CreateLink("S", "X", nil)}

	assert.Panics(t, func() {
		_ = ss.WithLinksExcluded(blocked, func() error {
			panic("interrupted")
		})
	})
	assert.Equal(t, 4, ss.NumLinks())
	assert.True(t, ss.hasLink("S", "X"))
}

func TestSnapshotLinkFaults(t *testing.T) {
	ss := NewSnapshot(diamondTopo())
	assert.Panics(t, func() { ss.RemoveLink("X", "Y") })
	assert.Panics(t, func() { ss.AddLink(CreateLink("S", "X", nil)) })
	assert.Panics(t, func() { ss.AddLink(CreateLink("S", "S", nil)) })
}
