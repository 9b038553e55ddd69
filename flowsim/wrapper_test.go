package flowsim

import (
	"testing"

	"github.com/iti/gcasp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapperShape(t *testing.T) {
	net, err := CreateNetwork(starDesc(t))
	require.NoError(t, err)
	wrp := CreateWrapper(net)

	assert.Equal(t, 3, wrp.MaxDegree())
	assert.Equal(t, 4, wrp.ActionLimit())
	assert.Equal(t, 18, wrp.ObservationShape())
}

func TestWrapperObserve(t *testing.T) {
	net, err := CreateNetwork(starDesc(t))
	require.NoError(t, err)
	net.PlaceSF("h", "x")
	require.True(t, net.ReserveNode("h", 1.5))
	require.True(t, net.ReserveLink("s2", "h", 2.0))
	wrp := CreateWrapper(net)

	flow := CreateFlow(1, "s1", "s3", 1.0, []string{"x", "y"}, 50.0, 10.0, 0.0)
	flow.Current = "s2"
	obs := wrp.Observe(flow)

	assert.Equal(t, gcasp.NeighborIndex{"s2", "h", "idle"}, obs.Neighbors)
	// idle has no capacity at all and reads 0, the last slot is padding
	assert.Equal(t, []float64{4.0, 2.5, 0.0, 0.0}, obs.RemNodeCap)
	assert.Equal(t, []float64{3.0, 5.0, 0.0}, obs.RemLinkCap)
	// through h: 1 + 2, through idle: 1 + 4 back through s2
	assert.Equal(t, []float64{3.0, 5.0, -1.0}, obs.DistToEgress)
	assert.Equal(t, []float64{0.0, 1.0, 0.0, -1.0}, obs.SFAvailable)
	assert.Equal(t, 0.0, obs.ProcessingFraction)
	assert.False(t, obs.AtEgress)

	vec := wrp.Vector(obs)
	assert.Len(t, vec, wrp.ObservationShape())
	assert.Equal(t, []float64{0.0, 0.0, 50.0, 1.0}, vec[:4])
}

func TestWrapperObserveAtEgress(t *testing.T) {
	net, err := CreateNetwork(lineDesc(t))
	require.NoError(t, err)
	wrp := CreateWrapper(net)

	flow := CreateFlow(2, "n1", "n3", 1.0, []string{"a"}, 50.0, 10.0, 0.0)
	flow.Current = "n3"
	flow.Position = 1
	obs := wrp.Observe(flow)

	assert.True(t, obs.AtEgress)
	assert.Equal(t, 1.0, obs.ProcessingFraction)
	// nothing left to apply, so no node offers it
	assert.Equal(t, []float64{0.0, 0.0, -1.0}, obs.SFAvailable)
	// out to n2 and back
	assert.Equal(t, []float64{4.0, -1.0}, obs.DistToEgress)
}

func TestWrapperApply(t *testing.T) {
	net, err := CreateNetwork(lineDesc(t))
	require.NoError(t, err)
	wrp := CreateWrapper(net)

	flow := CreateFlow(3, "n1", "n3", 1.0, nil, 50.0, 10.0, 0.0)
	flow.Current = "n2"
	obs := wrp.Observe(flow)

	dest, ok := wrp.Apply(obs, gcasp.ProcessLocally)
	assert.True(t, ok)
	assert.Equal(t, "n2", dest)

	dest, ok = wrp.Apply(obs, gcasp.Action(2))
	assert.True(t, ok)
	assert.Equal(t, "n3", dest)

	_, ok = wrp.Apply(obs, gcasp.Action(3))
	assert.False(t, ok)
	_, ok = wrp.Apply(obs, gcasp.DropAction)
	assert.False(t, ok)
}
