package flowsim

import (
	"fmt"
	"sync"
	"testing"

	"github.com/iti/gcasp"
	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildReplications creates engines and simulators serially, as the launcher
// does, so that every replication draws from the same streams each time
func buildReplications(t *testing.T, prefix string, count int) ([]*Simulator, []*gcasp.Engine) {
	t.Helper()
	cfg := SimConfig{
		Duration:         40,
		InterArrivalMean: 1.5,
		DataRate:         2.0,
		FlowDuration:     6.0,
		TTL:              40.0,
		SFC:              []string{"a", "b"},
		ProcessingDelay:  2.0,
	}
	sims := make([]*Simulator, 0, count)
	engs := make([]*gcasp.Engine, 0, count)
	for idx := 0; idx < count; idx++ {
		name := fmt.Sprintf("%s-rep%d", prefix, idx)
		net, err := CreateNetwork(ringDesc(t))
		require.NoError(t, err)
		eng := gcasp.NewEngine(net, SeededStream(name+"-engine", 5+idx))
		sim, err := NewSimulator(name, net, eng, cfg, 5+idx)
		require.NoError(t, err)
		sims = append(sims, sim)
		engs = append(engs, eng)
	}
	return sims, engs
}

// TestReplicationsOnPool runs replications concurrently, the way the launcher
// does, and is meant to be run with -race as well
func TestReplicationsOnPool(t *testing.T) {
	const count = 4

	sims, engs := buildReplications(t, "pooled", count)
	pool, err := ants.NewPool(count)
	require.NoError(t, err)
	defer pool.Release()

	got := make([]Stats, count)
	var wg sync.WaitGroup
	for idx, sim := range sims {
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			got[idx] = sim.Run()
		}))
	}
	wg.Wait()

	for idx, stats := range got {
		assert.Equal(t, 40, stats.Generated, "replication %d", idx)
		assert.Equal(t, stats.Generated, stats.Successful+stats.Dropped, "replication %d", idx)
		assert.Equal(t, 0, stats.InFlight, "replication %d", idx)
		assert.Equal(t, stats, sims[idx].Stats())
		assert.Equal(t, 0, engs[idx].NumTracked())
		assertIdle(t, sims[idx].net)
	}
}
