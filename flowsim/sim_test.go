package flowsim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iti/gcasp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDecider applies the chain where the flow stands, then heads for
// the egress along least-delay hops.  fixed, when set, is returned always
type scriptedDecider struct {
	net      *Network
	fixed    *gcasp.Action
	released []int
}

func (sd *scriptedDecider) ComputeAction(obs gcasp.Observation) gcasp.Action {
	if sd.fixed != nil {
		return *sd.fixed
	}
	flow := obs.Flow.(*Flow)
	if !flow.Processed() || obs.AtEgress {
		return gcasp.ProcessLocally
	}
	best, bestDist := "", 0.0
	for _, nbr := range obs.Neighbors[1:] {
		lnk, _ := sd.net.LinkBetween(flow.Current, nbr)
		toEgress, ok := sd.net.Distance(nbr, flow.Egress)
		if ok && (len(best) == 0 || lnk.Delay()+toEgress < bestDist) {
			best, bestDist = nbr, lnk.Delay()+toEgress
		}
	}
	return gcasp.Action(obs.Neighbors.IndexOf(best))
}

func (sd *scriptedDecider) Release(flowID int) {
	sd.released = append(sd.released, flowID)
}

func testConfig(duration int) SimConfig {
	return SimConfig{
		Duration:         duration,
		InterArrivalMean: 10.0,
		DataRate:         1.0,
		FlowDuration:     10.0,
		TTL:              50.0,
		SFC:              []string{"a"},
		ProcessingDelay:  5.0,
		Deterministic:    true,
	}
}

// assertIdle checks that every reservation made during a run was given back
func assertIdle(t *testing.T, net *Network) {
	t.Helper()
	for _, id := range net.NodeIDs() {
		attrs, _ := net.Node(id)
		assert.InDelta(t, attrs.Cap, attrs.RemainingCap, 1e-9, "node %s", id)
	}
	for _, lnk := range net.Links() {
		assert.InDelta(t, lnk.Capacity(), lnk.RemainingCapacity(), 1e-9, "link %s", lnk)
	}
}

func TestScriptedFlowsSucceed(t *testing.T) {
	net, err := CreateNetwork(lineDesc(t))
	require.NoError(t, err)
	decider := &scriptedDecider{net: net}
	sim, err := NewSimulator("scripted", net, decider, testConfig(3), 1)
	require.NoError(t, err)

	stats := sim.Run()

	assert.Equal(t, 3, stats.Generated)
	assert.Equal(t, 3, stats.Successful)
	assert.Equal(t, 0, stats.Dropped)
	assert.Equal(t, 0, stats.InFlight)
	// processing 5, then links of delay 1 and 2
	assert.InDelta(t, 8.0, stats.MeanDelay(), 1e-9)
	assert.Equal(t, 6, stats.TotalHops)
	assert.ElementsMatch(t, []int{1, 2, 3}, decider.released)
	assert.True(t, net.HasSF("n1", "a"))
	assertIdle(t, net)
}

func TestDropReasons(t *testing.T) {
	drop := gcasp.DropAction
	outOfRange := gcasp.Action(7)

	tests := []struct {
		name   string
		fixed  *gcasp.Action
		adjust func(*SimConfig)
		reason string
	}{
		{name: "decider", fixed: &drop, reason: DropByDecider},
		{name: "out of range", fixed: &outOfRange, reason: DropInvalid},
		{name: "ttl", adjust: func(cfg *SimConfig) { cfg.TTL = 2.5 }, reason: DropTTL},
		{name: "node capacity", adjust: func(cfg *SimConfig) { cfg.DataRate = 20.0 }, reason: DropNodeCap},
		{name: "link capacity", adjust: func(cfg *SimConfig) {
			cfg.DataRate = 20.0
			cfg.SFC = []string{}
		}, reason: DropLinkCap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, err := CreateNetwork(lineDesc(t))
			require.NoError(t, err)
			cfg := testConfig(2)
			if tt.adjust != nil {
				tt.adjust(&cfg)
			}
			decider := &scriptedDecider{net: net, fixed: tt.fixed}
			sim, err := NewSimulator("drops", net, decider, cfg, 1)
			require.NoError(t, err)

			stats := sim.Run()
			assert.Equal(t, 2, stats.Dropped)
			assert.Equal(t, 2, stats.DropReasons[tt.reason])
			assert.Len(t, decider.released, 2)
			assertIdle(t, net)
		})
	}
}

func TestLinkContentionBetweenFlows(t *testing.T) {
	net, err := CreateNetwork(lineDesc(t))
	require.NoError(t, err)
	cfg := testConfig(2)
	cfg.SFC = []string{}
	cfg.DataRate = 6.0
	cfg.FlowDuration = 100.0
	decider := &scriptedDecider{net: net}
	sim, err := NewSimulator("contention", net, decider, cfg, 1)
	require.NoError(t, err)

	stats := sim.Run()
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, 1, stats.DropReasons[DropLinkCap])
	assertIdle(t, net)
}

func TestSimulatorNeedsIngressAndEgress(t *testing.T) {
	td := lineDesc(t)
	td.Egress = []string{}
	net, err := CreateNetwork(td)
	require.NoError(t, err)
	_, err = NewSimulator("none", net, &scriptedDecider{net: net}, testConfig(1), 1)
	assert.Error(t, err)

	td = lineDesc(t)
	td.Ingress = []string{}
	net, err = CreateNetwork(td)
	require.NoError(t, err)
	_, err = NewSimulator("none", net, &scriptedDecider{net: net}, testConfig(1), 1)
	assert.Error(t, err)
}

func TestEngineEndToEnd(t *testing.T) {
	net, err := CreateNetwork(lineDesc(t))
	require.NoError(t, err)
	eng := gcasp.NewEngine(net, SeededStream("e2e-engine", 3))
	cfg := testConfig(5)
	cfg.SFC = []string{"a", "b"}
	sim, err := NewSimulator("e2e", net, eng, cfg, 3)
	require.NoError(t, err)

	stats := sim.Run()

	assert.Equal(t, 5, stats.Generated)
	assert.Equal(t, 5, stats.Successful)
	assert.Equal(t, 0, eng.NumTracked())
	assert.True(t, net.HasSF("n1", "b"))
	assertIdle(t, net)
}

// ringDesc is a ring of six nodes with a chord, tight capacities and two ingresses
func ringDesc(t *testing.T) *gcasp.TopoDesc {
	t.Helper()
	td := gcasp.CreateTopoDesc("ring")
	names := []string{"r0", "r1", "r2", "r3", "r4", "r5"}
	for _, name := range names {
		require.NoError(t, td.AddNode(name, "Normal", 3.0))
	}
	for idx, name := range names {
		require.NoError(t, td.AddLink(name, names[(idx+1)%len(names)], float64(1+idx%3), 4.0))
	}
	require.NoError(t, td.AddLink("r0", "r3", 2.0, 2.0))
	td.Ingress = []string{"r0", "r2"}
	td.Egress = []string{"r3", "r5"}
	return td
}

func TestEngineUnderContention(t *testing.T) {
	net, err := CreateNetwork(ringDesc(t))
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	engCollector, err := gcasp.NewEngineCollector(reg)
	require.NoError(t, err)
	runCollector, err := NewRunCollector(reg)
	require.NoError(t, err)
	tm := CreateTraceManager("contention", true)

	eng := gcasp.NewEngine(net, SeededStream("contention-engine", 11), gcasp.WithCollector(engCollector))
	cfg := SimConfig{
		Duration:         60,
		InterArrivalMean: 1.5,
		DataRate:         2.0,
		FlowDuration:     6.0,
		TTL:              40.0,
		SFC:              []string{"a", "b", "c"},
		ProcessingDelay:  2.0,
	}
	sim, err := NewSimulator("contention", net, eng, cfg, 11, WithTrace(tm), WithRunCollector(runCollector))
	require.NoError(t, err)

	stats := sim.Run()

	assert.Equal(t, 60, stats.Generated)
	assert.Equal(t, stats.Generated, stats.Successful+stats.Dropped)
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, 0, eng.NumTracked())
	assert.Equal(t, 7, net.NumLinks())
	assertIdle(t, net)

	assert.Equal(t, float64(stats.Successful), testutil.ToFloat64(runCollector.Flows.WithLabelValues("contention", "successful")))
	assert.Equal(t, float64(stats.Generated), testutil.ToFloat64(runCollector.Flows.WithLabelValues("contention", "total")))

	assert.Len(t, tm.FlowEnds, 60)
	assert.Greater(t, tm.NumRecords(), 60)
	traceFile := filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, tm.WriteToFile(traceFile))
	info, err := os.Stat(traceFile)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestInactiveTraceRecordsNothing(t *testing.T) {
	tm := CreateTraceManager("off", false)
	flow := CreateFlow(1, "n1", "n3", 1.0, nil, 1.0, 1.0, 0.0)
	tm.AddFlow(flow)
	tm.AddTrace(1, TraceInst{TraceType: "decision"})
	assert.Equal(t, 0, tm.NumRecords())
	assert.NoError(t, tm.WriteToFile(filepath.Join(t.TempDir(), "never.yaml")))

	var missing *TraceManager
	assert.False(t, missing.Active())
}

func TestConfigFromRunDesc(t *testing.T) {
	rd := gcasp.DefaultRunDesc()
	rd.Deterministic = true
	rd.TimeLimit = 30.0
	cfg := ConfigFromRunDesc(&rd)

	assert.True(t, cfg.Deterministic)
	assert.Equal(t, rd.Duration, cfg.Duration)
	assert.Equal(t, 30.0, cfg.TimeLimit)
	assert.Equal(t, rd.SFC, cfg.SFC)

	// the config holds its own chain
	cfg.SFC[0] = "zz"
	assert.Equal(t, "a", rd.SFC[0])

	// evenly spaced arrivals every mean
	ap := createArrivalProcess(SeededStream("even", 1), rd.InterArrivalMean, cfg.Deterministic)
	assert.InDelta(t, rd.InterArrivalMean, ap.next(), 1e-9)
}
