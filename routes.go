package gcasp

// routes.go computes the planned path of a flow through the engine's snapshot.
//
//   The flow's blocked links are taken out of the snapshot for the duration of
// one shortest-path search and are always put back, whether a path was found or
// not.  The same snapshot serves every flow for the life of the engine, so a
// removal that leaked would silently corrupt every later path.  The edge count
// of the snapshot is checked against the live topology before and after.

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// setNewPath plans the least-delay path from the flow's current node to
// frs.TargetNode avoiding frs's blocked links, and stores it in frs.Path
// with the current node left off.  ErrNoPath is returned when the blocked
// links disconnect the two; frs.Path is then left as it was
func (eng *Engine) setNewPath(flow Flow, frs *FlowRoutingState) error {
	eng.checkLinkCount("pre", flow)

	srtTime := time.Now()
	var route []string
	err := eng.snapshot.WithLinksExcluded(frs.BlockedLinks(), func() error {
		var perr error
		route, perr = eng.snapshot.ShortestPath(flow.CurrentNode(), frs.TargetNode)
		return perr
	})
	eng.metrics.ObservePathComputation(time.Since(srtTime))

	eng.checkLinkCount("post", flow)

	if err != nil {
		if !errors.Is(err, ErrNoPath) {
			// only a disconnected pair is routine; anything else means
			// the snapshot and the flow disagree about the topology
			panic(fmt.Errorf("planning for flow %d: %w", flow.FlowID(), err))
		}
		eng.metrics.IncReplan(false)
		return err
	}
	eng.metrics.IncReplan(true)

	frs.Path = route[1:]

	log.WithFields(log.Fields{
		"flow":    flow.FlowID(),
		"node":    flow.CurrentNode(),
		"target":  frs.TargetNode,
		"blocked": frs.blocked.len(),
	}).Debugf("planned path %v", frs.Path)
	return nil
}

// checkLinkCount panics if the snapshot no longer has as many edges as the
// live topology, which means the two have drifted apart
func (eng *Engine) checkLinkCount(when string, flow Flow) {
	have, want := eng.snapshot.NumLinks(), eng.topo.NumLinks()
	if have != want {
		panic(fmt.Errorf("%s-planning edge count mismatch for flow %d: snapshot has %d, topology has %d",
			when, flow.FlowID(), have, want))
	}
}
