package flowsim

import (
	"github.com/iti/gcasp"
)

// FlowOutcome is where a flow's life ended, if it has
type FlowOutcome int

const (
	InFlight FlowOutcome = iota
	Departed
	Dropped
)

var foToStr map[FlowOutcome]string = map[FlowOutcome]string{InFlight: "inflight", Departed: "departed", Dropped: "dropped"}

func (fo FlowOutcome) String() string {
	return foToStr[fo]
}

// Flow is a unit of traffic requesting an ordered chain of service functions
// on its way from an ingress to an egress node
type Flow struct {
	ID       int
	Ingress  string
	Egress   string
	Current  string
	Rate     float64
	SFC      []string
	Position int

	// Remaining is the delay budget left; every link crossed uses up its delay
	Remaining float64

	// Duration is how long the flow holds capacity it reserves
	Duration float64

	Created float64
	Outcome FlowOutcome
	Hops    int
}

// CreateFlow is a constructor.  The flow starts at its ingress with the whole chain ahead
func CreateFlow(id int, ingress, egress string, rate float64, sfc []string, ttl, duration, now float64) *Flow {
	flow := new(Flow)
	flow.ID = id
	flow.Ingress = ingress
	flow.Egress = egress
	flow.Current = ingress
	flow.Rate = rate
	flow.SFC = append([]string{}, sfc...)
	flow.Remaining = ttl
	flow.Duration = duration
	flow.Created = now
	flow.Outcome = InFlight
	return flow
}

func (flow *Flow) FlowID() int         { return flow.ID }
func (flow *Flow) CurrentNode() string { return flow.Current }
func (flow *Flow) EgressNode() string  { return flow.Egress }
func (flow *Flow) DataRate() float64   { return flow.Rate }
func (flow *Flow) ChainPosition() int  { return flow.Position }
func (flow *Flow) ChainLength() int    { return len(flow.SFC) }
func (flow *Flow) TTL() float64        { return flow.Remaining }

// CurrentSF is the next service function the flow needs, empty once the chain is done
func (flow *Flow) CurrentSF() string {
	if flow.Position >= len(flow.SFC) {
		return ""
	}
	return flow.SFC[flow.Position]
}

// Processed is true once every function of the chain was applied
func (flow *Flow) Processed() bool {
	return flow.Position >= len(flow.SFC)
}

// ProcessingFraction is the fraction of the chain applied so far
func (flow *Flow) ProcessingFraction() float64 {
	if len(flow.SFC) == 0 {
		return 1.0
	}
	return float64(flow.Position) / float64(len(flow.SFC))
}

var _ gcasp.Flow = (*Flow)(nil)
