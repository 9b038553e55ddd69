package flowsim

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// TraceInst is one serialized trace record
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// TraceManager gathers the decision history of a run, one list of
// records per flow, for post-run analysis
type TraceManager struct {
	// run uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of the run
	ExpName string `json:"expname" yaml:"expname"`

	// ingress and egress of each traced flow
	FlowEnds map[int][2]string `json:"flowends" yaml:"flowends"`

	// all trace records, keyed by flow id
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  An inactive manager accepts
// every call and records nothing, so callers need not test for it
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.FlowEnds = make(map[int][2]string)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the trace manager is recording
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a record under the flow's id
func (tm *TraceManager) AddTrace(flowID int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	tm.Traces[flowID] = append(tm.Traces[flowID], trace)
}

// AddFlow remembers where a traced flow enters and leaves
func (tm *TraceManager) AddFlow(flow *Flow) {
	if !tm.Active() {
		return
	}
	if _, present := tm.FlowEnds[flow.ID]; present {
		panic(fmt.Errorf("flow %d traced twice", flow.ID))
	}
	tm.FlowEnds[flow.ID] = [2]string{flow.Ingress, flow.Egress}
}

// NumRecords is the number of records held over all flows
func (tm *TraceManager) NumRecords() int {
	total := 0
	for _, traces := range tm.Traces {
		total += len(traces)
	}
	return total
}

// WriteToFile stores the traces to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.Active() {
		return nil
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tm)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
	} else {
		merr = fmt.Errorf("cannot tell the trace format of %s from its extension", filename)
	}

	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0644)
}

// DecisionTrace records one decision applied to a flow at a node
type DecisionTrace struct {
	Time     float64 `yaml:"time"`
	Ticks    int64   `yaml:"ticks"`
	Priority int64   `yaml:"priority"`
	FlowID   int     `yaml:"flowid"`
	Node     string  `yaml:"node"`
	Action   string  `yaml:"action"`
	Dest     string  `yaml:"dest,omitempty"`
	Position int     `yaml:"position"`
	TTL      float64 `yaml:"ttl"`
	Note     string  `yaml:"note,omitempty"`
}

func (dtr *DecisionTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*dtr)
	if merr != nil {
		panic(merr)
	}
	return string(bytes[:])
}

// AddDecisionTrace records the decision taken for flow at its current node
func AddDecisionTrace(tm *TraceManager, vrt vrtime.Time, flow *Flow, action, dest, note string) {
	if !tm.Active() {
		return
	}
	dtr := new(DecisionTrace)
	dtr.Time = vrt.Seconds()
	dtr.Ticks = vrt.Ticks()
	dtr.Priority = vrt.Pri()
	dtr.FlowID = flow.ID
	dtr.Node = flow.Current
	dtr.Action = action
	dtr.Dest = dest
	dtr.Position = flow.Position
	dtr.TTL = flow.Remaining
	dtr.Note = note

	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	tm.AddTrace(flow.ID, TraceInst{TraceTime: traceTime, TraceType: "decision", TraceStr: dtr.Serialize()})
}
