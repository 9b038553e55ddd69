package gcasp

// desc-run.go holds the description of one simulation run: which topology,
// how many flows, their traffic parameters, the service function chain they
// request, and where logs and traces go

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// RunDesc parameterizes a run.  Fields a run file leaves out keep the values of DefaultRunDesc
type RunDesc struct {
	// TopoFile names the topology description, yaml or json
	TopoFile string `json:"topofile" yaml:"topofile" toml:"topofile"`

	// Duration is the number of flows generated before arrivals stop
	Duration int `json:"duration" yaml:"duration" toml:"duration"`

	// Seed selects the random number streams of the run
	Seed int `json:"seed" yaml:"seed" toml:"seed"`

	// Replications is the number of independent runs, seeds Seed, Seed+1, ...
	Replications int `json:"replications" yaml:"replications" toml:"replications"`

	// Workers bounds how many replications run at once
	Workers int `json:"workers" yaml:"workers" toml:"workers"`

	// InterArrivalMean is the mean time between flow arrivals at each ingress
	InterArrivalMean float64 `json:"interarrivalmean" yaml:"interarrivalmean" toml:"interarrivalmean"`

	// DataRate is the rate every flow asks of nodes and links
	DataRate float64 `json:"datarate" yaml:"datarate" toml:"datarate"`

	// FlowDuration is how long a flow holds the capacity it reserves
	FlowDuration float64 `json:"flowduration" yaml:"flowduration" toml:"flowduration"`

	// TTL is the delay budget of a flow
	TTL float64 `json:"ttl" yaml:"ttl" toml:"ttl"`

	// SFC is the ordered list of service functions every flow requests
	SFC []string `json:"sfc" yaml:"sfc" toml:"sfc"`

	// ProcessingDelay is the time one service function takes on a flow
	ProcessingDelay float64 `json:"processingdelay" yaml:"processingdelay" toml:"processingdelay"`

	// TimeLimit bounds simulation time; non-positive means run until the event list empties
	TimeLimit float64 `json:"timelimit" yaml:"timelimit" toml:"timelimit"`

	// Deterministic spaces flow arrivals evenly at the mean instead of exponentially
	Deterministic bool `json:"deterministic" yaml:"deterministic" toml:"deterministic"`

	LogLevel  string `json:"loglevel" yaml:"loglevel" toml:"loglevel"`
	LogFile   string `json:"logfile" yaml:"logfile" toml:"logfile"`
	TraceFile string `json:"tracefile" yaml:"tracefile" toml:"tracefile"`
}

// DefaultRunDesc returns the description used for anything a run file leaves out
func DefaultRunDesc() RunDesc {
	return RunDesc{
		Duration:         200,
		Seed:             1234,
		Replications:     1,
		Workers:          1,
		InterArrivalMean: 10.0,
		DataRate:         1.0,
		FlowDuration:     20.0,
		TTL:              100.0,
		SFC:              []string{"a", "b", "c"},
		ProcessingDelay:  5.0,
		LogLevel:         "info",
	}
}

// Validate reports every parameter a run cannot be started with
func (rd *RunDesc) Validate() error {
	errs := make([]error, 0)
	if len(rd.TopoFile) == 0 {
		errs = append(errs, errors.New("run names no topology file"))
	}
	if rd.Seed < 0 {
		errs = append(errs, fmt.Errorf("negative seed %d", rd.Seed))
	}
	if rd.Duration < 0 {
		errs = append(errs, fmt.Errorf("negative duration %d", rd.Duration))
	}
	if rd.Replications < 1 {
		errs = append(errs, fmt.Errorf("replications must be positive, not %d", rd.Replications))
	}
	if rd.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, not %d", rd.Workers))
	}
	if !(rd.InterArrivalMean > 0.0) {
		errs = append(errs, fmt.Errorf("inter-arrival mean must be positive, not %f", rd.InterArrivalMean))
	}
	if rd.DataRate < 0.0 || rd.FlowDuration < 0.0 || rd.ProcessingDelay < 0.0 {
		errs = append(errs, errors.New("data rate, flow duration and processing delay cannot be negative"))
	}
	if !(rd.TTL > 0.0) {
		errs = append(errs, fmt.Errorf("ttl must be positive, not %f", rd.TTL))
	}
	return ReportErrs(errs)
}

// WriteToFile stores the RunDesc to the file whose name is given, as
// json, yaml, or toml depending on the extension of the name
func (rd *RunDesc) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var outBytes []byte
	var merr error = nil

	switch pathExt {
	case ".yaml", ".YAML", ".yml":
		outBytes, merr = yaml.Marshal(*rd)
	case ".json", ".JSON":
		outBytes, merr = json.MarshalIndent(*rd, "", "\t")
	case ".toml", ".TOML":
		var buf bytes.Buffer
		merr = toml.NewEncoder(&buf).Encode(*rd)
		outBytes = buf.Bytes()
	default:
		merr = fmt.Errorf("cannot tell the format of %s from its extension", filename)
	}

	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, outBytes, 0644)
}

// ReadRunDesc deserializes a run description.  If dict is empty the file named
// runFileName is read.  The format comes from the extension of runFileName.
// Fields the description leaves out keep their defaults, so an explicit zero
// is honored.  The result is validated
func ReadRunDesc(runFileName string, dict []byte) (*RunDesc, error) {
	var err error

	if len(dict) == 0 {
		fileInfo, serr := os.Stat(runFileName)
		if os.IsNotExist(serr) || (serr == nil && fileInfo.IsDir()) {
			return nil, fmt.Errorf("run description %s does not exist or cannot be read", runFileName)
		}
		dict, err = os.ReadFile(runFileName)
		if err != nil {
			return nil, err
		}
	}

	// decoding over the defaults only touches the fields present
	example := DefaultRunDesc()

	switch path.Ext(runFileName) {
	case ".yaml", ".YAML", ".yml":
		err = yaml.Unmarshal(dict, &example)
	case ".toml", ".TOML":
		_, err = toml.Decode(string(dict), &example)
	default:
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, fmt.Errorf("run description %s: %w", runFileName, err)
	}

	if verr := example.Validate(); verr != nil {
		return nil, fmt.Errorf("run description %s: %w", runFileName, verr)
	}
	return &example, nil
}
