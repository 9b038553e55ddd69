package gcasp

// desc-topo.go holds the serializable description of a service-function
// topology: nodes with processing capacity and service functions, undirected
// links with delay and capacity, and the ingress and egress nodes of traffic.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// A NodeDesc describes one node of the topology
type NodeDesc struct {
	// Name is unique among the nodes
	Name string `json:"name" yaml:"name"`

	// Type is a free-form label, e.g., "Normal", "Ingress"
	Type string `json:"type" yaml:"type"`

	// Cap is the processing capacity of the node, in data-rate units
	Cap float64 `json:"cap" yaml:"cap"`

	// AvailableSF lists the service functions instantiated at the node
	AvailableSF []string `json:"availablesf" yaml:"availablesf"`
}

// A LinkDesc describes one undirected link
type LinkDesc struct {
	Src   string  `json:"src" yaml:"src"`
	Dst   string  `json:"dst" yaml:"dst"`
	Delay float64 `json:"delay" yaml:"delay"`
	Cap   float64 `json:"cap" yaml:"cap"`
}

// TopoDesc is a complete, pointer-free description of a topology
type TopoDesc struct {
	Name    string     `json:"name" yaml:"name"`
	Nodes   []NodeDesc `json:"nodes" yaml:"nodes"`
	Links   []LinkDesc `json:"links" yaml:"links"`
	Ingress []string   `json:"ingress" yaml:"ingress"`
	Egress  []string   `json:"egress" yaml:"egress"`
}

// CreateTopoDesc is a constructor
func CreateTopoDesc(name string) *TopoDesc {
	td := new(TopoDesc)
	td.Name = name
	td.Nodes = make([]NodeDesc, 0)
	td.Links = make([]LinkDesc, 0)
	td.Ingress = make([]string, 0)
	td.Egress = make([]string, 0)
	return td
}

// hasNode reports whether a node with the given name is described
func (td *TopoDesc) hasNode(name string) bool {
	return slices.IndexFunc(td.Nodes, func(nd NodeDesc) bool { return nd.Name == name }) > -1
}

// AddNode includes a node, returning an error if the name is already taken
func (td *TopoDesc) AddNode(name, nodeType string, capacity float64, availableSF ...string) error {
	if td.hasNode(name) {
		return fmt.Errorf("node %s already described in topology %s", name, td.Name)
	}
	sfs := make([]string, len(availableSF))
	copy(sfs, availableSF)
	td.Nodes = append(td.Nodes, NodeDesc{Name: name, Type: nodeType, Cap: capacity, AvailableSF: sfs})
	return nil
}

// AddLink includes an undirected link between two described nodes
func (td *TopoDesc) AddLink(src, dst string, delay, capacity float64) error {
	if !td.hasNode(src) {
		return fmt.Errorf("%w %s on link to %s", ErrUnknownNode, src, dst)
	}
	if !td.hasNode(dst) {
		return fmt.Errorf("%w %s on link from %s", ErrUnknownNode, dst, src)
	}
	td.Links = append(td.Links, LinkDesc{Src: src, Dst: dst, Delay: delay, Cap: capacity})
	return nil
}

// Validate checks the description for the things a topology cannot have:
// unnamed or repeated nodes, links to unknown nodes, self loops, parallel
// links, negative delays and capacities, unknown ingress or egress nodes
func (td *TopoDesc) Validate() error {
	errs := make([]error, 0)

	seen := make(map[string]bool)
	for _, nd := range td.Nodes {
		if len(nd.Name) == 0 {
			errs = append(errs, errors.New("unnamed node"))
			continue
		}
		if seen[nd.Name] {
			errs = append(errs, fmt.Errorf("node %s described twice", nd.Name))
		}
		seen[nd.Name] = true
		if nd.Cap < 0 {
			errs = append(errs, fmt.Errorf("node %s has negative capacity", nd.Name))
		}
	}

	linked := make(map[LinkKey]bool)
	for _, ld := range td.Links {
		if !seen[ld.Src] || !seen[ld.Dst] {
			errs = append(errs, fmt.Errorf("link %s-%s joins an unknown node", ld.Src, ld.Dst))
			continue
		}
		if ld.Src == ld.Dst {
			errs = append(errs, fmt.Errorf("self loop on %s", ld.Src))
			continue
		}
		key := MakeLinkKey(ld.Src, ld.Dst)
		if linked[key] {
			errs = append(errs, fmt.Errorf("link %s described twice", key))
		}
		linked[key] = true
		if ld.Delay < 0 {
			errs = append(errs, fmt.Errorf("link %s has negative delay", key))
		}
		if ld.Cap < 0 {
			errs = append(errs, fmt.Errorf("link %s has negative capacity", key))
		}
	}

	for _, name := range td.Ingress {
		if !seen[name] {
			errs = append(errs, fmt.Errorf("ingress %s is not a node", name))
		}
	}
	for _, name := range td.Egress {
		if !seen[name] {
			errs = append(errs, fmt.Errorf("egress %s is not a node", name))
		}
	}

	return ReportErrs(errs)
}

// WriteToFile stores the TopoDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (td *TopoDesc) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*td)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*td, "", "\t")
	} else {
		merr = fmt.Errorf("cannot tell the format of %s from its extension", filename)
	}

	if merr != nil {
		return merr
	}

	return os.WriteFile(filename, bytes, 0644)
}

// ReadTopoDesc deserializes a slice of bytes into a TopoDesc.  If the input arg of bytes
// is empty, the file whose name is given as an argument is read.  The description
// is validated before it is returned.
func ReadTopoDesc(topoFileName string, useYAML bool, dict []byte) (*TopoDesc, error) {
	var err error

	// read from the file only if the byte slice is empty
	if len(dict) == 0 {
		fileInfo, serr := os.Stat(topoFileName)
		if os.IsNotExist(serr) || (serr == nil && fileInfo.IsDir()) {
			return nil, fmt.Errorf("topology %s does not exist or cannot be read", topoFileName)
		}
		dict, err = os.ReadFile(topoFileName)
		if err != nil {
			return nil, err
		}
	}

	example := TopoDesc{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	if verr := example.Validate(); verr != nil {
		return nil, fmt.Errorf("topology %s: %w", example.Name, verr)
	}

	return &example, nil
}

// UseYAML tells from a file name's extension whether it holds yaml
func UseYAML(filename string) bool {
	ext := path.Ext(filename)
	return ext == ".yaml" || ext == ".YAML" || ext == ".yml"
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
// with comma-separated report of all the constituent errors, and returns it.
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}

	return errors.New(strings.Join(errMsg, ","))
}

// CheckReadableFiles probes the file system to ensure that every
// one of the argument filenames exists and is readable
func CheckReadableFiles(names []string) (bool, error) {
	errs := make([]error, 0)

	for _, name := range names {
		// skip empty names
		if len(name) == 0 {
			continue
		}

		// split off the directory portion of the path
		directory, _ := filepath.Split(name)
		if len(directory) > 0 {
			if _, err := os.Stat(directory); err != nil {
				errs = append(errs, err)
				continue
			}
		}

		if _, err := os.Stat(name); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return true, nil
	}
	return false, ReportErrs(errs)
}
