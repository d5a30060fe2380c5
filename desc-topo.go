package netxp

// desc-topo.go holds the serializable descriptions of an experiment: the
// topology (nodes and the links joining them), the traffic flows, and the
// experiment configuration record.  Descriptions are read from and written to
// files in either json or yaml, selected by the file name extension.

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// media types a link may have.  A p2p link joins exactly two nodes,
// the shared media join two or more over one transmission channel
var LinkMedia []string = []string{"p2p", "csma", "wifi"}

// flow modes understood by the builder
var FlowModes []string = []string{"bulk", "echo", "rate"}

// DefaultMTU is the frame size used by links whose description gives none
const DefaultMTU int = 1500

// DefaultAddressBase is the base of the address plan when a TopoDesc gives none
const DefaultAddressBase string = "10.1.0.0"

// LinkDesc describes one link.  DataRate is in bits per second,
// Delay (the propagation delay) in seconds.  ErrorRate is the
// probability that any one byte is received in error.
type LinkDesc struct {
	Name      string  `json:"name" yaml:"name"`
	Media     string  `json:"media" yaml:"media"`
	Endpts    []int   `json:"endpts" yaml:"endpts"`
	DataRate  float64 `json:"datarate" yaml:"datarate"`
	Delay     float64 `json:"delay" yaml:"delay"`
	ErrorRate float64 `json:"errorrate" yaml:"errorrate"`
	MTU       int     `json:"mtu" yaml:"mtu"`
}

// TopoDesc describes a topology: how many nodes it has and the links between them.
// Links are listed in creation order, which fixes the address plan.
type TopoDesc struct {
	Name        string     `json:"name" yaml:"name"`
	Nodes       int        `json:"nodes" yaml:"nodes"`
	NodeNames   []string   `json:"nodenames,omitempty" yaml:"nodenames,omitempty"`
	AddressBase string     `json:"addressbase" yaml:"addressbase"`
	Links       []LinkDesc `json:"links" yaml:"links"`
}

// CreateTopoDesc is a constructor
func CreateTopoDesc(name string, nodes int) *TopoDesc {
	td := new(TopoDesc)
	td.Name = name
	td.Nodes = nodes
	td.AddressBase = DefaultAddressBase
	td.Links = make([]LinkDesc, 0)
	return td
}

// AddLink appends a link to the description and returns its index
func (td *TopoDesc) AddLink(media string, dataRate, delay, errorRate float64, endpts ...int) int {
	ld := LinkDesc{Media: media, DataRate: dataRate, Delay: delay, ErrorRate: errorRate, MTU: DefaultMTU}
	ld.Endpts = make([]int, len(endpts))
	copy(ld.Endpts, endpts)
	ld.Name = fmt.Sprintf("%s%d", media, len(td.Links))
	td.Links = append(td.Links, ld)
	return len(td.Links) - 1
}

// NodeName returns the name given to node idx, "n<idx>" by default
func (td *TopoDesc) NodeName(idx int) string {
	if idx < len(td.NodeNames) && len(td.NodeNames[idx]) > 0 {
		return td.NodeNames[idx]
	}
	return fmt.Sprintf("n%d", idx)
}

// Validate checks the description for references and parameters the builder cannot accept.
// Every problem found is reported, each wrapping ErrTopology.
func (td *TopoDesc) Validate() error {
	errs := make([]error, 0)
	if td.Nodes < 1 {
		errs = append(errs, fmt.Errorf("%w: topology %s has %d nodes", ErrTopology, td.Name, td.Nodes))
	}
	for idx, ld := range td.Links {
		errs = append(errs, ld.validate(idx, td.Nodes))
	}
	return ReportErrs(errs)
}

func (ld *LinkDesc) validate(idx, nodes int) error {
	label := ld.Name
	if len(label) == 0 {
		label = fmt.Sprintf("link %d", idx)
	}

	if !slices.Contains(LinkMedia, ld.Media) {
		return fmt.Errorf("%w: %s has unknown media %q", ErrTopology, label, ld.Media)
	}
	if ld.Media == "p2p" && len(ld.Endpts) != 2 {
		return fmt.Errorf("%w: point-to-point %s has %d endpoints", ErrTopology, label, len(ld.Endpts))
	}
	if len(ld.Endpts) < 2 {
		return fmt.Errorf("%w: shared %s has %d endpoints", ErrTopology, label, len(ld.Endpts))
	}
	for _, nodeIdx := range ld.Endpts {
		if nodeIdx < 0 || nodeIdx >= nodes {
			return fmt.Errorf("%w: %s references node %d, topology has %d nodes", ErrTopology, label, nodeIdx, nodes)
		}
	}
	for jdx := 1; jdx < len(ld.Endpts); jdx++ {
		if slices.Contains(ld.Endpts[:jdx], ld.Endpts[jdx]) {
			return fmt.Errorf("%w: %s lists node %d twice", ErrTopology, label, ld.Endpts[jdx])
		}
	}

	params := []struct {
		name  string
		value float64
	}{{"data rate", ld.DataRate}, {"delay", ld.Delay}, {"error rate", ld.ErrorRate}}
	for _, param := range params {
		if math.IsNaN(param.value) || math.IsInf(param.value, 0) || param.value < 0.0 {
			return fmt.Errorf("%w: %s has %s %v", ErrTopology, label, param.name, param.value)
		}
	}
	if !(ld.DataRate > 0.0) {
		return fmt.Errorf("%w: %s has zero data rate", ErrTopology, label)
	}
	if ld.ErrorRate > 1.0 {
		return fmt.Errorf("%w: %s has error rate %v above 1", ErrTopology, label, ld.ErrorRate)
	}
	if ld.MTU < 0 {
		return fmt.Errorf("%w: %s has MTU %d", ErrTopology, label, ld.MTU)
	}
	return nil
}

// FlowDesc describes one traffic generator and sink pair.
//   - Mode "bulk" sends MaxBytes (0 for unlimited) over the reliable window transport
//   - Mode "echo" sends MaxPackets packets of PacketSize bytes, one every Interval seconds,
//     each echoed back by the destination
//   - Mode "rate" sends packets of PacketSize bytes at Rate bits per second, with
//     inter-arrival times drawn per FlowModel ("const" or "exp")
type FlowDesc struct {
	Name       string   `json:"name" yaml:"name"`
	Src        int      `json:"src" yaml:"src"`
	Dst        int      `json:"dst" yaml:"dst"`
	Mode       string   `json:"mode" yaml:"mode"`
	StartTime  float64  `json:"starttime" yaml:"starttime"`
	StopTime   float64  `json:"stoptime" yaml:"stoptime"`
	PacketSize int      `json:"packetsize" yaml:"packetsize"`
	MaxPackets int      `json:"maxpackets" yaml:"maxpackets"`
	Interval   float64  `json:"interval" yaml:"interval"`
	Rate       float64  `json:"rate" yaml:"rate"`
	FlowModel  string   `json:"flowmodel" yaml:"flowmodel"`
	MaxBytes   uint64   `json:"maxbytes" yaml:"maxbytes"`
	Groups     []string `json:"groups" yaml:"groups"`
}

// ExpCfg is the configuration record of one experiment run.  The counts
// are interpreted per scenario: NumNodes is the number of star clients,
// csma bus nodes, or wifi stations.
type ExpCfg struct {
	Name       string  `json:"name" yaml:"name"`
	Scenario   string  `json:"scenario" yaml:"scenario"`
	NumNodes   int     `json:"numnodes" yaml:"numnodes"`
	NumFlows   int     `json:"numflows" yaml:"numflows"`
	NumPackets int     `json:"numpackets" yaml:"numpackets"`
	DataRate   float64 `json:"datarate" yaml:"datarate"`
	Delay      float64 `json:"delay" yaml:"delay"`
	ErrorRate  float64 `json:"errorrate" yaml:"errorrate"`
	Transport  string  `json:"transport" yaml:"transport"`
	Duration   float64 `json:"duration" yaml:"duration"`
	Tracing    bool    `json:"tracing" yaml:"tracing"`
	Prefix     string  `json:"prefix" yaml:"prefix"`
	Run        int     `json:"run" yaml:"run"`
	TraceFile  string  `json:"tracefile" yaml:"tracefile"`
}

// scenarioDefaults holds the counts and trace prefix each layout starts from
var scenarioDefaults map[string]ExpCfg = map[string]ExpCfg{
	"star":     {NumNodes: 5, NumFlows: 1, NumPackets: 4, Prefix: "star"},
	"csma":     {NumNodes: 3, NumFlows: 1, NumPackets: 1, Prefix: "csma"},
	"wifi":     {NumNodes: 4, NumFlows: 1, NumPackets: 10, Prefix: "wifi"},
	"dumbbell": {NumNodes: 1, NumFlows: 1, NumPackets: 1, Prefix: "lab2-part1"},
	"twodest":  {NumNodes: 1, NumFlows: 2, NumPackets: 1, Prefix: "lab2-part2"},
}

// DefaultExpCfg returns the configuration used when nothing is overridden.  An
// unknown scenario gets single node, flow and packet counts and is named as its
// own prefix; Validate rejects it.
func DefaultExpCfg(scenario string) *ExpCfg {
	cfg := new(ExpCfg)
	cfg.Name = scenario
	cfg.Scenario = scenario
	cfg.NumNodes = 1
	cfg.NumFlows = 1
	cfg.NumPackets = 1
	cfg.DataRate = 1e6
	cfg.Delay = 0.020
	cfg.ErrorRate = 1e-5
	cfg.Transport = "TcpNewReno"
	cfg.Duration = 20.0
	cfg.Prefix = scenario
	if dflt, present := scenarioDefaults[scenario]; present {
		cfg.NumNodes = dflt.NumNodes
		cfg.NumFlows = dflt.NumFlows
		cfg.NumPackets = dflt.NumPackets
		cfg.Prefix = dflt.Prefix
	}
	return cfg
}

// Validate reports configuration values no scenario can run with
func (cfg *ExpCfg) Validate() error {
	errs := make([]error, 0)
	if !slices.Contains(ScenarioNames(), cfg.Scenario) {
		errs = append(errs, fmt.Errorf("%w: unknown scenario %q", ErrConfiguration, cfg.Scenario))
	}
	for _, param := range []struct {
		name  string
		value float64
	}{{"data rate", cfg.DataRate}, {"delay", cfg.Delay}, {"error rate", cfg.ErrorRate}, {"duration", cfg.Duration}} {
		if math.IsNaN(param.value) || math.IsInf(param.value, 0) || param.value < 0.0 {
			errs = append(errs, fmt.Errorf("%w: %s %v", ErrConfiguration, param.name, param.value))
		}
	}
	if cfg.ErrorRate > 1.0 {
		errs = append(errs, fmt.Errorf("%w: error rate %v above 1", ErrConfiguration, cfg.ErrorRate))
	}
	if _, err := LookupTransport(cfg.Transport); err != nil {
		errs = append(errs, err)
	}
	if cfg.Run < 0 {
		errs = append(errs, fmt.Errorf("%w: run index %d", ErrConfiguration, cfg.Run))
	}
	return ReportErrs(errs)
}

// useYAMLExt tells whether the extension of filename selects yaml (true) or json (false)
func useYAMLExt(filename string) (bool, error) {
	pathExt := path.Ext(filename)
	switch pathExt {
	case ".yaml", ".YAML", ".yml":
		return true, nil
	case ".json", ".JSON":
		return false, nil
	}
	return false, fmt.Errorf("%w: file %s extension %q selects neither json nor yaml", ErrConfiguration, filename, pathExt)
}

// writeDesc serializes desc to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func writeDesc(filename string, desc any) error {
	useYAML, err := useYAMLExt(filename)
	if err != nil {
		return err
	}

	var bytes []byte
	var merr error
	if useYAML {
		bytes, merr = yaml.Marshal(desc)
	} else {
		bytes, merr = json.MarshalIndent(desc, "", "\t")
	}
	if merr != nil {
		return merr
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		return cerr
	}
	_, werr := f.Write(bytes)
	if werr != nil {
		f.Close()
		return werr
	}
	return f.Close()
}

// readDesc deserializes a slice of bytes into desc.  If the input slice
// is empty, the file whose name is given is read.
func readDesc(filename string, useYAML bool, dict []byte, desc any) error {
	var err error

	// read from the file only if the byte slice is empty
	if len(dict) == 0 {
		fileInfo, serr := os.Stat(filename)
		if serr != nil || fileInfo.IsDir() {
			return fmt.Errorf("%w: %s does not exist or cannot be read", ErrConfiguration, filename)
		}
		dict, err = os.ReadFile(filename)
		if err != nil {
			return err
		}
	}

	if useYAML {
		err = yaml.Unmarshal(dict, desc)
	} else {
		err = json.Unmarshal(dict, desc)
	}
	if err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrConfiguration, filename, err)
	}
	return nil
}

// WriteToFile serializes the TopoDesc and writes to the file whose name is given as an input argument.
// Extension of the file name selects whether serialization is to json or to yaml format.
func (td *TopoDesc) WriteToFile(filename string) error {
	return writeDesc(filename, td)
}

// ReadTopoDesc deserializes a slice of bytes into a TopoDesc.  If the input arg of bytes
// is empty, the file whose name is given as an argument is read, and its extension
// selects the decoding.
func ReadTopoDesc(filename string, dict []byte) (*TopoDesc, error) {
	useYAML := true
	if len(dict) == 0 {
		var err error
		if useYAML, err = useYAMLExt(filename); err != nil {
			return nil, err
		}
	}
	td := new(TopoDesc)
	if err := readDesc(filename, useYAML, dict, td); err != nil {
		return nil, err
	}
	if len(td.AddressBase) == 0 {
		td.AddressBase = DefaultAddressBase
	}
	return td, nil
}

// WriteToFile serializes the ExpCfg to the named file, json or yaml by extension
func (cfg *ExpCfg) WriteToFile(filename string) error {
	return writeDesc(filename, cfg)
}

// ReadExpCfg reads an experiment configuration.  Fields the file leaves out take
// the values DefaultExpCfg gives the file's scenario.
func ReadExpCfg(filename string, dict []byte) (*ExpCfg, error) {
	useYAML := true
	if len(dict) == 0 {
		var err error
		if useYAML, err = useYAMLExt(filename); err != nil {
			return nil, err
		}
		fileInfo, serr := os.Stat(filename)
		if serr != nil || fileInfo.IsDir() {
			return nil, fmt.Errorf("%w: %s does not exist or cannot be read", ErrConfiguration, filename)
		}
		if dict, err = os.ReadFile(filename); err != nil {
			return nil, err
		}
	}

	// the scenario has to be known before its defaults can be applied
	named := new(ExpCfg)
	if err := readDesc(filename, useYAML, dict, named); err != nil {
		return nil, err
	}

	cfg := DefaultExpCfg(named.Scenario)
	if err := readDesc(filename, useYAML, dict, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CheckOutputFiles checks the file system to ensure that the directory
// of every argument filename exists, so the file can be written.
func CheckOutputFiles(names []string) (bool, error) {
	errs := make([]error, 0)

	for _, name := range names {
		if len(name) == 0 {
			continue
		}

		// split off the directory portion of the path
		directory, _ := filepath.Split(name)
		if len(directory) == 0 {
			continue
		}
		if _, err := os.Stat(directory); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return true, nil
	}
	return false, ReportErrs(errs)
}

// normalizeTransport strips the simulator namespace some configurations carry
func normalizeTransport(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "ns3::")
}
