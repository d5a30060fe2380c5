package netxp

import (
	"fmt"
	"log"
	"math"

	"golang.org/x/exp/slices"
)

// FlowID identifies a flow within one experiment.  Ids are given out
// sequentially from 0 in attach order.
type FlowID int

// AllFlowsGroup is the group name every flow belongs to
const AllFlowsGroup string = "Flow"

// Flow is one traffic generator and sink pair, as attached by the Builder
type Flow struct {
	ID         FlowID
	Name       string
	Src        *Node
	Dst        *Node
	Key        TraceKey // addressing of the source half of the connection
	Mode       string
	StartTime  SimTime
	StopTime   SimTime
	PacketSize int
	MaxPackets int
	Interval   float64
	Rate       float64
	FlowModel  string
	MaxBytes   uint64
	Groups     []string
}

// InGroup reports whether the flow is counted in the named group
func (flow *Flow) InGroup(group string) bool {
	return group == AllFlowsGroup || slices.Contains(flow.Groups, group)
}

// matchParam tells whether the flow has the attribute value given
func (flow *Flow) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return flow.Name == attrbValue
	case "group":
		return flow.InGroup(attrbValue)
	case "srcdev":
		return flow.Src.Name == attrbValue
	case "dstdev":
		return flow.Dst.Name == attrbValue
	case "mode":
		return flow.Mode == attrbValue
	}
	return false
}

// Builder attaches flows to a built topology and schedules their start and stop
// events.  Failures raised by the network stack while a start event runs are
// kept and reported by Err.
type Builder struct {
	topo   *Topology
	evq    *EventQueue
	stack  NetworkStack
	flows  []*Flow
	errs   []error
	logger *log.Logger
}

// CreateBuilder is a constructor
func CreateBuilder(topo *Topology, evq *EventQueue, stack NetworkStack, logger *log.Logger) *Builder {
	bldr := new(Builder)
	bldr.topo = topo
	bldr.evq = evq
	bldr.stack = stack
	bldr.flows = make([]*Flow, 0)
	bldr.errs = make([]error, 0)
	bldr.logger = logger
	if bldr.logger == nil {
		bldr.logger = discardLogger()
	}
	return bldr
}

// Flows returns the attached flows, indexed by FlowID
func (bldr *Builder) Flows() []*Flow {
	return bldr.flows
}

// SelectFlows returns the flows whose attribute has the value given
func (bldr *Builder) SelectFlows(attrbName, attrbValue string) []*Flow {
	selected := make([]*Flow, 0)
	for _, flow := range bldr.flows {
		if flow.matchParam(attrbName, attrbValue) {
			selected = append(selected, flow)
		}
	}
	return selected
}

// Err returns the failures recorded while flow events ran, folded into one error
func (bldr *Builder) Err() error {
	return ReportErrs(bldr.errs)
}

// AttachFlow creates a flow from fd, gives it the next FlowID and a connection id
// on its source node, and schedules its start and stop events.
func (bldr *Builder) AttachFlow(fd FlowDesc) (*Flow, error) {
	nodes := len(bldr.topo.Nodes)
	if fd.Src < 0 || fd.Src >= nodes || fd.Dst < 0 || fd.Dst >= nodes {
		return nil, fmt.Errorf("%w: flow %q from node %d to node %d, topology has %d nodes",
			ErrTopology, fd.Name, fd.Src, fd.Dst, nodes)
	}
	if fd.Src == fd.Dst {
		return nil, fmt.Errorf("%w: flow %q has node %d as both source and destination", ErrConfiguration, fd.Name, fd.Src)
	}

	for _, t := range []float64{fd.StartTime, fd.StopTime} {
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0.0 {
			return nil, fmt.Errorf("%w: flow %q has time %v", ErrConfiguration, fd.Name, t)
		}
	}
	if fd.StartTime > fd.StopTime {
		return nil, fmt.Errorf("%w: flow %q starts at %v after it stops at %v", ErrConfiguration, fd.Name, fd.StartTime, fd.StopTime)
	}
	if fd.StartTime < bldr.evq.CurrentSeconds() {
		return nil, fmt.Errorf("%w: flow %q starts at %v, clock is at %v", ErrInvalidTime, fd.Name, fd.StartTime, bldr.evq.CurrentSeconds())
	}

	if err := fillFlowDefaults(&fd); err != nil {
		return nil, err
	}

	src := bldr.topo.Nodes[fd.Src]
	flow := &Flow{ID: FlowID(len(bldr.flows)), Name: fd.Name, Src: src, Dst: bldr.topo.Nodes[fd.Dst],
		Mode: fd.Mode, StartTime: SimTime(fd.StartTime), StopTime: SimTime(fd.StopTime),
		PacketSize: fd.PacketSize, MaxPackets: fd.MaxPackets, Interval: fd.Interval,
		Rate: fd.Rate, FlowModel: fd.FlowModel, MaxBytes: fd.MaxBytes}
	flow.Groups = make([]string, len(fd.Groups))
	copy(flow.Groups, fd.Groups)
	if len(flow.Name) == 0 {
		flow.Name = fmt.Sprintf("flow%d", flow.ID)
	}

	// sockets are numbered per node in the order flows claim them
	flow.Key = TraceKey{NodeID: src.ID, ConnID: src.nxtConnID}

	if _, err := bldr.evq.ScheduleAt(flow.StartTime, bldr, flow, startFlow); err != nil {
		return nil, err
	}
	if _, err := bldr.evq.ScheduleAt(flow.StopTime, bldr, flow, stopFlow); err != nil {
		return nil, err
	}

	src.nxtConnID += 1
	src.Flows = append(src.Flows, flow.ID)
	bldr.flows = append(bldr.flows, flow)
	bldr.logger.Printf("attached %s %s %s->%s [%v,%v)", flow.Name, flow.Mode, flow.Src.Name, flow.Dst.Name,
		fd.StartTime, fd.StopTime)

	return flow, nil
}

// fillFlowDefaults checks the mode dependent fields of fd and fills in the ones left zero
func fillFlowDefaults(fd *FlowDesc) error {
	if !slices.Contains(FlowModes, fd.Mode) {
		return fmt.Errorf("%w: flow %q has unknown mode %q", ErrConfiguration, fd.Name, fd.Mode)
	}
	if fd.PacketSize < 0 || fd.MaxPackets < 0 {
		return fmt.Errorf("%w: flow %q has negative packet parameters", ErrConfiguration, fd.Name)
	}
	if math.IsNaN(fd.Interval) || math.IsInf(fd.Interval, 0) || fd.Interval < 0.0 {
		return fmt.Errorf("%w: flow %q has interval %v", ErrConfiguration, fd.Name, fd.Interval)
	}

	switch fd.Mode {
	case "echo":
		if fd.PacketSize == 0 {
			fd.PacketSize = 1024
		}
		if fd.MaxPackets == 0 {
			fd.MaxPackets = 1
		}
		if fd.Interval == 0.0 {
			fd.Interval = 1.0
		}
	case "rate":
		if fd.PacketSize == 0 {
			fd.PacketSize = 1024
		}
		if math.IsNaN(fd.Rate) || math.IsInf(fd.Rate, 0) || !(fd.Rate > 0.0) {
			return fmt.Errorf("%w: rate flow %q has rate %v", ErrConfiguration, fd.Name, fd.Rate)
		}
		if len(fd.FlowModel) == 0 {
			fd.FlowModel = "const"
		}
		if _, present := interarrivalDists[fd.FlowModel]; !present {
			return fmt.Errorf("%w: rate flow %q has unknown flow model %q", ErrConfiguration, fd.Name, fd.FlowModel)
		}
	}
	return nil
}

// startFlow is the handler of a flow's start event.  context is the Builder, data the Flow
func startFlow(evq *EventQueue, context any, data any) {
	bldr := context.(*Builder)
	flow := data.(*Flow)

	bldr.logger.Printf("%.6f start %s", evq.CurrentSeconds(), flow.Name)
	if err := bldr.stack.SendTraffic(evq, flow); err != nil {
		bldr.errs = append(bldr.errs, fmt.Errorf("flow %s: %w", flow.Name, err))
	}
}

// stopFlow is the handler of a flow's stop event
func stopFlow(evq *EventQueue, context any, data any) {
	bldr := context.(*Builder)
	flow := data.(*Flow)

	bldr.logger.Printf("%.6f stop %s", evq.CurrentSeconds(), flow.Name)
	bldr.stack.StopTraffic(evq, flow)
}

// ClampCount coerces n into [lo, hi]: counts below lo become lo and counts above hi become hi
func ClampCount(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// ActiveWindow returns the measurement window shared by every flow of a run: stopTime
// less the earliest flow start.  Flows that start late are measured over the same window.
func ActiveWindow(flows []*Flow, stopTime SimTime) float64 {
	if len(flows) == 0 {
		return 0.0
	}
	first := flows[0].StartTime
	for _, flow := range flows[1:] {
		if flow.StartTime < first {
			first = flow.StartTime
		}
	}
	return float64(stopTime - first)
}

// Results reads every flow's received byte count from the stack
func (bldr *Builder) Results() []FlowResult {
	results := make([]FlowResult, 0, len(bldr.flows))
	for _, flow := range bldr.flows {
		res := FlowResult{FlowID: flow.ID, Name: flow.Name, BytesReceived: bldr.stack.ReceivedBytes(flow.ID)}
		res.Groups = make([]string, len(flow.Groups))
		copy(res.Groups, flow.Groups)
		results = append(results, res)
	}
	return results
}
