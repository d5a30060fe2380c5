package netxp

// trace.go holds two facilities.  The TraceRouter turns the state changes a
// network stack reports for one connection into a time series, written
// through to a sink as "<seconds> <value>" lines.  The TraceManager gathers
// flow lifecycle and loss records of a whole run, stamped in virtual time,
// and writes them out in json or yaml after the run.

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// TraceKey addresses one half of one connection: the node it lives on and
// the connection (socket) index on that node
type TraceKey struct {
	NodeID int
	ConnID int
}

// Context renders the key as the address string a stack that has no typed keys reports
func (key TraceKey) Context(attr string) string {
	return fmt.Sprintf("/NodeList/%d/$ns3::TcpL4Protocol/SocketList/%d/%s", key.NodeID, key.ConnID, attr)
}

// Sample is one point of a trace series
type Sample struct {
	Time  SimTime
	Value uint64
}

// StateChangeEvent is the message a network stack sends when a traced variable
// of a connection changes.  A stack that can only supply a free-text address
// leaves Key zero and fills in Context, from which the key is recovered.
type StateChangeEvent struct {
	Key     TraceKey
	Context string
	Attr    string
	Old     uint64
	New     uint64
	Time    SimTime
}

// ParseContext recovers the key from an address of the form
// /NodeList/<n>/.../SocketList/<s>/...   An address with no SocketList
// segment is a node level notification and has connection id 0.
func ParseContext(cxt string) (TraceKey, error) {
	const nodeSeg = "/NodeList/"
	const sockSeg = "SocketList/"

	if !strings.HasPrefix(cxt, nodeSeg) {
		return TraceKey{}, fmt.Errorf("%w: context %q does not begin with %s", ErrTraceRouting, cxt, nodeSeg)
	}
	nodeID, err := parseCxtID(cxt, cxt[len(nodeSeg):])
	if err != nil {
		return TraceKey{}, err
	}

	s1 := strings.Index(cxt, sockSeg)
	if s1 == -1 {
		return TraceKey{NodeID: nodeID, ConnID: 0}, nil
	}
	connID, err := parseCxtID(cxt, cxt[s1+len(sockSeg):])
	if err != nil {
		return TraceKey{}, err
	}
	return TraceKey{NodeID: nodeID, ConnID: connID}, nil
}

// parseCxtID reads the decimal id at the front of rest, which runs to the next '/' or the end
func parseCxtID(cxt, rest string) (int, error) {
	seg, _, _ := strings.Cut(rest, "/")
	if len(seg) == 0 {
		return 0, fmt.Errorf("%w: context %q has an empty id", ErrTraceRouting, cxt)
	}
	id, err := strconv.ParseUint(seg, 10, 31)
	if err != nil {
		return 0, fmt.Errorf("%w: context %q has id %q that is not a number", ErrTraceRouting, cxt, seg)
	}
	return int(id), nil
}

// formatSimTime prints t with the fewest digits that read back exactly, and at
// least one digit after the decimal point
func formatSimTime(t SimTime) string {
	str := strconv.FormatFloat(float64(t), 'f', -1, 64)
	if !strings.Contains(str, ".") {
		str += ".0"
	}
	return str
}

// traceSink is the state the router keeps for one subscribed key
type traceSink struct {
	wrtr     *bufio.Writer
	closer   io.Closer // non-nil when the router opened the sink
	series   []Sample
	anchored bool // true once the t=0 anchor has been emitted
}

// TraceRouter maps state changes to per-key series.  It is safe to
// subscribe and read series while Serve runs in another goroutine.
type TraceRouter struct {
	mu    sync.Mutex
	sinks map[TraceKey]*traceSink
	attr  string // attribute routed, "" for all
}

// CreateTraceRouter is a constructor.  Only events whose Attr is attr are
// routed; an empty attr routes every attribute.
func CreateTraceRouter(attr string) *TraceRouter {
	tr := new(TraceRouter)
	tr.sinks = make(map[TraceKey]*traceSink)
	tr.attr = attr
	return tr
}

// Subscribe directs the series for key to sink.  Subscribing a key again replaces
// the sink and starts a fresh series, anchor included.
func (tr *TraceRouter) Subscribe(key TraceKey, sink io.Writer) {
	tr.subscribe(key, sink, nil)
}

// SubscribeFile creates (or truncates) the named file and subscribes key to it
func (tr *TraceRouter) SubscribeFile(key TraceKey, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	tr.subscribe(key, f, f)
	return nil
}

func (tr *TraceRouter) subscribe(key TraceKey, sink io.Writer, closer io.Closer) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	old, present := tr.sinks[key]
	if present {
		old.wrtr.Flush()
		if old.closer != nil {
			old.closer.Close()
		}
	}
	tr.sinks[key] = &traceSink{wrtr: bufio.NewWriter(sink), closer: closer, series: make([]Sample, 0)}
}

// Subscribed reports whether key has a sink
func (tr *TraceRouter) Subscribed(key TraceKey) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	_, present := tr.sinks[key]
	return present
}

// Handle routes one event.  Events for keys nobody subscribed are dropped.
func (tr *TraceRouter) Handle(ev StateChangeEvent) error {
	key := ev.Key
	if len(ev.Context) > 0 {
		var err error
		if key, err = ParseContext(ev.Context); err != nil {
			return err
		}
	}
	if len(tr.attr) > 0 && ev.Attr != tr.attr {
		return nil
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	ts, present := tr.sinks[key]
	if !present {
		return nil
	}

	if !ts.anchored {
		ts.anchored = true
		if err := ts.emit(Sample{Time: 0.0, Value: ev.Old}); err != nil {
			return err
		}
	}
	return ts.emit(Sample{Time: ev.Time, Value: ev.New})
}

func (ts *traceSink) emit(smpl Sample) error {
	ts.series = append(ts.series, smpl)
	_, err := ts.wrtr.WriteString(formatSimTime(smpl.Time) + " " + strconv.FormatUint(smpl.Value, 10) + "\n")
	return err
}

// Serve routes events until the channel is closed.  Routing stops at the first
// failure, or when ctx ends; events after that are read and discarded, so a sender
// is never left blocked.  The failure (or the context's error) is returned once
// the channel closes.
func (tr *TraceRouter) Serve(ctx context.Context, events <-chan StateChangeEvent) error {
	var failure error
	done := ctx.Done()
	for {
		select {
		case <-done:
			if failure == nil {
				failure = ctx.Err()
			}
			// stop watching the context and just drain
			done = nil
		case ev, ok := <-events:
			if !ok {
				if ferr := tr.Flush(); failure == nil {
					failure = ferr
				}
				return failure
			}
			if failure != nil {
				continue
			}
			failure = tr.Handle(ev)
		}
	}
}

// Series returns a copy of the samples routed to key so far
func (tr *TraceRouter) Series(key TraceKey) []Sample {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	ts, present := tr.sinks[key]
	if !present {
		return nil
	}
	series := make([]Sample, len(ts.series))
	copy(series, ts.series)
	return series
}

// Flush pushes buffered lines to every sink
func (tr *TraceRouter) Flush() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	errs := make([]error, 0)
	for _, ts := range tr.sinks {
		errs = append(errs, ts.wrtr.Flush())
	}
	return ReportErrs(errs)
}

// Close flushes every sink and closes the files the router opened
func (tr *TraceRouter) Close() error {
	errs := []error{tr.Flush()}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, ts := range tr.sinks {
		if ts.closer != nil {
			errs = append(errs, ts.closer.Close())
			ts.closer = nil
		}
	}
	return ReportErrs(errs)
}

// TraceInst is one stored trace record
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is a an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers information about an experiment and the execution of it.
// Records are kept per flow.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, by flow id
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a trace record under the given flow
func (tm *TraceManager) AddTrace(vrt vrtime.Time, flowID int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	tm.Traces[flowID] = append(tm.Traces[flowID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) error {
	if !tm.Active() {
		return nil
	}
	if _, present := tm.NameByID[id]; present {
		return fmt.Errorf("%w: duplicated id %d in trace names", ErrConfiguration, id)
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	return nil
}

// WriteToFile stores the TraceManager to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
// Nothing is written by an inactive manager.
func (tm *TraceManager) WriteToFile(filename string) (bool, error) {
	if !tm.Active() {
		return false, nil
	}
	pathExt := path.Ext(filename)
	if pathExt != ".yaml" && pathExt != ".YAML" && pathExt != ".yml" && pathExt != ".json" && pathExt != ".JSON" {
		return false, fmt.Errorf("%w: trace file %s extension %q selects neither json nor yaml", ErrConfiguration, filename, pathExt)
	}
	if err := writeDesc(filename, tm); err != nil {
		return false, err
	}
	return true, nil
}

// FlowTrace saves information about one event in the life of a flow,
// kept for post-run analysis
type FlowTrace struct {
	Time     float64 `json:"time" yaml:"time"`         // time in float64
	Ticks    int64   `json:"ticks" yaml:"ticks"`       // ticks variable of time
	Priority int64   `json:"priority" yaml:"priority"` // priority field of time-stamp
	FlowID   int     `json:"flowid" yaml:"flowid"`
	NodeID   int     `json:"nodeid" yaml:"nodeid"` // node where the event happened
	ConnID   int     `json:"connid" yaml:"connid"`
	Op       string  `json:"op" yaml:"op"` // "start", "stop", "loss", "drop", "cwnd"
	Bytes    int     `json:"bytes" yaml:"bytes"`
	Value    uint64  `json:"value" yaml:"value"`
}

// Serialize renders the record as yaml
func (ftr *FlowTrace) Serialize() (string, error) {
	bytes, merr := yaml.Marshal(*ftr)
	if merr != nil {
		return "", merr
	}
	return string(bytes), nil
}

// AddFlowTrace records an event of a flow at virtual time vrt
func AddFlowTrace(tm *TraceManager, vrt vrtime.Time, flow *Flow, nodeID int, op string, bytes int, value uint64) {
	if !tm.Active() {
		return
	}
	ftr := new(FlowTrace)
	ftr.Time = vrt.Seconds()
	ftr.Ticks = vrt.Ticks()
	ftr.Priority = vrt.Pri()
	ftr.FlowID = int(flow.ID)
	ftr.NodeID = nodeID
	ftr.ConnID = flow.Key.ConnID
	ftr.Op = op
	ftr.Bytes = bytes
	ftr.Value = value

	ftrStr, err := ftr.Serialize()
	if err != nil {
		ftrStr = fmt.Sprintf("%+v", *ftr)
	}
	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)

	trcInst := TraceInst{TraceTime: traceTime, TraceType: "flow", TraceStr: ftrStr}
	tm.AddTrace(vrt, ftr.FlowID, trcInst)
}

// traceStamp stamps a record made by the running event.  The count of events fired
// orders records made at the same time.
func traceStamp(evq *EventQueue) vrtime.Time {
	return vrtime.CreateTime(vrtime.SecondsToTicks(evq.CurrentSeconds()), int64(evq.Fired()))
}

// FlowTraces decodes the records stored for one flow
func (tm *TraceManager) FlowTraces(flowID int) ([]FlowTrace, error) {
	rtn := make([]FlowTrace, 0)
	for _, trc := range tm.Traces[flowID] {
		var ftr FlowTrace
		if err := yaml.Unmarshal([]byte(trc.TraceStr), &ftr); err != nil {
			return nil, err
		}
		rtn = append(rtn, ftr)
	}
	return rtn, nil
}

// String gives the manager as compact json
func (tm *TraceManager) String() string {
	bytes, err := json.Marshal(tm)
	if err != nil {
		return tm.ExpName
	}
	return string(bytes)
}
