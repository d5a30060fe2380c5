package netxp

// net.go holds the interface through which the harness drives a network
// stack, and SimStack, the stack the harness ships with.  SimStack moves
// packets hop by hop over store-and-forward links, drops them at full
// transmit queues and through each link's byte error model, and carries
// three kinds of traffic: a reliable window transport for bulk flows,
// UDP echo, and open-loop UDP sources.

import (
	"fmt"
	"log"
	"math"

	"github.com/iti/rngstream"
)

// LinkHandle is the identity a network stack gives a link
type LinkHandle int

// EndpointHandle is the identity a network stack gives a node's attachment to a link
type EndpointHandle int

// NetworkStack is what the harness needs from a network simulation.  SendTraffic
// and StopTraffic are called from a flow's start and stop events.
type NetworkStack interface {
	CreateLink(lnk *Link) (LinkHandle, error)
	CreateEndpoint(node *Node, lnk *Link) (EndpointHandle, error)
	SendTraffic(evq *EventQueue, flow *Flow) error
	StopTraffic(evq *EventQueue, flow *Flow)
	SubscribeStateChange(key TraceKey, events chan<- StateChangeEvent) error
	ReceivedBytes(id FlowID) uint64
}

// CwndAttr names the congestion window in state change events
const CwndAttr string = "CongestionWindow"

// header sizes, in bytes, of the transports
const (
	tcpIPHeader int = 52 // 20 byte IP header and 32 byte TCP header with timestamps
	udpIPHeader int = 28
	ackLen      int = tcpIPHeader
)

// limits of the transmit queues and the retransmission timer
const (
	txQueueLimit int     = 100
	initCwndSegs int     = 10
	initRTO      float64 = 1.0
	minRTO       float64 = 0.2
	maxRTO       float64 = 60.0
	dupAckThresh int     = 3
)

// Transport describes how a reliable window transport grows and cuts its window
type Transport struct {
	Name string

	// Beta is the factor the window is multiplied by on loss
	Beta float64

	// increase returns the window growth, in bytes, for one ACK in congestion avoidance
	increase func(cwnd, mss float64) float64
}

func renoIncrease(cwnd, mss float64) float64 {
	return mss * mss / cwnd
}

func scalableIncrease(cwnd, mss float64) float64 {
	return 0.01 * mss
}

var transports map[string]*Transport = map[string]*Transport{
	"TcpNewReno":   {Name: "TcpNewReno", Beta: 0.5, increase: renoIncrease},
	"TcpLinuxReno": {Name: "TcpLinuxReno", Beta: 0.5, increase: renoIncrease},
	"TcpScalable":  {Name: "TcpScalable", Beta: 0.875, increase: scalableIncrease},
}

// LookupTransport returns the transport with the given identifier.  The identifier may
// carry the "ns3::" namespace.
func LookupTransport(name string) (*Transport, error) {
	tp, present := transports[normalizeTransport(name)]
	if !present {
		return nil, fmt.Errorf("%w: transport %q not found", ErrConfiguration, name)
	}
	return tp, nil
}

type networkMsgType int

const (
	dataSeg networkMsgType = iota
	ackSeg
	echoReq
	echoRep
	dgram
)

var nmtToStr map[networkMsgType]string = map[networkMsgType]string{dataSeg: "data", ackSeg: "ack",
	echoReq: "echo-request", echoRep: "echo-reply", dgram: "datagram"}

// networkMsg is one packet in flight
type networkMsg struct {
	msgType networkMsgType
	flow    *flowState
	msgLen  int    // bytes on the wire
	payload int    // application bytes carried
	seq     uint64 // first byte carried by a data segment, cumulative ack of an ack
	route   []routeStep
	hop     int // index in route of the hop being taken
	from    int // id of the node transmitting on the current hop
}

// txState is a transmitter: one direction of a point-to-point link, or a whole shared medium
type txState struct {
	lnk   *Link
	busy  bool
	queue []*networkMsg
}

// linkState is the stack's view of one link
type linkState struct {
	lnk *Link
	tx  map[int]*txState // by transmitting node id; shared media have one, under key -1
}

func (ls *linkState) transmitter(nodeID int) *txState {
	if ls.lnk.Shared() {
		nodeID = -1
	}
	tx, present := ls.tx[nodeID]
	if !present {
		tx = &txState{lnk: ls.lnk, queue: make([]*networkMsg, 0)}
		ls.tx[nodeID] = tx
	}
	return tx
}

// flowState is everything the stack knows about a started flow
type flowState struct {
	flow   *Flow
	active bool
	fwd    []routeStep // src to dst
	rev    []routeStep // dst to src
	rcvd   uint64      // application bytes delivered to the sink
	echoed uint64      // bytes of echo replies back at the client
	sent   int         // packets sent by echo and rate sources
	source *pcktSource
	bulk   *bulkState
}

// bulkState is the sender and receiver state of a reliable window flow
type bulkState struct {
	mss      int
	cwnd     float64
	ssthresh float64
	limit    uint64 // bytes to send, math.MaxUint64 when unlimited

	nxtSeq  uint64 // next byte to send
	sndUna  uint64 // lowest unacknowledged byte
	highSeq uint64 // highest nxtSeq reached

	dupAcks    int
	inRecovery bool
	recover    uint64 // window cuts are allowed again once sndUna reaches this

	sendTimes map[uint64]SimTime // by end sequence, first transmissions only
	srtt      float64
	rto       float64
	rtoGen    int

	rcvNxt     uint64         // receiver: next byte expected in order
	outOfOrder map[uint64]int // receiver: segments above rcvNxt, by first byte
}

// StackStats counts what happened to packets over a run
type StackStats struct {
	Sent        int // packets handed to a first hop
	Delivered   int // packets that reached their destination
	Dropped     int // packets refused by full transmit queues
	Corrupted   int // packets lost to link error models
	Retransmits int // segments sent again by bulk flows
	Timeouts    int // retransmission timer expirations
}

// SimStack is a NetworkStack run on the harness's own EventQueue.  It is not safe
// for concurrent use; all of its work happens in event handlers.
type SimStack struct {
	transport *Transport
	links     map[LinkHandle]*linkState
	nodes     map[int]*Node
	endpts    []*Endpoint
	routes    *routeTable
	flows     map[FlowID]*flowState
	subs      map[TraceKey][]chan<- StateChangeEvent
	rngstrm   *rngstream.RngStream
	tm        *TraceManager
	logger    *log.Logger
	stats     StackStats
	errs      []error
}

// CreateSimStack is a constructor.  transport names the window transport bulk flows
// use.  A nil rngstrm gets a stream of its own; a nil tm or logger disables that output.
func CreateSimStack(transport string, rngstrm *rngstream.RngStream, tm *TraceManager, logger *log.Logger) (*SimStack, error) {
	tp, err := LookupTransport(transport)
	if err != nil {
		return nil, err
	}

	ss := new(SimStack)
	ss.transport = tp
	ss.links = make(map[LinkHandle]*linkState)
	ss.nodes = make(map[int]*Node)
	ss.endpts = make([]*Endpoint, 0)
	ss.routes = createRouteTable()
	ss.flows = make(map[FlowID]*flowState)
	ss.subs = make(map[TraceKey][]chan<- StateChangeEvent)
	ss.rngstrm = rngstrm
	if ss.rngstrm == nil {
		ss.rngstrm = rngstream.New("simstack")
	}
	ss.tm = tm
	ss.logger = logger
	if ss.logger == nil {
		ss.logger = discardLogger()
	}
	ss.errs = make([]error, 0)
	return ss, nil
}

// Transport returns the window transport bulk flows use
func (ss *SimStack) Transport() *Transport {
	return ss.transport
}

// Stats returns the packet counts so far
func (ss *SimStack) Stats() StackStats {
	return ss.stats
}

// Err returns the failures recorded inside event handlers
func (ss *SimStack) Err() error {
	return ReportErrs(ss.errs)
}

// CreateLink registers the link and joins its endpoints in the routing graph
func (ss *SimStack) CreateLink(lnk *Link) (LinkHandle, error) {
	if lnk == nil || len(lnk.Endpts) < 2 {
		return -1, fmt.Errorf("%w: link with fewer than two endpoints", ErrTopology)
	}
	handle := LinkHandle(len(ss.links))
	ss.links[handle] = &linkState{lnk: lnk, tx: make(map[int]*txState)}
	ss.routes.addLink(lnk)
	return handle, nil
}

// CreateEndpoint registers the node's attachment to lnk
func (ss *SimStack) CreateEndpoint(node *Node, lnk *Link) (EndpointHandle, error) {
	if _, present := ss.links[lnk.handle]; !present || ss.links[lnk.handle].lnk != lnk {
		return -1, fmt.Errorf("%w: endpoint of node %s on link %s the stack never created", ErrTopology, node.Name, lnk.Name)
	}
	var ep *Endpoint
	for _, candidate := range lnk.Endpts {
		if candidate.Node == node {
			ep = candidate
		}
	}
	if ep == nil {
		return -1, fmt.Errorf("%w: node %s is not attached to link %s", ErrTopology, node.Name, lnk.Name)
	}
	ss.nodes[node.ID] = node
	ss.endpts = append(ss.endpts, ep)
	return EndpointHandle(len(ss.endpts) - 1), nil
}

// SubscribeStateChange sends the state changes of the connection key to events.
// A key may have several subscribers.
func (ss *SimStack) SubscribeStateChange(key TraceKey, events chan<- StateChangeEvent) error {
	if events == nil {
		return fmt.Errorf("%w: nil state change channel", ErrConfiguration)
	}
	if _, present := ss.nodes[key.NodeID]; !present {
		return fmt.Errorf("%w: state change subscription for unknown node %d", ErrConfiguration, key.NodeID)
	}
	ss.subs[key] = append(ss.subs[key], events)
	return nil
}

// ReceivedBytes returns the application bytes the sink of the flow received.
// Flows that never started received nothing.
func (ss *SimStack) ReceivedBytes(id FlowID) uint64 {
	fs, present := ss.flows[id]
	if !present {
		return 0
	}
	return fs.rcvd
}

// EchoedBytes returns the bytes of echo replies that made it back to the client
func (ss *SimStack) EchoedBytes(id FlowID) uint64 {
	fs, present := ss.flows[id]
	if !present {
		return 0
	}
	return fs.echoed
}

// SendTraffic starts the flow's traffic at the current time
func (ss *SimStack) SendTraffic(evq *EventQueue, flow *Flow) error {
	if _, present := ss.flows[flow.ID]; present {
		return fmt.Errorf("%w: flow %s started twice", ErrConfiguration, flow.Name)
	}
	fwd, err := ss.routes.findRoute(flow.Src.ID, flow.Dst.ID)
	if err != nil {
		return err
	}
	rev, err := ss.routes.findRoute(flow.Dst.ID, flow.Src.ID)
	if err != nil {
		return err
	}

	fs := &flowState{flow: flow, active: true, fwd: fwd, rev: rev}
	ss.flows[flow.ID] = fs
	// a manager shared with an earlier stack may already hold the id
	if err := ss.tm.AddName(int(flow.ID), flow.Name, "flow"); err != nil {
		ss.errs = append(ss.errs, err)
	}
	AddFlowTrace(ss.tm, traceStamp(evq), flow, flow.Src.ID, "start", 0, 0)
	ss.logger.Printf("%.6f %s route %s", evq.CurrentSeconds(), flow.Name, showRoute(ss.topoView(), flow.Src.ID, fwd))

	switch flow.Mode {
	case "bulk":
		mss := minMTU(fwd) - tcpIPHeader
		if mss <= 0 {
			return fmt.Errorf("%w: flow %s route MTU %d leaves no room for a segment", ErrConfiguration, flow.Name, minMTU(fwd))
		}
		bs := &bulkState{mss: mss, ssthresh: math.Inf(1), rto: initRTO,
			sendTimes: make(map[uint64]SimTime), outOfOrder: make(map[uint64]int)}
		bs.cwnd = float64(initCwndSegs * mss)
		bs.limit = flow.MaxBytes
		if bs.limit == 0 {
			bs.limit = math.MaxUint64
		}
		fs.bulk = bs
		ss.trySend(evq, fs)

	case "echo":
		ss.sendEcho(evq, fs)

	case "rate":
		fs.source = createPcktSource(flow.Rate, flow.PacketSize, flow.FlowModel, ss.rngstrm)
		ss.sendDatagram(evq, fs)

	default:
		return fmt.Errorf("%w: flow %s has unknown mode %q", ErrConfiguration, flow.Name, flow.Mode)
	}
	return nil
}

// StopTraffic ends the generation of new packets by the flow.  Packets in flight
// still arrive.
func (ss *SimStack) StopTraffic(evq *EventQueue, flow *Flow) {
	fs, present := ss.flows[flow.ID]
	if !present || !fs.active {
		return
	}
	fs.active = false
	AddFlowTrace(ss.tm, traceStamp(evq), flow, flow.Src.ID, "stop", 0, fs.rcvd)
}

// topoView gathers the registered nodes into a Topology for printing routes
func (ss *SimStack) topoView() *Topology {
	topo := &Topology{Nodes: make([]*Node, 0, len(ss.nodes))}
	for idx := 0; idx < len(ss.nodes); idx++ {
		node, present := ss.nodes[idx]
		if !present {
			node = &Node{ID: idx, Name: fmt.Sprintf("n%d", idx)}
		}
		topo.Nodes = append(topo.Nodes, node)
	}
	return topo
}

// minMTU is the smallest MTU of the links on a route
func minMTU(route []routeStep) int {
	mtu := math.MaxInt
	for _, step := range route {
		if step.lnk.MTU < mtu {
			mtu = step.lnk.MTU
		}
	}
	return mtu
}

// schedule places an event, keeping any failure for Err
func (ss *SimStack) schedule(evq *EventQueue, context any, data any, hdlr EventHandler, offset float64) {
	if _, err := evq.Schedule(context, data, hdlr, offset); err != nil {
		ss.errs = append(ss.errs, err)
	}
}

// sendEcho is the handler that emits one echo request and schedules the next
func (ss *SimStack) sendEcho(evq *EventQueue, fs *flowState) {
	flow := fs.flow
	if !fs.active || fs.sent >= flow.MaxPackets {
		return
	}
	fs.sent += 1
	ss.launch(evq, &networkMsg{msgType: echoReq, flow: fs, msgLen: flow.PacketSize + udpIPHeader,
		payload: flow.PacketSize, route: fs.fwd, from: flow.Src.ID})

	if fs.sent < flow.MaxPackets {
		ss.schedule(evq, ss, fs, nxtEcho, flow.Interval)
	}
}

func nxtEcho(evq *EventQueue, context any, data any) {
	context.(*SimStack).sendEcho(evq, data.(*flowState))
}

// sendDatagram is the handler that emits one packet of a rate flow and schedules the next
func (ss *SimStack) sendDatagram(evq *EventQueue, fs *flowState) {
	if !fs.active {
		return
	}
	flow := fs.flow
	fs.sent += 1
	ss.launch(evq, &networkMsg{msgType: dgram, flow: fs, msgLen: flow.PacketSize + udpIPHeader,
		payload: flow.PacketSize, route: fs.fwd, from: flow.Src.ID})
	ss.schedule(evq, ss, fs, nxtDatagram, fs.source.nxtInterarrival())
}

func nxtDatagram(evq *EventQueue, context any, data any) {
	context.(*SimStack).sendDatagram(evq, data.(*flowState))
}

// launch hands a packet to the first hop of its route
func (ss *SimStack) launch(evq *EventQueue, nm *networkMsg) {
	nm.hop = 0
	ss.stats.Sent += 1
	ss.forward(evq, nm)
}

// forward queues the packet at the transmitter of its current hop
func (ss *SimStack) forward(evq *EventQueue, nm *networkMsg) {
	lnk := nm.route[nm.hop].lnk
	tx := ss.links[lnk.handle].transmitter(nm.from)

	if !tx.busy {
		ss.startTx(evq, tx, nm)
		return
	}

	// acks are never refused
	if len(tx.queue) >= txQueueLimit && nm.msgType != ackSeg {
		ss.stats.Dropped += 1
		ss.logger.Printf("%.6f %s drops %s of %s", evq.CurrentSeconds(), lnk.Name, nmtToStr[nm.msgType], nm.flow.flow.Name)
		AddFlowTrace(ss.tm, traceStamp(evq), nm.flow.flow, nm.from, "drop", nm.msgLen, nm.seq)
		return
	}
	tx.queue = append(tx.queue, nm)
}

// startTx puts the packet on the wire; it leaves the transmitter after its serialization time
func (ss *SimStack) startTx(evq *EventQueue, tx *txState, nm *networkMsg) {
	tx.busy = true
	txTime := float64(8*nm.msgLen) / tx.lnk.DataRate
	ss.schedule(evq, tx, nm, ss.txDone, txTime)
}

// txDone is the handler called when a packet has been serialized.  It reaches the
// far end after the propagation delay; the transmitter moves to its next packet.
func (ss *SimStack) txDone(evq *EventQueue, context any, data any) {
	tx := context.(*txState)
	nm := data.(*networkMsg)

	ss.schedule(evq, ss, nm, pcktArrive, tx.lnk.Delay)

	if len(tx.queue) > 0 {
		var nxt *networkMsg
		nxt, tx.queue = tx.queue[0], tx.queue[1:]
		ss.startTx(evq, tx, nxt)
		return
	}
	tx.busy = false
}

// pcktArrive is the handler called when a packet reaches the far end of a hop.  The
// receiving end's error model may discard it; otherwise it is delivered or sent on.
func pcktArrive(evq *EventQueue, context any, data any) {
	ss := context.(*SimStack)
	nm := data.(*networkMsg)
	step := nm.route[nm.hop]

	if nm.msgType != ackSeg && step.lnk.ErrorRate > 0.0 {
		if ss.rngstrm.RandU01() < lossProb(step.lnk.ErrorRate, nm.msgLen) {
			ss.stats.Corrupted += 1
			AddFlowTrace(ss.tm, traceStamp(evq), nm.flow.flow, step.nodeID, "loss", nm.msgLen, nm.seq)
			return
		}
	}

	nm.hop += 1
	nm.from = step.nodeID
	if nm.hop < len(nm.route) {
		ss.forward(evq, nm)
		return
	}
	ss.stats.Delivered += 1
	ss.deliver(evq, nm)
}

// deliver hands a packet to the transport at its destination
func (ss *SimStack) deliver(evq *EventQueue, nm *networkMsg) {
	fs := nm.flow
	switch nm.msgType {
	case echoReq:
		fs.rcvd += uint64(nm.payload)
		ss.launch(evq, &networkMsg{msgType: echoRep, flow: fs, msgLen: nm.msgLen, payload: nm.payload,
			route: fs.rev, from: fs.flow.Dst.ID})
	case echoRep:
		fs.echoed += uint64(nm.payload)
	case dgram:
		fs.rcvd += uint64(nm.payload)
	case dataSeg:
		ss.rcvSegment(evq, fs, nm)
	case ackSeg:
		ss.rcvAck(evq, fs, nm.seq)
	}
}

// rcvSegment is the receiver side of a bulk flow: accept the segment and acknowledge
// everything received in order
func (ss *SimStack) rcvSegment(evq *EventQueue, fs *flowState, nm *networkMsg) {
	bs := fs.bulk
	switch {
	case nm.seq == bs.rcvNxt:
		bs.rcvNxt += uint64(nm.payload)
		for {
			segLen, present := bs.outOfOrder[bs.rcvNxt]
			if !present {
				break
			}
			delete(bs.outOfOrder, bs.rcvNxt)
			bs.rcvNxt += uint64(segLen)
		}
	case nm.seq > bs.rcvNxt:
		bs.outOfOrder[nm.seq] = nm.payload
	}
	fs.rcvd = bs.rcvNxt

	ss.launch(evq, &networkMsg{msgType: ackSeg, flow: fs, msgLen: ackLen, seq: bs.rcvNxt,
		route: fs.rev, from: fs.flow.Dst.ID})
}

// segLen is the length of the segment that starts at seq
func (bs *bulkState) segLen(seq uint64) int {
	remaining := bs.limit - seq
	if remaining < uint64(bs.mss) {
		return int(remaining)
	}
	return bs.mss
}

// trySend sends new segments while the window allows
func (ss *SimStack) trySend(evq *EventQueue, fs *flowState) {
	bs := fs.bulk
	if !fs.active {
		return
	}
	armed := bs.sndUna < bs.nxtSeq
	for bs.nxtSeq < bs.limit && float64(bs.nxtSeq-bs.sndUna) < bs.cwnd {
		segLen := bs.segLen(bs.nxtSeq)
		if float64(bs.nxtSeq-bs.sndUna)+float64(segLen) > bs.cwnd && bs.nxtSeq > bs.sndUna {
			break
		}
		end := bs.nxtSeq + uint64(segLen)
		if end > bs.highSeq {
			// only first transmissions are timed
			bs.sendTimes[end] = evq.CurrentTime()
			bs.highSeq = end
		}
		ss.sendSegment(evq, fs, bs.nxtSeq, segLen)
		bs.nxtSeq = end
	}
	if !armed && bs.sndUna < bs.nxtSeq {
		ss.armRTO(evq, fs)
	}
}

func (ss *SimStack) sendSegment(evq *EventQueue, fs *flowState, seq uint64, segLen int) {
	ss.launch(evq, &networkMsg{msgType: dataSeg, flow: fs, msgLen: segLen + tcpIPHeader, payload: segLen,
		seq: seq, route: fs.fwd, from: fs.flow.Src.ID})
}

// retransmit sends again the segment at sndUna
func (ss *SimStack) retransmit(evq *EventQueue, fs *flowState) {
	bs := fs.bulk
	if !fs.active || bs.sndUna >= bs.limit {
		return
	}
	segLen := bs.segLen(bs.sndUna)
	delete(bs.sendTimes, bs.sndUna+uint64(segLen))
	ss.stats.Retransmits += 1
	ss.sendSegment(evq, fs, bs.sndUna, segLen)
}

// rcvAck is the sender side of a bulk flow
func (ss *SimStack) rcvAck(evq *EventQueue, fs *flowState, ack uint64) {
	bs := fs.bulk
	mss := float64(bs.mss)

	if ack > bs.sndUna {
		acked := ack - bs.sndUna
		if sent, present := bs.sendTimes[ack]; present {
			ss.rttSample(bs, float64(evq.CurrentTime()-sent))
		}
		for end := range bs.sendTimes {
			if end <= ack {
				delete(bs.sendTimes, end)
			}
		}
		bs.sndUna = ack
		if bs.nxtSeq < bs.sndUna {
			bs.nxtSeq = bs.sndUna
		}
		bs.dupAcks = 0

		if bs.inRecovery {
			if ack >= bs.recover {
				bs.inRecovery = false
			} else {
				// partial ack, the next hole is lost too
				ss.retransmit(evq, fs)
			}
		} else {
			cwnd := bs.cwnd
			if cwnd < bs.ssthresh {
				cwnd += math.Min(float64(acked), mss)
			} else {
				cwnd += ss.transport.increase(cwnd, mss)
			}
			ss.setCwnd(evq, fs, cwnd)
		}

		if bs.sndUna < bs.nxtSeq {
			ss.armRTO(evq, fs)
		} else {
			bs.rtoGen += 1
		}
		ss.trySend(evq, fs)
		return
	}

	if ack == bs.sndUna && bs.sndUna < bs.nxtSeq {
		bs.dupAcks += 1
		if bs.dupAcks == dupAckThresh && !bs.inRecovery {
			bs.inRecovery = true
			if bs.sndUna >= bs.recover {
				ss.cutWindow(evq, fs, math.Max(bs.cwnd*ss.transport.Beta, 2*mss))
				bs.recover = bs.nxtSeq
			}
			ss.retransmit(evq, fs)
			ss.armRTO(evq, fs)
		}
	}
}

// cutWindow reduces the window, and the slow start threshold with it
func (ss *SimStack) cutWindow(evq *EventQueue, fs *flowState, cwnd float64) {
	fs.bulk.ssthresh = cwnd
	ss.setCwnd(evq, fs, cwnd)
}

// setCwnd changes the window and reports the change to subscribers when its integer value moves
func (ss *SimStack) setCwnd(evq *EventQueue, fs *flowState, cwnd float64) {
	bs := fs.bulk
	oldVal, newVal := uint64(bs.cwnd), uint64(cwnd)
	bs.cwnd = cwnd
	if oldVal == newVal {
		return
	}
	ev := StateChangeEvent{Key: fs.flow.Key, Attr: CwndAttr, Old: oldVal, New: newVal, Time: evq.CurrentTime()}
	for _, ch := range ss.subs[fs.flow.Key] {
		ch <- ev
	}
}

func (ss *SimStack) rttSample(bs *bulkState, rtt float64) {
	if bs.srtt == 0.0 {
		bs.srtt = rtt
	} else {
		bs.srtt = 0.875*bs.srtt + 0.125*rtt
	}
	bs.rto = math.Min(math.Max(minRTO, 4*bs.srtt), maxRTO)
}

// armRTO (re)starts the retransmission timer.  Earlier timers are left in the queue
// and ignore themselves when they fire.
func (ss *SimStack) armRTO(evq *EventQueue, fs *flowState) {
	bs := fs.bulk
	bs.rtoGen += 1
	ss.schedule(evq, fs, bs.rtoGen, ss.rtoExpire, bs.rto)
}

// rtoExpire is the handler of the retransmission timer.  Everything outstanding is
// sent again from sndUna with a one segment window.
func (ss *SimStack) rtoExpire(evq *EventQueue, context any, data any) {
	fs := context.(*flowState)
	bs := fs.bulk
	if data.(int) != bs.rtoGen || !fs.active || bs.sndUna >= bs.nxtSeq {
		return
	}
	ss.stats.Timeouts += 1
	AddFlowTrace(ss.tm, traceStamp(evq), fs.flow, fs.flow.Src.ID, "timeout", 0, bs.sndUna)

	mss := float64(bs.mss)
	bs.ssthresh = math.Max(bs.cwnd*ss.transport.Beta, 2*mss)
	bs.recover = bs.nxtSeq
	bs.inRecovery = false
	bs.dupAcks = 0
	bs.rto = math.Min(2*bs.rto, maxRTO)
	bs.sendTimes = make(map[uint64]SimTime)
	ss.setCwnd(evq, fs, mss)

	ss.retransmit(evq, fs)
	bs.nxtSeq = bs.sndUna + uint64(bs.segLen(bs.sndUna))
	ss.armRTO(evq, fs)
}
