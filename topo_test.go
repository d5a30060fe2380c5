package netxp

import (
	"errors"
	"math"
	"testing"
)

// recordingStack is a NetworkStack that moves no packets.  It records the calls
// made to it and reports the byte counts it is told to.
type recordingStack struct {
	links     []*Link
	endpts    []*Endpoint
	startedAt map[FlowID]SimTime
	stoppedAt map[FlowID]SimTime
	rcvd      map[FlowID]uint64
	startErr  error
}

func newRecordingStack() *recordingStack {
	return &recordingStack{startedAt: make(map[FlowID]SimTime), stoppedAt: make(map[FlowID]SimTime),
		rcvd: make(map[FlowID]uint64)}
}

func (rs *recordingStack) CreateLink(lnk *Link) (LinkHandle, error) {
	rs.links = append(rs.links, lnk)
	return LinkHandle(100 + len(rs.links) - 1), nil
}

func (rs *recordingStack) CreateEndpoint(node *Node, lnk *Link) (EndpointHandle, error) {
	for _, ep := range lnk.Endpts {
		if ep.Node == node {
			rs.endpts = append(rs.endpts, ep)
		}
	}
	return EndpointHandle(len(rs.endpts) - 1), nil
}

func (rs *recordingStack) SendTraffic(evq *EventQueue, flow *Flow) error {
	rs.startedAt[flow.ID] = evq.CurrentTime()
	return rs.startErr
}

func (rs *recordingStack) StopTraffic(evq *EventQueue, flow *Flow) {
	rs.stoppedAt[flow.ID] = evq.CurrentTime()
}

func (rs *recordingStack) SubscribeStateChange(key TraceKey, events chan<- StateChangeEvent) error {
	return nil
}

func (rs *recordingStack) ReceivedBytes(id FlowID) uint64 {
	return rs.rcvd[id]
}

// lineTopoDesc joins n nodes into a chain of p2p links
func lineTopoDesc(n int) *TopoDesc {
	td := CreateTopoDesc("line", n)
	for idx := 1; idx < n; idx++ {
		td.AddLink("p2p", 5e6, 0.002, 0.0, idx-1, idx)
	}
	return td
}

func TestBuildTopologyAssignsAddressPlan(t *testing.T) {
	td := CreateTopoDesc("lan", 4)
	td.AddLink("p2p", 5e6, 0.002, 0.0, 0, 1)
	td.AddLink("csma", 100e6, 6560e-9, 0.0, 1, 2, 3)

	rs := newRecordingStack()
	topo, err := BuildTopology(td, rs)
	if err != nil {
		t.Fatalf("BuildTopology: %v", err)
	}

	want := []string{
		"n0@p2p0 10.1.1.1/24",
		"n1@p2p0 10.1.1.2/24",
		"n1@csma1 10.1.2.1/24",
		"n2@csma1 10.1.2.2/24",
		"n3@csma1 10.1.2.3/24",
	}
	plan := topo.AddressPlan()
	if len(plan) != len(want) {
		t.Fatalf("address plan has %d entries, want %d: %v", len(plan), len(want), plan)
	}
	for idx := range want {
		if plan[idx] != want[idx] {
			t.Errorf("address plan[%d] = %q, want %q", idx, plan[idx], want[idx])
		}
	}

	n1 := topo.Nodes[1]
	if got := n1.Addr().String(); got != "10.1.1.2" {
		t.Errorf("n1 primary address %s, want 10.1.1.2", got)
	}
	if addr, ok := n1.AddrOn(topo.Links[1]); !ok || addr.String() != "10.1.2.1" {
		t.Errorf("n1 address on csma1 = %v,%v, want 10.1.2.1", addr, ok)
	}
	if _, ok := topo.Nodes[0].AddrOn(topo.Links[1]); ok {
		t.Errorf("n0 reports an address on a link it is not attached to")
	}

	if len(rs.links) != 2 || len(rs.endpts) != 5 {
		t.Errorf("stack saw %d links and %d endpoints, want 2 and 5", len(rs.links), len(rs.endpts))
	}
	for idx, lnk := range topo.Links {
		if lnk.Handle() != LinkHandle(100+idx) {
			t.Errorf("%s handle %d, want %d", lnk.Name, lnk.Handle(), 100+idx)
		}
	}
	if !topo.Links[1].Shared() || topo.Links[0].Shared() {
		t.Errorf("only the csma link should be shared")
	}
	if node, ok := topo.NodeByName("n3"); !ok || node.ID != 3 {
		t.Errorf("NodeByName(n3) = %v,%v", node, ok)
	}
}

func TestBuildTopologyDefaults(t *testing.T) {
	td := &TopoDesc{Name: "bare", Nodes: 2, NodeNames: []string{"server"},
		Links: []LinkDesc{{Media: "p2p", Endpts: []int{0, 1}, DataRate: 1e6}}}
	topo, err := BuildTopology(td, newRecordingStack())
	if err != nil {
		t.Fatalf("BuildTopology: %v", err)
	}
	lnk := topo.Links[0]
	if lnk.MTU != DefaultMTU {
		t.Errorf("MTU %d, want %d", lnk.MTU, DefaultMTU)
	}
	if lnk.Name != "p2p0" {
		t.Errorf("link name %q, want p2p0", lnk.Name)
	}
	if topo.Nodes[0].Name != "server" || topo.Nodes[1].Name != "n1" {
		t.Errorf("node names %q,%q, want server,n1", topo.Nodes[0].Name, topo.Nodes[1].Name)
	}
	if lnk.Prefix.String() != "10.1.1.0/24" {
		t.Errorf("prefix %s, want 10.1.1.0/24", lnk.Prefix)
	}
}

func TestBuildTopologyRejectsMalformedDescriptions(t *testing.T) {
	tests := []struct {
		name string
		desc *TopoDesc
	}{
		{"no nodes", &TopoDesc{Nodes: 0}},
		{"unknown media", &TopoDesc{Nodes: 2, Links: []LinkDesc{{Media: "fiber", Endpts: []int{0, 1}, DataRate: 1}}}},
		{"p2p with three ends", &TopoDesc{Nodes: 3, Links: []LinkDesc{{Media: "p2p", Endpts: []int{0, 1, 2}, DataRate: 1}}}},
		{"shared with one end", &TopoDesc{Nodes: 3, Links: []LinkDesc{{Media: "csma", Endpts: []int{0}, DataRate: 1}}}},
		{"node out of range", &TopoDesc{Nodes: 2, Links: []LinkDesc{{Media: "p2p", Endpts: []int{0, 2}, DataRate: 1}}}},
		{"negative node", &TopoDesc{Nodes: 2, Links: []LinkDesc{{Media: "p2p", Endpts: []int{-1, 1}, DataRate: 1}}}},
		{"node twice", &TopoDesc{Nodes: 3, Links: []LinkDesc{{Media: "wifi", Endpts: []int{0, 1, 0}, DataRate: 1}}}},
		{"zero rate", &TopoDesc{Nodes: 2, Links: []LinkDesc{{Media: "p2p", Endpts: []int{0, 1}}}}},
		{"NaN delay", &TopoDesc{Nodes: 2, Links: []LinkDesc{{Media: "p2p", Endpts: []int{0, 1}, DataRate: 1, Delay: math.NaN()}}}},
		{"error rate above one", &TopoDesc{Nodes: 2, Links: []LinkDesc{{Media: "p2p", Endpts: []int{0, 1}, DataRate: 1, ErrorRate: 2}}}},
		{"bad address base", &TopoDesc{Nodes: 2, AddressBase: "not-an-address",
			Links: []LinkDesc{{Media: "p2p", Endpts: []int{0, 1}, DataRate: 1}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rs := newRecordingStack()
			_, err := BuildTopology(tc.desc, rs)
			if !errors.Is(err, ErrTopology) {
				t.Fatalf("BuildTopology error = %v, want ErrTopology", err)
			}
		})
	}
}

func TestTopoDescValidateReportsEveryLink(t *testing.T) {
	td := CreateTopoDesc("two-bad", 2)
	td.AddLink("p2p", 0.0, 0.0, 0.0, 0, 1)
	td.AddLink("coax", 1e6, 0.0, 0.0, 0, 1)

	err := td.Validate()
	if !errors.Is(err, ErrTopology) {
		t.Fatalf("Validate = %v, want ErrTopology", err)
	}
	var multi interface{ Unwrap() []error }
	if !errors.As(err, &multi) || len(multi.Unwrap()) != 2 {
		t.Errorf("Validate should report both links, got %v", err)
	}
}
