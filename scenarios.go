package netxp

// scenarios.go turns an ExpCfg into a topology, a set of flows and a stop
// time, for each of the experiment layouts the harness knows.  Every count
// taken from the configuration is clamped into the range the layout supports.

import (
	"fmt"

	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"
)

// Scenario is a runnable experiment layout
type Scenario struct {
	Name     string
	Topo     *TopoDesc
	Flows    []FlowDesc
	StopTime float64
	Groups   []string // report groups, in report order
}

type scenarioTemplate func(cfg *ExpCfg, rngstrm *rngstream.RngStream) (*Scenario, error)

var scenarioTemplates map[string]scenarioTemplate = map[string]scenarioTemplate{
	"star":     starScenario,
	"csma":     csmaScenario,
	"wifi":     wifiScenario,
	"dumbbell": dumbbellScenario,
	"twodest":  twoDestScenario,
}

// ScenarioNames lists the known scenarios, sorted
func ScenarioNames() []string {
	names := make([]string, 0, len(scenarioTemplates))
	for name := range scenarioTemplates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// BuildScenario lays out the scenario cfg names.  rngstrm supplies any random
// start times the layout draws; when nil the stream of cfg's run is used.
func BuildScenario(cfg *ExpCfg, rngstrm *rngstream.RngStream) (*Scenario, error) {
	tmplt, present := scenarioTemplates[cfg.Scenario]
	if !present {
		return nil, fmt.Errorf("%w: unknown scenario %q", ErrConfiguration, cfg.Scenario)
	}
	if rngstrm == nil {
		rngstrm = createRngStream(cfg.Scenario, cfg.Run)
	}
	return tmplt(cfg, rngstrm)
}

// link parameters fixed by the layouts
const (
	lanRate     float64 = 5e6
	lanDelay    float64 = 0.002
	csmaRate    float64 = 100e6
	csmaDelay   float64 = 6560e-9
	wifiRate    float64 = 54e6
	wifiDelay   float64 = 0.0
	accessRate  float64 = 100e6
	accessDelay float64 = 0.01e-3
	longDelay   float64 = 0.050
)

// echo client parameters shared by the lab layouts
const (
	echoPacketSize int     = 1024
	echoInterval   float64 = 1.0
)

// starScenario: one server (node 0) and nClients clients, each on its own link to
// the server.  The client is the first endpoint of its link, so on link k the client
// holds 10.1.k.1 and the server 10.1.k.2.  Clients start at random times in [2,7) seconds.
func starScenario(cfg *ExpCfg, rngstrm *rngstream.RngStream) (*Scenario, error) {
	nClients := ClampCount(cfg.NumNodes, 1, 5)
	nPackets := ClampCount(cfg.NumPackets, 1, 5)
	stopTime := 20.0

	td := CreateTopoDesc("star", nClients+1)
	td.NodeNames = []string{"server"}
	for idx := 1; idx <= nClients; idx++ {
		td.NodeNames = append(td.NodeNames, fmt.Sprintf("client%d", idx-1))
		td.AddLink("p2p", lanRate, lanDelay, 0.0, idx, 0)
	}

	scn := &Scenario{Name: "star", Topo: td, StopTime: stopTime, Groups: []string{AllFlowsGroup}}
	for idx := 1; idx <= nClients; idx++ {
		start := uniformTime(2.0, 7.0, rngstrm)
		scn.Flows = append(scn.Flows, FlowDesc{Name: fmt.Sprintf("echo%d", idx-1), Src: idx, Dst: 0, Mode: "echo",
			StartTime: start, StopTime: stopTime, PacketSize: echoPacketSize, MaxPackets: nPackets,
			Interval: echoInterval})
	}
	return scn, nil
}

// csmaScenario: n0 -p2p- n1, a csma bus joining n1 and nCsma more nodes, and the last
// bus node -p2p- the server.  One echo client at n0.
func csmaScenario(cfg *ExpCfg, rngstrm *rngstream.RngStream) (*Scenario, error) {
	nCsma := ClampCount(cfg.NumNodes, 1, 250)
	nPackets := ClampCount(cfg.NumPackets, 1, 20)
	stopTime := 2.0 + float64(nPackets)*echoInterval + 2.0

	// n0, then bus nodes n1..n1+nCsma, then the server
	busFirst, busLast := 1, 1+nCsma
	server := busLast + 1
	td := CreateTopoDesc("csma", server+1)
	td.AddLink("p2p", lanRate, lanDelay, 0.0, 0, busFirst)
	bus := make([]int, 0, nCsma+1)
	for idx := busFirst; idx <= busLast; idx++ {
		bus = append(bus, idx)
	}
	td.AddLink("csma", csmaRate, csmaDelay, 0.0, bus...)
	td.AddLink("p2p", lanRate, lanDelay, 0.0, busLast, server)

	scn := &Scenario{Name: "csma", Topo: td, StopTime: stopTime, Groups: []string{AllFlowsGroup}}
	scn.Flows = []FlowDesc{{Name: "echo0", Src: 0, Dst: server, Mode: "echo", StartTime: 2.0, StopTime: stopTime,
		PacketSize: echoPacketSize, MaxPackets: nPackets, Interval: echoInterval}}
	return scn, nil
}

// wifiScenario: two access points joined point to point, each sharing a wifi
// medium with nWifi stations.  The server is the last station of the first network,
// the client the last station of the second.
func wifiScenario(cfg *ExpCfg, rngstrm *rngstream.RngStream) (*Scenario, error) {
	nWifi := ClampCount(cfg.NumNodes, 1, 9)
	nPackets := ClampCount(cfg.NumPackets, 1, 20)
	stopTime := 2.0 + float64(nPackets)*echoInterval + 10.0

	// ap1 = n0, ap2 = n1, stations of network 1 then of network 2
	td := CreateTopoDesc("wifi", 2+2*nWifi)
	td.NodeNames = []string{"ap1", "ap2"}
	for net := 1; net <= 2; net++ {
		for idx := 0; idx < nWifi; idx++ {
			td.NodeNames = append(td.NodeNames, fmt.Sprintf("sta%d-%d", net, idx))
		}
	}
	td.AddLink("p2p", lanRate, lanDelay, 0.0, 0, 1)
	for net := 0; net < 2; net++ {
		// stations take addresses ahead of their access point
		members := make([]int, 0, nWifi+1)
		for idx := 0; idx < nWifi; idx++ {
			members = append(members, 2+net*nWifi+idx)
		}
		members = append(members, net)
		td.AddLink("wifi", wifiRate, wifiDelay, 0.0, members...)
	}

	server := 2 + nWifi - 1
	client := 2 + 2*nWifi - 1
	scn := &Scenario{Name: "wifi", Topo: td, StopTime: stopTime, Groups: []string{AllFlowsGroup}}
	scn.Flows = []FlowDesc{{Name: "echo0", Src: client, Dst: server, Mode: "echo", StartTime: 2.0, StopTime: stopTime,
		PacketSize: echoPacketSize, MaxPackets: nPackets, Interval: echoInterval}}
	return scn, nil
}

// bulkFlows makes nFlows unlimited bulk flows from src, starting at 1 second.
// dst gives the destination and groups of each.
func bulkFlows(nFlows int, src int, stopTime float64, dst func(idx int) (int, []string)) []FlowDesc {
	flows := make([]FlowDesc, 0, nFlows)
	for idx := 0; idx < nFlows; idx++ {
		dstIdx, groups := dst(idx)
		flows = append(flows, FlowDesc{Name: fmt.Sprintf("flow%d", idx), Src: src, Dst: dstIdx, Mode: "bulk",
			StartTime: 1.0, StopTime: stopTime, Groups: groups})
	}
	return flows
}

// dumbbellScenario: the chain n0-n1-n2-n3 with the configured bottleneck between n1
// and n2, and nFlows bulk flows from n0 to n3
func dumbbellScenario(cfg *ExpCfg, rngstrm *rngstream.RngStream) (*Scenario, error) {
	nFlows := ClampCount(cfg.NumFlows, 1, 20)

	td := CreateTopoDesc("dumbbell", 4)
	td.AddLink("p2p", accessRate, accessDelay, 0.0, 0, 1)
	td.AddLink("p2p", cfg.DataRate, cfg.Delay, cfg.ErrorRate, 1, 2)
	td.AddLink("p2p", accessRate, accessDelay, 0.0, 2, 3)

	scn := &Scenario{Name: "dumbbell", Topo: td, StopTime: cfg.Duration, Groups: []string{AllFlowsGroup}}
	scn.Flows = bulkFlows(nFlows, 0, cfg.Duration, func(idx int) (int, []string) {
		return 3, nil
	})
	return scn, nil
}

// twoDestScenario: n0-n1-n2 through the configured bottleneck, then n2-n3 over an
// access link and n2-n4 over a long delay link.  The first half of the flows go to n3
// (group dest1), the rest to n4 (group dest2).
func twoDestScenario(cfg *ExpCfg, rngstrm *rngstream.RngStream) (*Scenario, error) {
	if cfg.NumFlows%2 != 0 {
		return nil, fmt.Errorf("%w: twodest needs an even number of flows, got %d", ErrConfiguration, cfg.NumFlows)
	}
	nFlows := ClampCount(cfg.NumFlows, 2, 20)

	td := CreateTopoDesc("twodest", 5)
	td.AddLink("p2p", accessRate, accessDelay, 0.0, 0, 1)
	td.AddLink("p2p", cfg.DataRate, cfg.Delay, cfg.ErrorRate, 1, 2)
	td.AddLink("p2p", accessRate, accessDelay, 0.0, 2, 3)
	td.AddLink("p2p", accessRate, longDelay, 0.0, 2, 4)

	scn := &Scenario{Name: "twodest", Topo: td, StopTime: cfg.Duration, Groups: []string{"dest1", "dest2"}}
	scn.Flows = bulkFlows(nFlows, 0, cfg.Duration, func(idx int) (int, []string) {
		if idx < nFlows/2 {
			return 3, []string{"dest1"}
		}
		return 4, []string{"dest2"}
	})
	return scn, nil
}
