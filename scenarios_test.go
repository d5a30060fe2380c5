package netxp

import (
	"errors"
	"testing"
)

func scenarioFor(t *testing.T, name string, modify func(cfg *ExpCfg)) *Scenario {
	t.Helper()
	cfg := DefaultExpCfg(name)
	if modify != nil {
		modify(cfg)
	}
	scn, err := BuildScenario(cfg, createRngStream("scenarios_test", 0))
	if err != nil {
		t.Fatalf("BuildScenario(%s): %v", name, err)
	}
	if err := scn.Topo.Validate(); err != nil {
		t.Fatalf("%s lays out an invalid topology: %v", name, err)
	}
	return scn
}

// addressPlanOf builds the scenario's topology and returns its address plan
func addressPlanOf(t *testing.T, scn *Scenario) []string {
	t.Helper()
	topo, err := BuildTopology(scn.Topo, newRecordingStack())
	if err != nil {
		t.Fatalf("BuildTopology(%s): %v", scn.Name, err)
	}
	return topo.AddressPlan()
}

func checkAddressPlan(t *testing.T, scn *Scenario, want []string) {
	t.Helper()
	got := addressPlanOf(t, scn)
	if len(got) != len(want) {
		t.Fatalf("%s address plan %v, want %v", scn.Name, got, want)
	}
	for idx := range want {
		if got[idx] != want[idx] {
			t.Errorf("%s address %d is %q, want %q", scn.Name, idx, got[idx], want[idx])
		}
	}
}

func TestScenarioNames(t *testing.T) {
	want := []string{"csma", "dumbbell", "star", "twodest", "wifi"}
	got := ScenarioNames()
	if len(got) != len(want) {
		t.Fatalf("ScenarioNames = %v", got)
	}
	for idx := range want {
		if got[idx] != want[idx] {
			t.Errorf("ScenarioNames = %v, want %v", got, want)
		}
	}
	if _, err := BuildScenario(&ExpCfg{Scenario: "ring"}, nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("unknown scenario = %v", err)
	}
}

func TestStarScenario(t *testing.T) {
	scn := scenarioFor(t, "star", func(cfg *ExpCfg) { cfg.NumNodes = 9; cfg.NumPackets = 0 })
	if scn.Topo.Nodes != 6 || len(scn.Topo.Links) != 5 || len(scn.Flows) != 5 {
		t.Fatalf("star with 9 clients: %d nodes, %d links, %d flows; want clamped to 5 clients",
			scn.Topo.Nodes, len(scn.Topo.Links), len(scn.Flows))
	}
	for idx, fd := range scn.Flows {
		if fd.Dst != 0 || fd.Src != idx+1 || fd.Mode != "echo" || fd.MaxPackets != 1 {
			t.Errorf("flow %d: %+v", idx, fd)
		}
		if fd.StartTime < 2.0 || fd.StartTime >= 7.0 {
			t.Errorf("flow %d starts at %v, outside [2,7)", idx, fd.StartTime)
		}
	}
	if scn.StopTime != 20.0 {
		t.Errorf("stop %v, want 20", scn.StopTime)
	}
}

func TestStarScenarioAddressPlan(t *testing.T) {
	scn := scenarioFor(t, "star", func(cfg *ExpCfg) { cfg.NumNodes = 2 })
	checkAddressPlan(t, scn, []string{
		"client0@p2p0 10.1.1.1/24",
		"server@p2p0 10.1.1.2/24",
		"client1@p2p1 10.1.2.1/24",
		"server@p2p1 10.1.2.2/24",
	})

	// clients reach the server at its address on the first link
	topo, err := BuildTopology(scn.Topo, newRecordingStack())
	if err != nil {
		t.Fatal(err)
	}
	if addr := topo.Nodes[0].Addr().String(); addr != "10.1.1.2" {
		t.Errorf("server address %s, want 10.1.1.2", addr)
	}
}

func TestCsmaScenarioAddressPlan(t *testing.T) {
	scn := scenarioFor(t, "csma", func(cfg *ExpCfg) { cfg.NumNodes = 1 })
	checkAddressPlan(t, scn, []string{
		"n0@p2p0 10.1.1.1/24",
		"n1@p2p0 10.1.1.2/24",
		"n1@csma1 10.1.2.1/24",
		"n2@csma1 10.1.2.2/24",
		"n2@p2p2 10.1.3.1/24",
		"n3@p2p2 10.1.3.2/24",
	})
}

func TestWifiScenarioAddressPlan(t *testing.T) {
	scn := scenarioFor(t, "wifi", func(cfg *ExpCfg) { cfg.NumNodes = 1 })
	checkAddressPlan(t, scn, []string{
		"ap1@p2p0 10.1.1.1/24",
		"ap2@p2p0 10.1.1.2/24",
		"sta1-0@wifi1 10.1.2.1/24",
		"ap1@wifi1 10.1.2.2/24",
		"sta2-0@wifi2 10.1.3.1/24",
		"ap2@wifi2 10.1.3.2/24",
	})
}

func TestCsmaScenarioCoercesZeroNodes(t *testing.T) {
	zero := scenarioFor(t, "csma", func(cfg *ExpCfg) { cfg.NumNodes = 0 })
	one := scenarioFor(t, "csma", func(cfg *ExpCfg) { cfg.NumNodes = 1 })
	if zero.Topo.Nodes != one.Topo.Nodes || len(zero.Topo.Links[1].Endpts) != 2 {
		t.Errorf("nCsma 0 gives %d nodes and a bus of %d, nCsma 1 gives %d nodes",
			zero.Topo.Nodes, len(zero.Topo.Links[1].Endpts), one.Topo.Nodes)
	}

	scn := scenarioFor(t, "csma", func(cfg *ExpCfg) { cfg.NumNodes = 3; cfg.NumPackets = 4 })
	bus := scn.Topo.Links[1]
	if bus.Media != "csma" || len(bus.Endpts) != 4 {
		t.Errorf("bus %+v, want csma joining 4 nodes", bus)
	}
	fd := scn.Flows[0]
	if fd.Src != 0 || fd.Dst != scn.Topo.Nodes-1 || fd.MaxPackets != 4 || fd.StartTime != 2.0 {
		t.Errorf("client flow %+v", fd)
	}
	if scn.StopTime != 8.0 {
		t.Errorf("stop %v, want 2+4+2", scn.StopTime)
	}
}

func TestWifiScenarioLayout(t *testing.T) {
	scn := scenarioFor(t, "wifi", func(cfg *ExpCfg) { cfg.NumNodes = 12; cfg.NumPackets = 2 })
	if scn.Topo.Nodes != 20 {
		t.Fatalf("%d nodes, want 2 access points and 2x9 stations", scn.Topo.Nodes)
	}
	for idx, ap := range []int{0, 1} {
		wifi := scn.Topo.Links[1+idx]
		if wifi.Media != "wifi" || len(wifi.Endpts) != 10 || wifi.Endpts[9] != ap {
			t.Errorf("wifi network %d: %+v", idx, wifi)
		}
	}
	fd := scn.Flows[0]
	if fd.Dst != 10 || fd.Src != 19 {
		t.Errorf("echo from %d to %d, want 19 to 10", fd.Src, fd.Dst)
	}
	if scn.StopTime != 14.0 {
		t.Errorf("stop %v, want 2+2+10", scn.StopTime)
	}
}

func TestDumbbellScenario(t *testing.T) {
	scn := scenarioFor(t, "dumbbell", func(cfg *ExpCfg) { cfg.NumFlows = 3; cfg.DataRate = 2e6; cfg.ErrorRate = 0 })
	if len(scn.Flows) != 3 || len(scn.Groups) != 1 || scn.Groups[0] != AllFlowsGroup {
		t.Fatalf("flows %d, groups %v", len(scn.Flows), scn.Groups)
	}
	neck := scn.Topo.Links[1]
	if neck.DataRate != 2e6 || neck.Delay != 0.020 || neck.Endpts[0] != 1 || neck.Endpts[1] != 2 {
		t.Errorf("bottleneck %+v", neck)
	}
	for _, fd := range scn.Flows {
		if fd.Src != 0 || fd.Dst != 3 || fd.Mode != "bulk" || fd.StartTime != 1.0 || fd.StopTime != 20.0 || fd.MaxBytes != 0 {
			t.Errorf("flow %+v", fd)
		}
	}

	many := scenarioFor(t, "dumbbell", func(cfg *ExpCfg) { cfg.NumFlows = 50 })
	if len(many.Flows) != 20 {
		t.Errorf("50 flows clamped to %d, want 20", len(many.Flows))
	}
}

func TestTwoDestScenario(t *testing.T) {
	scn := scenarioFor(t, "twodest", func(cfg *ExpCfg) { cfg.NumFlows = 4 })
	wantDst := []int{3, 3, 4, 4}
	wantGroup := []string{"dest1", "dest1", "dest2", "dest2"}
	for idx, fd := range scn.Flows {
		if fd.Dst != wantDst[idx] || len(fd.Groups) != 1 || fd.Groups[0] != wantGroup[idx] {
			t.Errorf("flow %d to %d in %v", idx, fd.Dst, fd.Groups)
		}
	}
	if long := scn.Topo.Links[3]; long.Delay != 0.050 || long.Endpts[1] != 4 {
		t.Errorf("long link %+v", long)
	}

	cfg := DefaultExpCfg("twodest")
	cfg.NumFlows = 3
	if _, err := BuildScenario(cfg, nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("odd flow count = %v, want ErrConfiguration", err)
	}
}
