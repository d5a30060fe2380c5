package netxp

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestTopoDescFileRoundTrip(t *testing.T) {
	td := CreateTopoDesc("lan", 4)
	td.NodeNames = []string{"client", "", "", "server"}
	td.AddLink("p2p", 5e6, 0.002, 0.0, 0, 1)
	td.AddLink("csma", 100e6, 6560e-9, 1e-6, 1, 2, 3)

	for _, name := range []string{"topo.yaml", "topo.json"} {
		t.Run(name, func(t *testing.T) {
			filename := filepath.Join(t.TempDir(), name)
			if err := td.WriteToFile(filename); err != nil {
				t.Fatalf("WriteToFile: %v", err)
			}
			got, err := ReadTopoDesc(filename, nil)
			if err != nil {
				t.Fatalf("ReadTopoDesc: %v", err)
			}
			if !reflect.DeepEqual(got, td) {
				t.Errorf("read back %+v, wrote %+v", got, td)
			}
		})
	}
}

func TestReadTopoDescFromBytes(t *testing.T) {
	dict := []byte(`
name: pair
nodes: 2
links:
  - media: p2p
    endpts: [0, 1]
    datarate: 5e6
    delay: 0.002
`)
	td, err := ReadTopoDesc("", dict)
	if err != nil {
		t.Fatal(err)
	}
	if td.AddressBase != DefaultAddressBase || len(td.Links) != 1 || td.Links[0].DataRate != 5e6 {
		t.Errorf("decoded %+v", td)
	}
	if td.NodeName(1) != "n1" {
		t.Errorf("NodeName(1) = %q", td.NodeName(1))
	}
}

func TestReadExpCfgFillsScenarioDefaults(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "exp.yaml")
	if err := os.WriteFile(filename, []byte("scenario: twodest\ntransport: ns3::TcpScalable\nrun: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := ReadExpCfg(filename, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultExpCfg("twodest")
	want.Transport = "ns3::TcpScalable"
	want.Run = 3
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("read %+v, want %+v", cfg, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	jsonName := filepath.Join(t.TempDir(), "exp.json")
	if err := cfg.WriteToFile(jsonName); err != nil {
		t.Fatal(err)
	}
	back, err := ReadExpCfg(jsonName, nil)
	if err != nil || !reflect.DeepEqual(back, cfg) {
		t.Errorf("json round trip %+v, %v", back, err)
	}
}

func TestDefaultExpCfgPerScenario(t *testing.T) {
	tests := []struct {
		scenario string
		nodes    int
		flows    int
		packets  int
		prefix   string
	}{
		{"star", 5, 1, 4, "star"},
		{"csma", 3, 1, 1, "csma"},
		{"wifi", 4, 1, 10, "wifi"},
		{"dumbbell", 1, 1, 1, "lab2-part1"},
		{"twodest", 1, 2, 1, "lab2-part2"},
	}
	for _, tc := range tests {
		cfg := DefaultExpCfg(tc.scenario)
		if cfg.NumNodes != tc.nodes || cfg.NumFlows != tc.flows || cfg.NumPackets != tc.packets || cfg.Prefix != tc.prefix {
			t.Errorf("DefaultExpCfg(%s) = nodes %d, flows %d, packets %d, prefix %q", tc.scenario,
				cfg.NumNodes, cfg.NumFlows, cfg.NumPackets, cfg.Prefix)
		}
		if cfg.DataRate != 1e6 || cfg.Delay != 0.020 || cfg.ErrorRate != 1e-5 || cfg.Duration != 20.0 {
			t.Errorf("DefaultExpCfg(%s) link and duration defaults %+v", tc.scenario, cfg)
		}
	}

	// a file naming only the scenario gets that scenario's counts
	cfg, err := ReadExpCfg("", []byte("scenario: star\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NumNodes != 5 || cfg.NumPackets != 4 {
		t.Errorf("star from file: %d clients, %d packets", cfg.NumNodes, cfg.NumPackets)
	}
}

func TestDescFilesRejectUnknownExtensions(t *testing.T) {
	if _, err := ReadExpCfg("exp.toml", nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ReadExpCfg(.toml) = %v", err)
	}
	if err := CreateTopoDesc("x", 1).WriteToFile(filepath.Join(t.TempDir(), "topo.xml")); !errors.Is(err, ErrConfiguration) {
		t.Errorf("WriteToFile(.xml) = %v", err)
	}
	if _, err := ReadTopoDesc(filepath.Join(t.TempDir(), "missing.yaml"), nil); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ReadTopoDesc of a missing file = %v", err)
	}
}

func TestExpCfgValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *ExpCfg)
	}{
		{"unknown scenario", func(cfg *ExpCfg) { cfg.Scenario = "ring" }},
		{"negative rate", func(cfg *ExpCfg) { cfg.DataRate = -1 }},
		{"NaN delay", func(cfg *ExpCfg) { cfg.Delay = math.NaN() }},
		{"error rate above one", func(cfg *ExpCfg) { cfg.ErrorRate = 1.5 }},
		{"unknown transport", func(cfg *ExpCfg) { cfg.Transport = "TcpCubic" }},
		{"negative run", func(cfg *ExpCfg) { cfg.Run = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultExpCfg("dumbbell")
			tc.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
				t.Errorf("Validate = %v, want ErrConfiguration", err)
			}
		})
	}
	if err := DefaultExpCfg("dumbbell").Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestCheckOutputFiles(t *testing.T) {
	dir := t.TempDir()
	if ok, err := CheckOutputFiles([]string{"", "local.yaml", filepath.Join(dir, "trace.yaml")}); !ok || err != nil {
		t.Errorf("CheckOutputFiles = %v, %v", ok, err)
	}
	if ok, err := CheckOutputFiles([]string{filepath.Join(dir, "no", "such", "trace.yaml")}); ok || err == nil {
		t.Errorf("a missing directory passed: %v, %v", ok, err)
	}
}
