package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/iti/netxp"
	"github.com/spf13/cobra"
)

// runConfigWith resolves the configuration a run command given flags would use
func runConfigWith(t *testing.T, flags map[string]string) (*netxp.ExpCfg, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "run"}
	addRunFlags(cmd)
	for name, value := range flags {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatalf("setting --%s=%s: %v", name, value, err)
		}
	}
	return runConfig(cmd)
}

func TestRunConfigFlagsOverrideScenarioDefaults(t *testing.T) {
	cfg, err := runConfigWith(t, map[string]string{"scenario": "star", "packets": "2"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scenario != "star" || cfg.NumNodes != 5 || cfg.NumPackets != 2 {
		t.Errorf("star with --packets 2: %+v", cfg)
	}

	cfg, err = runConfigWith(t, nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := netxp.DefaultExpCfg("dumbbell"); *cfg != *want {
		t.Errorf("no flags gave %+v, want %+v", cfg, want)
	}
}

func TestRunConfigFileThenFlags(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "exp.yaml")
	body := "scenario: twodest\nnumflows: 6\ndatarate: 2e6\ntransport: TcpScalable\n"
	if err := os.WriteFile(filename, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		flags map[string]string
		check func(cfg *netxp.ExpCfg) bool
	}{
		{"file alone", map[string]string{"config": filename},
			func(cfg *netxp.ExpCfg) bool {
				return cfg.Scenario == "twodest" && cfg.NumFlows == 6 && cfg.DataRate == 2e6 &&
					cfg.Transport == "TcpScalable" && cfg.Delay == 0.020
			}},
		{"flag over file", map[string]string{"config": filename, "flows": "8", "error-rate": "0"},
			func(cfg *netxp.ExpCfg) bool {
				return cfg.NumFlows == 8 && cfg.ErrorRate == 0.0 && cfg.DataRate == 2e6 && cfg.Transport == "TcpScalable"
			}},
		{"scenario flag over file", map[string]string{"config": filename, "scenario": "dumbbell"},
			func(cfg *netxp.ExpCfg) bool {
				return cfg.Scenario == "dumbbell" && cfg.NumFlows == 6 && cfg.DataRate == 2e6
			}},
		{"unchanged flags keep file values", map[string]string{"config": filename, "tracing": "true", "run": "3"},
			func(cfg *netxp.ExpCfg) bool {
				return cfg.Tracing && cfg.Run == 3 && cfg.DataRate == 2e6 && cfg.Duration == 20.0
			}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := runConfigWith(t, tc.flags)
			if err != nil {
				t.Fatal(err)
			}
			if !tc.check(cfg) {
				t.Errorf("resolved %+v", cfg)
			}
		})
	}

	if _, err := runConfigWith(t, map[string]string{"config": filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Errorf("a missing config file was accepted")
	}
}
