package main

import (
	"fmt"
	"strings"

	"github.com/iti/netxp"
	"github.com/spf13/cobra"
)

var (
	topoNodes int
	topoFlows int
)

var topoCmd = &cobra.Command{
	Use:   "topo <scenario> <file>",
	Short: "Write the topology description of a scenario",
	Long:  "Write the nodes and links a scenario lays out, as yaml or json by the file's extension.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := netxp.DefaultExpCfg(args[0])
		if cmd.Flags().Changed("nodes") {
			cfg.NumNodes = topoNodes
		}
		if cmd.Flags().Changed("flows") {
			cfg.NumFlows = topoFlows
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		scn, err := netxp.BuildScenario(cfg, nil)
		if err != nil {
			return err
		}
		if err := scn.Topo.WriteToFile(args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes, %d links written to %s\n", scn.Name, scn.Topo.Nodes,
			len(scn.Topo.Links), args[1])
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config <scenario> <file>",
	Short: "Write the default experiment configuration of a scenario",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := netxp.DefaultExpCfg(args[0])
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w (scenarios: %s)", err, strings.Join(netxp.ScenarioNames(), ", "))
		}
		return cfg.WriteToFile(args[1])
	},
}

func init() {
	rootCmd.AddCommand(topoCmd)
	rootCmd.AddCommand(configCmd)

	topoCmd.Flags().IntVar(&topoNodes, "nodes", 0, "star clients, csma bus nodes or wifi stations (default per scenario)")
	topoCmd.Flags().IntVar(&topoFlows, "flows", 0, "number of bulk flows (default per scenario)")
}
