package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/iti/netxp"
	"github.com/spf13/cobra"
)

var (
	runCfgFile   string
	runScenario  string
	runNodes     int
	runFlows     int
	runPackets   int
	runDataRate  float64
	runDelay     float64
	runErrorRate float64
	runTransport string
	runDuration  float64
	runTracing   bool
	runPrefix    string
	runIndex     int
	runTraceFile string
	runOutputDir string
	runShowStats bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one experiment and print its goodput report",
	Long: `Run one experiment.  The configuration comes from --config when given, or
from the defaults of --scenario; any other flag given overrides it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := runConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		res, err := netxp.RunExperiment(ctx, cfg, netxp.WithLogger(progressLogger()), netxp.WithOutputDir(runOutputDir))
		if err != nil {
			return fmt.Errorf("experiment %s: %w", cfg.Name, err)
		}

		out := cmd.OutOrStdout()
		if _, err := res.Report.WriteTo(out); err != nil {
			return err
		}
		if runShowStats {
			if err := res.Report.WriteStats(out); err != nil {
				return err
			}
			st := res.Stats
			fmt.Fprintf(out, "packets: %d sent, %d delivered, %d dropped, %d corrupted, %d retransmitted, %d timeouts\n",
				st.Sent, st.Delivered, st.Dropped, st.Corrupted, st.Retransmits, st.Timeouts)
		}
		if cfg.Scenario == "twodest" {
			return res.Report.WriteCSV(out, cfg.Transport, strconv.Itoa(len(res.Flows)), strconv.Itoa(cfg.Run))
		}
		return nil
	},
}

// runConfig assembles the experiment configuration from the file and the flags given
func runConfig(cmd *cobra.Command) (*netxp.ExpCfg, error) {
	var cfg *netxp.ExpCfg
	if len(runCfgFile) > 0 {
		var err error
		if cfg, err = netxp.ReadExpCfg(runCfgFile, nil); err != nil {
			return nil, err
		}
		if cmd.Flags().Changed("scenario") {
			cfg.Scenario = runScenario
		}
	} else {
		cfg = netxp.DefaultExpCfg(runScenario)
	}

	flags := cmd.Flags()
	if flags.Changed("nodes") {
		cfg.NumNodes = runNodes
	}
	if flags.Changed("flows") {
		cfg.NumFlows = runFlows
	}
	if flags.Changed("packets") {
		cfg.NumPackets = runPackets
	}
	if flags.Changed("data-rate") {
		cfg.DataRate = runDataRate
	}
	if flags.Changed("delay") {
		cfg.Delay = runDelay
	}
	if flags.Changed("error-rate") {
		cfg.ErrorRate = runErrorRate
	}
	if flags.Changed("transport") {
		cfg.Transport = runTransport
	}
	if flags.Changed("duration") {
		cfg.Duration = runDuration
	}
	if flags.Changed("tracing") {
		cfg.Tracing = runTracing
	}
	if flags.Changed("prefix") {
		cfg.Prefix = runPrefix
	}
	if flags.Changed("run") {
		cfg.Run = runIndex
	}
	if flags.Changed("trace-file") {
		cfg.TraceFile = runTraceFile
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

// addRunFlags binds the run flags to cmd
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&runCfgFile, "config", "", "experiment configuration file, yaml or json")
	cmd.Flags().StringVarP(&runScenario, "scenario", "s", "dumbbell", "scenario: csma, dumbbell, star, twodest, wifi")
	cmd.Flags().IntVar(&runNodes, "nodes", 0, "star clients, csma bus nodes or wifi stations (default per scenario)")
	cmd.Flags().IntVar(&runFlows, "flows", 0, "number of bulk flows (default per scenario)")
	cmd.Flags().IntVar(&runPackets, "packets", 0, "echo packets per client (default per scenario)")
	cmd.Flags().Float64Var(&runDataRate, "data-rate", 1e6, "bottleneck data rate, bits per second")
	cmd.Flags().Float64Var(&runDelay, "delay", 0.020, "bottleneck delay, seconds")
	cmd.Flags().Float64Var(&runErrorRate, "error-rate", 1e-5, "bottleneck byte error rate")
	cmd.Flags().StringVar(&runTransport, "transport", "TcpNewReno", "TcpNewReno, TcpLinuxReno or TcpScalable")
	cmd.Flags().Float64Var(&runDuration, "duration", 20.0, "simulated seconds")
	cmd.Flags().BoolVar(&runTracing, "tracing", false, "write congestion window traces")
	cmd.Flags().StringVar(&runPrefix, "prefix", "", "trace file name prefix (default per scenario)")
	cmd.Flags().IntVar(&runIndex, "run", 0, "run index, selects the random stream")
	cmd.Flags().StringVar(&runTraceFile, "trace-file", "", "write flow events to this yaml or json file")
	cmd.Flags().StringVar(&runOutputDir, "output-dir", "", "directory of the congestion window traces")
	cmd.Flags().BoolVar(&runShowStats, "stats", false, "also print group spread, fairness and packet counts")
}
