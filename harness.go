package netxp

// harness.go assembles and runs one experiment: it lays out the scenario the
// configuration names, builds the topology over the reference stack, attaches
// the flows, routes congestion window changes to per-flow trace files, runs
// the event queue to the stop time and reduces what the flows received to a
// goodput report.

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"sync"
)

// traceChanDepth is the buffering of the channel carrying state changes to the router
const traceChanDepth int = 1024

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type runOptions struct {
	logger    *log.Logger
	outputDir string
}

// RunOption adjusts how RunExperiment runs
type RunOption func(*runOptions)

// WithLogger directs progress messages to logger
func WithLogger(logger *log.Logger) RunOption {
	return func(ro *runOptions) {
		ro.logger = logger
	}
}

// WithOutputDir places the congestion window trace files in dir rather than the working directory
func WithOutputDir(dir string) RunOption {
	return func(ro *runOptions) {
		ro.outputDir = dir
	}
}

// ExperimentResult is everything a finished run leaves behind
type ExperimentResult struct {
	Scenario   *Scenario
	Topology   *Topology
	Flows      []*Flow
	Report     *Report
	Stats      StackStats
	Echoed     map[FlowID]uint64   // echo reply bytes back at each echo client
	Series     map[FlowID][]Sample // congestion window series of each traced flow
	TraceFiles []string
}

// cwndTraceFile names the congestion window trace of flow idx
func cwndTraceFile(dir, prefix string, idx FlowID) string {
	return filepath.Join(dir, fmt.Sprintf("%s-flow%d-cwnd.data", prefix, idx))
}

// RunExperiment performs the experiment cfg describes.  ctx bounds the routing of
// trace events; the simulation itself always runs to its stop time once started.
func RunExperiment(ctx context.Context, cfg *ExpCfg, opts ...RunOption) (*ExperimentResult, error) {
	ro := &runOptions{}
	for _, opt := range opts {
		opt(ro)
	}
	logger := ro.logger
	if logger == nil {
		logger = discardLogger()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := CheckOutputFiles([]string{cfg.TraceFile}); err != nil {
		return nil, err
	}

	rngstrm := createRngStream(cfg.Scenario, cfg.Run)
	scn, err := BuildScenario(cfg, rngstrm)
	if err != nil {
		return nil, err
	}

	logger.Printf("Create nodes.")
	tm := CreateTraceManager(cfg.Name, len(cfg.TraceFile) > 0)
	stack, err := CreateSimStack(cfg.Transport, rngstrm, tm, logger)
	if err != nil {
		return nil, err
	}
	topo, err := BuildTopology(scn.Topo, stack)
	if err != nil {
		return nil, err
	}
	logger.Printf("%s, %s transport", topo, stack.Transport().Name)
	logger.Printf("Assign IP Addresses.")
	for _, line := range topo.AddressPlan() {
		logger.Printf("  %s", line)
	}

	evq := CreateEventQueue()
	bldr := CreateBuilder(topo, evq, stack, logger)
	logger.Printf("Create Applications.")
	for _, fd := range scn.Flows {
		if _, err := bldr.AttachFlow(fd); err != nil {
			return nil, err
		}
	}

	res := &ExperimentResult{Scenario: scn, Topology: topo, Flows: bldr.Flows(),
		Echoed: make(map[FlowID]uint64), Series: make(map[FlowID][]Sample), TraceFiles: make([]string, 0)}

	// congestion window traces of the bulk flows
	var router *TraceRouter
	var events chan StateChangeEvent
	if cfg.Tracing {
		router = CreateTraceRouter(CwndAttr)
		events = make(chan StateChangeEvent, traceChanDepth)
		for _, flow := range bldr.Flows() {
			if flow.Mode != "bulk" {
				continue
			}
			filename := cwndTraceFile(ro.outputDir, cfg.Prefix, flow.ID)
			err = router.SubscribeFile(flow.Key, filename)
			if err == nil {
				err = stack.SubscribeStateChange(flow.Key, events)
			}
			if err != nil {
				return nil, ReportErrs([]error{err, router.Close()})
			}
			res.TraceFiles = append(res.TraceFiles, filename)
		}
	}

	var serveErr error
	var wg sync.WaitGroup
	if router != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveErr = router.Serve(ctx, events)
		}()
	}

	logger.Printf("Run Simulation.")
	runErr := evq.Run(SimTime(scn.StopTime))

	var closeErr error
	if router != nil {
		close(events)
		wg.Wait()
		closeErr = router.Close()
		for _, flow := range bldr.Flows() {
			if router.Subscribed(flow.Key) && flow.Mode == "bulk" {
				res.Series[flow.ID] = router.Series(flow.Key)
			}
		}
	}
	if err := ReportErrs([]error{runErr, bldr.Err(), stack.Err(), serveErr, closeErr}); err != nil {
		return nil, err
	}
	logger.Printf("Simulation finished at %s s, %d events.", formatSimTime(evq.CurrentTime()), evq.Fired())

	res.Stats = stack.Stats()
	for _, flow := range bldr.Flows() {
		if flow.Mode == "echo" {
			res.Echoed[flow.ID] = stack.EchoedBytes(flow.ID)
		}
	}

	window := ActiveWindow(bldr.Flows(), SimTime(scn.StopTime))
	res.Report, err = Finalize(bldr.Results(), window, scn.Groups...)
	if err != nil {
		return nil, err
	}

	if tm.Active() {
		if _, err := tm.WriteToFile(cfg.TraceFile); err != nil {
			return nil, err
		}
	}
	return res, nil
}
