package netxp

// goodput.go reduces the byte counts flows received over a run into
// per-flow goodput and per-group averages

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FlowResult is the final received byte count of one flow
type FlowResult struct {
	FlowID        FlowID
	Name          string
	Groups        []string
	BytesReceived uint64
}

// FlowGoodput is the goodput of one flow over the active window
type FlowGoodput struct {
	FlowID        FlowID
	Name          string
	BytesReceived uint64
	Goodput       float64 // bits per second
}

// GroupGoodput summarizes the goodput of the flows in one group
type GroupGoodput struct {
	Name     string
	Flows    int
	Bytes    uint64
	Average  float64 // bits per second, 8*Bytes/(Flows*window)
	StdDev   float64 // sample standard deviation of member goodputs, 0 for a single flow
	Fairness float64 // Jain's index of member goodputs
}

// Report is the product of Finalize
type Report struct {
	ActiveDuration float64
	Flows          []FlowGoodput
	Groups         []GroupGoodput
}

// Finalize computes the goodput of every flow over activeDuration seconds, and the
// average of every named group.  A flow belongs to group g when g is one of its
// groups; every flow belongs to AllFlowsGroup.
func Finalize(results []FlowResult, activeDuration float64, groups ...string) (*Report, error) {
	if math.IsNaN(activeDuration) || math.IsInf(activeDuration, 0) || activeDuration <= 0.0 {
		return nil, fmt.Errorf("%w: active duration %v", ErrDivisionByZero, activeDuration)
	}

	rprt := new(Report)
	rprt.ActiveDuration = activeDuration
	rprt.Flows = make([]FlowGoodput, 0, len(results))
	rprt.Groups = make([]GroupGoodput, 0, len(groups))

	for _, res := range results {
		fg := FlowGoodput{FlowID: res.FlowID, Name: res.Name, BytesReceived: res.BytesReceived}
		fg.Goodput = float64(res.BytesReceived) * 8.0 / activeDuration
		rprt.Flows = append(rprt.Flows, fg)
	}

	for _, group := range groups {
		var sum uint64
		goodputs := make([]float64, 0)
		for idx, res := range results {
			if group != AllFlowsGroup && !slices.Contains(res.Groups, group) {
				continue
			}
			sum += res.BytesReceived
			goodputs = append(goodputs, rprt.Flows[idx].Goodput)
		}
		n := len(goodputs)
		if n == 0 {
			return nil, fmt.Errorf("%w: group %q has no flows", ErrDivisionByZero, group)
		}

		gg := GroupGoodput{Name: group, Flows: n, Bytes: sum}
		gg.Average = float64(sum) * 8.0 / (float64(n) * activeDuration)
		if n > 1 {
			gg.StdDev = stat.StdDev(goodputs, nil)
		}
		gg.Fairness = jainIndex(goodputs)
		rprt.Groups = append(rprt.Groups, gg)
	}

	return rprt, nil
}

// jainIndex returns (sum x)^2 / (n * sum x^2), or 0 when every x is zero
func jainIndex(x []float64) float64 {
	sumSq := floats.Dot(x, x)
	if sumSq == 0.0 {
		return 0.0
	}
	sum := floats.Sum(x)
	return sum * sum / (float64(len(x)) * sumSq)
}

// Group returns the summary of the named group
func (rprt *Report) Group(name string) (GroupGoodput, bool) {
	for _, gg := range rprt.Groups {
		if gg.Name == name {
			return gg, true
		}
	}
	return GroupGoodput{}, false
}

// formatBps prints a rate the way the report lines carry it
func formatBps(bps float64) string {
	return strconv.FormatFloat(bps, 'f', -1, 64)
}

// WriteTo writes one line per flow, "<flowId>: <bytes> bytes, <goodput> bps", and then
// one line per group, "Average <group> Goodput: <value> bps"
func (rprt *Report) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, fg := range rprt.Flows {
		n, err := fmt.Fprintf(w, "%d: %d bytes, %s bps\n", fg.FlowID, fg.BytesReceived, formatBps(fg.Goodput))
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	for _, gg := range rprt.Groups {
		n, err := fmt.Fprintf(w, "Average %s Goodput: %s bps\n", gg.Name, formatBps(gg.Average))
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteCSV writes one PARSE_ME record: the leading fields given, then the average
// of each group.  Sweep scripts grep the output for these records.
func (rprt *Report) WriteCSV(w io.Writer, lead ...string) error {
	record := []string{"PARSE_ME"}
	record = append(record, lead...)
	for _, gg := range rprt.Groups {
		record = append(record, formatBps(gg.Average))
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(record); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteStats writes one line per group with its spread and fairness
func (rprt *Report) WriteStats(w io.Writer) error {
	for _, gg := range rprt.Groups {
		_, err := fmt.Fprintf(w, "%s: %d flows, stddev %s bps, fairness %s\n", gg.Name, gg.Flows,
			formatBps(gg.StdDev), strconv.FormatFloat(gg.Fairness, 'f', 4, 64))
		if err != nil {
			return err
		}
	}
	return nil
}
