package netxp

// flow-sim.go holds the pcktSource structure, which times the packet
// arrivals of an open-loop (rate) flow, and the helpers used to sample
// random times from an rngstream.

import (
	"math"

	"github.com/iti/rngstream"
)

// pcktSource computes when the next packet of a rate flow enters the network
type pcktSource struct {
	frameLen int     // bytes per packet
	rate     float64 // offered load in bits per second
	pcktRate float64 // packets per second

	// function that computes inter-arrival times.  First argument
	// is U01 random number, second argument is vector of parameters for distribution
	sampleNxtArrival func(float64, []float64) float64

	rngstrm *rngstream.RngStream
}

// interarrivalDists maps the names a FlowModel may take to the sampling function
var interarrivalDists map[string]func(float64, []float64) float64 = map[string]func(float64, []float64) float64{
	"exponential": sampleExpRV, "exp": sampleExpRV, "expon": sampleExpRV,
	"constant": sampleConst, "const": sampleConst,
}

// createPcktSource is a constructor.  rate is in bits per second, frameLen in bytes
func createPcktSource(rate float64, frameLen int, dist string, rngstrm *rngstream.RngStream) *pcktSource {
	ps := new(pcktSource)
	ps.rngstrm = rngstrm
	ps.frameLen = frameLen
	ps.adjustRate(rate)

	// make constant spacing the default
	ps.sampleNxtArrival = sampleConst
	ps.adjustInterArrivalDist(dist)
	return ps
}

// adjustRate sets the offered load and the packet rate it implies
func (ps *pcktSource) adjustRate(rate float64) {
	ps.rate = rate
	ps.pcktRate = rate / float64(8*ps.frameLen)
}

// set the distribution of the inter-arrivals
func (ps *pcktSource) adjustInterArrivalDist(dist string) {
	sample, present := interarrivalDists[dist]
	if present {
		ps.sampleNxtArrival = sample
	}
}

// nxtInterarrival returns the seconds until the next packet
func (ps *pcktSource) nxtInterarrival() float64 {
	u01 := ps.rngstrm.RandU01()
	params := []float64{ps.pcktRate}
	return roundFloat(ps.sampleNxtArrival(u01, params), rdigits)
}

// rdigits is the number of decimal digits simulation times derived from samples are rounded to
var rdigits uint = 9

// round computed simulation time to avoid non-sensical comparisons
// induced by rounding error
func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// expRV returns a sample of a exponentially distributed random number
func expRV(u01, rate float64) float64 {
	return -math.Log(1.0-u01) / rate
}

// sampleExpRV has the function signature expected by pcktSource
// for calling a next interarrival time
func sampleExpRV(u01 float64, params []float64) float64 {
	return expRV(u01, params[0])
}

// sampleConst has the function signature expected by pcktSource
// for calling a next interarrival time, here, a constant
func sampleConst(u01 float64, params []float64) float64 {
	return 1.0 / params[0]
}

// uniformTime returns a time drawn uniformly from [lo, hi), rounded to nanoseconds
// and held below hi
func uniformTime(lo, hi float64, rngstrm *rngstream.RngStream) float64 {
	t := roundFloat(lo+(hi-lo)*rngstrm.RandU01(), rdigits)
	if t >= hi {
		t = math.Nextafter(hi, lo)
	}
	return t
}

// lossProb gives the probability that a frame of the given length is hit by at least one byte error
func lossProb(errorRate float64, frameLen int) float64 {
	if errorRate <= 0.0 || frameLen <= 0 {
		return 0.0
	}
	if errorRate >= 1.0 {
		return 1.0
	}
	return -math.Expm1(float64(frameLen) * math.Log1p(-errorRate))
}

// createRngStream returns the stream named for the given run.  Replications of an
// experiment use distinct runs, and so distinct streams.
func createRngStream(name string, run int) *rngstream.RngStream {
	for idx := 0; idx < run; idx++ {
		rngstream.New(name)
	}
	return rngstream.New(name)
}
