package flowsim

// arrivals.go samples the random quantities of a run: the time between
// flow arrivals and the egress of each new flow

import (
	"math"

	"github.com/iti/rngstream"
)

// SeededStream returns a new named stream advanced by seed draws, so that
// runs given different seeds see different, reproducible sequences.  Streams
// are handed out in creation order, so callers that need reproducibility
// must create their streams in a fixed order, from one goroutine
func SeededStream(name string, seed int) *rngstream.RngStream {
	rng := rngstream.New(name)
	for range max(seed, 0) {
		rng.RandU01()
	}
	return rng
}

// expRV returns a sample of a exponentially distributed random number
func expRV(u01, rate float64) float64 {
	return -math.Log(1.0-u01) / rate
}

// sampleExpRV is an inter-arrival sampler whose single parameter is the arrival rate
func sampleExpRV(u01 float64, params []float64) float64 {
	return expRV(u01, params[0])
}

// sampleConst is an inter-arrival sampler for a constant rate
func sampleConst(u01 float64, params []float64) float64 {
	return 1.0 / params[0]
}

// arrivalProcess generates the inter-arrival times of flows at one ingress
type arrivalProcess struct {
	rng    *rngstream.RngStream
	params []float64

	// sampleNxtArrival computes an inter-arrival time from a U01 random number
	// and the parameters of the distribution
	sampleNxtArrival func(float64, []float64) float64
}

// createArrivalProcess is a constructor.  Poisson arrivals with the given mean
// inter-arrival time are the default; deterministic selects constant spacing
func createArrivalProcess(rng *rngstream.RngStream, mean float64, deterministic bool) *arrivalProcess {
	ap := &arrivalProcess{rng: rng, params: []float64{1.0 / mean}, sampleNxtArrival: sampleExpRV}
	if deterministic {
		ap.sampleNxtArrival = sampleConst
	}
	return ap
}

func (ap *arrivalProcess) next() float64 {
	return ap.sampleNxtArrival(ap.rng.RandU01(), ap.params)
}
