// ABOUTME: Diagnostic harness exercising the Kalman time filter against a synthetic server clock
// ABOUTME: Feeds fake offset/RTT measurements and prints convergence progress, for manual tuning
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/sendspin-audio/client-go/internal/timefilter"
)

var (
	measurements = flag.Int("n", 40, "Number of synthetic measurements to feed")
	trueOffsetUs = flag.Int64("offset-us", 1_250_000, "Simulated true server-client offset, in microseconds")
	trueDriftPPM = flag.Float64("drift-ppm", 12, "Simulated clock drift, in parts-per-million")
	jitterUs     = flag.Int64("jitter-us", 800, "Simulated per-measurement RTT jitter, in microseconds")
	baseRttUs    = flag.Int64("base-rtt-us", 4000, "Simulated baseline round-trip time, in microseconds")
	intervalMs   = flag.Int("interval-ms", 250, "Spacing between simulated measurements, in milliseconds")
)

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	fmt.Println("=== Time Filter Convergence Harness ===")
	fmt.Printf("true offset=%dus drift=%.1fppm jitter=%dus base_rtt=%dus n=%d\n",
		*trueOffsetUs, *trueDriftPPM, *jitterUs, *baseRttUs, *measurements)
	fmt.Println()

	filter := timefilter.New(log.Default())

	var clientClockUs int64
	driftPerUs := *trueDriftPPM / 1e6

	for i := 0; i < *measurements; i++ {
		clientClockUs += int64(*intervalMs) * 1000

		// The server's clock advances at true wall-clock rate plus the
		// simulated drift relative to the client's clock.
		serverClockUs := clientClockUs + *trueOffsetUs + int64(float64(clientClockUs)*driftPerUs)

		rttJitter := rand.Int63n(2**jitterUs) - *jitterUs
		rttUs := *baseRttUs + rttJitter
		if rttUs < 0 {
			rttUs = 0
		}

		// Observed offset is the server-minus-client skew plus uniform
		// measurement noise within +/- a quarter of the RTT jitter.
		noiseUs := rand.Int63n(2**jitterUs/4) - *jitterUs/4
		observedOffsetUs := serverClockUs - clientClockUs + noiseUs

		filter.Ingest(timefilter.Measurement{
			OffsetUs:     observedOffsetUs,
			MaxErrorUs:   float64(rttUs) / 2,
			ClientRecvUs: clientClockUs,
			RttUs:        rttUs,
		})

		stats := filter.Stats()
		fmt.Printf("[%2d] offset_est=%8dus drift=%.6f ready=%-5v converged=%-5v error_us=%.1f\n",
			i+1, stats.OffsetUs, stats.Drift, filter.Ready(), filter.Converged(), stats.ErrorUs)

		time.Sleep(time.Millisecond) // keep the log readable without slowing the run materially
	}

	fmt.Println()
	final := filter.Stats()
	fmt.Printf("final estimate: offset=%dus (true=%dus, error=%dus) drift=%.6f\n",
		final.OffsetUs, *trueOffsetUs, final.OffsetUs-*trueOffsetUs, final.Drift)
	if !filter.Converged() {
		fmt.Println("filter did not converge within the given sample count")
	}
}
