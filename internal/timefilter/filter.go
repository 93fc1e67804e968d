// ABOUTME: Kalman-filtered offset/drift estimator mapping server time to local monotonic time
// ABOUTME: Ingests (offset, rtt) measurements, gates outliers, and exposes server<->client conversion
package timefilter

import (
	"log"
	"math"
	"sync"
)

const (
	// maxDriftPPM bounds the drift state to +/-500 parts-per-million,
	// i.e. |drift| <= 5e-4 seconds per second.
	maxDriftPPM = 5e-4

	// innovationWindowSize is the bounded history used for the stability score.
	innovationWindowSize = 20

	// readyAfterMeasurements is the minimum sample count for server_to_client
	// to stop returning identity.
	readyAfterMeasurements = 2

	// convergedAfterMeasurements and convergedErrorUs gate the "converged" flag.
	convergedAfterMeasurements = 5
	convergedErrorUs           = 5000 // 5ms std, in microseconds

	// gateSigma is the innovation-gate width in standard deviations.
	gateSigma = 3.0

	// forceAcceptAfterRejects: a 4th consecutive outlier is always accepted,
	// otherwise a permanent offset shift would never be picked up.
	forceAcceptAfterRejects = 3

	// rMinStdUs is the measurement-noise floor (1ms std) even on a
	// zero-RTT link.
	rMinStdUs = 1000.0

	// Adaptive-Q thresholds on mean normalized innovation.
	qScaleUpThreshold   = 1.5
	qScaleDownThreshold = 0.5
	qScaleFactor        = 2.0
	qMinScale           = 0.25
	qMaxScale           = 4.0

	// qOffsetBase and qDriftBase are the baseline process-noise variances
	// (per second) for offset (us^2/s) and drift (unitless^2/s).
	qOffsetBase = 4.0   // (2us/s)^2, slow natural clock wander
	qDriftBase  = 1e-14 // drift itself varies extremely slowly

	// staleRttThresholdUs: measurements at or above this RTT are discarded
	// outright, never touching the filter or its counters.
	staleRttThresholdUs = 10_000_000
)

// Stats is a read-only snapshot of filter state, used for telemetry and tests.
type Stats struct {
	OffsetUs       int64
	Drift          float64
	ErrorUs        float64
	Ready          bool
	Converged      bool
	Stability      float64
	TotalMeasured  int
	ConsecutiveRej int
}

type frozenState struct {
	offsetUs  float64
	drift     float64
	p         [2][2]float64
	lastLocal int64
}

// Filter is the 2-state (offset, drift) Kalman filter of spec §4.1.
type Filter struct {
	mu sync.Mutex

	logger *log.Logger

	offsetUs float64
	drift    float64
	p        [2][2]float64
	qScale   float64

	lastMeasuredLocalUs int64
	haveLastMeasurement bool

	innovations    [innovationWindowSize]float64
	innovationN    int
	innovationHead int

	totalMeasurements  int
	consecutiveRejects int
	staleSinceReset    bool

	frozen *frozenState

	staticDelayUs int64
}

// New creates a Filter in its reset state. logger may be nil, in which
// case log.Default() is used.
func New(logger *log.Logger) *Filter {
	if logger == nil {
		logger = log.Default()
	}
	f := &Filter{logger: logger}
	f.resetLocked()
	return f
}

// SetStaticDelay sets the user-tunable audio-path calibration, applied in
// the server->client direction so larger values play later.
func (f *Filter) SetStaticDelay(delayMs float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staticDelayUs = int64(delayMs * 1000)
}

// StaticDelayUs returns the currently configured static delay, in
// microseconds.
func (f *Filter) StaticDelayUs() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.staticDelayUs
}

func (f *Filter) resetLocked() {
	f.offsetUs = 0
	f.drift = 0
	f.p = [2][2]float64{
		{1e12, 0},
		{0, 1},
	}
	f.qScale = 1.0
	f.lastMeasuredLocalUs = 0
	f.haveLastMeasurement = false
	f.innovations = [innovationWindowSize]float64{}
	f.innovationN = 0
	f.innovationHead = 0
	f.totalMeasurements = 0
	f.consecutiveRejects = 0
	f.staleSinceReset = true
}

// Reset restores the filter to its just-created state, preserving the
// static delay and any frozen side-slot.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
}

// ResetAndDiscard is Reset plus discarding any frozen state — used when a
// stream/clear starts a new logical session.
func (f *Filter) ResetAndDiscard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
	f.frozen = nil
}

// Freeze copies (offset, drift, P, timestamp) into a side slot if the
// filter is ready; a no-op otherwise.
func (f *Filter) Freeze() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.readyLocked() {
		return
	}
	f.frozen = &frozenState{
		offsetUs:  f.offsetUs,
		drift:     f.drift,
		p:         f.p,
		lastLocal: f.lastMeasuredLocalUs,
	}
}

// Thaw restores frozen state (if any), inflating P by 10x so the prior
// estimate influences but does not dominate fresh measurements. A thawed
// filter is ready immediately.
func (f *Filter) Thaw() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frozen == nil {
		return
	}
	fr := f.frozen
	f.offsetUs = fr.offsetUs
	f.drift = fr.drift
	f.p = [2][2]float64{
		{fr.p[0][0] * 10, fr.p[0][1] * 10},
		{fr.p[1][0] * 10, fr.p[1][1] * 10},
	}
	f.lastMeasuredLocalUs = fr.lastLocal
	f.haveLastMeasurement = true
	f.staleSinceReset = false
	if f.totalMeasurements < readyAfterMeasurements {
		f.totalMeasurements = readyAfterMeasurements
	}
}

// Measurement is one (offset, rtt) observation, already computed from
// (t1, t2, t3, t4) by the caller (typically BurstSyncManager).
type Measurement struct {
	OffsetUs      int64
	MaxErrorUs    float64
	ClientRecvUs  int64
	RttUs         int64
}

// Ingest feeds one measurement through predict/gate/update. Measurements
// with RTT at or above the staleness threshold are discarded before
// touching any counter.
func (f *Filter) Ingest(m Measurement) {
	if m.RttUs >= staleRttThresholdUs {
		f.logger.Printf("timefilter: discarding stale measurement, rtt=%dus", m.RttUs)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dt := f.predictLocked(m.ClientRecvUs)

	// Measurement noise: RTT-scaled in quadrature, floored at 1ms std.
	rttHalf := float64(m.RttUs) / 2.0
	rVar := rMinStdUs*rMinStdUs + rttHalf*rttHalf

	z := float64(m.OffsetUs)
	pPred00 := f.p[0][0]
	innovation := z - f.offsetUs
	s := pPred00 + rVar

	accept := true
	if s > 0 {
		threshold := gateSigma * math.Sqrt(s)
		if math.Abs(innovation) > threshold {
			accept = false
		}
	}

	if !accept && f.consecutiveRejects >= forceAcceptAfterRejects {
		// A fourth consecutive outlier is always accepted — otherwise a
		// permanent offset change would never be picked up.
		accept = true
	}

	if !accept {
		f.consecutiveRejects++
		f.logger.Printf("timefilter: rejected outlier innovation=%.1fus threshold=%.1fus", innovation, gateSigma*math.Sqrt(s))
		f.recordInnovation(innovation * innovation / s)
		return
	}

	f.consecutiveRejects = 0

	// Kalman gain K = Ppre * H^T / S, H = [1, 0]
	if s <= 0 {
		s = 1
	}
	k0 := pPred00 / s
	k1 := f.p[1][0] / s

	f.offsetUs += k0 * innovation
	f.drift += k1 * innovation
	if f.drift > maxDriftPPM {
		f.drift = maxDriftPPM
	} else if f.drift < -maxDriftPPM {
		f.drift = -maxDriftPPM
	}

	// Posterior covariance: P <- (I - K H) P
	p00, p01 := f.p[0][0], f.p[0][1]
	p10, p11 := f.p[1][0], f.p[1][1]
	f.p[0][0] = p00 - k0*p00
	f.p[0][1] = p01 - k0*p01
	f.p[1][0] = p10 - k1*p00
	f.p[1][1] = p11 - k1*p01

	f.recordInnovation(innovation * innovation / s)
	f.adaptQLocked()

	f.totalMeasurements++
	f.staleSinceReset = false
	f.lastMeasuredLocalUs = m.ClientRecvUs
	f.haveLastMeasurement = true
	_ = dt
}

// predictLocked advances the state to t (local monotonic microseconds)
// and returns the elapsed delta-t in seconds. Must be called with mu held.
func (f *Filter) predictLocked(tLocalUs int64) float64 {
	if !f.haveLastMeasurement {
		f.lastMeasuredLocalUs = tLocalUs
		return 0
	}

	dtUs := tLocalUs - f.lastMeasuredLocalUs
	if dtUs < 0 {
		dtUs = 0
	}
	dt := float64(dtUs) / 1e6

	f.offsetUs += f.drift * float64(dtUs)

	// F = [[1, dt], [0, 1]]; P <- F P F^T + Q dt
	p00, p01 := f.p[0][0], f.p[0][1]
	p10, p11 := f.p[1][0], f.p[1][1]

	newP00 := p00 + dt*(p01+p10) + dt*dt*p11
	newP01 := p01 + dt*p11
	newP10 := p10 + dt*p11
	newP11 := p11

	qOffset := qOffsetBase * f.qScale
	qDrift := qDriftBase * f.qScale

	f.p[0][0] = newP00 + qOffset*dt
	f.p[0][1] = newP01
	f.p[1][0] = newP10
	f.p[1][1] = newP11 + qDrift*dt

	return dt
}

func (f *Filter) recordInnovation(normalized float64) {
	f.innovations[f.innovationHead] = normalized
	f.innovationHead = (f.innovationHead + 1) % innovationWindowSize
	if f.innovationN < innovationWindowSize {
		f.innovationN++
	}
}

func (f *Filter) meanInnovationLocked() float64 {
	if f.innovationN == 0 {
		return 1.0
	}
	sum := 0.0
	for i := 0; i < f.innovationN; i++ {
		sum += f.innovations[i]
	}
	return sum / float64(f.innovationN)
}

// adaptQLocked scales Q up/down when the mean normalized innovation over
// the window drifts persistently away from 1.0, per §4.1 "Adaptive Q".
func (f *Filter) adaptQLocked() {
	if f.innovationN < innovationWindowSize/2 {
		return
	}
	mean := f.meanInnovationLocked()
	if mean > qScaleUpThreshold {
		f.qScale = math.Min(f.qScale*qScaleFactor, qMaxScale)
	} else if mean < qScaleDownThreshold {
		f.qScale = math.Max(f.qScale/qScaleFactor, qMinScale)
	}
}

func (f *Filter) readyLocked() bool {
	return f.totalMeasurements >= readyAfterMeasurements
}

func (f *Filter) errorUsLocked() float64 {
	if !f.readyLocked() || f.p[0][0] < 0 {
		return math.MaxFloat64
	}
	return math.Sqrt(f.p[0][0])
}

// Ready reports whether at least two measurements have been ingested.
func (f *Filter) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readyLocked()
}

// Converged reports whether the filter has enough measurements and low
// enough estimated error to be considered trustworthy for playout.
func (f *Filter) Converged() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalMeasurements >= convergedAfterMeasurements && f.errorUsLocked() < convergedErrorUs
}

// Stability returns the mean normalized innovation over the last 20
// measurements; 1.0 means the filter's uncertainty is well-calibrated.
func (f *Filter) Stability() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.meanInnovationLocked()
}

// ErrorUs returns the current estimated standard deviation of the offset
// estimate, in microseconds. Returns math.MaxFloat64 ("max") when unready.
func (f *Filter) ErrorUs() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errorUsLocked()
}

// Stats returns a consistent snapshot of all filter state at once.
func (f *Filter) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{
		OffsetUs:       int64(f.offsetUs),
		Drift:          f.drift,
		ErrorUs:        f.errorUsLocked(),
		Ready:          f.readyLocked(),
		Converged:      f.totalMeasurements >= convergedAfterMeasurements && f.errorUsLocked() < convergedErrorUs,
		Stability:      f.meanInnovationLocked(),
		TotalMeasured:  f.totalMeasurements,
		ConsecutiveRej: f.consecutiveRejects,
	}
}

// ServerToClient converts a server-domain microsecond timestamp to a local
// monotonic microsecond timestamp, applying the static delay. Returns the
// input unchanged (identity) before the filter is ready; never fails.
func (f *Filter) ServerToClient(serverUs int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.readyLocked() {
		return serverUs
	}
	return serverUs - int64(f.offsetUs) + f.staticDelayUs
}

// ClientToServer is the exact inverse of ServerToClient.
func (f *Filter) ClientToServer(clientUs int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.readyLocked() {
		return clientUs
	}
	return clientUs + int64(f.offsetUs) - f.staticDelayUs
}
