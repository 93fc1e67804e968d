// ABOUTME: ServerProber: adaptive-cadence reachability probing while no session is active
// ABOUTME: A no-op while a session is live; notifies the supervisor once a variant answers
package prober

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sendspin-audio/client-go/internal/endpoint"
	"github.com/sendspin-audio/client-go/internal/netclass"
	"github.com/sendspin-audio/client-go/internal/supervisor"
)

const (
	foregroundInterval = 60 * time.Second
	backgroundInterval = 120 * time.Second
	backoffStart       = 60 * time.Second
	backoffCap         = 5 * time.Minute

	localProbeTimeout = 3 * time.Second
	otherProbeTimeout = 5 * time.Second
)

// PowerObserver reports the host's foreground/charging state, used to pick
// the prober's idle cadence per spec §4.10.
type PowerObserver interface {
	Foregrounded() bool
	Charging() bool
}

// ProbeFunc attempts one reachability check of variant for ep and returns
// nil if it answered successfully (the WebSocket upgrade for local/proxy,
// or signaling connectivity + server-connected for remote). It must
// respect ctx's deadline.
type ProbeFunc func(ctx context.Context, variant supervisor.Variant, ep endpoint.Endpoint) error

// Listener is notified once a probe succeeds.
type Listener interface {
	OnReachable(variant supervisor.Variant)
}

// Config configures one Prober bound to a single default endpoint.
type Config struct {
	Endpoint    endpoint.Endpoint
	NetObserver netclass.Observer
	Power       PowerObserver
	Probe       ProbeFunc
	Listener    Listener
}

// Prober periodically checks reachability of the host's default endpoint
// so the UI can auto-connect when the server comes back, without the cost
// of holding a live session open. SessionActive gates it to a no-op
// whenever a session already exists.
type Prober struct {
	cfg    Config
	logger *log.Logger

	mu             sync.Mutex
	running        bool
	cancel         context.CancelFunc
	sessionActive  bool
	wake           chan struct{}
	consecutiveErr int
}

// New builds a Prober for cfg.Endpoint. logger may be nil.
func New(cfg Config, logger *log.Logger) *Prober {
	if logger == nil {
		logger = log.Default()
	}
	p := &Prober{cfg: cfg, logger: logger, wake: make(chan struct{}, 1)}
	if cfg.NetObserver != nil {
		cfg.NetObserver.OnChange(func(netclass.Class) {
			p.pokeWake() // one immediate probe on network-class change
		})
	}
	return p
}

func (p *Prober) pokeWake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// SetSessionActive marks whether a live session currently exists against
// this endpoint. The prober is a no-op while true, per spec §4.10.
func (p *Prober) SetSessionActive(active bool) {
	p.mu.Lock()
	p.sessionActive = active
	p.mu.Unlock()
	if !active {
		p.pokeWake()
	}
}

// Start launches the prober's background loop. Calling Start again
// replaces any prior loop (mirroring Supervisor's single-task discipline),
// though in practice a Prober is started once for the process lifetime of
// its default endpoint.
func (p *Prober) Start(parent context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop cancels the probing loop.
func (p *Prober) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.running = false
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Prober) isSessionActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionActive
}

func (p *Prober) loop(ctx context.Context) {
	for {
		interval := p.nextInterval()
		if !p.sleep(ctx, interval) {
			return
		}
		if p.isSessionActive() {
			p.resetBackoff()
			continue
		}
		if p.probeOnce(ctx) {
			return // variant answered; caller's Listener has been notified, loop ends
		}
	}
}

// nextInterval computes the cadence per spec §4.10: the foreground/
// charging base interval, overridden by exponential backoff once
// consecutive failures have accrued.
func (p *Prober) nextInterval() time.Duration {
	p.mu.Lock()
	fails := p.consecutiveErr
	p.mu.Unlock()

	base := backgroundInterval
	if p.cfg.Power == nil || p.cfg.Power.Foregrounded() || p.cfg.Power.Charging() {
		base = foregroundInterval
	}
	if fails == 0 {
		return base
	}
	backoff := backoffStart << uint(fails-1)
	if backoff > backoffCap || backoff <= 0 {
		backoff = backoffCap
	}
	return backoff
}

func (p *Prober) resetBackoff() {
	p.mu.Lock()
	p.consecutiveErr = 0
	p.mu.Unlock()
}

func (p *Prober) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-p.wake:
		return true
	}
}

// probeOnce tries every variant the endpoint has a descriptor for, in the
// same priority order the supervisor would use, stopping at the first
// success. Returns true if a variant answered (the probe's job is done and
// the loop should exit — the supervisor now owns reconnection).
func (p *Prober) probeOnce(ctx context.Context) bool {
	class := netclass.ClassUnknown
	if p.cfg.NetObserver != nil {
		class = p.cfg.NetObserver.Class()
	}
	variants := supervisor.VariantsFor(p.cfg.Endpoint, class)
	if len(variants) == 0 || p.cfg.Probe == nil {
		return false
	}

	anySucceeded := false
	for _, v := range variants {
		if ctx.Err() != nil {
			return false
		}
		timeout := otherProbeTimeout
		if v == supervisor.VariantLocal {
			timeout = localProbeTimeout
		}
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := p.cfg.Probe(probeCtx, v, p.cfg.Endpoint)
		cancel()
		if err == nil {
			anySucceeded = true
			if p.cfg.Listener != nil {
				p.cfg.Listener.OnReachable(v)
			}
			break
		}
		p.logger.Printf("prober: variant %s unreachable: %v", v, err)
	}

	p.mu.Lock()
	if anySucceeded {
		p.consecutiveErr = 0
	} else {
		p.consecutiveErr++
	}
	p.mu.Unlock()

	return anySucceeded
}
