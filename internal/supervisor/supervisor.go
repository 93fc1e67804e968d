// ABOUTME: ConnectionSupervisor: transport-variant selection and the auto-reconnect FSM
// ABOUTME: Owns a single cancellable reconnect task per endpoint; never more than one in flight
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sendspin-audio/client-go/internal/endpoint"
	"github.com/sendspin-audio/client-go/internal/errkind"
	"github.com/sendspin-audio/client-go/internal/netclass"
	"github.com/sendspin-audio/client-go/internal/session"
)

// Variant names one of the three transport variants a Dialer can attempt.
type Variant int

const (
	VariantLocal Variant = iota
	VariantProxy
	VariantRemote
)

func (v Variant) String() string {
	switch v {
	case VariantLocal:
		return "local"
	case VariantProxy:
		return "proxy"
	case VariantRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// AppState is the supervisor's externally-visible connection state, the
// "AppConnectionState" sealed hierarchy design notes §9 describes.
type AppState int

const (
	StateDisconnected AppState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s AppState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dialer builds and connects one variant of transport for ep, wiring it to
// a session.Engine and blocking until that engine reaches a connected
// state or the attempt definitively fails. attemptCtx bounds only the
// dial/handshake decision (it carries the per-variant timeout and is
// cancelled the moment Dial returns, successful or not); on success, Dial
// must call Engine.Start with sessionCtx instead, since that is the
// context the connected session's lifetime is tied to — it lives until the
// Supervisor's own run is cancelled, not until this one attempt's timeout
// expires. Both are cancellation points (§5); Dial must respect attemptCtx
// while deciding, and sessionCtx thereafter.
//
// Returned errors should be wrapped with one of errkind's sentinels so the
// supervisor can tell a ConfigError (stop immediately) from a
// TransportFatal (rotate to the next variant) or TransportRecoverable
// (also rotate, within the same attempt) failure.
type Dialer interface {
	Dial(attemptCtx, sessionCtx context.Context, variant Variant, ep endpoint.Endpoint) (*session.Engine, error)
}

// Listener receives supervisor lifecycle notifications. Called from the
// supervisor's own run-loop goroutine, never under its internal lock.
type Listener interface {
	OnStateChanged(state AppState)
	OnConnected(engine *session.Engine)
	OnReconnectAttempt(attempt int)
	OnFailed(err error)
}

// backoffSeconds is the 11-attempt delay schedule from spec §4.9; attempts
// beyond the table length repeat the final (60s) delay.
var backoffSeconds = []float64{0.5, 1, 2, 4, 8, 15, 30, 60, 60, 60, 60}

// priorityWifi/Ethernet, priorityCellular, priorityVPN/Unknown implement
// the network-class -> variant-priority table from spec §4.9.
var (
	priorityWired    = []Variant{VariantLocal, VariantProxy, VariantRemote}
	priorityCellular = []Variant{VariantProxy, VariantRemote}
	priorityOther    = []Variant{VariantProxy, VariantRemote, VariantLocal}
)

// PriorityFor returns the variant priority order for class, per spec
// §4.9's network-class table. Exported so ServerProber (C10) can probe
// variants in the same order the supervisor would try them.
func PriorityFor(class netclass.Class) []Variant {
	switch class {
	case netclass.ClassWifi, netclass.ClassEthernet:
		return priorityWired
	case netclass.ClassCellular:
		return priorityCellular
	default:
		return priorityOther
	}
}

// VariantsFor applies ep's selection policy and, for PolicyAuto, class's
// priority order, filtered down to variants ep actually has a descriptor
// for. Exported for ServerProber's use; Supervisor.selectVariants is a thin
// wrapper around this plus its own NetObserver read.
func VariantsFor(ep endpoint.Endpoint, class netclass.Class) []Variant {
	var ordered []Variant
	switch ep.Policy {
	case endpoint.PolicyLocalOnly:
		ordered = []Variant{VariantLocal}
	case endpoint.PolicyRemoteOnly:
		ordered = []Variant{VariantRemote}
	case endpoint.PolicyProxyOnly:
		ordered = []Variant{VariantProxy}
	default:
		ordered = PriorityFor(class)
	}

	out := make([]Variant, 0, len(ordered))
	for _, v := range ordered {
		if hasDescriptor(ep, v) {
			out = append(out, v)
		}
	}
	return out
}

func hasDescriptor(ep endpoint.Endpoint, v Variant) bool {
	switch v {
	case VariantLocal:
		return ep.HasLocal()
	case VariantProxy:
		return ep.HasProxy()
	case VariantRemote:
		return ep.HasRemote()
	default:
		return false
	}
}

// Config configures one Supervisor instance, bound to a single endpoint for
// its lifetime (a different endpoint means a new Supervisor).
type Config struct {
	Endpoint              endpoint.Endpoint
	NetObserver           netclass.Observer
	Dialer                Dialer
	Listener              Listener
	MaxReconnectAttempts  int // default len(backoffSeconds) = 11
	VariantDialTimeout    time.Duration
	RemoteVariantTimeout  time.Duration // signaling negotiation needs longer; spec §5: 10s
}

func (c Config) withDefaults() Config {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = len(backoffSeconds)
	}
	if c.VariantDialTimeout <= 0 {
		c.VariantDialTimeout = 5 * time.Second
	}
	if c.RemoteVariantTimeout <= 0 {
		c.RemoteVariantTimeout = 10 * time.Second
	}
	return c
}

// Supervisor drives transport-variant selection for one endpoint and
// supervises auto-reconnection when a connected session drops. The entire
// reconnect loop lives in one cancellable goroutine per Start call; Start
// always cancels and waits out any prior run before launching a new one,
// so at most one loop is ever active for this Supervisor.
type Supervisor struct {
	cfg    Config
	logger *log.Logger

	mu            sync.Mutex
	cancel        context.CancelFunc
	loopDone      chan struct{}
	isReconnect   bool
	skipDelay     chan struct{}
}

// New builds a Supervisor for cfg.Endpoint. logger may be nil.
func New(cfg Config, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.Default()
	}
	s := &Supervisor{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		skipDelay: make(chan struct{}, 1),
	}
	if s.cfg.NetObserver != nil {
		s.cfg.NetObserver.OnChange(func(netclass.Class) {
			select {
			case s.skipDelay <- struct{}{}:
			default:
			}
		})
	}
	return s
}

// Start cancels any run already in progress for this Supervisor, waits for
// it to fully exit, then launches a fresh connect-and-supervise loop bound
// to parent. Safe to call again (e.g. when the user switches endpoints
// elsewhere and a caller wants a clean restart against the same endpoint).
func (s *Supervisor) Start(parent context.Context) {
	for {
		s.mu.Lock()
		prevDone := s.loopDone
		s.mu.Unlock()

		s.CancelReconnection()
		if prevDone != nil {
			<-prevDone
		}

		s.mu.Lock()
		if s.loopDone != prevDone {
			// A concurrent Start installed a loop meanwhile; cancel and wait it out too.
			s.mu.Unlock()
			continue
		}
		ctx, cancel := context.WithCancel(parent)
		done := make(chan struct{})
		s.cancel = cancel
		s.loopDone = done
		s.mu.Unlock()

		go s.runLoop(ctx, done)
		return
	}
}

// CancelReconnection deterministically stops the backoff timer, any
// in-flight connect attempt, and all future reconnect iterations. It
// returns once the cancellation has been issued; IsReconnecting reports
// false immediately (the run-loop goroutine itself may still be unwinding
// briefly, but it will issue no further connect attempt once cancelled).
func (s *Supervisor) CancelReconnection() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.isReconnect = false
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run-loop goroutine has fully exited,
// whether due to cancellation, exhausted reconnect attempts, or a
// ConfigError. Returns immediately if no run has been started.
func (s *Supervisor) Wait() {
	s.mu.Lock()
	done := s.loopDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// IsReconnecting reports whether the supervisor is currently within the
// backoff-retry phase of the FSM (as opposed to connected, or not running).
func (s *Supervisor) IsReconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isReconnect
}

func (s *Supervisor) setReconnecting(v bool) {
	s.mu.Lock()
	s.isReconnect = v
	s.mu.Unlock()
}

func (s *Supervisor) notify(state AppState) {
	if s.cfg.Listener != nil {
		s.cfg.Listener.OnStateChanged(state)
	}
}

// runLoop is the single task mandated by spec §4.9's invariant: one linear
// task with interior delays, never a chain of scheduled follow-up tasks.
func (s *Supervisor) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		if attempt > 0 {
			idx := attempt - 1
			if idx >= s.cfg.MaxReconnectAttempts {
				s.setReconnecting(false)
				s.notify(StateFailed)
				if s.cfg.Listener != nil {
					s.cfg.Listener.OnFailed(fmt.Errorf("connection lost after %d attempts", s.cfg.MaxReconnectAttempts))
				}
				return
			}
			if !s.sleep(ctx, backoffDelay(idx)) {
				s.setReconnecting(false)
				return
			}
			s.setReconnecting(true)
			s.notify(StateReconnecting)
			if s.cfg.Listener != nil {
				s.cfg.Listener.OnReconnectAttempt(attempt)
			}
		} else {
			s.notify(StateConnecting)
		}

		engine, err := s.tryAllVariants(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.setReconnecting(false)
				return
			}
			if errors.Is(err, errkind.ConfigError) {
				s.setReconnecting(false)
				s.notify(StateFailed)
				if s.cfg.Listener != nil {
					s.cfg.Listener.OnFailed(err)
				}
				return
			}
			attempt++
			continue
		}

		s.setReconnecting(false)
		s.notify(StateConnected)
		if s.cfg.Listener != nil {
			s.cfg.Listener.OnConnected(engine)
		}

		if !s.waitForDrop(ctx, engine) {
			return
		}
		attempt = 1
	}
}

// waitForDrop blocks until engine's worker exits, then reports whether this
// was an unexpected drop (true, reconnect should proceed) as opposed to a
// context cancellation or a user-initiated disconnect (false, stop here).
func (s *Supervisor) waitForDrop(ctx context.Context, engine *session.Engine) bool {
	waitDone := make(chan struct{})
	go func() {
		engine.Wait()
		close(waitDone)
	}()
	select {
	case <-ctx.Done():
		return false
	case <-waitDone:
	}
	return engine.State() == session.StateFailed
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-s.skipDelay:
		return true
	}
}

func backoffDelay(idx int) time.Duration {
	secs := backoffSeconds[len(backoffSeconds)-1]
	if idx < len(backoffSeconds) {
		secs = backoffSeconds[idx]
	}
	return time.Duration(secs * float64(time.Second))
}

// tryAllVariants re-selects priority order from the current network class
// and tries every configured variant in that order, returning the first
// connected engine. The whole sequence counts as a single reconnect
// attempt regardless of how many variants it tries.
func (s *Supervisor) tryAllVariants(ctx context.Context) (*session.Engine, error) {
	ep := s.cfg.Endpoint
	variants := s.selectVariants(ep)
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: no connection descriptor available for policy %s", errkind.ConfigError, ep.Policy)
	}

	var lastErr error
	for _, v := range variants {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		timeout := s.cfg.VariantDialTimeout
		if v == VariantRemote {
			timeout = s.cfg.RemoteVariantTimeout
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		engine, err := s.cfg.Dialer.Dial(attemptCtx, ctx, v, ep)
		cancel()
		if err == nil {
			return engine, nil
		}
		lastErr = err
		s.logger.Printf("supervisor: variant %s failed: %v", v, err)
		if errors.Is(err, errkind.ConfigError) {
			return nil, err
		}
		// TransportFatal and TransportRecoverable both rotate to the next
		// configured variant within this same attempt (spec §4.9, §8
		// scenario 6: auth failure does not consume a reconnect attempt on
		// the same variant, it moves on to the next one).
	}
	return nil, fmt.Errorf("all transport variants exhausted: %w", lastErr)
}

// selectVariants applies the endpoint's selection policy, then (for auto)
// the current network class's priority table, filtered to variants the
// endpoint actually has a descriptor for.
func (s *Supervisor) selectVariants(ep endpoint.Endpoint) []Variant {
	class := netclass.ClassUnknown
	if s.cfg.NetObserver != nil {
		class = s.cfg.NetObserver.Class()
	}
	return VariantsFor(ep, class)
}
