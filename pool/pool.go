// Package pool implements the client-side connection pool: lifecycle
// management, acquire/release with a waiter queue, and a background
// maintenance loop that evicts stale sessions and replenishes the idle
// floor.
package pool

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Mengxianke/MySQL-ConnectionPool/backend"
	"github.com/Mengxianke/MySQL-ConnectionPool/config"
	"github.com/Mengxianke/MySQL-ConnectionPool/errs"
	"github.com/Mengxianke/MySQL-ConnectionPool/metrics"
	"github.com/Mengxianke/MySQL-ConnectionPool/session"
)

// Pool manages a set of MySQL sessions shared across callers: idle
// sessions available for reuse, active sessions currently checked out,
// and a queue of callers waiting when the pool is at its configured
// maximum.
type Pool struct {
	mu sync.Mutex

	cfg      config.PoolConfig
	selector *backend.Selector
	metrics  *metrics.Registry
	log      *log.Logger

	idle    []*session.Session
	active  map[string]*session.Session
	waiters []chan *session.Session

	running bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Active    int
	Idle      int
	Max       int
	WaitQueue int
	Running   bool
}

// New constructs a Pool. It does not connect to anything; call Init to
// open the initial warm set of sessions and start the health worker.
func New(cfg config.PoolConfig, sel *backend.Selector, reg *metrics.Registry, logger *log.Logger) *Pool {
	return &Pool{
		cfg:      cfg,
		selector: sel,
		metrics:  reg,
		log:      logger,
		active:   make(map[string]*session.Session),
		stopCh:   make(chan struct{}),
	}
}

// Init eagerly opens InitConnections sessions and starts the background
// health worker. It returns an error only if InitConnections is > 0 and
// not a single session could be opened; falling short of MinConnections
// is logged as a warning but does not fail startup, matching the
// original pool's tolerant bring-up behavior.
func (p *Pool) Init(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopCh = make(chan struct{})
	if p.active == nil {
		p.active = make(map[string]*session.Session)
	}
	p.mu.Unlock()

	created := 0
	for i := 0; i < p.cfg.InitConnections; i++ {
		sess, err := p.openSession(ctx)
		if err != nil {
			p.log.Printf("pool: warm-up session %d/%d failed: %v", i+1, p.cfg.InitConnections, err)
			continue
		}
		p.mu.Lock()
		p.idle = append(p.idle, sess)
		p.mu.Unlock()
		created++
	}

	if p.cfg.InitConnections > 0 && created == 0 {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		return &errs.BackendUnavailable{}
	}
	if created < p.cfg.MinConnections {
		p.log.Printf("pool: warm-up created %d sessions, below min_connections=%d", created, p.cfg.MinConnections)
	}

	p.updateGauges()

	p.wg.Add(1)
	go p.healthLoop()

	return nil
}

func (p *Pool) openSession(ctx context.Context) (*session.Session, error) {
	spec, err := p.selector.Pick()
	if err != nil {
		return nil, err
	}
	return session.Open(ctx, spec, p.cfg, p.metrics, p.log)
}

// Acquire hands out a session, preferring an idle one that still passes
// a validation ping, opening a new one while under the configured
// maximum, or blocking until one of those becomes possible, the acquire
// timeout elapses, or ctx is cancelled. timeoutMS is the per-call
// acquire timeout in milliseconds; 0 uses the pool's configured default.
func (p *Pool) Acquire(ctx context.Context, timeoutMS int) (*session.Session, error) {
	start := time.Now()

	for {
		p.mu.Lock()
		if !p.running {
			p.mu.Unlock()
			p.metrics.RecordConnectionFailed()
			return nil, &errs.PoolStopped{}
		}

		if sess, ok := p.popIdleLocked(); ok {
			p.mu.Unlock()
			if err := sess.Ping(ctx, false); err != nil {
				sess.Close()
				p.updateGauges()
				continue
			}
			p.mu.Lock()
			p.active[sess.ID()] = sess
			p.updateGaugesLocked()
			p.mu.Unlock()
			p.metrics.RecordConnectionAcquired(time.Since(start))
			return sess, nil
		}

		total := len(p.idle) + len(p.active)
		if total < p.cfg.MaxConnections {
			p.mu.Unlock()
			sess, err := p.openSession(ctx)
			if err == nil {
				p.mu.Lock()
				p.active[sess.ID()] = sess
				p.updateGaugesLocked()
				p.mu.Unlock()
				p.metrics.RecordConnectionAcquired(time.Since(start))
				return sess, nil
			}
			// A transient failure to create a new session falls through
			// to the wait below instead of failing the acquire outright;
			// a session released by another caller may still arrive
			// before the deadline.
			p.log.Printf("pool: failed to open a new session, waiting instead: %v", err)
			p.mu.Lock()
		}

		waiterCh := make(chan *session.Session, 1)
		p.waiters = append(p.waiters, waiterCh)
		p.mu.Unlock()

		timeout := p.cfg.AcquireTimeout()
		if timeoutMS > 0 {
			timeout = time.Duration(timeoutMS) * time.Millisecond
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case sess := <-waiterCh:
			if sess == nil {
				p.metrics.RecordConnectionFailed()
				return nil, &errs.PoolStopped{}
			}
			p.metrics.RecordConnectionAcquired(time.Since(start))
			return sess, nil
		case <-timer.C:
			p.removeWaiter(waiterCh)
			return nil, &errs.AcquireTimeout{TimeoutMS: int(timeout.Milliseconds())}
		case <-ctx.Done():
			p.removeWaiter(waiterCh)
			return nil, ctx.Err()
		}
	}
}

// Release returns a session to the idle set, or hands it directly to a
// waiting caller. If the pool is over its configured maximum — which
// can happen after Adjust lowers max while sessions are checked out,
// since ShrinkTo only closes idle sessions — the released session is
// closed outright instead of being considered for recycling. Otherwise
// a session whose Ping fails is closed instead of being recycled; if
// that drop takes the pool under MinConnections, a replacement is
// opened to take its place.
func (p *Pool) Release(sess *session.Session) {
	if sess == nil {
		return
	}

	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		sess.Close()
		return
	}
	delete(p.active, sess.ID())
	overLimit := len(p.idle)+len(p.active) > p.cfg.MaxConnections
	p.updateGaugesLocked()
	p.mu.Unlock()

	usage := time.Since(sess.LastActiveAt())
	if overLimit {
		sess.Close()
		p.metrics.RecordConnectionReleased(usage)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	valid := sess.Ping(ctx, false) == nil
	cancel()

	p.metrics.RecordConnectionReleased(usage)

	if valid {
		p.mu.Lock()
		p.handBackLocked(sess)
		return
	}

	sess.Close()
	p.mu.Lock()
	total := len(p.idle) + len(p.active)
	underMin := total < p.cfg.MinConnections
	p.updateGaugesLocked()
	p.mu.Unlock()

	if !underMin {
		return
	}
	replacement, err := p.openSession(context.Background())
	if err != nil {
		p.log.Printf("pool: failed to open replacement after a failed release: %v", err)
		return
	}
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		replacement.Close()
		return
	}
	p.handBackLocked(replacement)
}

// handBackLocked hands sess to the first waiter if any, otherwise
// returns it to the idle set. It must be called with p.mu held, and
// always releases it before returning.
func (p *Pool) handBackLocked(sess *session.Session) {
	if len(p.waiters) > 0 {
		waiterCh := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.active[sess.ID()] = sess
		p.updateGaugesLocked()
		p.mu.Unlock()
		waiterCh <- sess
		return
	}

	p.idle = append(p.idle, sess)
	p.updateGaugesLocked()
	p.mu.Unlock()
}

// Discard permanently removes a session from the pool, typically after
// it surfaced a non-transport error the caller decided was fatal.
func (p *Pool) Discard(sess *session.Session) {
	if sess == nil {
		return
	}
	p.mu.Lock()
	delete(p.active, sess.ID())
	p.updateGaugesLocked()
	p.mu.Unlock()
	sess.Close()
}

// Shutdown stops the health worker, fails every waiter, and closes every
// session. It is idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)

	for _, w := range p.waiters {
		close(w)
	}
	p.waiters = nil

	for _, sess := range p.idle {
		sess.Close()
	}
	p.idle = nil

	for _, sess := range p.active {
		sess.Close()
	}
	p.active = nil
	p.mu.Unlock()

	p.wg.Wait()
}

// Stats returns the current occupancy snapshot.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Active:    len(p.active),
		Idle:      len(p.idle),
		Max:       p.cfg.MaxConnections,
		WaitQueue: len(p.waiters),
		Running:   p.running,
	}
}

// SetConnectionLimits changes the min/max connection bounds at runtime.
// It does not close sessions over a lowered max; Release closes returned
// sessions while the pool is over it, and the health cycle tops the pool
// back up toward a raised min.
func (p *Pool) SetConnectionLimits(min, max int) error {
	if min < 1 || max < min {
		return &errs.ConfigInvalid{Reason: "invalid min/max connection bounds"}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.MinConnections = min
	p.cfg.MaxConnections = max
	return nil
}

// SetTimeoutSettings replaces the acquire timeout, idle TTL, and health
// check period at runtime, rejecting any zero value. A change to the
// health period takes effect on the health worker's next cycle.
func (p *Pool) SetTimeoutSettings(acquireTimeoutMS, idleTTLMS, healthPeriodMS int) error {
	if acquireTimeoutMS == 0 || idleTTLMS == 0 || healthPeriodMS == 0 {
		return &errs.ConfigInvalid{Reason: "timeout settings must all be non-zero"}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.AcquireTimeoutMS = acquireTimeoutMS
	p.cfg.IdleTTLMS = idleTTLMS
	p.cfg.HealthPeriodMS = healthPeriodMS
	return nil
}

// Adjust adopts newCfg wholesale. newCfg is validated before any pool
// state is touched, so a failed Adjust leaves the pool exactly as it
// was: there is no partial state to roll back. If the new max shrinks
// below the current total occupancy, idle sessions are closed down to
// it via ShrinkTo.
func (p *Pool) Adjust(newCfg config.PoolConfig) error {
	if err := newCfg.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	p.cfg = newCfg
	total := len(p.idle) + len(p.active)
	shrink := total > newCfg.MaxConnections
	p.mu.Unlock()

	if shrink {
		p.ShrinkTo(newCfg.MaxConnections)
	}
	return nil
}

// ShrinkTo closes idle sessions until total occupancy (idle+active) is
// at or below target, or the idle set is exhausted. It never touches
// active sessions.
func (p *Pool) ShrinkTo(target int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.idle) > 0 && len(p.idle)+len(p.active) > target {
		n := len(p.idle) - 1
		sess := p.idle[n]
		p.idle = p.idle[:n]
		sess.Close()
	}
	p.updateGaugesLocked()
}

// popIdleLocked pops the longest-idle session, if any, keeping the idle
// queue FIFO by return time. It performs no validation; the caller is
// responsible for pinging the session before handing it out, per the
// acquire state machine.
func (p *Pool) popIdleLocked() (*session.Session, bool) {
	if len(p.idle) == 0 {
		return nil, false
	}
	sess := p.idle[0]
	p.idle = p.idle[1:]
	return sess, true
}

func (p *Pool) removeWaiter(ch chan *session.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			break
		}
	}
}

func (p *Pool) updateGauges() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateGaugesLocked()
}

func (p *Pool) updateGaugesLocked() {
	p.metrics.SetPoolGauges(len(p.idle), len(p.active))
}
