package pool

import (
	"context"
	"time"

	"github.com/Mengxianke/MySQL-ConnectionPool/session"
)

// healthLoop runs until stopCh is closed, performing one health cycle
// per HealthPeriod. A timer selected against stopCh is used instead of
// an unconditional sleep so Shutdown returns promptly instead of
// blocking for up to one full period.
func (p *Pool) healthLoop() {
	defer p.wg.Done()

	timer := time.NewTimer(p.cfg.HealthPeriod())
	defer timer.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-timer.C:
			p.runHealthCycleSafely()
			timer.Reset(p.cfg.HealthPeriod())
		}
	}
}

// runHealthCycleSafely wraps PerformHealthCheck with a panic recovery so
// one bad cycle never kills the background worker permanently.
func (p *Pool) runHealthCycleSafely() {
	defer func() {
		if r := recover(); r != nil {
			p.log.Printf("pool: health cycle panicked: %v", r)
		}
	}()
	p.PerformHealthCheck()
}

// PerformHealthCheck runs one maintenance cycle: evict idle sessions
// that have exceeded their TTL or failed a ping, then replenish the
// pool's total (idle+active) back up toward MinConnections without
// exceeding MaxConnections. It can also be called directly, outside the
// background loop's cadence.
func (p *Pool) PerformHealthCheck() {
	p.cleanupIdle()
	p.ensureMinimum()
}

// cleanupIdle drains the idle list and keeps sessions that pass a quiet
// ping and are either within their TTL or needed because the running
// total (idle+active) is already below MinConnections, closing the rest.
func (p *Pool) cleanupIdle() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	candidates := p.idle
	p.idle = nil
	activeCount := len(p.active)
	min := p.cfg.MinConnections
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ttl := p.cfg.IdleTTL()
	kept := make([]*session.Session, 0, len(candidates))
	total := activeCount + len(candidates)
	evicted := 0
	for _, sess := range candidates {
		fresh := ttl <= 0 || time.Since(sess.LastActiveAt()) <= ttl
		if (fresh || total < min) && sess.Ping(ctx, false) == nil {
			kept = append(kept, sess)
			continue
		}
		sess.Close()
		total--
		evicted++
	}

	p.mu.Lock()
	p.idle = append(p.idle, kept...)
	p.updateGaugesLocked()
	p.mu.Unlock()

	if evicted > 0 {
		p.log.Printf("pool: health cycle evicted %d stale sessions", evicted)
	}
}

// ensureMinimum opens new idle sessions until the pool's total
// (idle+active) reaches MinConnections, bounded by whatever headroom remains under
// MaxConnections. A failed attempt is logged and does not stop the
// remaining attempts in this pass; any still-unmet deficit is retried
// on the next cycle.
func (p *Pool) ensureMinimum() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	deficit := p.cfg.MinConnections - (len(p.idle) + len(p.active))
	headroom := p.cfg.MaxConnections - (len(p.idle) + len(p.active))
	if deficit > headroom {
		deficit = headroom
	}
	p.mu.Unlock()

	if deficit <= 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	created := 0
	for i := 0; i < deficit; i++ {
		sess, err := p.openSession(ctx)
		if err != nil {
			p.log.Printf("pool: health cycle failed to replenish idle session %d/%d: %v", i+1, deficit, err)
			continue
		}
		p.mu.Lock()
		if !p.running {
			p.mu.Unlock()
			sess.Close()
			return
		}
		p.idle = append(p.idle, sess)
		p.mu.Unlock()
		created++
	}

	if created > 0 {
		p.mu.Lock()
		p.updateGaugesLocked()
		p.mu.Unlock()
		p.log.Printf("pool: health cycle replenished %d idle sessions", created)
	}
}
