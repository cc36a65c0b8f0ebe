// Package backend selects which configured database endpoint a new
// session should connect to, using one of three strategies: random,
// round-robin, or weighted-random.
package backend

import (
	"math/rand"
	"sync"

	"github.com/Mengxianke/MySQL-ConnectionPool/config"
	"github.com/Mengxianke/MySQL-ConnectionPool/errs"
)

// Selector owns a mutable list of backends and hands one out per call to
// Pick, according to its current strategy. A Selector belongs to exactly
// one Pool instance; it is not a package-level singleton.
type Selector struct {
	mu       sync.Mutex
	specs    []config.BackendSpec
	strategy config.Strategy
	rrIndex  int
	rng      *rand.Rand
}

// New builds a Selector over specs using the given strategy. specs is
// copied; the caller's slice is not retained.
func New(specs []config.BackendSpec, strategy config.Strategy) *Selector {
	s := &Selector{
		specs:    append([]config.BackendSpec(nil), specs...),
		strategy: strategy,
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	return s
}

// Pick returns the next backend per the current strategy, or
// BackendUnavailable if no backend is configured.
func (s *Selector) Pick() (config.BackendSpec, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.specs) == 0 {
		return config.BackendSpec{}, &errs.BackendUnavailable{}
	}

	switch s.strategy {
	case config.RoundRobin:
		return s.pickRoundRobinLocked(), nil
	case config.Weighted:
		return s.pickWeightedLocked(), nil
	default:
		return s.specs[s.rng.Intn(len(s.specs))], nil
	}
}

func (s *Selector) pickRoundRobinLocked() config.BackendSpec {
	spec := s.specs[s.rrIndex%len(s.specs)]
	s.rrIndex = (s.rrIndex + 1) % len(s.specs)
	return spec
}

// pickWeightedLocked draws a random index in [0, totalWeight) and walks
// the accumulated weight until it exceeds the draw, mirroring a classic
// prefix-sum weighted sample. Falls back to the first backend if no
// accumulation exceeds the draw, which can only happen if every weight
// is zero.
func (s *Selector) pickWeightedLocked() config.BackendSpec {
	total := 0
	for _, spec := range s.specs {
		total += spec.Weight
	}
	if total <= 0 {
		return s.specs[0]
	}

	draw := s.rng.Intn(total)
	accum := 0
	for _, spec := range s.specs {
		accum += spec.Weight
		if draw < accum {
			return spec
		}
	}
	return s.specs[0]
}

// Add appends a backend to the pool of candidates. It is a no-op if a
// backend with the same (host, port) is already present, and fails if
// spec does not pass validation.
func (s *Selector) Add(spec config.BackendSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.specs {
		if existing.Addr() == spec.Addr() {
			return nil
		}
	}
	s.specs = append(s.specs, spec)
	return nil
}

// Remove drops every backend matching addr (host:port), clamping the
// round-robin cursor back into range if it runs off the end. It reports
// whether anything was removed.
func (s *Selector) Remove(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.specs[:0]
	removed := false
	for _, spec := range s.specs {
		if spec.Addr() == addr {
			removed = true
			continue
		}
		kept = append(kept, spec)
	}
	s.specs = kept

	if len(s.specs) == 0 {
		s.rrIndex = 0
	} else {
		s.rrIndex %= len(s.specs)
	}
	return removed
}

// SetWeight updates the weight of the backend at addr, if present. It
// reports whether a matching backend was found.
func (s *Selector) SetWeight(addr string, weight int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.specs {
		if s.specs[i].Addr() == addr {
			s.specs[i].Weight = weight
			return true
		}
	}
	return false
}

// SetStrategy switches the active selection strategy. Switching to
// RoundRobin from another strategy resets the cursor to the start;
// setting RoundRobin while it is already active leaves the cursor alone.
func (s *Selector) SetStrategy(strategy config.Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strategy == config.RoundRobin && s.strategy != config.RoundRobin {
		s.rrIndex = 0
	}
	s.strategy = strategy
}

// Status returns a short human-readable summary of the selector's
// current configuration, useful for logging at startup.
func (s *Selector) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.strategy)
}

// Specs returns a copy of the currently configured backends.
func (s *Selector) Specs() []config.BackendSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]config.BackendSpec(nil), s.specs...)
}
