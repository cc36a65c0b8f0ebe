package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"testing"

	"github.com/Mengxianke/MySQL-ConnectionPool/backend"
	"github.com/Mengxianke/MySQL-ConnectionPool/config"
	"github.com/Mengxianke/MySQL-ConnectionPool/errs"
	"github.com/Mengxianke/MySQL-ConnectionPool/metrics"
)

var testPoolSeq atomic.Uint64

func newTestPool(cfg config.PoolConfig) *Pool {
	sel := backend.New(nil, config.RoundRobin)
	reg := metrics.New(fmt.Sprintf("pool_test_%d", testPoolSeq.Add(1)))
	return New(cfg, sel, reg, log.Default())
}

func TestAcquireBeforeInitReturnsPoolStopped(t *testing.T) {
	cfg := config.Default()
	p := newTestPool(cfg)

	_, err := p.Acquire(context.Background(), 0)
	var stopped *errs.PoolStopped
	if !errors.As(err, &stopped) {
		t.Fatalf("expected PoolStopped, got %v", err)
	}
}

func TestInitWithZeroInitConnectionsStartsHealthLoop(t *testing.T) {
	cfg := config.Default()
	cfg.InitConnections = 0
	p := newTestPool(cfg)

	if err := p.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer p.Shutdown()

	stats := p.Stats()
	if !stats.Running {
		t.Error("expected pool to report Running after Init")
	}
	if stats.Idle != 0 || stats.Active != 0 {
		t.Errorf("expected empty pool, got idle=%d active=%d", stats.Idle, stats.Active)
	}
}

func TestInitFailsWhenNoBackendAndWarmupRequested(t *testing.T) {
	cfg := config.Default()
	cfg.InitConnections = 1
	p := newTestPool(cfg)

	err := p.Init(context.Background())
	if err == nil {
		p.Shutdown()
		t.Fatal("expected Init to fail when it cannot open any warm-up session")
	}

	// Init must roll back to not-running so a retry is possible.
	if p.Stats().Running {
		t.Error("expected pool to not be running after a failed Init")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	cfg := config.Default()
	cfg.InitConnections = 0
	p := newTestPool(cfg)

	if err := p.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	p.Shutdown()
	p.Shutdown() // must not panic or block
}

func TestSetConnectionLimitsRejectsInvalidBounds(t *testing.T) {
	p := newTestPool(config.Default())

	if err := p.SetConnectionLimits(0, 10); err == nil {
		t.Error("expected error for min < 1")
	}
	if err := p.SetConnectionLimits(10, 5); err == nil {
		t.Error("expected error for max < min")
	}
	if err := p.SetConnectionLimits(2, 10); err != nil {
		t.Errorf("expected valid bounds to be accepted, got %v", err)
	}
}

func TestSetTimeoutSettingsRejectsZero(t *testing.T) {
	p := newTestPool(config.Default())

	if err := p.SetTimeoutSettings(0, 1000, 1000); err == nil {
		t.Error("expected error for zero acquire timeout")
	}
	if err := p.SetTimeoutSettings(1000, 0, 1000); err == nil {
		t.Error("expected error for zero idle TTL")
	}
	if err := p.SetTimeoutSettings(1000, 1000, 0); err == nil {
		t.Error("expected error for zero health period")
	}
	if err := p.SetTimeoutSettings(1000, 2000, 3000); err != nil {
		t.Fatalf("expected valid settings to be accepted, got %v", err)
	}
	if p.cfg.AcquireTimeoutMS != 1000 || p.cfg.IdleTTLMS != 2000 || p.cfg.HealthPeriodMS != 3000 {
		t.Errorf("settings not applied: %+v", p.cfg)
	}
}

func TestAdjustRejectsInvalidConfigWithoutMutatingPool(t *testing.T) {
	cfg := config.Default()
	p := newTestPool(cfg)

	bad := cfg
	bad.MaxConnections = 0
	bad.MinConnections = 5
	if err := p.Adjust(bad); err == nil {
		t.Fatal("expected an invalid config to be rejected")
	}
	if p.cfg.MaxConnections != cfg.MaxConnections {
		t.Error("expected a rejected Adjust to leave the existing config untouched")
	}
}

func TestReleaseOfNilIsNoop(t *testing.T) {
	p := newTestPool(config.Default())
	p.Release(nil) // must not panic
}
