package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Mengxianke/MySQL-ConnectionPool/errs"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	d := Default()

	cases := map[string]struct{ got, want int }{
		"min_connections":        {d.MinConnections, 5},
		"max_connections":        {d.MaxConnections, 20},
		"init_connections":       {d.InitConnections, 5},
		"acquire_timeout_ms":     {d.AcquireTimeoutMS, 5000},
		"idle_ttl_ms":            {d.IdleTTLMS, 600000},
		"health_period_ms":       {d.HealthPeriodMS, 30000},
		"reconnect_interval_ms":  {d.ReconnectIntervalMS, 1000},
		"max_reconnect_attempts": {d.MaxReconnectAttempts, 3},
	}
	for name, c := range cases {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", name, c.got, c.want)
		}
	}
	if d.Strategy != Weighted {
		t.Errorf("default strategy = %s, want %s", d.Strategy, Weighted)
	}
}

func TestPoolConfigValidateRejectsBadBounds(t *testing.T) {
	cfg := Default()
	cfg.MaxConnections = 2
	cfg.MinConnections = 5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error when max < min")
	}
	var invalid *errs.ConfigInvalid
	if !asConfigInvalid(err, &invalid) {
		t.Fatalf("expected *errs.ConfigInvalid, got %T", err)
	}
}

func asConfigInvalid(err error, target **errs.ConfigInvalid) bool {
	v, ok := err.(*errs.ConfigInvalid)
	if ok {
		*target = v
	}
	return ok
}

func TestBackendSpecAddr(t *testing.T) {
	b := BackendSpec{Host: "db.internal", Port: 3306}
	if got, want := b.Addr(), "db.internal:3306"; got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}

func TestBackendSpecValidateRequiresFields(t *testing.T) {
	b := BackendSpec{Port: 3306}
	if err := b.Validate(); err == nil {
		t.Fatal("expected validation error for missing host/user/database")
	}
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	contents := `
pool:
  strategy: round_robin
backends:
  - host: db1.internal
    user: app
    password: secret
    database: orders
    weight: 3
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, backends, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MinConnections != 5 {
		t.Errorf("expected default min_connections, got %d", cfg.MinConnections)
	}
	if cfg.Strategy != RoundRobin {
		t.Errorf("expected round_robin strategy, got %s", cfg.Strategy)
	}
	if len(backends) != 1 {
		t.Fatalf("expected 1 backend, got %d", len(backends))
	}
	if backends[0].Port != 3306 {
		t.Errorf("expected default port 3306, got %d", backends[0].Port)
	}
}

func TestLoadRejectsEmptyBackendList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pool.yaml")
	if err := os.WriteFile(path, []byte("pool:\nbackends: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := Load(path); err == nil {
		t.Fatal("expected error for empty backend list")
	}
}
