// Package session implements a single pinned connection to one MySQL
// backend: the reconnect engine, the query-with-retry loop, and the
// error classification that decides when a retry is warranted.
package session

import (
	"context"
	"crypto/rand"
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"math"
	mathrand "math/rand"
	"net"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/Mengxianke/MySQL-ConnectionPool/config"
	"github.com/Mengxianke/MySQL-ConnectionPool/errs"
	"github.com/Mengxianke/MySQL-ConnectionPool/metrics"
	"github.com/Mengxianke/MySQL-ConnectionPool/result"
)

// Session is one client-side connection pinned to a single backend. A
// Session is never shared between goroutines concurrently; the pool
// hands out exactly one owner at a time, but the internal mutex still
// protects against a caller that queries concurrently by mistake.
type Session struct {
	mu sync.Mutex

	id      string
	backend config.BackendSpec
	db      *sql.DB

	reconnectInterval time.Duration
	maxAttempts       int

	createdAt     time.Time
	lastActiveAt  time.Time
	reconnects    int
	queriesServed int

	metrics *metrics.Registry
	log     *log.Logger
}

// Open dials backend and returns a ready Session pinned to a single
// physical connection, matching the one-session-one-connection model:
// SetMaxOpenConns/SetMaxIdleConns are both pinned to 1 and the idle
// lifetime is unbounded because the pool, not database/sql, owns
// lifecycle management of this handle.
func Open(ctx context.Context, backend config.BackendSpec, cfg config.PoolConfig, reg *metrics.Registry, logger *log.Logger) (*Session, error) {
	db, err := sql.Open("mysql", dsn(backend))
	if err != nil {
		reg.RecordConnectionFailed()
		return nil, &errs.ConnectFailed{Msg: err.Error()}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		reg.RecordConnectionFailed()
		return nil, classifyConnectError(err)
	}

	reg.RecordConnectionCreated()
	now := time.Now()
	return &Session{
		id:                newSessionID(),
		backend:           backend,
		db:                db,
		reconnectInterval: cfg.ReconnectInterval(),
		maxAttempts:       cfg.MaxReconnectAttempts,
		createdAt:         now,
		lastActiveAt:      now,
		metrics:           reg,
		log:               logger,
	}, nil
}

func dsn(b config.BackendSpec) string {
	cfg := mysql.NewConfig()
	cfg.User = b.User
	cfg.Passwd = b.Password
	cfg.Net = "tcp"
	cfg.Addr = b.Addr()
	cfg.DBName = b.Database
	cfg.ParseTime = true
	cfg.Timeout = 5 * time.Second
	cfg.ReadTimeout = 30 * time.Second
	cfg.WriteTimeout = 30 * time.Second
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// newSessionID generates an opaque 16-character identifier from 8 random
// bytes. If the system RNG is unavailable it falls back to a
// timestamp-derived value so session creation never fails on this step.
func newSessionID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		now := uint64(time.Now().UnixNano())
		for i := range b {
			b[i] = byte(now >> (8 * i))
		}
	}
	return hex.EncodeToString(b[:])
}

// Backend returns the backend this session is pinned to.
func (s *Session) Backend() config.BackendSpec { return s.backend }

// CreatedAt returns when the underlying connection was first opened.
func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// LastActiveAt returns the last time this session executed a query or
// was validated.
func (s *Session) LastActiveAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActiveAt
}

// touch marks the session active now. Caller must hold mu.
func (s *Session) touch() { s.lastActiveAt = time.Now() }

// Ping validates the underlying connection without executing user SQL.
// If allowReconnect is true and the ping fails with a transport-class
// error, Ping attempts to reconnect before reporting failure.
func (s *Session) Ping(ctx context.Context, allowReconnect bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingLocked(ctx, allowReconnect)
}

func (s *Session) pingLocked(ctx context.Context, allowReconnect bool) error {
	err := s.db.PingContext(ctx)
	if err == nil {
		s.touch()
		return nil
	}
	if !allowReconnect || !isTransportError(err) {
		return err
	}
	return s.reconnectLocked(ctx)
}

// reconnectLocked closes and reopens the underlying handle, retrying up
// to maxAttempts times with exponential backoff plus jitter between
// attempts. It re-checks nothing about the caller's intent: it always
// tries, because by the time it is called the current handle is already
// known bad. The lock is held for the whole sequence; sleeps between
// attempts release it so Close/Shutdown are not blocked for the full
// backoff window.
func (s *Session) reconnectLocked(ctx context.Context) error {
	_ = s.db.Close()

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		db, err := sql.Open("mysql", dsn(s.backend))
		if err == nil {
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)
			db.SetConnMaxLifetime(0)
			err = db.PingContext(ctx)
		}
		if err == nil {
			s.db = db
			s.reconnects++
			s.touch()
			s.metrics.RecordReconnect(true)
			return nil
		}
		lastErr = err
		s.metrics.RecordReconnect(false)

		if attempt == s.maxAttempts {
			break
		}

		delay := reconnectDelay(attempt, s.reconnectInterval)
		s.mu.Unlock()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			s.mu.Lock()
			return ctx.Err()
		}
		s.mu.Lock()
	}

	return &errs.ReconnectExhausted{Attempts: s.maxAttempts, LastErr: lastErr}
}

// reconnectDelay computes the backoff for attempt k (1-indexed):
// max(1ms, round(min(base*2^(k-1), 30s) * U(0.8,1.2))).
func reconnectDelay(attempt int, base time.Duration) time.Duration {
	capped := math.Min(float64(base)*math.Pow(2, float64(attempt-1)), float64(30*time.Second))
	jitter := 0.8 + mathrand.Float64()*0.4
	d := time.Duration(math.Round(capped * jitter))
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

// ExecuteQuery runs a SELECT-shaped statement and returns a fully
// materialized QueryResult. On a transport-class failure the session
// reconnects and retries, up to the configured reconnect budget; any
// non-transport failure is returned immediately, classified.
func (s *Session) ExecuteQuery(ctx context.Context, query string, args ...any) (*result.QueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= s.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.reconnectLocked(ctx); err != nil {
				lastErr = err
				continue
			}
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err == nil {
			res, buildErr := result.FromRows(rows)
			rows.Close()
			if buildErr != nil {
				s.metrics.RecordQueryExecuted(time.Since(start), false)
				return nil, buildErr
			}
			s.touch()
			s.queriesServed++
			s.metrics.RecordQueryExecuted(time.Since(start), true)
			return res, nil
		}

		classified := classifyExecError(err)
		lastErr = classified
		if !isRetryable(classified) {
			s.metrics.RecordQueryExecuted(time.Since(start), false)
			return nil, classified
		}
	}

	s.metrics.RecordQueryExecuted(time.Since(start), false)
	return nil, &errs.ExecutionExhausted{SQL: query, LastErr: lastErr}
}

// ExecuteUpdate runs an INSERT/UPDATE/DELETE-shaped statement and
// returns the number of affected rows, with the same reconnect-and-retry
// behavior as ExecuteQuery.
func (s *Session) ExecuteUpdate(ctx context.Context, query string, args ...any) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= s.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := s.reconnectLocked(ctx); err != nil {
				lastErr = err
				continue
			}
		}

		res, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			affected, _ := res.RowsAffected()
			s.touch()
			s.queriesServed++
			s.metrics.RecordQueryExecuted(time.Since(start), true)
			return affected, nil
		}

		classified := classifyExecError(err)
		lastErr = classified
		if !isRetryable(classified) {
			s.metrics.RecordQueryExecuted(time.Since(start), false)
			return 0, classified
		}
	}

	s.metrics.RecordQueryExecuted(time.Since(start), false)
	return 0, &errs.ExecutionExhausted{SQL: query, LastErr: lastErr}
}

// Begin issues START TRANSACTION through the same execute-with-reconnect
// path as any other statement, logging and reporting false on failure
// instead of returning an error, matching the original connection's
// catch-log-false transaction methods.
func (s *Session) Begin(ctx context.Context) bool {
	return s.runTxnStatement(ctx, "START TRANSACTION", "begin transaction")
}

// Commit issues COMMIT through the execute-with-reconnect path.
func (s *Session) Commit(ctx context.Context) bool {
	return s.runTxnStatement(ctx, "COMMIT", "commit transaction")
}

// Rollback issues ROLLBACK through the execute-with-reconnect path.
func (s *Session) Rollback(ctx context.Context) bool {
	return s.runTxnStatement(ctx, "ROLLBACK", "rollback transaction")
}

func (s *Session) runTxnStatement(ctx context.Context, sql, action string) bool {
	if _, err := s.ExecuteUpdate(ctx, sql); err != nil {
		s.log.Printf("session: failed to %s: %v", action, err)
		return false
	}
	return true
}

// Escape applies the same quoting rules as mysql_real_escape_string for
// callers that build SQL manually instead of using parameter
// placeholders. Prefer parameterized queries; this exists for parity
// with the string-building style of the original client library.
func Escape(s string) string {
	var b []byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '\x00', '\n', '\r', '\\', '\'', '"', '\x1a':
			b = append(b, '\\', escapeChar(c))
		default:
			b = append(b, c)
		}
	}
	return string(b)
}

func escapeChar(c byte) byte {
	switch c {
	case '\x00':
		return '0'
	case '\n':
		return 'n'
	case '\r':
		return 'r'
	case '\x1a':
		return 'Z'
	default:
		return c
	}
}

// Close releases the underlying connection. It is safe to call more
// than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// isTransportError reports whether err indicates the wire connection
// itself is unusable, combining the MySQL client error-number contract
// with the Go driver's own connection-loss signals.
func isTransportError(err error) bool {
	return classifyAsTransport(err)
}

func classifyAsTransport(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return errs.IsTransportCode(myErr.Number)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// classifyConnectError maps a failure from the initial dial/ping into
// the ConnectFailed variant, preserving the MySQL error number when
// available.
func classifyConnectError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return &errs.ConnectFailed{Code: myErr.Number, Msg: myErr.Message}
	}
	return &errs.ConnectFailed{Msg: err.Error()}
}

// classifyExecError maps a failure from Query/Exec into a
// SqlExecutionError, preserving the MySQL error number when available so
// IsTransportCode can classify it.
func classifyExecError(err error) error {
	var existing *errs.SqlExecutionError
	if errors.As(err, &existing) {
		return existing
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return &errs.SqlExecutionError{Code: myErr.Number, Msg: myErr.Message}
	}
	if classifyAsTransport(err) {
		return &errs.SqlExecutionError{Code: 2006, Msg: err.Error()}
	}
	return &errs.SqlExecutionError{Msg: err.Error()}
}

// isRetryable reports whether a classified execution error is transport
// class and therefore worth reconnecting for.
func isRetryable(err error) bool {
	var sqlErr *errs.SqlExecutionError
	if errors.As(err, &sqlErr) {
		return errs.IsTransportCode(sqlErr.Code)
	}
	return false
}
