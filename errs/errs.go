// Package errs defines the error taxonomy returned by the pool, the
// session, and the result handle. Domain failures are reported as one of
// these variants (wrapped with %w so errors.As/errors.Is still reach it);
// errors from outside this taxonomy, such as context cancellation, file
// reading, or row scanning, are passed through as they are.
package errs

import "fmt"

// ConfigInvalid is returned when a PoolConfig or BackendSpec fails validation.
type ConfigInvalid struct {
	Reason string
}

func (e *ConfigInvalid) Error() string { return "config invalid: " + e.Reason }

// PoolStopped is returned by any operation attempted on a pool that is
// not in the Running state.
type PoolStopped struct{}

func (e *PoolStopped) Error() string { return "pool is not running" }

// AcquireTimeout is returned when Acquire's deadline elapses before a
// session becomes available.
type AcquireTimeout struct {
	TimeoutMS int
}

func (e *AcquireTimeout) Error() string {
	return fmt.Sprintf("timed out after %dms waiting for a session", e.TimeoutMS)
}

// BackendUnavailable is returned by the selector when no backend is
// configured to pick from.
type BackendUnavailable struct{}

func (e *BackendUnavailable) Error() string { return "no backend available" }

// ConnectFailed is returned when the initial handshake to a backend fails.
type ConnectFailed struct {
	Code uint16
	Msg  string
}

func (e *ConnectFailed) Error() string {
	return fmt.Sprintf("connect failed (code %d): %s", e.Code, e.Msg)
}

// ReconnectExhausted is returned when every reconnect attempt in the
// configured budget failed.
type ReconnectExhausted struct {
	Attempts int
	LastErr  error
}

func (e *ReconnectExhausted) Error() string {
	return fmt.Sprintf("reconnect exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ReconnectExhausted) Unwrap() error { return e.LastErr }

// SqlExecutionError is a server-reported error during execute. Code may
// or may not be transport-class; IsTransportCode reports which.
type SqlExecutionError struct {
	Code uint16
	Msg  string
}

func (e *SqlExecutionError) Error() string {
	return fmt.Sprintf("sql execution error (code %d): %s", e.Code, e.Msg)
}

// transportCodes is the fixed set of MySQL client error numbers that
// indicate the wire connection itself is unusable and a reconnect is
// warranted. This set is bit-exact with the spec's contract and must
// never be extended or shrunk casually — callers rely on exactly these
// six values triggering the retry path.
var transportCodes = map[uint16]bool{
	2002: true, // CR_CONNECTION_ERROR
	2003: true, // CR_CONN_HOST_ERROR
	2006: true, // CR_SERVER_GONE_ERROR
	2013: true, // CR_SERVER_LOST
	2027: true, // CR_MALFORMED_PACKET
	2055: true, // CR_CONN_UNKNOW_PROTOCOL
}

// IsTransportCode reports whether code is one of the fixed transport-class
// error codes that trigger automatic reconnect-and-retry.
func IsTransportCode(code uint16) bool { return transportCodes[code] }

// ExecutionExhausted is returned when query-with-reconnect gave up after
// exhausting its reconnect budget without a non-transport failure.
type ExecutionExhausted struct {
	SQL     string
	LastErr error
}

func (e *ExecutionExhausted) Error() string {
	return fmt.Sprintf("execution exhausted for %q: %v", truncate(e.SQL, 200), e.LastErr)
}

func (e *ExecutionExhausted) Unwrap() error { return e.LastErr }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// NoCurrentRow is returned by a cell accessor called before the first
// successful Advance().
type NoCurrentRow struct{}

func (e *NoCurrentRow) Error() string { return "no current row: call Advance() first" }

// OutOfRange is returned when a cell is accessed outside [0, field_count).
type OutOfRange struct {
	Index, FieldCount int
}

func (e *OutOfRange) Error() string {
	return fmt.Sprintf("field index %d out of range [0,%d)", e.Index, e.FieldCount)
}

// UnknownField is returned by name-based cell access for an unknown name.
type UnknownField struct {
	Name string
}

func (e *UnknownField) Error() string { return fmt.Sprintf("unknown field %q", e.Name) }
