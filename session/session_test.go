package session

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/Mengxianke/MySQL-ConnectionPool/errs"
	"github.com/Mengxianke/MySQL-ConnectionPool/metrics"
)

// fakeConn is a minimal database/sql/driver.Conn that records every
// statement it was asked to execute, for testing the transaction
// wrapper methods without a real MySQL server.
type fakeConn struct {
	fail bool
	exec []string
}

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) { return nil, errors.New("unsupported") }
func (c *fakeConn) Close() error                               { return nil }
func (c *fakeConn) Begin() (driver.Tx, error)                  { return nil, errors.New("unsupported") }

func (c *fakeConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.exec = append(c.exec, query)
	if c.fail {
		return nil, errors.New("exec failed")
	}
	return driver.RowsAffected(0), nil
}

type fakeDriver struct {
	conn *fakeConn
}

func (d fakeDriver) Open(name string) (driver.Conn, error) { return d.conn, nil }

var fakeDriverSeq int

func newFakeSession(fail bool) (*Session, *fakeConn) {
	conn := &fakeConn{fail: fail}
	fakeDriverSeq++
	driverName := fmt.Sprintf("faketxn_%d", fakeDriverSeq)
	sql.Register(driverName, fakeDriver{conn: conn})
	db, _ := sql.Open(driverName, "fake")
	reg := metrics.New(driverName)
	return &Session{db: db, maxAttempts: 1, log: log.Default(), metrics: reg}, conn
}

func TestReconnectDelayIsBoundedAndJittered(t *testing.T) {
	base := 1000 * time.Millisecond

	for attempt := 1; attempt <= 6; attempt++ {
		d := reconnectDelay(attempt, base)
		if d < time.Millisecond {
			t.Errorf("attempt %d: delay %v below floor", attempt, d)
		}
		if d > 30*time.Second*12/10 {
			t.Errorf("attempt %d: delay %v exceeds the capped ceiling with jitter", attempt, d)
		}
	}
}

func TestReconnectDelayCapsAtThirtySeconds(t *testing.T) {
	base := 1000 * time.Millisecond
	d := reconnectDelay(20, base) // 2^19 * base would be enormous without the cap
	if d > 36*time.Second {
		t.Errorf("expected delay capped near 30s*1.2, got %v", d)
	}
}

func TestEscapeHandlesControlCharacters(t *testing.T) {
	in := "O'Brien\\x\n\r\x00\x1a"
	out := Escape(in)
	if out == in {
		t.Fatal("expected Escape to modify a string containing special characters")
	}
	if want := "O\\'Brien\\\\x\\n\\r\\0\\Z"; out != want {
		t.Errorf("Escape() = %q, want %q", out, want)
	}
}

func TestClassifyExecErrorPreservesMySQLErrorNumber(t *testing.T) {
	myErr := &mysql.MySQLError{Number: 1146, Message: "no such table"}
	classified := classifyExecError(myErr)

	var sqlErr *errs.SqlExecutionError
	if !errors.As(classified, &sqlErr) {
		t.Fatalf("expected SqlExecutionError, got %T", classified)
	}
	if sqlErr.Code != 1146 {
		t.Errorf("Code = %d, want 1146", sqlErr.Code)
	}
	if errs.IsTransportCode(sqlErr.Code) {
		t.Error("1146 (no such table) must not be classified as transport")
	}
}

func TestClassifyExecErrorMarksTransportCodesRetryable(t *testing.T) {
	myErr := &mysql.MySQLError{Number: 2006, Message: "server has gone away"}
	classified := classifyExecError(myErr)

	if !isRetryable(classified) {
		t.Error("expected code 2006 to be retryable")
	}
}

func TestClassifyExecErrorDoesNotDoubleWrap(t *testing.T) {
	original := &errs.SqlExecutionError{Code: 1062, Msg: "duplicate key"}
	classified := classifyExecError(original)
	if classified != original {
		t.Error("expected classifyExecError to pass through an already-classified error unchanged")
	}
}

func TestBeginCommitRollbackIssueExpectedStatements(t *testing.T) {
	sess, conn := newFakeSession(false)

	if !sess.Begin(context.Background()) {
		t.Fatal("expected Begin to succeed")
	}
	if !sess.Commit(context.Background()) {
		t.Fatal("expected Commit to succeed")
	}
	if !sess.Rollback(context.Background()) {
		t.Fatal("expected Rollback to succeed")
	}

	want := []string{"START TRANSACTION", "COMMIT", "ROLLBACK"}
	if len(conn.exec) != len(want) {
		t.Fatalf("executed statements = %v, want %v", conn.exec, want)
	}
	for i, stmt := range want {
		if conn.exec[i] != stmt {
			t.Errorf("exec[%d] = %q, want %q", i, conn.exec[i], stmt)
		}
	}
}

func TestBeginReportsFalseOnFailureWithoutPanicking(t *testing.T) {
	sess, _ := newFakeSession(true)

	if sess.Begin(context.Background()) {
		t.Error("expected Begin to report false when the underlying exec fails")
	}
}
