package errs

import (
	"errors"
	"testing"
)

func TestReconnectExhaustedUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &ReconnectExhausted{Attempts: 3, LastErr: inner}

	if !errors.Is(err, inner) {
		t.Fatalf("expected errors.Is to reach the wrapped cause")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty message")
	}
}

func TestExecutionExhaustedTruncatesLongSQL(t *testing.T) {
	sql := make([]byte, 500)
	for i := range sql {
		sql[i] = 'a'
	}
	err := &ExecutionExhausted{SQL: string(sql), LastErr: errors.New("gone away")}

	msg := err.Error()
	if len(msg) > 260 {
		t.Fatalf("expected truncated message, got length %d", len(msg))
	}
}

func TestIsTransportCode(t *testing.T) {
	transport := []uint16{2002, 2003, 2006, 2013, 2027, 2055}
	for _, code := range transport {
		if !IsTransportCode(code) {
			t.Errorf("expected %d to be a transport code", code)
		}
	}

	nonTransport := []uint16{1062, 1146, 1045}
	for _, code := range nonTransport {
		if IsTransportCode(code) {
			t.Errorf("expected %d to not be a transport code", code)
		}
	}
}

func TestErrorVariantsImplementError(t *testing.T) {
	var errs = []error{
		&ConfigInvalid{Reason: "x"},
		&PoolStopped{},
		&AcquireTimeout{TimeoutMS: 5000},
		&BackendUnavailable{},
		&ConnectFailed{Code: 2003, Msg: "refused"},
		&SqlExecutionError{Code: 1146, Msg: "no such table"},
		&NoCurrentRow{},
		&OutOfRange{Index: 5, FieldCount: 3},
		&UnknownField{Name: "missing"},
	}
	for _, err := range errs {
		if err.Error() == "" {
			t.Errorf("expected non-empty message for %T", err)
		}
	}
}
