package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestSnapshotAggregatesRecordedEvents(t *testing.T) {
	r := New("test_snapshot")

	r.RecordConnectionCreated()
	r.RecordConnectionCreated()
	r.RecordConnectionFailed()
	r.RecordConnectionAcquired(10 * time.Millisecond)
	r.RecordConnectionReleased(50 * time.Millisecond)
	r.RecordQueryExecuted(5*time.Millisecond, true)
	r.RecordQueryExecuted(5*time.Millisecond, false)
	r.RecordReconnect(true)
	r.RecordReconnect(false)

	snap := r.Snapshot()

	if snap.ConnectionsCreated != 2 {
		t.Errorf("ConnectionsCreated = %d, want 2", snap.ConnectionsCreated)
	}
	if snap.ConnectionsFailed != 1 {
		t.Errorf("ConnectionsFailed = %d, want 1", snap.ConnectionsFailed)
	}
	if snap.QueriesExecuted != 2 {
		t.Errorf("QueriesExecuted = %d, want 2", snap.QueriesExecuted)
	}
	if snap.FailedQueries != 1 {
		t.Errorf("FailedQueries = %d, want 1", snap.FailedQueries)
	}
	if snap.ReconnectAttempts != 2 || snap.SuccessfulReconnects != 1 {
		t.Errorf("reconnect counters = %d/%d, want 2/1", snap.ReconnectAttempts, snap.SuccessfulReconnects)
	}
}

func TestDerivedRatesHandleZeroDenominator(t *testing.T) {
	var snap Snapshot
	if rate := snap.QuerySuccessRate(); rate != 0 {
		t.Errorf("expected 0 success rate with no queries executed, got %v", rate)
	}
	if avg := snap.AvgQueryTimeUS(); avg != 0 {
		t.Errorf("expected 0 average with no queries executed, got %v", avg)
	}
}

func TestConnectionSuccessRate(t *testing.T) {
	snap := Snapshot{ConnectionsCreated: 9, ConnectionsFailed: 1}
	if rate := snap.ConnectionSuccessRate(); rate != 90 {
		t.Errorf("ConnectionSuccessRate() = %v, want 90", rate)
	}
}

func TestExportCSVIncludesHeaderAndTrailer(t *testing.T) {
	snap := Snapshot{ConnectionsCreated: 3, QueriesExecuted: 10, FailedQueries: 1}

	var buf strings.Builder
	if err := ExportCSV(&buf, snap); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	if lines[0] != "metric,value,unit,description" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, "exported_at,") {
		t.Errorf("expected trailing exported_at row, got %q", last)
	}
	if !strings.Contains(out, "connections_created,3,count,") {
		t.Errorf("expected connections_created row in output:\n%s", out)
	}
}
