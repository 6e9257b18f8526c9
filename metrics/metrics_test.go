package metrics

import (
	"context"
	"ddnsguard/blocklist"
	"ddnsguard/log"
	"ddnsguard/publicip"
	"ddnsguard/updater"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(context.Background(), zaptest.NewLogger(t))
}

func TestObserveCycle(t *testing.T) {
	m := New("")
	now := time.Unix(1700000000, 0)

	m.ObserveCycle(updater.Outcome{Action: updater.InSync, Started: now})
	m.ObserveCycle(updater.Outcome{Action: updater.Updated, Started: now, Elapsed: 2 * time.Second})
	m.ObserveCycle(updater.Outcome{Action: updater.UpdateFailed, Started: now.Add(time.Minute)})
	m.ObserveCycle(updater.Outcome{Action: updater.ResolveFailed, Started: now.Add(time.Minute)})

	for result, want := range map[string]float64{
		"in_sync":        1,
		"updated":        1,
		"update_failed":  1,
		"resolve_failed": 1,
		"lookup_failed":  0,
	} {
		if got := testutil.ToFloat64(m.cycles.WithLabelValues(result)); got != want {
			t.Errorf("cycles_total{result=%q} = %v, want %v", result, got, want)
		}
	}

	if got := testutil.ToFloat64(m.recordUpdates.WithLabelValues("success")); got != 1 {
		t.Errorf("record_updates_total{success} = %v", got)
	}
	if got := testutil.ToFloat64(m.recordUpdates.WithLabelValues("failure")); got != 1 {
		t.Errorf("record_updates_total{failure} = %v", got)
	}

	// failed cycles do not move the timestamp
	if got := testutil.ToFloat64(m.lastSuccess); got != float64(now.Add(2*time.Second).Unix()) {
		t.Errorf("last_success = %v", got)
	}
}

func TestCandidateRejected(t *testing.T) {
	m := New("")

	m.CandidateRejected("https://a", publicip.ErrBlocked)
	m.CandidateRejected("https://b", publicip.ErrBlocked)
	m.CandidateRejected("https://c", publicip.ErrNotGlobal)
	m.CandidateRejected("https://d", errors.New("odd"))

	for reason, want := range map[string]float64{"blocked": 2, "not_global": 1, "not_ipv4": 0, "other": 1} {
		if got := testutil.ToFloat64(m.rejections.WithLabelValues(reason)); got != want {
			t.Errorf("rejections{reason=%q} = %v, want %v", reason, got, want)
		}
	}
}

func TestObserveBlockList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := New("")
	set := blocklist.NewLoader(srv.URL, time.Second, nil).Load(testContext(t))
	m.ObserveBlockList(set)

	if got := testutil.ToFloat64(m.blockRanges.WithLabelValues("fallback")); got != float64(set.Len()) {
		t.Errorf("blocklist_ranges{fallback} = %v, want %d", got, set.Len())
	}
	if n := testutil.CollectAndCount(m.blockRanges); n != 1 {
		t.Errorf("blocklist_ranges has %d series, want 1", n)
	}
}

func TestFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ddnsguard.prom")
	m := New(path)
	m.ObserveCycle(updater.Outcome{Action: updater.Updated, Started: time.Now()})

	if err := m.Flush(testContext(t)); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `ddnsguard_cycles_total{result="updated"} 1`) {
		t.Errorf("textfile missing cycle counter:\n%s", data)
	}
}

func TestObserveUnloadedBlockList(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := New("")
	m.ObserveBlockList(blocklist.NewLoader(srv.URL, time.Second, nil).Loaded())

	if n := testutil.CollectAndCount(m.blockRanges); n != 0 {
		t.Errorf("blocklist_ranges has %d series before any load, want 0", n)
	}
	if hits != 0 {
		t.Errorf("observing an unloaded list fetched it %d times", hits)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.CandidateRejected("x", publicip.ErrBlocked)
	m.ObserveCycle(updater.Outcome{Action: updater.InSync})
	m.ObserveBlockList(nil)
	if err := m.Flush(context.Background()); err != nil {
		t.Errorf("Flush() on nil = %v", err)
	}
}
