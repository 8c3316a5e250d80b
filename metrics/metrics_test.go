package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(statesTriggered)
	StateTriggered()
	StateTriggered()
	if got := testutil.ToFloat64(statesTriggered) - before; got != 2 {
		t.Errorf("states triggered delta = %v, want 2", got)
	}

	RowPersisted("Trc1")
	if got := testutil.ToFloat64(rowsPersisted.WithLabelValues("Trc1")); got < 1 {
		t.Errorf("rows persisted for Trc1 = %v", got)
	}

	before = testutil.ToFloat64(runsFinished.WithLabelValues("cancelled"))
	RunFinished("cancelled")
	if got := testutil.ToFloat64(runsFinished.WithLabelValues("cancelled")) - before; got != 1 {
		t.Errorf("cancelled runs delta = %v, want 1", got)
	}
}

func TestSetRunState(t *testing.T) {
	SetRunState("paused")
	for _, s := range RunStates {
		want := 0.0
		if s == "paused" {
			want = 1
		}
		if got := testutil.ToFloat64(runState.WithLabelValues(s)); got != want {
			t.Errorf("run state %q = %v, want %v", s, got, want)
		}
	}
	SetRunState("idle")
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveCapture(20 * time.Millisecond)
	ObserveRequest("/vnasweep/v1/status", http.MethodGet, http.StatusOK)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"vnasweep_capture_duration_seconds_bucket",
		"vnasweep_run_state",
		`vnasweep_http_requests_total{code="200",method="GET",path="/vnasweep/v1/status"}`,
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output is missing %s", name)
		}
	}
}
