package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunStates lists every value the run state gauge can be set to.
var RunStates = []string{"idle", "preparing", "running", "paused", "snapshotting"}

var (
	statesTriggered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vnasweep_states_triggered_total",
			Help: "Actuator states successfully triggered.",
		},
	)

	rowsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vnasweep_rows_persisted_total",
			Help: "Trace rows appended to trace files.",
		},
		[]string{"trace"},
	)

	runsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vnasweep_runs_total",
			Help: "Finished sweep runs by outcome.",
		},
		[]string{"outcome"},
	)

	runState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vnasweep_run_state",
			Help: "1 for the state the sweep runner is currently in.",
		},
		[]string{"state"},
	)

	captureSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vnasweep_capture_duration_seconds",
			Help:    "Time to read and persist all traces of one state.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vnasweep_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)
)

func init() {
	prometheus.MustRegister(statesTriggered)
	prometheus.MustRegister(rowsPersisted)
	prometheus.MustRegister(runsFinished)
	prometheus.MustRegister(runState)
	prometheus.MustRegister(captureSeconds)
	prometheus.MustRegister(httpRequestsTotal)
	SetRunState("idle")
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func StateTriggered() {
	statesTriggered.Inc()
}

func RowPersisted(trace string) {
	rowsPersisted.WithLabelValues(trace).Inc()
}

// RunFinished counts a run ending as completed, cancelled or failed.
func RunFinished(outcome string) {
	runsFinished.WithLabelValues(outcome).Inc()
}

// SetRunState flips the run state gauge to state.
func SetRunState(state string) {
	for _, s := range RunStates {
		v := 0.0
		if s == state {
			v = 1
		}
		runState.WithLabelValues(s).Set(v)
	}
}

func ObserveCapture(d time.Duration) {
	captureSeconds.Observe(d.Seconds())
}

// ObserveRequest records one served HTTP request.
func ObserveRequest(path, method string, code int) {
	httpRequestsTotal.WithLabelValues(path, method, strconv.Itoa(code)).Inc()
}
