package sweep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/hb9tf/vnasweep/actuator"
	"github.com/hb9tf/vnasweep/export"
	"github.com/hb9tf/vnasweep/metrics"
	"github.com/hb9tf/vnasweep/vna"
)

const (
	defaultPollInterval = 100 * time.Millisecond

	commFailHint = "actuator communication failed; confirm the device is connected and no other process holds the port"
)

// Actuator is the part of an actuator.Port a sweep needs.
type Actuator interface {
	Trigger(state int) error
}

// Runner executes one Job at a time on its own goroutine. The zero value is
// unusable; set Actuator and Instrument.
type Runner struct {
	Actuator   Actuator
	Instrument vna.Reader
	Observer   Observer
	// Mirror receives every row after it was appended to its trace file.
	Mirror export.Exporter
	// Root is where derived run folders are created.
	Root string
	// Identifier tags rows with the station they were captured at.
	Identifier string
	// PollInterval bounds how late pause and cancel requests are noticed.
	PollInterval time.Duration

	paused    atomic.Bool
	cancelled atomic.Bool

	mu     sync.Mutex
	state  State
	status Status
	done   chan struct{}
}

// run is what a sweep caches at start.
type run struct {
	id     string
	job    Job
	csv    *export.CSV
	start  int
	stop   int
	header []float64
	source string
	done   chan struct{}
}

func (r *Runner) poll() time.Duration {
	if r.PollInterval > 0 {
		return r.PollInterval
	}
	return defaultPollInterval
}

func (r *Runner) emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if r.Observer != nil {
		r.Observer(e)
	}
}

// Status returns a snapshot of the runner.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.status
	s.State = r.state.String()
	return s
}

// Done returns a channel closed when the current run ends. Without a run it
// is already closed.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.done
}

// acquire moves an idle runner to state and clears the pause and cancel
// flags of the previous run.
func (r *Runner) acquire(state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Idle {
		return ErrAlreadyRunning
	}
	r.paused.Store(false)
	r.cancelled.Store(false)
	r.state = state
	return nil
}

func (r *Runner) release() {
	r.mu.Lock()
	r.state = Idle
	r.mu.Unlock()
}

// Start validates job, resolves its window against a fresh axis and
// processes its states in the background. It only blocks for the
// validation, during which pause and cancel requests are refused.
func (r *Runner) Start(ctx context.Context, job Job) error {
	if err := r.acquire(Preparing); err != nil {
		return err
	}
	metrics.SetRunState(Preparing.String())
	rn, err := r.prepare(ctx, job)
	if err != nil {
		r.release()
		metrics.SetRunState(Idle.String())
		return err
	}

	r.mu.Lock()
	r.state = Running
	r.done = rn.done
	r.status = Status{
		RunID:   rn.id,
		Dir:     rn.csv.Dir,
		Current: -1,
		Total:   len(rn.job.States),
	}
	r.mu.Unlock()
	metrics.SetRunState(Running.String())

	r.emit(Event{
		Severity: SeverityInfo,
		Kind:     KindStarted,
		RunID:    rn.id,
		State:    -1,
		Total:    len(rn.job.States),
		Message:  fmt.Sprintf("sweep %s started: %d states, window %s GHz, delay %s, writing to %s", rn.id, len(rn.job.States), rn.job.Window, time.Duration(rn.job.Delay), rn.csv.Dir),
	})
	go r.loop(context.WithoutCancel(ctx), rn)
	return nil
}

func (r *Runner) prepare(ctx context.Context, job Job) (*run, error) {
	if err := job.validate(); err != nil {
		return nil, err
	}
	if r.Actuator == nil {
		return nil, actuator.ErrNotConnected
	}
	if r.Instrument == nil {
		return nil, vna.ErrNotConnected
	}
	job.States = append([]int(nil), job.States...)

	axis, _, err := r.Instrument.Traces(ctx, &job.Window)
	if err != nil {
		return nil, err
	}
	start, stop, err := vna.Resolve(axis, job.Window)
	if err != nil {
		return nil, err
	}

	dir := job.Dir
	if dir == "" {
		dir = filepath.Join(r.Root, "measurement_"+time.Now().Format(dirTimeFmt))
	}
	csv, err := export.NewCSV(dir)
	if err != nil {
		return nil, err
	}
	return &run{
		id:     uuid.NewString(),
		job:    job,
		csv:    csv,
		start:  start,
		stop:   stop,
		header: append([]float64(nil), axis[start:stop+1]...),
		source: vna.Source(r.Instrument),
		done:   make(chan struct{}),
	}, nil
}

// Pause holds the run before its next trigger. It reports whether the
// request changed anything.
func (r *Runner) Pause() bool {
	r.mu.Lock()
	if r.state != Running {
		r.mu.Unlock()
		return false
	}
	r.paused.Store(true)
	r.state = Paused
	e := r.controlEvent(KindPaused, "sweep paused")
	r.mu.Unlock()

	metrics.SetRunState(Paused.String())
	r.emit(e)
	return true
}

func (r *Runner) Resume() bool {
	r.mu.Lock()
	if r.state != Paused {
		r.mu.Unlock()
		return false
	}
	r.paused.Store(false)
	r.state = Running
	e := r.controlEvent(KindResumed, "sweep resumed")
	r.mu.Unlock()

	metrics.SetRunState(Running.String())
	r.emit(e)
	return true
}

// Cancel stops the run at its next poll point. A paused run is released
// into the cancellation.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	if r.state != Running && r.state != Paused {
		r.mu.Unlock()
		return false
	}
	if r.cancelled.Swap(true) {
		r.mu.Unlock()
		return false
	}
	r.paused.Store(false)
	r.state = Running
	e := r.controlEvent(KindCancelling, "sweep cancellation requested")
	r.mu.Unlock()

	r.emit(e)
	return true
}

// controlEvent must be called with r.mu held.
func (r *Runner) controlEvent(kind Kind, msg string) Event {
	return Event{
		Severity: SeverityInfo,
		Kind:     kind,
		RunID:    r.status.RunID,
		State:    r.status.Current,
		Step:     r.status.Step,
		Total:    r.status.Total,
		Message:  msg,
	}
}

// waitWhilePaused reports false if the run was cancelled.
func (r *Runner) waitWhilePaused() bool {
	for {
		if r.cancelled.Load() {
			return false
		}
		if !r.paused.Load() {
			return true
		}
		time.Sleep(r.poll())
	}
}

// settle waits d, polling for cancellation. It reports false if the run was
// cancelled.
func (r *Runner) settle(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if r.cancelled.Load() {
			return false
		}
		rem := time.Until(deadline)
		if rem <= 0 {
			return true
		}
		time.Sleep(min(rem, r.poll()))
	}
}

func (r *Runner) setCurrent(state int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Current = state
}

func (r *Runner) setStep(step int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Step = step
}

func (r *Runner) loop(ctx context.Context, rn *run) {
	total := len(rn.job.States)
	for i, state := range rn.job.States {
		if !r.waitWhilePaused() {
			r.finish(rn, Cancelled, nil)
			return
		}
		r.setCurrent(state)

		if err := r.Actuator.Trigger(state); err != nil {
			msg := fmt.Sprintf("triggering state %d failed: %s", state, err)
			if errors.Is(err, actuator.ErrCommFail) {
				msg = fmt.Sprintf("triggering state %d failed: %s (%s)", state, commFailHint, err)
			}
			r.emit(Event{Severity: SeverityError, Kind: KindTriggerFailed, RunID: rn.id, State: state, Step: i, Total: total, Message: msg, Err: err})
			r.finish(rn, Failed, err)
			return
		}
		metrics.StateTriggered()
		r.emit(Event{Severity: SeverityInfo, Kind: KindTriggered, RunID: rn.id, State: state, Step: i, Total: total, Message: fmt.Sprintf("state %d triggered, settling for %s", state, time.Duration(rn.job.Delay))})

		if !r.settle(time.Duration(rn.job.Delay)) || !r.waitWhilePaused() {
			r.finish(rn, Cancelled, nil)
			return
		}

		if kind, err := r.capture(ctx, rn, state); err != nil {
			r.emit(Event{Severity: SeverityError, Kind: kind, RunID: rn.id, State: state, Step: i, Total: total, Message: fmt.Sprintf("capturing state %d failed: %s", state, err), Err: err})
			r.finish(rn, Failed, err)
			return
		}
		r.setStep(i + 1)
		r.emit(Event{Severity: SeveritySuccess, Kind: KindCaptured, RunID: rn.id, State: state, Step: i + 1, Total: total, Message: fmt.Sprintf("state %d captured (%d/%d)", state, i+1, total)})
	}
	r.finish(rn, Completed, nil)
}

// capture reads every trace once and appends the cached window of each to
// its file. The returned kind tells instrument from persistence failures.
func (r *Runner) capture(ctx context.Context, rn *run, state int) (Kind, error) {
	began := time.Now()
	axis, traces, err := r.Instrument.Traces(ctx, &rn.job.Window)
	if err != nil {
		return KindCaptureFailed, err
	}
	data, err := r.Instrument.ReadAll(ctx)
	if err != nil {
		return KindCaptureFailed, err
	}
	step := len(axis)
	if step <= rn.stop {
		return KindPersistFailed, fmt.Errorf("%w: axis shrank to %d points, window ends at index %d", export.ErrPersistence, step, rn.stop)
	}
	if len(data) != step*len(traces) {
		return KindPersistFailed, fmt.Errorf("%w: reading has %d values for %d traces of %d points", export.ErrPersistence, len(data), len(traces), step)
	}

	captured := time.Now()
	for i, tr := range traces {
		row := &vna.Row{
			RunID:      rn.id,
			Identifier: r.Identifier,
			Source:     rn.source,
			Trace:      tr.ID,
			File:       tr.File,
			State:      state,
			Freqs:      rn.header,
			Values:     data[i*step+rn.start : i*step+rn.stop+1],
			Captured:   captured,
		}
		if err := rn.csv.Write(ctx, row); err != nil {
			return KindPersistFailed, err
		}
		metrics.RowPersisted(tr.ID)
		if r.Mirror != nil {
			if err := r.Mirror.Write(ctx, row); err != nil {
				if !errors.Is(err, export.ErrPersistence) {
					err = fmt.Errorf("%w: %s", export.ErrPersistence, err)
				}
				return KindPersistFailed, err
			}
		}
	}
	metrics.ObserveCapture(time.Since(began))
	return "", nil
}

func (r *Runner) finish(rn *run, outcome State, err error) {
	if cerr := rn.csv.Close(); cerr != nil {
		glog.Warningf("closing trace files of run %s: %s", rn.id, cerr)
	}

	r.mu.Lock()
	r.state = Idle
	r.status.Outcome = outcome.String()
	if err != nil {
		r.status.Error = err.Error()
	}
	step, total := r.status.Step, r.status.Total
	r.mu.Unlock()
	r.paused.Store(false)
	metrics.SetRunState(Idle.String())
	metrics.RunFinished(outcome.String())

	e := Event{RunID: rn.id, State: -1, Step: step, Total: total, Err: err}
	switch outcome {
	case Completed:
		e.Severity, e.Kind = SeveritySuccess, KindCompleted
		e.Message = fmt.Sprintf("sweep %s completed: %d states in %s", rn.id, step, rn.csv.Dir)
	case Cancelled:
		e.Severity, e.Kind = SeverityWarning, KindCancelled
		e.Message = fmt.Sprintf("sweep %s cancelled after %d of %d states", rn.id, step, total)
	default:
		e.Severity, e.Kind = SeverityError, KindFailed
		e.Message = fmt.Sprintf("sweep %s failed after %d of %d states: %s", rn.id, step, total, err)
	}
	r.emit(e)
	close(rn.done)
}
