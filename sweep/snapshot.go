package sweep

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"github.com/hb9tf/vnasweep/export"
	"github.com/hb9tf/vnasweep/metrics"
	"github.com/hb9tf/vnasweep/vna"
)

// Snapshot writes one "freq,value," file per active trace into dir without
// touching the actuator, e.g. to record a reference line or an amplifier
// before a sweep. Traces whose file already exists are skipped. w nil
// captures the whole axis.
func Snapshot(ctx context.Context, inst vna.Reader, w *vna.Window, dir string) ([]string, error) {
	axis, traces, err := inst.Traces(ctx, w)
	if err != nil {
		return nil, err
	}
	data, err := inst.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	start, stop := 0, len(axis)-1
	if w != nil {
		if start, stop, err = vna.Resolve(axis, *w); err != nil {
			return nil, err
		}
	}
	step := len(axis)
	if step == 0 || len(data) != step*len(traces) {
		return nil, fmt.Errorf("%w: reading has %d values for %d traces of %d points", export.ErrPersistence, len(data), len(traces), step)
	}

	var written []string
	for i, tr := range traces {
		ok, err := export.WriteSnapshot(dir, tr.File, axis[start:stop+1], data[i*step+start:i*step+stop+1])
		if err != nil {
			return written, err
		}
		if !ok {
			glog.Warningf("%s already exists in %s, not overwriting it", tr.File, dir)
			continue
		}
		written = append(written, tr.File)
	}
	return written, nil
}

// Snapshot runs the package level Snapshot on the runner's instrument while
// no sweep is active.
func (r *Runner) Snapshot(ctx context.Context, w *vna.Window, dir string) ([]string, error) {
	if r.Instrument == nil {
		return nil, vna.ErrNotConnected
	}
	if err := r.acquire(Snapshotting); err != nil {
		return nil, err
	}
	metrics.SetRunState(Snapshotting.String())
	defer func() {
		r.release()
		metrics.SetRunState(Idle.String())
	}()

	files, err := Snapshot(ctx, r.Instrument, w, dir)
	if err != nil {
		r.emit(Event{Severity: SeverityError, Kind: KindSnapshot, State: -1, Message: fmt.Sprintf("snapshot into %s failed: %s", dir, err), Err: err})
		return files, err
	}
	r.emit(Event{Severity: SeveritySuccess, Kind: KindSnapshot, State: -1, Message: fmt.Sprintf("snapshot of %d traces written to %s", len(files), dir)})
	return files, nil
}
