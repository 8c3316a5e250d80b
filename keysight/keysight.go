package keysight

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/glog"

	"github.com/hb9tf/vnasweep/scpi"
	"github.com/hb9tf/vnasweep/vna"
)

const (
	SourceName = "keysight"

	stimulusQuery = "SENS1:X?"
	catalogQuery  = "CALC1:PAR:CAT:EXT?"
	dataQuery     = "CALC1:DATA? FDATA"
)

// Older firmware still reports the Agilent name.
var vendorIDNs = map[string]bool{
	"Keysight Technologies": true,
	"Agilent Technologies":  true,
}

// VNA drives Keysight PNA and ENA analyzers.
type VNA struct {
	Bus scpi.Bus

	mu         sync.Mutex
	conn       scpi.Conn
	identifier string
}

func (v *VNA) Name() string {
	return SourceName
}

func (v *VNA) Identifier() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.identifier
}

func (v *VNA) Connect(ctx context.Context) (bool, error) {
	resources, err := v.Bus.Resources(ctx)
	if err != nil {
		return false, fmt.Errorf("listing resources: %w", err)
	}
	for _, r := range resources {
		conn, err := v.Bus.Open(ctx, r)
		if err != nil {
			glog.V(1).Infof("unable to open %s: %s", r, err)
			continue
		}
		resp, err := conn.Query(ctx, "*IDN?")
		if err != nil {
			conn.Close()
			continue
		}
		fields := scpi.SplitList(resp)
		if len(fields) == 0 || !vendorIDNs[fields[0]] {
			conn.Close()
			continue
		}
		// Continuous triggering keeps the displayed traces fresh between reads.
		if err := conn.Write(ctx, "INIT:CONT ON"); err != nil {
			glog.Warningf("unable to enable continuous sweep on %s: %s", r, err)
			conn.Close()
			continue
		}
		v.mu.Lock()
		v.conn = conn
		v.identifier = strings.Join(fields[1:min(3, len(fields))], " ")
		v.mu.Unlock()
		glog.Infof("found %s analyzer %q on %s", fields[0], v.Identifier(), r)
		return true, nil
	}
	return false, nil
}

func (v *VNA) session() (scpi.Conn, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conn == nil {
		return nil, vna.ErrNotConnected
	}
	return v.conn, nil
}

func (v *VNA) query(ctx context.Context, cmd string) (string, error) {
	conn, err := v.session()
	if err != nil {
		return "", err
	}
	resp, err := conn.Query(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %s", vna.ErrCommFail, cmd, err)
	}
	return resp, nil
}

func (v *VNA) write(ctx context.Context, cmd string) error {
	conn, err := v.session()
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, cmd); err != nil {
		return fmt.Errorf("%w: %s: %s", vna.ErrCommFail, cmd, err)
	}
	return nil
}

// measurements returns the measurement names of channel 1 in display order.
// The extended catalog alternates name and parameter.
func (v *VNA) measurements(ctx context.Context) ([]string, error) {
	cat, err := v.query(ctx, catalogQuery)
	if err != nil {
		return nil, err
	}
	fields := scpi.SplitList(cat)
	var names []string
	for i := 0; i < len(fields); i += 2 {
		if fields[i] == "NO CATALOG" {
			return nil, nil
		}
		names = append(names, fields[i])
	}
	return names, nil
}

func (v *VNA) Traces(ctx context.Context, w *vna.Window) (vna.Axis, []vna.Trace, error) {
	stim, err := v.query(ctx, stimulusQuery)
	if err != nil {
		return nil, nil, err
	}
	axis, err := vna.ParseHzAxis(scpi.SplitList(stim))
	if err != nil {
		return nil, nil, err
	}
	names, err := v.measurements(ctx)
	if err != nil {
		return nil, nil, err
	}
	traces := make([]vna.Trace, 0, len(names))
	for _, n := range names {
		traces = append(traces, vna.Trace{ID: n, File: vna.TraceFileName(axis, w, n)})
	}
	return axis, traces, nil
}

// ReadAll selects each measurement in turn since the analyzer has no single
// query returning every trace.
func (v *VNA) ReadAll(ctx context.Context) ([]float64, error) {
	names, err := v.measurements(ctx)
	if err != nil {
		return nil, err
	}
	var all []float64
	for _, n := range names {
		if err := v.write(ctx, fmt.Sprintf("CALC1:PAR:SEL '%s'", n)); err != nil {
			return nil, err
		}
		resp, err := v.query(ctx, dataQuery)
		if err != nil {
			return nil, err
		}
		vals, err := vna.ParseValues(scpi.SplitList(resp))
		if err != nil {
			return nil, fmt.Errorf("trace %s: %w", n, err)
		}
		all = append(all, vals...)
	}
	return all, nil
}

func format(unit vna.Unit) (string, error) {
	switch unit {
	case vna.UnitDB:
		return "MLOG", nil
	case vna.UnitDeg:
		return "PHAS", nil
	}
	return "", fmt.Errorf("unsupported trace unit %q", unit)
}

func (v *VNA) CreateTrace(ctx context.Context, name, parameter string, unit vna.Unit) error {
	fmtName, err := format(unit)
	if err != nil {
		return err
	}
	existing, err := v.measurements(ctx)
	if err != nil {
		return err
	}
	for _, cmd := range []string{
		fmt.Sprintf("CALC1:PAR:DEF:EXT '%s','%s'", name, parameter),
		fmt.Sprintf("DISP:WIND1:TRAC%d:FEED '%s'", len(existing)+1, name),
		fmt.Sprintf("CALC1:PAR:SEL '%s'", name),
		fmt.Sprintf("CALC1:FORM %s", fmtName),
	} {
		if err := v.write(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (v *VNA) Configure(ctx context.Context, s vna.Settings) error {
	state := "OFF"
	if s.Averages > 0 {
		state = "ON"
	}
	for _, cmd := range []string{
		fmt.Sprintf("SENS1:FREQ:STAR %.0f", s.StartGHz*1e9),
		fmt.Sprintf("SENS1:FREQ:STOP %.0f", s.StopGHz*1e9),
		fmt.Sprintf("SENS1:SWE:POIN %d", s.Points),
		fmt.Sprintf("SENS1:AVER:COUN %d", max(s.Averages, 1)),
		fmt.Sprintf("SENS1:AVER:STAT %s", state),
	} {
		if err := v.write(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (v *VNA) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.conn == nil {
		return nil
	}
	err := v.conn.Close()
	v.conn = nil
	return err
}
