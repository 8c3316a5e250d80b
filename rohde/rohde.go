package rohde

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
	SourceName = "rohde"
	vendorIDN  = "Rohde-Schwarz"

	stimulusQuery = "TRAC:STIM? CH1DATA"
	catalogQuery  = "CONF:TRAC:CAT?"
	dataQuery     = "CALC1:DATA:ALL? FDAT"
)

// VNA drives R&S ZNx analyzers.
type VNA struct {
	Bus scpi.Bus

	mu         sync.Mutex
	conn       scpi.Conn
	identifier string
}

func (v *VNA) Name() string {
	return SourceName
}

// Identifier returns "model serial" as reported by *IDN?.
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
		idn, ok := probe(ctx, conn)
		if !ok {
			conn.Close()
			continue
		}
		v.mu.Lock()
		v.conn = conn
		v.identifier = idn
		v.mu.Unlock()
		glog.Infof("found %s analyzer %q on %s", vendorIDN, idn, r)
		return true, nil
	}
	return false, nil
}

// probe checks the vendor string and that the stimulus query is understood.
func probe(ctx context.Context, conn scpi.Conn) (string, bool) {
	resp, err := conn.Query(ctx, "*IDN?")
	if err != nil {
		return "", false
	}
	if _, err := conn.Query(ctx, stimulusQuery); err != nil {
		return "", false
	}
	fields := scpi.SplitList(resp)
	if len(fields) == 0 || fields[0] != vendorIDN {
		return "", false
	}
	return strings.Join(fields[1:min(3, len(fields))], " "), true
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

func (v *VNA) Traces(ctx context.Context, w *vna.Window) (vna.Axis, []vna.Trace, error) {
	stim, err := v.query(ctx, stimulusQuery)
	if err != nil {
		return nil, nil, err
	}
	axis, err := vna.ParseHzAxis(scpi.SplitList(stim))
	if err != nil {
		return nil, nil, err
	}

	// The catalog alternates trace number and trace name.
	cat, err := v.query(ctx, catalogQuery)
	if err != nil {
		return nil, nil, err
	}
	fields := scpi.SplitList(cat)
	var traces []vna.Trace
	for i := 1; i < len(fields); i += 2 {
		traces = append(traces, vna.Trace{
			ID:   fields[i],
			File: vna.TraceFileName(axis, w, fields[i]),
		})
	}
	return axis, traces, nil
}

func (v *VNA) ReadAll(ctx context.Context) ([]float64, error) {
	resp, err := v.query(ctx, dataQuery)
	if err != nil {
		return nil, err
	}
	return vna.ParseValues(scpi.SplitList(resp))
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
	for _, cmd := range []string{
		fmt.Sprintf("CALC1:PAR:SDEF '%s','%s'", name, parameter),
		fmt.Sprintf("CALC1:PAR:SEL '%s'", name),
		fmt.Sprintf("CALC1:FORM %s", fmtName),
		fmt.Sprintf("DISP:WIND1:TRAC:EFE '%s'", name),
	} {
		if err := v.write(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (v *VNA) Configure(ctx context.Context, s vna.Settings) error {
	for _, cmd := range []string{
		fmt.Sprintf("SENS1:FREQ:STAR %.0f", s.StartGHz*1e9),
		fmt.Sprintf("SENS1:FREQ:STOP %.0f", s.StopGHz*1e9),
		fmt.Sprintf("SENS1:SWE:POIN %d", s.Points),
		// The count must be at least 1 even with averaging off.
		fmt.Sprintf("SENS1:AVER:COUN %d", max(s.Averages, 1)),
		fmt.Sprintf("SENS1:AVER %s", onOff(s.Averages > 0)),
	} {
		if err := v.write(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
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
