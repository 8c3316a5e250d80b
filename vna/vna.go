package vna

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotConnected           = errors.New("no instrument connected")
	ErrNoCompatibleInstrument = errors.New("no compatible instrument found")
	ErrCommFail               = errors.New("instrument communication failed")
)

// Axis is a swept frequency axis in GHz.
type Axis []float64

// Trace is one active measurement channel of the instrument.
type Trace struct {
	// ID is the vendor name of the trace, e.g. "Trc1" or "S21 dB".
	ID string
	// File is the CSV file name the trace is persisted to.
	File string
}

type Unit string

const (
	UnitDB  Unit = "db"
	UnitDeg Unit = "deg"
)

// Row is the windowed capture of one trace for one actuator state.
type Row struct {
	// Metadata
	RunID      string
	Identifier string
	Source     string

	// Measurement
	Trace    string
	File     string
	State    int
	Freqs    []float64
	Values   []float64
	Captured time.Time
}

// Reader is the part of an instrument a sweep needs.
type Reader interface {
	Name() string
	// Traces returns the live frequency axis and the active traces. File names
	// use the window bounds when w is given, otherwise the axis bounds.
	Traces(ctx context.Context, w *Window) (Axis, []Trace, error)
	// ReadAll returns every active trace's data concatenated in trace order.
	ReadAll(ctx context.Context) ([]float64, error)
}

// Identified is implemented by instruments that report their model and
// serial number.
type Identified interface {
	Identifier() string
}

// Source names the instrument rows are captured with: the dialect name,
// followed by model and serial when the instrument reports them.
func Source(r Reader) string {
	name := r.Name()
	if id, ok := r.(Identified); ok {
		if s := id.Identifier(); s != "" {
			return name + " " + s
		}
	}
	return name
}

// Instrument is implemented once per vendor dialect.
type Instrument interface {
	Reader
	// Connect binds the first compatible resource. It reports false, not an
	// error, when none is found so the next dialect can be tried.
	Connect(ctx context.Context) (bool, error)
	CreateTrace(ctx context.Context, name, parameter string, unit Unit) error
	Close() error
}

// Settings are the sweep parameters an operator sets before measuring.
type Settings struct {
	StartGHz float64
	StopGHz  float64
	Points   int
	Averages int
}

func (s Settings) Validate() error {
	if s.StartGHz <= 0 || s.StopGHz < s.StartGHz {
		return fmt.Errorf("invalid sweep range %v-%v GHz", s.StartGHz, s.StopGHz)
	}
	if s.Points <= 0 {
		return fmt.Errorf("invalid sweep point count %d", s.Points)
	}
	if s.Averages < 0 {
		return fmt.Errorf("invalid average count %d", s.Averages)
	}
	return nil
}

// Configurer is implemented by instruments that can be set up remotely.
type Configurer interface {
	Configure(ctx context.Context, s Settings) error
}

// FormatGHz renders a frequency or value the way it appears in persisted
// files: shortest round-trip digits, always with a decimal point or exponent.
func FormatGHz(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	abs := math.Abs(v)
	var s string
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		s = strconv.FormatFloat(v, 'e', -1, 64)
	} else {
		s = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// TraceFileName builds "{start}-{end}_{trace}.csv".
func TraceFileName(axis Axis, w *Window, traceID string) string {
	var start, end float64
	switch {
	case w != nil:
		start, end = w.Start, w.End
	case len(axis) > 0:
		start, end = axis[0], axis[len(axis)-1]
	}
	return fmt.Sprintf("%s-%s_%s.csv", FormatGHz(start), FormatGHz(end), traceID)
}

// ParseHzAxis converts a list of frequencies in Hz to an Axis in GHz.
func ParseHzAxis(fields []string) (Axis, error) {
	axis := make(Axis, 0, len(fields))
	for _, f := range fields {
		hz, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing frequency %q: %w", f, err)
		}
		axis = append(axis, hz/1e9)
	}
	return axis, nil
}

// ParseValues converts a list of numbers as returned by a data query.
func ParseValues(fields []string) ([]float64, error) {
	vals := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing value %q: %w", f, err)
		}
		vals = append(vals, v)
	}
	return vals, nil
}
