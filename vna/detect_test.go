package vna

import (
	"context"
	"errors"
	"testing"
)

type fakeInstrument struct {
	name       string
	found      bool
	connectErr error

	connects int
	closed   bool
	settings *Settings
}

func (f *fakeInstrument) Name() string { return f.name }

func (f *fakeInstrument) Connect(ctx context.Context) (bool, error) {
	f.connects++
	return f.found, f.connectErr
}

func (f *fakeInstrument) Traces(ctx context.Context, w *Window) (Axis, []Trace, error) {
	axis := Axis{1, 2, 3}
	return axis, []Trace{{ID: "Trc1", File: TraceFileName(axis, w, "Trc1")}}, nil
}

func (f *fakeInstrument) ReadAll(ctx context.Context) ([]float64, error) {
	return []float64{-1, -2, -3}, nil
}

func (f *fakeInstrument) CreateTrace(ctx context.Context, name, parameter string, unit Unit) error {
	return nil
}

func (f *fakeInstrument) Close() error {
	f.closed = true
	return nil
}

type configurableInstrument struct {
	fakeInstrument
}

func (c *configurableInstrument) Configure(ctx context.Context, s Settings) error {
	c.settings = &s
	return nil
}

func TestDetectFirstMatchWins(t *testing.T) {
	ctx := context.Background()
	broken := &fakeInstrument{name: "broken", connectErr: errors.New("visa missing")}
	absent := &fakeInstrument{name: "absent"}
	first := &fakeInstrument{name: "first", found: true}
	second := &fakeInstrument{name: "second", found: true}

	got, err := Detect(ctx, broken, absent, first, second)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if got != first {
		t.Fatalf("expected first compatible instrument, got %s", got.Name())
	}
	if second.connects != 0 {
		t.Fatalf("lower priority instrument was probed")
	}
}

func TestDetectNoneCompatible(t *testing.T) {
	_, err := Detect(context.Background(), &fakeInstrument{name: "a"}, &fakeInstrument{name: "b"})
	if !errors.Is(err, ErrNoCompatibleInstrument) {
		t.Fatalf("expected ErrNoCompatibleInstrument, got %v", err)
	}
}

func TestAnalyzerNotConnected(t *testing.T) {
	ctx := context.Background()
	a := &Analyzer{}
	if a.Connected() {
		t.Fatalf("fresh analyzer reports connected")
	}
	if _, _, err := a.Traces(ctx, nil); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("traces: expected ErrNotConnected, got %v", err)
	}
	if _, err := a.ReadAll(ctx); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("read: expected ErrNotConnected, got %v", err)
	}
	if err := a.CreateTrace(ctx, "S21 dB", "S21", UnitDB); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("create trace: expected ErrNotConnected, got %v", err)
	}
}

func TestAnalyzerDelegatesAndSwaps(t *testing.T) {
	ctx := context.Background()
	a := &Analyzer{}
	first := &fakeInstrument{name: "first", found: true}
	if err := a.Connect(ctx, first); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if a.Name() != "first" {
		t.Fatalf("expected first, got %q", a.Name())
	}
	_, traces, err := a.Traces(ctx, &Window{1, 2})
	if err != nil {
		t.Fatalf("traces: %v", err)
	}
	if traces[0].File != "1.0-2.0_Trc1.csv" {
		t.Fatalf("unexpected file name %q", traces[0].File)
	}

	second := &fakeInstrument{name: "second", found: true}
	if err := a.Connect(ctx, second); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if !first.closed {
		t.Fatalf("previous instrument was not closed on swap")
	}
	if err := a.Configure(ctx, Settings{StartGHz: 1, StopGHz: 2, Points: 3}); err == nil {
		t.Fatalf("expected configure to fail on a non-configurable instrument")
	}

	third := &configurableInstrument{fakeInstrument{name: "third", found: true}}
	a.Bind(third)
	s := Settings{StartGHz: 1, StopGHz: 2, Points: 3, Averages: 1}
	if err := a.Configure(ctx, s); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if third.settings == nil || *third.settings != s {
		t.Fatalf("settings not forwarded: %+v", third.settings)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if a.Connected() {
		t.Fatalf("analyzer still connected after close")
	}
}

type identifiedInstrument struct {
	fakeInstrument
	id string
}

func (i *identifiedInstrument) Identifier() string { return i.id }

func TestSource(t *testing.T) {
	plain := &fakeInstrument{name: "keysight", found: true}
	if got := Source(plain); got != "keysight" {
		t.Errorf("Source(plain) = %q", got)
	}
	unknown := &identifiedInstrument{fakeInstrument: fakeInstrument{name: "rohde"}}
	if got := Source(unknown); got != "rohde" {
		t.Errorf("Source() without identifier = %q", got)
	}

	znb := &identifiedInstrument{fakeInstrument: fakeInstrument{name: "rohde", found: true}, id: "ZNB20-2Port 1311601062102345"}
	a := &Analyzer{}
	if got := Source(a); got != "" {
		t.Errorf("Source() of an unbound analyzer = %q", got)
	}
	a.Bind(znb)
	if got, want := Source(a), "rohde ZNB20-2Port 1311601062102345"; got != want {
		t.Errorf("Source(analyzer) = %q, want %q", got, want)
	}
	a.Bind(plain)
	if got := Source(a); got != "keysight" {
		t.Errorf("Source() after rebinding = %q", got)
	}
}
