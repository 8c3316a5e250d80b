package vna

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// Detect tries the candidates in order and returns the first one that
// connects. Lab setups have exactly one analyzer attached at a time.
func Detect(ctx context.Context, candidates ...Instrument) (Instrument, error) {
	for _, c := range candidates {
		ok, err := c.Connect(ctx)
		if err != nil {
			glog.Warningf("probing for %s instrument failed: %s", c.Name(), err)
			continue
		}
		if ok {
			glog.Infof("connected to a %s instrument", c.Name())
			return c, nil
		}
		glog.V(1).Infof("no %s instrument found", c.Name())
	}
	return nil, ErrNoCompatibleInstrument
}

// Analyzer fronts whichever Instrument was detected at connect time so
// callers can hold on to it before, and across, reconnects. It satisfies
// Reader.
type Analyzer struct {
	mu   sync.RWMutex
	inst Instrument
}

// Connect runs Detect over candidates and binds the result, closing any
// previously bound instrument.
func (a *Analyzer) Connect(ctx context.Context, candidates ...Instrument) error {
	inst, err := Detect(ctx, candidates...)
	if err != nil {
		return err
	}
	a.mu.Lock()
	old := a.inst
	a.inst = inst
	a.mu.Unlock()
	if old != nil && old != inst {
		if err := old.Close(); err != nil {
			glog.Warningf("closing previous %s instrument: %s", old.Name(), err)
		}
	}
	return nil
}

// Bind attaches an already connected instrument.
func (a *Analyzer) Bind(inst Instrument) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inst = inst
}

func (a *Analyzer) current() (Instrument, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.inst == nil {
		return nil, ErrNotConnected
	}
	return a.inst, nil
}

// Connected reports whether an instrument is bound.
func (a *Analyzer) Connected() bool {
	_, err := a.current()
	return err == nil
}

func (a *Analyzer) Name() string {
	inst, err := a.current()
	if err != nil {
		return ""
	}
	return inst.Name()
}

// Identifier returns the bound instrument's model and serial, if it reports
// them.
func (a *Analyzer) Identifier() string {
	inst, err := a.current()
	if err != nil {
		return ""
	}
	if id, ok := inst.(Identified); ok {
		return id.Identifier()
	}
	return ""
}

func (a *Analyzer) Traces(ctx context.Context, w *Window) (Axis, []Trace, error) {
	inst, err := a.current()
	if err != nil {
		return nil, nil, err
	}
	return inst.Traces(ctx, w)
}

func (a *Analyzer) ReadAll(ctx context.Context) ([]float64, error) {
	inst, err := a.current()
	if err != nil {
		return nil, err
	}
	return inst.ReadAll(ctx)
}

func (a *Analyzer) CreateTrace(ctx context.Context, name, parameter string, unit Unit) error {
	inst, err := a.current()
	if err != nil {
		return err
	}
	return inst.CreateTrace(ctx, name, parameter, unit)
}

// Configure forwards to the bound instrument if it supports remote setup.
func (a *Analyzer) Configure(ctx context.Context, s Settings) error {
	inst, err := a.current()
	if err != nil {
		return err
	}
	c, ok := inst.(Configurer)
	if !ok {
		return fmt.Errorf("%s instruments cannot be configured remotely", inst.Name())
	}
	if err := s.Validate(); err != nil {
		return err
	}
	return c.Configure(ctx, s)
}

func (a *Analyzer) Close() error {
	a.mu.Lock()
	inst := a.inst
	a.inst = nil
	a.mu.Unlock()
	if inst == nil {
		return nil
	}
	return inst.Close()
}
