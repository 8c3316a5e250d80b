// Package actuator commands the device under test into discrete states.
package actuator

import (
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrNotConnected    = errors.New("actuator not connected")
	ErrDeviceNotFound  = errors.New("actuator not found")
	ErrCommFail        = errors.New("actuator communication failed")
	ErrInvalidState    = errors.New("invalid actuator state")
	ErrStateOutOfRange = errors.New("state outside device range")
)

// Port sends single state commands to an actuator.
type Port interface {
	Connect() error
	Trigger(state int) error
}

// Session is one open serial session. It is satisfied by serial.Port.
type Session interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	Drain() error
	SetReadTimeout(t time.Duration) error
}

// Range is the inclusive set of states a device accepts.
type Range struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// BitsRange is the range of an n-bit phase shifter or attenuator.
func BitsRange(bits int) Range {
	return Range{Min: 0, Max: 1<<bits - 1}
}

// Profiles are the state ranges of the KU TRM module variants.
var Profiles = map[string]Range{
	"receiver/phase_shifter":    {0, 128},
	"receiver/attenuator":       {0, 128},
	"transmitter/phase_shifter": {0, 128},
	"transmitter/attenuator":    {0, 128},
}

// Check reports the first state outside r.
func (r Range) Check(states []int) error {
	for _, s := range states {
		if s < r.Min || s > r.Max {
			return fmt.Errorf("%w: state %d not within %d-%d", ErrStateOutOfRange, s, r.Min, r.Max)
		}
	}
	return nil
}

// Seq returns count consecutive states starting at r.Min.
func (r Range) Seq(count int) ([]int, error) {
	if count <= 0 || r.Min+count-1 > r.Max {
		return nil, fmt.Errorf("%w: %d states starting at %d exceed %d", ErrStateOutOfRange, count, r.Min, r.Max)
	}
	states := make([]int, count)
	for i := range states {
		states[i] = r.Min + i
	}
	return states, nil
}
