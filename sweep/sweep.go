// Package sweep sequences actuator states against instrument captures and
// persists one row per trace and state.
package sweep

import (
	"errors"
	"fmt"
	"time"

	"github.com/hb9tf/vnasweep/vna"
)

var (
	ErrAlreadyRunning = errors.New("a sweep is already running")
	ErrInvalidJob     = errors.New("invalid sweep job")
)

const (
	MaxState = 255

	dirTimeFmt = "2006-01-02_15-04-05"
)

// State is the runner's position in its lifecycle. Completed, Cancelled and
// Failed are outcomes of a run; the runner itself returns to Idle.
type State int

const (
	Idle State = iota
	Running
	Paused
	Completed
	Cancelled
	Failed
	// Preparing is held while Start validates a job against the instrument.
	Preparing
	// Snapshotting is held while a single capture is taken.
	Snapshotting
)

var stateNames = map[State]string{
	Idle:         "idle",
	Running:      "running",
	Paused:       "paused",
	Completed:    "completed",
	Cancelled:    "cancelled",
	Failed:       "failed",
	Preparing:    "preparing",
	Snapshotting: "snapshotting",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Job is one sweep: states in the order they are triggered, the window
// persisted of every trace and the settle time after each trigger.
type Job struct {
	States []int      `json:"states"`
	Window vna.Window `json:"window"`
	Delay  Duration   `json:"delay"`
	// Dir is the run folder. Empty derives a timestamped folder below the
	// runner's root.
	Dir string `json:"dir,omitempty"`
}

func (j *Job) validate() error {
	for _, s := range j.States {
		if s < 0 || s > MaxState {
			return fmt.Errorf("%w: state %d not within 0-%d", ErrInvalidJob, s, MaxState)
		}
	}
	if j.Delay <= 0 {
		return fmt.Errorf("%w: delay must be positive, got %s", ErrInvalidJob, time.Duration(j.Delay))
	}
	return nil
}

// Duration is a time.Duration that reads either a Go duration string
// ("1.5s") or a number of seconds from JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", time.Duration(d).String())), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' {
		v, err := time.ParseDuration(s[1 : len(s)-1])
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if _, err := fmt.Sscan(s, &secs); err != nil {
		return fmt.Errorf("invalid duration %s", s)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Status is a point-in-time view of the runner.
type Status struct {
	State   string `json:"state"`
	RunID   string `json:"runID,omitempty"`
	Dir     string `json:"dir,omitempty"`
	Current int    `json:"current"`
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	// Outcome and Error describe the last finished run.
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}
