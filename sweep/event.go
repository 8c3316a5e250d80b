package sweep

import (
	"sync"
	"time"

	"github.com/golang/glog"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Kind identifies what happened. Messages may change, kinds don't.
type Kind string

const (
	KindStarted       Kind = "started"
	KindTriggered     Kind = "triggered"
	KindCaptured      Kind = "captured"
	KindTriggerFailed Kind = "trigger_failed"
	KindCaptureFailed Kind = "capture_failed"
	KindPersistFailed Kind = "persist_failed"
	KindPaused        Kind = "paused"
	KindResumed       Kind = "resumed"
	KindCancelling    Kind = "cancelling"
	KindCancelled     Kind = "cancelled"
	KindCompleted     Kind = "completed"
	KindFailed        Kind = "failed"
	KindSnapshot      Kind = "snapshot"
)

type Event struct {
	Time     time.Time `json:"time"`
	Severity Severity  `json:"severity"`
	Kind     Kind      `json:"kind"`
	RunID    string    `json:"runID,omitempty"`
	// State is the actuator state the event refers to, -1 for none.
	State   int    `json:"state"`
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Observer receives every event of a runner. It is called from the run
// goroutine and from Pause/Resume/Cancel callers and must not block.
type Observer func(Event)

// LogObserver writes events to glog.
func LogObserver(e Event) {
	switch e.Severity {
	case SeverityError:
		glog.Errorf("[%s] %s", e.Kind, e.Message)
	case SeverityWarning:
		glog.Warningf("[%s] %s", e.Kind, e.Message)
	default:
		glog.Infof("[%s] %s", e.Kind, e.Message)
	}
}

// Fanout calls every non-nil observer in order.
func Fanout(observers ...Observer) Observer {
	return func(e Event) {
		for _, o := range observers {
			if o != nil {
				o(e)
			}
		}
	}
}

// Recorder keeps the most recent events.
type Recorder struct {
	mu     sync.Mutex
	size   int
	events []Event
}

func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 1
	}
	return &Recorder{size: size}
}

func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	if len(r.events) > r.size {
		r.events = append([]Event(nil), r.events[len(r.events)-r.size:]...)
	}
}

// Events returns the recorded events, oldest first.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
