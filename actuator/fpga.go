package actuator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	SourceName = "fpga"

	defaultKeyword    = "USB Serial"
	defaultBaudRate   = 9600
	defaultTimeout    = time.Second
	defaultAckTimeout = 100 * time.Millisecond
)

// FPGA triggers states on an FPGA behind a USB serial bridge. Every trigger
// opens its own session: a port kept open across a failed run tends to stay
// locked.
type FPGA struct {
	// Keyword is matched case-insensitively against the port's product
	// description.
	Keyword  string
	BaudRate int
	// Timeout bounds a whole trigger session.
	Timeout time.Duration
	// AckTimeout bounds the wait for the device's acknowledgment.
	AckTimeout time.Duration

	// ListPorts and OpenPort default to go.bug.st/serial.
	ListPorts func() ([]*enumerator.PortDetails, error)
	OpenPort  func(name string, mode *serial.Mode) (Session, error)

	mu   sync.Mutex
	port string
}

func (f *FPGA) Name() string {
	return SourceName
}

func (f *FPGA) keyword() string {
	if f.Keyword != "" {
		return f.Keyword
	}
	return defaultKeyword
}

func (f *FPGA) mode() *serial.Mode {
	baud := f.BaudRate
	if baud == 0 {
		baud = defaultBaudRate
	}
	return &serial.Mode{BaudRate: baud}
}

func (f *FPGA) timeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return defaultTimeout
}

func (f *FPGA) ackTimeout() time.Duration {
	if f.AckTimeout > 0 {
		return f.AckTimeout
	}
	return defaultAckTimeout
}

func (f *FPGA) open(name string) (Session, error) {
	if f.OpenPort != nil {
		return f.OpenPort(name, f.mode())
	}
	return serial.Open(name, f.mode())
}

// Port returns the serial port bound by Connect.
func (f *FPGA) Port() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.port
}

// Connect binds the single serial port whose description matches Keyword.
// Several matches are treated like none: the choice is left to the operator.
func (f *FPGA) Connect() error {
	list := f.ListPorts
	if list == nil {
		list = enumerator.GetDetailedPortsList
	}
	ports, err := list()
	if err != nil {
		return fmt.Errorf("%w: listing serial ports: %s", ErrDeviceNotFound, err)
	}
	kw := strings.ToLower(f.keyword())
	var matches []string
	for _, p := range ports {
		desc := strings.ToLower(p.Product + " " + p.Name)
		if strings.Contains(desc, kw) {
			matches = append(matches, p.Name)
		}
	}
	switch len(matches) {
	case 0:
		return fmt.Errorf("%w: no serial port matching %q", ErrDeviceNotFound, f.keyword())
	case 1:
	default:
		return fmt.Errorf("%w: %d serial ports match %q: %s", ErrDeviceNotFound, len(matches), f.keyword(), strings.Join(matches, ", "))
	}

	f.mu.Lock()
	f.port = matches[0]
	f.mu.Unlock()
	glog.Infof("found FPGA on %s", matches[0])
	return nil
}

// Trigger writes state as a single byte. A missing acknowledgment is logged,
// not returned.
func (f *FPGA) Trigger(state int) error {
	if state < 0 || state > 255 {
		return fmt.Errorf("%w: %d does not fit in one byte", ErrInvalidState, state)
	}
	port := f.Port()
	if port == "" {
		return ErrNotConnected
	}

	sess, err := f.open(port)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %s", ErrCommFail, port, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- f.exchange(sess, byte(state))
	}()
	select {
	case err := <-done:
		if cerr := sess.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing %s: %s", port, cerr)
		}
		if err != nil {
			return fmt.Errorf("%w: %s", ErrCommFail, err)
		}
	case <-time.After(f.timeout()):
		// Closing unblocks the pending write or read.
		sess.Close()
		return fmt.Errorf("%w: no completion on %s within %s", ErrCommFail, port, f.timeout())
	}
	return nil
}

func (f *FPGA) exchange(sess Session, state byte) error {
	if err := sess.ResetInputBuffer(); err != nil {
		return fmt.Errorf("resetting input buffer: %s", err)
	}
	if _, err := sess.Write([]byte{state}); err != nil {
		return fmt.Errorf("writing state: %s", err)
	}
	if err := sess.Drain(); err != nil {
		return fmt.Errorf("flushing state: %s", err)
	}
	glog.V(1).Infof("triggered Din[%d]", state)

	if err := sess.SetReadTimeout(f.ackTimeout()); err != nil {
		return fmt.Errorf("setting read timeout: %s", err)
	}
	buf := make([]byte, 256)
	n, err := sess.Read(buf)
	if err != nil {
		glog.Warningf("reading FPGA acknowledgment: %s", err)
		return nil
	}
	if resp := strings.TrimSpace(string(buf[:n])); resp != "" {
		glog.V(1).Infof("FPGA response: %q", resp)
	} else {
		glog.Warning("no response received from FPGA")
	}
	return nil
}
