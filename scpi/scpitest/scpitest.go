// Package scpitest provides a scripted in-memory scpi.Bus for driver tests.
package scpitest

import (
	"context"
	"fmt"
	"sync"

	"github.com/hb9tf/vnasweep/scpi"
)

// Device scripts the answers of one fake instrument.
type Device struct {
	// Responses maps a query to its answer.
	Responses map[string]string
	// Errors maps a query or write to the error it fails with.
	Errors map[string]error
	// Handler, if set, is consulted before Responses.
	Handler func(cmd string) (string, bool)

	mu  sync.Mutex
	log []string
}

// Commands returns every command the device has received, in order.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.log...)
}

func (d *Device) handle(cmd string, query bool) (string, error) {
	d.mu.Lock()
	d.log = append(d.log, cmd)
	d.mu.Unlock()

	if err, ok := d.Errors[cmd]; ok {
		return "", err
	}
	if !query {
		return "", nil
	}
	if d.Handler != nil {
		if resp, ok := d.Handler(cmd); ok {
			return resp, nil
		}
	}
	resp, ok := d.Responses[cmd]
	if !ok {
		return "", fmt.Errorf("scpitest: no response scripted for %q", cmd)
	}
	return resp, nil
}

// Bus is a fake scpi.Bus. Resources are listed in the order given.
type Bus struct {
	Order   []string
	Devices map[string]*Device

	mu     sync.Mutex
	opened []string
}

// Opened returns the resources opened so far.
func (b *Bus) Opened() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opened...)
}

func (b *Bus) Resources(ctx context.Context) ([]string, error) {
	return append([]string(nil), b.Order...), nil
}

func (b *Bus) Open(ctx context.Context, resource string) (scpi.Conn, error) {
	d, ok := b.Devices[resource]
	if !ok {
		return nil, fmt.Errorf("scpitest: unknown resource %q", resource)
	}
	b.mu.Lock()
	b.opened = append(b.opened, resource)
	b.mu.Unlock()
	return &conn{dev: d}, nil
}

type conn struct {
	dev    *Device
	closed bool
}

func (c *conn) Query(ctx context.Context, cmd string) (string, error) {
	if c.closed {
		return "", scpi.ErrClosed
	}
	return c.dev.handle(cmd, true)
}

func (c *conn) Write(ctx context.Context, cmd string) error {
	if c.closed {
		return scpi.ErrClosed
	}
	_, err := c.dev.handle(cmd, false)
	return err
}

func (c *conn) Close() error {
	c.closed = true
	return nil
}
