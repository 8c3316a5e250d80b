package scpi

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

const (
	// DefaultPort is the raw SCPI socket port used by R&S and Keysight analyzers.
	DefaultPort    = 5025
	defaultTimeout = 5 * time.Second
)

// TCPBus talks SCPI over raw sockets to a fixed list of LAN instruments.
type TCPBus struct {
	// Addrs are host or host:port entries. Port defaults to DefaultPort.
	Addrs   []string
	Timeout time.Duration
}

func (b *TCPBus) timeout() time.Duration {
	if b.Timeout > 0 {
		return b.Timeout
	}
	return defaultTimeout
}

func (b *TCPBus) Resources(ctx context.Context) ([]string, error) {
	var res []string
	for _, a := range b.Addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(a); err != nil {
			a = net.JoinHostPort(a, fmt.Sprintf("%d", DefaultPort))
		}
		res = append(res, a)
	}
	return res, nil
}

func (b *TCPBus) Open(ctx context.Context, resource string) (Conn, error) {
	d := net.Dialer{Timeout: b.timeout()}
	c, err := d.DialContext(ctx, "tcp", resource)
	if err != nil {
		return nil, err
	}
	return &tcpConn{
		resource: resource,
		conn:     c,
		r:        bufio.NewReader(c),
		timeout:  b.timeout(),
	}, nil
}

type tcpConn struct {
	resource string
	timeout  time.Duration

	mu     sync.Mutex
	conn   net.Conn
	r      *bufio.Reader
	closed bool
}

func (c *tcpConn) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}

func (c *tcpConn) send(ctx context.Context, cmd string) error {
	if c.closed {
		return ErrClosed
	}
	glog.V(2).Infof("scpi %s <- %s", c.resource, cmd)
	if err := c.conn.SetDeadline(c.deadline(ctx)); err != nil {
		return err
	}
	_, err := c.conn.Write([]byte(cmd + "\n"))
	return err
}

func (c *tcpConn) Write(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, cmd)
}

func (c *tcpConn) Query(ctx context.Context, cmd string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(ctx, cmd); err != nil {
		return "", err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading response to %q: %w", cmd, err)
	}
	line = strings.TrimRight(line, "\r\n")
	glog.V(3).Infof("scpi %s -> %s", c.resource, line)
	return line, nil
}

func (c *tcpConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
