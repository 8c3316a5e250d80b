// Package scpi is the boundary to instrument-control transports. Vendor
// drivers only talk to a Bus and the Conns it opens; what carries the command
// strings (raw socket, VISA, USBTMC) is the Bus implementation's business.
package scpi

import (
	"context"
	"errors"
	"strings"
)

var ErrClosed = errors.New("scpi: connection closed")

// Conn is one open session with an instrument.
type Conn interface {
	// Query sends cmd and returns the response without the line terminator.
	Query(ctx context.Context, cmd string) (string, error)
	// Write sends cmd without expecting a response.
	Write(ctx context.Context, cmd string) error
	Close() error
}

// Bus enumerates and opens instrument resources.
type Bus interface {
	Resources(ctx context.Context) ([]string, error)
	Open(ctx context.Context, resource string) (Conn, error)
}

// SplitList splits a comma separated response and trims every field,
// including the quotes some instruments wrap string lists in.
func SplitList(resp string) []string {
	resp = strings.Trim(strings.TrimSpace(resp), `"'`)
	if resp == "" {
		return nil
	}
	fields := strings.Split(resp, ",")
	for i, f := range fields {
		fields[i] = strings.Trim(strings.TrimSpace(f), `"'`)
	}
	return fields
}
