package scpi

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"
)

func TestSplitList(t *testing.T) {
	got := SplitList(`"1, Trc1 ,2,Trc2"` + "\n")
	want := []string{"1", "Trc1", "2", "Trc2"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("field %d: expected %q, got %q", i, want[i], got[i])
		}
	}
	if SplitList("  ") != nil {
		t.Fatalf("expected nil for empty response")
	}
}

func TestTCPBusResourcesAddsDefaultPort(t *testing.T) {
	b := &TCPBus{Addrs: []string{"10.0.0.5", "vna.lab:5555", " "}}
	res, err := b.Resources(context.Background())
	if err != nil {
		t.Fatalf("resources: %v", err)
	}
	if len(res) != 2 || res[0] != "10.0.0.5:5025" || res[1] != "vna.lab:5555" {
		t.Fatalf("unexpected resources %v", res)
	}
}

func TestTCPConnQueryAndWrite(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	got := make(chan string, 2)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		r := bufio.NewReader(c)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			got <- line
			if strings.HasSuffix(line, "?") {
				c.Write([]byte("Rohde-Schwarz,ZNB20,1234,3.10\n"))
			}
		}
	}()

	b := &TCPBus{Addrs: []string{ln.Addr().String()}, Timeout: time.Second}
	ctx := context.Background()
	conn, err := b.Open(ctx, ln.Addr().String())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if err := conn.Write(ctx, "INIT:CONT ON"); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := conn.Query(ctx, "*IDN?")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp != "Rohde-Schwarz,ZNB20,1234,3.10" {
		t.Fatalf("unexpected response %q", resp)
	}
	if first := <-got; first != "INIT:CONT ON" {
		t.Fatalf("expected write to arrive first, got %q", first)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := conn.Query(ctx, "*IDN?"); err != ErrClosed {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}
