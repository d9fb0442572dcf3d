package ports

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestSplit(t *testing.T) {
	host, port, err := Split("127.0.0.1:8443")
	if err != nil {
		t.Fatalf("Split returned error: %v", err)
	}
	if host != "127.0.0.1" || port != 8443 {
		t.Fatalf("unexpected parse: host=%q port=%d", host, port)
	}

	if _, _, err := Split(":9000"); err != nil {
		t.Fatalf("empty host should parse: %v", err)
	}

	for _, bad := range []string{"", "8443", "host:port", "host:0", "host:70000"} {
		if _, _, err := Split(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestListening(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	if !Listening(addr) {
		t.Fatalf("expected %s to report in use", addr)
	}
	ln.Close()
	if Listening(addr) {
		t.Fatalf("expected %s to report free after close", addr)
	}
}

func TestWaitFree(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := WaitFree(ctx, addr); err == nil {
		t.Fatalf("expected WaitFree to time out while listener held")
	}

	go func() {
		time.Sleep(150 * time.Millisecond)
		ln.Close()
	}()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := WaitFree(ctx2, addr); err != nil {
		t.Fatalf("WaitFree after close returned error: %v", err)
	}
}
