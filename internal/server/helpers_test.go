package server

import (
	"bytes"
	"log"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"testing"
	"time"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func freeAddr(t *testing.T) netip.AddrPort {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr).AddrPort()
	if err := ln.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return addr
}

type running struct {
	addr     netip.AddrPort
	ready    chan Ready
	shutdown chan Shutdown
	done     chan error
	stdout   *syncBuffer
	stderr   *syncBuffer
}

func startServer(t *testing.T, logAccesses bool) *running {
	t.Helper()
	r := &running{
		addr:     freeAddr(t),
		ready:    make(chan Ready, 2),
		shutdown: make(chan Shutdown, 1),
		done:     make(chan error, 1),
		stdout:   &syncBuffer{},
		stderr:   &syncBuffer{},
	}
	cfg := Config{ListenAddress: r.addr, LogAccesses: logAccesses}
	opts := Options{
		Ready:    r.ready,
		Shutdown: r.shutdown,
		Stdout:   log.New(r.stdout, "", 0),
		Stderr:   log.New(r.stderr, "", 0),
	}
	go func() { r.done <- Run(cfg, opts) }()

	select {
	case <-r.ready:
	case err := <-r.done:
		t.Fatalf("server exited before ready: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for ready")
	}

	t.Cleanup(func() {
		select {
		case r.shutdown <- Shutdown{}:
		default:
		}
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
			t.Errorf("server did not stop")
		}
	})
	return r
}

func (r *running) stop(t *testing.T) error {
	t.Helper()
	r.shutdown <- Shutdown{}
	select {
	case err := <-r.done:
		// let cleanup see a finished server
		r.done <- err
		return err
	case <-time.After(10 * recvTimeout):
		t.Fatalf("server did not stop within %s", 10*recvTimeout)
		return nil
	}
}

func (r *running) url(path string) string {
	return "http://" + r.addr.String() + path
}

func newClient() *http.Client {
	return &http.Client{
		Timeout:   2 * time.Second,
		Transport: &http.Transport{DisableKeepAlives: true},
	}
}
