package server

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	recvTimeout = 100 * time.Millisecond
	recvSleep   = 10 * time.Millisecond
	// peerTimeout bounds reading the request and writing the response.
	peerTimeout = time.Second
	// maxHeaderBytes caps the request line and headers.
	maxHeaderBytes = http.DefaultMaxHeaderBytes
	// maxDiscard is how much request body is drained before the connection closes.
	maxDiscard = 1 << 20
)

const emptyOK = "HTTP/1.1 200 OK\r\nContent-Length: 0\r\nConnection: close\r\n\r\n"

type listener interface {
	Accept() (net.Conn, error)
	SetDeadline(t time.Time) error
}

type acceptor struct {
	listener    listener
	logAccesses bool
	stdout      *log.Logger
	stderr      *log.Logger

	wg    sync.WaitGroup
	mu    sync.Mutex
	peers map[*peer]struct{}
}

// peer is an accepted connection. started flips on the first byte received.
type peer struct {
	net.Conn
	started atomic.Bool
	dropped atomic.Bool
}

func (p *peer) Read(b []byte) (int, error) {
	n, err := p.Conn.Read(b)
	if n > 0 {
		p.started.Store(true)
	}
	return n, err
}

// serveNextPeer waits at most recvTimeout for a connection and hands it to
// its own goroutine, so a slow peer never holds up the loop.
func (a *acceptor) serveNextPeer() error {
	if err := a.listener.SetDeadline(time.Now().Add(recvTimeout)); err != nil {
		return receiveError(err)
	}
	conn, err := a.listener.Accept()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			time.Sleep(recvSleep)
			return nil
		}
		return receiveError(err)
	}
	// in place before drain can see the peer
	if err := conn.SetDeadline(time.Now().Add(peerTimeout)); err != nil {
		conn.Close()
		return receiveError(err)
	}

	p := &peer{Conn: conn}
	a.track(p)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.untrack(p)
		defer conn.Close()
		if err := a.respond(p); err != nil && !p.dropped.Load() {
			a.stderr.Print(err)
		}
	}()
	return nil
}

func (a *acceptor) track(p *peer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.peers == nil {
		a.peers = make(map[*peer]struct{})
	}
	a.peers[p] = struct{}{}
}

func (a *acceptor) untrack(p *peer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.peers, p)
}

// drain cuts off peers that have not sent anything yet and waits for the
// requests already underway.
func (a *acceptor) drain() {
	a.mu.Lock()
	for p := range a.peers {
		if !p.started.Load() {
			p.dropped.Store(true)
			_ = p.SetDeadline(time.Now())
		}
	}
	a.mu.Unlock()
	a.wg.Wait()
}

// respond answers one request. The caller owns the connection deadline.
func (a *acceptor) respond(conn net.Conn) error {
	in := &io.LimitedReader{R: conn, N: maxHeaderBytes}
	req, err := http.ReadRequest(bufio.NewReader(in))
	if errors.Is(err, io.EOF) {
		// closed before sending anything, e.g. a TCP probe
		return nil
	}
	if err != nil {
		return receiveError(err)
	}
	// A client waiting for "100 Continue" gets the final status straight away.
	// The body is not closed: Close would read it to the end.
	if !expectsContinue(req) {
		in.N = maxDiscard
		_, _ = io.CopyN(io.Discard, req.Body, maxDiscard)
	}

	if a.logAccesses {
		a.stdout.Printf("%s %s from %s", req.Method, req.RequestURI, conn.RemoteAddr())
	}

	if _, err := io.WriteString(conn, emptyOK); err != nil {
		return sendError(err)
	}
	return nil
}

func expectsContinue(req *http.Request) bool {
	return strings.EqualFold(req.Header.Get("Expect"), "100-continue")
}
