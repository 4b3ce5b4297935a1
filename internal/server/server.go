package server

import (
	"log"
	"net"
	"net/netip"
	"os"
)

const startupMessage = "Listening at http://%s (and will reply to all HTTP requests with empty body, OK 200)"

// Config is the immutable server configuration.
type Config struct {
	ListenAddress netip.AddrPort
	LogAccesses   bool
}

// Ready is sent once the listener is bound.
type Ready struct{}

// Shutdown asks the accept loop to stop. Closing the channel has the same effect.
type Shutdown struct{}

// Options holds the optional collaborators of Run. Every field may be left nil.
type Options struct {
	// Ready receives a single Ready after bind. The send never blocks, so the
	// channel needs a free buffer slot or a waiting receiver.
	Ready chan<- Ready
	// Shutdown is polled before every accept cycle. A nil channel serves forever.
	Shutdown <-chan Shutdown
	// Stdout gets the startup line and access lines.
	Stdout *log.Logger
	// Stderr gets diagnostics.
	Stderr *log.Logger

	// bound runs right after the Ready send, before the first accept.
	bound func()
}

func (o Options) withDefaults() Options {
	if o.Stdout == nil {
		o.Stdout = log.New(os.Stdout, "", 0)
	}
	if o.Stderr == nil {
		o.Stderr = log.New(os.Stderr, "", 0)
	}
	return o
}

// Run binds cfg.ListenAddress and answers every request with an empty 200
// until a shutdown is requested. Only a bind failure is returned; errors from
// individual peers are written to Stderr and serving continues. Requests that
// are underway when the shutdown arrives are answered before Run returns.
func Run(cfg Config, opts Options) error {
	opts = opts.withDefaults()

	ln, err := net.ListenTCP("tcp", net.TCPAddrFromAddrPort(cfg.ListenAddress))
	if err != nil {
		return bindError(cfg.ListenAddress, err)
	}

	opts.Stdout.Printf(startupMessage, cfg.ListenAddress)

	if opts.Ready != nil {
		select {
		case opts.Ready <- Ready{}:
		default:
			// nobody is listening for readiness
		}
	}
	if opts.bound != nil {
		opts.bound()
	}

	a := &acceptor{
		listener:    ln,
		logAccesses: cfg.LogAccesses,
		stdout:      opts.Stdout,
		stderr:      opts.Stderr,
	}
	for !shutdownRequested(opts.Shutdown, opts.Stderr) {
		if err := a.serveNextPeer(); err != nil {
			opts.Stderr.Print(err)
		}
	}
	_ = ln.Close()
	a.drain()
	return nil
}

// shutdownRequested never blocks. A closed channel counts as a request so the
// loop cannot outlive every possible sender.
func shutdownRequested(shutdown <-chan Shutdown, stderr *log.Logger) bool {
	select {
	case _, ok := <-shutdown:
		if !ok {
			stderr.Print("termination channel receive failure")
		}
		return true
	default:
		return false
	}
}
