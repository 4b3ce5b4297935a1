package readiness

import (
	"context"
	"log"

	"github.com/joshp123/null-webhook/internal/server"
)

// Announcer tells something outside the process that the server is ready.
type Announcer interface {
	Name() string
	Announce(ctx context.Context) error
}

// Withdrawer is implemented by announcers that can retract readiness on shutdown.
type Withdrawer interface {
	Withdraw(ctx context.Context) error
}

// Announce blocks until a Ready arrives on ready, then runs every announcer in
// order. Failures are logged and never stop the remaining announcers. It
// returns false if ready was closed or ctx ended first.
func Announce(ctx context.Context, ready <-chan server.Ready, logger *log.Logger, announcers ...Announcer) bool {
	select {
	case _, ok := <-ready:
		if !ok {
			return false
		}
	case <-ctx.Done():
		return false
	}

	for _, a := range announcers {
		if err := a.Announce(ctx); err != nil {
			logger.Printf("error sending %s ready: %v", a.Name(), err)
		}
	}
	return true
}

// Withdraw retracts readiness for every announcer that supports it.
func Withdraw(ctx context.Context, logger *log.Logger, announcers ...Announcer) {
	for _, a := range announcers {
		w, ok := a.(Withdrawer)
		if !ok {
			continue
		}
		if err := w.Withdraw(ctx); err != nil {
			logger.Printf("error withdrawing %s ready: %v", a.Name(), err)
		}
	}
}
