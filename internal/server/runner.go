package server

import (
	"os"

	"github.com/tedsuo/ifrit"
)

// RunnerOptions configures Runner.
type RunnerOptions struct {
	Options
	// OnSignal is called for every OS signal before it is turned into a Shutdown.
	OnSignal func(os.Signal)
}

// Runner adapts Run to an ifrit.Runner. Signals sent to the process become
// Shutdown messages. opts.Shutdown is ignored. opts.Ready gets the Ready
// signal before ifrit's ready channel closes, and both happen before the
// first accept.
func Runner(cfg Config, opts RunnerOptions) ifrit.Runner {
	return ifrit.RunFunc(func(signals <-chan os.Signal, ready chan<- struct{}) error {
		shutdown := make(chan Shutdown, 1)
		done := make(chan struct{})
		defer close(done)

		go forward(signals, shutdown, done, opts.OnSignal)

		inner := opts.Options
		inner.Shutdown = shutdown
		inner.bound = func() { close(ready) }
		return Run(cfg, inner)
	})
}

func forward(signals <-chan os.Signal, shutdown chan<- Shutdown, done <-chan struct{}, onSignal func(os.Signal)) {
	for {
		select {
		case sig := <-signals:
			if onSignal != nil {
				onSignal(sig)
			}
			select {
			case shutdown <- Shutdown{}:
			default:
			}
		case <-done:
			return
		}
	}
}
