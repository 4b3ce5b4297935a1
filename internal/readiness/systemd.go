package readiness

import (
	"context"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Systemd sends READY=1 over $NOTIFY_SOCKET. Without a socket it does nothing.
type Systemd struct {
	UnsetEnvironment bool
}

func (Systemd) Name() string { return "systemd" }

func (s Systemd) Announce(_ context.Context) error {
	_, err := daemon.SdNotify(s.UnsetEnvironment, daemon.SdNotifyReady)
	return err
}

func (s Systemd) Withdraw(_ context.Context) error {
	_, err := daemon.SdNotify(s.UnsetEnvironment, daemon.SdNotifyStopping)
	return err
}
