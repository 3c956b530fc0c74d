// Package systemd reports service state to systemd (sd_notify) when the
// process runs as a Type=notify unit. Outside systemd every call is a no-op.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"catalogwatch/pkg/logx"
)

// Notifier sends sd_notify states. The zero value is ready to use.
type Notifier struct {
	Log logx.Logger

	// send is daemon.SdNotify outside tests.
	send func(unsetEnv bool, state string) (bool, error)
}

func (n *Notifier) notify(state string) bool {
	send := n.send
	if send == nil {
		send = daemon.SdNotify
	}
	ok, err := send(false, state)
	if err != nil {
		n.Log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
	return ok
}

// Ready reports startup complete. It returns false when not under systemd.
func (n *Notifier) Ready() bool { return n.notify(daemon.SdNotifyReady) }

func (n *Notifier) Stopping() { n.notify(daemon.SdNotifyStopping) }

// Reloading must be followed by Ready once the new config is applied.
func (n *Notifier) Reloading() { n.notify(daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(s string) { n.notify("STATUS=" + s) }

// Watchdog pings the systemd watchdog at half the configured interval until
// ctx is done. It returns immediately when the watchdog is not enabled.
func (n *Notifier) Watchdog(ctx context.Context) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return err
	}
	n.Log.Debug("systemd watchdog enabled", logx.Duration("interval", interval))
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n.notify(daemon.SdNotifyWatchdog)
		}
	}
}
