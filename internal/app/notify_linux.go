//go:build linux

package app

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "sentinel/pkg/logx"
)

// notifyReady tells systemd the daemon is up and, when a watchdog is
// configured on the unit, keeps petting it until ctx is cancelled.
// Outside systemd both calls are no-ops.
func notifyReady(ctx context.Context, log logx.Logger, wg *sync.WaitGroup) {
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd-notify ready", logx.Err(err))
	} else if sent {
		log.Debug("sd-notify ready sent")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}

func notifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
