//go:build !windows
// +build !windows

package swap

import "go.uber.org/zap"

// stopHotkey is a no-op outside Windows; exiting is done via the tray,
// Ctrl+C or SIGTERM there.
type stopHotkey struct {
	logger *zap.SugaredLogger
}

func newStopHotkey(logger *zap.SugaredLogger, onTrigger func()) *stopHotkey {
	return &stopHotkey{logger: logger.Named("hotkey")}
}

func (hk *stopHotkey) register() error {
	hk.logger.Debug("Global stop hotkey not supported on this platform, use Ctrl+C or the tray to exit")
	return nil
}

func (hk *stopHotkey) unregister() {}
