package swap

import (
	"github.com/getlantern/systray"

	"github.com/Ninjtheturtle/YT-Spotify-Swap/pkg/swap/util"
)

func (s *Swapper) initializeTray(onDone func()) {
	logger := s.logger.Named("tray")

	onReady := func() {
		logger.Debug("Tray instance ready")

		systray.SetTitle("YT-Spotify-Swap")
		systray.SetTooltip("YT-Spotify-Swap")

		toggleEnforcement := systray.AddMenuItem("Pause auto-switching", "Temporarily stop pausing/resuming the player")

		// Only enable stack trace dump in verbose/debug mode
		var dumpStack *systray.MenuItem
		if s.verbose {
			dumpStack = systray.AddMenuItem("Dump stack trace", "Output all goroutines stack trace to log (for debugging deadlocks)")
		}

		if s.version != "" {
			systray.AddSeparator()
			versionInfo := systray.AddMenuItem(s.version, "")
			versionInfo.Disable()
		}

		systray.AddSeparator()
		quit := systray.AddMenuItem("Quit", "Stop the switcher and quit")

		// wait on things to happen
		go func() {
			for {
				select {

				// quit
				case <-quit.ClickedCh:
					logger.Info("Quit menu item clicked, stopping")

					s.signalStop()

				// pause/resume enforcement
				case <-toggleEnforcement.ClickedCh:
					if s.reconciler.Enforcing() {
						logger.Info("Enforcement pause menu item clicked, suspending actions")
						s.reconciler.SetEnforcing(false)
						toggleEnforcement.SetTitle("Resume auto-switching")
					} else {
						logger.Info("Enforcement resume menu item clicked, resuming actions")
						s.reconciler.SetEnforcing(true)
						toggleEnforcement.SetTitle("Pause auto-switching")
					}
				}
			}
		}()

		// dump stack trace handler (only in verbose/debug mode)
		if s.verbose && dumpStack != nil {
			go func() {
				for {
					<-dumpStack.ClickedCh
					logger.Info("Dump stack trace menu item clicked, outputting all goroutines stack trace")
					util.DumpAllGoroutines(logger)
				}
			}()
		}

		// actually start the main runtime
		onDone()
	}

	onExit := func() {
		logger.Debug("Tray exited")
	}

	// start the tray icon
	logger.Debug("Running in tray")
	systray.Run(onReady, onExit)
}

func (s *Swapper) stopTray() {
	s.logger.Debug("Quitting tray")
	systray.Quit()
}
