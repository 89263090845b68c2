package swap

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/Ninjtheturtle/YT-Spotify-Swap/pkg/swap/util"
)

// when this is set to anything, the switcher won't use a tray icon
const envNoTray = "SWAP_NO_TRAY_ICON"

// Swapper is the main entity managing access to all sub-components
type Swapper struct {
	logger   *zap.SugaredLogger
	notifier Notifier
	config   *CanonicalConfig

	finder     SessionFinder
	classifier *classifier
	controller PlaybackController
	reconciler *Reconciler
	events     *EventsServer
	hotkey     *stopHotkey

	stopChannel chan bool
	version     string
	verbose     bool
	stopping    sync.Once // Ensures signalStop is only called once
}

// NewSwapper creates a Swapper instance. Fails fast when the platform
// session manager can't be acquired - there is nothing to reconcile
// against without one.
func NewSwapper(logger *zap.SugaredLogger, verbose bool) (*Swapper, error) {
	logger = logger.Named("swap")

	notifier, err := NewToastNotifier(logger)
	if err != nil {
		logger.Errorw("Failed to create ToastNotifier", "error", err)
		return nil, fmt.Errorf("create new ToastNotifier: %w", err)
	}

	config, err := NewConfig(logger, notifier)
	if err != nil {
		logger.Errorw("Failed to create Config", "error", err)
		return nil, fmt.Errorf("create new Config: %w", err)
	}

	finder, err := newSessionFinder(logger)
	if err != nil {
		logger.Errorw("Failed to create SessionFinder", "error", err)
		return nil, fmt.Errorf("create new SessionFinder: %w", err)
	}

	s := &Swapper{
		logger:      logger,
		notifier:    notifier,
		config:      config,
		finder:      finder,
		stopChannel: make(chan bool),
		verbose:     verbose,
	}

	logger.Debug("Created swapper instance")

	return s, nil
}

// Initialize sets up components and starts to run in the background
func (s *Swapper) Initialize() error {
	s.logger.Debug("Initializing")

	// load the config for the first time
	if err := s.config.Load(); err != nil {
		s.logger.Errorw("Failed to load config during initialization", "error", err)
		return fmt.Errorf("load config during init: %w", err)
	}

	s.classifier = newClassifier(s.logger, s.config.VideoSourceKeywords, s.config.PlayerKeyword)
	s.controller = newSessionController(s.logger)
	s.reconciler = newReconciler(s.logger, s.finder, s.classifier, s.controller)
	s.reconciler.SetPollInterval(s.config.PollInterval)

	events, err := NewEventsServer(s, s.logger)
	if err != nil {
		s.logger.Errorw("Failed to create EventsServer", "error", err)
		return fmt.Errorf("create new EventsServer: %w", err)
	}
	s.events = events

	s.hotkey = newStopHotkey(s.logger, s.signalStop)

	// decide whether to run with/without tray
	if _, noTraySet := os.LookupEnv(envNoTray); noTraySet {

		s.logger.Debugw("Running without tray icon", "reason", "envvar set")

		// run in main thread while waiting on ctrl+C
		s.setupInterruptHandler()
		s.run()

	} else {
		s.setupInterruptHandler()
		s.initializeTray(s.run)
	}

	return nil
}

// SetVersion causes the switcher to add a version string to its tray
// menu if called before Initialize
func (s *Swapper) SetVersion(version string) {
	s.version = version
}

// Verbose returns a boolean indicating whether the switcher is running
// in verbose mode
func (s *Swapper) Verbose() bool {
	return s.verbose
}

func (s *Swapper) setupInterruptHandler() {
	interruptChannel := util.SetupCloseHandler()

	go func() {
		signal := <-interruptChannel
		s.logger.Debugw("Interrupted", "signal", signal)
		s.signalStop()
	}()
}

func (s *Swapper) run() {
	s.logger.Info("Run loop starting")

	// watch the config file for changes
	go s.config.WatchConfigFileChanges()

	// apply keyword/interval changes to the running loop on reload
	s.setupOnConfigReload()

	if err := s.events.Start(); err != nil {
		s.logger.Warnw("Failed to start events server", "error", err)
	}

	if s.config.StopHotkeyEnabled {
		if err := s.hotkey.register(); err != nil {
			s.logger.Warnw("Failed to register stop hotkey, use Ctrl+C or the tray to exit", "error", err)
		}
	}

	if err := s.reconciler.Start(); err != nil {
		s.logger.Errorw("Failed to start reconciler", "error", err)
		s.signalStop()
	}

	// wait until stopped (gracefully)
	<-s.stopChannel
	s.logger.Debug("Stop channel signaled, terminating")

	if err := s.stop(); err != nil {
		s.logger.Warnw("Failed to stop swapper", "error", err)
		os.Exit(1)
	} else {
		// exit with 0
		os.Exit(0)
	}
}

func (s *Swapper) signalStop() {
	s.stopping.Do(func() {
		s.logger.Debug("Signalling stop channel")
		select {
		case s.stopChannel <- true:
		default:
			// Channel already has a signal, ignore
		}
	})
}

func (s *Swapper) stop() error {
	s.logger.Info("Stopping")

	s.config.StopWatchingConfigFile()

	s.hotkey.unregister()

	// let the in-flight cycle finish before anything it uses goes away
	s.reconciler.Stop()

	s.events.Stop()

	// release the session finder
	if err := s.finder.Release(); err != nil {
		s.logger.Errorw("Failed to release session finder", "error", err)
		return fmt.Errorf("release session finder: %w", err)
	}

	s.stopTray()

	// attempt to sync on exit - this won't necessarily work but can't harm
	s.logger.Sync()

	return nil
}

// setupOnConfigReload pushes reloaded config values into the live
// components without restarting the loop
func (s *Swapper) setupOnConfigReload() {
	configReloadedChannel := s.config.SubscribeToChanges()

	go func() {
		for range configReloadedChannel {
			s.logger.Debug("Config reloaded, applying to running components")

			s.classifier.setKeywords(s.config.VideoSourceKeywords, s.config.PlayerKeyword)
			s.reconciler.SetPollInterval(s.config.PollInterval)

			if err := s.events.Start(); err != nil {
				s.logger.Warnw("Failed to apply events server config", "error", err)
			}
		}
	}()
}
