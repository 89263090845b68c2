package swap

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/Ninjtheturtle/YT-Spotify-Swap/pkg/swap/util"
)

// CanonicalConfig provides application-wide access to configuration
// fields, as well as loading/file watching logic for the switcher's
// configuration file
type CanonicalConfig struct {
	VideoSourceKeywords []string
	PlayerKeyword       string

	PollInterval time.Duration

	EventsPort int

	StopHotkeyEnabled bool

	logger             *zap.SugaredLogger
	notifier           Notifier
	stopWatcherChannel chan bool

	reloadConsumers []chan bool

	userConfig *viper.Viper
}

const (
	userConfigFilepath = "config.yaml"

	userConfigName = "config"
	userConfigPath = "."

	configType = "yaml"

	configKey_VideoSourceKeywords = "video_source_keywords"
	configKey_PlayerKeyword       = "player_keyword"
	configKey_PollIntervalMs      = "poll_interval_ms"
	configKey_EventsPort          = "events_port"
	configKey_StopHotkeyEnabled   = "stop_hotkey_enabled"

	default_PlayerKeyword     = "spotify"
	default_PollIntervalMs    = 500
	default_EventsPort        = 0 // disabled
	default_StopHotkeyEnabled = true
)

// any media session owned by one of these is treated as a potential
// video source. matched permissively (substring) against the session
// identity, so chrome.exe, msedgewebview2.exe etc. all qualify
var default_VideoSourceKeywords = []string{
	"chrome", "msedge", "edge", "firefox", "brave", "opera", "vivaldi", "msedgewebview", "webview2",
}

// NewConfig creates a config instance for the swapper object and sets
// up a viper instance for its config file
func NewConfig(logger *zap.SugaredLogger, notifier Notifier) (*CanonicalConfig, error) {
	logger = logger.Named("config")

	cc := &CanonicalConfig{
		logger:             logger,
		notifier:           notifier,
		reloadConsumers:    []chan bool{},
		stopWatcherChannel: make(chan bool),
	}

	userConfig := viper.New()
	userConfig.SetConfigName(userConfigName)
	userConfig.SetConfigType(configType)
	userConfig.AddConfigPath(userConfigPath)

	userConfig.SetDefault(configKey_VideoSourceKeywords, default_VideoSourceKeywords)
	userConfig.SetDefault(configKey_PlayerKeyword, default_PlayerKeyword)
	userConfig.SetDefault(configKey_PollIntervalMs, default_PollIntervalMs)
	userConfig.SetDefault(configKey_EventsPort, default_EventsPort)
	userConfig.SetDefault(configKey_StopHotkeyEnabled, default_StopHotkeyEnabled)

	cc.userConfig = userConfig

	logger.Debug("Created config instance")

	return cc, nil
}

// Load reads the config file from disk and tries to parse it. A
// missing file is fine - the switcher runs on its defaults - but a
// file that exists and doesn't parse is an error.
func (cc *CanonicalConfig) Load() error {
	cc.logger.Debugw("Loading config", "path", userConfigFilepath)

	if !util.FileExists(userConfigFilepath) {
		cc.logger.Warnw("Config file not found, using defaults", "path", userConfigFilepath)
		return cc.populateFromViper()
	}

	if err := cc.userConfig.ReadInConfig(); err != nil {
		cc.logger.Warnw("Viper failed to read user config", "error", err)
		if strings.Contains(err.Error(), "yaml:") {
			cc.notifier.Notify("Invalid configuration!",
				fmt.Sprintf("Please make sure %s is in a valid YAML format.", userConfigFilepath))
		} else {
			cc.notifier.Notify("Error loading configuration!", "Please check the logs for more details.")
		}
		return fmt.Errorf("read user config: %w", err)
	}

	if err := cc.populateFromViper(); err != nil {
		cc.logger.Warnw("Failed to populate config fields", "error", err)
		return fmt.Errorf("populate config fields: %w", err)
	}

	cc.logger.Info("Loaded config successfully")
	cc.logger.Infow("Config values",
		"videoSourceKeywords", cc.VideoSourceKeywords,
		"playerKeyword", cc.PlayerKeyword,
		"pollInterval", cc.PollInterval,
		"eventsPort", cc.EventsPort,
		"stopHotkeyEnabled", cc.StopHotkeyEnabled,
	)

	return nil
}

// SubscribeToChanges allows external components to receive updates
// when the config is reloaded
func (cc *CanonicalConfig) SubscribeToChanges() chan bool {
	c := make(chan bool)
	cc.reloadConsumers = append(cc.reloadConsumers, c)

	return c
}

// WatchConfigFileChanges starts watching for configuration file
// changes and attempts reloading the config when they happen
func (cc *CanonicalConfig) WatchConfigFileChanges() {
	cc.logger.Debugw("Starting to watch user config file for changes", "path", userConfigFilepath)

	const (
		minTimeBetweenReloadAttempts = time.Millisecond * 500
		delayBetweenEventAndReload   = time.Millisecond * 50
	)

	lastAttemptedReload := time.Now()

	// establish watch using viper as opposed to doing it ourselves, though our internal cooldown is still required
	cc.userConfig.WatchConfig()
	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {

		// when we get a write event...
		if event.Op&fsnotify.Write == fsnotify.Write {

			now := time.Now()

			// ... check if it's not a duplicate (many editors will write to a file twice)
			if lastAttemptedReload.Add(minTimeBetweenReloadAttempts).Before(now) {

				// and attempt reload if appropriate
				cc.logger.Debugw("Config file modified, attempting reload", "event", event)

				// wait a bit to let the editor actually flush the new file contents to disk
				<-time.After(delayBetweenEventAndReload)

				if err := cc.Load(); err != nil {
					cc.logger.Warnw("Failed to reload config file", "error", err)
				} else {
					cc.logger.Info("Reloaded config successfully")
					cc.notifier.Notify("Configuration reloaded!", "Your changes have been applied.")

					cc.onConfigReloaded()
				}

				// don't forget to update the time
				lastAttemptedReload = now
			}
		}
	})

	// wait till they stop us
	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopping user config file watcher")
	cc.userConfig.OnConfigChange(nil)
}

// StopWatchingConfigFile signals our filesystem watcher to stop
func (cc *CanonicalConfig) StopWatchingConfigFile() {
	cc.stopWatcherChannel <- true

	// Close all reload consumer channels to signal goroutines to exit
	cc.closeReloadChannels()
}

// closeReloadChannels closes all reload consumer channels to signal goroutines to exit
func (cc *CanonicalConfig) closeReloadChannels() {
	for _, ch := range cc.reloadConsumers {
		close(ch)
	}
	cc.reloadConsumers = nil
	cc.logger.Debug("Closed all config reload channels")
}

func (cc *CanonicalConfig) populateFromViper() error {
	cc.VideoSourceKeywords = funk.FilterString(
		cc.userConfig.GetStringSlice(configKey_VideoSourceKeywords),
		func(s string) bool {
			return strings.TrimSpace(s) != ""
		},
	)

	cc.PlayerKeyword = strings.TrimSpace(cc.userConfig.GetString(configKey_PlayerKeyword))
	if cc.PlayerKeyword == "" {
		return fmt.Errorf("player_keyword must not be empty")
	}

	pollIntervalMs := cc.userConfig.GetInt(configKey_PollIntervalMs)
	if pollIntervalMs <= 0 {
		cc.logger.Warnw("Invalid poll interval, using default",
			"value", pollIntervalMs,
			"default", default_PollIntervalMs)
		pollIntervalMs = default_PollIntervalMs
	}
	cc.PollInterval = time.Duration(pollIntervalMs) * time.Millisecond

	cc.EventsPort = cc.userConfig.GetInt(configKey_EventsPort)
	cc.StopHotkeyEnabled = cc.userConfig.GetBool(configKey_StopHotkeyEnabled)

	cc.logger.Debug("Populated config fields from viper")

	return nil
}

func (cc *CanonicalConfig) onConfigReloaded() {
	cc.logger.Debug("Notifying consumers about configuration reload")

	for _, consumer := range cc.reloadConsumers {
		// Safely send to channel, handling closed channels
		func() {
			defer func() {
				if r := recover(); r != nil {
					// Channel is closed, ignore
					cc.logger.Debugw("Config reload channel closed, skipping notification", "recover", r)
				}
			}()
			select {
			case consumer <- true:
			default:
				// Channel is full, skip
			}
		}()
	}
}
