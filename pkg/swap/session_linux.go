//go:build linux
// +build linux

package swap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	mprisBusPrefix       = "org.mpris.MediaPlayer2."
	mprisObjectPath      = "/org/mpris/MediaPlayer2"
	mprisPlayerInterface = "org.mpris.MediaPlayer2.Player"
)

var errNoMPRISPlayer = errors.New("no matching mpris player on the session bus")

// paMediaSession is one PulseAudio sink input observed in a snapshot.
// Its playback status is fixed at enumeration time (a snapshot is
// immutable); transport commands go out over MPRIS because PulseAudio
// can only mute streams, not pause the application behind them.
type paMediaSession struct {
	baseSession

	processName string
	status      PlaybackStatus

	bus *dbus.Conn
}

func newPAMediaSession(
	logger *zap.SugaredLogger,
	bus *dbus.Conn,
	processName string,
	corked bool,
	mediaRole string,
) *paMediaSession {

	s := &paMediaSession{
		processName: processName,
		bus:         bus,
	}

	s.status = StatusPlaying
	if corked {
		s.status = StatusPaused
	}

	switch strings.ToLower(mediaRole) {
	case "video":
		s.kind = KindVideo
	case "music":
		s.kind = KindMusic
	}

	s.name = processName
	s.humanReadableDesc = processName

	// use a self-identifying session name e.g. swap.sessions.spotify
	s.logger = logger.Named(s.Identity())
	s.logger.Debugw(sessionCreationLogMessage, "session", s)

	return s
}

func (s *paMediaSession) Status() (PlaybackStatus, error) {
	return s.status, nil
}

func (s *paMediaSession) TryPause() error {
	return s.callPlayerMethod("Pause")
}

func (s *paMediaSession) TryPlay() error {
	return s.callPlayerMethod("Play")
}

// callPlayerMethod resolves the MPRIS bus name owned by this session's
// application and invokes the given transport method on it.
func (s *paMediaSession) callPlayerMethod(method string) error {
	if s.bus == nil {
		return errors.New("session bus unavailable")
	}

	busName, err := s.findPlayerBusName()
	if err != nil {
		return err
	}

	object := s.bus.Object(busName, mprisObjectPath)
	if call := object.Call(mprisPlayerInterface+"."+method, 0); call.Err != nil {
		return fmt.Errorf("call %s on %s: %w", method, busName, call.Err)
	}

	s.logger.Debugw("Called mpris player method", "method", method, "busName", busName)

	return nil
}

func (s *paMediaSession) findPlayerBusName() (string, error) {
	var names []string
	if err := s.bus.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return "", fmt.Errorf("list bus names: %w", err)
	}

	identity := s.Identity()

	for _, name := range names {
		if !strings.HasPrefix(name, mprisBusPrefix) {
			continue
		}

		player := strings.ToLower(strings.TrimPrefix(name, mprisBusPrefix))
		if strings.Contains(identity, player) || strings.Contains(player, identity) {
			return name, nil
		}
	}

	return "", errNoMPRISPlayer
}

func (s *paMediaSession) Release() {
	// nothing to release - the pulse data was copied at enumeration
	// time and the bus connection belongs to the finder
	s.logger.Debug("Releasing media session")
}
