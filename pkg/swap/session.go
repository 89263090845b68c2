// Package swap watches the OS media sessions and keeps a music player
// and browser video playback mutually exclusive: whenever a browser
// session is playing, the player gets paused, and once all browsers go
// quiet the player gets resumed.
package swap

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var errSessionGone = errors.New("session handle no longer valid")

// PlaybackStatus is the playback state of a single media session as
// reported by the platform.
type PlaybackStatus int

const (
	StatusClosed PlaybackStatus = iota
	StatusOpened
	StatusChanging
	StatusStopped
	StatusPlaying
	StatusPaused
)

func (ps PlaybackStatus) String() string {
	switch ps {
	case StatusClosed:
		return "closed"
	case StatusOpened:
		return "opened"
	case StatusChanging:
		return "changing"
	case StatusStopped:
		return "stopped"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return fmt.Sprintf("unknown(%d)", int(ps))
	}
}

// PlaybackKind is an advisory hint about what a session is rendering.
// Platforms that can't tell report KindUnknown; nothing downstream
// relies on it for correctness.
type PlaybackKind int

const (
	KindUnknown PlaybackKind = iota
	KindMusic
	KindVideo
)

// MediaSession represents a single addressable media session. Sessions
// are owned by the platform and can close at any moment - a handle is
// only valid within the poll cycle that enumerated it and must never
// be cached across cycles.
type MediaSession interface {
	// Identity returns an opaque string identifying the owning
	// application (process executable, AUMID, bus name...). Used
	// only for classification.
	Identity() string

	// Status reads the session's current playback status. Returns an
	// error when the platform can't report it; callers treat that as
	// unknown for this session only.
	Status() (PlaybackStatus, error)

	// Kind returns the advisory playback kind hint.
	Kind() PlaybackKind

	// TryPause and TryPlay issue best-effort transport commands to
	// the owning application.
	TryPause() error
	TryPlay() error

	Release()
}

const sessionCreationLogMessage = "Created media session instance"

type baseSession struct {
	logger *zap.SugaredLogger

	// used by Identity(), needs to be set by child
	name string

	// used by String(), needs to be set by child
	humanReadableDesc string

	kind PlaybackKind
}

func (s *baseSession) Identity() string {
	return strings.ToLower(s.name)
}

func (s *baseSession) Kind() PlaybackKind {
	return s.kind
}

func (s *baseSession) String() string {
	return fmt.Sprintf("<session: %s>", s.humanReadableDesc)
}
