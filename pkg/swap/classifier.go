package swap

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Classification is what a single snapshot boils down to: is any
// video source audible, and what do we know about the player.
type Classification struct {
	// VideoActive is true iff at least one video-source session is
	// currently playing.
	VideoActive bool

	// PlayerSession is the first session matching the player keyword
	// in snapshot order, nil when absent. Only valid for the duration
	// of the current cycle.
	PlayerSession MediaSession

	// PlayerActive is whether the player is playing. Unknown when the
	// player session is absent or its status can't be read.
	PlayerActive Tristate
}

// classifier sorts a raw session snapshot into the two roles the
// policy cares about. Matching is case-insensitive substring matching,
// deliberately permissive so renamed or web-wrapped browser processes
// (e.g. msedgewebview2.exe) still classify as video sources.
type classifier struct {
	logger *zap.SugaredLogger

	lock          sync.RWMutex // keywords are replaced on config reload
	videoKeywords []string
	playerKeyword string
}

func newClassifier(logger *zap.SugaredLogger, videoKeywords []string, playerKeyword string) *classifier {
	c := &classifier{
		logger: logger.Named("classifier"),
	}

	c.setKeywords(videoKeywords, playerKeyword)

	return c
}

// setKeywords replaces the keyword sets, lowercasing them once so
// per-session matching stays cheap. Called on config reload.
func (c *classifier) setKeywords(videoKeywords []string, playerKeyword string) {
	lowered := make([]string, 0, len(videoKeywords))
	for _, keyword := range videoKeywords {
		lowered = append(lowered, strings.ToLower(keyword))
	}

	c.lock.Lock()
	c.videoKeywords = lowered
	c.playerKeyword = strings.ToLower(playerKeyword)
	c.lock.Unlock()
}

func (c *classifier) isVideoSource(identity string) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()

	lowered := strings.ToLower(identity)
	for _, keyword := range c.videoKeywords {
		if keyword != "" && strings.Contains(lowered, keyword) {
			return true
		}
	}

	return false
}

func (c *classifier) isPlayer(identity string) bool {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.playerKeyword != "" &&
		strings.Contains(strings.ToLower(identity), c.playerKeyword)
}

// Classify walks one snapshot and produces the cycle's Classification.
// A session whose status can't be read degrades to unknown for that
// session only and never aborts classification of the rest.
func (c *classifier) Classify(snapshot []MediaSession) Classification {
	result := Classification{
		PlayerActive: TristateUnknown,
	}

	for _, session := range snapshot {
		if session == nil {
			continue
		}

		identity := session.Identity()

		if c.isVideoSource(identity) {
			status, err := session.Status()
			if err != nil {
				c.logger.Debugw("Failed to read video source status",
					"identity", identity,
					"error", err)
			} else if status == StatusPlaying {
				result.VideoActive = true
			}
		}

		// first match in snapshot order wins
		if result.PlayerSession == nil && c.isPlayer(identity) {
			result.PlayerSession = session

			status, err := session.Status()
			if err != nil {
				c.logger.Debugw("Failed to read player status",
					"identity", identity,
					"error", err)
				result.PlayerActive = TristateUnknown
			} else {
				result.PlayerActive = tristateOf(status == StatusPlaying)
			}
		}
	}

	return result
}
