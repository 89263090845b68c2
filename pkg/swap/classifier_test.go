package swap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClassifier() *classifier {
	return newClassifier(zap.NewNop().Sugar(), default_VideoSourceKeywords, default_PlayerKeyword)
}

func TestClassifyVideoMatchIsCaseInsensitive(t *testing.T) {
	c := testClassifier()

	for _, identity := range []string{"Chrome", "CHROME.EXE", "chrome"} {
		result := c.Classify([]MediaSession{playingSession(identity)})
		assert.True(t, result.VideoActive, "identity %q should classify as a playing video source", identity)
	}
}

func TestClassifySubstringMatchToleratesWrappedProcesses(t *testing.T) {
	c := testClassifier()

	result := c.Classify([]MediaSession{playingSession("msedgewebview2.exe")})
	assert.True(t, result.VideoActive)
}

func TestClassifyIgnoresNonPlayingVideoSources(t *testing.T) {
	c := testClassifier()

	result := c.Classify([]MediaSession{
		pausedSession("chrome.exe"),
		&fakeSession{identity: "firefox.exe", status: StatusStopped},
	})
	assert.False(t, result.VideoActive)
}

func TestClassifyUnreadableStatusDegradesToUnknownForThatSessionOnly(t *testing.T) {
	c := testClassifier()

	broken := &fakeSession{identity: "chrome.exe", statusErr: errors.New("status unavailable")}

	result := c.Classify([]MediaSession{
		broken,
		playingSession("firefox.exe"),
		playingSession("spotify.exe"),
	})

	assert.True(t, result.VideoActive, "classification must survive an unreadable session")
	assert.Equal(t, TristateTrue, result.PlayerActive)
}

func TestClassifyUnreadablePlayerStatusIsUnknown(t *testing.T) {
	c := testClassifier()

	player := &fakeSession{identity: "spotify.exe", statusErr: errors.New("status unavailable")}
	result := c.Classify([]MediaSession{player})

	assert.Same(t, player, result.PlayerSession)
	assert.Equal(t, TristateUnknown, result.PlayerActive)
}

func TestClassifyPicksFirstPlayerInSnapshotOrder(t *testing.T) {
	c := testClassifier()

	first := pausedSession("Spotify.exe")
	second := playingSession("spotify-helper.exe")

	result := c.Classify([]MediaSession{first, second})

	require.NotNil(t, result.PlayerSession)
	assert.Same(t, first, result.PlayerSession)
	assert.Equal(t, TristateFalse, result.PlayerActive)
}

func TestClassifyEmptySnapshot(t *testing.T) {
	c := testClassifier()

	result := c.Classify(nil)

	assert.False(t, result.VideoActive)
	assert.Nil(t, result.PlayerSession)
	assert.Equal(t, TristateUnknown, result.PlayerActive)
}

func TestClassifyNilSessionsAreSkipped(t *testing.T) {
	c := testClassifier()

	result := c.Classify([]MediaSession{nil, playingSession("chrome.exe"), nil})

	assert.True(t, result.VideoActive)
}

func TestSetKeywordsReplacesTheMatchSet(t *testing.T) {
	c := testClassifier()

	c.setKeywords([]string{"mpv"}, "vlc")

	result := c.Classify([]MediaSession{
		playingSession("chrome.exe"),
		playingSession("mpv"),
		playingSession("VLC.exe"),
	})

	assert.True(t, result.VideoActive)
	require.NotNil(t, result.PlayerSession)
	assert.Equal(t, "VLC.exe", result.PlayerSession.Identity())
}
