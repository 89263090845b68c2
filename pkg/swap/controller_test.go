package swap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestControllerNilSessionFailsSoftly(t *testing.T) {
	c := newSessionController(zap.NewNop().Sugar())

	assert.False(t, c.RequestPause(nil))
	assert.False(t, c.RequestPlay(nil))
}

func TestControllerReportsTransportResults(t *testing.T) {
	c := newSessionController(zap.NewNop().Sugar())

	ok := playingSession("spotify.exe")
	assert.True(t, c.RequestPause(ok))
	assert.True(t, c.RequestPlay(ok))
	assert.Equal(t, 1, ok.paused)
	assert.Equal(t, 1, ok.played)

	failing := &fakeSession{
		identity: "spotify.exe",
		pauseErr: errors.New("window gone"),
		playErr:  errors.New("window gone"),
	}
	assert.False(t, c.RequestPause(failing))
	assert.False(t, c.RequestPlay(failing))
}

func TestControllerContainsPanickingSessionHandles(t *testing.T) {
	c := newSessionController(zap.NewNop().Sugar())

	volatile := &fakeSession{identity: "spotify.exe", panics: true}

	assert.NotPanics(t, func() {
		assert.False(t, c.RequestPause(volatile))
		assert.False(t, c.RequestPlay(volatile))
	})
}
