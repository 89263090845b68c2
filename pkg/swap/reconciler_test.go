package swap

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPollInterval = 2 * time.Millisecond

func testReconciler(finder SessionFinder, controller PlaybackController) *Reconciler {
	r := newReconciler(zap.NewNop().Sugar(), finder, testClassifier(), controller)
	r.SetPollInterval(testPollInterval)
	return r
}

// eventually polls the condition instead of sleeping a fixed amount so
// tests stay fast on quick machines and stable on slow ones.
func eventually(t *testing.T, condition func() bool, msg string) {
	t.Helper()
	require.Eventually(t, condition, 2*time.Second, time.Millisecond, msg)
}

func TestReconcilerPausesPlayerWhileVideoPlays(t *testing.T) {
	finder := &fakeFinder{snapshots: [][]MediaSession{
		{playingSession("chrome.exe"), playingSession("spotify.exe")},
	}}
	controller := newFakeController()

	r := testReconciler(finder, controller)
	require.NoError(t, r.Start())
	defer r.Stop()

	// the snapshot keeps reporting the player as playing, so the
	// level-triggered policy must keep issuing pauses cycle after
	// cycle, not only on the initial edge
	eventually(t, func() bool {
		pauses, _ := controller.counts()
		return pauses >= 3
	}, "pause should be re-issued every cycle while the observed state stays wrong")

	_, plays := controller.counts()
	assert.Zero(t, plays)
}

func TestReconcilerResumesPlayerWhenVideoStops(t *testing.T) {
	finder := &fakeFinder{snapshots: [][]MediaSession{
		{playingSession("chrome.exe"), playingSession("spotify.exe")},
		{playingSession("chrome.exe"), playingSession("spotify.exe")},
		{pausedSession("chrome.exe"), pausedSession("spotify.exe")},
	}}
	controller := newFakeController()

	r := testReconciler(finder, controller)
	require.NoError(t, r.Start())
	defer r.Stop()

	eventually(t, func() bool {
		pauses, plays := controller.counts()
		return pauses >= 1 && plays >= 1
	}, "expected a pause while video played and a play once it stopped")
}

func TestReconcilerEmptySnapshotStillIssuesPlay(t *testing.T) {
	finder := &fakeFinder{}
	controller := newFakeController()

	r := testReconciler(finder, controller)
	require.NoError(t, r.Start())
	defer r.Stop()

	eventually(t, func() bool {
		_, plays := controller.counts()
		return plays >= 1
	}, "empty snapshot should drive the should-be-playing branch")

	assert.True(t, controller.nilTargetSeen(), "the play request goes out even with no player session")
}

func TestReconcilerSurvivesEnumerationFailure(t *testing.T) {
	finder := &fakeFinder{err: errors.New("enumeration broke")}
	controller := newFakeController()

	r := testReconciler(finder, controller)
	require.NoError(t, r.Start())
	defer r.Stop()

	// a failing snapshot degrades to empty; the loop must keep cycling
	eventually(t, func() bool {
		return finder.callCount() >= 3
	}, "loop should keep polling through enumeration failures")

	_, plays := controller.counts()
	assert.GreaterOrEqual(t, plays, 1)
}

func TestReconcilerFailedActionRetriesNextCycle(t *testing.T) {
	finder := &fakeFinder{snapshots: [][]MediaSession{
		{playingSession("chrome.exe"), playingSession("spotify.exe")},
	}}
	controller := newFakeController()
	controller.pauseResult = false

	r := testReconciler(finder, controller)
	require.NoError(t, r.Start())
	defer r.Stop()

	eventually(t, func() bool {
		pauses, _ := controller.counts()
		return pauses >= 2
	}, "a failed pause must be retried on the next cycle")
}

func TestReconcilerStopInterruptsIntervalWait(t *testing.T) {
	finder := &fakeFinder{}
	controller := newFakeController()

	r := testReconciler(finder, controller)
	r.SetPollInterval(time.Hour)
	require.NoError(t, r.Start())

	// let the loop run its first cycle and park in the interval wait
	eventually(t, func() bool {
		return finder.callCount() >= 1
	}, "loop should run its first cycle")

	start := time.Now()
	r.Stop()

	assert.Less(t, time.Since(start), time.Second,
		"stop must interrupt the wait instead of riding out the poll interval")
}

func TestReconcilerStopLetsInFlightCycleFinish(t *testing.T) {
	finder := &fakeFinder{delay: 50 * time.Millisecond}
	controller := newFakeController()

	r := testReconciler(finder, controller)
	require.NoError(t, r.Start())

	eventually(t, func() bool {
		return finder.callCount() >= 1
	}, "loop should be mid-cycle")

	r.Stop()

	// after Stop returns no further cycles may start
	settled := finder.callCount()
	time.Sleep(5 * testPollInterval)
	assert.Equal(t, settled, finder.callCount())
}

func TestReconcilerCyclesNeverOverlap(t *testing.T) {
	finder := &fakeFinder{delay: 3 * time.Millisecond}
	controller := newFakeController()

	r := testReconciler(finder, controller)
	r.SetPollInterval(time.Millisecond)
	require.NoError(t, r.Start())

	eventually(t, func() bool {
		return finder.callCount() >= 5
	}, "loop should run several cycles")

	r.Stop()

	assert.Equal(t, int64(1), finder.maxConcurrency(), "the loop is strictly serial")
}

func TestReconcilerReleasesSessionsEveryCycle(t *testing.T) {
	browser := playingSession("chrome.exe")
	player := playingSession("spotify.exe")
	finder := &fakeFinder{snapshots: [][]MediaSession{{browser, player}}}

	r := testReconciler(finder, newFakeController())
	require.NoError(t, r.Start())
	defer r.Stop()

	// handles must not outlive their cycle, so releases track cycles
	eventually(t, func() bool {
		return browser.releaseCount() >= 2 && player.releaseCount() >= 2
	}, "session handles should be released at the end of every cycle")
}

func TestReconcilerEnforcementToggle(t *testing.T) {
	finder := &fakeFinder{snapshots: [][]MediaSession{
		{playingSession("chrome.exe"), playingSession("spotify.exe")},
	}}
	controller := newFakeController()

	r := testReconciler(finder, controller)
	r.SetEnforcing(false)
	require.NoError(t, r.Start())

	eventually(t, func() bool {
		return finder.callCount() >= 3
	}, "loop keeps observing while enforcement is off")

	pauses, plays := controller.counts()
	assert.Zero(t, pauses)
	assert.Zero(t, plays)

	r.SetEnforcing(true)
	eventually(t, func() bool {
		p, _ := controller.counts()
		return p >= 1
	}, "actions resume when enforcement is re-enabled")

	r.Stop()
}

func TestReconcilerPublishesChangeEvents(t *testing.T) {
	finder := &fakeFinder{snapshots: [][]MediaSession{
		{playingSession("chrome.exe"), playingSession("spotify.exe")},
	}}
	controller := newFakeController()

	r := testReconciler(finder, controller)
	events := r.SubscribeToChangeEvents()
	require.NoError(t, r.Start())
	defer r.Stop()

	var sawTransition, sawAction bool
	deadline := time.After(2 * time.Second)
	for !(sawTransition && sawAction) {
		select {
		case event, ok := <-events:
			require.True(t, ok, "event channel closed before both event kinds were seen")
			assert.False(t, event.Timestamp.IsZero())
			if event.Action == ActionNone.String() {
				sawTransition = true
				assert.True(t, event.VideoActive)
			} else {
				sawAction = true
				assert.Equal(t, ActionPause.String(), event.Action)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for change events (transition=%v action=%v)", sawTransition, sawAction)
		}
	}
}

func TestReconcilerStartTwiceFails(t *testing.T) {
	r := testReconciler(&fakeFinder{}, newFakeController())
	require.NoError(t, r.Start())
	assert.Error(t, r.Start())
	r.Stop()
}

func TestReconcilerStopIsIdempotent(t *testing.T) {
	r := testReconciler(&fakeFinder{}, newFakeController())
	require.NoError(t, r.Start())

	r.Stop()
	assert.NotPanics(t, func() { r.Stop() })
}
