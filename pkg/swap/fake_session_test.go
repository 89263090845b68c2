package swap

import (
	"sync"
	"sync/atomic"
	"time"
)

// fakeSession is a scriptable MediaSession for tests.
type fakeSession struct {
	identity  string
	status    PlaybackStatus
	statusErr error
	kind      PlaybackKind

	pauseErr error
	playErr  error
	panics   bool

	mu       sync.Mutex
	paused   int
	played   int
	released int
}

func (f *fakeSession) Identity() string { return f.identity }

func (f *fakeSession) Status() (PlaybackStatus, error) {
	if f.statusErr != nil {
		return StatusClosed, f.statusErr
	}
	return f.status, nil
}

func (f *fakeSession) Kind() PlaybackKind { return f.kind }

func (f *fakeSession) TryPause() error {
	if f.panics {
		panic("session handle yanked by the platform")
	}
	f.mu.Lock()
	f.paused++
	f.mu.Unlock()
	return f.pauseErr
}

func (f *fakeSession) TryPlay() error {
	if f.panics {
		panic("session handle yanked by the platform")
	}
	f.mu.Lock()
	f.played++
	f.mu.Unlock()
	return f.playErr
}

func (f *fakeSession) Release() {
	f.mu.Lock()
	f.released++
	f.mu.Unlock()
}

func (f *fakeSession) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

func playingSession(identity string) *fakeSession {
	return &fakeSession{identity: identity, status: StatusPlaying}
}

func pausedSession(identity string) *fakeSession {
	return &fakeSession{identity: identity, status: StatusPaused}
}

// fakeFinder serves a scripted sequence of snapshots; once the script
// runs out it keeps serving the last entry.
type fakeFinder struct {
	mu        sync.Mutex
	snapshots [][]MediaSession
	err       error
	delay     time.Duration

	calls      int64 // atomic
	concurrent int64 // atomic, for detecting overlapping cycles
	maxSeen    int64 // atomic
}

func (f *fakeFinder) GetAllSessions() ([]MediaSession, error) {
	current := atomic.AddInt64(&f.concurrent, 1)
	defer atomic.AddInt64(&f.concurrent, -1)
	for {
		max := atomic.LoadInt64(&f.maxSeen)
		if current <= max || atomic.CompareAndSwapInt64(&f.maxSeen, max, current) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	call := atomic.AddInt64(&f.calls, 1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	if len(f.snapshots) == 0 {
		return nil, nil
	}

	idx := int(call) - 1
	if idx >= len(f.snapshots) {
		idx = len(f.snapshots) - 1
	}

	return f.snapshots[idx], nil
}

func (f *fakeFinder) Release() error { return nil }

func (f *fakeFinder) callCount() int64 {
	return atomic.LoadInt64(&f.calls)
}

func (f *fakeFinder) maxConcurrency() int64 {
	return atomic.LoadInt64(&f.maxSeen)
}

// fakeController records every requested action and answers with a
// scripted result.
type fakeController struct {
	mu           sync.Mutex
	pauseResult  bool
	playResult   bool
	pauseCalls   int
	playCalls    int
	lastSession  MediaSession
	sawNilTarget bool
}

func newFakeController() *fakeController {
	return &fakeController{pauseResult: true, playResult: true}
}

func (f *fakeController) RequestPause(session MediaSession) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauseCalls++
	f.lastSession = session
	if session == nil {
		f.sawNilTarget = true
		return false
	}
	return f.pauseResult
}

func (f *fakeController) RequestPlay(session MediaSession) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playCalls++
	f.lastSession = session
	if session == nil {
		f.sawNilTarget = true
		return false
	}
	return f.playResult
}

func (f *fakeController) counts() (pauses, plays int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauseCalls, f.playCalls
}

func (f *fakeController) nilTargetSeen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sawNilTarget
}
