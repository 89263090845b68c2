package swap

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const defaultPollInterval = 500 * time.Millisecond

// ChangeEvent describes one policy-relevant observation: either a
// video-active transition, an executed player action, or both in the
// same cycle.
type ChangeEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	VideoActive bool      `json:"video_active"`
	Action      string    `json:"action"`
	Succeeded   bool      `json:"succeeded"`
}

// Reconciler drives the poll/classify/decide/execute cycle. A single
// goroutine owns the whole loop, so the carried state needs no
// locking; the only cross-goroutine knobs (poll interval, enforcement
// toggle) are atomics.
type Reconciler struct {
	logger     *zap.SugaredLogger
	finder     SessionFinder
	classifier *classifier
	controller PlaybackController

	pollIntervalNanos int64 // atomic
	enforcing         int32 // atomic, 1 = issue actions

	stopChannel chan struct{}
	doneChannel chan struct{}
	stopping    sync.Once
	started     int32 // atomic

	changeConsumers []chan ChangeEvent
	consumersMutex  sync.RWMutex
}

func newReconciler(
	logger *zap.SugaredLogger,
	finder SessionFinder,
	classifier *classifier,
	controller PlaybackController,
) *Reconciler {

	r := &Reconciler{
		logger:      logger.Named("reconciler"),
		finder:      finder,
		classifier:  classifier,
		controller:  controller,
		stopChannel: make(chan struct{}),
		doneChannel: make(chan struct{}),
	}

	atomic.StoreInt64(&r.pollIntervalNanos, int64(defaultPollInterval))
	atomic.StoreInt32(&r.enforcing, 1)

	logger.Debug("Created reconciler instance")

	return r
}

// Start launches the loop goroutine. The loop keeps running until
// Stop is called, enforcing the policy once per poll interval.
func (r *Reconciler) Start() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return errors.New("reconciler already started")
	}

	r.logger.Infow("Starting reconciliation loop",
		"pollInterval", r.pollInterval())

	go r.run()

	return nil
}

// Stop signals the loop to stop and waits for the in-flight cycle to
// finish. Safe to call more than once and before Start.
func (r *Reconciler) Stop() {
	r.stopping.Do(func() {
		close(r.stopChannel)
	})

	if atomic.LoadInt32(&r.started) == 1 {
		<-r.doneChannel
	}
}

// SetPollInterval changes the delay between cycles. Takes effect on
// the next cycle's wait.
func (r *Reconciler) SetPollInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	atomic.StoreInt64(&r.pollIntervalNanos, int64(interval))
}

func (r *Reconciler) pollInterval() time.Duration {
	return time.Duration(atomic.LoadInt64(&r.pollIntervalNanos))
}

// SetEnforcing toggles whether decided actions are actually issued.
// While disabled the loop keeps observing and logging transitions.
func (r *Reconciler) SetEnforcing(enabled bool) {
	var flag int32
	if enabled {
		flag = 1
	}

	previous := atomic.SwapInt32(&r.enforcing, flag)
	if previous != flag {
		r.logger.Infow("Enforcement toggled", "enabled", enabled)
	}
}

// Enforcing returns whether decided actions are currently issued.
func (r *Reconciler) Enforcing() bool {
	return atomic.LoadInt32(&r.enforcing) == 1
}

// SubscribeToChangeEvents returns a channel receiving a ChangeEvent
// per policy-relevant transition and per executed action. Slow
// consumers miss events rather than stalling the loop.
func (r *Reconciler) SubscribeToChangeEvents() chan ChangeEvent {
	ch := make(chan ChangeEvent, 16)

	r.consumersMutex.Lock()
	r.changeConsumers = append(r.changeConsumers, ch)
	r.consumersMutex.Unlock()

	return ch
}

func (r *Reconciler) closeEventChannels() {
	r.consumersMutex.Lock()
	defer r.consumersMutex.Unlock()

	for _, ch := range r.changeConsumers {
		close(ch)
	}
	r.changeConsumers = nil
}

func (r *Reconciler) publishChangeEvent(event ChangeEvent) {
	r.consumersMutex.RLock()
	defer r.consumersMutex.RUnlock()

	for _, ch := range r.changeConsumers {
		select {
		case ch <- event:
		default:
			// consumer is behind, skip
		}
	}
}

func (r *Reconciler) run() {
	defer close(r.doneChannel)
	defer r.closeEventChannels()

	state := EnforcementState{
		LastVideoActive:  TristateUnknown,
		LastPlayerActive: TristateUnknown,
	}

	for {
		// check for cancellation before starting a new cycle
		select {
		case <-r.stopChannel:
			r.logger.Debug("Stop signaled, exiting reconciliation loop")
			return
		default:
		}

		state = r.runCycle(state)

		// the wait doubles as the second cancellation point, so a
		// stop signal interrupts the sleep instead of riding out a
		// full poll interval
		select {
		case <-r.stopChannel:
			r.logger.Debug("Stop signaled during interval wait, exiting reconciliation loop")
			return
		case <-time.After(r.pollInterval()):
		}
	}
}

// runCycle performs one full observe/decide/execute pass and returns
// the state to carry into the next cycle. Errors never escape a
// cycle; anything that goes wrong degrades and self-heals next time
// around.
func (r *Reconciler) runCycle(state EnforcementState) EnforcementState {
	snapshot := r.acquireSnapshot()
	defer releaseSnapshot(snapshot)

	classification := r.classifier.Classify(snapshot)
	decision := Decide(state, classification)

	if decision.VideoTransition {
		r.logVideoTransition(classification)
	}

	if decision.Action != ActionNone && r.Enforcing() {
		r.executeAction(decision, classification)
	}

	return state.next(classification)
}

// acquireSnapshot enumerates the current sessions, degrading a failed
// enumeration to an empty snapshot so the cycle proceeds as "nothing
// playing anywhere" instead of crashing the loop.
func (r *Reconciler) acquireSnapshot() []MediaSession {
	snapshot, err := r.finder.GetAllSessions()
	if err != nil {
		r.logger.Warnw("Failed to enumerate sessions, treating snapshot as empty", "error", err)
		return nil
	}

	return snapshot
}

func releaseSnapshot(snapshot []MediaSession) {
	for _, session := range snapshot {
		if session != nil {
			session.Release()
		}
	}
}

func (r *Reconciler) logVideoTransition(cur Classification) {
	description := "Browser media is no longer playing"
	if cur.VideoActive {
		description = "Browser media is now playing"
	}

	r.logger.Infow(description,
		"videoActive", cur.VideoActive,
		"playerActive", cur.PlayerActive)

	r.publishChangeEvent(ChangeEvent{
		Timestamp:   time.Now(),
		Description: description,
		VideoActive: cur.VideoActive,
		Action:      ActionNone.String(),
		Succeeded:   true,
	})
}

func (r *Reconciler) executeAction(decision Decision, cur Classification) {
	var ok bool

	switch decision.Action {
	case ActionPause:
		ok = r.controller.RequestPause(cur.PlayerSession)
	case ActionPlay:
		ok = r.controller.RequestPlay(cur.PlayerSession)
	}

	if ok {
		r.logger.Infow("Issued player action",
			"action", decision.Action,
			"videoActive", cur.VideoActive)
	} else {
		r.logger.Debugw("Player action failed, will retry next cycle",
			"action", decision.Action,
			"videoActive", cur.VideoActive,
			"playerPresent", cur.PlayerSession != nil)
	}

	r.publishChangeEvent(ChangeEvent{
		Timestamp:   time.Now(),
		Description: "Issued player action",
		VideoActive: cur.VideoActive,
		Action:      decision.Action.String(),
		Succeeded:   ok,
	})
}
