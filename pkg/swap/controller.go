package swap

import "go.uber.org/zap"

// PlaybackController issues transport commands to the player session.
// Both operations are best-effort: they report success or failure and
// never propagate an error or panic to the loop. A failure is retried
// naturally on the next cycle because the policy is level-triggered.
type PlaybackController interface {
	RequestPause(session MediaSession) bool
	RequestPlay(session MediaSession) bool
}

// sessionController drives whatever transport the platform session
// handle exposes (MPRIS method call, APPCOMMAND window message...).
type sessionController struct {
	logger *zap.SugaredLogger
}

func newSessionController(logger *zap.SugaredLogger) *sessionController {
	return &sessionController{
		logger: logger.Named("controller"),
	}
}

func (c *sessionController) RequestPause(session MediaSession) bool {
	if session == nil {
		c.logger.Debug("Pause requested but no player session present")
		return false
	}

	if err := c.sessionTryPause(session); err != nil {
		c.logger.Warnw("Failed to pause player session",
			"identity", session.Identity(),
			"error", err)
		return false
	}

	return true
}

func (c *sessionController) RequestPlay(session MediaSession) bool {
	if session == nil {
		c.logger.Debug("Play requested but no player session present")
		return false
	}

	if err := c.sessionTryPlay(session); err != nil {
		c.logger.Warnw("Failed to play player session",
			"identity", session.Identity(),
			"error", err)
		return false
	}

	return true
}

// the session's own Try* can panic if the platform yanks the handle
// mid-call; keep that contained here so the loop never sees it.
func (c *sessionController) sessionTryPause(session MediaSession) (err error) {
	defer c.recoverSessionPanic(session, &err)
	return session.TryPause()
}

func (c *sessionController) sessionTryPlay(session MediaSession) (err error) {
	defer c.recoverSessionPanic(session, &err)
	return session.TryPlay()
}

func (c *sessionController) recoverSessionPanic(session MediaSession, err *error) {
	if r := recover(); r != nil {
		c.logger.Warnw("Recovered from panicking session handle",
			"identity", session.Identity(),
			"recover", r)
		*err = errSessionGone
	}
}
