package swap

// SessionFinder represents an entity that can enumerate all current
// media sessions. Creating one fails if the platform session manager
// can't be acquired at all; per-call enumeration failures are
// transient and degrade to an empty snapshot at the call site.
type SessionFinder interface {
	GetAllSessions() ([]MediaSession, error)

	Release() error
}
