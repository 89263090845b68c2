package swap

// Action is the player transport command a cycle decided on.
type Action int

const (
	ActionNone Action = iota
	ActionPause
	ActionPlay
)

func (a Action) String() string {
	switch a {
	case ActionPause:
		return "pause"
	case ActionPlay:
		return "play"
	default:
		return "none"
	}
}

// EnforcementState is the state carried between poll cycles. Both
// fields are replaced together at the end of every cycle, never one
// without the other.
type EnforcementState struct {
	LastVideoActive  Tristate
	LastPlayerActive Tristate
}

// Decision is the policy output for one cycle.
type Decision struct {
	Action Action

	// VideoTransition marks that the video-active level differs from
	// the previous cycle (including the very first observation). It is
	// purely informational - the action above is computed from the
	// current level alone.
	VideoTransition bool
}

// Decide maps the previous state and the current classification to at
// most one player action. The policy is level-triggered: it is
// re-evaluated from the current level every cycle, so a failed or
// externally reverted action is simply re-issued on the next cycle.
//
// An unknown player state counts as "not provably correct already",
// so the action is issued anyway - a redundant pause or play is
// harmless, a missed one is not.
func Decide(prev EnforcementState, cur Classification) Decision {
	var d Decision

	videoActive := tristateOf(cur.VideoActive)
	d.VideoTransition = prev.LastVideoActive != videoActive

	if cur.VideoActive {
		if cur.PlayerActive != TristateFalse {
			d.Action = ActionPause
		}
	} else {
		if cur.PlayerActive != TristateTrue {
			d.Action = ActionPlay
		}
	}

	return d
}

// next returns the state to carry into the following cycle.
func (s EnforcementState) next(cur Classification) EnforcementState {
	return EnforcementState{
		LastVideoActive:  tristateOf(cur.VideoActive),
		LastPlayerActive: cur.PlayerActive,
	}
}
