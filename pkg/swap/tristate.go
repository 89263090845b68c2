package swap

// Tristate is a boolean that the platform may not be able to report.
type Tristate int

const (
	TristateUnknown Tristate = iota
	TristateTrue
	TristateFalse
)

func (t Tristate) String() string {
	switch t {
	case TristateTrue:
		return "true"
	case TristateFalse:
		return "false"
	default:
		return "unknown"
	}
}

// tristateOf converts a definite boolean observation.
func tristateOf(b bool) Tristate {
	if b {
		return TristateTrue
	}

	return TristateFalse
}
