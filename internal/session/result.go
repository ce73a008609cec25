package session

// Outcome classifies how a run ended. It is inspected once, at the outer boundary.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeConnectFailed
	OutcomeInvalidChoice
	OutcomeInterrupted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not found"
	case OutcomeConnectFailed:
		return "connect failed"
	case OutcomeInvalidChoice:
		return "invalid choice"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is what a run returns instead of failing part way.
type Result struct {
	Outcome Outcome
	Err     error
	Writes  int // writes issued to the command characteristic, handshake included
}

// OK reports whether the run completed without error.
func (r Result) OK() bool {
	return r.Outcome == OutcomeOK
}
