package pipeline

// Phase is a coordinator state.
type Phase string

const (
	PhaseScanning   Phase = "scanning"
	PhaseDetecting  Phase = "detecting"
	PhaseComparing  Phase = "comparing"
	PhaseMerging    Phase = "merging"
	PhaseValidating Phase = "validating"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

var phaseOrder = []Phase{PhaseScanning, PhaseDetecting, PhaseComparing, PhaseMerging, PhaseValidating, PhaseDone}

// Next returns the phase that follows p. Done and Failed are terminal.
func (p Phase) Next() Phase {
	for i, candidate := range phaseOrder[:len(phaseOrder)-1] {
		if candidate == p {
			return phaseOrder[i+1]
		}
	}
	return p
}

// Terminal reports whether no further phase follows p.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Valid reports whether p names a known phase.
func (p Phase) Valid() bool {
	return p == PhaseFailed || phaseIndex(p) >= 0
}

func phaseIndex(p Phase) int {
	for i, candidate := range phaseOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}
