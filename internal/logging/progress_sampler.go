package logging

import (
	"math"
	"strings"
)

// ProgressSampler thins progress logging to one line per percentage step
// within a phase, plus one whenever the phase changes.
type ProgressSampler struct {
	step  float64
	phase string
	next  float64
}

// NewProgressSampler returns a sampler that emits every step percent. A
// non-positive step means 10.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 10
	}
	return &ProgressSampler{step: step}
}

// ShouldLog reports whether progress at percent in phase is worth a line.
// A negative percent is unknown progress; only a phase change emits then.
// A nil sampler logs everything.
func (s *ProgressSampler) ShouldLog(percent float64, phase string) bool {
	if s == nil {
		return true
	}
	emit := false
	if phase = strings.TrimSpace(phase); phase != "" && phase != s.phase {
		s.phase = phase
		s.next = 0
		emit = true
	}
	if percent >= 0 && percent >= s.next {
		s.next = (math.Floor(math.Min(percent, 100)/s.step) + 1) * s.step
		emit = true
	}
	return emit
}

// Reset forgets the current phase so the next call always emits.
func (s *ProgressSampler) Reset() {
	if s != nil {
		s.phase = ""
		s.next = 0
	}
}
