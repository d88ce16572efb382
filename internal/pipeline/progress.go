package pipeline

import "time"

// Progress describes one processed unit.
type Progress struct {
	RunID    string
	Phase    Phase
	Current  int
	Total    int // zero while the total is unknown
	RecordID string
	Percent  float64
	ETA      time.Duration
}

// ProgressFunc receives progress after every processed unit.
type ProgressFunc func(Progress)

const defaultRateWindow = 20

// rateWindow estimates the remaining time from a moving average of the
// most recent unit durations.
type rateWindow struct {
	size    int
	samples []time.Duration
	next    int
	last    time.Time
}

func newRateWindow(size int) *rateWindow {
	if size <= 0 {
		size = defaultRateWindow
	}
	return &rateWindow{size: size}
}

// reset starts a new measurement, typically at a phase boundary.
func (w *rateWindow) reset(now time.Time) {
	w.samples = w.samples[:0]
	w.next = 0
	w.last = now
}

func (w *rateWindow) observe(now time.Time) {
	if w.last.IsZero() {
		w.last = now
		return
	}
	elapsed := now.Sub(w.last)
	w.last = now
	if elapsed < 0 {
		elapsed = 0
	}
	if len(w.samples) < w.size {
		w.samples = append(w.samples, elapsed)
		return
	}
	w.samples[w.next] = elapsed
	w.next = (w.next + 1) % w.size
}

func (w *rateWindow) average() time.Duration {
	if len(w.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range w.samples {
		total += s
	}
	return total / time.Duration(len(w.samples))
}

func (w *rateWindow) eta(remaining int) time.Duration {
	if remaining <= 0 {
		return 0
	}
	return w.average() * time.Duration(remaining)
}
