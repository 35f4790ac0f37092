package circuitbreaker

import "sync"

// window is a count-based ring of the most recent call outcomes.
// Every reset starts a new generation; outcomes of calls that began in an
// earlier generation are dropped.
type window struct {
	mu       sync.Mutex
	gen      uint64
	failed   []bool
	slow     []bool
	next     int
	calls    int
	failures int
	slowN    int
}

type windowSnapshot struct {
	Calls        int
	Failures     int
	Slow         int
	FailureRate  float64
	SlowCallRate float64
}

func newWindow(size int) *window {
	return &window{
		failed: make([]bool, size),
		slow:   make([]bool, size),
	}
}

func (w *window) generation() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen
}

// record adds an outcome for a call that started in generation gen.
// It reports false when the outcome was dropped as stale.
func (w *window) record(gen uint64, failed, slow bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if gen != w.gen {
		return false
	}

	if w.calls == len(w.failed) {
		// evict the oldest outcome, which sits where the next one goes
		if w.failed[w.next] {
			w.failures--
		}
		if w.slow[w.next] {
			w.slowN--
		}
	} else {
		w.calls++
	}

	w.failed[w.next] = failed
	w.slow[w.next] = slow
	if failed {
		w.failures++
	}
	if slow {
		w.slowN++
	}
	w.next = (w.next + 1) % len(w.failed)
	return true
}

func (w *window) snapshot() windowSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := windowSnapshot{Calls: w.calls, Failures: w.failures, Slow: w.slowN}
	if w.calls > 0 {
		s.FailureRate = float64(w.failures) * 100 / float64(w.calls)
		s.SlowCallRate = float64(w.slowN) * 100 / float64(w.calls)
	}
	return s
}

func (w *window) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	clear(w.failed)
	clear(w.slow)
	w.next, w.calls, w.failures, w.slowN = 0, 0, 0, 0
	w.gen++
}
