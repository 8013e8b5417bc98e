package telemetry

import (
	"log"
	"sync"
)

// LogRecorder is the default Recorder: it writes through the standard
// log package, only logging at the density the teacher's own ambient
// code does (internal/storage/scheduler.go, internal/storage/pager/backend.go)
// — notable state transitions, not every single count_me call — and
// keeps running totals in memory for callers that want a quick summary
// without a database.
type LogRecorder struct {
	mu      sync.Mutex
	verbose bool
	counts  map[string]int
}

// NewLogRecorder creates a LogRecorder. When verbose is true every
// CountMe call is logged; otherwise only milestone counts (powers of ten)
// are logged, to keep long randomized-workload runs readable.
func NewLogRecorder(verbose bool) *LogRecorder {
	return &LogRecorder{verbose: verbose, counts: make(map[string]int)}
}

func (r *LogRecorder) key(category, event string) string { return category + "." + event }

// CountMe records one occurrence of category/event.
func (r *LogRecorder) CountMe(category, event string) {
	r.mu.Lock()
	k := r.key(category, event)
	r.counts[k]++
	n := r.counts[k]
	r.mu.Unlock()

	if r.verbose {
		log.Printf("telemetry: %s (total %d)", k, n)
		return
	}
	if n == 1 || isPowerOfTen(n) {
		log.Printf("telemetry: %s reached %d", k, n)
	}
}

// Verbose reports the configured verbosity filter.
func (r *LogRecorder) Verbose() bool { return r.verbose }

// Count returns the running total for category/event, mostly useful in
// tests.
func (r *LogRecorder) Count(category, event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[r.key(category, event)]
}

func isPowerOfTen(n int) bool {
	if n <= 0 {
		return false
	}
	for n%10 == 0 {
		n /= 10
	}
	return n == 1
}
