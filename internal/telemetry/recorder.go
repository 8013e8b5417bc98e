// Package telemetry implements the Recorder collaborator consumed by the
// garbage collector (spec.md §6): count_me(category, event) plus a
// verbosity filter. Two implementations are provided: a log-backed
// default (LogRecorder) and a persistent one backed by
// modernc.org/sqlite (SQLiteRecorder) — the teacher's own SQL engine
// repurposed as a telemetry sink, since counting events is the one
// concern in this codebase that legitimately wants a little database.
package telemetry

// Categories required by spec.md §6.
const (
	CategoryGC = "garbage_collection"
	CategoryIt = "GC" // iterator-exhaustion events
)

// Events within CategoryGC.
const (
	EventSwitchMerge  = "switch_merge"
	EventPartialMerge = "partial_merge"
	EventFullMerge    = "full_merge"
)

// Events within CategoryIt.
const (
	EventStopIteration = "StopIteration"
)

// Recorder is the telemetry sink the GC reports events to.
type Recorder interface {
	CountMe(category, event string)
	Verbose() bool
}
