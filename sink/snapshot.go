// Package sink - Delivery of per-tick counting snapshots to observers.
//
// The sampling loop publishes one Snapshot per processed tick. Observers are
// plain Sink values; Fanout decouples slow observers from the loop so that a
// stalled consumer never delays sampling.
package sink

import (
	"image"

	"github.com/nvr-ai/go-reps/controller"
)

// Snapshot is the observable state of a counting session after one tick.
type Snapshot struct {
	// SessionID identifies the session that produced the snapshot.
	SessionID string `json:"session_id"`
	// Tick is the 1-based index of the processed tick within the session.
	Tick uint64 `json:"tick"`
	// ElapsedMS is the time since the session started, in milliseconds.
	ElapsedMS int64 `json:"elapsed_ms"`
	// Activity is the foreground pixel count of the latest frame.
	Activity int `json:"activity"`
	// Baseline is the decision threshold computed for this tick.
	Baseline float64 `json:"baseline"`
	// Position is the state of the repetition machine after this tick.
	Position controller.Position `json:"position"`
	// Repetitions is the running repetition count.
	Repetitions int `json:"repetitions"`
	// Counted is true when this tick incremented Repetitions.
	Counted bool `json:"counted"`
	// Samples is the number of samples held by the activity window.
	Samples int `json:"samples"`
	// Coverage is Activity as a fraction of the frame area.
	Coverage float32 `json:"coverage"`
	// Regions are the merged bounding boxes of moving areas, when enabled.
	Regions []image.Rectangle `json:"regions,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Regions != nil {
		out.Regions = make([]image.Rectangle, len(s.Regions))
		copy(out.Regions, s.Regions)
	}
	return out
}

// Sink receives snapshots.
type Sink interface {
	Publish(Snapshot)
}

// Func adapts an ordinary function to the Sink interface.
type Func func(Snapshot)

// Publish calls f(s).
func (f Func) Publish(s Snapshot) {
	f(s)
}

// Multi publishes to every sink in order, synchronously.
type Multi []Sink

// Publish implements Sink.
func (m Multi) Publish(s Snapshot) {
	for _, sink := range m {
		sink.Publish(s.Clone())
	}
}
