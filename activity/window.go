// Package activity - Bounded history of per-tick motion activity and the baseline
// statistics computed over it.
package activity

// DefaultCapacity is the number of samples kept by a Window when no capacity is given.
const DefaultCapacity = 50

// Sample is a single activity reading taken on one tick.
type Sample struct {
	// Timestamp is the number of milliseconds since the session started.
	Timestamp int64 `json:"timestamp"`
	// Value is the number of foreground pixels in the cleaned mask.
	Value int `json:"value"`
}

// Window is a fixed-capacity FIFO of samples backed by a ring buffer.
//
// Samples are kept in insertion order. Once the window is full every Push evicts
// the oldest sample. A Window is not safe for concurrent use; it is owned by the
// sampling loop of a single session.
type Window struct {
	buf  []Sample
	head int // index of the oldest sample
	size int
}

// NewWindow creates an empty window that holds at most capacity samples.
//
// Arguments:
//   - capacity: Maximum number of samples, DefaultCapacity when <= 0.
//
// Returns:
//   - *Window: The empty window.
//
// @example
// w := NewWindow(50)
// w.Push(Sample{Timestamp: 0, Value: 120})
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{buf: make([]Sample, capacity)}
}

// Push appends a sample, evicting the oldest one when the window is full, and
// returns the sample as stored.
//
// A sample older than the latest one is stamped with the latest timestamp so the
// window stays in non-decreasing timestamp order.
func (w *Window) Push(s Sample) Sample {
	if last, ok := w.Latest(); ok && s.Timestamp < last.Timestamp {
		s.Timestamp = last.Timestamp
	}

	if w.size < len(w.buf) {
		w.buf[(w.head+w.size)%len(w.buf)] = s
		w.size++
		return s
	}

	w.buf[w.head] = s
	w.head = (w.head + 1) % len(w.buf)
	return s
}

// Clear drops every sample. The capacity is unchanged.
func (w *Window) Clear() {
	w.head = 0
	w.size = 0
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	return w.size
}

// Cap returns the maximum number of samples the window holds.
func (w *Window) Cap() int {
	return len(w.buf)
}

// IsEmpty reports whether the window holds no samples.
func (w *Window) IsEmpty() bool {
	return w.size == 0
}

// Latest returns the most recently pushed sample.
func (w *Window) Latest() (Sample, bool) {
	if w.size == 0 {
		return Sample{}, false
	}
	return w.buf[(w.head+w.size-1)%len(w.buf)], true
}

// Oldest returns the sample that will be evicted next.
func (w *Window) Oldest() (Sample, bool) {
	if w.size == 0 {
		return Sample{}, false
	}
	return w.buf[w.head], true
}

// Samples returns a copy of the held samples, oldest first.
func (w *Window) Samples() []Sample {
	out := make([]Sample, w.size)
	for i := range out {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}

// Values returns a copy of the held sample values, oldest first.
func (w *Window) Values() []int {
	out := make([]int, w.size)
	for i := range out {
		out[i] = w.buf[(w.head+i)%len(w.buf)].Value
	}
	return out
}
