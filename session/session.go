// Package session - The counting session and the periodic sampling loop.
//
// A Session owns everything that is reset together when capture starts: the
// activity window, the repetition state machine and the start timestamp. The
// Driver runs the fixed-period loop that pulls one frame per tick and pushes it
// through the extract, window, baseline and decide pipeline:
//
//	┌────────┐   ┌───────────┐   ┌────────┐   ┌──────────┐   ┌────────────┐   ┌──────┐
//	│ Source │──▶│ Extractor │──▶│ Window │──▶│ Baseline │──▶│ Controller │──▶│ Sink │
//	└────────┘   └───────────┘   └────────┘   └──────────┘   └────────────┘   └──────┘
//
// All session state is touched only by the loop goroutine. Observers receive
// copies of the state through the sink.
package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-reps/activity"
	"github.com/nvr-ai/go-reps/controller"
)

// Session is the lifecycle container of one counting run.
type Session struct {
	// ID is regenerated on every Reset.
	ID string
	// Started is the time of the last Reset.
	Started time.Time
	// Window holds the recent activity samples.
	Window *activity.Window
	// Controller holds the position and repetition count.
	Controller *controller.Controller

	ticks uint64
}

// New creates a session with an empty window of the given capacity.
func New(capacity int, policy controller.CountingPolicy) *Session {
	return &Session{
		Window:     activity.NewWindow(capacity),
		Controller: controller.New(policy),
	}
}

// Reset clears the window, the position and the counter, and starts a new
// session at now.
func (s *Session) Reset(now time.Time) {
	s.ID = uuid.NewString()
	s.Started = now
	s.Window.Clear()
	s.Controller.Reset()
	s.ticks = 0
}

// Elapsed returns the milliseconds between the session start and now. It never
// returns a negative value.
func (s *Session) Elapsed(now time.Time) int64 {
	ms := now.Sub(s.Started).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// Ticks returns the number of samples recorded since the last Reset.
func (s *Session) Ticks() uint64 {
	return s.ticks
}

// Record pushes a sample taken at now and returns it as the window stored it.
func (s *Session) Record(now time.Time, value int) activity.Sample {
	sample := s.Window.Push(activity.Sample{Timestamp: s.Elapsed(now), Value: value})
	s.ticks++
	return sample
}
