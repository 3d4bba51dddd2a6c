package session

import (
	"testing"
	"time"

	"github.com/nvr-ai/go-reps/controller"
	"github.com/stretchr/testify/assert"
)

func TestSessionReset(t *testing.T) {
	s := New(3, controller.CountOnReturn)
	start := time.Unix(100, 0)
	s.Reset(start)
	firstID := s.ID

	s.Record(start.Add(100*time.Millisecond), 10)
	s.Record(start.Add(200*time.Millisecond), 500)
	s.Controller.Decide(500, 255)
	assert.Equal(t, uint64(2), s.Ticks())

	s.Reset(start.Add(time.Second))
	assert.NotEqual(t, firstID, s.ID)
	assert.True(t, s.Window.IsEmpty())
	assert.Equal(t, controller.CloseToInitial, s.Controller.Current)
	assert.Equal(t, 0, s.Controller.Repetitions)
	assert.Equal(t, uint64(0), s.Ticks())
	assert.Equal(t, start.Add(time.Second), s.Started)
}

func TestSessionElapsed(t *testing.T) {
	s := New(3, controller.CountOnReturn)
	start := time.Unix(100, 0)
	s.Reset(start)

	assert.Equal(t, int64(0), s.Elapsed(start))
	assert.Equal(t, int64(1500), s.Elapsed(start.Add(1500*time.Millisecond)))
	assert.Equal(t, int64(0), s.Elapsed(start.Add(-time.Second)))

	sample := s.Record(start.Add(250*time.Millisecond), 42)
	assert.Equal(t, int64(250), sample.Timestamp)
	assert.Equal(t, 42, sample.Value)

	latest, ok := s.Window.Latest()
	assert.True(t, ok)
	assert.Equal(t, sample, latest)
}

func TestSessionWindowCapacity(t *testing.T) {
	s := New(2, controller.CountOnReturn)
	s.Reset(time.Unix(0, 0))
	for i := 0; i < 5; i++ {
		s.Record(time.Unix(0, 0).Add(time.Duration(i)*100*time.Millisecond), i)
	}
	assert.Equal(t, 2, s.Window.Len())
	assert.Equal(t, []int{3, 4}, s.Window.Values())
	assert.Equal(t, uint64(5), s.Ticks())
}

func TestSessionRecordClockStepsBack(t *testing.T) {
	s := New(3, controller.CountOnReturn)
	start := time.Unix(100, 0)
	s.Reset(start)

	s.Record(start.Add(800*time.Millisecond), 10)
	sample := s.Record(start.Add(300*time.Millisecond), 20)
	assert.Equal(t, int64(800), sample.Timestamp)
	assert.Equal(t, 20, sample.Value)

	latest, ok := s.Window.Latest()
	assert.True(t, ok)
	assert.Equal(t, latest, sample)
}
