package sink

import (
	"image"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanoutDeliversInOrder(t *testing.T) {
	fan := NewFanout()

	var mu sync.Mutex
	var got []uint64
	require.NoError(t, fan.Subscribe("ordered", Func(func(s Snapshot) {
		mu.Lock()
		got = append(got, s.Tick)
		mu.Unlock()
	}), 32))

	for i := uint64(1); i <= 20; i++ {
		fan.Publish(Snapshot{Tick: i})
	}
	fan.Close()

	require.Len(t, got, 20)
	for i, tick := range got {
		assert.Equal(t, uint64(i+1), tick)
	}
	assert.Equal(t, uint64(20), fan.Published())
}

func TestFanoutDropsForSlowSubscriberOnly(t *testing.T) {
	var dropped []string
	var dropMu sync.Mutex
	fan := NewFanout(WithDropHandler(func(id string) {
		dropMu.Lock()
		dropped = append(dropped, id)
		dropMu.Unlock()
	}))
	defer fan.Close()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	require.NoError(t, fan.Subscribe("slow", Func(func(Snapshot) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	}), 1))

	fast := make(chan Snapshot, 10)
	require.NoError(t, fan.Subscribe("fast", Func(func(s Snapshot) { fast <- s }), 10))

	// The slow subscriber takes the first snapshot and blocks on it.
	fan.Publish(Snapshot{Tick: 1})
	<-started

	// One more fits in its queue; the rest are dropped.
	for i := uint64(2); i <= 5; i++ {
		fan.Publish(Snapshot{Tick: i})
	}

	for i := 0; i < 5; i++ {
		select {
		case <-fast:
		case <-time.After(time.Second):
			t.Fatal("fast subscriber starved by slow subscriber")
		}
	}

	stats, err := fan.Stats("slow")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), stats.Sent)
	assert.Equal(t, uint64(3), stats.Dropped)

	fastStats, err := fan.Stats("fast")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fastStats.Dropped)

	dropMu.Lock()
	assert.Equal(t, []string{"slow", "slow", "slow"}, dropped)
	dropMu.Unlock()

	close(release)
}

func TestFanoutSubscribeErrors(t *testing.T) {
	fan := NewFanout()
	noop := Func(func(Snapshot) {})

	require.NoError(t, fan.Subscribe("a", noop, 0))
	assert.True(t, errors.Is(fan.Subscribe("a", noop, 0), ErrSubscriberExists))
	assert.True(t, errors.Is(fan.Subscribe("b", nil, 0), ErrNilSink))
	assert.True(t, errors.Is(fan.Unsubscribe("missing"), ErrSubscriberNotFound))

	_, err := fan.Stats("missing")
	assert.True(t, errors.Is(err, ErrSubscriberNotFound))

	fan.Close()
	fan.Close()
	assert.True(t, errors.Is(fan.Subscribe("c", noop, 0), ErrClosed))

	// Publishing after close is silently ignored.
	fan.Publish(Snapshot{Tick: 1})
	assert.Equal(t, uint64(0), fan.Published())
}

func TestFanoutUnsubscribeDrains(t *testing.T) {
	fan := NewFanout()
	defer fan.Close()

	var count int
	require.NoError(t, fan.Subscribe("counter", Func(func(Snapshot) { count++ }), 8))
	for i := 0; i < 5; i++ {
		fan.Publish(Snapshot{})
	}
	require.NoError(t, fan.Unsubscribe("counter"))
	assert.Equal(t, 5, count)

	_, err := fan.Stats("counter")
	assert.True(t, errors.Is(err, ErrSubscriberNotFound))
}

func TestFanoutClonesRegions(t *testing.T) {
	fan := NewFanout()

	got := make(chan Snapshot, 1)
	require.NoError(t, fan.Subscribe("regions", Func(func(s Snapshot) { got <- s }), 1))

	regions := []image.Rectangle{image.Rect(0, 0, 10, 10)}
	fan.Publish(Snapshot{Regions: regions})
	fan.Close()

	regions[0] = image.Rect(5, 5, 6, 6)
	snap := <-got
	assert.Equal(t, image.Rect(0, 0, 10, 10), snap.Regions[0])
}

func TestMultiPublishesToAll(t *testing.T) {
	var a, b []uint64
	m := Multi{
		Func(func(s Snapshot) { a = append(a, s.Tick) }),
		Func(func(s Snapshot) { b = append(b, s.Tick) }),
	}
	m.Publish(Snapshot{Tick: 1})
	m.Publish(Snapshot{Tick: 2})

	assert.Equal(t, []uint64{1, 2}, a)
	assert.Equal(t, []uint64{1, 2}, b)
}
