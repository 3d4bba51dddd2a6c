package sink

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned when subscribing to a closed Fanout.
	ErrClosed = errors.New("sink: fanout closed")
	// ErrSubscriberExists is returned when an id is already subscribed.
	ErrSubscriberExists = errors.New("sink: subscriber already exists")
	// ErrSubscriberNotFound is returned for unknown subscriber ids.
	ErrSubscriberNotFound = errors.New("sink: subscriber not found")
	// ErrNilSink is returned when subscribing a nil sink.
	ErrNilSink = errors.New("sink: nil sink")
)

// DefaultBuffer is the queue depth used when Subscribe is given a non-positive buffer.
const DefaultBuffer = 16

// Stats are delivery counters for one subscriber.
type Stats struct {
	// Sent counts snapshots queued for the subscriber.
	Sent uint64 `json:"sent"`
	// Delivered counts snapshots the subscriber has finished handling.
	Delivered uint64 `json:"delivered"`
	// Dropped counts snapshots discarded because the queue was full.
	Dropped uint64 `json:"dropped"`
}

type subscriber struct {
	id    string
	sink  Sink
	queue chan Snapshot
	done  chan struct{}

	sent      uint64
	delivered uint64
	dropped   uint64
}

func (s *subscriber) run() {
	defer close(s.done)
	for snap := range s.queue {
		s.sink.Publish(snap)
		atomic.AddUint64(&s.delivered, 1)
	}
}

// Fanout is a Sink that hands every snapshot to each subscriber through its own
// bounded queue. Each subscriber is served by one goroutine, so it observes
// snapshots in publish order. When a queue is full the newest snapshot is
// dropped for that subscriber only.
//
// @example
// fan := NewFanout()
// defer fan.Close()
// _ = fan.Subscribe("log", NewLog(logger), 0)
// driver, err := session.NewDriver(cfg, src, extractor, fan)
type Fanout struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	published   uint64
	closed      bool
	onDrop      func(id string)
}

// FanoutOption configures a Fanout.
type FanoutOption func(*Fanout)

// WithDropHandler registers fn to be called, with the subscriber id, whenever a
// snapshot is dropped.
func WithDropHandler(fn func(id string)) FanoutOption {
	return func(f *Fanout) {
		f.onDrop = fn
	}
}

// NewFanout creates an empty Fanout.
func NewFanout(opts ...FanoutOption) *Fanout {
	f := &Fanout{subscribers: make(map[string]*subscriber)}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscribe registers sink under id with a queue of the given depth.
func (f *Fanout) Subscribe(id string, sink Sink, buffer int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if _, exists := f.subscribers[id]; exists {
		return errors.Wrap(ErrSubscriberExists, id)
	}
	if sink == nil {
		return ErrNilSink
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	sub := &subscriber{
		id:    id,
		sink:  sink,
		queue: make(chan Snapshot, buffer),
		done:  make(chan struct{}),
	}
	f.subscribers[id] = sub
	go sub.run()
	return nil
}

// Publish implements Sink. It never blocks.
func (f *Fanout) Publish(s Snapshot) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return
	}
	atomic.AddUint64(&f.published, 1)

	for _, sub := range f.subscribers {
		select {
		case sub.queue <- s.Clone():
			atomic.AddUint64(&sub.sent, 1)
		default:
			atomic.AddUint64(&sub.dropped, 1)
			if f.onDrop != nil {
				f.onDrop(sub.id)
			}
		}
	}
}

// Unsubscribe removes the subscriber and waits for its queued snapshots to be handled.
func (f *Fanout) Unsubscribe(id string) error {
	f.mu.Lock()
	sub, exists := f.subscribers[id]
	if !exists {
		f.mu.Unlock()
		return errors.Wrap(ErrSubscriberNotFound, id)
	}
	delete(f.subscribers, id)
	close(sub.queue)
	f.mu.Unlock()

	<-sub.done
	return nil
}

// Stats returns the counters of the given subscriber.
func (f *Fanout) Stats(id string) (Stats, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	sub, exists := f.subscribers[id]
	if !exists {
		return Stats{}, errors.Wrap(ErrSubscriberNotFound, id)
	}
	return Stats{
		Sent:      atomic.LoadUint64(&sub.sent),
		Delivered: atomic.LoadUint64(&sub.delivered),
		Dropped:   atomic.LoadUint64(&sub.dropped),
	}, nil
}

// Published returns the number of snapshots accepted by Publish.
func (f *Fanout) Published() uint64 {
	return atomic.LoadUint64(&f.published)
}

// Close stops accepting snapshots, drains every queue and waits for all
// subscribers to finish. Closing twice is a no-op. Close the fan-out before
// the sinks subscribed to it, or the drained snapshots reach a closed sink.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := f.subscribers
	f.subscribers = nil
	for _, sub := range subs {
		close(sub.queue)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}
}
