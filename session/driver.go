package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/go-reps/activity"
	"github.com/nvr-ai/go-reps/capture"
	"github.com/nvr-ai/go-reps/controller"
	"github.com/nvr-ai/go-reps/metrics"
	"github.com/nvr-ai/go-reps/motion"
	"github.com/nvr-ai/go-reps/sink"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("session: driver closed")

// DefaultTickPeriod is the sampling period used when Config.TickPeriod is zero.
const DefaultTickPeriod = 100 * time.Millisecond

// Config contains the sampling loop parameters.
type Config struct {
	// TickPeriod is the interval between two frame reads.
	TickPeriod time.Duration
	// WindowCapacity is the number of samples the baseline is computed over.
	WindowCapacity int
	// Baseline selects the baseline estimator.
	Baseline activity.Policy
	// Counting selects when a position change counts as a repetition.
	Counting controller.CountingPolicy
}

// DefaultConfig returns a 100ms loop over a 50-sample midrange window that
// counts on return to the initial position.
func DefaultConfig() Config {
	return Config{
		TickPeriod:     DefaultTickPeriod,
		WindowCapacity: activity.DefaultCapacity,
		Baseline:       activity.DefaultPolicy,
		Counting:       controller.DefaultCountingPolicy,
	}
}

// Extractor turns a frame into an activity reading.
type Extractor interface {
	Extract(frame gocv.Mat) (motion.Result, error)
	// Reset discards the background model so that the next frame starts a new one.
	Reset()
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock replaces the wall clock, typically with a clock.Mock in tests.
func WithClock(c clock.Clock) Option {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Driver) {
		d.logger = logger.With().Str("component", "session").Logger()
	}
}

// Driver runs the fixed-period sampling loop of a counting session.
//
// Start and Stop may be called from any goroutine. The pipeline itself runs on
// a single loop goroutine, which is the only writer of the session state.
type Driver struct {
	config    Config
	source    capture.Source
	extractor Extractor
	sink      sink.Sink
	estimator activity.Estimator
	clock     clock.Clock
	logger    zerolog.Logger

	// Lifecycle, guarded by mu.
	mu      sync.Mutex
	running bool
	opened  bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}

	// Loop-owned state.
	session *Session
	frame   gocv.Mat

	lastMu sync.RWMutex
	last   *sink.Snapshot
}

// NewDriver creates a stopped driver.
//
// Arguments:
//   - config: Loop parameters. Zero fields take their defaults.
//   - source: The frame source, opened on Start and released on Stop.
//   - extractor: The foreground extractor, reset on every Start.
//   - out: Receives one snapshot per processed tick. May be nil.
//
// Returns:
//   - *Driver: The driver.
//   - error: An error if the baseline policy is unknown.
//
// @example
// driver, err := NewDriver(DefaultConfig(), capture.NewCamera(0), motion.NewExtractor(motion.DefaultConfig()), sink.NewLog(logger))
// if err != nil {
//     return err
// }
// defer driver.Close()
// if err := driver.Start(); err != nil {
//     return err
// }
func NewDriver(config Config, source capture.Source, extractor Extractor, out sink.Sink, opts ...Option) (*Driver, error) {
	defaults := DefaultConfig()
	if config.TickPeriod <= 0 {
		config.TickPeriod = defaults.TickPeriod
	}
	if config.WindowCapacity <= 0 {
		config.WindowCapacity = defaults.WindowCapacity
	}
	if config.Baseline == "" {
		config.Baseline = defaults.Baseline
	}
	if config.Counting == "" {
		config.Counting = defaults.Counting
	}

	estimator, err := activity.NewEstimator(config.Baseline)
	if err != nil {
		return nil, err
	}
	if _, err := controller.ParseCountingPolicy(string(config.Counting)); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, errors.New("session: nil source")
	}
	if extractor == nil {
		return nil, errors.New("session: nil extractor")
	}
	if out == nil {
		out = sink.Func(func(sink.Snapshot) {})
	}

	d := &Driver{
		config:    config,
		source:    source,
		extractor: extractor,
		sink:      out,
		estimator: estimator,
		clock:     clock.New(),
		logger:    zerolog.Nop(),
		session:   New(config.WindowCapacity, config.Counting),
		frame:     gocv.NewMat(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the effective configuration.
func (d *Driver) Config() Config {
	return d.config
}

// Start opens the source, resets the session and the background model, and
// begins sampling. The first tick runs immediately. Calling Start while the
// loop is running does nothing.
//
// Returns:
//   - error: An error wrapping capture.ErrDevice if the source cannot be opened.
//     The driver then stays stopped.
func (d *Driver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.running {
		return nil
	}

	if err := d.source.Open(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to open frame source")
		return errors.Wrap(err, "start session")
	}
	d.opened = true

	now := d.clock.Now()
	d.session.Reset(now)
	d.extractor.Reset()
	d.setLast(nil)

	ctx, cancel := context.WithCancel(context.Background())
	ticker := d.clock.Ticker(d.config.TickPeriod)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running = true
	metrics.SetRunning(true)

	d.logger.Info().
		Str("session_id", d.session.ID).
		Dur("tick_period", d.config.TickPeriod).
		Int("window_capacity", d.config.WindowCapacity).
		Str("baseline", string(d.config.Baseline)).
		Str("counting", string(d.config.Counting)).
		Msg("Session started")

	go d.loop(ctx, ticker, d.done)
	return nil
}

// Stop halts the loop and releases the source. No tick runs after Stop
// returns. Calling Stop while stopped does nothing.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}

	d.cancel()
	<-d.done
	d.running = false
	metrics.SetRunning(false)

	err := d.release()

	event := d.logger.Info().Str("session_id", d.session.ID)
	if last, ok := d.Last(); ok {
		event = event.Int("repetitions", last.Repetitions).Uint64("ticks", last.Tick)
	}
	event.Msg("Session stopped")

	return err
}

// release frees the source once per successful Open. Callers hold mu.
func (d *Driver) release() error {
	if !d.opened {
		return nil
	}
	d.opened = false
	return errors.Wrap(d.source.Release(), "release frame source")
}

// Running reports whether the loop is running.
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Last returns the most recently published snapshot of the current session.
func (d *Driver) Last() (sink.Snapshot, bool) {
	d.lastMu.RLock()
	defer d.lastMu.RUnlock()
	if d.last == nil {
		return sink.Snapshot{}, false
	}
	return d.last.Clone(), true
}

func (d *Driver) setLast(s *sink.Snapshot) {
	d.lastMu.Lock()
	d.last = s
	d.lastMu.Unlock()
}

// Close stops the loop and frees the frame buffer. The driver cannot be
// restarted afterwards.
func (d *Driver) Close() error {
	err := d.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		d.frame.Close()
	}
	return err
}

func (d *Driver) loop(ctx context.Context, ticker *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	d.tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			d.tick()
		}
	}
}

// tick runs the pipeline once. A missing or empty frame skips the tick.
func (d *Driver) tick() {
	observe := metrics.StartTick()
	defer observe()
	metrics.TicksTotal.Inc()

	if !d.source.Read(&d.frame) || d.frame.Empty() {
		metrics.FramesSkippedTotal.WithLabelValues(metrics.SkipNoFrame).Inc()
		d.logger.Debug().Msg("No frame available, skipping tick")
		return
	}

	result, err := d.extractor.Extract(d.frame)
	if err != nil {
		if errors.Is(err, motion.ErrEmptyFrame) {
			metrics.FramesSkippedTotal.WithLabelValues(metrics.SkipEmptyFrame).Inc()
			d.logger.Debug().Msg("Empty frame, skipping tick")
			return
		}
		metrics.FramesSkippedTotal.WithLabelValues(metrics.SkipError).Inc()
		d.logger.Warn().Err(err).Msg("Failed to extract foreground, skipping tick")
		return
	}

	sample := d.session.Record(d.clock.Now(), result.Activity)

	baseline, err := d.estimator.Estimate(d.session.Window.Values())
	if err != nil {
		d.logger.Error().Err(err).Int("samples", d.session.Window.Len()).Msg("Failed to compute baseline")
		return
	}
	transition := d.session.Controller.Decide(sample.Value, baseline)

	snapshot := sink.Snapshot{
		SessionID:   d.session.ID,
		Tick:        d.session.Ticks(),
		ElapsedMS:   sample.Timestamp,
		Activity:    sample.Value,
		Baseline:    baseline,
		Position:    transition.To,
		Repetitions: transition.Repetitions,
		Counted:     transition.Counted,
		Samples:     d.session.Window.Len(),
		Coverage:    result.Coverage,
		Regions:     result.Regions,
	}

	if transition.Changed {
		d.logger.Debug().
			Stringer("from", transition.From).
			Stringer("to", transition.To).
			Int("activity", sample.Value).
			Float64("baseline", baseline).
			Msg("Position changed")
	}

	stored := snapshot.Clone()
	d.setLast(&stored)
	d.sink.Publish(snapshot.Clone())
}
