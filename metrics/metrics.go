package metrics

import (
	"net"
	"net/http"
	"time"

	"github.com/nvr-ai/go-reps/sink"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Sampling metrics
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reps_ticks_total",
			Help: "Total number of sampling ticks processed",
		},
	)

	FramesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reps_frames_skipped_total",
			Help: "Total number of ticks skipped without updating the counter",
		},
		[]string{"reason"},
	)

	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reps_tick_duration_seconds",
			Help:    "Time spent processing one sampling tick",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5},
		},
	)

	// Counting metrics
	Activity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reps_activity_pixels",
			Help: "Foreground pixel count of the latest frame",
		},
	)

	Baseline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reps_baseline_pixels",
			Help: "Decision threshold computed over the activity window",
		},
	)

	Repetitions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reps_repetitions",
			Help: "Repetitions counted in the current session",
		},
	)

	RepetitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reps_repetitions_total",
			Help: "Repetitions counted across all sessions",
		},
	)

	// Delivery metrics
	SinkDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reps_sink_dropped_total",
			Help: "Snapshots dropped because a subscriber queue was full",
		},
		[]string{"subscriber"},
	)

	Running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reps_running",
			Help: "1 while the sampling loop is running",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		FramesSkippedTotal,
		TickDuration,
		Activity,
		Baseline,
		Repetitions,
		RepetitionsTotal,
		SinkDroppedTotal,
		Running,
	)
}

// Skip reasons.
const (
	SkipNoFrame    = "no_frame"
	SkipEmptyFrame = "empty_frame"
	SkipError      = "error"
)

// StartTick begins timing a tick. Call the returned function when the tick completes.
func StartTick() func() {
	start := time.Now()
	return func() {
		TickDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordDrop counts a snapshot dropped for the named subscriber.
func RecordDrop(subscriber string) {
	SinkDroppedTotal.WithLabelValues(subscriber).Inc()
}

// SetRunning reflects the state of the sampling loop.
func SetRunning(running bool) {
	if running {
		Running.Set(1)
		return
	}
	Running.Set(0)
}

// Sink mirrors snapshots into the counting gauges.
type Sink struct{}

// Publish implements sink.Sink.
func (Sink) Publish(s sink.Snapshot) {
	Activity.Set(float64(s.Activity))
	Baseline.Set(s.Baseline)
	Repetitions.Set(float64(s.Repetitions))
	if s.Counted {
		RepetitionsTotal.Inc()
	}
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler serves /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Start binds the listen address and serves in the background. A bind failure,
// such as the port already being in use, is returned to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.server.Addr)
	}
	s.listener = ln

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting metrics server")
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.server.Addr
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
