package sink

import (
	"github.com/rs/zerolog"
)

// Log writes snapshots to a zerolog logger. Ticks that count a repetition are
// logged at info level, every other tick at debug level.
type Log struct {
	logger zerolog.Logger
}

// NewLog creates a logging sink.
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "sink").Logger()}
}

// Publish implements Sink.
func (l *Log) Publish(s Snapshot) {
	event := l.logger.Debug()
	msg := "Tick"
	if s.Counted {
		event = l.logger.Info()
		msg = "Repetition counted"
	}

	event.
		Str("session_id", s.SessionID).
		Uint64("tick", s.Tick).
		Int64("elapsed_ms", s.ElapsedMS).
		Int("activity", s.Activity).
		Float64("baseline", s.Baseline).
		Stringer("position", s.Position).
		Int("repetitions", s.Repetitions).
		Int("samples", s.Samples).
		Float32("coverage", s.Coverage).
		Int("regions", len(s.Regions)).
		Msg(msg)
}
