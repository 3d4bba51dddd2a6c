package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/nvr-ai/go-reps/capture"
	"github.com/nvr-ai/go-reps/config"
	"github.com/nvr-ai/go-reps/logging"
	"github.com/nvr-ai/go-reps/metrics"
	"github.com/nvr-ai/go-reps/motion"
	"github.com/nvr-ai/go-reps/session"
	"github.com/nvr-ai/go-reps/sink"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runCounter(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting repcount")

	extractor := motion.NewExtractor(cfg.MotionExtractor())
	defer extractor.Close()

	if cfg.Metrics.Enabled {
		server := metrics.NewServer(cfg.Metrics.Address, logger)
		if err := server.Start(); err != nil {
			return errors.Wrap(err, "failed to start metrics server")
		}
		defer func() {
			if err := server.Stop(); err != nil {
				logger.Error().Err(err).Msg("Failed to stop metrics server")
			}
		}()
	}

	var publisher *sink.MQTT
	if cfg.MQTT.Enabled {
		publisher = sink.NewMQTT(cfg.MQTTSink(), logger)
		if err := publisher.Connect(); err != nil {
			return err
		}
		defer publisher.Close()
	}

	// The fan-out is closed before the sinks behind it so queued snapshots
	// still reach a connected broker.
	fan := sink.NewFanout(sink.WithDropHandler(metrics.RecordDrop))
	defer fan.Close()

	if err := fan.Subscribe("log", sink.NewLog(logger), 0); err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		if err := fan.Subscribe("metrics", metrics.Sink{}, 0); err != nil {
			return err
		}
	}
	if publisher != nil {
		if err := fan.Subscribe("mqtt", publisher, cfg.MQTT.Buffer); err != nil {
			return err
		}
	}

	driver, err := session.NewDriver(cfg.Session(), newSource(cfg), extractor, fan, session.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, "failed to create sampling loop")
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close sampling loop")
		}
	}()

	if err := driver.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if durationFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, durationFlag)
		defer cancel()
	}

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	if err := driver.Stop(); err != nil {
		return err
	}
	fan.Close()

	if last, ok := driver.Last(); ok {
		fmt.Fprintf(cmd.OutOrStdout(), "repetitions: %d (%d samples in %.1fs)\n",
			last.Repetitions, last.Tick, float64(last.ElapsedMS)/1000)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "repetitions: 0 (no frames processed)")
	}
	return nil
}

// loadConfig loads the configuration file and applies command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}

	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Capture.Device = deviceFlag
		cfg.Capture.Frames = ""
	}
	if flags.Changed("frames") {
		cfg.Capture.Frames = framesFlag
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// newSource returns the frame directory source when one is configured, the
// capture device otherwise. Numeric devices are camera indices.
func newSource(cfg *config.Config) capture.Source {
	if cfg.Capture.Frames != "" {
		return capture.NewSequence(cfg.Capture.Frames, cfg.Capture.Width, cfg.Capture.Loop)
	}
	if index, err := strconv.Atoi(cfg.Capture.Device); err == nil {
		return capture.NewCamera(index)
	}
	return capture.NewCamera(cfg.Capture.Device)
}
