package config

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/nvr-ai/go-reps/activity"
	"github.com/nvr-ai/go-reps/controller"
	"github.com/nvr-ai/go-reps/motion"
	"github.com/nvr-ai/go-reps/session"
	"github.com/nvr-ai/go-reps/sink"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the configuration of the repcount binary.
type Config struct {
	Capture CaptureConfig `mapstructure:"capture"`
	Motion  MotionConfig  `mapstructure:"motion"`
	Counter CounterConfig `mapstructure:"counter"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	MQTT    MQTTConfig    `mapstructure:"mqtt"`
}

// CaptureConfig selects the frame source. Frames takes precedence over Device.
type CaptureConfig struct {
	Device string `mapstructure:"device"` // device index or video path/URL
	Frames string `mapstructure:"frames"` // directory of still frames
	Width  uint   `mapstructure:"width"`  // frames are downscaled to this width, 0 keeps the native size
	Loop   bool   `mapstructure:"loop"`   // replay the frame directory forever
}

type MotionConfig struct {
	History       int     `mapstructure:"history"`
	Threshold     float64 `mapstructure:"threshold"`
	KernelSize    int     `mapstructure:"kernel_size"`
	DetectRegions bool    `mapstructure:"detect_regions"`
	MinRegionArea float64 `mapstructure:"min_region_area"`
}

type CounterConfig struct {
	TickPeriodMS   int    `mapstructure:"tick_period_ms"`
	WindowCapacity int    `mapstructure:"window_capacity"`
	Baseline       string `mapstructure:"baseline_policy"`
	Counting       string `mapstructure:"counting_policy"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

type MQTTConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Broker     string `mapstructure:"broker"`
	ClientID   string `mapstructure:"client_id"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Topic      string `mapstructure:"topic"`
	QoS        int    `mapstructure:"qos"`
	Retained   bool   `mapstructure:"retained"`
	Timeout    string `mapstructure:"timeout"`
	CountsOnly bool   `mapstructure:"counts_only"`
	Buffer     int    `mapstructure:"buffer"`
}

// Load reads the configuration file at configPath, if any, applies REPS_*
// environment overrides and validates the result. An empty configPath uses
// defaults and the environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("REPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &config, nil
}

// Keys returns every configuration key known to the defaults, sorted.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("capture.device", "0")
	v.SetDefault("capture.frames", "")
	v.SetDefault("capture.width", 640)
	v.SetDefault("capture.loop", false)

	motionDefaults := motion.DefaultConfig()
	v.SetDefault("motion.history", motionDefaults.History)
	v.SetDefault("motion.threshold", motionDefaults.Threshold)
	v.SetDefault("motion.kernel_size", motionDefaults.KernelSize)
	v.SetDefault("motion.detect_regions", motionDefaults.DetectRegions)
	v.SetDefault("motion.min_region_area", motionDefaults.MinRegionArea)

	v.SetDefault("counter.tick_period_ms", int(session.DefaultTickPeriod/time.Millisecond))
	v.SetDefault("counter.window_capacity", activity.DefaultCapacity)
	v.SetDefault("counter.baseline_policy", string(activity.DefaultPolicy))
	v.SetDefault("counter.counting_policy", string(controller.DefaultCountingPolicy))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9090")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "repcount")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "repcount/sessions")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retained", false)
	v.SetDefault("mqtt.timeout", "5s")
	v.SetDefault("mqtt.counts_only", false)
	v.SetDefault("mqtt.buffer", sink.DefaultBuffer)
}

// Validate checks every setting and normalises the policy aliases. Load calls it;
// call it again after changing a loaded Config.
func (c *Config) Validate() error {
	if c.Capture.Device == "" && c.Capture.Frames == "" {
		return errors.New("either capture.device or capture.frames is required")
	}

	if c.Motion.History <= 0 {
		return errors.Errorf("invalid motion history: %d", c.Motion.History)
	}
	if c.Motion.Threshold <= 0 {
		return errors.Errorf("invalid motion threshold: %v", c.Motion.Threshold)
	}
	if c.Motion.KernelSize <= 0 {
		return errors.Errorf("invalid motion kernel size: %d", c.Motion.KernelSize)
	}
	if c.Motion.MinRegionArea < 0 {
		return errors.Errorf("invalid minimum region area: %v", c.Motion.MinRegionArea)
	}

	if c.Counter.TickPeriodMS <= 0 {
		return errors.Errorf("invalid tick period: %dms", c.Counter.TickPeriodMS)
	}
	if c.Counter.WindowCapacity <= 0 {
		return errors.Errorf("invalid window capacity: %d", c.Counter.WindowCapacity)
	}

	baseline, err := activity.ParsePolicy(c.Counter.Baseline)
	if err != nil {
		return err
	}
	c.Counter.Baseline = string(baseline)

	counting, err := controller.ParseCountingPolicy(c.Counter.Counting)
	if err != nil {
		return err
	}
	c.Counter.Counting = string(counting)

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return errors.Errorf("invalid log format: %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return errors.New("metrics address is required when metrics are enabled")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return errors.New("mqtt broker is required when mqtt is enabled")
		}
		if c.MQTT.Topic == "" {
			return errors.New("mqtt topic is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return errors.Errorf("invalid mqtt qos: %d", c.MQTT.QoS)
		}
		if _, err := time.ParseDuration(c.MQTT.Timeout); err != nil {
			return errors.Wrapf(err, "invalid mqtt timeout %q", c.MQTT.Timeout)
		}
	}

	return nil
}

// TickPeriod returns the sampling period.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.Counter.TickPeriodMS) * time.Millisecond
}

// Session returns the sampling loop configuration.
func (c *Config) Session() session.Config {
	return session.Config{
		TickPeriod:     c.TickPeriod(),
		WindowCapacity: c.Counter.WindowCapacity,
		Baseline:       activity.Policy(c.Counter.Baseline),
		Counting:       controller.CountingPolicy(c.Counter.Counting),
	}
}

// MotionExtractor returns the background model configuration.
func (c *Config) MotionExtractor() motion.Config {
	return motion.Config{
		History:       c.Motion.History,
		Threshold:     c.Motion.Threshold,
		KernelSize:    c.Motion.KernelSize,
		DetectRegions: c.Motion.DetectRegions,
		MinRegionArea: c.Motion.MinRegionArea,
	}
}

// MQTTSink returns the MQTT sink configuration.
func (c *Config) MQTTSink() sink.MQTTConfig {
	timeout, err := time.ParseDuration(c.MQTT.Timeout)
	if err != nil {
		timeout = sink.DefaultMQTTTimeout
	}
	return sink.MQTTConfig{
		Broker:     c.MQTT.Broker,
		ClientID:   c.MQTT.ClientID,
		Username:   c.MQTT.Username,
		Password:   c.MQTT.Password,
		Topic:      c.MQTT.Topic,
		QoS:        byte(c.MQTT.QoS),
		Retained:   c.MQTT.Retained,
		Timeout:    timeout,
		CountsOnly: c.MQTT.CountsOnly,
	}
}
