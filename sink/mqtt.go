package sink

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. "tcp://localhost:1883".
	Broker string `mapstructure:"broker"`
	// ClientID identifies this process to the broker.
	ClientID string `mapstructure:"client_id"`
	// Username and Password are optional credentials.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	// Topic is the topic prefix. Snapshots go to "<Topic>/<session id>".
	Topic string `mapstructure:"topic"`
	// QoS is the MQTT quality of service level (0, 1 or 2).
	QoS byte `mapstructure:"qos"`
	// Retained marks published messages as retained.
	Retained bool `mapstructure:"retained"`
	// Timeout bounds connect and publish acknowledgement waits.
	Timeout time.Duration `mapstructure:"timeout"`
	// CountsOnly publishes only the ticks that count a repetition.
	CountsOnly bool `mapstructure:"counts_only"`
}

// DefaultMQTTTimeout is used when MQTTConfig.Timeout is zero.
const DefaultMQTTTimeout = 5 * time.Second

// MQTT publishes snapshots as JSON to an MQTT broker.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	logger zerolog.Logger

	mu        sync.Mutex
	published uint64
	failures  uint64
}

// NewMQTT creates an MQTT sink with a paho client built from cfg. The client
// is not connected until Connect is called.
func NewMQTT(cfg MQTTConfig, logger zerolog.Logger) *MQTT {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	m := NewMQTTWithClient(cfg, nil, logger)
	opts.OnConnect = func(mqtt.Client) {
		m.logger.Info().Str("broker", cfg.Broker).Msg("MQTT connection established")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.logger.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost, reconnecting")
	}
	m.client = mqtt.NewClient(opts)
	return m
}

// NewMQTTWithClient creates an MQTT sink around an existing client.
func NewMQTTWithClient(cfg MQTTConfig, client mqtt.Client, logger zerolog.Logger) *MQTT {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultMQTTTimeout
	}
	cfg.Topic = strings.TrimSuffix(cfg.Topic, "/")
	return &MQTT{
		cfg:    cfg,
		client: client,
		logger: logger.With().Str("component", "mqtt").Logger(),
	}
}

// Connect connects the client to the broker.
func (m *MQTT) Connect() error {
	m.logger.Info().Str("broker", m.cfg.Broker).Msg("Connecting to MQTT broker")

	token := m.client.Connect()
	if !token.WaitTimeout(m.cfg.Timeout) {
		return errors.Errorf("mqtt connect to %s: timeout", m.cfg.Broker)
	}
	return errors.Wrapf(token.Error(), "mqtt connect to %s", m.cfg.Broker)
}

// Topic returns the topic a snapshot is published to.
func (m *MQTT) Topic(s Snapshot) string {
	if s.SessionID == "" {
		return m.cfg.Topic
	}
	return m.cfg.Topic + "/" + s.SessionID
}

// Publish implements Sink. Failures are logged and counted, never returned.
func (m *MQTT) Publish(s Snapshot) {
	if m.cfg.CountsOnly && !s.Counted {
		return
	}
	if err := m.publish(s); err != nil {
		atomic.AddUint64(&m.failures, 1)
		m.logger.Warn().Err(err).Uint64("tick", s.Tick).Msg("Failed to publish snapshot")
		return
	}
	atomic.AddUint64(&m.published, 1)
}

func (m *MQTT) publish(s Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	topic := m.Topic(s)
	token := m.client.Publish(topic, m.cfg.QoS, m.cfg.Retained, payload)
	if !token.WaitTimeout(m.cfg.Timeout) {
		return errors.Errorf("publish to %s: timeout", topic)
	}
	return errors.Wrapf(token.Error(), "publish to %s", topic)
}

// Published returns the number of snapshots delivered to the broker.
func (m *MQTT) Published() uint64 {
	return atomic.LoadUint64(&m.published)
}

// Failures returns the number of snapshots that failed to publish.
func (m *MQTT) Failures() uint64 {
	return atomic.LoadUint64(&m.failures)
}

// Close disconnects from the broker with a short grace period.
func (m *MQTT) Close() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
		m.logger.Info().Msg("MQTT disconnected")
	}
}
