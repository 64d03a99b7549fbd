// Package bridge exposes an armlink device over MQTT: joint targets come in
// as JSON on <prefix>/joints/set, and version, status and joint state are
// published under the same prefix.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"armlink/host/logging"
	"armlink/protocol"
)

// Defaults applied by DefaultConfig
const (
	DefaultBroker       = "tcp://localhost:1883"
	DefaultClientID     = "armlink-bridge"
	DefaultTopicPrefix  = "armlink"
	DefaultPollInterval = time.Second
	DefaultQoS          = 1
)

// Topic suffixes under the configured prefix
const (
	TopicJointsSet = "joints/set"
	TopicJoints    = "joints"
	TopicStatus    = "status"
	TopicVersion   = "version"
)

var (
	ErrNoBroker        = errors.New("bridge: broker URL is required")
	ErrNoTopicPrefix   = errors.New("bridge: topic prefix is required")
	ErrInvalidInterval = errors.New("bridge: poll interval must be positive")
	ErrInvalidQoS      = errors.New("bridge: qos must be 0, 1 or 2")
)

// Config holds the broker connection and publishing settings
type Config struct {
	Broker       string
	ClientID     string
	Username     string
	Password     string
	TopicPrefix  string
	PollInterval time.Duration
	QoS          byte
}

// DefaultConfig returns a config pointing at a local broker
func DefaultConfig() Config {
	return Config{
		Broker:       DefaultBroker,
		ClientID:     DefaultClientID,
		TopicPrefix:  DefaultTopicPrefix,
		PollInterval: DefaultPollInterval,
		QoS:          DefaultQoS,
	}
}

// Validate checks the config for missing or out of range values
func (c Config) Validate() error {
	switch {
	case c.Broker == "":
		return ErrNoBroker
	case c.TopicPrefix == "":
		return ErrNoTopicPrefix
	case c.PollInterval <= 0:
		return ErrInvalidInterval
	case c.QoS > 2:
		return ErrInvalidQoS
	}
	return nil
}

// Topic returns the full topic for a suffix
func (c Config) Topic(suffix string) string {
	return c.TopicPrefix + "/" + suffix
}

// Controller is the part of the device the bridge drives
type Controller interface {
	SetJoints(ctx context.Context, joints protocol.JointsPositionSpeed) error
	GetJoints(ctx context.Context) (protocol.JointsPositionSpeed, error)
	GetStatus(ctx context.Context) (protocol.Status, error)
	GetVersion(ctx context.Context) (protocol.Version, error)
}

// client is the subset of mqtt.Client the bridge uses
type client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Option configures a Bridge
type Option func(*Bridge)

// WithLogger sets the bridge logger
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// withClient replaces the paho client, for tests
func withClient(c client) Option {
	return func(b *Bridge) { b.client = c }
}

// Bridge relays between an MQTT broker and a Controller
type Bridge struct {
	cfg    Config
	ctrl   Controller
	client client
	logger *zap.Logger
}

// New creates a bridge. The broker is not contacted until Run.
func New(cfg Config, ctrl Controller, opts ...Option) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ctrl == nil {
		return nil, errors.New("bridge: controller is required")
	}

	b := &Bridge{cfg: cfg, ctrl: ctrl}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.OrNop(b.logger).With(zap.String("component", "mqtt_bridge"))

	if b.client == nil {
		b.client = mqtt.NewClient(b.clientOptions())
	}
	return b, nil
}

func (b *Bridge) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetUsername(b.cfg.Username).
		SetPassword(b.cfg.Password).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true)

	// Subscriptions do not survive a clean-session reconnect
	opts.SetOnConnectHandler(func(mqtt.Client) {
		b.logger.Info("connected to broker", zap.String("broker", b.cfg.Broker))
		if err := b.subscribe(); err != nil {
			b.logger.Error("resubscribe failed", zap.Error(err))
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("connection lost, reconnecting", zap.Error(err))
	})
	return opts
}

// Run connects to the broker, publishes the device version and polls status
// and joint state until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	defer b.client.Disconnect(250)

	// The paho on-connect handler subscribes for real clients; injected
	// clients have no such hook.
	if _, ok := b.client.(mqtt.Client); !ok {
		if err := b.subscribe(); err != nil {
			return err
		}
	}

	if err := b.publishVersion(ctx); err != nil {
		b.logger.Error("failed to publish version", zap.Error(err))
	}

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bridge stopping")
			return nil
		case <-ticker.C:
			b.poll(ctx)
		}
	}
}

func (b *Bridge) subscribe() error {
	topic := b.cfg.Topic(TopicJointsSet)
	if token := b.client.Subscribe(topic, b.cfg.QoS, b.handleJointsSet); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}
	b.logger.Info("subscribed", zap.String("topic", topic))
	return nil
}

func (b *Bridge) handleJointsSet(_ mqtt.Client, msg mqtt.Message) {
	payload, err := protocol.UnmarshalPayload(protocol.MsgSetJointsPositionSpeed, msg.Payload())
	if err != nil {
		b.logger.Warn("ignoring malformed joint target",
			zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	joints, ok := payload.(protocol.JointsPositionSpeed)
	if !ok {
		b.logger.Warn("ignoring joint target", zap.String("topic", msg.Topic()))
		return
	}

	if err := b.ctrl.SetJoints(context.Background(), joints); err != nil {
		b.logger.Error("failed to set joints", zap.Error(err))
		return
	}
	b.logger.Debug("joint target forwarded", zap.Any("joints", joints))
}

func (b *Bridge) publishVersion(ctx context.Context) error {
	version, err := b.ctrl.GetVersion(ctx)
	if err != nil {
		return err
	}
	b.logger.Info("device version", zap.Stringer("version", version))
	return b.publishJSON(TopicVersion, true, version)
}

func (b *Bridge) poll(ctx context.Context) {
	if status, err := b.ctrl.GetStatus(ctx); err != nil {
		b.logger.Warn("status poll failed", zap.Error(err))
	} else if err := b.publishJSON(TopicStatus, false, status); err != nil {
		b.logger.Warn("status publish failed", zap.Error(err))
	}

	if joints, err := b.ctrl.GetJoints(ctx); err != nil {
		b.logger.Warn("joints poll failed", zap.Error(err))
	} else if err := b.publishJSON(TopicJoints, false, joints); err != nil {
		b.logger.Warn("joints publish failed", zap.Error(err))
	}
}

func (b *Bridge) publishJSON(suffix string, retained bool, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	topic := b.cfg.Topic(suffix)
	if token := b.client.Publish(topic, b.cfg.QoS, retained, data); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, token.Error())
	}
	return nil
}
