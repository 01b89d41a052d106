package publish

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"strings"
	"time"

	"codeberg.org/mutker/smartinfra/internal/errors"
	"codeberg.org/mutker/smartinfra/internal/logger"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	ErrConnectFailed = errors.ErrorCode("publish_connect_failed")
	ErrEncodeFailed  = errors.ErrorCode("publish_encode_failed")
	ErrPublishFailed = errors.ErrorCode("publish_failed")

	defaultTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

// Publisher sends JSON documents to a message broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, v any) error
	Close()
}

type Config struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	Timeout     time.Duration
}

type mqttPublisher struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
	logger  logger.Logger
}

type noopPublisher struct{}

// New connects to cfg.Broker. An empty broker yields a publisher that drops
// everything.
func New(cfg Config, log logger.Logger) (Publisher, error) {
	errFactory := errors.New()

	if cfg.Broker == "" {
		log.Debug().Msg("MQTT broker not configured, publishing disabled")
		return noopPublisher{}, nil
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "smartinfra-" + uuid.NewString()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetAutoReconnect(true)

	if strings.HasPrefix(cfg.Broker, "ssl://") || strings.HasPrefix(cfg.Broker, "wss://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Info().Msg("Reconnecting to MQTT broker")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, errFactory.WithData(errors.ErrTimeout, "connect "+cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, errFactory.Wrap(ErrConnectFailed, err)
	}

	log.Info().
		Str("broker", cfg.Broker).
		Str("client_id", cfg.ClientID).
		Msg("Connected to MQTT broker")

	return &mqttPublisher{
		client:  client,
		prefix:  strings.Trim(cfg.TopicPrefix, "/"),
		timeout: cfg.Timeout,
		logger:  log,
	}, nil
}

func (p *mqttPublisher) Publish(ctx context.Context, topic string, v any) error {
	errFactory := errors.New()

	payload, err := json.Marshal(v)
	if err != nil {
		return errFactory.Wrap(ErrEncodeFailed, err)
	}

	full := Topic(p.prefix, topic)
	token := p.client.Publish(full, 0, false, payload)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errFactory.Wrap(ErrPublishFailed, err)
		}
	case <-ctx.Done():
		return errFactory.Wrap(errors.ErrTimeout, ctx.Err())
	case <-timer.C:
		return errFactory.WithData(errors.ErrTimeout, full)
	}

	p.logger.Debug().Str("topic", full).Int("bytes", len(payload)).Msg("Published")
	return nil
}

func (p *mqttPublisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
	p.logger.Info().Msg("Disconnected from MQTT broker")
}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }
func (noopPublisher) Close()                                     {}

// Topic joins a prefix and a topic with a single slash.
func Topic(prefix, topic string) string {
	prefix = strings.Trim(prefix, "/")
	topic = strings.Trim(topic, "/")
	if prefix == "" {
		return topic
	}
	return prefix + "/" + topic
}
