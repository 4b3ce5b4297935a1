package readiness

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"

	mqttQoS = 1
)

// MQTTConfig describes the broker and the availability topic.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
}

// broker is the subset of an MQTT session the announcer needs.
type broker interface {
	connect(ctx context.Context) error
	publish(ctx context.Context, topic string, payload []byte) error
	disconnect()
}

// MQTT publishes a retained availability message. The broker publishes the
// offline payload by itself if the process dies without withdrawing.
type MQTT struct {
	topic  string
	broker broker
}

func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt topic is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = randomClientID()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(cfg.Topic, PayloadOffline, mqttQoS, true)

	return &MQTT{topic: cfg.Topic, broker: &pahoBroker{client: mqtt.NewClient(opts)}}, nil
}

func (m *MQTT) Name() string { return "mqtt" }

func (m *MQTT) Announce(ctx context.Context) error {
	if err := m.broker.connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := m.broker.publish(ctx, m.topic, []byte(PayloadOnline)); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Withdraw publishes the offline payload and disconnects.
func (m *MQTT) Withdraw(ctx context.Context) error {
	defer m.broker.disconnect()
	if err := m.broker.publish(ctx, m.topic, []byte(PayloadOffline)); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

type pahoBroker struct {
	client mqtt.Client
}

func (b *pahoBroker) connect(ctx context.Context) error {
	if b.client.IsConnected() {
		return nil
	}
	return waitToken(ctx, b.client.Connect())
}

func (b *pahoBroker) publish(ctx context.Context, topic string, payload []byte) error {
	if !b.client.IsConnectionOpen() {
		return errors.New("not connected")
	}
	return waitToken(ctx, b.client.Publish(topic, mqttQoS, true, payload))
}

func (b *pahoBroker) disconnect() {
	if b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func randomClientID() string {
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)
	return "null-webhook-" + base64.RawURLEncoding.EncodeToString(nonce)
}
