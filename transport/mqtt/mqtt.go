// Package mqtt bridges a board's CAN traffic to an MQTT broker.
//
// Every CAN-bus message received by the board is CBOR-encoded and published
// to "{prefix}/{bus}/rx". Frames published to "{prefix}/{bus}/tx" are decoded
// and transmitted on the bus. Bridging several boards on one broker only
// requires a distinct bus name per board.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/fxamacker/cbor/v2"

	"github.com/kabili207/apoxcan-go/core/codec"
)

const (
	// DefaultTopicPrefix is the default MQTT topic prefix.
	DefaultTopicPrefix = "apoxcan"
	// DefaultBus is the default bus name.
	DefaultBus = "can0"
)

// Source is the board side of the bridge.
type Source interface {
	SubscribeCANMessages(fn func(codec.CANMessage)) (unsubscribe func())
	SendFrame(frame codec.CANFrame) error
}

// Config holds the configuration for an MQTT bridge.
type Config struct {
	// Broker is the MQTT broker URL (e.g., "tcp://broker.example.com:1883").
	Broker string
	// Username for MQTT authentication. Leave empty if not required.
	Username string
	// Password for MQTT authentication. Leave empty if not required.
	Password string
	// UseTLS enables TLS for the MQTT connection.
	UseTLS bool
	// ClientID is the MQTT client identifier. If empty, a random one is generated.
	ClientID string
	// TopicPrefix is the MQTT topic prefix (default: "apoxcan").
	TopicPrefix string
	// Bus names this board's CAN bus in topics (default: "can0").
	Bus string
	// QoS for published and subscribed messages.
	QoS byte
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// publisher is the part of paho.Client used on the receive path.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Bridge relays CAN traffic between a board and an MQTT broker.
type Bridge struct {
	cfg         Config
	source      Source
	client      paho.Client
	pub         publisher
	log         *slog.Logger
	mu          sync.RWMutex
	connected   bool
	unsubscribe func()

	published atomic.Uint32
	forwarded atomic.Uint32
	dropped   atomic.Uint32
}

// Stats is a snapshot of bridge traffic.
type Stats struct {
	Published uint32 // CAN messages published to the rx topic
	Forwarded uint32 // frames from the tx topic sent to the board
	Dropped   uint32 // messages that could not be relayed
}

// New creates a new MQTT bridge for source.
func New(source Source, cfg Config) *Bridge {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Bus == "" {
		cfg.Bus = DefaultBus
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Bridge{
		cfg:    cfg,
		source: source,
		log:    cfg.Logger.WithGroup("mqtt"),
	}
}

// RxTopic is where received CAN messages are published.
func (b *Bridge) RxTopic() string {
	return b.cfg.TopicPrefix + "/" + b.cfg.Bus + "/rx"
}

// TxTopic is where frames to transmit are accepted.
func (b *Bridge) TxTopic() string {
	return b.cfg.TopicPrefix + "/" + b.cfg.Bus + "/tx"
}

// Start connects to the broker and begins relaying.
func (b *Bridge) Start(ctx context.Context) error {
	if b.cfg.Broker == "" {
		return errors.New("broker URL is required")
	}
	if b.source == nil {
		return errors.New("CAN source is required")
	}

	clientID := b.cfg.ClientID
	if clientID == "" {
		clientID = "apoxcan-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetOnConnectHandler(b.onConnected).
		SetConnectionLostHandler(b.onConnectionLost).
		SetReconnectingHandler(b.onReconnecting)

	if b.cfg.Username != "" {
		opts.SetUsername(b.cfg.Username)
	}
	if b.cfg.Password != "" {
		opts.SetPassword(b.cfg.Password)
	}
	if b.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	client := paho.NewClient(opts)
	b.mu.Lock()
	b.client = client
	b.pub = client
	b.mu.Unlock()

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		return ctx.Err()
	case <-time.After(30 * time.Second):
		client.Disconnect(0)
		return errors.New("connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}

	unsubscribe := b.source.SubscribeCANMessages(b.publish)
	b.mu.Lock()
	b.unsubscribe = unsubscribe
	b.mu.Unlock()
	return nil
}

// Stop stops relaying and disconnects from the broker.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	unsubscribe := b.unsubscribe
	b.unsubscribe = nil
	client := b.client
	b.connected = false
	b.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if client != nil {
		client.Disconnect(1000)
	}
	return nil
}

// IsConnected returns true if the bridge is connected to the broker.
func (b *Bridge) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// Stats returns the bridge's traffic counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Forwarded: b.forwarded.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// publish relays one received CAN message. It runs on the board's read
// loop, so it never waits for the broker.
func (b *Bridge) publish(msg codec.CANMessage) {
	b.mu.RLock()
	pub := b.pub
	connected := b.connected
	b.mu.RUnlock()

	if !connected || pub == nil {
		b.dropped.Add(1)
		return
	}

	payload, err := cbor.Marshal(msg)
	if err != nil {
		b.dropped.Add(1)
		b.log.Debug("failed to encode CAN message", "error", err)
		return
	}

	pub.Publish(b.RxTopic(), b.cfg.QoS, false, payload)
	b.published.Add(1)
}

func (b *Bridge) handleMessage(_ paho.Client, message paho.Message) {
	var frame codec.CANFrame
	if err := cbor.Unmarshal(message.Payload(), &frame); err != nil {
		b.dropped.Add(1)
		b.log.Debug("failed to decode CAN frame", "topic", message.Topic(), "error", err)
		return
	}

	if err := b.source.SendFrame(frame); err != nil {
		b.dropped.Add(1)
		b.log.Warn("failed to send CAN frame", "id", frame.ID, "error", err)
		return
	}
	b.forwarded.Add(1)
}

func (b *Bridge) subscribe(client paho.Client) {
	topic := b.TxTopic()
	client.Subscribe(topic, b.cfg.QoS, b.handleMessage)
	b.log.Debug("subscribed to tx topic", "topic", topic)
}

func (b *Bridge) onConnected(client paho.Client) {
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()

	b.subscribe(client)
	b.log.Info("connected to MQTT broker", "broker", b.cfg.Broker, "bus", b.cfg.Bus)
}

func (b *Bridge) onConnectionLost(_ paho.Client, err error) {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()

	b.log.Error("MQTT connection lost", "error", err)
}

func (b *Bridge) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	b.log.Info("reconnecting to MQTT broker")
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(buf)
}
