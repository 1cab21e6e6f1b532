package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/tphakala/fishnet-go/internal/errors"
	"github.com/tphakala/fishnet-go/internal/logger"
)

// MQTTConfig holds the configuration for the MQTT publisher.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	Retain         bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.ClientID == "" {
		c.ClientID = "fishnet-" + uuid.NewString()[:8]
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
	return c
}

// MQTTPublisher is a Consumer that publishes events as JSON to one topic.
type MQTTPublisher struct {
	config    MQTTConfig
	newClient func(*mqtt.ClientOptions) mqtt.Client
	log       logger.Logger

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTTPublisher returns an unconnected publisher.
func NewMQTTPublisher(cfg MQTTConfig, log logger.Logger) *MQTTPublisher {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &MQTTPublisher{
		config:    cfg.withDefaults(),
		newClient: mqtt.NewClient,
		log:       log.Module("mqtt"),
	}
}

// Name implements Consumer.
func (p *MQTTPublisher) Name() string { return "mqtt" }

// Connect dials the broker. The client keeps reconnecting in the background
// after the first successful connection.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := url.Parse(p.config.Broker); err != nil {
		return p.connectError(fmt.Errorf("invalid broker URL: %w", err))
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	opts.SetUsername(p.config.Username)
	opts.SetPassword(p.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(p.config.ConnectTimeout)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.log.Info("connected to MQTT broker", logger.String("broker", p.config.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.log.Warn("MQTT connection lost", logger.Error(err))
	})

	client := p.newClient(opts)
	token := client.Connect()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return p.connectError(ctx.Err())
	case <-time.After(p.config.ConnectTimeout):
		return p.connectError(fmt.Errorf("connection timeout"))
	}
	if err := token.Error(); err != nil {
		return p.connectError(err)
	}

	p.client = client
	return nil
}

func (p *MQTTPublisher) connectError(err error) error {
	return errors.New(err).
		Component("events").
		Category(errors.CategoryMQTTConnect).
		Context("broker", p.config.Broker).
		Build()
}

// IsConnected reports whether the broker connection is up.
func (p *MQTTPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client != nil && p.client.IsConnected()
}

// ProcessEvent implements Consumer.
func (p *MQTTPublisher) ProcessEvent(event RecognitionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	client := p.client
	p.mu.Unlock()

	if client == nil || !client.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("events").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	token := client.Publish(p.config.Topic, 0, p.config.Retain, payload)
	if !token.WaitTimeout(p.config.PublishTimeout) {
		return errors.Newf("publish timeout").
			Component("events").
			Category(errors.CategoryMQTTPublish).
			Context("topic", p.config.Topic).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("events").
			Category(errors.CategoryMQTTPublish).
			Context("topic", p.config.Topic).
			Build()
	}

	p.log.Debug("event published",
		logger.String("topic", p.config.Topic),
		logger.Int("bytes", len(payload)))
	return nil
}

// Disconnect closes the broker connection, waiting up to 250ms for pending work.
func (p *MQTTPublisher) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect(250)
		p.client = nil
	}
}
