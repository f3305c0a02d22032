// Package mqtt mirrors the latest monitor state onto retained MQTT topics so
// home automation tools can read it without polling the API.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/config"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

// Topic kinds under <prefix>/<monitor>/
const (
	KindRealtime = "realtime"
	KindTrend    = "trend"
	KindAnomaly  = "anomaly"
)

const (
	connectTimeout    = 10 * time.Second
	disconnectQuiesce = 250
)

var log = logrus.WithField("component", "mqtt")

// Publisher publishes snapshots as JSON to per-monitor topics
type Publisher struct {
	client paho.Client
	prefix string
	qos    byte
	retain bool
}

// NewPublisher connects to the broker
func NewPublisher(cfg config.MQTTConfig) (*Publisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.WithError(err).Warn("Connection to broker lost")
		}).
		SetOnConnectHandler(func(paho.Client) {
			log.WithField("broker", cfg.Broker).Info("Connected to broker")
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", cfg.Broker, err)
	}
	return newPublisher(client, cfg), nil
}

func newPublisher(client paho.Client, cfg config.MQTTConfig) *Publisher {
	return &Publisher{
		client: client,
		prefix: strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:    byte(cfg.QoS),
		retain: cfg.Retain,
	}
}

// Topic returns the topic for one kind of state of a monitor
func Topic(prefix, monitorID, kind string) string {
	if prefix == "" {
		return monitorID + "/" + kind
	}
	return prefix + "/" + monitorID + "/" + kind
}

// Name identifies the sink in logs and metrics
func (p *Publisher) Name() string { return "mqtt" }

// WriteRealtime publishes the realtime state, and the anomaly when one was detected
func (p *Publisher) WriteRealtime(ctx context.Context, monitorID string, snapshot models.RealtimeSnapshot) error {
	if err := p.publish(ctx, Topic(p.prefix, monitorID, KindRealtime), snapshot); err != nil {
		return err
	}
	if snapshot.AnomalyDetected && snapshot.Anomaly != nil {
		return p.publish(ctx, Topic(p.prefix, monitorID, KindAnomaly), snapshot.Anomaly)
	}
	return nil
}

// WriteTrend publishes the trend state
func (p *Publisher) WriteTrend(ctx context.Context, monitorID string, snapshot models.TrendSnapshot) error {
	return p.publish(ctx, Topic(p.prefix, monitorID, KindTrend), snapshot)
}

func (p *Publisher) publish(ctx context.Context, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt: encode %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt: publish %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	p.client.Disconnect(disconnectQuiesce)
}
