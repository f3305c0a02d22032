package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/config"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

// Event types carried in the envelope
const (
	EventRealtime   = "realtime"
	EventTrend      = "trend"
	EventAnomaly    = "anomaly"
	EventDeviceInfo = "device_info"
)

var log = logrus.WithField("component", "kafka")

// Envelope wraps every event published to the snapshot topic
type Envelope struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	MonitorID string      `json:"monitor_id"`
	EmittedAt time.Time   `json:"emitted_at"`
	Payload   interface{} `json:"payload"`
}

// DeviceInfo is the payload of a device_info event
type DeviceInfo struct {
	DeviceID string                 `json:"device_id"`
	Info     map[string]interface{} `json:"info"`
}

// Publisher batches snapshot events onto the snapshot topic
type Publisher struct {
	producer  sarama.SyncProducer
	topic     string
	batchSize int
	now       func() time.Time

	bufferLock sync.Mutex
	buffer     []*sarama.ProducerMessage

	done    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
}

// NewPublisher connects a sync producer to the configured brokers
func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}
	return newPublisher(producer, cfg, time.Now), nil
}

func newPublisher(producer sarama.SyncProducer, cfg config.KafkaConfig, now func() time.Time) *Publisher {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	p := &Publisher{
		producer:  producer,
		topic:     cfg.SnapshotTopic,
		batchSize: batchSize,
		now:       now,
		buffer:    make([]*sarama.ProducerMessage, 0, batchSize),
		done:      make(chan struct{}),
	}

	if cfg.BatchTimeout > 0 {
		p.stopped.Add(1)
		go p.flushLoop(cfg.BatchTimeout)
	}
	return p
}

// Name identifies the sink in logs and metrics
func (p *Publisher) Name() string { return "kafka" }

// WriteRealtime publishes a realtime event, plus an anomaly event when one was detected
func (p *Publisher) WriteRealtime(_ context.Context, monitorID string, snapshot models.RealtimeSnapshot) error {
	if err := p.add(monitorID, EventRealtime, snapshot); err != nil {
		return err
	}
	if snapshot.AnomalyDetected && snapshot.Anomaly != nil {
		return p.add(monitorID, EventAnomaly, snapshot.Anomaly)
	}
	return nil
}

// WriteTrend publishes a trend event
func (p *Publisher) WriteTrend(_ context.Context, monitorID string, snapshot models.TrendSnapshot) error {
	return p.add(monitorID, EventTrend, snapshot)
}

// PublishDeviceInfo publishes the answer to a device info command
func (p *Publisher) PublishDeviceInfo(_ context.Context, monitorID, deviceID string, info map[string]interface{}) error {
	return p.add(monitorID, EventDeviceInfo, DeviceInfo{DeviceID: deviceID, Info: info})
}

// NewEnvelope wraps a payload with a fresh event id
func NewEnvelope(eventType, monitorID string, emittedAt time.Time, payload interface{}) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		MonitorID: monitorID,
		EmittedAt: emittedAt.UTC(),
		Payload:   payload,
	}
}

func (p *Publisher) add(monitorID, eventType string, payload interface{}) error {
	value, err := json.Marshal(NewEnvelope(eventType, monitorID, p.now(), payload))
	if err != nil {
		return fmt.Errorf("kafka: encode %s event: %w", eventType, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(monitorID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(eventType)},
		},
	}

	p.bufferLock.Lock()
	p.buffer = append(p.buffer, msg)

	// Flush if buffer is full
	var batch []*sarama.ProducerMessage
	if len(p.buffer) >= p.batchSize {
		batch = p.takeLocked()
	}
	p.bufferLock.Unlock()

	return p.send(batch)
}

// takeLocked empties the buffer while holding the lock
func (p *Publisher) takeLocked() []*sarama.ProducerMessage {
	if len(p.buffer) == 0 {
		return nil
	}
	batch := make([]*sarama.ProducerMessage, len(p.buffer))
	copy(batch, p.buffer)
	p.buffer = p.buffer[:0]
	return batch
}

func (p *Publisher) send(batch []*sarama.ProducerMessage) error {
	if len(batch) == 0 {
		return nil
	}
	if err := p.producer.SendMessages(batch); err != nil {
		log.WithError(err).WithField("messages", len(batch)).Error("Error publishing batch")
		return fmt.Errorf("kafka: publish %d messages: %w", len(batch), err)
	}
	return nil
}

// Flush sends any buffered events
func (p *Publisher) Flush() error {
	p.bufferLock.Lock()
	batch := p.takeLocked()
	p.bufferLock.Unlock()
	return p.send(batch)
}

func (p *Publisher) flushLoop(interval time.Duration) {
	defer p.stopped.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = p.Flush()
		case <-p.done:
			return
		}
	}
}

// Close flushes buffered events and closes the producer
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		p.stopped.Wait()
		if ferr := p.Flush(); ferr != nil {
			err = ferr
		}
		if cerr := p.producer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
