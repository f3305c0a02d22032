package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/sirupsen/logrus"

	"github.com/kanna-karuppasamy/home-energy-monitor/internal/config"
	"github.com/kanna-karuppasamy/home-energy-monitor/internal/models"
)

// ErrInvalidCommand is returned when a command message cannot be used
var ErrInvalidCommand = errors.New("kafka: invalid device command")

// CommandHandler processes a single device command
type CommandHandler func(ctx context.Context, cmd models.DeviceCommand) error

// Consumer reads device commands from the command topic
type Consumer struct {
	id       string
	topic    string
	consumer sarama.ConsumerGroup
	handler  CommandHandler
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(id string, cfg config.KafkaConfig, handler CommandHandler) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaConfig.Consumer.MaxWaitTime = 250 * time.Millisecond

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("kafka: create consumer group: %w", err)
	}

	return &Consumer{
		id:       id,
		topic:    cfg.CommandTopic,
		consumer: client,
		handler:  handler,
	}, nil
}

// Consume runs until ctx is canceled or the group fails
func (c *Consumer) Consume(ctx context.Context) error {
	logger := log.WithField("consumer", c.id)

	// Setup error handling
	errorChan := make(chan error, 1)
	go func() {
		for err := range c.consumer.Errors() {
			logger.WithError(err).Warn("Consumer group error")
			select {
			case errorChan <- err:
			default:
			}
		}
	}()

	handler := &commandHandler{handle: c.handler, logger: logger}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errorChan:
			return err
		default:
			if err := c.consumer.Consume(ctx, []string{c.topic}, handler); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				return err
			}
		}
	}
}

// Close leaves the consumer group
func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// DecodeCommand parses and validates a command message
func DecodeCommand(value []byte) (models.DeviceCommand, error) {
	var cmd models.DeviceCommand
	if err := json.Unmarshal(value, &cmd); err != nil {
		return cmd, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if cmd.DeviceID == "" {
		return cmd, fmt.Errorf("%w: missing device_id", ErrInvalidCommand)
	}
	switch cmd.Action {
	case models.ActionInfo, models.ActionReset:
	case models.ActionRename:
		if cmd.Name == "" {
			return cmd, fmt.Errorf("%w: rename without name", ErrInvalidCommand)
		}
	default:
		return cmd, fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, cmd.Action)
	}
	return cmd, nil
}

// commandHandler implements sarama.ConsumerGroupHandler
type commandHandler struct {
	handle CommandHandler
	logger *logrus.Entry
}

func (h *commandHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *commandHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

func (h *commandHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for message := range claim.Messages() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cmd, err := DecodeCommand(message.Value)
		if err != nil {
			// Malformed commands are skipped, never retried
			h.logger.WithError(err).WithField("offset", message.Offset).Warn("Skipping command")
			session.MarkMessage(message, "")
			continue
		}

		if err := h.handle(ctx, cmd); err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"action":    cmd.Action,
				"device_id": cmd.DeviceID,
			}).Error("Error handling command")
		}
		session.MarkMessage(message, "")
	}
	return nil
}
