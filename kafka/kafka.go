package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"storefront-service/events"
)

// Producer publishes events to one topic, keyed by order so a single order's
// events stay ordered within a partition.
type Producer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewProducer(brokers []string, topic string, logger *zap.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{writer: writer, logger: logger}, nil
}

// Key returns the partition key for an event.
func Key(e events.Event) []byte {
	if e.OrderID > 0 {
		return []byte(fmt.Sprintf("ORDER#%d", e.OrderID))
	}
	return []byte(fmt.Sprintf("USER#%d", e.UserID))
}

func Message(e events.Event) (kafka.Message, error) {
	value, err := e.Marshal()
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   Key(e),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
		Time: e.Occurred,
	}, nil
}

func (p *Producer) Publish(ctx context.Context, e events.Event) error {
	msg, err := Message(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message: %w", err)
	}
	p.logger.Debug("Event published",
		zap.String("event_id", e.EventID),
		zap.String("type", e.Type))
	return nil
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

// Reader is the part of *kafka.Reader that Consume drives.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

const (
	handleAttempts = 3
	handleBackoff  = 500 * time.Millisecond
)

// Consume reads the topic as part of groupID and hands every decoded event
// to handle until ctx is cancelled.
func Consume(ctx context.Context, brokers []string, topic, groupID string, logger *zap.Logger,
	handle func(context.Context, events.Event) error) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	return consume(ctx, reader, logger, handle, handleBackoff)
}

// consume commits a message only once handle succeeded for it; undecodable
// messages are logged and committed. A message that still fails after
// handleAttempts tries stops the loop uncommitted, so the group resumes from
// it on the next start instead of committing past it.
func consume(ctx context.Context, reader Reader, logger *zap.Logger,
	handle func(context.Context, events.Event) error, backoff time.Duration) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch kafka message: %w", err)
		}

		e, err := events.Unmarshal(msg.Value)
		if err != nil {
			logger.Warn("Dropping undecodable event", zap.Int64("offset", msg.Offset), zap.Error(err))
		} else if err := handleWithRetry(ctx, logger, handle, e, backoff); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("handle event %s at offset %d: %w", e.EventID, msg.Offset, err)
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			return fmt.Errorf("commit kafka offset: %w", err)
		}
	}
}

func handleWithRetry(ctx context.Context, logger *zap.Logger,
	handle func(context.Context, events.Event) error, e events.Event, backoff time.Duration) error {
	for attempt := 1; ; attempt++ {
		err := handle(ctx, e)
		if err == nil {
			return nil
		}
		if attempt == handleAttempts {
			return err
		}
		logger.Warn("Event handling failed, retrying",
			zap.String("event_id", e.EventID),
			zap.String("type", e.Type),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
}
