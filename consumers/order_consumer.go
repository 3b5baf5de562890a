package consumers

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"storefront-service/config"
	"storefront-service/database"
	"storefront-service/events"
	"storefront-service/middlewares"
	"storefront-service/store"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Handler reacts to storefront events after the fact; it never changes
// orders or stock.
type Handler struct {
	db     *database.DB
	logger *zap.Logger
}

func NewHandler(db *database.DB, logger *zap.Logger) *Handler {
	return &Handler{db: db, logger: logger}
}

func (h *Handler) Handle(ctx context.Context, e events.Event) error {
	switch e.Type {
	case events.TypeOrderPlaced:
		return h.handleOrderPlaced(ctx, e)
	case events.TypeOrderStatusUpdated:
		h.logger.Info("Order status updated",
			zap.Int("order_id", e.OrderID),
			zap.String("status", string(e.Status)))
		return nil
	case events.TypeCartMerged:
		h.logger.Info("Cart merged", zap.Int("user_id", e.UserID))
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEvent, e.Type)
	}
}

func (h *Handler) handleOrderPlaced(ctx context.Context, e events.Event) error {
	ids, err := store.NewOrders(h.db).ProductIDs(ctx, e.OrderID)
	if err != nil {
		return err
	}
	soldOut, err := store.NewProducts(h.db).SoldOut(ctx, ids)
	if err != nil {
		return err
	}
	for _, p := range soldOut {
		h.logger.Warn("Product sold out",
			zap.Int("product_id", p.ID),
			zap.String("name", p.Name),
			zap.Int("order_id", e.OrderID))
	}
	middlewares.RecordSoldOut(len(soldOut))

	h.logger.Info("Order placed event processed",
		zap.Int("order_id", e.OrderID),
		zap.Int("sold_out", len(soldOut)))
	return nil
}

// StartOrderConsumer consumes the event queue and the dead-letter queue
// until the deliveries channels close.
func StartOrderConsumer(ch *amqp.Channel, cfg *config.Config, h *Handler, logger *zap.Logger) error {
	msgs, err := ch.Consume(
		cfg.EventQueue,
		"storefront-service", // consumer tag
		false,                // auto-ack
		false,                // exclusive
		false,                // no-local
		false,                // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	dlqMsgs, err := ch.Consume(
		cfg.DeadLetterQueue,
		"storefront-service-dlq",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("register dead-letter consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			processMessage(h, logger, msg)
		}
	}()
	go func() {
		for msg := range dlqMsgs {
			processDeadLetter(logger, msg)
		}
	}()
	return nil
}

// acknowledger is the part of amqp.Delivery the processing code needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func ackMessage(logger *zap.Logger, ack acknowledger) {
	if err := ack.Ack(false); err != nil {
		logger.Error("Failed to ack message", zap.Error(err))
	}
}

func nackMessage(logger *zap.Logger, ack acknowledger, requeue bool) {
	if err := ack.Nack(false, requeue); err != nil {
		logger.Error("Failed to nack message", zap.Bool("requeue", requeue), zap.Error(err))
	}
}

func processMessage(h *Handler, logger *zap.Logger, msg amqp.Delivery) {
	process(context.Background(), h, logger, msg.Body, msg.Redelivered, msg)
}

// process acks handled events. Malformed or unknown events are nacked
// without requeue so they land in the dead-letter queue; transient handler
// failures are requeued once before that.
func process(ctx context.Context, h *Handler, logger *zap.Logger, body []byte, redelivered bool, ack acknowledger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in message processing", zap.Any("panic", r))
			nackMessage(logger, ack, false)
		}
	}()

	e, err := events.Unmarshal(body)
	if err != nil {
		logger.Warn("Invalid message format", zap.ByteString("body", body), zap.Error(err))
		nackMessage(logger, ack, false)
		return
	}

	if err := h.Handle(ctx, e); err != nil {
		requeue := !redelivered && !errors.Is(err, ErrUnknownEvent)
		logger.Error("Event handling failed",
			zap.String("event_id", e.EventID),
			zap.String("type", e.Type),
			zap.Bool("requeue", requeue),
			zap.Error(err))
		nackMessage(logger, ack, requeue)
		return
	}

	ackMessage(logger, ack)
}

func processDeadLetter(logger *zap.Logger, msg amqp.Delivery) {
	logger.Warn("Received dead letter",
		zap.String("message_id", msg.MessageId),
		zap.String("type", msg.Type),
		zap.ByteString("body", msg.Body))
	ackMessage(logger, msg)
}
