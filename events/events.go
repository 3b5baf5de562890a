package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-service/models"
)

const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderStatusUpdated = "order.status_updated"
	TypeCartMerged         = "cart.merged"
)

type Item struct {
	ProductID int          `json:"product_id"`
	Quantity  int          `json:"quantity"`
	Price     models.Money `json:"price"`
}

type Event struct {
	EventID   string             `json:"event_id"`
	Type      string             `json:"type"`
	OrderID   int                `json:"order_id,omitempty"`
	UserID    int                `json:"user_id"`
	Status    models.OrderStatus `json:"status,omitempty"`
	Total     models.Money       `json:"total"`
	Items     []Item             `json:"items,omitempty"`
	Occurred  time.Time          `json:"occurred"`
	RequestID string             `json:"request_id,omitempty"`
}

func New(eventType string, userID int) Event {
	return Event{
		EventID:  uuid.NewString(),
		Type:     eventType,
		UserID:   userID,
		Occurred: time.Now().UTC(),
	}
}

func OrderPlaced(o *models.Order, requestID string) Event {
	e := New(TypeOrderPlaced, o.UserID)
	e.OrderID = o.ID
	e.Status = o.Status
	e.Total = o.Total
	e.RequestID = requestID
	for _, it := range o.Items {
		e.Items = append(e.Items, Item{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return e
}

// Priority maps an event to a queue priority; large orders and
// cancellations jump the queue.
func (e Event) Priority() uint8 {
	switch {
	case e.Type == TypeOrderPlaced && e.Total > 100000:
		return 9
	case e.Type == TypeOrderStatusUpdated && e.Status == models.OrderStatusCancelled:
		return 8
	default:
		return 5
	}
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}
	return e, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards events; used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// PublishLogged publishes and logs failures. Events are emitted after the
// database commit, so failures never propagate to the request.
func PublishLogged(ctx context.Context, p Publisher, logger *zap.Logger, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.Error("Failed to publish event",
			zap.String("event_id", e.EventID),
			zap.String("type", e.Type),
			zap.Int("order_id", e.OrderID),
			zap.Error(err))
	}
}
