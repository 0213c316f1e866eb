package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/commercekit/cart-service/internal/domain"
	pkgkafka "github.com/commercekit/cart-service/pkg/kafka"
)

// Kafka topic constants for cart domain events.
const (
	TopicCartUpdated = "commerce.cart.updated"
	TopicCartMerged  = "commerce.cart.merged"
	TopicCartCleared = "commerce.cart.cleared"
	TopicCartDeleted = "commerce.cart.deleted"
)

// Aggregate type constant.
const AggregateTypeCart = "cart"

// Source identifier for events originating from this service.
const SourceCartService = "cart-service"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	CartID      string         `json:"cart_id"`
	OwnerID     string         `json:"owner_id,omitempty"`
	Items       []CartItemData `json:"items"`
	TotalItems  int            `json:"total_items"`
	TotalAmount int64          `json:"total_amount"`
}

// CartItemData is the item payload within cart events.
type CartItemData struct {
	Key       string `json:"key"`
	StockID   string `json:"stock_id"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// CartMergedData is the payload for a cart.merged event. DroppedKeys lists
// anonymous-cart lines discarded because the owned cart already carried them.
type CartMergedData struct {
	CartID          string   `json:"cart_id"`
	OwnerID         string   `json:"owner_id"`
	SourceAccessKey string   `json:"source_access_key"`
	MovedKeys       []string `json:"moved_keys"`
	DroppedKeys     []string `json:"dropped_keys"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	CartID  string `json:"cart_id"`
	OwnerID string `json:"owner_id,omitempty"`
}

// CartDeletedData is the payload for a cart.deleted event.
type CartDeletedData struct {
	CartID    string `json:"cart_id"`
	AccessKey string `json:"access_key"`
}

// Producer publishes cart domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates an event producer for the cart service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	items := make([]CartItemData, len(cart.Items))
	for i, item := range cart.Items {
		items[i] = CartItemData{
			Key:       item.Key,
			StockID:   item.StockID,
			Title:     item.Title,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}

	data := CartUpdatedData{
		CartID:      cart.ID,
		OwnerID:     cart.OwnerID,
		Items:       items,
		TotalItems:  cart.TotalItems(),
		TotalAmount: cart.TotalAmount(),
	}

	return p.publish(ctx, TopicCartUpdated, cart.ID, data)
}

// PublishCartMerged publishes a cart.merged event.
func (p *Producer) PublishCartMerged(ctx context.Context, cart *domain.Cart, sourceAccessKey string, movedKeys, droppedKeys []string) error {
	data := CartMergedData{
		CartID:          cart.ID,
		OwnerID:         cart.OwnerID,
		SourceAccessKey: sourceAccessKey,
		MovedKeys:       movedKeys,
		DroppedKeys:     droppedKeys,
	}

	return p.publish(ctx, TopicCartMerged, cart.ID, data)
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, cart *domain.Cart) error {
	data := CartClearedData{
		CartID:  cart.ID,
		OwnerID: cart.OwnerID,
	}

	return p.publish(ctx, TopicCartCleared, cart.ID, data)
}

// PublishCartDeleted publishes a cart.deleted event.
func (p *Producer) PublishCartDeleted(ctx context.Context, cartID, accessKey string) error {
	data := CartDeletedData{
		CartID:    cartID,
		AccessKey: accessKey,
	}

	return p.publish(ctx, TopicCartDeleted, cartID, data)
}

func (p *Producer) publish(ctx context.Context, topic, cartID string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, cartID, AggregateTypeCart, SourceCartService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}

	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published cart event",
		slog.String("topic", topic),
		slog.String("cart_id", cartID),
	)

	return nil
}
