package event

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/utafrali/cartstate/internal/domain"
	"github.com/utafrali/cartstate/internal/notify"
	pkgkafka "github.com/utafrali/cartstate/pkg/kafka"
	"github.com/utafrali/cartstate/pkg/logger"
)

// Kafka topics for cart events.
const (
	TopicCartUpdated      = "storefront.cart.updated"
	TopicCartNotification = "storefront.cart.notification"
)

// AggregateTypeCart is the aggregate type of every cart event.
const AggregateTypeCart = "cart"

// SourceCartService identifies events emitted by this service.
const SourceCartService = "cart-state"

const publishTimeout = 5 * time.Second

// CartUpdatedData is the payload of a cart.updated event.
type CartUpdatedData struct {
	CartID    string         `json:"cart_id"`
	Items     []CartItemData `json:"items"`
	Lines     int            `json:"lines"`
	ItemCount int            `json:"item_count"`
}

// CartItemData is one line inside a cart.updated payload.
type CartItemData struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Amount    int     `json:"amount"`
}

// NotificationData is the payload of a cart.notification event.
type NotificationData struct {
	CartID         string    `json:"cart_id"`
	NotificationID string    `json:"notification_id"`
	Message        string    `json:"message"`
	Severity       string    `json:"severity"`
	ProductID      int64     `json:"product_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Publisher sends one event to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

type job struct {
	topic string
	event *pkgkafka.Event
}

// Producer publishes cart events from a background goroutine so cart
// operations never wait on the broker. Events that do not fit in the queue
// are dropped and logged.
type Producer struct {
	publisher Publisher
	cartID    string
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan job
	done   chan struct{}
}

// NewProducer starts a producer for the cart stored under cartID.
func NewProducer(pub Publisher, cartID string, buffer int, logger *slog.Logger) *Producer {
	if buffer < 1 {
		buffer = 1
	}
	p := &Producer{
		publisher: pub,
		cartID:    cartID,
		logger:    logger,
		queue:     make(chan job, buffer),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

// CartChanged publishes a cart.updated event. It has the signature of a
// cart observer.
func (p *Producer) CartChanged(ctx context.Context, cart domain.Cart) {
	items := make([]CartItemData, len(cart))
	for i, item := range cart {
		items[i] = CartItemData{
			ProductID: item.ID,
			Name:      item.Name,
			Price:     item.Price,
			Amount:    item.Amount,
		}
	}
	p.enqueue(ctx, TopicCartUpdated, CartUpdatedData{
		CartID:    p.cartID,
		Items:     items,
		Lines:     len(cart),
		ItemCount: cart.ItemCount(),
	}, map[string]string{"item_count": strconv.Itoa(cart.ItemCount())})
}

// Notify publishes a cart.notification event, making Producer a notify.Sink.
func (p *Producer) Notify(ctx context.Context, n notify.Notification) {
	p.enqueue(ctx, TopicCartNotification, NotificationData{
		CartID:         p.cartID,
		NotificationID: n.ID,
		Message:        n.Message,
		Severity:       string(n.Severity),
		ProductID:      n.ProductID,
		CreatedAt:      n.CreatedAt,
	}, map[string]string{"severity": string(n.Severity)})
}

func (p *Producer) enqueue(ctx context.Context, topic string, data any, metadata map[string]string) {
	l := logger.WithContext(ctx, p.logger)

	evt, err := pkgkafka.NewEvent(topic, p.cartID, AggregateTypeCart, SourceCartService, data)
	if err != nil {
		l.ErrorContext(ctx, "build cart event", slog.String("topic", topic), slog.String("error", err.Error()))
		return
	}
	if cid := logger.CorrelationIDFromContext(ctx); cid != "" {
		evt.WithCorrelationID(cid)
	}
	for k, v := range metadata {
		evt.WithMetadata(k, v)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		l.WarnContext(ctx, "cart event dropped, producer closed", slog.String("topic", topic))
		return
	}
	select {
	case p.queue <- job{topic: topic, event: evt}:
	default:
		l.WarnContext(ctx, "cart event dropped, queue full", slog.String("topic", topic))
	}
}

func (p *Producer) run() {
	defer close(p.done)
	for j := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.publisher.Publish(ctx, j.topic, j.event); err != nil {
			p.logger.Error("publish cart event",
				slog.String("topic", j.topic),
				slog.String("event_id", j.event.EventID),
				slog.String("correlation_id", j.event.CorrelationID),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be published,
// or for ctx to end.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain cart events: %w", ctx.Err())
	}
}
