package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"

	"github.com/good12834/shoestore/internal/domain"
	pkgkafka "github.com/good12834/shoestore/pkg/kafka"
)

// Aggregate types and the event source.
const (
	AggregateTypeCart     = "cart"
	AggregateTypeWishlist = "wishlist"
	SourceStorefront      = "storefront"
)

// Topics for store change events.
var (
	TopicCartUpdated     = pkgkafka.Topic(AggregateTypeCart, "updated")
	TopicWishlistUpdated = pkgkafka.Topic(AggregateTypeWishlist, "updated")
)

var publisherBreakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "storefront_event_breaker_state",
		Help: "State of the event publisher circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"name"},
)

// Publisher writes an event to a topic. *pkgkafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// BreakerConfig tunes the broker-outage breaker.
type BreakerConfig struct {
	Name                string
	ConsecutiveFailures uint32
	Timeout             time.Duration
	Interval            time.Duration
}

// DefaultBreakerConfig opens after five consecutive publish failures and
// retries the broker after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:                "kafka-publisher",
		ConsecutiveFailures: 5,
		Timeout:             30 * time.Second,
		Interval:            60 * time.Second,
	}
}

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	Profile   string            `json:"profile"`
	UserID    string            `json:"user_id,omitempty"`
	Lines     []domain.CartLine `json:"lines"`
	ItemCount int               `json:"item_count"`
	Subtotal  int64             `json:"subtotal"`
}

// WishlistUpdatedData is the payload for a wishlist.updated event.
type WishlistUpdatedData struct {
	Profile    string   `json:"profile"`
	UserID     string   `json:"user_id,omitempty"`
	ProductIDs []string `json:"product_ids"`
	Count      int      `json:"count"`
}

// Producer publishes store change events for one profile.
type Producer struct {
	pub     Publisher
	breaker *gobreaker.CircuitBreaker[struct{}]
	profile string
	logger  *slog.Logger
}

// NewProducer wraps pub in a circuit breaker.
func NewProducer(pub Publisher, profile string, cfg BreakerConfig, logger *slog.Logger) *Producer {
	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 1
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("event publisher breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			publisherBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	}
	publisherBreakerState.WithLabelValues(cfg.Name).Set(0)

	return &Producer{
		pub:     pub,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
		profile: profile,
		logger:  logger,
	}
}

// CartUpdated publishes the cart's current contents.
func (p *Producer) CartUpdated(ctx context.Context, userID string, cart domain.Cart) error {
	data := CartUpdatedData{
		Profile:   p.profile,
		UserID:    userID,
		Lines:     cart.Lines,
		ItemCount: cart.Count(),
		Subtotal:  cart.Subtotal(),
	}
	if data.Lines == nil {
		data.Lines = []domain.CartLine{}
	}
	return p.publish(ctx, TopicCartUpdated, AggregateTypeCart, data)
}

// WishlistUpdated publishes the wishlist's product ids.
func (p *Producer) WishlistUpdated(ctx context.Context, userID string, wishlist domain.Wishlist) error {
	ids := make([]string, 0, wishlist.Len())
	for _, e := range wishlist.Entries {
		ids = append(ids, e.ProductID)
	}
	return p.publish(ctx, TopicWishlistUpdated, AggregateTypeWishlist, WishlistUpdatedData{
		Profile:    p.profile,
		UserID:     userID,
		ProductIDs: ids,
		Count:      len(ids),
	})
}

func (p *Producer) publish(ctx context.Context, topic, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, p.profile, aggregateType, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	event.WithMetadata("profile", p.profile)

	_, err = p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.pub.Publish(ctx, topic, event)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			p.logger.DebugContext(ctx, "event publisher breaker open, dropping event",
				slog.String("topic", topic),
			)
		}
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published store event",
		slog.String("topic", topic),
		slog.String("event_id", event.EventID),
	)
	return nil
}

// BreakerState returns the current breaker state.
func (p *Producer) BreakerState() gobreaker.State {
	return p.breaker.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
