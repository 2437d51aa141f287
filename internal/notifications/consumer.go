package notifications

import (
	"context"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox/registry"
)

// WinnerNoticeConsumer names the winner notice subscriber in logs and idempotency keys.
const WinnerNoticeConsumer = "winner-notifications"

// Notifier delivers the winner notice. Delivery is best effort; the draw is
// final whether or not it succeeds.
type Notifier interface {
	SendWinnerNotice(ctx context.Context, email, name, itemName string, itemValue decimal.Decimal) error
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type claimGuard interface {
	Claim(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type ConsumerParams struct {
	Users        userFinder
	Notifier     Notifier
	Idempotency  claimGuard
	Catalog      *registry.Catalog
	Subscription *pubsub.Subscriber
	MaxAttempts  int
	Logger       *logger.Logger
}

// Consumer turns raffle_drawn events into winner notices.
type Consumer struct {
	users        userFinder
	notifier     Notifier
	idempotency  claimGuard
	subscription *pubsub.Subscriber
	catalog      *registry.Catalog
	maxAttempts  int
	logg         *logger.Logger

	// attempts counts local redeliveries when the subscription has no
	// dead-letter policy and Pub/Sub leaves DeliveryAttempt unset.
	mu       sync.Mutex
	attempts map[string]int
}

func NewConsumer(p ConsumerParams) (*Consumer, error) {
	if p.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if p.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if p.Idempotency == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if p.Catalog == nil {
		return nil, fmt.Errorf("event catalog required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	return &Consumer{
		users:        p.Users,
		notifier:     p.Notifier,
		idempotency:  p.Idempotency,
		subscription: p.Subscription,
		catalog:      p.Catalog,
		maxAttempts:  p.MaxAttempts,
		logg:         p.Logger,
		attempts:     make(map[string]int),
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("draw subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		attempt := 0
		if msg.DeliveryAttempt != nil {
			attempt = *msg.DeliveryAttempt
		}
		result := c.process(ctx, delivery{
			id:         msg.ID,
			attributes: msg.Attributes,
			data:       msg.Data,
			attempt:    attempt,
		})
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type delivery struct {
	id         string
	attributes map[string]string
	data       []byte
	attempt    int
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg delivery) processResult {
	eventType := msg.attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.id,
		"event_type": eventType,
	})

	if eventType != string(enums.EventRaffleDrawn) {
		c.logg.Debug(logCtx, "skipping unrelated event")
		return processResult{ack: true}
	}

	resolved, err := c.catalog.Decode(enums.EventRaffleDrawn, msg.data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode event", err)
		return processResult{ack: true}
	}
	payload, ok := registry.PayloadAs[payloads.RaffleDrawnEvent](resolved)
	if !ok {
		c.logg.Error(logCtx, "unexpected payload type", fmt.Errorf("got %T", resolved.Payload))
		return processResult{ack: true}
	}
	eventID, err := uuid.Parse(resolved.Envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	fresh, err := c.idempotency.Claim(ctx, eventID.String())
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !fresh {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"raffle_id":      payload.RaffleID.String(),
		"winner_user_id": payload.WinnerUserID.String(),
	})

	if err := c.notify(ctx, payload); err != nil {
		_ = c.idempotency.Forget(ctx, eventID.String())
		return c.retryOrDrop(logCtx, msg, err)
	}

	c.forget(msg.id)
	c.logg.Info(logCtx, "winner.notified")
	return processResult{ack: true}
}

func (c *Consumer) notify(ctx context.Context, payload *payloads.RaffleDrawnEvent) error {
	if payload.WinnerUserID == uuid.Nil {
		return fmt.Errorf("winner user id missing")
	}
	user, err := c.users.FindByID(ctx, payload.WinnerUserID)
	if err != nil {
		return fmt.Errorf("load winner: %w", err)
	}
	if err := c.notifier.SendWinnerNotice(ctx, user.Email, user.FullName(), payload.ItemName, payload.ItemValue); err != nil {
		return fmt.Errorf("send winner notice: %w", err)
	}
	return nil
}

// retryOrDrop nacks until the delivery attempt reaches the limit, then acks
// so a permanently failing notice cannot wedge the subscription.
func (c *Consumer) retryOrDrop(ctx context.Context, msg delivery, err error) processResult {
	attempt := msg.attempt
	if attempt <= 0 {
		attempt = c.countLocal(msg.id)
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"attempt":      attempt,
		"max_attempts": c.maxAttempts,
	})
	if attempt >= c.maxAttempts {
		c.forget(msg.id)
		c.logg.Error(logCtx, "winner notice dropped", err)
		return processResult{ack: true}
	}
	c.logg.Warn(logCtx, fmt.Sprintf("winner notice failed, will retry: %v", err))
	return processResult{nack: true}
}

func (c *Consumer) countLocal(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[id]++
	return c.attempts[id]
}

func (c *Consumer) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, id)
}
