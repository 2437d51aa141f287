package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/pkg/config"
	"github.com/angelmondragon/rafflepot-backend/pkg/db/models"
	"github.com/angelmondragon/rafflepot-backend/pkg/enums"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox"
	"github.com/angelmondragon/rafflepot-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	sendTimeout        = 15 * time.Second
	maxPause           = 10 * time.Second
)

type txDB interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pinger interface {
	Ping(context.Context) error
}

type rowStore interface {
	FetchForPublishTx(tx *gorm.DB, limit int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.Resolved, error)
}

// sink delivers one message and blocks until the broker acknowledges it.
type sink interface {
	Send(ctx context.Context, msg *gcppubsub.Message) (string, error)
}

// sinkFor returns the sink for a topic, or nil when none is configured.
type sinkFor func(topic string) sink

type RelayParams struct {
	Config config.OutboxConfig
	Logger *logger.Logger
	DB     txDB
	PubSub pinger
	Rows   rowStore
	DLQ    deadLetterStore
	Events eventResolver
	Sinks  sinkFor
	Now    func() time.Time
}

// Relay drains outbox_events onto Pub/Sub. Rows are claimed with SKIP
// LOCKED and settled in the claiming transaction, so replicas never publish
// the same row concurrently and a crash leaves the batch for the next pass.
type Relay struct {
	logg        *logger.Logger
	db          txDB
	pubsub      pinger
	rows        rowStore
	dlq         deadLetterStore
	events      eventResolver
	sinks       sinkFor
	now         func() time.Time
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Rows == nil:
		return nil, errors.New("outbox repository is required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case p.Events == nil:
		return nil, errors.New("event catalog is required")
	case p.Sinks == nil:
		return nil, errors.New("topic sinks are required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		pubsub:      p.PubSub,
		rows:        p.Rows,
		dlq:         p.DLQ,
		events:      p.Events,
		sinks:       p.Sinks,
		now:         p.Now,
		batchSize:   p.Config.BatchSize,
		maxAttempts: p.Config.MaxAttempts,
		poll:        time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPoll
	}
	return r, nil
}

// Run polls until ctx is canceled. An empty poll sleeps for the poll
// interval; a failed batch backs off exponentially up to maxPause.
func (r *Relay) Run(ctx context.Context) error {
	for name, dep := range map[string]pinger{"database": r.db, "pubsub": r.pubsub} {
		if err := dep.Ping(ctx); err != nil {
			r.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}

	pace := newPacer(r.poll, maxPause)
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox.relay_stopped")
			return err
		}

		handled, err := r.drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox.batch_failed", err)
			wait = pace.failure()
		case handled == 0:
			pace.reset()
			wait = pace.idle()
		default:
			pace.reset()
			continue
		}

		select {
		case <-ctx.Done():
			r.logg.Info(ctx, "outbox.relay_stopped")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// drain claims one batch and settles every row in it. It returns how many
// rows were claimed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	var handled int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.rows.FetchForPublishTx(tx, r.batchSize)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		handled = len(rows)
		for _, row := range rows {
			if err := r.settle(ctx, tx, row, r.deliver(ctx, row)); err != nil {
				return err
			}
		}
		return nil
	})
	return handled, err
}

type verdict int

const (
	published verdict = iota
	retryLater
	deadLetter
)

// delivery is what happened to one row; settle persists it.
type delivery struct {
	verdict verdict
	reason  enums.OutboxDLQErrorReason
	err     error
	topic   string
	eventID string
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) delivery {
	resolved, err := r.events.Resolve(row)
	if err != nil {
		return delivery{verdict: deadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}

	d := delivery{topic: resolved.Topic, eventID: resolved.Envelope.EventID}
	out := r.sinks(d.topic)
	if out == nil {
		d.verdict, d.reason = deadLetter, enums.OutboxDLQReasonNonRetryable
		d.err = fmt.Errorf("no publisher for topic %q", d.topic)
		return d
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if _, err := out.Send(sendCtx, &gcppubsub.Message{Data: row.Payload, Attributes: attributesFor(row, d.eventID)}); err != nil {
		d.err = err
		switch {
		case registry.IsPermanent(err):
			d.verdict, d.reason = deadLetter, enums.OutboxDLQReasonNonRetryable
		case row.AttemptCount+1 >= r.maxAttempts:
			d.verdict, d.reason = deadLetter, enums.OutboxDLQReasonMaxAttempts
			d.err = fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err)
		default:
			d.verdict = retryLater
		}
		return d
	}
	d.verdict = published
	return d
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, d delivery) error {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType,
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
		"topic":         d.topic,
		"event_id":      d.eventID,
	})

	switch d.verdict {
	case published:
		if err := r.rows.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		r.logg.Info(ctx, "outbox.published")
	case retryLater:
		r.logg.Warn(r.logg.WithField(ctx, "error", d.err.Error()), "outbox.retry_scheduled")
		if err := r.rows.MarkFailedTx(tx, row.ID, d.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", row.ID, err)
		}
	case deadLetter:
		r.logg.Warn(r.logg.WithFields(ctx, map[string]any{"error": d.err.Error(), "error_reason": d.reason}), "outbox.dead_lettered")
		entry := outbox.DeadLetter(row, d.reason, d.err, r.now())
		if err := r.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", row.ID, err)
		}
		if err := r.rows.MarkTerminalTx(tx, row.ID, d.err); err != nil {
			return fmt.Errorf("mark terminal %s: %w", row.ID, err)
		}
	}
	return nil
}

// attributesFor carries routing metadata so subscribers can filter and
// dedupe without decoding the payload.
func attributesFor(row models.OutboxEvent, eventID string) map[string]string {
	return map[string]string{
		"event_id":       eventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
