package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
)

const (
	defaultPublishedTTL  = 7 * 24 * time.Hour
	defaultDeadLetterTTL = 90 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type publishedPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Events      publishedPruner
	DeadLetters deadLetterPruner
	// PublishedTTL and DeadLetterTTL default to 7 and 90 days.
	PublishedTTL  time.Duration
	DeadLetterTTL time.Duration
}

// outboxRetentionJob keeps outbox_events and outbox_dlq from growing
// without bound. Pending rows are never touched.
type outboxRetentionJob struct {
	logg          *logger.Logger
	db            txRunner
	events        publishedPruner
	deadLetters   deadLetterPruner
	publishedTTL  time.Duration
	deadLetterTTL time.Duration
	now           func() time.Time
}

func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.DB == nil:
		return nil, errors.New("db runner required")
	case p.Events == nil:
		return nil, errors.New("outbox repository required")
	case p.DeadLetters == nil:
		return nil, errors.New("dlq repository required")
	}
	j := &outboxRetentionJob{
		logg:          p.Logger,
		db:            p.DB,
		events:        p.Events,
		deadLetters:   p.DeadLetters,
		publishedTTL:  p.PublishedTTL,
		deadLetterTTL: p.DeadLetterTTL,
		now:           time.Now,
	}
	if j.publishedTTL <= 0 {
		j.publishedTTL = defaultPublishedTTL
	}
	if j.deadLetterTTL <= 0 {
		j.deadLetterTTL = defaultDeadLetterTTL
	}
	return j, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	publishedCutoff := now.Add(-j.publishedTTL)
	deadLetterCutoff := now.Add(-j.deadLetterTTL)

	var events, deadLetters int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.events.DeletePublishedBefore(ctx, tx, publishedCutoff); err != nil {
			return fmt.Errorf("prune published events: %w", err)
		}
		if deadLetters, err = j.deadLetters.DeleteFailedBefore(ctx, tx, deadLetterCutoff); err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"published_cutoff":     publishedCutoff,
		"dead_letter_cutoff":   deadLetterCutoff,
		"events_deleted":       events,
		"dead_letters_deleted": deadLetters,
	}), "cron.outbox_pruned")
	return nil
}
