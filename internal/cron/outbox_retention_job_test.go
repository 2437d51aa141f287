package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"
)

type recordingPruner struct {
	cutoff time.Time
	calls  int
	err    error
}

func (r *recordingPruner) prune(cutoff time.Time) (int64, error) {
	r.calls++
	r.cutoff = cutoff
	return 3, r.err
}

type eventsPruner struct{ recordingPruner }

func (e *eventsPruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	return e.prune(cutoff)
}

type deadLettersPruner struct{ recordingPruner }

func (d *deadLettersPruner) DeleteFailedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	return d.prune(cutoff)
}

type inlineTx struct{}

func (inlineTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func newRetentionJob(t *testing.T, p OutboxRetentionJobParams, now time.Time) *outboxRetentionJob {
	t.Helper()
	p.Logger = testLogger()
	p.DB = inlineTx{}
	job, err := NewOutboxRetentionJob(p)
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	j := job.(*outboxRetentionJob)
	j.now = func() time.Time { return now }
	return j
}

func TestOutboxRetentionDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	events, dlq := &eventsPruner{}, &deadLettersPruner{}
	job := newRetentionJob(t, OutboxRetentionJobParams{Events: events, DeadLetters: dlq}, now)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.AddDate(0, 0, -7); !events.cutoff.Equal(want) {
		t.Fatalf("published cutoff %s, want %s", events.cutoff, want)
	}
	if want := now.AddDate(0, 0, -90); !dlq.cutoff.Equal(want) {
		t.Fatalf("dead letter cutoff %s, want %s", dlq.cutoff, want)
	}
}

func TestOutboxRetentionCustomTTLs(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	events, dlq := &eventsPruner{}, &deadLettersPruner{}
	job := newRetentionJob(t, OutboxRetentionJobParams{
		Events:        events,
		DeadLetters:   dlq,
		PublishedTTL:  24 * time.Hour,
		DeadLetterTTL: 30 * 24 * time.Hour,
	}, now)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !events.cutoff.Equal(now.AddDate(0, 0, -1)) || !dlq.cutoff.Equal(now.AddDate(0, 0, -30)) {
		t.Fatalf("unexpected cutoffs %s / %s", events.cutoff, dlq.cutoff)
	}
}

func TestOutboxRetentionStopsOnFirstFailure(t *testing.T) {
	events := &eventsPruner{recordingPruner{err: errors.New("lock timeout")}}
	dlq := &deadLettersPruner{}
	job := newRetentionJob(t, OutboxRetentionJobParams{Events: events, DeadLetters: dlq}, time.Now())

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if dlq.calls != 0 {
		t.Fatalf("dead letters must not be pruned after a failed event prune")
	}
}

func TestNewOutboxRetentionJobValidation(t *testing.T) {
	base := OutboxRetentionJobParams{Logger: testLogger(), DB: inlineTx{}, Events: &eventsPruner{}, DeadLetters: &deadLettersPruner{}}
	for name, mutate := range map[string]func(*OutboxRetentionJobParams){
		"logger": func(p *OutboxRetentionJobParams) { p.Logger = nil },
		"db":     func(p *OutboxRetentionJobParams) { p.DB = nil },
		"events": func(p *OutboxRetentionJobParams) { p.Events = nil },
		"dlq":    func(p *OutboxRetentionJobParams) { p.DeadLetters = nil },
	} {
		p := base
		mutate(&p)
		if _, err := NewOutboxRetentionJob(p); err == nil {
			t.Fatalf("expected error without %s", name)
		}
	}
}
