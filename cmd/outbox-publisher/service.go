package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	jobName = "outbox_relay"

	fallbackBatch    = 50
	fallbackPoll     = 500 * time.Millisecond
	fallbackAttempts = 10
	sendTimeout      = 15 * time.Second
	backoffCeiling   = 10 * time.Second
	maxJitter        = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	Claim(tx *gorm.DB, limit int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	Park(tx *gorm.DB, id uuid.UUID, cause error) error
	CountPending(ctx context.Context) (int64, error)
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type RelayParams struct {
	Config   config.OutboxConfig
	Logger   *logger.Logger
	DB       txRunner
	Store    eventStore
	Registry eventResolver
	Sender   sender
	// Probe is checked once at startup alongside the database.
	Probe   func(context.Context) error
	Metrics *metrics.JobMetrics
}

// Relay moves committed outbox rows onto Pub/Sub. Each poll claims a batch in
// one transaction so two relays never deliver the same row concurrently.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	store       eventStore
	registry    eventResolver
	sender      sender
	probe       func(context.Context) error
	metrics     *metrics.JobMetrics
	batch       int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	deps := []struct {
		name string
		ok   bool
	}{
		{"logger", p.Logger != nil},
		{"database", p.DB != nil},
		{"store", p.Store != nil},
		{"registry", p.Registry != nil},
		{"sender", p.Sender != nil},
	}
	for _, dep := range deps {
		if !dep.ok {
			return nil, fmt.Errorf("outbox relay: %s is required", dep.name)
		}
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		store:       p.Store,
		registry:    p.Registry,
		sender:      p.Sender,
		probe:       p.Probe,
		metrics:     p.Metrics,
		batch:       fallbackBatch,
		maxAttempts: fallbackAttempts,
		poll:        fallbackPoll,
	}
	if p.Config.BatchSize > 0 {
		r.batch = p.Config.BatchSize
	}
	if p.Config.MaxAttempts > 0 {
		r.maxAttempts = p.Config.MaxAttempts
	}
	if p.Config.PollIntervalMS > 0 {
		r.poll = time.Duration(p.Config.PollIntervalMS) * time.Millisecond
	}
	return r, nil
}

// Run drains the outbox until ctx ends. A full batch is followed straight away
// by the next; an empty one waits one poll interval; a failed one backs off.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if r.probe != nil {
		if err := r.probe(ctx); err != nil {
			return fmt.Errorf("broker ping: %w", err)
		}
	}

	delay := r.poll
	for {
		started := time.Now()
		tally, err := r.drainOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || tally.total() > 0 {
			r.metrics.Observe(jobName, started, err)
		}

		switch {
		case err != nil:
			delay = min(delay*2, backoffCeiling)
			r.logg.Error(r.logg.WithField(ctx, "retry_in_ms", delay.Milliseconds()), "outbox drain failed", err)
		case tally.total() > 0:
			delay = r.poll
			r.logg.Info(r.logg.WithFields(ctx, tally.fields()), "outbox batch drained")
			if tally.total() >= r.batch {
				continue
			}
		default:
			delay = r.poll
		}
		r.reportBacklog(ctx)

		if err := pause(ctx, delay+rand.N(maxJitter)); err != nil {
			return err
		}
	}
}

type tally struct {
	published, retrying, parked int
}

func (t tally) total() int { return t.published + t.retrying + t.parked }

func (t tally) fields() map[string]any {
	return map[string]any{"published": t.published, "retrying": t.retrying, "parked": t.parked}
}

// drainOnce claims and delivers one batch. Send failures are recorded on the
// row; only bookkeeping errors abort the transaction.
func (r *Relay) drainOnce(ctx context.Context) (tally, error) {
	var t tally
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.Claim(tx, r.batch)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		for _, row := range rows {
			if err := r.deliver(ctx, tx, row, &t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return tally{}, err
	}
	r.metrics.CountOutbox("published", t.published)
	r.metrics.CountOutbox("retrying", t.retrying)
	r.metrics.CountOutbox("parked", t.parked)
	return t, nil
}

func (r *Relay) deliver(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, t *tally) error {
	logCtx := r.logg.WithFields(ctx, rowFields(row))

	resolved, err := r.registry.Resolve(row)
	if err == nil {
		logCtx = r.logg.WithFields(logCtx, map[string]any{
			"topic":    resolved.Descriptor.Topic,
			"event_id": resolved.Envelope.EventID,
		})
		err = r.send(ctx, row, resolved)
	}

	if err == nil {
		if err := r.store.MarkPublished(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		t.published++
		r.logg.Debug(logCtx, "outbox event published")
		return nil
	}

	logCtx = r.logg.WithField(logCtx, "error", err.Error())
	var permanent registry.NonRetryableError
	exhausted := row.AttemptCount+1 >= r.maxAttempts
	if errors.As(err, &permanent) || exhausted {
		if exhausted {
			err = fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err)
		}
		if perr := r.store.Park(tx, row.ID, err); perr != nil {
			return fmt.Errorf("park %s: %w", row.ID, perr)
		}
		t.parked++
		r.logg.Warn(logCtx, "outbox event parked")
		return nil
	}

	if ferr := r.store.RecordFailure(tx, row.ID, err); ferr != nil {
		return fmt.Errorf("record failure %s: %w", row.ID, ferr)
	}
	t.retrying++
	r.logg.Warn(logCtx, "outbox event send failed, will retry")
	return nil
}

func (r *Relay) send(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return r.sender.Send(sendCtx, resolved.Descriptor.Topic, &gcppubsub.Message{
		Data: row.Payload,
		// Subscribers route on these without decoding the payload.
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
}

func (r *Relay) reportBacklog(ctx context.Context) {
	n, err := r.store.CountPending(ctx)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "outbox backlog count failed")
		return
	}
	r.metrics.SetOutboxBacklog(n)
}

func rowFields(row models.OutboxEvent) map[string]any {
	return map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
