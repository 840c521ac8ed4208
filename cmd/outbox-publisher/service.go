package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// delivery is the outcome of relaying one outbox row.
type delivery struct {
	event  models.OutboxEvent
	topic  string
	fields map[string]any
	err    error
	reason enums.OutboxDLQErrorReason
}

func (d delivery) published() bool { return d.err == nil }
func (d delivery) deadLetter() bool { return d.err != nil && d.reason != "" }

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
}

// Service relays committed order and payment events from outbox_events to
// Pub/Sub. Rows are claimed with SKIP LOCKED, so several relays may run.
type Service struct {
	cfg              *config.Config
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	publishers       map[string]publisher
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	outboxCfg := params.Config.Outbox
	return &Service{
		cfg:              params.Config,
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: factory,
		publishers:       map[string]publisher{},
		batchSize:        positiveOr(outboxCfg.BatchSize, defaultBatchSize),
		maxAttempts:      positiveOr(outboxCfg.MaxAttempts, defaultMaxAttempts),
		pollInterval:     time.Duration(positiveOr(outboxCfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run polls until ctx is cancelled. Empty polls wait one jittered interval;
// failed batches back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.stopPublishers()

	if err := s.ping(ctx, "database", s.db.Ping); err != nil {
		return err
	}
	if err := s.ping(ctx, "pubsub", s.pubsub.Ping); err != nil {
		return err
	}

	backoff := newBatchBackoff(s.pollInterval)
	idle := retry.WithJitter(jitterWindow, retry.NewConstant(s.pollInterval))

	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait, _ = backoff.Next()
		case processed:
			backoff = newBatchBackoff(s.pollInterval)
			continue
		default:
			backoff = newBatchBackoff(s.pollInterval)
			wait, _ = idle.Next()
		}
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Service) ping(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		s.logg.Error(ctx, name+" ping failed", err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// newBatchBackoff doubles from the poll interval up to maxBackoff. Backoffs
// are stateful, so a fresh one is built after every successful batch.
func newBatchBackoff(interval time.Duration) retry.Backoff {
	b := retry.NewExponential(interval)
	b = retry.WithCappedDuration(maxBackoff, b)
	return retry.WithJitter(jitterWindow, b)
}

// processBatch claims up to batchSize rows and settles each one in the same
// transaction: published, failed for a later retry, or dead-lettered.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, s.relay(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) relay(ctx context.Context, event models.OutboxEvent) delivery {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return delivery{
			event:  event,
			fields: s.eventFields(event, "", ""),
			err:    err,
			reason: enums.OutboxDLQReasonNonRetryable,
		}
	}

	d := delivery{
		event:  event,
		topic:  resolved.Route.Topic,
		fields: s.eventFields(event, resolved.Envelope.EventID, resolved.Route.Topic),
	}
	d.fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)

	d.err = s.publish(ctx, event, resolved)
	if d.err == nil {
		return d
	}

	if registry.IsPermanent(d.err) {
		d.reason = enums.OutboxDLQReasonNonRetryable
		return d
	}

	nextAttempt := event.AttemptCount + 1
	d.fields["attempt_count"] = nextAttempt
	if nextAttempt >= s.maxAttempts {
		d.reason = enums.OutboxDLQReasonMaxAttempts
		d.err = fmt.Errorf("max publish attempts reached: %w", d.err)
	}
	return d
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, d delivery) error {
	id := d.event.ID
	logCtx := s.logg.WithFields(ctx, d.fields)

	switch {
	case d.published():
		if err := s.repo.MarkPublishedTx(tx, id); err != nil {
			return fmt.Errorf("mark published %s: %w", id, err)
		}
		s.logg.Info(logCtx, "outbox event published")
		return nil

	case d.deadLetter():
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"error_reason": d.reason,
			"error":        d.err.Error(),
		})
		s.logg.Warn(logCtx, "outbox event dead-lettered")
		message := d.err.Error()
		entry := models.OutboxDLQ{
			EventID:       id,
			EventType:     d.event.EventType,
			AggregateType: d.event.AggregateType,
			AggregateID:   d.event.AggregateID,
			Payload:       d.event.Payload,
			ErrorReason:   d.reason,
			ErrorMessage:  &message,
			AttemptCount:  d.event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", id, err)
		}
		if err := s.repo.MarkTerminalTx(tx, id, d.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", id, err)
		}
		return nil

	default:
		s.logg.Warn(s.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, id, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", id, err)
		}
		return nil
	}
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Route.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.Permanent(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (s *Service) publisherFor(topic string) publisher {
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.publisherFactory(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

// stopPublishers flushes pending messages on every cached topic publisher.
func (s *Service) stopPublishers() {
	for topic, pub := range s.publishers {
		if stopper, ok := pub.(interface{ Stop() }); ok {
			stopper.Stop()
		}
		delete(s.publishers, topic)
	}
}

func (s *Service) eventFields(event models.OutboxEvent, eventID, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"batch_size":     s.batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if eventID != "" {
		fields["event_id"] = eventID
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// gcpPublisher adapts the Pub/Sub v2 publisher to the narrow publisher
// interface used by the relay.
type gcpPublisher struct {
	*gcppubsub.Publisher
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}
