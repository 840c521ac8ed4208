// Package registry routes outbox rows to Pub/Sub topics and decodes their
// typed payloads before publishing.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Route is where one event type is published and how its data decodes.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (any, error)
}

// ResolvedEvent is an outbox row that passed validation and is ready to
// publish.
type ResolvedEvent struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

// EventRegistry holds the route of every event type the relay knows.
type EventRegistry struct {
	routes map[enums.OutboxEventType]Route
}

// PermanentError marks a row that will never publish no matter how often it
// is retried. The relay dead-letters it right away.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	if e.Err == nil {
		return "permanent publish failure"
	}
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError.
func Permanent(err error) error {
	return PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is permanent.
func IsPermanent(err error) bool {
	var perm PermanentError
	return errors.As(err, &perm)
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) Route {
	return Route{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(data json.RawMessage) (any, error) {
			payload := new(T)
			if err := json.Unmarshal(data, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// NewEventRegistry wires order lifecycle events to the orders topic and
// payment outcomes to the notification topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.OrdersTopic == "":
		return nil, errors.New("orders topic is required")
	case cfg.NotificationTopic == "":
		return nil, errors.New("notification topic is required")
	}

	routes := []Route{
		route[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, cfg.OrdersTopic),
		route[payloads.OrderCanceledEvent](enums.EventOrderCanceled, enums.AggregateOrder, cfg.OrdersTopic),
		route[payloads.OrderUpdatedEvent](enums.EventOrderUpdated, enums.AggregateOrder, cfg.OrdersTopic),
		route[payloads.PaymentStatusEvent](enums.EventPaymentSucceeded, enums.AggregatePayment, cfg.NotificationTopic),
		route[payloads.PaymentStatusEvent](enums.EventPaymentFailed, enums.AggregatePayment, cfg.NotificationTopic),
	}
	reg := &EventRegistry{routes: make(map[enums.OutboxEventType]Route, len(routes))}
	for _, r := range routes {
		reg.routes[r.EventType] = r
	}
	return reg, nil
}

// Topics lists the distinct topics, sorted.
func (r *EventRegistry) Topics() []string {
	set := make(map[string]struct{}, 2)
	for _, rt := range r.routes {
		set[rt.Topic] = struct{}{}
	}
	topics := make([]string, 0, len(set))
	for topic := range set {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Resolve checks the row against its route and decodes the payload. Every
// error it returns is permanent.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	rt, ok := r.routes[event.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no route for event type %q", event.EventType))
	}
	if rt.AggregateType != event.AggregateType {
		return nil, Permanent(fmt.Errorf("%s belongs to aggregate %s, row says %s", event.EventType, rt.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if envelope.Version != outbox.EnvelopeVersion {
		return nil, Permanent(fmt.Errorf("envelope version %d not supported", envelope.Version))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s has no data", event.EventType))
	}

	payload, err := rt.decode(envelope.Data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode %s data: %w", event.EventType, err))
	}
	return &ResolvedEvent{Route: rt, Envelope: envelope, Payload: payload}, nil
}
