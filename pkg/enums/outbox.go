package enums

// OutboxAggregateType names the aggregate an outbox row belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
)

var aggregateTypes = []OutboxAggregateType{AggregateOrder, AggregatePayment}

func (a OutboxAggregateType) IsValid() bool {
	_, err := ParseOutboxAggregateType(string(a))
	return err == nil
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, aggregateTypes)
}

// OutboxEventType names the domain event in an outbox row. The value is
// also the event_type attribute on the published message.
type OutboxEventType string

const (
	EventOrderCreated     OutboxEventType = "order_created"
	EventOrderCanceled    OutboxEventType = "order_canceled"
	EventOrderUpdated     OutboxEventType = "order_updated"
	EventPaymentSucceeded OutboxEventType = "payment_succeeded"
	EventPaymentFailed    OutboxEventType = "payment_failed"
)

var outboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderCanceled,
	EventOrderUpdated,
	EventPaymentSucceeded,
	EventPaymentFailed,
}

func (e OutboxEventType) IsValid() bool {
	_, err := ParseOutboxEventType(string(e))
	return err == nil
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, outboxEventTypes)
}

// OutboxDLQErrorReason records why the relay gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	_, err := parse("dlq reason", string(r), []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable})
	return err == nil
}
