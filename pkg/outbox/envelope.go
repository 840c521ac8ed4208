package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EnvelopeVersion is bumped when the envelope shape changes, not when an
// event's data changes.
const EnvelopeVersion = 1

// ActorRef names the user whose request produced an event. Events raised by
// the payment gateway webhook have none.
type ActorRef struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and published
// as the Pub/Sub message body. EventID equals the outbox row id, so
// subscribers can drop redeliveries by it.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
