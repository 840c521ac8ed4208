package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestEmitWritesEnvelope(t *testing.T) {
	conn := dbtest.Open(t, "outbox_emit")
	svc := NewService(NewRepository(conn), nil)

	orderID := uuid.New()
	actor := uuid.New()
	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         &ActorRef{UserID: actor, Role: string(enums.RoleCustomer)},
		Data:          map[string]string{"order_number": "ABCDEF123456"},
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, orderID, rows[0].AggregateID)
	assert.False(t, rows[0].Published())
	assert.Zero(t, rows[0].AttemptCount)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, actor, envelope.Actor.UserID)
	assert.JSONEq(t, `{"order_number":"ABCDEF123456"}`, string(envelope.Data))
}

func TestEmitRejectsUnknownEventAndMissingTx(t *testing.T) {
	conn := dbtest.Open(t, "outbox_emit_invalid")
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "bogus", AggregateType: enums.AggregateOrder, AggregateID: uuid.New()})
	require.Error(t, err)

	err = svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated})
	require.Error(t, err)

	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder})
	require.Error(t, err, "aggregate id is required")
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t, "outbox_emit_rollback")
	svc := NewService(NewRepository(conn), nil)

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          map[string]string{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t, "outbox_repo")
	repo := NewRepository(conn)

	first := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{EventType: enums.EventPaymentFailed, AggregateType: enums.AggregatePayment, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(conn, first))
	require.NoError(t, repo.Insert(conn, second))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New(strings.Repeat("x", 2000))))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Len(t, *rows[0].LastError, maxLastErrorLen)

	require.NoError(t, repo.MarkTerminalTx(conn, rows[0].ID, errors.New("bad payload"), 3))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepositoryRequiresTx(t *testing.T) {
	repo := NewRepository(nil)
	assert.ErrorIs(t, repo.Insert(nil, models.OutboxEvent{}), errTxRequired)
	_, err := repo.FetchUnpublishedForPublish(nil, 1, 1)
	assert.ErrorIs(t, err, errTxRequired)
	_, err = repo.DeleteSettledBefore(context.Background(), nil, time.Now(), 1, 10)
	assert.ErrorIs(t, err, errTxRequired)
}

func TestDeleteSettledBefore(t *testing.T) {
	conn := dbtest.Open(t, "outbox_retention")
	repo := NewRepository(conn)
	old := time.Now().UTC().Add(-48 * time.Hour)
	published := old.Add(time.Minute)

	rows := []models.OutboxEvent{
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old, PublishedAt: &published},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old, AttemptCount: 5},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), CreatedAt: old, AttemptCount: 1},
		{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), PublishedAt: &published},
	}
	for _, row := range rows {
		require.NoError(t, repo.Insert(conn, row))
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	deleted, err := repo.DeleteSettledBefore(context.Background(), conn, cutoff, 5, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted, "limit caps each batch")

	deleted, err = repo.DeleteSettledBefore(context.Background(), conn, cutoff, 5, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	assert.EqualValues(t, 2, remaining)
}

func TestDLQRepository(t *testing.T) {
	conn := dbtest.Open(t, "outbox_dlq")
	dlq := NewDLQRepository(conn)

	eventID := uuid.New()
	found, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	assert.Nil(t, found)

	msg := strings.Repeat("y", 1500)
	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
		AttemptCount:  1,
	}))

	found, err = dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, found.ErrorReason)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, maxLastErrorLen)

	// a second dead-letter of the same event keeps the first entry
	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		AttemptCount:  9,
	}))
	again, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, again.ErrorReason)
}
