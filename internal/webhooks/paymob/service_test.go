package paymobwebhook

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/audit"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

type recordingMetrics struct {
	outcomes []string
}

func (m *recordingMetrics) Webhook(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

type recordingAudit struct {
	entries []audit.Entry
}

func (a *recordingAudit) Record(_ context.Context, entry audit.Entry) {
	a.entries = append(a.entries, entry)
}

type fixture struct {
	conn    *gorm.DB
	svc     *Service
	metrics *recordingMetrics
	audit   *recordingAudit
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t, "paymobwebhook")
	rec := &recordingMetrics{}
	aud := &recordingAudit{}
	svc, err := NewService(ServiceParams{
		Payments:          payments.NewRepository(conn),
		Orders:            orders.NewRepository(conn),
		TransactionRunner: client,
		Outbox:            outbox.NewService(outbox.NewRepository(conn), nil),
		Audit:             aud,
		Metrics:           rec,
	})
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc, metrics: rec, audit: aud}
}

func (f fixture) seed(t *testing.T, orderStatus enums.OrderStatus, remoteID string) (*models.Order, *models.Payment) {
	t.Helper()
	order := &models.Order{
		UserID:        uuid.New(),
		OrderNumber:   uuid.NewString()[:12],
		Status:        orderStatus,
		PaymentStatus: enums.OrderPaymentPending,
		TotalAmount:   decimal.RequireFromString("200.00"),
	}
	require.NoError(t, f.conn.Omit("Items").Create(order).Error)
	payment := &models.Payment{
		OrderID:         order.ID,
		PaymentOrderID:  uuid.NewString(),
		PaymobPaymentID: &remoteID,
		Status:          enums.PaymentStatusPending,
		Amount:          order.TotalAmount,
		Currency:        "EGP",
	}
	require.NoError(t, f.conn.Omit("Order").Create(payment).Error)
	return order, payment
}

func (f fixture) reload(t *testing.T, order *models.Order, payment *models.Payment) (models.Order, models.Payment) {
	t.Helper()
	var o models.Order
	require.NoError(t, f.conn.First(&o, "id = ?", order.ID).Error)
	var p models.Payment
	require.NoError(t, f.conn.First(&p, "id = ?", payment.ID).Error)
	return o, p
}

func parse(t *testing.T, body string) Notification {
	t.Helper()
	n, err := ParseNotification([]byte(body))
	require.NoError(t, err)
	return n
}

func TestHandleNotificationSuccessMarksOrderPaid(t *testing.T) {
	f := newFixture(t)
	order, payment := f.seed(t, enums.OrderStatusPending, "12345")

	res, err := f.svc.HandleNotification(context.Background(), parse(t, `{"order_id":"12345","success":"true"}`))
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeSettledSuccess, res.Outcome)

	o, p := f.reload(t, order, payment)
	assert.Equal(t, enums.PaymentStatusSuccess, p.Status)
	assert.Nil(t, p.ErrorMessage)
	assert.Equal(t, enums.OrderStatusPaid, o.Status)
	assert.Equal(t, enums.OrderPaymentPaid, o.PaymentStatus)

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventPaymentSucceeded, events[0].EventType)
	assert.Equal(t, enums.AggregatePayment, events[0].AggregateType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var data payloads.PaymentStatusEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, order.ID, data.OrderID)
	assert.Equal(t, "12345", data.PaymobPaymentID)
	assert.True(t, data.Amount.Equal(decimal.RequireFromString("200")))

	assert.Equal(t, []string{metrics.OutcomeSettledSuccess}, f.metrics.outcomes)
	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, enums.AuditActionPaymentVerify, f.audit.entries[0].Action)
	assert.Equal(t, payment.ID, f.audit.entries[0].ObjectID)
}

func TestHandleNotificationFailureKeepsOrderPending(t *testing.T) {
	f := newFixture(t)
	order, payment := f.seed(t, enums.OrderStatusPending, "555")

	res, err := f.svc.HandleNotification(context.Background(),
		parse(t, `{"obj":{"success":false,"order":{"id":555},"data":{"txn_response_code":"DECLINED","message":"Do not honour"}}}`))
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeSettledFailed, res.Outcome)

	o, p := f.reload(t, order, payment)
	assert.Equal(t, enums.PaymentStatusFailed, p.Status)
	require.NotNil(t, p.ErrorMessage)
	assert.Equal(t, "Do not honour", *p.ErrorMessage)
	assert.Equal(t, enums.OrderStatusPending, o.Status)
	assert.Equal(t, enums.OrderPaymentFailed, o.PaymentStatus)

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventPaymentFailed, events[0].EventType)
}

func TestHandleNotificationReplayIsNoop(t *testing.T) {
	f := newFixture(t)
	order, payment := f.seed(t, enums.OrderStatusPending, "777")
	ctx := context.Background()

	_, err := f.svc.HandleNotification(ctx, parse(t, `{"order_id":"777","success":true}`))
	require.NoError(t, err)

	res, err := f.svc.HandleNotification(ctx, parse(t, `{"order_id":"777","success":false}`))
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeDuplicate, res.Outcome)

	o, p := f.reload(t, order, payment)
	assert.Equal(t, enums.PaymentStatusSuccess, p.Status)
	assert.Equal(t, enums.OrderStatusPaid, o.Status)

	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.Len(t, f.audit.entries, 1)
	assert.Equal(t, []string{metrics.OutcomeSettledSuccess, metrics.OutcomeDuplicate}, f.metrics.outcomes)
}

func TestHandleNotificationUnknownPaymentIsAcknowledged(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.HandleNotification(context.Background(), parse(t, `{"order_id":"404404","success":true}`))
	require.NoError(t, err)
	assert.Equal(t, metrics.OutcomeUnknownPayment, res.Outcome)
	assert.Nil(t, res.Payment)
	assert.Empty(t, f.audit.entries)

	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandleNotificationSuccessOnCancelledOrderKeepsStatus(t *testing.T) {
	f := newFixture(t)
	order, payment := f.seed(t, enums.OrderStatusCancelled, "888")

	_, err := f.svc.HandleNotification(context.Background(), parse(t, `{"order_id":"888","success":true}`))
	require.NoError(t, err)

	o, p := f.reload(t, order, payment)
	assert.Equal(t, enums.PaymentStatusSuccess, p.Status)
	assert.Equal(t, enums.OrderStatusCancelled, o.Status)
	assert.Equal(t, enums.OrderPaymentPaid, o.PaymentStatus)
}

func TestHandleNotificationFailureNeverDowngradesPaidOrder(t *testing.T) {
	f := newFixture(t)
	order, first := f.seed(t, enums.OrderStatusPending, "100")
	remote := "101"
	second := &models.Payment{
		OrderID:         order.ID,
		PaymentOrderID:  uuid.NewString(),
		PaymobPaymentID: &remote,
		Status:          enums.PaymentStatusPending,
		Amount:          order.TotalAmount,
		Currency:        "EGP",
	}
	require.NoError(t, f.conn.Omit("Order").Create(second).Error)
	ctx := context.Background()

	_, err := f.svc.HandleNotification(ctx, parse(t, `{"order_id":"100","success":true}`))
	require.NoError(t, err)
	_, err = f.svc.HandleNotification(ctx, parse(t, `{"order_id":"101","success":false}`))
	require.NoError(t, err)

	o, p := f.reload(t, order, first)
	assert.Equal(t, enums.PaymentStatusSuccess, p.Status)
	assert.Equal(t, enums.OrderStatusPaid, o.Status)
	assert.Equal(t, enums.OrderPaymentPaid, o.PaymentStatus)

	var failed models.Payment
	require.NoError(t, f.conn.First(&failed, "id = ?", second.ID).Error)
	assert.Equal(t, enums.PaymentStatusFailed, failed.Status)
}

func TestHandleNotificationRequiresOrderID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleNotification(context.Background(), Notification{Success: true})
	require.Error(t, err)
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
