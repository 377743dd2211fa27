package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tablepos/service-coupon/internal/platform/contracts"
	"github.com/tablepos/service-coupon/internal/platform/kafka"
)

type fakeHandler struct {
	events []contracts.OrderCommittedEvent
	err    error
}

func (f *fakeHandler) HandleOrderCommitted(_ context.Context, e contracts.OrderCommittedEvent) error {
	f.events = append(f.events, e)
	return f.err
}

func newTestConsumer(h OrderCommittedHandler) *OrderEventConsumer {
	return &OrderEventConsumer{handler: h, logger: zap.NewNop()}
}

func message(t *testing.T, eventType string, data interface{}) kafkago.Message {
	t.Helper()
	ce, err := kafka.NewCloudEvent("service-order", eventType, data)
	require.NoError(t, err)
	raw, err := json.Marshal(ce)
	require.NoError(t, err)
	return kafkago.Message{Value: raw}
}

func TestHandleMessage_OrderCommitted(t *testing.T) {
	h := &fakeHandler{}
	c := newTestConsumer(h)
	couponID := uuid.New()

	msg := message(t, contracts.OrderCommitted, map[string]interface{}{
		"order_id":        "ord-42",
		"coupon_id":       couponID.String(),
		"order_amount":    "1000",
		"discount_amount": 50,
	})
	require.NoError(t, c.handleMessage(context.Background(), msg))

	require.Len(t, h.events, 1)
	assert.Equal(t, "ord-42", h.events[0].OrderID)
	assert.Equal(t, couponID, h.events[0].CouponID)
	assert.True(t, h.events[0].DiscountAmount.Equal(decimal.NewFromInt(50)))
}

func TestHandleMessage_IgnoresOtherTypes(t *testing.T) {
	h := &fakeHandler{}
	c := newTestConsumer(h)

	require.NoError(t, c.handleMessage(context.Background(), message(t, "order.cancelled", map[string]string{"order_id": "x"})))
	assert.Empty(t, h.events)
}

func TestHandleMessage_Errors(t *testing.T) {
	boom := errors.New("boom")
	c := newTestConsumer(&fakeHandler{err: boom})

	err := c.handleMessage(context.Background(), kafkago.Message{Value: []byte("not json")})
	assert.Error(t, err)
	assert.True(t, kafka.IsPermanent(err), "unparseable envelope is never retried")

	err = c.handleMessage(context.Background(), message(t, contracts.OrderCommitted, map[string]string{"order_id": "x"}))
	assert.ErrorIs(t, err, boom)
	assert.False(t, kafka.IsPermanent(err), "handler faults are retried")

	err = c.handleMessage(context.Background(), message(t, contracts.OrderCommitted, map[string]interface{}{"discount_amount": "abc"}))
	assert.Error(t, err)
	assert.True(t, kafka.IsPermanent(err))
}
