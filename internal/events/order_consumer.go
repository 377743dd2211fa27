package events

import (
	"context"
	"strings"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tablepos/service-coupon/internal/platform/contracts"
	"github.com/tablepos/service-coupon/internal/platform/kafka"
)

// OrderCommittedHandler records redemptions for committed orders.
type OrderCommittedHandler interface {
	HandleOrderCommitted(ctx context.Context, event contracts.OrderCommittedEvent) error
}

// OrderEventConsumer listens to order events and records coupon redemptions
// once an order is committed.
type OrderEventConsumer struct {
	consumer *kafka.Consumer
	handler  OrderCommittedHandler
	logger   *zap.Logger
}

// NewOrderEventConsumer creates a new consumer for order events.
func NewOrderEventConsumer(
	brokers []string,
	groupID string,
	handler OrderCommittedHandler,
	logger *zap.Logger,
) *OrderEventConsumer {
	return &OrderEventConsumer{
		consumer: kafka.NewConsumer(brokers, groupID, contracts.TopicOrderEvents, logger),
		handler:  handler,
		logger:   logger,
	}
}

// Start begins consuming order events. It blocks until the context is cancelled.
func (c *OrderEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

func (c *OrderEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	ce, err := kafka.ParseCloudEvent(msg.Value)
	if err != nil {
		c.logger.Error("failed to parse cloud event from order topic",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
		)
		return kafka.Permanent(err)
	}

	switch {
	case strings.EqualFold(ce.Type, contracts.OrderCommitted):
		return c.handleOrderCommitted(ctx, ce)
	default:
		c.logger.Debug("ignoring unhandled order event type", zap.String("type", ce.Type))
		return nil
	}
}

func (c *OrderEventConsumer) handleOrderCommitted(ctx context.Context, ce kafka.CloudEvent) error {
	var event contracts.OrderCommittedEvent
	if err := ce.ParseData(&event); err != nil {
		c.logger.Error("failed to parse OrderCommittedEvent data", zap.Error(err), zap.String("id", ce.ID))
		return kafka.Permanent(err)
	}

	c.logger.Info("order committed",
		zap.String("order_id", event.OrderID),
		zap.String("coupon_code", event.CouponCode),
	)
	return c.handler.HandleOrderCommitted(ctx, event)
}

// Close closes the underlying Kafka consumer.
func (c *OrderEventConsumer) Close() error {
	return c.consumer.Close()
}
