// Package contracts holds the Kafka topics, event types and payloads the
// coupon service produces and consumes.
package contracts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Topics.
const (
	TopicOrderEvents  = "order.events"
	TopicCouponEvents = "coupon.events"
)

// Event types.
const (
	OrderCommitted         = "order.committed"
	CouponRedeemed         = "coupon.redeemed"
	CouponRedemptionFailed = "coupon.redemption_failed"
)

// SourceCouponService is the CloudEvents source of everything this service publishes.
const SourceCouponService = "service-coupon"

// OrderCommittedEvent is published by the order service once an order is
// final. Orders placed without a coupon leave both coupon fields empty.
type OrderCommittedEvent struct {
	OrderID        string          `json:"order_id"`
	CouponID       uuid.UUID       `json:"coupon_id,omitempty"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	OrderAmount    decimal.Decimal `json:"order_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	CommittedBy    uuid.UUID       `json:"committed_by,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// CouponRedeemedEvent is published after a redemption is recorded.
type CouponRedeemedEvent struct {
	RedemptionID   uuid.UUID       `json:"redemption_id"`
	CouponID       uuid.UUID       `json:"coupon_id"`
	OrderID        string          `json:"order_id"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	RedeemedBy     uuid.UUID       `json:"redeemed_by"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// CouponRedemptionFailedEvent is published when a redemption saga fails.
type CouponRedemptionFailedEvent struct {
	CouponID   uuid.UUID `json:"coupon_id"`
	OrderID    string    `json:"order_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}
