package coupon

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tablepos/service-coupon/internal/platform/domain"
)

// ErrUsageLimitReached is returned by IncrementUsage when the conditional
// update matched no row because the limit is already reached.
var ErrUsageLimitReached = &domain.DomainError{Err: domain.ErrConflict, Message: "coupon usage limit reached"}

// Finder is the read side the evaluator needs.
type Finder interface {
	// FindByCode looks up a coupon case-insensitively. A missing coupon is
	// reported as a domain.ErrNotFound error.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}

// Repository defines persistence operations for coupons and redemptions.
type Repository interface {
	Finder

	Save(ctx context.Context, c *Coupon) error
	// Update persists editable fields. It never writes usage_count.
	Update(ctx context.Context, c *Coupon) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*Coupon, error)
	List(ctx context.Context, page, limit int) ([]*Coupon, int64, error)
	FindActive(ctx context.Context, now time.Time) ([]*Coupon, error)

	// IncrementUsage atomically adds one redemption, only while
	// usage_limit is unset or usage_count < usage_limit.
	IncrementUsage(ctx context.Context, id uuid.UUID) error
	// DecrementUsage undoes an IncrementUsage; it never goes below zero.
	DecrementUsage(ctx context.Context, id uuid.UUID) error

	SaveRedemption(ctx context.Context, r *Redemption) error
	FindRedemption(ctx context.Context, couponID uuid.UUID, orderID string) (*Redemption, error)
	ListRedemptions(ctx context.Context, couponID uuid.UUID) ([]*Redemption, error)
}

// Redemption records one completed application of a coupon to an order.
type Redemption struct {
	ID             uuid.UUID
	CouponID       uuid.UUID
	OrderID        string
	DiscountAmount decimal.Decimal
	RedeemedBy     uuid.UUID
	RedeemedAt     time.Time
}
