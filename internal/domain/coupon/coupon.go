package coupon

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tablepos/service-coupon/internal/platform/domain"
)

// DiscountType represents how a coupon's value is interpreted.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountTypePercentage || t == DiscountTypeFixed
}

var hundred = decimal.NewFromInt(100)

// Attributes are the admin-editable fields of a coupon.
type Attributes struct {
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	StartDate         time.Time
	ExpiryDate        time.Time
	UsageLimit        *int
	IsActive          bool
}

// Coupon is the aggregate root for discount coupons.
type Coupon struct {
	id                uuid.UUID
	code              string
	description       string
	discountType      DiscountType
	discountValue     decimal.Decimal
	maxDiscountAmount *decimal.Decimal
	minOrderAmount    *decimal.Decimal
	startDate         time.Time
	expiryDate        time.Time
	usageLimit        *int
	usageCount        int
	isActive          bool
	createdBy         uuid.UUID
	createdAt         time.Time
	updatedAt         time.Time
}

// NormalizeCode returns the canonical stored form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NewCoupon validates attrs and creates a coupon with zero usage.
func NewCoupon(attrs Attributes, createdBy uuid.UUID) (*Coupon, error) {
	attrs.Code = NormalizeCode(attrs.Code)
	if err := validate(attrs); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &Coupon{
		id:        uuid.New(),
		createdBy: createdBy,
		createdAt: now,
	}
	c.apply(attrs, now)
	return c, nil
}

// Update replaces the editable fields. The usage counter is untouched.
func (c *Coupon) Update(attrs Attributes) error {
	attrs.Code = NormalizeCode(attrs.Code)
	if err := validate(attrs); err != nil {
		return err
	}
	c.apply(attrs, time.Now().UTC())
	return nil
}

func (c *Coupon) apply(attrs Attributes, now time.Time) {
	c.code = attrs.Code
	c.description = strings.TrimSpace(attrs.Description)
	c.discountType = attrs.DiscountType
	c.discountValue = attrs.DiscountValue
	c.maxDiscountAmount = attrs.MaxDiscountAmount
	c.minOrderAmount = attrs.MinOrderAmount
	c.startDate = attrs.StartDate.UTC()
	c.expiryDate = attrs.ExpiryDate.UTC()
	c.usageLimit = attrs.UsageLimit
	c.isActive = attrs.IsActive
	c.updatedAt = now
}

func validate(attrs Attributes) error {
	if attrs.Code == "" {
		return domain.NewValidationError("coupon code is required")
	}
	if len(attrs.Code) > 50 {
		return domain.NewValidationError("coupon code must be at most 50 characters")
	}
	if !attrs.DiscountType.Valid() {
		return domain.NewValidationError(fmt.Sprintf("invalid discount type: %s", attrs.DiscountType))
	}
	if !attrs.DiscountValue.IsPositive() {
		return domain.NewValidationError("discount value must be positive")
	}
	if attrs.DiscountType == DiscountTypePercentage && attrs.DiscountValue.GreaterThan(hundred) {
		return domain.NewValidationError("percentage discount cannot exceed 100")
	}
	if attrs.MaxDiscountAmount != nil && attrs.MaxDiscountAmount.IsNegative() {
		return domain.NewValidationError("max discount amount cannot be negative")
	}
	if attrs.MinOrderAmount != nil && attrs.MinOrderAmount.IsNegative() {
		return domain.NewValidationError("min order amount cannot be negative")
	}
	if attrs.UsageLimit != nil && *attrs.UsageLimit < 0 {
		return domain.NewValidationError("usage limit cannot be negative")
	}
	if attrs.StartDate.IsZero() || attrs.ExpiryDate.IsZero() {
		return domain.NewValidationError("start_date and expiry_date are required")
	}
	if attrs.ExpiryDate.Before(attrs.StartDate) {
		return domain.NewValidationError("expiry_date must not be before start_date")
	}
	return nil
}

// Reconstruct rebuilds a Coupon from persistence.
func Reconstruct(
	id uuid.UUID,
	attrs Attributes,
	usageCount int,
	createdBy uuid.UUID,
	createdAt, updatedAt time.Time,
) *Coupon {
	c := &Coupon{
		id:         id,
		usageCount: usageCount,
		createdBy:  createdBy,
		createdAt:  createdAt,
	}
	c.apply(attrs, updatedAt)
	return c
}

// UsageExhausted reports whether the usage limit has been reached.
func (c *Coupon) UsageExhausted() bool {
	return c.usageLimit != nil && c.usageCount >= *c.usageLimit
}

// InWindow reports whether t lies in the inclusive validity window.
func (c *Coupon) InWindow(t time.Time) bool {
	return !t.Before(c.startDate) && !t.After(c.expiryDate)
}

// DiscountFor computes the discount this coupon grants on orderAmount,
// ignoring eligibility. Percentage results are rounded to 2 decimal places
// (half away from zero) before capping; the result never exceeds
// orderAmount and is never negative.
func (c *Coupon) DiscountFor(orderAmount decimal.Decimal) (decimal.Decimal, error) {
	var raw decimal.Decimal
	switch c.discountType {
	case DiscountTypePercentage:
		raw = orderAmount.Mul(c.discountValue).Div(hundred).Round(2)
		if c.maxDiscountAmount != nil && raw.GreaterThan(*c.maxDiscountAmount) {
			raw = *c.maxDiscountAmount
		}
	case DiscountTypeFixed:
		raw = c.discountValue
	default:
		return decimal.Zero, fmt.Errorf("coupon %s has unknown discount type %q", c.code, c.discountType)
	}

	discount := decimal.Min(raw, orderAmount)
	if discount.IsNegative() {
		return decimal.Zero, nil
	}
	return discount, nil
}

// Attributes returns the editable fields, e.g. to apply a partial update.
func (c *Coupon) Attributes() Attributes {
	return Attributes{
		Code:              c.code,
		Description:       c.description,
		DiscountType:      c.discountType,
		DiscountValue:     c.discountValue,
		MaxDiscountAmount: c.maxDiscountAmount,
		MinOrderAmount:    c.minOrderAmount,
		StartDate:         c.startDate,
		ExpiryDate:        c.expiryDate,
		UsageLimit:        c.usageLimit,
		IsActive:          c.isActive,
	}
}

// Getters.
func (c *Coupon) ID() uuid.UUID                       { return c.id }
func (c *Coupon) Code() string                        { return c.code }
func (c *Coupon) Description() string                 { return c.description }
func (c *Coupon) DiscountType() DiscountType          { return c.discountType }
func (c *Coupon) DiscountValue() decimal.Decimal      { return c.discountValue }
func (c *Coupon) MaxDiscountAmount() *decimal.Decimal { return c.maxDiscountAmount }
func (c *Coupon) MinOrderAmount() *decimal.Decimal    { return c.minOrderAmount }
func (c *Coupon) StartDate() time.Time                { return c.startDate }
func (c *Coupon) ExpiryDate() time.Time               { return c.expiryDate }
func (c *Coupon) UsageLimit() *int                    { return c.usageLimit }
func (c *Coupon) UsageCount() int                     { return c.usageCount }
func (c *Coupon) IsActive() bool                      { return c.isActive }
func (c *Coupon) CreatedBy() uuid.UUID                { return c.createdBy }
func (c *Coupon) CreatedAt() time.Time                { return c.createdAt }
func (c *Coupon) UpdatedAt() time.Time                { return c.updatedAt }
