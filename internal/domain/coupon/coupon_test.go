package coupon

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablepos/service-coupon/internal/platform/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func intPtr(i int) *int { return &i }

func baseAttrs() Attributes {
	now := time.Now().UTC()
	return Attributes{
		Code:          "  save10 ",
		DiscountType:  DiscountTypePercentage,
		DiscountValue: dec("10"),
		StartDate:     now.Add(-time.Hour),
		ExpiryDate:    now.Add(time.Hour),
		IsActive:      true,
	}
}

func TestNewCoupon_NormalizesCode(t *testing.T) {
	c, err := NewCoupon(baseAttrs(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.Code())
	assert.Equal(t, 0, c.UsageCount())
	assert.NotEqual(t, uuid.Nil, c.ID())
}

func TestNewCoupon_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Attributes)
	}{
		{"empty code", func(a *Attributes) { a.Code = "   " }},
		{"unknown type", func(a *Attributes) { a.DiscountType = "bogo" }},
		{"zero value", func(a *Attributes) { a.DiscountValue = decimal.Zero }},
		{"percentage over 100", func(a *Attributes) { a.DiscountValue = dec("100.01") }},
		{"negative max discount", func(a *Attributes) { a.MaxDiscountAmount = decPtr("-1") }},
		{"negative min order", func(a *Attributes) { a.MinOrderAmount = decPtr("-5") }},
		{"negative usage limit", func(a *Attributes) { a.UsageLimit = intPtr(-1) }},
		{"expiry before start", func(a *Attributes) { a.ExpiryDate = a.StartDate.Add(-time.Second) }},
		{"missing dates", func(a *Attributes) { a.StartDate = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := baseAttrs()
			tt.mutate(&attrs)

			_, err := NewCoupon(attrs, uuid.New())
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
		})
	}
}

func TestNewCoupon_FixedAbove100IsAllowed(t *testing.T) {
	attrs := baseAttrs()
	attrs.DiscountType = DiscountTypeFixed
	attrs.DiscountValue = dec("250")

	_, err := NewCoupon(attrs, uuid.New())
	assert.NoError(t, err)
}

func TestCoupon_UpdateKeepsUsage(t *testing.T) {
	now := time.Now().UTC()
	c := Reconstruct(uuid.New(), baseAttrs(), 7, uuid.New(), now, now)

	attrs := c.Attributes()
	attrs.Code = "new-code"
	attrs.UsageLimit = intPtr(10)
	require.NoError(t, c.Update(attrs))

	assert.Equal(t, "NEW-CODE", c.Code())
	assert.Equal(t, 7, c.UsageCount())
	require.NotNil(t, c.UsageLimit())
	assert.Equal(t, 10, *c.UsageLimit())
}

func TestCoupon_DiscountFor(t *testing.T) {
	tests := []struct {
		name   string
		typ    DiscountType
		value  string
		max    *decimal.Decimal
		amount string
		want   string
	}{
		{"percentage", DiscountTypePercentage, "10", nil, "100", "10"},
		{"percentage capped", DiscountTypePercentage, "50", decPtr("20"), "100", "20"},
		{"percentage under cap", DiscountTypePercentage, "10", decPtr("20"), "100", "10"},
		{"percentage rounds half away from zero", DiscountTypePercentage, "12.5", nil, "10.04", "1.26"},
		{"percentage 100 clamps to order", DiscountTypePercentage, "100", decPtr("500"), "40", "40"},
		{"fixed", DiscountTypeFixed, "15", nil, "100", "15"},
		{"fixed above order", DiscountTypeFixed, "150", nil, "100", "100"},
		{"fixed ignores max", DiscountTypeFixed, "30", decPtr("10"), "100", "30"},
		{"zero order", DiscountTypeFixed, "30", nil, "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := baseAttrs()
			attrs.DiscountType = tt.typ
			attrs.DiscountValue = dec(tt.value)
			attrs.MaxDiscountAmount = tt.max
			c := Reconstruct(uuid.New(), attrs, 0, uuid.New(), time.Now(), time.Now())

			got, err := c.DiscountFor(dec(tt.amount))
			require.NoError(t, err)
			assert.True(t, dec(tt.want).Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestCoupon_DiscountForUnknownType(t *testing.T) {
	attrs := baseAttrs()
	attrs.DiscountType = "mystery"
	c := Reconstruct(uuid.New(), attrs, 0, uuid.New(), time.Now(), time.Now())

	_, err := c.DiscountFor(dec("10"))
	assert.Error(t, err)
}

func TestCoupon_InWindowIsInclusive(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)
	attrs := baseAttrs()
	attrs.StartDate, attrs.ExpiryDate = start, end
	c := Reconstruct(uuid.New(), attrs, 0, uuid.New(), start, start)

	assert.True(t, c.InWindow(start))
	assert.True(t, c.InWindow(end))
	assert.False(t, c.InWindow(start.Add(-time.Nanosecond)))
	assert.False(t, c.InWindow(end.Add(time.Nanosecond)))
}
