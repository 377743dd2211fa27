package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	couponDomain "github.com/tablepos/service-coupon/internal/domain/coupon"
	"github.com/tablepos/service-coupon/internal/platform/contracts"
	"github.com/tablepos/service-coupon/internal/platform/domain"
	"github.com/tablepos/service-coupon/internal/saga"
)

const (
	dateLayout    = "2006-01-02"
	maxOrderIDLen = 64
	defaultPage   = 1
	defaultLimit  = 20
	maxLimit      = 100
)

// CouponRequest holds data to create or update a coupon.
type CouponRequest struct {
	Code              string           `json:"code" binding:"required"`
	Description       string           `json:"description"`
	DiscountType      string           `json:"discount_type" binding:"required"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount"`
	MinOrderAmount    *decimal.Decimal `json:"min_order_amount"`
	StartDate         string           `json:"start_date" binding:"required"`
	ExpiryDate        string           `json:"expiry_date" binding:"required"`
	UsageLimit        *int             `json:"usage_limit"`
	IsActive          *bool            `json:"is_active"`
}

// ValidateCouponRequest is the body of POST /coupons/validate.
type ValidateCouponRequest struct {
	Code        string              `json:"code" binding:"required"`
	OrderAmount *decimal.Decimal    `json:"orderAmount" binding:"required"`
	Items       []couponDomain.Item `json:"items"`
}

// RedeemCouponRequest holds data to record a redemption.
type RedeemCouponRequest struct {
	OrderID        string           `json:"order_id" binding:"required"`
	DiscountAmount *decimal.Decimal `json:"discount_amount" binding:"required"`
}

// CouponDTO is the API response representation of a coupon.
type CouponDTO struct {
	ID                uuid.UUID `json:"id"`
	Code              string    `json:"code"`
	Description       string    `json:"description,omitempty"`
	DiscountType      string    `json:"discount_type"`
	DiscountValue     float64   `json:"discount_value"`
	MaxDiscountAmount *float64  `json:"max_discount_amount"`
	MinOrderAmount    *float64  `json:"min_order_amount"`
	StartDate         time.Time `json:"start_date"`
	ExpiryDate        time.Time `json:"expiry_date"`
	UsageLimit        *int      `json:"usage_limit"`
	UsageCount        int       `json:"usage_count"`
	IsActive          bool      `json:"is_active"`
	CreatedBy         uuid.UUID `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ValidationResultDTO is the response of POST /coupons/validate. Coupon and
// DiscountAmount are present only when Valid is true.
type ValidationResultDTO struct {
	Valid          bool                `json:"valid"`
	Reason         couponDomain.Reason `json:"reason"`
	Message        string              `json:"message"`
	Coupon         *CouponDTO          `json:"coupon,omitempty"`
	DiscountAmount *float64            `json:"discountAmount,omitempty"`
}

// RedemptionDTO is the API response representation of a redemption.
type RedemptionDTO struct {
	ID             uuid.UUID `json:"id"`
	CouponID       uuid.UUID `json:"coupon_id"`
	OrderID        string    `json:"order_id"`
	DiscountAmount float64   `json:"discount_amount"`
	RedeemedBy     uuid.UUID `json:"redeemed_by"`
	RedeemedAt     time.Time `json:"redeemed_at"`
}

// CouponService handles coupon use cases.
type CouponService struct {
	repo      couponDomain.Repository
	evaluator *couponDomain.Evaluator
	redeemer  *saga.RedemptionSagaService
	loc       *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

// NewCouponService creates a new CouponService. loc is the zone date-only
// inputs are interpreted in.
func NewCouponService(
	repo couponDomain.Repository,
	evaluator *couponDomain.Evaluator,
	redeemer *saga.RedemptionSagaService,
	loc *time.Location,
	logger *zap.Logger,
) *CouponService {
	if loc == nil {
		loc = time.UTC
	}
	return &CouponService{
		repo:      repo,
		evaluator: evaluator,
		redeemer:  redeemer,
		loc:       loc,
		now:       time.Now,
		logger:    logger,
	}
}

// ValidateCoupon evaluates a code against an order. Rejections are results,
// not errors; only malformed input returns an error.
func (s *CouponService) ValidateCoupon(ctx context.Context, req ValidateCouponRequest) (*ValidationResultDTO, error) {
	if req.OrderAmount == nil {
		return nil, domain.NewValidationError("orderAmount is required")
	}
	if req.OrderAmount.IsNegative() {
		return nil, domain.NewValidationError("orderAmount cannot be negative")
	}

	res := s.evaluator.Evaluate(ctx, couponDomain.EvaluationRequest{
		Code:        req.Code,
		OrderAmount: *req.OrderAmount,
		Items:       req.Items,
	})

	if res.Reason == couponDomain.ReasonStorageError {
		s.logger.Error("coupon evaluation failed",
			zap.String("code", couponDomain.NormalizeCode(req.Code)),
			zap.Error(res.Cause),
		)
	}

	dto := &ValidationResultDTO{
		Valid:   res.Valid,
		Reason:  res.Reason,
		Message: res.Message,
	}
	if res.Valid {
		dto.Coupon = toCouponDTO(res.Coupon)
		amount := res.DiscountAmount.InexactFloat64()
		dto.DiscountAmount = &amount
	}
	return dto, nil
}

// CreateCoupon creates a new coupon (admin only).
func (s *CouponService) CreateCoupon(ctx context.Context, createdBy uuid.UUID, req CouponRequest) (*CouponDTO, error) {
	attrs, err := s.toAttributes(req)
	if err != nil {
		return nil, err
	}

	c, err := couponDomain.NewCoupon(attrs, createdBy)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("coupon created",
		zap.String("coupon_id", c.ID().String()),
		zap.String("code", c.Code()),
	)
	return toCouponDTO(c), nil
}

// UpdateCoupon replaces a coupon's editable fields. The usage counter is kept.
func (s *CouponService) UpdateCoupon(ctx context.Context, id uuid.UUID, req CouponRequest) (*CouponDTO, error) {
	attrs, err := s.toAttributes(req)
	if err != nil {
		return nil, err
	}

	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Update(attrs); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("coupon updated", zap.String("coupon_id", id.String()))
	return toCouponDTO(c), nil
}

// DeleteCoupon removes a coupon.
func (s *CouponService) DeleteCoupon(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("coupon deleted", zap.String("coupon_id", id.String()))
	return nil
}

// GetCoupon returns one coupon.
func (s *CouponService) GetCoupon(ctx context.Context, id uuid.UUID) (*CouponDTO, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toCouponDTO(c), nil
}

// ListCoupons returns one page of coupons and the total count. Out of range
// page and limit values fall back to defaults.
func (s *CouponService) ListCoupons(ctx context.Context, page, limit int) ([]*CouponDTO, int64, error) {
	if page < 1 {
		page = defaultPage
	}
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}

	coupons, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}
	return toCouponDTOs(coupons), total, nil
}

// GetActiveCoupons returns the coupons that can be redeemed right now.
func (s *CouponService) GetActiveCoupons(ctx context.Context) ([]*CouponDTO, error) {
	coupons, err := s.repo.FindActive(ctx, s.now())
	if err != nil {
		return nil, err
	}
	return toCouponDTOs(coupons), nil
}

// RecordRedemption consumes one use of a coupon for an order. Repeating the
// call for the same order returns the existing redemption without consuming
// another use.
func (s *CouponService) RecordRedemption(ctx context.Context, couponID, redeemedBy uuid.UUID, req RedeemCouponRequest) (*RedemptionDTO, error) {
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, domain.NewValidationError("order_id is required")
	}
	if len(orderID) > maxOrderIDLen {
		return nil, domain.NewValidationError(fmt.Sprintf("order_id must be at most %d characters", maxOrderIDLen))
	}
	if req.DiscountAmount == nil || req.DiscountAmount.IsNegative() {
		return nil, domain.NewValidationError("discount_amount must be zero or positive")
	}

	if existing, err := s.findRedemption(ctx, couponID, orderID); err != nil || existing != nil {
		return existing, err
	}

	red, err := s.redeemer.RedeemSaga(ctx, couponID, orderID, *req.DiscountAmount, redeemedBy)
	if err != nil {
		// A concurrent call for the same order won the insert.
		if errors.Is(err, domain.ErrConflict) && !errors.Is(err, couponDomain.ErrUsageLimitReached) {
			if existing, ferr := s.findRedemption(ctx, couponID, orderID); ferr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	s.logger.Info("coupon redeemed",
		zap.String("coupon_id", couponID.String()),
		zap.String("order_id", orderID),
		zap.String("discount_amount", red.DiscountAmount.StringFixed(2)),
	)
	return toRedemptionDTO(red), nil
}

// HandleOrderCommitted records the redemption for a committed order that
// carried a coupon. Orders without a coupon are ignored.
func (s *CouponService) HandleOrderCommitted(ctx context.Context, event contracts.OrderCommittedEvent) error {
	couponID := event.CouponID
	if couponID == uuid.Nil {
		if strings.TrimSpace(event.CouponCode) == "" {
			return nil
		}
		c, err := s.repo.FindByCode(ctx, event.CouponCode)
		if err != nil {
			return fmt.Errorf("resolve coupon %s for order %s: %w", event.CouponCode, event.OrderID, err)
		}
		couponID = c.ID()
	}

	discount := event.DiscountAmount
	_, err := s.RecordRedemption(ctx, couponID, event.CommittedBy, RedeemCouponRequest{
		OrderID:        event.OrderID,
		DiscountAmount: &discount,
	})
	if errors.Is(err, couponDomain.ErrUsageLimitReached) {
		// The order is already final; redelivery cannot change the outcome.
		s.logger.Warn("committed order exceeded coupon usage limit",
			zap.String("coupon_id", couponID.String()),
			zap.String("order_id", event.OrderID),
		)
		return nil
	}
	return err
}

// ListRedemptions returns the redemption log of a coupon.
func (s *CouponService) ListRedemptions(ctx context.Context, couponID uuid.UUID) ([]*RedemptionDTO, error) {
	if _, err := s.repo.FindByID(ctx, couponID); err != nil {
		return nil, err
	}

	reds, err := s.repo.ListRedemptions(ctx, couponID)
	if err != nil {
		return nil, err
	}

	dtos := make([]*RedemptionDTO, len(reds))
	for i, r := range reds {
		dtos[i] = toRedemptionDTO(r)
	}
	return dtos, nil
}

func (s *CouponService) findRedemption(ctx context.Context, couponID uuid.UUID, orderID string) (*RedemptionDTO, error) {
	red, err := s.repo.FindRedemption(ctx, couponID, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toRedemptionDTO(red), nil
}

func (s *CouponService) toAttributes(req CouponRequest) (couponDomain.Attributes, error) {
	start, err := s.parseDate(req.StartDate, false)
	if err != nil {
		return couponDomain.Attributes{}, domain.NewValidationError("invalid start_date (use RFC3339 or YYYY-MM-DD)")
	}
	expiry, err := s.parseDate(req.ExpiryDate, true)
	if err != nil {
		return couponDomain.Attributes{}, domain.NewValidationError("invalid expiry_date (use RFC3339 or YYYY-MM-DD)")
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	return couponDomain.Attributes{
		Code:              req.Code,
		Description:       req.Description,
		DiscountType:      couponDomain.DiscountType(strings.ToLower(strings.TrimSpace(req.DiscountType))),
		DiscountValue:     req.DiscountValue,
		MaxDiscountAmount: req.MaxDiscountAmount,
		MinOrderAmount:    req.MinOrderAmount,
		StartDate:         start,
		ExpiryDate:        expiry,
		UsageLimit:        req.UsageLimit,
		IsActive:          active,
	}, nil
}

// parseDate accepts RFC3339 timestamps or plain dates. A plain date is the
// start of that day in the service zone, or its last instant when endOfDay.
func (s *CouponService) parseDate(v string, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, s.loc)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Second)
	}
	return t, nil
}

func toCouponDTO(c *couponDomain.Coupon) *CouponDTO {
	return &CouponDTO{
		ID:                c.ID(),
		Code:              c.Code(),
		Description:       c.Description(),
		DiscountType:      string(c.DiscountType()),
		DiscountValue:     c.DiscountValue().InexactFloat64(),
		MaxDiscountAmount: floatPtr(c.MaxDiscountAmount()),
		MinOrderAmount:    floatPtr(c.MinOrderAmount()),
		StartDate:         c.StartDate(),
		ExpiryDate:        c.ExpiryDate(),
		UsageLimit:        c.UsageLimit(),
		UsageCount:        c.UsageCount(),
		IsActive:          c.IsActive(),
		CreatedBy:         c.CreatedBy(),
		CreatedAt:         c.CreatedAt(),
		UpdatedAt:         c.UpdatedAt(),
	}
}

func toCouponDTOs(coupons []*couponDomain.Coupon) []*CouponDTO {
	dtos := make([]*CouponDTO, len(coupons))
	for i, c := range coupons {
		dtos[i] = toCouponDTO(c)
	}
	return dtos
}

func toRedemptionDTO(r *couponDomain.Redemption) *RedemptionDTO {
	return &RedemptionDTO{
		ID:             r.ID,
		CouponID:       r.CouponID,
		OrderID:        r.OrderID,
		DiscountAmount: r.DiscountAmount.InexactFloat64(),
		RedeemedBy:     r.RedeemedBy,
		RedeemedAt:     r.RedeemedAt,
	}
}

func floatPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}
