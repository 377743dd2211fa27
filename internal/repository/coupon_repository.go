package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	couponDomain "github.com/tablepos/service-coupon/internal/domain/coupon"
	"github.com/tablepos/service-coupon/internal/platform/domain"
)

// CouponModel is the GORM model for the coupons table.
type CouponModel struct {
	ID                uuid.UUID           `gorm:"type:uuid;primaryKey"`
	Code              string              `gorm:"type:varchar(50);uniqueIndex;not null"`
	Description       string              `gorm:"type:text;not null"`
	DiscountType      string              `gorm:"type:varchar(20);not null"`
	DiscountValue     decimal.Decimal     `gorm:"type:numeric(12,2);not null"`
	MaxDiscountAmount decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	MinOrderAmount    decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	StartDate         time.Time           `gorm:"not null"`
	ExpiryDate        time.Time           `gorm:"not null"`
	UsageLimit        *int
	UsageCount        int       `gorm:"not null;default:0"`
	IsActive          bool      `gorm:"not null"`
	CreatedBy         uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName sets the table name.
func (CouponModel) TableName() string { return "coupons" }

// RedemptionModel is the GORM model for the coupon_redemptions table.
type RedemptionModel struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CouponID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_redemptions_coupon_order"`
	OrderID        string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_coupon_redemptions_coupon_order"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	RedeemedBy     uuid.UUID       `gorm:"type:uuid"`
	RedeemedAt     time.Time       `gorm:"not null"`
}

// TableName sets the table name.
func (RedemptionModel) TableName() string { return "coupon_redemptions" }

// editableColumns are written by Update. usage_count is not among them;
// it only moves through IncrementUsage/DecrementUsage.
var editableColumns = []string{
	"code", "description", "discount_type", "discount_value",
	"max_discount_amount", "min_order_amount", "start_date", "expiry_date",
	"usage_limit", "is_active", "updated_at",
}

// GormCouponRepository implements coupon.Repository using GORM.
type GormCouponRepository struct {
	db *gorm.DB
}

var _ couponDomain.Repository = (*GormCouponRepository)(nil)

// NewGormCouponRepository creates a new GormCouponRepository.
func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

// Save persists a new coupon.
func (r *GormCouponRepository) Save(ctx context.Context, c *couponDomain.Coupon) error {
	model := toCouponModel(c)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError(fmt.Sprintf("coupon code %s already exists", c.Code()))
		}
		return fmt.Errorf("save coupon: %w", err)
	}
	return nil
}

// Update persists the editable fields of a coupon.
func (r *GormCouponRepository) Update(ctx context.Context, c *couponDomain.Coupon) error {
	model := toCouponModel(c)
	result := r.db.WithContext(ctx).
		Model(&model).
		Select(editableColumns).
		Updates(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError(fmt.Sprintf("coupon code %s already exists", c.Code()))
		}
		return fmt.Errorf("update coupon: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.NewNotFoundError("Coupon", c.ID().String())
	}
	return nil
}

// Delete removes a coupon and its redemption log.
func (r *GormCouponRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("coupon_id = ?", id).Delete(&RedemptionModel{}).Error; err != nil {
			return fmt.Errorf("delete redemptions: %w", err)
		}
		result := tx.Where("id = ?", id).Delete(&CouponModel{})
		if result.Error != nil {
			return fmt.Errorf("delete coupon: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.NewNotFoundError("Coupon", id.String())
		}
		return nil
	})
}

// FindByCode returns a coupon by its code, case-insensitively.
func (r *GormCouponRepository) FindByCode(ctx context.Context, code string) (*couponDomain.Coupon, error) {
	code = couponDomain.NormalizeCode(code)
	var model CouponModel
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Coupon", code)
		}
		return nil, fmt.Errorf("find coupon by code: %w", err)
	}
	return toCouponDomain(&model), nil
}

// FindByID returns a coupon by ID.
func (r *GormCouponRepository) FindByID(ctx context.Context, id uuid.UUID) (*couponDomain.Coupon, error) {
	var model CouponModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Coupon", id.String())
		}
		return nil, fmt.Errorf("find coupon by id: %w", err)
	}
	return toCouponDomain(&model), nil
}

// List returns one page of coupons, newest first, plus the total count.
func (r *GormCouponRepository) List(ctx context.Context, page, limit int) ([]*couponDomain.Coupon, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&CouponModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count coupons: %w", err)
	}

	var models []CouponModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("list coupons: %w", err)
	}

	coupons := make([]*couponDomain.Coupon, len(models))
	for i := range models {
		coupons[i] = toCouponDomain(&models[i])
	}
	return coupons, total, nil
}

// FindActive returns coupons that are switched on, inside their window at
// now and not yet exhausted.
func (r *GormCouponRepository) FindActive(ctx context.Context, now time.Time) ([]*couponDomain.Coupon, error) {
	var models []CouponModel
	now = now.UTC()
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("start_date <= ? AND expiry_date >= ?", now, now).
		Where("usage_limit IS NULL OR usage_count < usage_limit").
		Order("expiry_date ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("find active coupons: %w", err)
	}

	coupons := make([]*couponDomain.Coupon, len(models))
	for i := range models {
		coupons[i] = toCouponDomain(&models[i])
	}
	return coupons, nil
}

// IncrementUsage adds one to usage_count in a single conditional UPDATE so
// concurrent redemptions can never exceed usage_limit.
func (r *GormCouponRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&CouponModel{}).
		Where("id = ?", id).
		Where("usage_limit IS NULL OR usage_count < usage_limit").
		UpdateColumns(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + 1"),
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("increment coupon usage: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return domain.NewNotFoundError("Coupon", id.String())
	}
	return couponDomain.ErrUsageLimitReached
}

// DecrementUsage reverses one IncrementUsage.
func (r *GormCouponRepository) DecrementUsage(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&CouponModel{}).
		Where("id = ? AND usage_count > 0", id).
		UpdateColumns(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count - 1"),
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("decrement coupon usage: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return nil
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return domain.NewNotFoundError("Coupon", id.String())
	}
	return domain.NewConflictError("coupon usage count is already zero")
}

// SaveRedemption persists a redemption record. A second redemption of the
// same coupon for the same order is a conflict.
func (r *GormCouponRepository) SaveRedemption(ctx context.Context, red *couponDomain.Redemption) error {
	model := RedemptionModel{
		ID:             red.ID,
		CouponID:       red.CouponID,
		OrderID:        red.OrderID,
		DiscountAmount: red.DiscountAmount,
		RedeemedBy:     red.RedeemedBy,
		RedeemedAt:     red.RedeemedAt,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.NewConflictError(fmt.Sprintf("order %s already redeemed this coupon", red.OrderID))
		}
		return fmt.Errorf("save redemption: %w", err)
	}
	return nil
}

// FindRedemption returns the redemption of a coupon for one order.
func (r *GormCouponRepository) FindRedemption(ctx context.Context, couponID uuid.UUID, orderID string) (*couponDomain.Redemption, error) {
	var model RedemptionModel
	if err := r.db.WithContext(ctx).
		Where("coupon_id = ? AND order_id = ?", couponID, orderID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Redemption", orderID)
		}
		return nil, fmt.Errorf("find redemption: %w", err)
	}
	return toRedemptionDomain(&model), nil
}

// ListRedemptions returns a coupon's redemptions, newest first.
func (r *GormCouponRepository) ListRedemptions(ctx context.Context, couponID uuid.UUID) ([]*couponDomain.Redemption, error) {
	var models []RedemptionModel
	if err := r.db.WithContext(ctx).
		Where("coupon_id = ?", couponID).
		Order("redeemed_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}

	out := make([]*couponDomain.Redemption, len(models))
	for i := range models {
		out[i] = toRedemptionDomain(&models[i])
	}
	return out, nil
}

func (r *GormCouponRepository) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&CouponModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check coupon exists: %w", err)
	}
	return count > 0, nil
}

func toCouponModel(c *couponDomain.Coupon) CouponModel {
	return CouponModel{
		ID:                c.ID(),
		Code:              c.Code(),
		Description:       c.Description(),
		DiscountType:      string(c.DiscountType()),
		DiscountValue:     c.DiscountValue(),
		MaxDiscountAmount: toNullDecimal(c.MaxDiscountAmount()),
		MinOrderAmount:    toNullDecimal(c.MinOrderAmount()),
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

func toCouponDomain(m *CouponModel) *couponDomain.Coupon {
	return couponDomain.Reconstruct(
		m.ID,
		couponDomain.Attributes{
			Code:              m.Code,
			Description:       m.Description,
			DiscountType:      couponDomain.DiscountType(m.DiscountType),
			DiscountValue:     m.DiscountValue,
			MaxDiscountAmount: fromNullDecimal(m.MaxDiscountAmount),
			MinOrderAmount:    fromNullDecimal(m.MinOrderAmount),
			StartDate:         m.StartDate,
			ExpiryDate:        m.ExpiryDate,
			UsageLimit:        m.UsageLimit,
			IsActive:          m.IsActive,
		},
		m.UsageCount,
		m.CreatedBy,
		m.CreatedAt,
		m.UpdatedAt,
	)
}

func toRedemptionDomain(m *RedemptionModel) *couponDomain.Redemption {
	return &couponDomain.Redemption{
		ID:             m.ID,
		CouponID:       m.CouponID,
		OrderID:        m.OrderID,
		DiscountAmount: m.DiscountAmount,
		RedeemedBy:     m.RedeemedBy,
		RedeemedAt:     m.RedeemedAt,
	}
}

func toNullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}
