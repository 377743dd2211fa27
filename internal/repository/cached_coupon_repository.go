package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	couponDomain "github.com/tablepos/service-coupon/internal/domain/coupon"
)

const (
	couponCodeKeyPrefix = "coupon:code:"
	couponGenKeyPrefix  = "coupon:gen:"

	// generation keys outlive any entry they guard.
	couponGenTTL = 24 * time.Hour
)

var errStaleFill = errors.New("coupon changed while loading")

// cachedCoupon is the redis representation of a coupon.
type cachedCoupon struct {
	ID                uuid.UUID        `json:"id"`
	Code              string           `json:"code"`
	Description       string           `json:"description"`
	DiscountType      string           `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"`
	MinOrderAmount    *decimal.Decimal `json:"min_order_amount,omitempty"`
	StartDate         time.Time        `json:"start_date"`
	ExpiryDate        time.Time        `json:"expiry_date"`
	UsageLimit        *int             `json:"usage_limit,omitempty"`
	UsageCount        int              `json:"usage_count"`
	IsActive          bool             `json:"is_active"`
	CreatedBy         uuid.UUID        `json:"created_by"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// CachedCouponRepository wraps a coupon.Repository with a redis read-through
// cache for FindByCode. Every write bumps the coupon's generation key and
// drops the cached entry; a fill only lands if the generation it read before
// loading is still current. Redis failures are logged and fall through to the
// wrapped repository.
type CachedCouponRepository struct {
	couponDomain.Repository
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

var _ couponDomain.Repository = (*CachedCouponRepository)(nil)

// NewCachedCouponRepository creates a new CachedCouponRepository.
func NewCachedCouponRepository(inner couponDomain.Repository, rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *CachedCouponRepository {
	return &CachedCouponRepository{
		Repository: inner,
		rdb:        rdb,
		ttl:        ttl,
		logger:     logger,
	}
}

func codeKey(code string) string {
	return couponCodeKeyPrefix + couponDomain.NormalizeCode(code)
}

func genKey(code string) string {
	return couponGenKeyPrefix + couponDomain.NormalizeCode(code)
}

// FindByCode serves from redis when possible.
func (r *CachedCouponRepository) FindByCode(ctx context.Context, code string) (*couponDomain.Coupon, error) {
	key := codeKey(code)

	gen, genErr := r.rdb.Get(ctx, genKey(code)).Result()
	if errors.Is(genErr, redis.Nil) {
		genErr = nil
	}

	raw, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cc cachedCoupon
		if uerr := json.Unmarshal(raw, &cc); uerr == nil {
			return fromCached(&cc), nil
		}
		r.logger.Warn("discarding unreadable cached coupon", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("coupon cache read failed", zap.String("key", key), zap.Error(err))
	}

	c, err := r.Repository.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if genErr != nil {
		return c, nil
	}
	payload, err := json.Marshal(toCached(c))
	if err != nil {
		return c, nil
	}
	r.fill(ctx, code, gen, payload)
	return c, nil
}

// fill stores payload unless the coupon's generation moved past gen.
func (r *CachedCouponRepository) fill(ctx context.Context, code, gen string, payload []byte) {
	key, gkey := codeKey(code), genKey(code)

	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, gkey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}, gkey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		r.logger.Debug("skipping stale coupon cache fill", zap.String("key", key))
	default:
		r.logger.Warn("coupon cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Save persists a coupon and drops any stale entry under its code.
func (r *CachedCouponRepository) Save(ctx context.Context, c *couponDomain.Coupon) error {
	if err := r.Repository.Save(ctx, c); err != nil {
		return err
	}
	r.invalidate(ctx, c.Code())
	return nil
}

// Update persists a coupon. Both the old and the new code are dropped since
// an update may rename the coupon.
func (r *CachedCouponRepository) Update(ctx context.Context, c *couponDomain.Coupon) error {
	var oldCode string
	if prev, err := r.Repository.FindByID(ctx, c.ID()); err == nil {
		oldCode = prev.Code()
	}
	if err := r.Repository.Update(ctx, c); err != nil {
		return err
	}
	r.invalidate(ctx, c.Code(), oldCode)
	return nil
}

// Delete removes a coupon and its cache entry.
func (r *CachedCouponRepository) Delete(ctx context.Context, id uuid.UUID) error {
	code := r.codeFor(ctx, id)
	if err := r.Repository.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, code)
	return nil
}

// IncrementUsage delegates the atomic increment and drops the cached entry
// so the evaluator sees the new usage count.
func (r *CachedCouponRepository) IncrementUsage(ctx context.Context, id uuid.UUID) error {
	if err := r.Repository.IncrementUsage(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, r.codeFor(ctx, id))
	return nil
}

// DecrementUsage delegates and drops the cached entry.
func (r *CachedCouponRepository) DecrementUsage(ctx context.Context, id uuid.UUID) error {
	if err := r.Repository.DecrementUsage(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, r.codeFor(ctx, id))
	return nil
}

func (r *CachedCouponRepository) codeFor(ctx context.Context, id uuid.UUID) string {
	c, err := r.Repository.FindByID(ctx, id)
	if err != nil {
		return ""
	}
	return c.Code()
}

func (r *CachedCouponRepository) invalidate(ctx context.Context, codes ...string) {
	live := make([]string, 0, len(codes))
	for _, code := range codes {
		if code != "" {
			live = append(live, code)
		}
	}
	if len(live) == 0 {
		return
	}

	keys := make([]string, 0, len(live))
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, code := range live {
			pipe.Incr(ctx, genKey(code))
			pipe.Expire(ctx, genKey(code), couponGenTTL)
			pipe.Del(ctx, codeKey(code))
			keys = append(keys, codeKey(code))
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("coupon cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func toCached(c *couponDomain.Coupon) cachedCoupon {
	return cachedCoupon{
		ID:                c.ID(),
		Code:              c.Code(),
		Description:       c.Description(),
		DiscountType:      string(c.DiscountType()),
		DiscountValue:     c.DiscountValue(),
		MaxDiscountAmount: c.MaxDiscountAmount(),
		MinOrderAmount:    c.MinOrderAmount(),
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

func fromCached(cc *cachedCoupon) *couponDomain.Coupon {
	return couponDomain.Reconstruct(
		cc.ID,
		couponDomain.Attributes{
			Code:              cc.Code,
			Description:       cc.Description,
			DiscountType:      couponDomain.DiscountType(cc.DiscountType),
			DiscountValue:     cc.DiscountValue,
			MaxDiscountAmount: cc.MaxDiscountAmount,
			MinOrderAmount:    cc.MinOrderAmount,
			StartDate:         cc.StartDate,
			ExpiryDate:        cc.ExpiryDate,
			UsageLimit:        cc.UsageLimit,
			IsActive:          cc.IsActive,
		},
		cc.UsageCount,
		cc.CreatedBy,
		cc.CreatedAt,
		cc.UpdatedAt,
	)
}
