//go:build integration

package main_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	couponDomain "github.com/tablepos/service-coupon/internal/domain/coupon"
	"github.com/tablepos/service-coupon/internal/platform/contracts"
	"github.com/tablepos/service-coupon/internal/platform/domain"
	"github.com/tablepos/service-coupon/internal/repository"
)

// TestOrderCommitted_RecordsRedemption verifies that an order.committed event
// on order.events consumes one use of the coupon, logs the redemption and
// publishes coupon.redeemed.
func TestOrderCommitted_RecordsRedemption(t *testing.T) {
	db := startPostgres(t)
	brokers := startKafka(t)
	stack := setupCouponStack(t, db, brokers)

	c := seedCoupon(t, stack.Repo, "DINNER50", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = stack.Consumer.Start(ctx) }()
	time.Sleep(3 * time.Second) // Wait for consumer group join.

	evt := contracts.OrderCommittedEvent{
		OrderID:        "ORD-INT-001",
		CouponCode:     "dinner50",
		OrderAmount:    decimal.NewFromInt(900),
		DiscountAmount: decimal.NewFromInt(50),
		OccurredAt:     time.Now().UTC(),
	}
	publishTestEvent(t, brokers, contracts.TopicOrderEvents, "service-order", contracts.OrderCommitted, evt)
	// Redelivery of the same order must not consume a second use.
	publishTestEvent(t, brokers, contracts.TopicOrderEvents, "service-order", contracts.OrderCommitted, evt)

	waitForUsageCount(t, stack.Repo, c.ID(), 1, 15*time.Second)

	ce := consumeOneEvent(t, brokers, contracts.TopicCouponEvents, contracts.CouponRedeemed, 15*time.Second)
	var redeemed contracts.CouponRedeemedEvent
	require.NoError(t, ce.ParseData(&redeemed))
	assert.Equal(t, c.ID(), redeemed.CouponID)
	assert.Equal(t, "ORD-INT-001", redeemed.OrderID)
	assert.True(t, redeemed.DiscountAmount.Equal(decimal.NewFromInt(50)))

	time.Sleep(2 * time.Second)
	got, err := stack.Repo.FindByID(context.Background(), c.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount())

	reds, err := stack.Repo.ListRedemptions(context.Background(), c.ID())
	require.NoError(t, err)
	assert.Len(t, reds, 1)
}

// TestConcurrentIncrement_NeverExceedsLimit hammers the conditional UPDATE
// from many connections at once.
func TestConcurrentIncrement_NeverExceedsLimit(t *testing.T) {
	db := startPostgres(t)
	repo := repository.NewGormCouponRepository(db)

	const limit, workers = 10, 50
	l := limit
	c := seedCoupon(t, repo, "RUSH", &l)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := repo.IncrementUsage(context.Background(), c.ID())
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, couponDomain.ErrUsageLimitReached):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(limit), succeeded.Load())
	assert.Equal(t, int32(workers-limit), rejected.Load())

	got, err := repo.FindByID(context.Background(), c.ID())
	require.NoError(t, err)
	assert.Equal(t, limit, got.UsageCount())
}

// TestPostgres_UniqueConstraints verifies that the migrated schema reports
// duplicates as domain conflicts.
func TestPostgres_UniqueConstraints(t *testing.T) {
	db := startPostgres(t)
	repo := repository.NewGormCouponRepository(db)
	ctx := context.Background()

	c := seedCoupon(t, repo, "ONLYONE", nil)

	dup, err := couponDomain.NewCoupon(c.Attributes(), uuid.New())
	require.NoError(t, err)
	err = repo.Save(ctx, dup)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	red := &couponDomain.Redemption{
		ID:             uuid.New(),
		CouponID:       c.ID(),
		OrderID:        "ORD-1",
		DiscountAmount: decimal.NewFromInt(50),
		RedeemedAt:     time.Now().UTC(),
	}
	require.NoError(t, repo.SaveRedemption(ctx, red))
	red.ID = uuid.New()
	err = repo.SaveRedemption(ctx, red)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

// TestCachedRepository_ReadThroughAndInvalidation verifies the redis cache
// serves repeat lookups and drops the entry when usage changes.
func TestCachedRepository_ReadThroughAndInvalidation(t *testing.T) {
	db := startPostgres(t)
	rdb := startRedis(t)
	ctx := context.Background()

	repo := repository.NewCachedCouponRepository(repository.NewGormCouponRepository(db), rdb, time.Minute, zap.NewNop())
	c := seedCoupon(t, repo, "CACHED", nil)

	first, err := repo.FindByCode(ctx, "cached")
	require.NoError(t, err)
	assert.Equal(t, 0, first.UsageCount())

	n, err := rdb.Exists(ctx, "coupon:code:CACHED").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, repo.IncrementUsage(ctx, c.ID()))

	n, err = rdb.Exists(ctx, "coupon:code:CACHED").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	second, err := repo.FindByCode(ctx, "CACHED")
	require.NoError(t, err)
	assert.Equal(t, 1, second.UsageCount())
	assert.True(t, second.DiscountValue().Equal(decimal.NewFromInt(50)))

	require.NoError(t, repo.Delete(ctx, c.ID()))
	_, err = repo.FindByCode(ctx, "CACHED")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

// loadHookRepo runs afterLoad once, after the database read and before the
// caller gets the row back.
type loadHookRepo struct {
	couponDomain.Repository
	afterLoad func()
	once      sync.Once
}

func (r *loadHookRepo) FindByCode(ctx context.Context, code string) (*couponDomain.Coupon, error) {
	c, err := r.Repository.FindByCode(ctx, code)
	r.once.Do(func() {
		if r.afterLoad != nil {
			r.afterLoad()
		}
	})
	return c, err
}

// TestCachedRepository_StaleFillIsDiscarded verifies that a row loaded before
// a concurrent usage increment is not written to redis after the increment
// invalidated the entry.
func TestCachedRepository_StaleFillIsDiscarded(t *testing.T) {
	db := startPostgres(t)
	rdb := startRedis(t)
	ctx := context.Background()

	gormRepo := repository.NewGormCouponRepository(db)
	hooked := &loadHookRepo{Repository: gormRepo}
	repo := repository.NewCachedCouponRepository(hooked, rdb, time.Minute, zap.NewNop())

	limit := 1
	c := seedCoupon(t, gormRepo, "RACE", &limit)
	hooked.afterLoad = func() {
		require.NoError(t, repo.IncrementUsage(ctx, c.ID()))
	}

	stale, err := repo.FindByCode(ctx, "RACE")
	require.NoError(t, err)
	assert.Equal(t, 0, stale.UsageCount())

	n, err := rdb.Exists(ctx, "coupon:code:RACE").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "stale row must not be cached")

	fresh, err := repo.FindByCode(ctx, "RACE")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.UsageCount())
	assert.True(t, fresh.UsageExhausted())

	n, err = rdb.Exists(ctx, "coupon:code:RACE").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
