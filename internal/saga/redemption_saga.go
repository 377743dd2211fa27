package saga

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	couponDomain "github.com/tablepos/service-coupon/internal/domain/coupon"
	"github.com/tablepos/service-coupon/internal/platform/contracts"
	"github.com/tablepos/service-coupon/internal/platform/kafka"
)

// EventPublisher publishes CloudEvents to a topic.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, ce kafka.CloudEvent) error
}

// RedemptionSagaService records coupon redemptions.
type RedemptionSagaService struct {
	repo      couponDomain.Repository
	publisher EventPublisher
	logger    *zap.Logger
}

// NewRedemptionSagaService creates a new RedemptionSagaService.
func NewRedemptionSagaService(repo couponDomain.Repository, publisher EventPublisher, logger *zap.Logger) *RedemptionSagaService {
	return &RedemptionSagaService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// RedeemSaga claims one use of the coupon and stores the redemption. If
// storing fails the claimed use is given back. Once both steps succeed the
// redemption is final: coupon.redeemed is published afterwards and a publish
// failure is only logged.
func (s *RedemptionSagaService) RedeemSaga(
	ctx context.Context,
	couponID uuid.UUID,
	orderID string,
	discount decimal.Decimal,
	redeemedBy uuid.UUID,
) (*couponDomain.Redemption, error) {
	red := &couponDomain.Redemption{
		ID:             uuid.New(),
		CouponID:       couponID,
		OrderID:        orderID,
		DiscountAmount: discount,
		RedeemedBy:     redeemedBy,
		RedeemedAt:     time.Now().UTC(),
	}

	saga := New("redeem_coupon", s.logger.With(
		zap.String("coupon_id", couponID.String()),
		zap.String("order_id", orderID),
	))

	saga.AddStep(Step{
		Name: "increment_usage",
		Execute: func(ctx context.Context) error {
			return s.repo.IncrementUsage(ctx, couponID)
		},
		Compensate: func(ctx context.Context) error {
			return s.repo.DecrementUsage(ctx, couponID)
		},
	})

	saga.AddStep(Step{
		Name: "save_redemption",
		Execute: func(ctx context.Context) error {
			return s.repo.SaveRedemption(ctx, red)
		},
	})

	if err := saga.Execute(ctx); err != nil {
		s.publishFailedEvent(ctx, couponID, orderID, err.Error())
		return nil, err
	}

	s.publishRedeemedEvent(ctx, red)
	return red, nil
}

func (s *RedemptionSagaService) publishRedeemedEvent(ctx context.Context, red *couponDomain.Redemption) {
	ce, err := kafka.NewCloudEvent(contracts.SourceCouponService, contracts.CouponRedeemed, contracts.CouponRedeemedEvent{
		RedemptionID:   red.ID,
		CouponID:       red.CouponID,
		OrderID:        red.OrderID,
		DiscountAmount: red.DiscountAmount,
		RedeemedBy:     red.RedeemedBy,
		OccurredAt:     red.RedeemedAt,
	})
	if err != nil {
		s.logger.Error("failed to create coupon redeemed cloud event", zap.Error(err))
		return
	}
	ce.Subject = red.CouponID.String()

	if err := s.publisher.PublishEvent(context.WithoutCancel(ctx), contracts.TopicCouponEvents, ce); err != nil {
		s.logger.Error("failed to publish coupon redeemed event",
			zap.String("redemption_id", red.ID.String()),
			zap.String("coupon_id", red.CouponID.String()),
			zap.String("order_id", red.OrderID),
			zap.Error(err),
		)
	}
}

func (s *RedemptionSagaService) publishFailedEvent(ctx context.Context, couponID uuid.UUID, orderID, reason string) {
	ce, err := kafka.NewCloudEvent(contracts.SourceCouponService, contracts.CouponRedemptionFailed, contracts.CouponRedemptionFailedEvent{
		CouponID:   couponID,
		OrderID:    orderID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to create redemption failed cloud event", zap.Error(err))
		return
	}
	ce.Subject = couponID.String()

	if err := s.publisher.PublishEvent(context.WithoutCancel(ctx), contracts.TopicCouponEvents, ce); err != nil {
		s.logger.Error("failed to publish redemption failed event", zap.Error(err))
	}
}
