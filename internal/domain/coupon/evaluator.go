package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tablepos/service-coupon/internal/platform/domain"
)

// Reason is the machine-readable outcome of an evaluation.
type Reason string

const (
	ReasonOK            Reason = "ok"
	ReasonNotFound      Reason = "not_found"
	ReasonInactive      Reason = "inactive"
	ReasonNotStarted    Reason = "not_started"
	ReasonExpired       Reason = "expired"
	ReasonUsageExceeded Reason = "usage_exceeded"
	ReasonBelowMinimum  Reason = "below_minimum"
	ReasonStorageError  Reason = "storage_error"
)

const (
	msgApplied       = "Coupon applied successfully"
	msgNotFound      = "Invalid coupon code"
	msgInactive      = "This coupon is inactive"
	msgNotStarted    = "This coupon is not valid until "
	msgExpired       = "This coupon has expired"
	msgUsageExceeded = "This coupon has reached its usage limit"
	msgBelowMinimum  = "Minimum order amount is Rs"
	msgStorageError  = "Error validating coupon"

	startDateLayout = "02 Jan 2006"
)

// Item is a cart line. Items are accepted with a request but do not take
// part in the discount arithmetic.
type Item struct {
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// EvaluationRequest is the input to Evaluate.
type EvaluationRequest struct {
	Code        string
	OrderAmount decimal.Decimal
	Items       []Item
}

// Result is the outcome of Evaluate. Coupon and DiscountAmount are set only
// when Valid is true. Cause holds the underlying storage error for
// ReasonStorageError results so the caller can log it.
type Result struct {
	Valid          bool
	Reason         Reason
	Message        string
	Coupon         *Coupon
	DiscountAmount *decimal.Decimal
	Cause          error
}

// Evaluator decides whether a coupon applies to an order.
type Evaluator struct {
	store Finder
	now   func() time.Time
	loc   *time.Location
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// WithLocation sets the zone used to format dates in messages.
func WithLocation(loc *time.Location) EvaluatorOption {
	return func(e *Evaluator) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// NewEvaluator creates an Evaluator reading coupons from store.
func NewEvaluator(store Finder, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{store: store, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the eligibility checks in order and stops at the first
// failure. It never returns an error: storage faults become a
// ReasonStorageError result.
func (e *Evaluator) Evaluate(ctx context.Context, req EvaluationRequest) Result {
	code := NormalizeCode(req.Code)
	if code == "" {
		return reject(ReasonNotFound, msgNotFound)
	}

	c, err := e.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return reject(ReasonNotFound, msgNotFound)
		}
		return storageFailure(err)
	}
	if c == nil {
		return reject(ReasonNotFound, msgNotFound)
	}

	now := e.now()
	switch {
	case !c.IsActive():
		return reject(ReasonInactive, msgInactive)
	case !c.InWindow(now):
		if now.Before(c.StartDate()) {
			return reject(ReasonNotStarted, msgNotStarted+c.StartDate().In(e.loc).Format(startDateLayout))
		}
		return reject(ReasonExpired, msgExpired)
	case c.UsageExhausted():
		return reject(ReasonUsageExceeded, msgUsageExceeded)
	case c.MinOrderAmount() != nil && req.OrderAmount.LessThan(*c.MinOrderAmount()):
		return reject(ReasonBelowMinimum, msgBelowMinimum+c.MinOrderAmount().String())
	}

	discount, err := c.DiscountFor(req.OrderAmount)
	if err != nil {
		return storageFailure(err)
	}

	return Result{
		Valid:          true,
		Reason:         ReasonOK,
		Message:        msgApplied,
		Coupon:         c,
		DiscountAmount: &discount,
	}
}

func reject(reason Reason, msg string) Result {
	return Result{Valid: false, Reason: reason, Message: msg}
}

func storageFailure(cause error) Result {
	return Result{Valid: false, Reason: ReasonStorageError, Message: msgStorageError, Cause: cause}
}
