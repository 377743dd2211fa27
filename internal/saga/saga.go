package saga

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Step is one unit of work in a saga. Compensate may be nil when the step
// has nothing to undo.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Saga runs steps in order and, when one fails, undoes the steps that
// already succeeded in reverse order.
type Saga struct {
	name   string
	steps  []Step
	logger *zap.Logger
}

// New creates a saga.
func New(name string, logger *zap.Logger) *Saga {
	return &Saga{name: name, logger: logger}
}

// AddStep appends a step.
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs the saga. The returned error wraps the failing step's error.
func (s *Saga) Execute(ctx context.Context) error {
	log := s.logger.With(zap.String("saga", s.name))
	log.Debug("saga started")

	for i, step := range s.steps {
		if err := step.Execute(ctx); err != nil {
			log.Warn("saga step failed, compensating",
				zap.String("step", step.Name),
				zap.Error(err),
			)
			s.compensate(ctx, log, i)
			return fmt.Errorf("saga %s failed at step %s: %w", s.name, step.Name, err)
		}
	}

	log.Debug("saga completed")
	return nil
}

// compensate undoes steps [0, failed) in reverse order. Compensation errors
// are logged; the original failure is what the caller sees.
func (s *Saga) compensate(ctx context.Context, log *zap.Logger, failed int) {
	// Compensation must run even if the request context is already gone.
	ctx = context.WithoutCancel(ctx)

	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			log.Error("compensation failed",
				zap.String("step", step.Name),
				zap.Error(err),
			)
		}
	}
}
