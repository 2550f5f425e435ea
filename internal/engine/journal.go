package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type undoStep struct {
	name string
	fn   func(ctx context.Context) error
}

// journal records compensating actions for side effects already performed in
// the current operation. rollback runs them newest first.
type journal struct {
	steps  []undoStep
	logger *slog.Logger
}

func (j *journal) push(name string, fn func(ctx context.Context) error) {
	j.steps = append(j.steps, undoStep{name: name, fn: fn})
}

// rollback unwinds every step and returns cause, joined with any compensation
// failure. Compensations ignore cancellation of the caller's context.
func (j *journal) rollback(ctx context.Context, cause error) error {
	ctx = context.WithoutCancel(ctx)

	var failed []error
	for i := len(j.steps) - 1; i >= 0; i-- {
		step := j.steps[i]
		if err := step.fn(ctx); err != nil {
			j.logger.Error("ROLLBACK_STEP_FAILED",
				slog.String("step", step.name),
				slog.Any("cause", cause),
				slog.Any("error", err))
			failed = append(failed, fmt.Errorf("undo %s: %w", step.name, err))
		}
	}
	j.steps = nil

	if len(failed) == 0 {
		return cause
	}
	return errors.Join(append([]error{cause}, failed...)...)
}
