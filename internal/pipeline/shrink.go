package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/deusflow/opbop/internal/apperr"
	"github.com/deusflow/opbop/internal/completion"
	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/retry"
	"github.com/deusflow/opbop/internal/summarize"
	"github.com/deusflow/opbop/internal/textutil"
)

// simplify sends text to the completion service for a rewrite and a
// rating. It returns the result together with the text that was accepted,
// which is shorter than text when the service asked for less input.
func (o *Orchestrator) simplify(ctx context.Context, text string, log *slog.Logger) (model.SimplificationResult, string, error) {
	var res model.SimplificationResult

	accepted, err := o.shrinkRetry(ctx, "simplify", text, log, func(ctx context.Context, in string) error {
		out, err := o.completion.Simplify(ctx, in)
		if err != nil {
			return err
		}
		res.Simplified = out
		return nil
	})
	if err != nil {
		return res, "", err
	}

	_, err = o.shrinkRetry(ctx, "moderate", accepted, log, func(ctx context.Context, in string) error {
		s, err := o.completion.Moderate(ctx, in)
		if err != nil {
			return err
		}
		if !s.Valid() {
			return fmt.Errorf("sensitivity %d out of range", s)
		}
		res.Sensitivity = s
		return nil
	})
	if err != nil {
		return res, "", err
	}

	return res, accepted, nil
}

// shrinkRetry calls fn with text, re-summarizing the previous input each
// time fn reports completion.ErrInputTooLarge. It gives up with an
// irreducible-text error when summarizing stops making the input shorter or
// the attempt limit is reached.
func (o *Orchestrator) shrinkRetry(ctx context.Context, op, text string, log *slog.Logger, fn func(ctx context.Context, in string) error) (string, error) {
	current := text

	err := retry.WithRetry(ctx, retry.RetryConfig{
		MaxAttempts: o.opts.MaxShrinkAttempts,
		Retryable: func(err error) bool {
			return errors.Is(err, completion.ErrInputTooLarge)
		},
	}, func(attempt int) error {
		if attempt > 1 {
			shorter, err := summarize.Summarize(current)
			if err != nil {
				return err
			}
			before, after := textutil.RuneLen(current), textutil.RuneLen(shorter.Text)
			if after >= before {
				return apperr.E(apperr.KindIrreducibleText, op,
					fmt.Errorf("summary cannot shrink below %d characters", before))
			}
			o.metrics.IncrementShrinkRetries()
			log.Info("input too large, shrinking", "op", op, "attempt", attempt, "from", before, "to", after)
			current = shorter.Text
		}

		callCtx, cancel := withTimeout(ctx, o.opts.Timeouts.Completion)
		defer cancel()
		return fn(callCtx, current)
	})

	switch {
	case err == nil:
		return current, nil
	case errors.Is(err, retry.ErrExhausted):
		return "", apperr.E(apperr.KindIrreducibleText, op,
			fmt.Errorf("input still too large after %d attempts", o.opts.MaxShrinkAttempts))
	default:
		return "", apperr.Dependency(op, err)
	}
}
