package chore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/choreflow/internal/model"
)

// Tick runs one pass of the reset and overdue drivers over every instance.
// For each instance the reset boundary is applied before the overdue
// check. Chores are processed concurrently; a failing instance does not
// stop the others and every failure is returned.
func (e *Engine) Tick(ctx context.Context) error {
	defs, err := e.store.ListDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("tick: list definitions: %w", err)
	}

	var (
		mu   sync.Mutex
		errs error
	)
	var g errgroup.Group
	g.SetLimit(e.cfg.TickConcurrency)
	for _, def := range defs {
		g.Go(func() error {
			for _, key := range instanceKeys(&def) {
				if err := e.tickInstance(ctx, key); err != nil {
					mu.Lock()
					errs = multierr.Append(errs, err)
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (e *Engine) tickInstance(ctx context.Context, key model.InstanceKey) error {
	b := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		_, err := e.mutate(ctx, "tick", key, func(def *model.ChoreDefinition, inst *model.ChoreInstance, tx *txn) error {
			e.applyBoundary(def, inst, tx)
			e.checkOverdue(def, inst, tx)
			return nil
		})
		if IsRetryable(err) {
			e.logger.Debug("tick retrying instance", "instance", key.String(), "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	// The chore was edited or removed since the definitions were listed.
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
