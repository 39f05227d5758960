package baseline

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// DefaultInterval is the observer's poll interval when none is set.
const DefaultInterval = 30 * time.Second

// Locker is a lock whose acquisition can be abandoned.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock()
}

// Target receives the observer's findings. BaselineMissing and
// BaselineChanged are called with the observer's Lock held.
type Target interface {
	// CurrentBaseline returns the item the target currently diffs against.
	CurrentBaseline() *Item
	// BaselineMissing is called when the path no longer has a baseline.
	BaselineMissing(ctx context.Context)
	// BaselineChanged is called with a newly fetched item.
	BaselineChanged(ctx context.Context, item *Item) error
	// ObserverFailed reports an unexpected failure. The observer stops
	// unless it returns true.
	ObserverFailed(err error) (handled bool)
}

// Observer polls the baseline of one local path.
type Observer struct {
	Provider  *Provider
	LocalPath string
	Target    Target
	// Lock is the target's critical section.
	Lock Locker
	// Slots, if set, bounds how many cycles run at once across observers.
	// A slot is held only while a cycle runs.
	Slots    Locker
	Interval time.Duration
	Logger   *slog.Logger
}

var errMissing = errors.New("baseline missing")

// Run polls until ctx is cancelled, the baseline goes missing, or an
// unhandled failure occurs. Cancellation and a missing baseline return nil.
func (o *Observer) Run(ctx context.Context) error {
	interval := o.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		err := o.cycle(ctx, logger)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, errMissing):
			return nil
		default:
			if !o.Target.ObserverFailed(err) {
				logger.Error("baseline observer stopped", "path", o.LocalPath, "error", err)
				return err
			}
		}
		timer.Reset(interval)
	}
}

func (o *Observer) cycle(ctx context.Context, logger *slog.Logger) error {
	if o.Slots != nil {
		if err := o.Slots.Lock(ctx); err != nil {
			return err
		}
		defer o.Slots.Unlock()
	}

	item, resolveErr := o.Provider.Resolve(ctx, o.LocalPath)
	if errors.Is(resolveErr, ErrServiceUnavailable) {
		logger.Debug("baseline service unavailable, skipping poll", "path", o.LocalPath, "error", resolveErr)
		return nil
	}
	if resolveErr != nil && !errors.Is(resolveErr, ErrNotFound) {
		return resolveErr
	}

	if err := o.Lock.Lock(ctx); err != nil {
		return err
	}
	defer o.Lock.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	if resolveErr != nil {
		logger.Info("baseline no longer mapped", "path", o.LocalPath)
		o.Target.BaselineMissing(ctx)
		return errMissing
	}

	if item.Same(o.Target.CurrentBaseline()) {
		return nil
	}

	fetched, err := o.Provider.Fetch(ctx, item)
	if err != nil {
		return err
	}
	logger.Debug("baseline changed", "path", o.LocalPath, "commit", fetched.CommitTime)
	return o.Target.BaselineChanged(ctx, fetched)
}
