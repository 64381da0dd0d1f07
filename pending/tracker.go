package pending

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/chatrelay/observability"
)

// Config holds tracker configuration.
type Config struct {
	// Timeout is how long a submission may wait for its confirmation.
	// Zero disables the sweep loop.
	Timeout time.Duration

	// SweepInterval is how often expired entries are collected.
	SweepInterval time.Duration

	// BatchSize caps the entries collected per sweep iteration.
	BatchSize int

	// MaxPending caps the number of tracked entries. Zero means unbounded.
	MaxPending int

	Metrics *observability.Metrics
}

// Tracker records submissions, resolves them on confirmation, and sweeps the
// ones that never get confirmed.
type Tracker struct {
	store  Store
	config Config
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTracker creates a tracker over store.
func NewTracker(store Store, cfg Config, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	return &Tracker{
		store:  store,
		config: cfg,
		logger: logger.With("component", "pending"),
	}
}

// Start begins the sweep loop.
func (t *Tracker) Start(ctx context.Context) {
	if t.config.Timeout <= 0 {
		return
	}
	ctx, t.cancel = context.WithCancel(ctx)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.sweepLoop(ctx)
	}()
}

// Stop cancels the sweep loop and waits for it to exit.
func (t *Tracker) Stop(_ context.Context) {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

// Track records a submission. It reports false without error when the
// tracker is full; the submission should still be delivered.
func (t *Tracker) Track(ctx context.Context, e *Entry) (bool, error) {
	if t.config.MaxPending > 0 {
		n, err := t.store.CountPending(ctx)
		if err != nil {
			return false, err
		}
		if n >= int64(t.config.MaxPending) {
			t.logger.WarnContext(ctx, "pending table full, submission not tracked",
				"uid", e.UID, "user", e.UserName, "max", t.config.MaxPending)
			return false, nil
		}
	}

	if err := t.store.Track(ctx, e); err != nil {
		return false, err
	}
	t.refreshGauge(ctx)
	return true, nil
}

// Resolve removes the entry for uid. ErrNotFound means the confirmation
// arrived for a submission that was never tracked, already resolved, or
// already expired.
func (t *Tracker) Resolve(ctx context.Context, uid string) (*Entry, error) {
	e, err := t.store.Resolve(ctx, uid)
	if err != nil {
		return nil, err
	}
	t.logger.DebugContext(ctx, "submission confirmed",
		"uid", uid, "user", e.UserName, "submission_id", e.SubmissionID,
		"wait_ms", time.Since(e.SubmittedAt).Milliseconds())
	t.refreshGauge(ctx)
	return e, nil
}

// Lookup returns the entry for uid if its submission is still awaiting a
// confirmation.
func (t *Tracker) Lookup(ctx context.Context, uid string) (*Entry, error) {
	return t.store.Get(ctx, uid)
}

// Discard drops the entry for uid without treating it as confirmed, e.g.
// after the submission itself failed.
func (t *Tracker) Discard(ctx context.Context, uid string) {
	if _, err := t.store.Resolve(ctx, uid); err != nil && !errors.Is(err, ErrNotFound) {
		t.logger.ErrorContext(ctx, "discard pending submission failed", "uid", uid, "error", err)
		return
	}
	t.refreshGauge(ctx)
}

// Pending returns the number of tracked submissions.
func (t *Tracker) Pending(ctx context.Context) (int64, error) {
	return t.store.CountPending(ctx)
}

// sweepLoop periodically expires entries older than the timeout.
func (t *Tracker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(t.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// Sweep expires every entry older than the timeout and returns how many it
// collected.
func (t *Tracker) Sweep(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-t.config.Timeout)
	total := 0

	for {
		batch, err := t.store.Expire(ctx, cutoff, t.config.BatchSize)
		if err != nil {
			if ctx.Err() == nil {
				t.logger.ErrorContext(ctx, "expire pending failed", "error", err)
			}
			break
		}

		for _, e := range batch {
			t.logger.WarnContext(ctx, "submission never confirmed",
				"uid", e.UID, "user", e.UserName, "submission_id", e.SubmissionID,
				"submitted_at", e.SubmittedAt)
		}
		t.config.Metrics.RecordTimeouts(len(batch))
		total += len(batch)

		if len(batch) < t.config.BatchSize {
			break
		}
	}

	if total > 0 {
		t.refreshGauge(ctx)
	}
	return total
}

func (t *Tracker) refreshGauge(ctx context.Context) {
	if t.config.Metrics == nil {
		return
	}
	if n, err := t.store.CountPending(ctx); err == nil {
		t.config.Metrics.SetPending(n)
	}
}
