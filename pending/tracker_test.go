package pending_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/chatrelay/id"
	"github.com/xraph/chatrelay/pending"
	"github.com/xraph/chatrelay/store/memory"
)

func entry(uid string, at time.Time) *pending.Entry {
	return &pending.Entry{
		UID:          uid,
		UserName:     "bob",
		SubmissionID: id.NewSubmissionID(),
		SubmittedAt:  at,
	}
}

func TestTrackAndResolve(t *testing.T) {
	ctx := context.Background()
	tr := pending.NewTracker(memory.New(), pending.Config{Timeout: time.Minute}, nil)

	ok, err := tr.Track(ctx, entry("uid-1", time.Now().UTC()))
	if err != nil || !ok {
		t.Fatalf("Track = %v, %v", ok, err)
	}

	if e, err := tr.Lookup(ctx, "uid-1"); err != nil || e.UserName != "bob" {
		t.Fatalf("Lookup = %+v, %v", e, err)
	}

	e, err := tr.Resolve(ctx, "uid-1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if e.UserName != "bob" {
		t.Fatalf("unexpected entry %+v", e)
	}

	if _, err := tr.Resolve(ctx, "uid-1"); !errors.Is(err, pending.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := tr.Lookup(ctx, "uid-1"); !errors.Is(err, pending.ErrNotFound) {
		t.Fatalf("a resolved entry should not be found, got %v", err)
	}
}

func TestMaxPending(t *testing.T) {
	ctx := context.Background()
	tr := pending.NewTracker(memory.New(), pending.Config{MaxPending: 2}, nil)

	for _, uid := range []string{"a", "b"} {
		if ok, err := tr.Track(ctx, entry(uid, time.Now())); err != nil || !ok {
			t.Fatalf("Track(%s) = %v, %v", uid, ok, err)
		}
	}

	ok, err := tr.Track(ctx, entry("c", time.Now()))
	if err != nil {
		t.Fatalf("a full tracker should not error, got %v", err)
	}
	if ok {
		t.Fatal("a full tracker should refuse new entries")
	}

	n, _ := tr.Pending(ctx)
	if n != 2 {
		t.Fatalf("pending = %d, want 2", n)
	}
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	tr := pending.NewTracker(memory.New(), pending.Config{}, nil)

	tr.Track(ctx, entry("gone", time.Now())) //nolint:errcheck // test setup
	tr.Discard(ctx, "gone")
	tr.Discard(ctx, "never-tracked")

	n, _ := tr.Pending(ctx)
	if n != 0 {
		t.Fatalf("pending = %d, want 0", n)
	}
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	tr := pending.NewTracker(memory.New(), pending.Config{Timeout: time.Minute, BatchSize: 2}, nil)

	now := time.Now().UTC()
	for _, e := range []*pending.Entry{
		entry("old-1", now.Add(-5*time.Minute)),
		entry("old-2", now.Add(-4*time.Minute)),
		entry("old-3", now.Add(-3*time.Minute)),
		entry("fresh", now),
	} {
		tr.Track(ctx, e) //nolint:errcheck // test setup
	}

	if got := tr.Sweep(ctx); got != 3 {
		t.Fatalf("Sweep collected %d, want 3", got)
	}

	if _, err := tr.Resolve(ctx, "fresh"); err != nil {
		t.Fatalf("fresh entry should survive the sweep: %v", err)
	}
}

func TestSweepLoop(t *testing.T) {
	ctx := context.Background()
	tr := pending.NewTracker(memory.New(), pending.Config{
		Timeout:       20 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	}, nil)

	tr.Track(ctx, entry("stale", time.Now().UTC())) //nolint:errcheck // test setup

	tr.Start(ctx)
	defer tr.Stop(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, _ := tr.Pending(ctx)
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("stale entry was never swept")
}
