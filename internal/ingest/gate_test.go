package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/inboxpilot/scheduler/internal/store"
)

func newTestGate(t *testing.T, maxAttempts int) *Gate {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "gate.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewGate(db, maxAttempts, logger)
}

func TestBeginProcessingFirstDelivery(t *testing.T) {
	g := newTestGate(t, 5)
	ctx := context.Background()

	d, err := g.BeginProcessing(ctx, "u1", "m1", "t1")
	if err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	if d.Outcome != OutcomeProcess {
		t.Fatalf("outcome = %s, want process", d.Outcome)
	}
	if d.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", d.Attempts)
	}
}

func TestBeginProcessingAfterProcessedSkips(t *testing.T) {
	g := newTestGate(t, 5)
	ctx := context.Background()

	if _, err := g.BeginProcessing(ctx, "u1", "m1", "t1"); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkProcessed(ctx, "u1", "m1"); err != nil {
		t.Fatal(err)
	}
	// Idempotent: marking twice is harmless.
	if err := g.MarkProcessed(ctx, "u1", "m1"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		d, err := g.BeginProcessing(ctx, "u1", "m1", "t1")
		if err != nil {
			t.Fatal(err)
		}
		if d.Outcome != OutcomeSkipProcessed {
			t.Fatalf("redelivery %d outcome = %s, want skip_processed", i, d.Outcome)
		}
	}

	// The processed row must not have accumulated attempts.
	rec, err := g.db.GetProcessing(ctx, "u1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Attempts != 1 {
		t.Errorf("attempts mutated after processed: %d, want 1", rec.Attempts)
	}
}

func TestBoundedRetriesDeadLetter(t *testing.T) {
	g := newTestGate(t, 3)
	ctx := context.Background()

	// Burn the retry budget.
	for i := 1; i <= 3; i++ {
		d, err := g.BeginProcessing(ctx, "u1", "m1", "t1")
		if err != nil {
			t.Fatal(err)
		}
		if d.Outcome != OutcomeProcess {
			t.Fatalf("attempt %d outcome = %s, want process", i, d.Outcome)
		}
		if d.Attempts != i {
			t.Fatalf("attempt %d counter = %d", i, d.Attempts)
		}
		if err := g.MarkFailed(ctx, "u1", "m1", errors.New("provider 500")); err != nil {
			t.Fatal(err)
		}
	}

	// Budget exhausted: this delivery dead-letters.
	d, err := g.BeginProcessing(ctx, "u1", "m1", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != OutcomeDeadletter {
		t.Fatalf("outcome = %s, want deadletter", d.Outcome)
	}
	if d.Attempts != 4 {
		t.Errorf("deadletter attempts = %d, want 4", d.Attempts)
	}
	if d.LastError != "provider 500" {
		t.Errorf("deadletter last error = %q", d.LastError)
	}

	// Dead is absorbing: further deliveries skip and never increment.
	d, err = g.BeginProcessing(ctx, "u1", "m1", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != OutcomeSkipDead {
		t.Fatalf("outcome = %s, want skip_dead", d.Outcome)
	}
	rec, err := g.db.GetProcessing(ctx, "u1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Attempts != 4 {
		t.Errorf("attempts grew past dead-letter: %d", rec.Attempts)
	}
}

func TestMarkProcessedDoesNotResurrectDead(t *testing.T) {
	g := newTestGate(t, 1)
	ctx := context.Background()

	if _, err := g.BeginProcessing(ctx, "u1", "m1", "t1"); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkFailed(ctx, "u1", "m1", errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	if d, _ := g.BeginProcessing(ctx, "u1", "m1", "t1"); d.Outcome != OutcomeDeadletter {
		t.Fatalf("outcome = %s, want deadletter", d.Outcome)
	}

	if err := g.MarkProcessed(ctx, "u1", "m1"); err != nil {
		t.Fatal(err)
	}
	if d, _ := g.BeginProcessing(ctx, "u1", "m1", "t1"); d.Outcome != OutcomeSkipDead {
		t.Errorf("outcome after late MarkProcessed = %s, want skip_dead", d.Outcome)
	}
}

func TestSeparateKeysAreIndependent(t *testing.T) {
	g := newTestGate(t, 5)
	ctx := context.Background()

	if _, err := g.BeginProcessing(ctx, "u1", "m1", "t1"); err != nil {
		t.Fatal(err)
	}
	if err := g.MarkProcessed(ctx, "u1", "m1"); err != nil {
		t.Fatal(err)
	}

	// Same message id under a different user is a fresh key.
	d, err := g.BeginProcessing(ctx, "u2", "m1", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != OutcomeProcess {
		t.Errorf("outcome = %s, want process", d.Outcome)
	}
}

func TestConcurrentBeginProcessing(t *testing.T) {
	g := newTestGate(t, 10)
	ctx := context.Background()

	const workers = 8
	decisions := make([]Decision, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := g.BeginProcessing(ctx, "u1", "m1", "t1")
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			decisions[i] = d
		}(i)
	}
	wg.Wait()

	// Each admission incremented exactly once; the counter equals the number
	// of process decisions and every attempt number is unique.
	seen := make(map[int]bool)
	processed := 0
	for _, d := range decisions {
		if d.Outcome != OutcomeProcess {
			continue
		}
		processed++
		if seen[d.Attempts] {
			t.Errorf("duplicate attempt number %d admitted twice", d.Attempts)
		}
		seen[d.Attempts] = true
	}
	rec, err := g.db.GetProcessing(ctx, "u1", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Attempts != processed {
		t.Errorf("persisted attempts = %d, admitted = %d", rec.Attempts, processed)
	}
}
