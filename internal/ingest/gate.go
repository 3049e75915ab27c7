// Package ingest deduplicates and bounds retries of inbound change
// notifications. The mail provider delivers notifications at least once and
// replays them freely; without this ledger one email could trigger duplicate
// replies or duplicate calendar events.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inboxpilot/scheduler/internal/store"
	"github.com/inboxpilot/scheduler/pkg/models"
)

// DefaultMaxAttempts is the retry budget before a message is dead-lettered.
const DefaultMaxAttempts = 5

// Outcome is the admission decision for one (user, message) key.
type Outcome string

const (
	OutcomeProcess       Outcome = "process"
	OutcomeSkipProcessed Outcome = "skip_processed"
	OutcomeSkipDead      Outcome = "skip_dead"
	OutcomeDeadletter    Outcome = "deadletter"
)

// Decision is the result of BeginProcessing.
type Decision struct {
	Outcome   Outcome
	Attempts  int
	LastError string
}

// Gate is the idempotency ledger over the message_processing table.
type Gate struct {
	db          *store.DB
	maxAttempts int
	logger      *slog.Logger
}

// NewGate creates a gate with the given retry budget (0 means default).
func NewGate(db *store.DB, maxAttempts int, logger *slog.Logger) *Gate {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Gate{
		db:          db,
		maxAttempts: maxAttempts,
		logger:      logger.With("component", "ingest_gate"),
	}
}

// BeginProcessing admits or rejects one (user, message) key. The attempts
// counter is incremented and persisted before the caller does any work, so a
// crash mid-handling still counts against the retry budget. Terminal rows
// (processed, dead) short-circuit without writes; a row whose budget is
// exhausted is flipped to dead and reported as a dead-letter.
func (g *Gate) BeginProcessing(ctx context.Context, userID, messageID, threadID string) (Decision, error) {
	rec, admitted, err := g.db.IncrementProcessing(ctx, userID, messageID, threadID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to admit message: %w", err)
	}

	if !admitted {
		existing, err := g.db.GetProcessing(ctx, userID, messageID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// Row vanished between the upsert and the read; treat as a
				// replay race and let the next delivery sort it out.
				return Decision{Outcome: OutcomeSkipProcessed}, nil
			}
			return Decision{}, fmt.Errorf("failed to read processing record: %w", err)
		}
		switch existing.Status {
		case models.ProcessingDead:
			return Decision{Outcome: OutcomeSkipDead, Attempts: existing.Attempts, LastError: existing.LastError}, nil
		default:
			return Decision{Outcome: OutcomeSkipProcessed, Attempts: existing.Attempts}, nil
		}
	}

	if rec.Attempts > g.maxAttempts {
		if err := g.db.MarkProcessingDead(ctx, userID, messageID); err != nil {
			return Decision{}, fmt.Errorf("failed to dead-letter message: %w", err)
		}
		g.logger.Warn("message dead-lettered",
			"user_id", userID,
			"message_id", messageID,
			"attempts", rec.Attempts,
			"last_error", rec.LastError,
		)
		return Decision{Outcome: OutcomeDeadletter, Attempts: rec.Attempts, LastError: rec.LastError}, nil
	}

	return Decision{Outcome: OutcomeProcess, Attempts: rec.Attempts}, nil
}

// MarkProcessed records terminal success. Safe to call more than once.
func (g *Gate) MarkProcessed(ctx context.Context, userID, messageID string) error {
	if err := g.db.MarkProcessingProcessed(ctx, userID, messageID); err != nil {
		return fmt.Errorf("failed to mark processed: %w", err)
	}
	return nil
}

// MarkFailed records the error and leaves the entry retryable; the provider
// redelivers the notification and the next attempt goes through the budget.
func (g *Gate) MarkFailed(ctx context.Context, userID, messageID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := g.db.MarkProcessingFailed(ctx, userID, messageID, msg); err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	return nil
}
