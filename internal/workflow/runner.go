package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inboxpilot/scheduler/internal/email"
	"github.com/inboxpilot/scheduler/internal/ingest"
	"github.com/inboxpilot/scheduler/internal/notify"
	"github.com/inboxpilot/scheduler/internal/store"
	"github.com/inboxpilot/scheduler/internal/token"
	"github.com/inboxpilot/scheduler/pkg/models"
)

// Runner turns one push notification into processed messages. It resolves
// the mailbox owner, fetches the history delta since the stored cursor, runs
// every new message through the ingestion gate and the orchestrator, and
// advances the cursor once the batch holds nothing retryable.
type Runner struct {
	db       *store.DB
	gate     *ingest.Gate
	tokens   *token.Manager
	clients  ClientFactory
	orch     *Orchestrator
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(db *store.DB, gate *ingest.Gate, tokens *token.Manager, clients ClientFactory, orch *Orchestrator, notifier notify.Notifier, logger *slog.Logger) *Runner {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Runner{
		db:       db,
		gate:     gate,
		tokens:   tokens,
		clients:  clients,
		orch:     orch,
		notifier: notifier,
		logger:   logger.With("component", "runner"),
	}
}

// HandleNotification processes one Gmail push notification. Notifications
// carry only the mailbox address and a history id; the actual changes come
// from a history fetch against the stored cursor. A notification for an
// unknown mailbox is acked and dropped.
func (r *Runner) HandleNotification(ctx context.Context, emailAddress string, notifiedHistoryID uint64) error {
	user, err := r.db.GetUserByEmail(ctx, emailAddress)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("notification for unknown mailbox", "email", emailAddress)
			return nil
		}
		return err
	}

	// Opportunistic renewal: every notification is a chance to extend a
	// subscription that is close to expiring.
	if _, err := r.tokens.RenewSubscriptionIfExpiring(ctx, user.ID); err != nil {
		r.logger.Warn("subscription renewal failed", "user_id", user.ID, "error", err)
	}

	clients, err := r.clients.ForUser(ctx, user)
	if err != nil {
		if errors.Is(err, token.ErrNotConnected) || errors.Is(err, token.ErrRefreshFailed) {
			r.notifier.ReconnectRequired(ctx, user.Email, err)
		}
		return err
	}

	cursor, err := r.startCursor(ctx, user.ID, notifiedHistoryID)
	if err != nil {
		return err
	}

	changes, newCursor, err := clients.Mail.FetchChangesSince(ctx, cursor)
	if err != nil {
		return fmt.Errorf("failed to fetch changes: %w", err)
	}

	retryable := false
	for _, change := range changes {
		if err := r.processChange(ctx, user, change); err != nil {
			retryable = true
			r.logger.Warn("change left retryable",
				"user_id", user.ID,
				"message_id", change.MessageID,
				"error", err)
		}
	}

	// The cursor only moves past a batch with no retryable leftovers; a held
	// cursor makes the next fetch return the failed message again, which is
	// how a failed ledger row gets its next attempt. Messages that already
	// succeeded in the batch are absorbed by the ledger on the re-fetch.
	// Monotonic: a concurrent notification that already advanced further wins.
	if !retryable && newCursor > cursor {
		if err := r.db.UpdateHistoryCursor(ctx, user.ID, newCursor); err != nil {
			return fmt.Errorf("failed to advance history cursor: %w", err)
		}
	}
	return nil
}

// processChange runs one message through the gate. Failures are recorded on
// the ledger and returned; the provider's redelivery drives the retry.
func (r *Runner) processChange(ctx context.Context, user *models.UserAccount, change email.ChangedMessage) error {
	decision, err := r.gate.BeginProcessing(ctx, user.ID, change.MessageID, change.ThreadID)
	if err != nil {
		return err
	}

	switch decision.Outcome {
	case ingest.OutcomeProcess:
		if procErr := r.orch.ProcessMessage(ctx, user, change); procErr != nil {
			if markErr := r.gate.MarkFailed(ctx, user.ID, change.MessageID, procErr); markErr != nil {
				r.logger.Error("failed to record failure", "message_id", change.MessageID, "error", markErr)
			}
			return procErr
		}
		return r.gate.MarkProcessed(ctx, user.ID, change.MessageID)
	case ingest.OutcomeDeadletter:
		r.notifier.Deadletter(ctx, user.Email, change.MessageID, decision.Attempts)
		return nil
	case ingest.OutcomeSkipDead, ingest.OutcomeSkipProcessed:
		r.logger.Debug("duplicate delivery skipped",
			"message_id", change.MessageID,
			"outcome", decision.Outcome)
		return nil
	default:
		return fmt.Errorf("unknown admission outcome %q", decision.Outcome)
	}
}

// startCursor picks the history cursor to fetch from: the stored one, or the
// notification's history id when this is the first event after a fresh watch.
func (r *Runner) startCursor(ctx context.Context, userID string, notifiedHistoryID uint64) (uint64, error) {
	state, err := r.db.GetSyncState(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	if state != nil && state.HistoryCursor > 0 {
		return state.HistoryCursor, nil
	}
	return notifiedHistoryID, nil
}
