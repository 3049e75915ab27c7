package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// WatchRenewer re-registers the Gmail push subscription against a Pub/Sub
// topic. It implements the token manager's SubscriptionRenewer contract.
type WatchRenewer struct {
	topic  string // fully qualified, projects/<p>/topics/<t>
	logger *slog.Logger
}

// NewWatchRenewer creates a renewer for the given Pub/Sub topic.
func NewWatchRenewer(topic string, logger *slog.Logger) *WatchRenewer {
	return &WatchRenewer{
		topic:  topic,
		logger: logger.With("component", "watch_renewer"),
	}
}

// Renew issues users.watch for the mailbox and returns the provider's
// baseline history id and the new subscription expiry.
func (w *WatchRenewer) Renew(ctx context.Context, userEmail, accessToken string) (uint64, time.Time, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to create gmail service: %w", err)
	}

	resp, err := svc.Users.Watch("me", &gmailapi.WatchRequest{
		TopicName: w.topic,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to register watch: %w", err)
	}

	expiry := time.UnixMilli(resp.Expiration)
	w.logger.Info("watch registered", "email", userEmail, "history_id", resp.HistoryId, "expiry", expiry)
	return resp.HistoryId, expiry, nil
}
