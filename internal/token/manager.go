// Package token owns the OAuth credential lifecycle for the mail and
// calendar scopes, plus renewal of the Gmail push subscription.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/inboxpilot/scheduler/internal/store"
	"github.com/inboxpilot/scheduler/pkg/models"
)

// ErrNotConnected means no refresh token is stored for the user; the caller
// must prompt a re-authorization out-of-band.
var ErrNotConnected = errors.New("account not connected")

// ErrRefreshFailed means the provider rejected the stored refresh token.
var ErrRefreshFailed = errors.New("token refresh rejected")

const (
	// refreshThreshold: tokens expiring within this window are refreshed
	// eagerly so in-flight API calls never race the expiry.
	refreshThreshold = 5 * time.Minute

	// renewalWindow: push subscriptions with less than this remaining are
	// re-registered.
	renewalWindow = 48 * time.Hour
)

// Refresher exchanges a refresh token for a fresh access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// SubscriptionRenewer re-registers the push subscription for a mailbox and
// returns the provider's new baseline cursor and subscription expiry.
type SubscriptionRenewer interface {
	Renew(ctx context.Context, userEmail, accessToken string) (historyID uint64, expiry time.Time, err error)
}

// RenewalResult reports what RenewSubscriptionIfExpiring did.
type RenewalResult struct {
	Renewed bool
	Expiry  time.Time
}

// Manager is the token lifecycle manager.
type Manager struct {
	db        *store.DB
	refresher Refresher
	renewer   SubscriptionRenewer
	logger    *slog.Logger
	now       func() time.Time
}

// NewManager creates a token manager.
func NewManager(db *store.DB, refresher Refresher, renewer SubscriptionRenewer, logger *slog.Logger) *Manager {
	return &Manager{
		db:        db,
		refresher: refresher,
		renewer:   renewer,
		logger:    logger.With("component", "token_manager"),
		now:       time.Now,
	}
}

// ValidToken returns a usable access token for (user, scope), refreshing
// transparently when the stored expiry is within five minutes of now.
func (m *Manager) ValidToken(ctx context.Context, userID string, scope models.TokenScope) (string, error) {
	cred, err := m.db.GetCredential(ctx, userID, scope)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("%w: no %s credential for user %s", ErrNotConnected, scope, userID)
	}
	if err != nil {
		return "", err
	}
	if cred.RefreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token for user %s scope %s", ErrNotConnected, userID, scope)
	}

	if cred.AccessToken != "" && cred.ExpiresAt.After(m.now().Add(refreshThreshold)) {
		return cred.AccessToken, nil
	}

	fresh, err := m.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		// Not retried here; the caller decides whether to surface a
		// reconnect prompt.
		return "", fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	// The provider may omit a new refresh token; SaveCredential keeps the
	// stored one when the field is empty.
	if err := m.db.SaveCredential(ctx, &models.TokenCredential{
		UserID:       userID,
		Scope:        scope,
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		ExpiresAt:    fresh.Expiry,
	}); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	m.logger.Info("access token refreshed", "user_id", userID, "scope", scope, "expires_at", fresh.Expiry)
	return fresh.AccessToken, nil
}

// RenewSubscriptionIfExpiring re-registers the push subscription when less
// than two days remain on it. Calling early is a no-op. The new expiry and
// the current change cursor are stored in one write so no events are lost
// between the old and new subscription windows.
func (m *Manager) RenewSubscriptionIfExpiring(ctx context.Context, userID string) (RenewalResult, error) {
	state, err := m.db.GetSyncState(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return RenewalResult{}, err
	}
	if state != nil && state.WatchExpiry.After(m.now().Add(renewalWindow)) {
		return RenewalResult{Renewed: false, Expiry: state.WatchExpiry}, nil
	}

	user, err := m.db.GetUserByID(ctx, userID)
	if err != nil {
		return RenewalResult{}, err
	}

	accessToken, err := m.ValidToken(ctx, userID, models.ScopeMail)
	if err != nil {
		return RenewalResult{}, err
	}

	historyID, expiry, err := m.renewer.Renew(ctx, user.Email, accessToken)
	if err != nil {
		return RenewalResult{}, fmt.Errorf("failed to renew push subscription: %w", err)
	}

	// Keep the cursor we already hold; the watch baseline only seeds a
	// brand-new subscription. Replacing an older cursor would silently drop
	// every event between it and the new baseline.
	cursor := historyID
	if state != nil && state.HistoryCursor > 0 {
		cursor = state.HistoryCursor
	}

	if err := m.db.SaveSyncState(ctx, &models.SyncState{
		UserID:        userID,
		WatchExpiry:   expiry,
		HistoryCursor: cursor,
	}); err != nil {
		return RenewalResult{}, fmt.Errorf("failed to persist renewed subscription: %w", err)
	}

	m.logger.Info("push subscription renewed", "user_id", userID, "expiry", expiry, "cursor", cursor)
	return RenewalResult{Renewed: true, Expiry: expiry}, nil
}
