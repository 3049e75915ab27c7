package token

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/inboxpilot/scheduler/internal/store"
	"github.com/inboxpilot/scheduler/pkg/models"
)

type fakeRefresher struct {
	token *oauth2.Token
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

type fakeRenewer struct {
	historyID uint64
	expiry    time.Time
	err       error
	calls     int
}

func (f *fakeRenewer) Renew(ctx context.Context, userEmail, accessToken string) (uint64, time.Time, error) {
	f.calls++
	if f.err != nil {
		return 0, time.Time{}, f.err
	}
	return f.historyID, f.expiry, nil
}

func newTestManager(t *testing.T, refresher Refresher, renewer SubscriptionRenewer) (*Manager, *store.DB) {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "token.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(db, refresher, renewer, logger), db
}

func seedUser(t *testing.T, db *store.DB, email string) string {
	t.Helper()
	u := &models.UserAccount{Email: email}
	if err := db.UpsertUser(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u.ID
}

func TestValidTokenFreshTokenNoRefresh(t *testing.T) {
	refresher := &fakeRefresher{}
	m, db := newTestManager(t, refresher, &fakeRenewer{})
	ctx := context.Background()
	userID := seedUser(t, db, "a@example.com")

	now := time.Now()
	m.now = func() time.Time { return now }

	if err := db.SaveCredential(ctx, &models.TokenCredential{
		UserID: userID, Scope: models.ScopeMail,
		AccessToken: "live-token", RefreshToken: "rt",
		ExpiresAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	got, err := m.ValidToken(ctx, userID, models.ScopeMail)
	if err != nil {
		t.Fatalf("ValidToken: %v", err)
	}
	if got != "live-token" {
		t.Errorf("token = %q, want live-token", got)
	}
	if refresher.calls != 0 {
		t.Errorf("refresher called %d times for a fresh token", refresher.calls)
	}
}

func TestValidTokenRefreshesNearExpiry(t *testing.T) {
	now := time.Now()
	refresher := &fakeRefresher{token: &oauth2.Token{
		AccessToken: "new-token",
		// No refresh token in the response, as Google commonly does.
		Expiry: now.Add(time.Hour),
	}}
	m, db := newTestManager(t, refresher, &fakeRenewer{})
	ctx := context.Background()
	userID := seedUser(t, db, "a@example.com")
	m.now = func() time.Time { return now }

	if err := db.SaveCredential(ctx, &models.TokenCredential{
		UserID: userID, Scope: models.ScopeCalendar,
		AccessToken: "stale", RefreshToken: "rt-original",
		ExpiresAt: now.Add(2 * time.Minute), // inside the 5-minute threshold
	}); err != nil {
		t.Fatal(err)
	}

	got, err := m.ValidToken(ctx, userID, models.ScopeCalendar)
	if err != nil {
		t.Fatalf("ValidToken: %v", err)
	}
	if got != "new-token" {
		t.Errorf("token = %q, want new-token", got)
	}

	// The previous refresh token must survive a response that omitted one.
	cred, err := db.GetCredential(ctx, userID, models.ScopeCalendar)
	if err != nil {
		t.Fatal(err)
	}
	if cred.RefreshToken != "rt-original" {
		t.Errorf("refresh token = %q, want rt-original retained", cred.RefreshToken)
	}
	if cred.AccessToken != "new-token" {
		t.Errorf("access token = %q, want new-token", cred.AccessToken)
	}
}

func TestValidTokenNotConnected(t *testing.T) {
	m, db := newTestManager(t, &fakeRefresher{}, &fakeRenewer{})
	userID := seedUser(t, db, "a@example.com")

	_, err := m.ValidToken(context.Background(), userID, models.ScopeMail)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestValidTokenRefreshRejected(t *testing.T) {
	now := time.Now()
	refresher := &fakeRefresher{err: errors.New("invalid_grant")}
	m, db := newTestManager(t, refresher, &fakeRenewer{})
	ctx := context.Background()
	userID := seedUser(t, db, "a@example.com")
	m.now = func() time.Time { return now }

	if err := db.SaveCredential(ctx, &models.TokenCredential{
		UserID: userID, Scope: models.ScopeMail,
		AccessToken: "stale", RefreshToken: "revoked",
		ExpiresAt: now.Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	_, err := m.ValidToken(ctx, userID, models.ScopeMail)
	if !errors.Is(err, ErrRefreshFailed) {
		t.Errorf("err = %v, want ErrRefreshFailed", err)
	}
}

func TestRenewSubscriptionNoOpWhenNotNearExpiry(t *testing.T) {
	now := time.Now()
	renewer := &fakeRenewer{}
	m, db := newTestManager(t, &fakeRefresher{}, renewer)
	ctx := context.Background()
	userID := seedUser(t, db, "a@example.com")
	m.now = func() time.Time { return now }

	if err := db.SaveSyncState(ctx, &models.SyncState{
		UserID:        userID,
		WatchExpiry:   now.Add(5 * 24 * time.Hour),
		HistoryCursor: 42,
	}); err != nil {
		t.Fatal(err)
	}

	res, err := m.RenewSubscriptionIfExpiring(ctx, userID)
	if err != nil {
		t.Fatalf("RenewSubscriptionIfExpiring: %v", err)
	}
	if res.Renewed {
		t.Error("renewed a subscription that was not near expiry")
	}
	if renewer.calls != 0 {
		t.Errorf("renewer called %d times", renewer.calls)
	}
}

func TestRenewSubscriptionKeepsCurrentCursor(t *testing.T) {
	now := time.Now()
	renewer := &fakeRenewer{historyID: 9000, expiry: now.Add(7 * 24 * time.Hour)}
	m, db := newTestManager(t, &fakeRefresher{token: &oauth2.Token{
		AccessToken: "fresh", Expiry: now.Add(time.Hour),
	}}, renewer)
	ctx := context.Background()
	userID := seedUser(t, db, "a@example.com")
	m.now = func() time.Time { return now }

	if err := db.SaveCredential(ctx, &models.TokenCredential{
		UserID: userID, Scope: models.ScopeMail,
		AccessToken: "stale", RefreshToken: "rt",
		ExpiresAt: now.Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSyncState(ctx, &models.SyncState{
		UserID:        userID,
		WatchExpiry:   now.Add(12 * time.Hour), // inside the 2-day window
		HistoryCursor: 42,
	}); err != nil {
		t.Fatal(err)
	}

	res, err := m.RenewSubscriptionIfExpiring(ctx, userID)
	if err != nil {
		t.Fatalf("RenewSubscriptionIfExpiring: %v", err)
	}
	if !res.Renewed {
		t.Fatal("expected a renewal")
	}
	state, err := db.GetSyncState(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if state.HistoryCursor != 42 {
		t.Errorf("cursor = %d, want 42 (events between windows would be lost)", state.HistoryCursor)
	}
	if !state.WatchExpiry.After(now.Add(6 * 24 * time.Hour)) {
		t.Errorf("watch expiry not advanced: %v", state.WatchExpiry)
	}
}

func TestRenewSubscriptionSeedsCursorForNewWatch(t *testing.T) {
	now := time.Now()
	renewer := &fakeRenewer{historyID: 9000, expiry: now.Add(7 * 24 * time.Hour)}
	m, db := newTestManager(t, &fakeRefresher{token: &oauth2.Token{
		AccessToken: "fresh", Expiry: now.Add(time.Hour),
	}}, renewer)
	ctx := context.Background()
	userID := seedUser(t, db, "a@example.com")
	m.now = func() time.Time { return now }

	if err := db.SaveCredential(ctx, &models.TokenCredential{
		UserID: userID, Scope: models.ScopeMail,
		AccessToken: "stale", RefreshToken: "rt",
		ExpiresAt: now.Add(-time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	// No sync state yet: first watch seeds the cursor from the baseline.
	if _, err := m.RenewSubscriptionIfExpiring(ctx, userID); err != nil {
		t.Fatalf("RenewSubscriptionIfExpiring: %v", err)
	}
	state, err := db.GetSyncState(ctx, userID)
	if err != nil {
		t.Fatal(err)
	}
	if state.HistoryCursor != 9000 {
		t.Errorf("cursor = %d, want 9000", state.HistoryCursor)
	}
}
