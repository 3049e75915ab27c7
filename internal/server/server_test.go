package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedCall struct {
	Email     string
	HistoryID uint64
}

type fakeHandler struct {
	mu      sync.Mutex
	calls   []recordedCall
	release chan struct{} // when set, HandleNotification blocks until closed
}

func (f *fakeHandler) HandleNotification(_ context.Context, email string, historyID uint64) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{Email: email, HistoryID: historyID})
	return nil
}

func (f *fakeHandler) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func newTestServer(t *testing.T, h NotificationHandler) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New("0", h, "tool-key", logger)
}

func pushBody(t *testing.T, email string, historyID uint64) string {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"emailAddress": email,
		"historyId":    historyID,
	})
	if err != nil {
		t.Fatal(err)
	}
	envelope, err := json.Marshal(map[string]any{
		"message": map[string]any{
			"data":      base64.StdEncoding.EncodeToString(payload),
			"messageId": "pubsub-1",
		},
		"subscription": "projects/p/subscriptions/s",
	})
	if err != nil {
		t.Fatal(err)
	}
	return string(envelope)
}

func TestPushDecodedAndDispatched(t *testing.T) {
	h := &fakeHandler{}
	s := newTestServer(t, h)

	req := httptest.NewRequest(http.MethodPost, "/notifications/gmail", strings.NewReader(pushBody(t, "me@example.com", 42)))
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	deadline := time.After(2 * time.Second)
	for len(h.recorded()) == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never invoked")
		case <-time.After(5 * time.Millisecond):
		}
	}
	calls := h.recorded()
	if calls[0].Email != "me@example.com" || calls[0].HistoryID != 42 {
		t.Errorf("handler got %+v", calls[0])
	}
}

func TestPushAckedBeforeProcessingFinishes(t *testing.T) {
	release := make(chan struct{})
	h := &fakeHandler{release: release}
	s := newTestServer(t, h)

	req := httptest.NewRequest(http.MethodPost, "/notifications/gmail", strings.NewReader(pushBody(t, "me@example.com", 7)))
	rec := httptest.NewRecorder()

	// ServeHTTP returns while the handler is still blocked on release.
	s.srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(h.recorded()) != 0 {
		t.Fatal("processing finished before ack")
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if len(h.recorded()) != 1 {
		t.Errorf("recorded %d calls after shutdown, want 1", len(h.recorded()))
	}
}

func TestMalformedPushIsAckedAndDropped(t *testing.T) {
	h := &fakeHandler{}
	s := newTestServer(t, h)

	bodies := []string{
		"not json",
		`{"message": {"data": ""}}`,
		`{"message": {"data": "!!!not-base64!!!"}}`,
		fmt.Sprintf(`{"message": {"data": %q}}`, base64.StdEncoding.EncodeToString([]byte(`{"historyId": 5}`))),
	}
	for _, body := range bodies {
		req := httptest.NewRequest(http.MethodPost, "/notifications/gmail", strings.NewReader(body))
		rec := httptest.NewRecorder()
		s.srv.Handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("body %q: status = %d, want 204", body, rec.Code)
		}
	}
	// Give any stray goroutine a moment, then confirm nothing was dispatched.
	time.Sleep(20 * time.Millisecond)
	if len(h.recorded()) != 0 {
		t.Errorf("malformed pushes reached the handler: %+v", h.recorded())
	}
}

func TestToolEndpointRequiresKey(t *testing.T) {
	s := newTestServer(t, &fakeHandler{})
	body := `{"ref_time":"2025-06-02T08:00:00Z","timezone":"UTC","duration_minutes":30,"working_hours_start":9,"working_hours_end":17,"days_to_check":1}`

	req := httptest.NewRequest(http.MethodPost, "/tools/find-free-slots", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/tools/find-free-slots", strings.NewReader(body))
	req.Header.Set("X-API-Key", "tool-key")
	rec = httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with key: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Slots []struct {
			Start time.Time `json:"start"`
		} `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Slots) == 0 {
		t.Error("no slots returned for an empty calendar")
	}
}

func TestScoreSlotEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeHandler{})
	body := `{"slot":{"start":"2025-06-03T09:00:00Z","end":"2025-06-03T09:30:00Z","timezone":"UTC"}}`
	req := httptest.NewRequest(http.MethodPost, "/tools/score-slot", strings.NewReader(body))
	req.Header.Set("X-API-Key", "tool-key")
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Score < 0 || resp.Score > 1 {
		t.Errorf("score %v out of range", resp.Score)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeHandler{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
