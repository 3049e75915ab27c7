// Package server exposes the HTTP surface: the Pub/Sub push endpoint that
// receives Gmail notifications and a health check.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/inboxpilot/scheduler/internal/agent"
)

// NotificationHandler processes one decoded push notification.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, emailAddress string, historyID uint64) error
}

// Server is the HTTP front. Push deliveries are acked immediately and
// processed in the background; Pub/Sub redelivers on its own schedule and
// the ingestion ledger handles duplicates, so holding the request open buys
// nothing.
type Server struct {
	handler        NotificationHandler
	tools          agent.Tools
	toolsAPIKey    string
	logger         *slog.Logger
	srv            *http.Server
	processTimeout time.Duration
	wg             sync.WaitGroup
}

// New creates a server listening on the given port. toolsAPIKey guards the
// agent tool endpoints; an empty key disables them.
func New(port string, handler NotificationHandler, toolsAPIKey string, logger *slog.Logger) *Server {
	s := &Server{
		handler:        handler,
		toolsAPIKey:    toolsAPIKey,
		logger:         logger.With("component", "http_server"),
		processTimeout: 2 * time.Minute,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /notifications/gmail", s.handleGmailPush)
	mux.HandleFunc("POST /tools/find-free-slots", s.handleFindFreeSlots)
	mux.HandleFunc("POST /tools/score-slot", s.handleScoreSlot)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.srv = &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// pushEnvelope is the Pub/Sub push wrapper around the Gmail payload.
type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// pushPayload is the Gmail notification inside the envelope's data field.
type pushPayload struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// handleGmailPush acks every delivery with 204. Malformed envelopes are
// acked too: returning an error would only make Pub/Sub replay the same
// garbage forever.
func (s *Server) handleGmailPush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.logger.Warn("failed to read push body", "error", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	payload, err := decodePush(body)
	if err != nil {
		s.logger.Warn("malformed push notification dropped", "error", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.WriteHeader(http.StatusNoContent)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.processTimeout)
		defer cancel()
		if err := s.handler.HandleNotification(ctx, payload.EmailAddress, payload.HistoryID); err != nil {
			s.logger.Warn("notification processing failed",
				"email", payload.EmailAddress,
				"history_id", payload.HistoryID,
				"error", err)
		}
	}()
}

func decodePush(body []byte) (*pushPayload, error) {
	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if envelope.Message.Data == "" {
		return nil, fmt.Errorf("envelope has no data")
	}

	data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		// Some publishers use the URL-safe alphabet.
		data, err = base64.URLEncoding.DecodeString(envelope.Message.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode data: %w", err)
		}
	}

	var payload pushPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if payload.EmailAddress == "" {
		return nil, fmt.Errorf("payload has no email address")
	}
	return &payload, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Start runs the listener until Shutdown or a listen error.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops the listener and waits for in-flight notification
// processing to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
