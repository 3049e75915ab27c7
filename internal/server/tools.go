package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/inboxpilot/scheduler/internal/agent"
	"github.com/inboxpilot/scheduler/pkg/models"
)

// Tool endpoints let the agent service drive the deterministic availability
// engine during slot narration. They are authenticated with the shared agent
// API key; without a configured key the endpoints refuse everything.

func (s *Server) handleFindFreeSlots(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeTool(w, r) {
		return
	}

	var req agent.FindFreeSlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	slots, err := s.tools.FindFreeSlots(req)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, struct {
		Slots []models.Slot `json:"slots"`
	}{Slots: slots})
}

func (s *Server) handleScoreSlot(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeTool(w, r) {
		return
	}

	var req agent.ScoreSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	writeJSON(w, struct {
		Score float64 `json:"score"`
	}{Score: s.tools.ScoreSlot(req)})
}

func (s *Server) authorizeTool(w http.ResponseWriter, r *http.Request) bool {
	if s.toolsAPIKey == "" {
		writeJSONError(w, http.StatusForbidden, "tool endpoints disabled")
		return false
	}
	key := r.Header.Get("X-API-Key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.toolsAPIKey)) != 1 {
		writeJSONError(w, http.StatusUnauthorized, "invalid api key")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
