package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inboxpilot/scheduler/pkg/models"
)

// HTTPClient calls the agent service over its JSON API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config for the agent HTTP client.
type Config struct {
	BaseURL string // e.g., https://agent.internal.example.com
	APIKey  string
}

// NewHTTPClient creates a new agent API client.
func NewHTTPClient(cfg Config) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// IsConfigured returns true if an agent endpoint is configured.
func (c *HTTPClient) IsConfigured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// Classify sends the email to the classifier endpoint.
func (c *HTTPClient) Classify(ctx context.Context, subject, body string) (*Classification, error) {
	req := struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}{Subject: subject, Body: body}

	var result Classification
	if err := c.post(ctx, "/v1/classify", req, &result); err != nil {
		return nil, err
	}
	if _, err := models.ParseIntent(string(result.Intent)); err != nil {
		return nil, fmt.Errorf("classifier returned %w", err)
	}
	return &result, nil
}

// ProposeSlots asks the slot-narration agent for scored candidates. The
// request carries the busy intervals and profile so the agent can drive the
// deterministic availability tools itself.
func (c *HTTPClient) ProposeSlots(ctx context.Context, req ProposalRequest) ([]models.Slot, error) {
	payload := struct {
		Participants    []string           `json:"participants"`
		DurationMinutes int                `json:"duration_minutes"`
		RequestedDate   string             `json:"requested_date,omitempty"`
		Timezone        string             `json:"timezone"`
		WorkStart       int                `json:"working_hours_start"`
		WorkEnd         int                `json:"working_hours_end"`
		PreferredTimes  string             `json:"preferred_times"`
		AvoidTimes      string             `json:"avoid_times"`
		Busy            []busyIntervalJSON `json:"busy"`
		RefTime         time.Time          `json:"ref_time"`
		DaysToCheck     int                `json:"days_to_check"`
	}{
		Participants:    req.Participants,
		DurationMinutes: req.DurationMinutes,
		RequestedDate:   req.RequestedDate,
		Timezone:        req.Profile.Timezone,
		WorkStart:       req.Profile.WorkingHoursStart,
		WorkEnd:         req.Profile.WorkingHoursEnd,
		PreferredTimes:  req.Profile.PreferredTimes,
		AvoidTimes:      req.Profile.AvoidTimes,
		RefTime:         req.RefTime,
		DaysToCheck:     req.DaysToCheck,
	}
	for _, b := range req.Busy {
		payload.Busy = append(payload.Busy, busyIntervalJSON{Start: b.Start, End: b.End})
	}

	var result struct {
		Slots []models.Slot `json:"slots"`
	}
	if err := c.post(ctx, "/v1/propose-slots", payload, &result); err != nil {
		return nil, err
	}
	return result.Slots, nil
}

type busyIntervalJSON struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	if !c.IsConfigured() {
		return fmt.Errorf("agent not configured")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent API error: %s (status %d)", string(respBody), resp.StatusCode)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w (body: %s)", err, string(respBody))
	}
	return nil
}
