// Package calendar creates calendar events from milestone due dates
// using the session's primary credentials.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"milecal/pkg/logging"
)

// DefaultBaseURL is the Calendar API root.
const DefaultBaseURL = "https://www.googleapis.com/calendar/v3"

// ErrUnauthorized means the access token was rejected. The caller may
// refresh the primary credentials and retry once.
var ErrUnauthorized = errors.New("calendar token rejected")

const defaultTimeout = 15 * time.Second

// EventTime is a point in time with an explicit zone, as the Calendar
// API wants it.
type EventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// Event is the request payload for event creation.
type Event struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
}

// CreatedEvent is the provider's answer to a successful creation.
type CreatedEvent struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Summary  string `json:"summary"`
	HTMLLink string `json:"htmlLink"`
}

// Client talks to the Calendar API with a per-request token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// ClientConfig configures the Calendar API client.
type ClientConfig struct {
	// BaseURL overrides the API root, for tests.
	BaseURL string
	// HTTPClient overrides the client used for provider calls.
	HTTPClient *http.Client
	// Timeout bounds each outbound call. Zero means the default.
	Timeout time.Duration
}

// NewClient creates a Calendar API client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, timeout: timeout}
}

// CreateEvent inserts an event into the caller's primary calendar.
func (c *Client) CreateEvent(ctx context.Context, accessToken string, event Event) (*CreatedEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encoding event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/calendars/primary/events", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling calendar api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		logging.Warn("Calendar", "Event creation failed: status=%d body=%s", resp.StatusCode, string(body))
		return nil, fmt.Errorf("calendar api returned status %d", resp.StatusCode)
	}

	var created CreatedEvent
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decoding created event: %w", err)
	}
	return &created, nil
}
