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
)

var (
	ErrEventNotFound = errors.New("calendar event not found")
	ErrUnauthorized  = errors.New("calendar credentials rejected")
)

// Event is the payload mirrored into the external calendar. The mirror is
// derived state; nothing read back from it is ever authoritative.
type Event struct {
	Summary  string    `json:"summary"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone"`
}

// Client is the opaque, occasionally-unavailable remote calendar. Every
// call carries the configured timeout; a timeout counts as failure and is
// retried by the sync worker (at-least-once semantics).
type Client interface {
	CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, ev Event) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	ValidateCredentials(ctx context.Context) error
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("/calendars/%s/events", calendarID), ev, &created)
	if err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("calendar create returned no event id")
	}
	return created.ID, nil
}

func (c *HTTPClient) UpdateEvent(ctx context.Context, calendarID, eventID string, ev Event) error {
	return c.do(ctx, http.MethodPut,
		fmt.Sprintf("/calendars/%s/events/%s", calendarID, eventID), ev, nil)
}

// DeleteEvent treats an already-missing event as success, so retried
// deletes stay idempotent.
func (c *HTTPClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := c.do(ctx, http.MethodDelete,
		fmt.Sprintf("/calendars/%s/events/%s", calendarID, eventID), nil, nil)
	if errors.Is(err, ErrEventNotFound) {
		return nil
	}
	return err
}

func (c *HTTPClient) ValidateCredentials(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/me", nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode calendar request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build calendar request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calendar %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode == http.StatusNotFound:
		return ErrEventNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	default:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("calendar %s %s: status %d: %s", method, path, resp.StatusCode, payload)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode calendar response: %w", err)
		}
	}
	return nil
}
