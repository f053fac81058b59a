package tracking

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Awaisee01/fund-sub001/internal/config"
)

var ErrNotConfigured = errors.New("conversions api not configured")

// ServerEvent is one event in a conversions API batch.
type ServerEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventID        string         `json:"event_id"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	ActionSource   string         `json:"action_source"`
	UserData       HashedUserData `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

type Ack struct {
	EventsReceived int    `json:"events_received"`
	FBTraceID      string `json:"fbtrace_id"`
	Duplicate      bool   `json:"duplicate,omitempty"`
}

type APIError struct {
	Status    int
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("conversions api: status %d code %d: %s", e.Status, e.Code, e.Message)
}

// EventSender delivers a batch of server events.
type EventSender interface {
	Send(ctx context.Context, events []ServerEvent) (Ack, error)
}

type ConversionsClient struct {
	httpClient    *http.Client
	endpoint      string
	accessToken   string
	testEventCode string
}

func NewConversionsClient(cfg config.TrackingConfig, httpClient *http.Client) *ConversionsClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout}
	}
	endpoint := ""
	if cfg.PixelID != "" {
		endpoint = strings.TrimRight(cfg.GraphBaseURL, "/") + "/" + cfg.GraphVersion + "/" + url.PathEscape(cfg.PixelID) + "/events"
	}
	return &ConversionsClient{
		httpClient:    httpClient,
		endpoint:      endpoint,
		accessToken:   cfg.AccessToken,
		testEventCode: cfg.TestEventCode,
	}
}

func (c *ConversionsClient) Send(ctx context.Context, events []ServerEvent) (Ack, error) {
	if c.endpoint == "" || c.accessToken == "" {
		return Ack{}, ErrNotConfigured
	}

	payload := map[string]any{
		"data":         events,
		"access_token": c.accessToken,
	}
	if c.testEventCode != "" {
		payload["test_event_code"] = c.testEventCode
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Ack{}, fmt.Errorf("encode events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Ack{}, fmt.Errorf("send events: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Ack{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			apiErr = envelope.Error
			apiErr.Status = resp.StatusCode
		}
		return Ack{}, apiErr
	}

	var ack Ack
	if err := json.Unmarshal(raw, &ack); err != nil {
		return Ack{}, fmt.Errorf("decode response: %w", err)
	}
	return ack, nil
}

func eventTime(t time.Time) int64 { return t.Unix() }
