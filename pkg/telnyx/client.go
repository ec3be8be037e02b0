// Package telnyx is a thin client for the Telnyx Call Control v2 API:
// call origination plus the per-call action commands the engine issues.
package telnyx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const defaultBaseURL = "https://api.telnyx.com/v2"

// Config holds client credentials and call routing defaults.
type Config struct {
	APIKey       string
	ConnectionID string
	FromNumber   string
	WebhookURL   string

	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the Telnyx API. Safe for concurrent use.
type Client struct {
	apiKey       string
	connectionID string
	fromNumber   string
	webhookURL   string
	baseURL      string
	httpClient   *http.Client
	log          *slog.Logger
}

func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:       cfg.APIKey,
		connectionID: cfg.ConnectionID,
		fromNumber:   cfg.FromNumber,
		webhookURL:   cfg.WebhookURL,
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   httpClient,
		log:          logger.With("component", "telnyx"),
	}
}

// CommandError is a failed Telnyx API call. Status is the HTTP status;
// Code/Title/Detail come from the first error object in the response.
type CommandError struct {
	Status int
	Code   string
	Title  string
	Detail string
}

func (e *CommandError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("telnyx: %d %s: %s", e.Status, e.Code, e.Detail)
	}
	return fmt.Sprintf("telnyx: %d %s", e.Status, e.Code)
}

// CallerIDRejected reports whether the failure was the network refusing
// the requested outbound caller-id.
func (e *CommandError) CallerIDRejected() bool {
	text := strings.ToLower(e.Title + " " + e.Detail)
	return strings.Contains(text, "caller id") || strings.Contains(text, "caller_id") ||
		strings.Contains(text, "from number")
}

type errorEnvelope struct {
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Dial originates an outbound call with beep-aware machine detection
// enabled and returns the call control id.
func (c *Client) Dial(ctx context.Context, number string) (string, error) {
	body := map[string]any{
		"connection_id":               c.connectionID,
		"to":                          number,
		"from":                        c.fromNumber,
		"answering_machine_detection": "detect_beep",
	}
	if c.webhookURL != "" {
		body["webhook_url"] = c.webhookURL
	}

	var resp struct {
		Data struct {
			CallControlID string `json:"call_control_id"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/calls", body, &resp); err != nil {
		return "", fmt.Errorf("dial %s: %w", number, err)
	}
	if resp.Data.CallControlID == "" {
		return "", fmt.Errorf("dial %s: response missing call_control_id", number)
	}
	return resp.Data.CallControlID, nil
}

// Transfer bridges the call to another number. callerID is the number
// shown to the transfer target.
func (c *Client) Transfer(ctx context.Context, callID, to, callerID string) error {
	body := map[string]any{"to": to}
	if callerID != "" {
		body["from"] = callerID
	}
	return c.action(ctx, callID, "transfer", body)
}

// PlayAudio starts playback of the given audio URL on the call.
func (c *Client) PlayAudio(ctx context.Context, callID, audioURL string) error {
	return c.action(ctx, callID, "playback_start", map[string]any{
		"audio_url": audioURL,
	})
}

// Hangup terminates the call.
func (c *Client) Hangup(ctx context.Context, callID string) error {
	return c.action(ctx, callID, "hangup", map[string]any{})
}

// StartTranscription begins live transcription on both tracks.
func (c *Client) StartTranscription(ctx context.Context, callID string) error {
	return c.action(ctx, callID, "transcription_start", map[string]any{
		"language":            "en",
		"transcription_tracks": "both",
	})
}

// StartRecording begins dual-channel mp3 recording.
func (c *Client) StartRecording(ctx context.Context, callID string) error {
	return c.action(ctx, callID, "record_start", map[string]any{
		"format":   "mp3",
		"channels": "dual",
	})
}

func (c *Client) action(ctx context.Context, callID, name string, body map[string]any) error {
	if callID == "" {
		return fmt.Errorf("%s: empty call id", name)
	}
	path := fmt.Sprintf("/calls/%s/actions/%s", callID, name)
	if err := c.post(ctx, path, body, nil); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// post sends one JSON request, retrying transient failures (network
// errors, 429, 5xx) with exponential backoff.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(250*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil {
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}

		cmdErr := &CommandError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var env errorEnvelope
		if json.Unmarshal(data, &env) == nil && len(env.Errors) > 0 {
			cmdErr.Code = env.Errors[0].Code
			cmdErr.Title = env.Errors[0].Title
			cmdErr.Detail = env.Errors[0].Detail
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			c.log.Warn("telnyx request retried",
				"path", path, "status", resp.StatusCode)
			return retry.RetryableError(cmdErr)
		}
		return cmdErr
	})
}
