package voicemail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const elevenLabsDefaultBase = "https://api.elevenlabs.io"

// TTSClient synthesizes voicemail audio through the ElevenLabs REST
// API.
type TTSClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

func NewTTSClient(apiKey string) *TTSClient {
	return NewTTSClientWithClient(apiKey, nil)
}

func NewTTSClientWithClient(apiKey string, client *http.Client) *TTSClient {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &TTSClient{
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: client,
		baseURL:    elevenLabsDefaultBase,
	}
}

func (c *TTSClient) WithBaseURL(base string) *TTSClient {
	if c == nil {
		return c
	}
	base = strings.TrimSpace(base)
	if base != "" {
		c.baseURL = strings.TrimRight(base, "/")
	}
	return c
}

// Synthesize renders text into mp3 audio with the given voice.
func (c *TTSClient) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: missing api key")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("elevenlabs: empty text")
	}
	if voiceID == "" {
		return nil, fmt.Errorf("elevenlabs: missing voice id")
	}

	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": "eleven_multilingual_v2",
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("elevenlabs: synthesis failed: %d %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs: empty audio response")
	}
	return audio, nil
}

// Voice is one available ElevenLabs voice.
type Voice struct {
	ID       string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ListVoices returns the voices available to the configured account.
func (c *TTSClient) ListVoices(ctx context.Context) ([]Voice, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: missing api key")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices failed: %d", resp.StatusCode)
	}
	var out struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode voices: %w", err)
	}
	return out.Voices, nil
}
