// Package tts renders spoken prompts. It wraps an external HTTP
// text-to-speech service and implements the speak-with-fallback
// contract the IVR engine relies on: a prompt failure degrades to a
// fallback recording or is skipped, it never fails a call.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Synthesizer turns text into a playable audio resource.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// synthesizeRequest is the TTS service request body.
type synthesizeRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
	Cache bool    `json:"cache"`
}

// synthesizeResponse is the TTS service reply.
type synthesizeResponse struct {
	Success  bool   `json:"success"`
	FilePath string `json:"file_path"`
	Error    string `json:"error,omitempty"`
}

// Client talks to the TTS HTTP service.
type Client struct {
	baseURL    string
	voice      string
	speed      float64
	httpClient *http.Client
	logger     *slog.Logger

	// available caches the last probe result. It is a logging hint
	// only: Synthesize always attempts the service regardless.
	available atomic.Bool
}

// NewClient creates a TTS client. The timeout bounds each synthesis
// round trip.
func NewClient(baseURL, voice string, speed float64, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		voice:   voice,
		speed:   speed,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("subsystem", "tts"),
	}
}

// Probe checks service health once and caches the result. Call it at
// startup so the first prompt failure does not come as a surprise in
// the logs.
func (c *Client) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		c.available.Store(false)
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("tts service unreachable, prompts will use fallback audio", "error", err)
		c.available.Store(false)
		return false
	}
	resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	c.available.Store(ok)
	if ok {
		c.logger.Info("tts service available", "url", c.baseURL)
	}
	return ok
}

// Synthesize renders text to audio and returns the resource path.
func (c *Client) Synthesize(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(synthesizeRequest{
		Text:  text,
		Voice: c.voice,
		Speed: c.speed,
		Cache: true,
	})
	if err != nil {
		return "", fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tts", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tts service returned status %d", resp.StatusCode)
	}

	var sr synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("decode tts response: %w", err)
	}
	if !sr.Success || sr.FilePath == "" {
		return "", fmt.Errorf("tts synthesis failed: %s", sr.Error)
	}

	return sr.FilePath, nil
}
