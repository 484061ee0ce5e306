package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Relay is the media relay's offer/answer/delete contract. The relay
// anchors RTP for a call and can translate between transport profiles
// (encrypted ICE media on one side, plain RTP on the other).
type Relay interface {
	Offer(ctx context.Context, req *SessionRequest) (string, error)
	Answer(ctx context.Context, req *SessionRequest) (string, error)
	Delete(ctx context.Context, req *SessionRequest) error
}

// SessionRequest carries the parameters of one relay control command.
// Field names follow the rtpengine ng protocol.
type SessionRequest struct {
	Command        string   `json:"command"`
	CallID         string   `json:"call-id"`
	FromTag        string   `json:"from-tag"`
	ToTag          string   `json:"to-tag,omitempty"`
	SDP            string   `json:"sdp,omitempty"`
	ICE            string   `json:"ICE,omitempty"`
	DTLS           string   `json:"DTLS,omitempty"`
	RTCPMux        []string `json:"rtcp-mux,omitempty"`
	TransportProto string   `json:"transport-protocol,omitempty"`
	Flags          []string `json:"flags,omitempty"`
}

// relayResponse is the ng control reply envelope.
type relayResponse struct {
	Result      string `json:"result"`
	SDP         string `json:"sdp,omitempty"`
	ErrorReason string `json:"error-reason,omitempty"`
}

// HTTPRelay talks to a media relay over its HTTP ng control interface.
type HTTPRelay struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPRelay creates a relay client for the given control URL.
// The timeout bounds every control command round trip.
func NewHTTPRelay(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPRelay {
	return &HTTPRelay{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("subsystem", "relay"),
	}
}

// Offer sends an offer command and returns the rewritten SDP.
func (r *HTTPRelay) Offer(ctx context.Context, req *SessionRequest) (string, error) {
	req.Command = "offer"
	return r.exchange(ctx, req)
}

// Answer sends an answer command and returns the rewritten SDP.
func (r *HTTPRelay) Answer(ctx context.Context, req *SessionRequest) (string, error) {
	req.Command = "answer"
	return r.exchange(ctx, req)
}

// Delete releases the relay session for the given call.
func (r *HTTPRelay) Delete(ctx context.Context, req *SessionRequest) error {
	req.Command = "delete"
	_, err := r.exchange(ctx, req)
	return err
}

func (r *HTTPRelay) exchange(ctx context.Context, sr *SessionRequest) (string, error) {
	body, err := json.Marshal(sr)
	if err != nil {
		return "", fmt.Errorf("marshal %s request: %w", sr.Command, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", sr.Command, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("relay %s: %w", sr.Command, ErrNegotiationTimeout)
		}
		return "", fmt.Errorf("relay %s: %w", sr.Command, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay %s: unexpected status %d", sr.Command, resp.StatusCode)
	}

	var rr relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return "", fmt.Errorf("decode %s response: %w", sr.Command, err)
	}

	if rr.Result != "ok" {
		return "", fmt.Errorf("relay %s rejected: %s", sr.Command, rr.ErrorReason)
	}

	return rr.SDP, nil
}

// isTimeout reports whether err is a network timeout. The http client
// wraps deadline errors in url.Error, so check the Timeout method too.
func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
