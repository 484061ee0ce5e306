package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Sentinel errors the orchestrator maps to caller-facing reply codes.
var (
	// ErrMalformedOffer means the inbound offer could not be used for
	// negotiation (missing dialog tag or unparsable SDP). Returned
	// before any relay command is attempted.
	ErrMalformedOffer = errors.New("malformed offer")

	// ErrNegotiationTimeout means the relay did not respond within the
	// configured deadline. Terminal for the call attempt.
	ErrNegotiationTimeout = errors.New("negotiation timeout")
)

// negotiationContext is the per-call state between the offer and answer
// steps: the caller's detected transport profile and the tags naming
// the relay session.
type negotiationContext struct {
	profile Profile
	fromTag string
}

// Negotiator translates an inbound media offer into a backend-compatible
// one and the backend answer back into the caller's profile. A WebRTC
// caller gets its ICE/DTLS stripped on the way in and restored on the
// way out; a plain caller passes through untouched.
//
// Exactly one relay session exists per call. It is created by the offer
// step and must be released with Teardown, even when the call fails
// before the answer step.
type Negotiator struct {
	relay  Relay
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*negotiationContext // keyed by call ID
}

// NewNegotiator creates a negotiation adapter over the given relay.
func NewNegotiator(relay Relay, logger *slog.Logger) *Negotiator {
	return &Negotiator{
		relay:    relay,
		logger:   logger.With("subsystem", "negotiator"),
		sessions: make(map[string]*negotiationContext),
	}
}

// NegotiateOffer rewrites the inbound offer for the backend leg. For a
// WebRTC caller the relay strips ICE, disables DTLS, demultiplexes
// RTP/RTCP and downgrades to plain RTP so the backend can answer
// without any WebRTC awareness.
func (n *Negotiator) NegotiateOffer(ctx context.Context, callID, fromTag string, offer []byte) ([]byte, error) {
	if fromTag == "" {
		return nil, fmt.Errorf("missing from-tag: %w", ErrMalformedOffer)
	}

	profile, err := DetectProfile(offer)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrMalformedOffer)
	}

	req := &SessionRequest{
		CallID:         callID,
		FromTag:        fromTag,
		SDP:            string(offer),
		TransportProto: "RTP/AVP",
	}
	if profile.WebRTC() {
		req.ICE = "remove"
		req.DTLS = "off"
		req.RTCPMux = []string{"demux"}
	}

	sdp, err := n.relay.Offer(ctx, req)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	n.sessions[callID] = &negotiationContext{profile: profile, fromTag: fromTag}
	n.mu.Unlock()

	n.logger.Debug("offer negotiated",
		"call_id", callID,
		"webrtc", profile.WebRTC(),
	)
	return []byte(sdp), nil
}

// NegotiateAnswer rewrites the backend answer for the caller. For a
// WebRTC caller the relay re-enables ICE (forced), takes the passive
// DTLS role, requires RTP/RTCP multiplexing and upgrades the transport
// back to the secure profile, generating RTCP on the plain side.
func (n *Negotiator) NegotiateAnswer(ctx context.Context, callID, fromTag, toTag string, answer []byte) ([]byte, error) {
	n.mu.Lock()
	nc, ok := n.sessions[callID]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no negotiation in progress for call %s", callID)
	}

	req := &SessionRequest{
		CallID:  callID,
		FromTag: fromTag,
		ToTag:   toTag,
		SDP:     string(answer),
	}
	if nc.profile.WebRTC() {
		req.ICE = "force"
		req.DTLS = "passive"
		req.RTCPMux = []string{"require"}
		req.TransportProto = "UDP/TLS/RTP/SAVPF"
		req.Flags = []string{"generate RTCP"}
	}

	sdp, err := n.relay.Answer(ctx, req)
	if err != nil {
		return nil, err
	}
	return []byte(sdp), nil
}

// Teardown releases the relay session for the call, if one exists.
// Best effort: deletion failures are logged, never escalated, so every
// failure path after the offer step can call it unconditionally.
func (n *Negotiator) Teardown(ctx context.Context, callID, fromTag string) {
	n.mu.Lock()
	nc, ok := n.sessions[callID]
	if ok {
		delete(n.sessions, callID)
	}
	n.mu.Unlock()
	if !ok {
		return
	}

	if fromTag == "" {
		fromTag = nc.fromTag
	}
	err := n.relay.Delete(ctx, &SessionRequest{
		CallID:  callID,
		FromTag: fromTag,
	})
	if err != nil {
		n.logger.Warn("relay session delete failed",
			"call_id", callID,
			"error", err,
		)
	}
}

// SessionCount reports the number of live relay sessions.
func (n *Negotiator) SessionCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sessions)
}

// Profile returns the caller profile detected during the offer step.
func (n *Negotiator) Profile(callID string) (Profile, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	nc, ok := n.sessions[callID]
	if !ok {
		return Profile{}, false
	}
	return nc.profile, true
}
