// Package signaling defines the narrow contracts between the call engine
// and its signaling/media collaborators. The engine never touches SIP
// messages or media sockets directly; it works against these interfaces
// and the adapters in internal/sip and internal/mediagw implement them.
package signaling

import "context"

// Request is a parsed inbound call-setup request. The transport adapter
// fills it from the wire message before handing it to the router.
type Request struct {
	// CallID is the opaque identifier correlating all events of one call.
	CallID string

	// From is the caller address (user part, e.g. extension or number).
	From string

	// To is the dialed destination identifier.
	To string

	// FromTag is the caller-side dialog tag carried by the request.
	FromTag string

	// Offer is the raw SDP body of the request. May be empty for
	// offerless requests.
	Offer []byte
}

// Reply is the handle for answering or rejecting an inbound request.
// Exactly one of Accept or Reject must be called, once.
type Reply interface {
	// Accept completes the setup with the given answer SDP and returns
	// the established caller leg.
	Accept(ctx context.Context, answer []byte) (Leg, error)

	// Reject refuses the setup with a protocol status code and reason.
	Reject(code int, reason string) error
}

// Leg is one side of an established call. Implementations must make
// Destroy idempotent: destroying an already-dead leg is a no-op.
type Leg interface {
	// ID identifies the leg for logging and media-server addressing.
	ID() string

	// Destroy tears the leg down (hangup toward its party).
	Destroy() error

	// Done is closed when the leg has terminated, whether locally
	// destroyed or hung up by the remote party.
	Done() <-chan struct{}
}

// Endpoint is a caller leg anchored on the media server, able to play
// audio and deliver DTMF digits.
type Endpoint interface {
	Leg

	// Play plays an audio resource (file path or URI) toward the caller.
	Play(ctx context.Context, resource string) error

	// Digits returns the stream of DTMF digits pressed by the caller.
	// The channel is closed when the leg terminates.
	Digits() <-chan string
}

// DialResult is an established outbound leg together with the dialog
// parameters the orchestrator needs for answer negotiation.
type DialResult struct {
	Leg    Leg
	Answer []byte
	// ToTag is the callee-side dialog tag from the answer.
	ToTag string
}

// Dialer originates an outbound leg toward a destination, carrying the
// given offer SDP.
type Dialer interface {
	Dial(ctx context.Context, dest string, offer []byte, headers map[string]string) (*DialResult, error)
}

// MediaServer anchors caller media for interactive handling (IVR) and
// bridges two established legs together.
type MediaServer interface {
	// Park establishes a leg on the media server carrying the given
	// offer and returns the interactive endpoint plus its answer SDP
	// and dialog tag. The caller-facing accept stays with the caller.
	Park(ctx context.Context, callID string, offer []byte) (Endpoint, []byte, string, error)

	// Bridge connects the media of two established legs.
	Bridge(ctx context.Context, a, b Leg) error
}
