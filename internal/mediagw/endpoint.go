package mediagw

import (
	"context"
	"fmt"
	"sync"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/signaling"
)

// digitBuffer bounds queued DTMF between keypress and consumption.
// Digits beyond the buffer are dropped.
const digitBuffer = 16

// endpoint is a parked FreeSWITCH channel exposed as an interactive
// signaling.Endpoint. DTMF and execute-complete events are fed in by
// the gateway's event loop.
type endpoint struct {
	gw   *Gateway
	uuid string
	leg  signaling.Leg

	digits chan string
	done   chan struct{}

	mu       sync.Mutex
	closed   bool
	playDone chan string // application name of the completed execute

	destroy sync.Once
}

func newEndpoint(gw *Gateway, uuid string, leg signaling.Leg) *endpoint {
	ep := &endpoint{
		gw:     gw,
		uuid:   uuid,
		leg:    leg,
		digits: make(chan string, digitBuffer),
		done:   make(chan struct{}),
	}
	// A remote hangup surfaces on the SIP leg before the gateway's
	// hangup event in some races; honor whichever fires first.
	go func() {
		select {
		case <-leg.Done():
			ep.finish()
		case <-ep.done:
		}
	}()
	return ep
}

func (ep *endpoint) ID() string { return ep.uuid }

func (ep *endpoint) Done() <-chan struct{} { return ep.done }

func (ep *endpoint) Digits() <-chan string { return ep.digits }

// Destroy kills the channel and hangs up the SIP leg. Idempotent; the
// channel kill is best effort since the remote may already be gone.
func (ep *endpoint) Destroy() error {
	var err error
	ep.destroy.Do(func() {
		if _, killErr := ep.gw.api("uuid_kill " + ep.uuid); killErr != nil {
			ep.gw.logger.Debug("channel kill failed", "channel", ep.uuid, "error", killErr)
		}
		err = ep.leg.Destroy()
		ep.finish()
	})
	return err
}

// Play plays an audio resource toward the caller and waits for the
// playback to complete or the context/leg to end.
func (ep *endpoint) Play(ctx context.Context, resource string) error {
	complete := make(chan string, 1)
	ep.mu.Lock()
	ep.playDone = complete
	ep.mu.Unlock()
	defer func() {
		ep.mu.Lock()
		ep.playDone = nil
		ep.mu.Unlock()
	}()

	if err := ep.gw.executeUUID(ep.uuid, "playback", resource); err != nil {
		return fmt.Errorf("playing %s: %w", resource, err)
	}

	select {
	case <-complete:
		return nil
	case <-ep.done:
		return fmt.Errorf("playing %s: channel gone", resource)
	case <-ctx.Done():
		return fmt.Errorf("playing %s: %w", resource, ctx.Err())
	}
}

// executeComplete is called from the event loop when an application
// finishes on this channel.
func (ep *endpoint) executeComplete(app string) {
	ep.mu.Lock()
	ch := ep.playDone
	ep.mu.Unlock()
	if ch != nil && app == "playback" {
		select {
		case ch <- app:
		default:
		}
	}
}

// deliverDigit is called from the event loop on DTMF. Drops digits
// nobody is consuming rather than stalling the loop.
func (ep *endpoint) deliverDigit(digit string) {
	if digit == "" {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.closed {
		return
	}
	select {
	case ep.digits <- digit:
	default:
		ep.gw.logger.Warn("digit dropped", "channel", ep.uuid, "digit", digit)
	}
}

// finish marks the endpoint terminated: closes done and the digit
// stream. Safe to call from multiple paths.
func (ep *endpoint) finish() {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.closed {
		return
	}
	ep.closed = true
	close(ep.done)
	close(ep.digits)
}
