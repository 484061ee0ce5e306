// Package call is the call engine: destination routing, two-leg bridge
// orchestration, the IVR dialog state machine and the in-memory session
// registry. It drives the external collaborators (signaling adapter,
// media relay, media server, room service, persistence) through the
// narrow interfaces in internal/signaling and internal/media.
package call

import (
	"sync"
	"time"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/signaling"
)

// State is the lifecycle state of a call session.
type State string

const (
	StateInitiated   State = "initiated"
	StateNegotiating State = "negotiating"
	StateBridged     State = "bridged"
	StateTearingDown State = "tearing_down"
	StateClosed      State = "closed"
	StateRejected    State = "rejected"
)

// Session is one active call tracked by the registry, from provisional
// accept until both legs have confirmed teardown. It is owned by the
// orchestrator or dialog engine handling the call; other components
// observe it through View.
type Session struct {
	// CallID is the opaque identifier correlating all events of the call.
	CallID string

	// From is the caller address, To the dialed destination.
	From string
	To   string

	// FromTag and ToTag are the dialog tags naming the caller and
	// callee sides of the negotiation.
	FromTag string
	ToTag   string

	// Caller is the caller-facing leg.
	Caller signaling.Leg

	// Callee is the callee-facing leg: the dialed destination on the
	// direct path, the media-server endpoint on the IVR and room paths.
	Callee signaling.Leg

	// Negotiated records whether a relay session exists for this call
	// and must be released on teardown.
	Negotiated bool

	// RoomName is set on the WebRTC room path.
	RoomName string

	// StartTime is when the call was accepted.
	StartTime time.Time

	// mu guards the fields mutated while the session is published:
	// the lifecycle state and the IVR dialog state. Everything above
	// is written once before the session reaches the registry.
	mu           sync.Mutex
	state        State
	currentMenu  string
	invalidCount int

	// teardown guards the teardown routine: both legs terminating
	// near-simultaneously must run it exactly once.
	teardown sync.Once
}

// SetState transitions the session's lifecycle state.
func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// CurrentState returns the session's lifecycle state.
func (s *Session) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// enterMenu makes a menu current and resets the invalid-entry counter.
func (s *Session) enterMenu(menuID string) {
	s.mu.Lock()
	s.currentMenu = menuID
	s.invalidCount = 0
	s.mu.Unlock()
}

// menuID returns the current IVR menu, empty outside a dialog.
func (s *Session) menuID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentMenu
}

// markValid resets the invalid-entry counter after a mapped digit.
func (s *Session) markValid() {
	s.mu.Lock()
	s.invalidCount = 0
	s.mu.Unlock()
}

// markInvalid bumps the invalid-entry counter and returns its new value.
func (s *Session) markInvalid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidCount++
	return s.invalidCount
}

// SessionView is a point-in-time copy of a session's observable state,
// safe to read after the session escapes the call engine.
type SessionView struct {
	CallID    string
	From      string
	To        string
	State     State
	RoomName  string
	Menu      string
	StartTime time.Time
}

// View snapshots the session under its lock.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		CallID:    s.CallID,
		From:      s.From,
		To:        s.To,
		State:     s.state,
		RoomName:  s.RoomName,
		Menu:      s.currentMenu,
		StartTime: s.StartTime,
	}
}
