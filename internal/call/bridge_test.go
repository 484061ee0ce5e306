package call

import (
	"context"
	"errors"
	"testing"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/media"
)

type bridgeFixture struct {
	registry   *Registry
	negotiator *fakeNegotiator
	dialer     *fakeDialer
	mediaSrv   *fakeMediaServer
	callLogs   *fakeCallLogs
	orch       *Orchestrator
}

func newBridgeFixture(strategy string) *bridgeFixture {
	f := &bridgeFixture{
		registry:   NewRegistry(testLogger()),
		negotiator: &fakeNegotiator{},
		dialer: &fakeDialer{
			leg:    newFakeLeg("callee"),
			answer: []byte("answer-sdp"),
			toTag:  "tag-callee",
		},
		mediaSrv: &fakeMediaServer{
			ep:     newFakeEndpoint("park"),
			answer: []byte("park-answer"),
			toTag:  "tag-park",
		},
		callLogs: &fakeCallLogs{},
	}
	f.orch = NewOrchestrator(f.registry, f.negotiator, f.dialer, f.mediaSrv,
		f.callLogs, testOrchestratorConfig(strategy), testLogger())
	return f
}

func TestBridgeCallDirectPath(t *testing.T) {
	f := newBridgeFixture(StrategyRelay)
	reply := newFakeReply()
	req := testRequest("call-1", "1001", "6000")

	if err := f.orch.BridgeCall(context.Background(), req, reply); err != nil {
		t.Fatalf("BridgeCall: %v", err)
	}

	if !reply.accepted {
		t.Fatal("caller was not accepted")
	}
	if string(reply.acceptedAt) != "neg:answer-sdp" {
		t.Errorf("caller answer = %q, want negotiated answer", reply.acceptedAt)
	}
	if got := f.dialer.dials; len(got) != 1 || got[0] != "6000" {
		t.Errorf("dials = %v, want [6000]", got)
	}
	if statuses := f.callLogs.loggedStatuses(); len(statuses) != 1 || statuses[0] != "direct" {
		t.Errorf("logged statuses = %v, want [direct]", statuses)
	}
	if f.registry.ActiveCount() != 1 {
		t.Errorf("active sessions = %d, want 1", f.registry.ActiveCount())
	}

	// Callee hangs up: teardown must destroy the caller leg, release
	// the relay session, finalize the log and empty the registry.
	f.dialer.leg.hangup()

	waitFor(t, func() bool { return f.registry.ActiveCount() == 0 }, "registry not emptied after hangup")
	waitFor(t, func() bool { return reply.leg.destroyCount() > 0 }, "caller leg not destroyed")
	waitFor(t, func() bool { return f.callLogs.finalizeCount() == 1 }, "call log not finalized")
	waitFor(t, func() bool { return f.negotiator.teardownCount() == 1 }, "relay session not released")

	f.callLogs.mu.Lock()
	finalized := f.callLogs.finalized[0]
	f.callLogs.mu.Unlock()
	if finalized != "call-1:completed" {
		t.Errorf("finalized = %q, want call-1:completed", finalized)
	}
}

func TestBridgeCallOrderOfOperations(t *testing.T) {
	f := newBridgeFixture(StrategyRelay)
	reply := newFakeReply()

	if err := f.orch.BridgeCall(context.Background(), testRequest("call-1", "1001", "6000"), reply); err != nil {
		t.Fatalf("BridgeCall: %v", err)
	}

	// The callee leg must receive the relay-rewritten offer, not the raw one.
	if len(f.dialer.offers) != 1 || string(f.dialer.offers[0])[:4] != "neg:" {
		t.Errorf("callee offer = %q, want negotiated offer", f.dialer.offers[0])
	}
}

func TestBridgeCallProxyStrategySkipsNegotiation(t *testing.T) {
	f := newBridgeFixture(StrategyProxy)
	reply := newFakeReply()

	if err := f.orch.BridgeCall(context.Background(), testRequest("call-1", "1001", "6000"), reply); err != nil {
		t.Fatalf("BridgeCall: %v", err)
	}

	if f.negotiator.offers != 0 || f.negotiator.answers != 0 {
		t.Errorf("proxy strategy must not touch the negotiator: offers=%d answers=%d",
			f.negotiator.offers, f.negotiator.answers)
	}
	if string(reply.acceptedAt) != "answer-sdp" {
		t.Errorf("caller answer = %q, want pass-through", reply.acceptedAt)
	}

	// Proxy teardown must not issue a relay delete either.
	f.dialer.leg.hangup()
	waitFor(t, func() bool { return f.registry.ActiveCount() == 0 }, "registry not emptied")
	if f.negotiator.teardownCount() != 0 {
		t.Errorf("teardowns = %d, want 0 under proxy strategy", f.negotiator.teardownCount())
	}
}

func TestBridgeCallNegotiationTimeout(t *testing.T) {
	f := newBridgeFixture(StrategyRelay)
	f.negotiator.offerErr = media.ErrNegotiationTimeout
	reply := newFakeReply()

	err := f.orch.BridgeCall(context.Background(), testRequest("call-1", "1001", "6000"), reply)
	if !errors.Is(err, media.ErrNegotiationTimeout) {
		t.Fatalf("err = %v, want ErrNegotiationTimeout", err)
	}

	// No relay session was created, so nothing to delete; no session,
	// no log entry, no dial attempt.
	if f.negotiator.teardownCount() != 0 {
		t.Errorf("teardowns = %d, want 0", f.negotiator.teardownCount())
	}
	if f.registry.ActiveCount() != 0 {
		t.Error("no session should persist after a failed negotiation")
	}
	if len(f.callLogs.loggedStatuses()) != 0 {
		t.Error("no call log should be written for a rejected call")
	}
	if len(f.dialer.dials) != 0 {
		t.Error("callee must not be dialed after a failed offer step")
	}
}

func TestBridgeCallDialFailureReleasesRelay(t *testing.T) {
	f := newBridgeFixture(StrategyRelay)
	f.dialer.err = errors.New("destination unreachable")
	reply := newFakeReply()

	err := f.orch.BridgeCall(context.Background(), testRequest("call-1", "1001", "6000"), reply)
	if !errors.Is(err, ErrBridgeFailed) {
		t.Fatalf("err = %v, want ErrBridgeFailed", err)
	}

	// The offer step succeeded, so the partially-established relay
	// session must still be deleted.
	if f.negotiator.teardownCount() != 1 {
		t.Errorf("teardowns = %d, want 1", f.negotiator.teardownCount())
	}
	if f.registry.ActiveCount() != 0 {
		t.Error("no session should persist after a failed dial")
	}
}

func TestBridgeCallRelayRejectionRepliesTemporarilyUnavailable(t *testing.T) {
	f := newBridgeFixture(StrategyRelay)
	f.negotiator.offerErr = errors.New("relay offer rejected: unsupported codec")

	r := NewRouter([]Route{
		{Name: "direct", Match: Exact("6000"), Handle: f.orch.BridgeCall},
	}, testLogger())

	reply := newFakeReply()
	r.Dispatch(context.Background(), testRequest("call-1", "1001", "6000"), reply)

	// Any relay failure during negotiation is a transient condition,
	// not a server fault.
	if !reply.rejected || reply.rejectCode != 480 {
		t.Fatalf("reject = %v code %d, want 480", reply.rejected, reply.rejectCode)
	}
}

func TestBridgeCallAnswerFailureDestroysCallee(t *testing.T) {
	f := newBridgeFixture(StrategyRelay)
	f.negotiator.answerErr = errors.New("relay rejected answer")
	reply := newFakeReply()

	err := f.orch.BridgeCall(context.Background(), testRequest("call-1", "1001", "6000"), reply)
	if !errors.Is(err, ErrBridgeFailed) {
		t.Fatalf("err = %v, want ErrBridgeFailed", err)
	}

	if f.dialer.leg.destroyCount() != 1 {
		t.Error("callee leg must be destroyed when answer negotiation fails")
	}
	if f.negotiator.teardownCount() != 1 {
		t.Error("relay session must be released when answer negotiation fails")
	}
}

func TestTeardownIdempotentAcrossBothLegs(t *testing.T) {
	f := newBridgeFixture(StrategyRelay)
	reply := newFakeReply()

	if err := f.orch.BridgeCall(context.Background(), testRequest("call-1", "1001", "6000"), reply); err != nil {
		t.Fatalf("BridgeCall: %v", err)
	}

	sess, ok := f.registry.Get("call-1")
	if !ok {
		t.Fatal("session not registered")
	}

	// Simulate both legs terminating near-simultaneously.
	f.orch.Teardown(sess, "completed")
	f.orch.Teardown(sess, "completed")

	if f.callLogs.finalizeCount() != 1 {
		t.Errorf("finalizations = %d, want exactly 1", f.callLogs.finalizeCount())
	}
	if f.negotiator.teardownCount() != 1 {
		t.Errorf("relay deletes = %d, want exactly 1", f.negotiator.teardownCount())
	}
	if f.registry.ActiveCount() != 0 {
		t.Error("registry should be empty after teardown")
	}
	if got := sess.CurrentState(); got != StateClosed {
		t.Errorf("state = %q, want %q", got, StateClosed)
	}
}

func TestConnectInteractive(t *testing.T) {
	f := newBridgeFixture(StrategyRelay)
	reply := newFakeReply()

	ep, sess, err := f.orch.ConnectInteractive(context.Background(),
		testRequest("call-1", "1001", "9999"), reply, "ivr", "")
	if err != nil {
		t.Fatalf("ConnectInteractive: %v", err)
	}
	if ep == nil || sess == nil {
		t.Fatal("expected endpoint and session")
	}

	if statuses := f.callLogs.loggedStatuses(); len(statuses) != 1 || statuses[0] != "ivr" {
		t.Errorf("logged statuses = %v, want [ivr]", statuses)
	}
	if !reply.accepted {
		t.Error("caller was not accepted")
	}

	// Caller hangup tears down the parked endpoint too.
	reply.leg.hangup()
	waitFor(t, func() bool { return f.mediaSrv.ep.destroyCount() > 0 }, "endpoint not destroyed")
	waitFor(t, func() bool { return f.registry.ActiveCount() == 0 }, "registry not emptied")
}

func TestTransferBridgesEndpointToDialedLeg(t *testing.T) {
	f := newBridgeFixture(StrategyProxy)
	sess := &Session{CallID: "call-1", To: "9999"}
	ep := newFakeEndpoint("park")

	if err := f.orch.Transfer(context.Background(), sess, ep, "201"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if len(f.dialer.dials) != 1 || f.dialer.dials[0] != "201" {
		t.Errorf("dials = %v, want [201]", f.dialer.dials)
	}
	if len(f.mediaSrv.bridged) != 1 {
		t.Fatalf("bridges = %d, want 1", len(f.mediaSrv.bridged))
	}
	if got := f.mediaSrv.bridged[0]; got[0] != "park" || got[1] != "callee" {
		t.Errorf("bridged = %v", got)
	}
}
