package call

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/database/models"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/signaling"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLeg is a controllable signaling.Leg.
type fakeLeg struct {
	id string

	mu        sync.Mutex
	destroyed int
	done      chan struct{}
	closed    bool
}

func newFakeLeg(id string) *fakeLeg {
	return &fakeLeg{id: id, done: make(chan struct{})}
}

func (l *fakeLeg) ID() string { return l.id }

func (l *fakeLeg) Destroy() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.destroyed++
	if !l.closed {
		l.closed = true
		close(l.done)
	}
	return nil
}

func (l *fakeLeg) Done() <-chan struct{} { return l.done }

// hangup simulates the remote party terminating the leg.
func (l *fakeLeg) hangup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.done)
	}
}

func (l *fakeLeg) destroyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.destroyed
}

// fakeEndpoint is a fakeLeg with media operations.
type fakeEndpoint struct {
	fakeLeg

	playedMu sync.Mutex
	played   []string
	digits   chan string
}

func newFakeEndpoint(id string) *fakeEndpoint {
	return &fakeEndpoint{
		fakeLeg: fakeLeg{id: id, done: make(chan struct{})},
		digits:  make(chan string, 8),
	}
}

func (e *fakeEndpoint) Play(_ context.Context, resource string) error {
	e.playedMu.Lock()
	defer e.playedMu.Unlock()
	e.played = append(e.played, resource)
	return nil
}

func (e *fakeEndpoint) Digits() <-chan string { return e.digits }

// fakeReply records the single reply given to a request.
type fakeReply struct {
	mu         sync.Mutex
	acceptedAt []byte
	accepted   bool
	rejectCode int
	rejectWhy  string
	rejected   bool
	acceptErr  error
	leg        *fakeLeg
}

func newFakeReply() *fakeReply {
	return &fakeReply{leg: newFakeLeg("caller")}
}

func (r *fakeReply) Accept(_ context.Context, answer []byte) (signaling.Leg, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acceptErr != nil {
		return nil, r.acceptErr
	}
	r.accepted = true
	r.acceptedAt = answer
	return r.leg, nil
}

func (r *fakeReply) Reject(code int, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = true
	r.rejectCode = code
	r.rejectWhy = reason
	return nil
}

func (r *fakeReply) rejectedCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejectCode
}

// fakeDialer returns a canned outbound leg.
type fakeDialer struct {
	mu     sync.Mutex
	dials  []string
	offers [][]byte
	leg    *fakeLeg
	answer []byte
	toTag  string
	err    error
}

func (d *fakeDialer) Dial(_ context.Context, dest string, offer []byte, _ map[string]string) (*signaling.DialResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials = append(d.dials, dest)
	d.offers = append(d.offers, offer)
	if d.err != nil {
		return nil, d.err
	}
	return &signaling.DialResult{Leg: d.leg, Answer: d.answer, ToTag: d.toTag}, nil
}

// fakeMediaServer parks callers on a canned endpoint.
type fakeMediaServer struct {
	mu      sync.Mutex
	parked  []string
	bridged [][2]string
	ep      *fakeEndpoint
	answer  []byte
	toTag   string
	parkErr error
}

func (m *fakeMediaServer) Park(_ context.Context, callID string, _ []byte) (signaling.Endpoint, []byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parked = append(m.parked, callID)
	if m.parkErr != nil {
		return nil, nil, "", m.parkErr
	}
	return m.ep, m.answer, m.toTag, nil
}

func (m *fakeMediaServer) Bridge(_ context.Context, a, b signaling.Leg) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bridged = append(m.bridged, [2]string{a.ID(), b.ID()})
	return nil
}

// fakeNegotiator records adapter calls and returns pass-through SDP.
type fakeNegotiator struct {
	mu        sync.Mutex
	offers    int
	answers   int
	teardowns int
	offerErr  error
	answerErr error
}

func (n *fakeNegotiator) NegotiateOffer(_ context.Context, _, _ string, offer []byte) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.offerErr != nil {
		return nil, n.offerErr
	}
	n.offers++
	return append([]byte("neg:"), offer...), nil
}

func (n *fakeNegotiator) NegotiateAnswer(_ context.Context, _, _, _ string, answer []byte) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.answerErr != nil {
		return nil, n.answerErr
	}
	n.answers++
	return append([]byte("neg:"), answer...), nil
}

func (n *fakeNegotiator) Teardown(_ context.Context, _, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.teardowns++
}

func (n *fakeNegotiator) teardownCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.teardowns
}

// fakeCallLogs counts repository writes.
type fakeCallLogs struct {
	mu        sync.Mutex
	logged    []*models.CallLog
	finalized []string
	logErr    error
}

func (f *fakeCallLogs) Log(_ context.Context, log *models.CallLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.logErr != nil {
		return f.logErr
	}
	f.logged = append(f.logged, log)
	return nil
}

func (f *fakeCallLogs) Finalize(_ context.Context, callID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized = append(f.finalized, callID+":"+status)
	return nil
}

func (f *fakeCallLogs) GetByCallID(context.Context, string) (*models.CallLog, error) {
	return nil, nil
}

func (f *fakeCallLogs) ListRecent(context.Context, int) ([]models.CallLog, error) {
	return nil, nil
}

func (f *fakeCallLogs) CountByStatus(context.Context) (map[string]int, error) {
	return nil, nil
}

func (f *fakeCallLogs) CountSince(context.Context, string) (int, error) {
	return 0, nil
}

func (f *fakeCallLogs) finalizeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.finalized)
}

func (f *fakeCallLogs) loggedStatuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.logged))
	for i, l := range f.logged {
		out[i] = l.Status
	}
	return out
}

// fakeMenus is an in-memory MenuRepository.
type fakeMenus struct {
	menus   map[string]*models.IVRMenu
	options map[string]*models.MenuOption // keyed by menuID+"/"+digit
}

func newFakeMenus() *fakeMenus {
	return &fakeMenus{
		menus:   make(map[string]*models.IVRMenu),
		options: make(map[string]*models.MenuOption),
	}
}

func (f *fakeMenus) addMenu(id, welcome string) {
	f.menus[id] = &models.IVRMenu{MenuID: id, Name: id, WelcomeMessage: welcome}
}

func (f *fakeMenus) addOption(menuID, digit, actionType, actionValue string) {
	f.options[menuID+"/"+digit] = &models.MenuOption{
		MenuID: menuID, Digit: digit, ActionType: actionType, ActionValue: actionValue,
	}
}

func (f *fakeMenus) GetMenu(_ context.Context, menuID string) (*models.IVRMenu, error) {
	return f.menus[menuID], nil
}

func (f *fakeMenus) GetOption(_ context.Context, menuID, digit string) (*models.MenuOption, error) {
	return f.options[menuID+"/"+digit], nil
}

func (f *fakeMenus) ListMenus(context.Context) ([]models.IVRMenu, error) {
	return nil, nil
}

// fakePrompter records spoken prompts.
type fakePrompter struct {
	mu     sync.Mutex
	spoken []string
	files  []string
}

func (p *fakePrompter) Speak(_ context.Context, _ signaling.Endpoint, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spoken = append(p.spoken, text)
}

func (p *fakePrompter) PlayFile(_ context.Context, _ signaling.Endpoint, resource string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files = append(p.files, resource)
}

func (p *fakePrompter) spokenTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.spoken...)
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func testRequest(callID, from, to string) signaling.Request {
	return signaling.Request{
		CallID:  callID,
		From:    from,
		To:      to,
		FromTag: "tag-" + callID,
		Offer:   []byte("v=0\r\ns=-\r\nt=0 0\r\nm=audio 6000 RTP/AVP 0\r\n"),
	}
}

func testOrchestratorConfig(strategy string) OrchestratorConfig {
	return OrchestratorConfig{
		Strategy:           strategy,
		DialTimeout:        time.Second,
		NegotiationTimeout: time.Second,
	}
}
