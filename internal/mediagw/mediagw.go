// Package mediagw drives a FreeSWITCH media gateway over its event
// socket. It implements signaling.MediaServer: callers are parked on
// the gateway for interactive handling (prompt playback, DTMF
// collection) and established legs are bridged with uuid_bridge.
//
// Call legs reach the gateway as ordinary SIP calls through the
// engine's dialer; the gateway correlates each leg with its FreeSWITCH
// channel by the SIP Call-ID carried in the channel events.
package mediagw

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fiorix/go-eventsocket/eventsocket"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/signaling"
)

// Config carries the gateway's connection and routing settings.
type Config struct {
	// Addr is the event socket address, host:port.
	Addr string

	// Password is the event socket auth password.
	Password string

	// ParkDest is the destination user dialed to park a caller on the
	// gateway, e.g. "park".
	ParkDest string

	// ReconnectInterval is the wait between reconnect attempts after
	// the event socket drops.
	ReconnectInterval time.Duration
}

// subscribedEvents is the event set the gateway consumes. Channel
// events carry the SIP Call-ID mapping, DTMF feeds the endpoints,
// and execute-complete signals end of playback.
const subscribedEvents = "event plain CHANNEL_ANSWER CHANNEL_PARK CHANNEL_HANGUP CHANNEL_EXECUTE_COMPLETE DTMF"

// conn is the slice of *eventsocket.Connection the gateway uses.
type conn interface {
	Send(command string) (*eventsocket.Event, error)
	ExecuteUUID(uuid, app, arg string) (*eventsocket.Event, error)
	ReadEvent() (*eventsocket.Event, error)
	Close()
}

func dialESL(addr, password string) (conn, error) {
	return eventsocket.Dial(addr, password)
}

// Gateway is the FreeSWITCH adapter. One event socket connection
// serves both commands and the event stream; the library serializes
// command replies away from events internally.
type Gateway struct {
	cfg    Config
	dialer signaling.Dialer
	dial   func(addr, password string) (conn, error)
	logger *slog.Logger

	mu       sync.Mutex
	conn     conn
	closed   bool
	channels map[string]string        // SIP Call-ID -> channel UUID
	waiters  map[string][]chan string // SIP Call-ID -> resolution waiters
	eps      map[string]*endpoint     // channel UUID -> endpoint
}

// NewGateway builds the adapter. dialer originates the SIP legs that
// carry media to the gateway; it is the same dialer the call engine
// uses for outbound legs.
func NewGateway(cfg Config, dialer signaling.Dialer, logger *slog.Logger) *Gateway {
	if cfg.ParkDest == "" {
		cfg.ParkDest = "park"
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	return &Gateway{
		cfg:      cfg,
		dialer:   dialer,
		dial:     dialESL,
		logger:   logger.With("subsystem", "mediagw"),
		channels: make(map[string]string),
		waiters:  make(map[string][]chan string),
		eps:      make(map[string]*endpoint),
	}
}

// Connect establishes the event socket session and starts the event
// loop. The loop reconnects on its own until Close is called.
func (g *Gateway) Connect() error {
	c, err := g.connect()
	if err != nil {
		return err
	}
	go g.run(c)
	return nil
}

func (g *Gateway) connect() (conn, error) {
	c, err := g.dial(g.cfg.Addr, g.cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("connecting event socket %s: %w", g.cfg.Addr, err)
	}
	if _, err := c.Send(subscribedEvents); err != nil {
		c.Close()
		return nil, fmt.Errorf("subscribing events: %w", err)
	}

	g.mu.Lock()
	g.conn = c
	g.mu.Unlock()

	g.logger.Info("event socket connected", "addr", g.cfg.Addr)
	return c, nil
}

// Close shuts the event socket down and terminates every endpoint
// still anchored on the gateway.
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	c := g.conn
	g.conn = nil
	eps := make([]*endpoint, 0, len(g.eps))
	for _, ep := range g.eps {
		eps = append(eps, ep)
	}
	g.eps = make(map[string]*endpoint)
	g.mu.Unlock()

	for _, ep := range eps {
		ep.finish()
	}
	if c != nil {
		c.Close()
	}
}

// run consumes the event stream until the connection drops, then
// reconnects unless the gateway was closed.
func (g *Gateway) run(c conn) {
	for {
		ev, err := c.ReadEvent()
		if err != nil {
			g.mu.Lock()
			closed := g.closed
			g.mu.Unlock()
			if closed {
				return
			}

			g.logger.Error("event socket lost", "error", err)
			c.Close()
			for {
				time.Sleep(g.cfg.ReconnectInterval)
				g.mu.Lock()
				if g.closed {
					g.mu.Unlock()
					return
				}
				g.mu.Unlock()

				next, err := g.connect()
				if err != nil {
					g.logger.Error("event socket reconnect failed", "error", err)
					continue
				}
				c = next
				break
			}
			continue
		}
		g.handleEvent(ev)
	}
}

func (g *Gateway) handleEvent(ev *eventsocket.Event) {
	uuid := ev.Get("Unique-Id")
	if uuid == "" {
		return
	}

	switch ev.Get("Event-Name") {
	case "CHANNEL_PARK", "CHANNEL_ANSWER":
		if sipCallID := ev.Get("Variable_sip_call_id"); sipCallID != "" {
			g.registerChannel(sipCallID, uuid)
		}
	case "CHANNEL_HANGUP":
		g.channelHangup(uuid)
	case "CHANNEL_EXECUTE_COMPLETE":
		if ep := g.endpointFor(uuid); ep != nil {
			ep.executeComplete(ev.Get("Application"))
		}
	case "DTMF":
		if ep := g.endpointFor(uuid); ep != nil {
			ep.deliverDigit(ev.Get("Dtmf-Digit"))
		}
	}
}

// registerChannel records the Call-ID to channel mapping and releases
// any resolver waiting on it.
func (g *Gateway) registerChannel(sipCallID, uuid string) {
	g.mu.Lock()
	g.channels[sipCallID] = uuid
	waiters := g.waiters[sipCallID]
	delete(g.waiters, sipCallID)
	g.mu.Unlock()

	for _, w := range waiters {
		w <- uuid
	}
}

func (g *Gateway) channelHangup(uuid string) {
	g.mu.Lock()
	ep := g.eps[uuid]
	delete(g.eps, uuid)
	for callID, u := range g.channels {
		if u == uuid {
			delete(g.channels, callID)
		}
	}
	g.mu.Unlock()

	if ep != nil {
		ep.finish()
	}
}

func (g *Gateway) endpointFor(uuid string) *endpoint {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.eps[uuid]
}

// resolveChannel waits for the gateway to see the channel belonging to
// the given SIP Call-ID.
func (g *Gateway) resolveChannel(ctx context.Context, sipCallID string) (string, error) {
	g.mu.Lock()
	if uuid, ok := g.channels[sipCallID]; ok {
		g.mu.Unlock()
		return uuid, nil
	}
	w := make(chan string, 1)
	g.waiters[sipCallID] = append(g.waiters[sipCallID], w)
	g.mu.Unlock()

	select {
	case uuid := <-w:
		return uuid, nil
	case <-ctx.Done():
		g.mu.Lock()
		remaining := g.waiters[sipCallID][:0]
		for _, o := range g.waiters[sipCallID] {
			if o != w {
				remaining = append(remaining, o)
			}
		}
		if len(remaining) == 0 {
			delete(g.waiters, sipCallID)
		} else {
			g.waiters[sipCallID] = remaining
		}
		g.mu.Unlock()
		return "", fmt.Errorf("waiting for channel of call %s: %w", sipCallID, ctx.Err())
	}
}

// Park dials the gateway's park destination carrying the offer and
// binds the resulting FreeSWITCH channel as an interactive endpoint.
func (g *Gateway) Park(ctx context.Context, callID string, offer []byte) (signaling.Endpoint, []byte, string, error) {
	res, err := g.dialer.Dial(ctx, g.cfg.ParkDest, offer, map[string]string{
		"X-Engine-Call": callID,
	})
	if err != nil {
		return nil, nil, "", fmt.Errorf("dialing park destination: %w", err)
	}

	uuid, err := g.resolveChannel(ctx, res.Leg.ID())
	if err != nil {
		res.Leg.Destroy()
		return nil, nil, "", err
	}

	ep := newEndpoint(g, uuid, res.Leg)
	g.mu.Lock()
	g.eps[uuid] = ep
	g.mu.Unlock()

	g.logger.Info("caller parked",
		"call_id", callID,
		"channel", uuid,
	)
	return ep, res.Answer, res.ToTag, nil
}

// Bridge connects two legs anchored on the gateway with uuid_bridge.
func (g *Gateway) Bridge(ctx context.Context, a, b signaling.Leg) error {
	aUUID, err := g.channelUUID(ctx, a)
	if err != nil {
		return err
	}
	bUUID, err := g.channelUUID(ctx, b)
	if err != nil {
		return err
	}

	ev, err := g.api(fmt.Sprintf("uuid_bridge %s %s", aUUID, bUUID))
	if err != nil {
		return fmt.Errorf("bridging %s to %s: %w", aUUID, bUUID, err)
	}
	if strings.HasPrefix(ev.Body, "-ERR") {
		return fmt.Errorf("bridging %s to %s: %s", aUUID, bUUID, strings.TrimSpace(ev.Body))
	}
	return nil
}

// channelUUID maps a leg to its FreeSWITCH channel. Endpoints created
// by Park already carry the channel; any other leg is resolved by its
// SIP Call-ID.
func (g *Gateway) channelUUID(ctx context.Context, leg signaling.Leg) (string, error) {
	if ep, ok := leg.(*endpoint); ok {
		return ep.uuid, nil
	}
	return g.resolveChannel(ctx, leg.ID())
}

func (g *Gateway) api(command string) (*eventsocket.Event, error) {
	g.mu.Lock()
	c := g.conn
	g.mu.Unlock()
	if c == nil {
		return nil, fmt.Errorf("event socket not connected")
	}
	return c.Send("api " + command)
}

func (g *Gateway) executeUUID(uuid, app, arg string) error {
	g.mu.Lock()
	c := g.conn
	g.mu.Unlock()
	if c == nil {
		return fmt.Errorf("event socket not connected")
	}
	_, err := c.ExecuteUUID(uuid, app, arg)
	return err
}
