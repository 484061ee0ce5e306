// Package sip adapts the sipgo stack to the call engine's signaling
// contracts. The server parses inbound INVITEs into signaling requests
// and hands them to the dispatcher; the dialer originates outbound
// legs. All dialog state the engine needs lives in the leg table.
package sip

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/signaling"
)

// Config carries the SIP listener and identity settings.
type Config struct {
	// Host is the advertised host for Contact headers.
	Host string

	// Port is the listen port for UDP and TCP.
	Port int

	// UserAgent is the User-Agent name announced on the wire.
	UserAgent string

	// ContactUser is the user part of the engine's Contact URI.
	ContactUser string
}

// Dispatcher routes a parsed inbound request. *call.Router implements
// it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req signaling.Request, reply signaling.Reply)
}

// Server wraps the sipgo UA, server and client with the engine's
// handlers.
type Server struct {
	cfg        Config
	ua         *sipgo.UserAgent
	srv        *sipgo.Server
	client     *sipgo.Client
	legs       *legTable
	dispatcher Dispatcher
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewServer creates the SIP front end with all handlers registered.
// The dispatcher is bound separately via SetDispatcher because the call
// engine is constructed around this server's Dialer.
func NewServer(cfg Config, logger *slog.Logger) (*Server, error) {
	logger = logger.With("component", "sip")

	if cfg.UserAgent == "" {
		cfg.UserAgent = "callserver"
	}
	if cfg.ContactUser == "" {
		cfg.ContactUser = "callserver"
	}

	ua, err := sipgo.NewUA(
		sipgo.WithUserAgent(cfg.UserAgent),
		sipgo.WithUserAgentHostname(cfg.Host),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sip user agent: %w", err)
	}

	srv, err := sipgo.NewServer(ua,
		sipgo.WithServerLogger(logger),
	)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("creating sip server: %w", err)
	}

	client, err := sipgo.NewClient(ua,
		sipgo.WithClientLogger(logger.With("subsystem", "client")),
	)
	if err != nil {
		srv.Close()
		ua.Close()
		return nil, fmt.Errorf("creating sip client: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		ua:     ua,
		srv:    srv,
		client: client,
		legs:   newLegTable(),
		logger: logger,
	}

	s.registerHandlers()
	return s, nil
}

// SetDispatcher binds the inbound request dispatcher. Must be called
// before Start.
func (s *Server) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

func (s *Server) registerHandlers() {
	s.srv.OnInvite(s.handleInvite)
	s.srv.OnBye(s.handleBye)
	s.srv.OnAck(s.handleACK)
	s.srv.OnOptions(s.handleOptions)
}

// Dialer returns the outbound dialer sharing this server's client and
// leg table, so inbound BYEs for dialed legs are matched here.
func (s *Server) Dialer(peerAddr string) *Dialer {
	return newDialer(s.client, s.legs, peerAddr, s.contactHeader(), s.logger)
}

// Start begins listening on UDP and TCP. It returns once the listeners
// are launched; listener failures are logged.
func (s *Server) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	addr := fmt.Sprintf("0.0.0.0:%d", s.cfg.Port)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("sip udp listener starting", "addr", addr)
		if err := s.srv.ListenAndServe(ctx, "udp", addr); err != nil {
			s.logger.Error("sip udp listener stopped", "error", err)
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("sip tcp listener starting", "addr", addr)
		if err := s.srv.ListenAndServe(ctx, "tcp", addr); err != nil {
			s.logger.Error("sip tcp listener stopped", "error", err)
		}
	}()

	return nil
}

// Stop shuts down the listeners and waits for the handler goroutines.
func (s *Server) Stop() {
	s.logger.Info("stopping sip server")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.srv.Close()
	s.ua.Close()
	s.logger.Info("sip server stopped")
}

func (s *Server) contactHeader() *sip.ContactHeader {
	return &sip.ContactHeader{
		Address: sip.Uri{
			User: s.cfg.ContactUser,
			Host: s.cfg.Host,
			Port: s.cfg.Port,
		},
	}
}

// handleInvite parses the INVITE into a signaling request and runs the
// dispatcher. The dispatcher (or the handler it picks) answers the
// transaction through the reply; the router guarantees every request
// gets exactly one final response.
func (s *Server) handleInvite(req *sip.Request, tx sip.ServerTransaction) {
	sigReq := parseInvite(req)

	if s.dispatcher == nil {
		s.logger.Error("invite received before dispatcher bound", "call_id", sigReq.CallID)
		res := sip.NewResponseFromRequest(req, 503, "Service Unavailable", nil)
		if err := tx.Respond(res); err != nil {
			s.logger.Error("failed to respond to invite", "error", err)
		}
		return
	}

	s.logger.Info("invite received",
		"call_id", sigReq.CallID,
		"from", sigReq.From,
		"to", sigReq.To,
		"source", req.Source(),
	)

	// 100 Trying stops UAC retransmissions while routing runs.
	trying := sip.NewResponseFromRequest(req, 100, "Trying", nil)
	if err := tx.Respond(trying); err != nil {
		s.logger.Error("failed to send 100 trying",
			"call_id", sigReq.CallID,
			"error", err,
		)
		return
	}

	reply := &inviteReply{
		srv: s,
		req: req,
		tx:  tx,
	}
	s.dispatcher.Dispatch(context.Background(), sigReq, reply)
}

// handleBye matches the BYE to an established leg and terminates it.
// The leg's Done channel firing is what drives the engine's teardown.
func (s *Server) handleBye(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}

	leg := s.legs.get(callID)
	if leg == nil {
		s.logger.Debug("bye for unknown dialog",
			"call_id", callID,
			"source", req.Source(),
		)
		res := sip.NewResponseFromRequest(req, 481, "Call/Transaction Does Not Exist", nil)
		if err := tx.Respond(res); err != nil {
			s.logger.Error("failed to respond to bye", "error", err)
		}
		return
	}

	s.logger.Info("bye received",
		"call_id", callID,
		"source", req.Source(),
	)

	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	if err := tx.Respond(res); err != nil {
		s.logger.Error("failed to respond to bye", "error", err)
	}

	leg.remoteHangup()
}

// handleACK logs dialog confirmation. ACKs are not transactional and
// need no response.
func (s *Server) handleACK(req *sip.Request, tx sip.ServerTransaction) {
	callID := ""
	if cid := req.CallID(); cid != nil {
		callID = cid.Value()
	}
	s.logger.Debug("sip ack received",
		"call_id", callID,
		"source", req.Source(),
	)
}

// handleOptions responds to keepalive pings.
func (s *Server) handleOptions(req *sip.Request, tx sip.ServerTransaction) {
	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	res.AppendHeader(sip.NewHeader("Accept", "application/sdp"))
	res.AppendHeader(sip.NewHeader("Allow", "INVITE, ACK, CANCEL, BYE, OPTIONS"))

	if err := tx.Respond(res); err != nil {
		s.logger.Error("failed to respond to options", "error", err)
	}
}

// parseInvite extracts the routing fields the engine needs from an
// INVITE.
func parseInvite(req *sip.Request) signaling.Request {
	sigReq := signaling.Request{
		Offer: req.Body(),
	}

	if cid := req.CallID(); cid != nil {
		sigReq.CallID = cid.Value()
	}
	if from := req.From(); from != nil {
		sigReq.From = from.Address.User
		if tag, ok := from.Params.Get("tag"); ok {
			sigReq.FromTag = tag
		}
	}
	if to := req.To(); to != nil {
		sigReq.To = to.Address.User
	}
	return sigReq
}
