package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/database"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/database/models"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/media"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/signaling"
)

// Bridge strategies. Relay negotiates media through the relay's
// offer/answer primitives; proxy delegates media entirely to the
// downstream signaling path and never touches SDP. The strategy is
// deployment policy, fixed at startup.
const (
	StrategyRelay = "relay"
	StrategyProxy = "proxy"
)

// Negotiator is the media negotiation adapter contract the orchestrator
// drives. *media.Negotiator implements it.
type Negotiator interface {
	NegotiateOffer(ctx context.Context, callID, fromTag string, offer []byte) ([]byte, error)
	NegotiateAnswer(ctx context.Context, callID, fromTag, toTag string, answer []byte) ([]byte, error)
	Teardown(ctx context.Context, callID, fromTag string)
}

// OrchestratorConfig carries the orchestrator's deployment policy.
type OrchestratorConfig struct {
	// Strategy is StrategyRelay or StrategyProxy.
	Strategy string

	// DialTimeout bounds callee-leg establishment.
	DialTimeout time.Duration

	// NegotiationTimeout bounds each relay offer/answer step.
	NegotiationTimeout time.Duration
}

// teardownTimeout bounds the cleanup collaborator calls. Teardown runs
// detached from any request context.
const teardownTimeout = 10 * time.Second

// Orchestrator establishes and tears down bridged call sessions.
//
// Within one call the ordering is strict: offer negotiation precedes
// callee-leg establishment, which precedes answer negotiation, which
// precedes the caller-facing accept. Whichever leg terminates first
// triggers the same teardown routine exactly once: destroy the peer,
// release the relay session, finalize the call log, remove the session.
type Orchestrator struct {
	registry    *Registry
	negotiator  Negotiator
	dialer      signaling.Dialer
	mediaServer signaling.MediaServer
	callLogs    database.CallLogRepository
	cfg         OrchestratorConfig
	logger      *slog.Logger
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(
	registry *Registry,
	negotiator Negotiator,
	dialer signaling.Dialer,
	mediaServer signaling.MediaServer,
	callLogs database.CallLogRepository,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		negotiator:  negotiator,
		dialer:      dialer,
		mediaServer: mediaServer,
		callLogs:    callLogs,
		cfg:         cfg,
		logger:      logger.With("subsystem", "bridge"),
	}
}

func (o *Orchestrator) relaying() bool {
	return o.cfg.Strategy == StrategyRelay
}

// BridgeCall is the direct-bridge handler: it originates a callee leg
// toward the dialed destination and bridges it with the caller.
func (o *Orchestrator) BridgeCall(ctx context.Context, req signaling.Request, reply signaling.Reply) error {
	sess := &Session{
		CallID:    req.CallID,
		From:      req.From,
		To:        req.To,
		FromTag:   req.FromTag,
		state:     StateInitiated,
		StartTime: time.Now().UTC(),
	}

	offer, err := o.negotiateOffer(ctx, sess, req.Offer)
	if err != nil {
		sess.SetState(StateRejected)
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, o.cfg.DialTimeout)
	defer cancel()
	res, err := o.dialer.Dial(dialCtx, req.To, offer, nil)
	if err != nil {
		o.releaseRelay(sess)
		sess.SetState(StateRejected)
		return fmt.Errorf("dialing %s: %w: %w", req.To, err, ErrBridgeFailed)
	}

	answer, err := o.negotiateAnswer(ctx, sess, res.ToTag, res.Answer)
	if err != nil {
		res.Leg.Destroy()
		o.releaseRelay(sess)
		sess.SetState(StateRejected)
		return err
	}

	caller, err := reply.Accept(ctx, answer)
	if err != nil {
		res.Leg.Destroy()
		o.releaseRelay(sess)
		sess.SetState(StateRejected)
		return fmt.Errorf("accepting caller: %w: %w", err, ErrBridgeFailed)
	}

	sess.Caller = caller
	sess.Callee = res.Leg
	sess.ToTag = res.ToTag
	sess.SetState(StateBridged)

	o.register(ctx, sess, "direct")
	go o.watch(sess)
	return nil
}

// ConnectInteractive accepts the caller and parks its media on the
// media server, returning the interactive endpoint. Used by the IVR and
// WebRTC-room paths; status names the path in the call log.
func (o *Orchestrator) ConnectInteractive(ctx context.Context, req signaling.Request, reply signaling.Reply, status, roomName string) (signaling.Endpoint, *Session, error) {
	if o.mediaServer == nil {
		return nil, nil, fmt.Errorf("no media server configured: %w", ErrDestinationNotFound)
	}

	sess := &Session{
		CallID:    req.CallID,
		From:      req.From,
		To:        req.To,
		FromTag:   req.FromTag,
		state:     StateInitiated,
		RoomName:  roomName,
		StartTime: time.Now().UTC(),
	}

	offer, err := o.negotiateOffer(ctx, sess, req.Offer)
	if err != nil {
		sess.SetState(StateRejected)
		return nil, nil, err
	}

	parkCtx, cancel := context.WithTimeout(ctx, o.cfg.DialTimeout)
	defer cancel()
	ep, epAnswer, toTag, err := o.mediaServer.Park(parkCtx, req.CallID, offer)
	if err != nil {
		o.releaseRelay(sess)
		sess.SetState(StateRejected)
		return nil, nil, fmt.Errorf("parking caller media: %w: %w", err, ErrBridgeFailed)
	}

	answer, err := o.negotiateAnswer(ctx, sess, toTag, epAnswer)
	if err != nil {
		ep.Destroy()
		o.releaseRelay(sess)
		sess.SetState(StateRejected)
		return nil, nil, err
	}

	caller, err := reply.Accept(ctx, answer)
	if err != nil {
		ep.Destroy()
		o.releaseRelay(sess)
		sess.SetState(StateRejected)
		return nil, nil, fmt.Errorf("accepting caller: %w: %w", err, ErrBridgeFailed)
	}

	sess.Caller = caller
	sess.Callee = ep
	sess.ToTag = toTag
	sess.SetState(StateBridged)

	o.register(ctx, sess, status)
	go o.watch(sess)
	return ep, sess, nil
}

// Transfer bridges an already-parked endpoint to a dialed destination.
// Wired into the IVR engine's transfer hook.
func (o *Orchestrator) Transfer(ctx context.Context, sess *Session, ep signaling.Endpoint, dest string) error {
	dialCtx, cancel := context.WithTimeout(ctx, o.cfg.DialTimeout)
	defer cancel()

	res, err := o.dialer.Dial(dialCtx, dest, nil, map[string]string{
		"X-Transferred-From": sess.To,
	})
	if err != nil {
		return fmt.Errorf("dialing transfer target %s: %w: %w", dest, err, ErrBridgeFailed)
	}

	if err := o.mediaServer.Bridge(ctx, ep, res.Leg); err != nil {
		res.Leg.Destroy()
		return fmt.Errorf("bridging transfer to %s: %w: %w", dest, err, ErrBridgeFailed)
	}

	o.logger.Info("call transferred",
		"call_id", sess.CallID,
		"dest", dest,
	)
	return nil
}

// negotiateOffer runs the relay offer step under the relay strategy and
// marks the session as holding a relay session on success. Under the
// proxy strategy the offer passes through untouched.
func (o *Orchestrator) negotiateOffer(ctx context.Context, sess *Session, offer []byte) ([]byte, error) {
	if !o.relaying() {
		return offer, nil
	}

	sess.SetState(StateNegotiating)
	negCtx, cancel := context.WithTimeout(ctx, o.cfg.NegotiationTimeout)
	defer cancel()

	out, err := o.negotiator.NegotiateOffer(negCtx, sess.CallID, sess.FromTag, offer)
	if err != nil {
		// A malformed offer is the caller's fault; everything else the
		// relay throws at us is a transient bridge failure.
		if errors.Is(err, media.ErrMalformedOffer) {
			return nil, fmt.Errorf("negotiating offer: %w", err)
		}
		return nil, fmt.Errorf("negotiating offer: %w: %w", err, ErrBridgeFailed)
	}
	sess.Negotiated = true
	return out, nil
}

// negotiateAnswer runs the relay answer step for relayed sessions.
func (o *Orchestrator) negotiateAnswer(ctx context.Context, sess *Session, toTag string, answer []byte) ([]byte, error) {
	if !sess.Negotiated {
		return answer, nil
	}

	negCtx, cancel := context.WithTimeout(ctx, o.cfg.NegotiationTimeout)
	defer cancel()

	out, err := o.negotiator.NegotiateAnswer(negCtx, sess.CallID, sess.FromTag, toTag, answer)
	if err != nil {
		return nil, fmt.Errorf("negotiating answer: %w: %w", err, ErrBridgeFailed)
	}
	return out, nil
}

// register stores the session and appends the call log entry. A log
// write failure never blocks the call.
func (o *Orchestrator) register(ctx context.Context, sess *Session, status string) {
	o.registry.Put(sess)

	err := o.callLogs.Log(ctx, &models.CallLog{
		CallID:     sess.CallID,
		FromNumber: sess.From,
		ToNumber:   sess.To,
		Status:     status,
		RoomName:   sess.RoomName,
		StartTime:  sess.StartTime,
	})
	if err != nil {
		o.logger.Error("call log write failed",
			"call_id", sess.CallID,
			"error", err,
		)
	}
}

// watch waits for either leg to terminate and runs teardown. Installed
// once per bridged session.
func (o *Orchestrator) watch(sess *Session) {
	select {
	case <-sess.Caller.Done():
	case <-sess.Callee.Done():
	}
	o.Teardown(sess, "completed")
}

// Teardown releases everything the session holds: the peer leg, the
// relay session, the call log row and the registry entry. Idempotent;
// both legs terminating concurrently run the body once.
func (o *Orchestrator) Teardown(sess *Session, status string) {
	sess.teardown.Do(func() {
		sess.SetState(StateTearingDown)

		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()

		if sess.Callee != nil {
			if err := sess.Callee.Destroy(); err != nil {
				o.logger.Debug("callee destroy failed", "call_id", sess.CallID, "error", err)
			}
		}
		if sess.Caller != nil {
			if err := sess.Caller.Destroy(); err != nil {
				o.logger.Debug("caller destroy failed", "call_id", sess.CallID, "error", err)
			}
		}

		o.releaseRelay(sess)

		if err := o.callLogs.Finalize(ctx, sess.CallID, status); err != nil {
			o.logger.Error("call log finalize failed",
				"call_id", sess.CallID,
				"error", err,
			)
		}

		o.registry.Remove(sess.CallID)
		sess.SetState(StateClosed)

		o.logger.Info("call torn down",
			"call_id", sess.CallID,
			"status", status,
			"duration_ms", time.Since(sess.StartTime).Milliseconds(),
		)
	})
}

// releaseRelay deletes the relay session if one was created. Best
// effort; the negotiator logs its own failures.
func (o *Orchestrator) releaseRelay(sess *Session) {
	if !sess.Negotiated {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	o.negotiator.Teardown(ctx, sess.CallID, sess.FromTag)
}
