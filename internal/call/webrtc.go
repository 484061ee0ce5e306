package call

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/rooms"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/signaling"
)

// RoomProvisioner is the slice of the room service the WebRTC path
// needs. *rooms.Service implements it.
type RoomProvisioner interface {
	CreateCallRoom(ctx context.Context, callID, caller string) (*rooms.RoomInfo, error)
}

// Handlers bundles the per-path call handlers behind the router.
type Handlers struct {
	orchestrator *Orchestrator
	ivr          *IVREngine
	rooms        RoomProvisioner
	logger       *slog.Logger
}

// NewHandlers wires the route handlers. rooms may be nil when the
// WebRTC path is not deployed.
func NewHandlers(orchestrator *Orchestrator, ivr *IVREngine, rooms RoomProvisioner, logger *slog.Logger) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		ivr:          ivr,
		rooms:        rooms,
		logger:       logger.With("subsystem", "handlers"),
	}
}

// Direct bridges the caller straight to the dialed destination.
func (h *Handlers) Direct() Handler {
	return h.orchestrator.BridgeCall
}

// IVR parks the caller on the media server and starts the dialog
// engine. The dialog outlives the request dispatch, so it runs on a
// context detached from the request's cancellation.
func (h *Handlers) IVR() Handler {
	return func(ctx context.Context, req signaling.Request, reply signaling.Reply) error {
		ep, sess, err := h.orchestrator.ConnectInteractive(ctx, req, reply, "ivr", "")
		if err != nil {
			return err
		}

		go h.ivr.Run(context.WithoutCancel(ctx), sess, ep)
		return nil
	}
}

// WebRTC provisions a conference room for the call, publishes the join
// info, and parks the caller on the media server.
func (h *Handlers) WebRTC() Handler {
	return func(ctx context.Context, req signaling.Request, reply signaling.Reply) error {
		if h.rooms == nil {
			return fmt.Errorf("webrtc path not configured: %w", ErrDestinationNotFound)
		}

		info, err := h.rooms.CreateCallRoom(ctx, req.CallID, req.From)
		if err != nil {
			return fmt.Errorf("provisioning room: %w: %w", err, ErrBridgeFailed)
		}

		_, _, err = h.orchestrator.ConnectInteractive(ctx, req, reply, "livekit", info.RoomName)
		return err
	}
}

// Routes builds the default route table: exact destinations first, then
// the WebRTC prefix.
func (h *Handlers) Routes(directExt, ivrExt, webrtcPrefix string) []Route {
	return []Route{
		{Name: "direct", Match: Exact(directExt), Handle: h.Direct()},
		{Name: "ivr", Match: Exact(ivrExt), Handle: h.IVR()},
		{Name: "webrtc", Match: Prefix(webrtcPrefix), Handle: h.WebRTC()},
	}
}
