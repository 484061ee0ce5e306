package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/media"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/signaling"
)

// Sentinel errors handlers return to the router, mapped to reply codes.
var (
	// ErrDestinationNotFound means no route matched the destination.
	ErrDestinationNotFound = errors.New("destination not found")

	// ErrBridgeFailed means the callee leg or the caller-facing accept
	// could not be established.
	ErrBridgeFailed = errors.New("bridge failed")
)

// Handler processes a classified inbound request. On failure it returns
// an error after releasing anything it acquired; the router owns the
// reject reply.
type Handler func(ctx context.Context, req signaling.Request, reply signaling.Reply) error

// Route pairs a destination matcher with its handler. Routes are
// evaluated in table order, so exact matches must be listed before
// prefix matches.
type Route struct {
	// Name identifies the route in logs.
	Name string

	// Match reports whether this route handles the destination.
	Match func(dest string) bool

	// Handle processes the request.
	Handle Handler
}

// Exact matches the destination exactly.
func Exact(dest string) func(string) bool {
	return func(d string) bool { return d == dest }
}

// Prefix matches destinations starting with the given prefix.
func Prefix(prefix string) func(string) bool {
	return func(d string) bool { return strings.HasPrefix(d, prefix) }
}

// Router classifies inbound requests by destination and dispatches to
// the matching handler. Classification itself never blocks on I/O; all
// blocking work happens in the handler. The router never leaves a
// request unanswered: unmatched destinations and handler errors are
// converted into reject replies.
type Router struct {
	routes []Route
	logger *slog.Logger
}

// NewRouter creates a router over the given route table.
func NewRouter(routes []Route, logger *slog.Logger) *Router {
	return &Router{
		routes: routes,
		logger: logger.With("subsystem", "router"),
	}
}

// Dispatch routes one inbound request. An unmatched destination is
// rejected immediately with 404; no session is created and no call log
// is written.
func (r *Router) Dispatch(ctx context.Context, req signaling.Request, reply signaling.Reply) {
	route := r.match(req.To)
	if route == nil {
		r.logger.Info("no route for destination",
			"call_id", req.CallID,
			"to", req.To,
		)
		r.reject(req, reply, ErrDestinationNotFound)
		return
	}

	r.logger.Info("dispatching call",
		"call_id", req.CallID,
		"from", req.From,
		"to", req.To,
		"route", route.Name,
	)

	if err := route.Handle(ctx, req, reply); err != nil {
		r.logger.Error("call handler failed",
			"call_id", req.CallID,
			"route", route.Name,
			"error", err,
		)
		r.reject(req, reply, err)
	}
}

// match returns the first route matching the destination, or nil.
func (r *Router) match(dest string) *Route {
	for i := range r.routes {
		if r.routes[i].Match(dest) {
			return &r.routes[i]
		}
	}
	return nil
}

// rejectReply pairs a status code with its RFC 3261 reason phrase.
type rejectReply struct {
	code   int
	reason string
}

var (
	replyBadRequest             = rejectReply{400, "Bad Request"}
	replyNotFound               = rejectReply{404, "Not Found"}
	replyTemporarilyUnavailable = rejectReply{480, "Temporarily Unavailable"}
	replyServerError            = rejectReply{500, "Server Internal Error"}
)

// reject maps an error to a caller-facing reject reply.
func (r *Router) reject(req signaling.Request, reply signaling.Reply, err error) {
	rr := replyFor(err)
	if rejectErr := reply.Reject(rr.code, rr.reason); rejectErr != nil {
		r.logger.Error("reject reply failed",
			"call_id", req.CallID,
			"code", rr.code,
			"error", rejectErr,
		)
	}
}

// replyFor maps engine errors to protocol status codes.
func replyFor(err error) rejectReply {
	switch {
	case errors.Is(err, ErrDestinationNotFound):
		return replyNotFound
	case errors.Is(err, media.ErrMalformedOffer):
		return replyBadRequest
	case errors.Is(err, media.ErrNegotiationTimeout),
		errors.Is(err, ErrBridgeFailed):
		return replyTemporarilyUnavailable
	default:
		return replyServerError
	}
}

// String lets a route table be logged at startup.
func (r *Router) String() string {
	names := make([]string, len(r.routes))
	for i := range r.routes {
		names[i] = r.routes[i].Name
	}
	return fmt.Sprintf("routes[%s]", strings.Join(names, ", "))
}
