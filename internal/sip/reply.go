package sip

import (
	"context"
	"fmt"
	"sync"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/signaling"
)

// inviteReply answers one INVITE transaction. The engine calls exactly
// one of Accept or Reject; the guard keeps a late reject after a
// successful accept from corrupting the dialog.
type inviteReply struct {
	srv *Server
	req *sip.Request
	tx  sip.ServerTransaction

	mu       sync.Mutex
	answered bool
}

// Accept sends the 200 OK carrying the answer SDP and registers the
// caller leg.
func (r *inviteReply) Accept(ctx context.Context, answer []byte) (signaling.Leg, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.answered {
		return nil, fmt.Errorf("request already answered")
	}

	res := sip.NewResponseFromRequest(r.req, 200, "OK", answer)
	if len(answer) > 0 {
		res.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	}
	res.AppendHeader(r.srv.contactHeader())
	ensureToTag(res)

	if err := r.tx.Respond(res); err != nil {
		return nil, fmt.Errorf("sending 200 ok: %w", err)
	}
	r.answered = true

	return r.srv.legs.add(callerDialog(r.req, res), r.srv.sendBYE, r.srv.logger), nil
}

// Reject refuses the request with a final failure response.
func (r *inviteReply) Reject(code int, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.answered {
		return fmt.Errorf("request already answered")
	}

	res := sip.NewResponseFromRequest(r.req, code, reason, nil)
	if err := r.tx.Respond(res); err != nil {
		return fmt.Errorf("sending %d %s: %w", code, reason, err)
	}
	r.answered = true
	return nil
}

// ensureToTag stamps a local tag on the response's To header. The tag
// identifies our side of the dialog for in-dialog requests.
func ensureToTag(res *sip.Response) {
	to := res.To()
	if to == nil {
		return
	}
	if to.Params == nil {
		to.Params = sip.NewParams()
	}
	if _, ok := to.Params.Get("tag"); !ok {
		to.Params.Add("tag", sip.GenerateTagN(16))
	}
}

// sendBYE runs the in-dialog BYE transaction for legs owned by the
// server side.
func (s *Server) sendBYE(ctx context.Context, bye *sip.Request) error {
	tx, err := s.client.TransactionRequest(ctx, bye, sipgo.ClientRequestBuild)
	if err != nil {
		return err
	}
	defer tx.Terminate()

	select {
	case <-tx.Responses():
	case <-tx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
