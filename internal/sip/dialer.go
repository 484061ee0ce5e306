package sip

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/signaling"
)

// clientTx is the slice of sip.ClientTransaction the dialer consumes.
type clientTx interface {
	Responses() <-chan *sip.Response
	Done() <-chan struct{}
	Err() error
	Terminate()
}

// Dialer originates outbound legs toward the configured SIP peer. It
// implements signaling.Dialer for the call engine and the media
// gateway.
type Dialer struct {
	transact func(ctx context.Context, req *sip.Request) (clientTx, error)
	write    func(req *sip.Request) error
	legs     *legTable
	peerAddr string
	contact  *sip.ContactHeader
	logger   *slog.Logger
}

func newDialer(client *sipgo.Client, legs *legTable, peerAddr string, contact *sip.ContactHeader, logger *slog.Logger) *Dialer {
	return &Dialer{
		transact: func(ctx context.Context, req *sip.Request) (clientTx, error) {
			return client.TransactionRequest(ctx, req, sipgo.ClientRequestBuild)
		},
		write:    func(req *sip.Request) error { return client.WriteRequest(req) },
		legs:     legs,
		peerAddr: peerAddr,
		contact:  contact,
		logger:   logger.With("subsystem", "dialer"),
	}
}

// Dial sends an INVITE carrying the offer to dest at the configured
// peer and waits for the final response. On a 2xx it ACKs, registers
// the leg and returns the answer; any other final response is an
// error.
func (d *Dialer) Dial(ctx context.Context, dest string, offer []byte, headers map[string]string) (*signaling.DialResult, error) {
	recipientStr := fmt.Sprintf("sip:%s@%s", dest, d.peerAddr)
	var recipient sip.Uri
	if err := sip.ParseUri(recipientStr, &recipient); err != nil {
		return nil, fmt.Errorf("parsing destination uri: %w", err)
	}

	req := sip.NewRequest(sip.INVITE, recipient)
	if len(offer) > 0 {
		req.SetBody(offer)
		req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	}

	callID := uuid.NewString()
	req.AppendHeader(sip.NewHeader("Call-ID", callID))
	req.AppendHeader(sip.HeaderClone(d.contact))
	for name, value := range headers {
		req.AppendHeader(sip.NewHeader(name, value))
	}

	d.logger.Debug("sending invite",
		"call_id", callID,
		"recipient", recipientStr,
	)

	tx, err := d.transact(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sending invite to %s: %w", dest, err)
	}

	for {
		var res *sip.Response
		select {
		case <-ctx.Done():
			tx.Terminate()
			return nil, ctx.Err()
		case <-tx.Done():
			tx.Terminate()
			if txErr := tx.Err(); txErr != nil {
				return nil, fmt.Errorf("invite transaction: %w", txErr)
			}
			return nil, fmt.Errorf("invite transaction ended without final response")
		case res = <-tx.Responses():
		}

		d.logger.Debug("invite response",
			"call_id", callID,
			"status", res.StatusCode,
			"reason", res.Reason,
		)

		switch {
		case res.StatusCode < 200:
			// Provisional (100/180/183), keep waiting.
			continue

		case res.StatusCode < 300:
			ack := buildACKFor2xx(req, res)
			if err := d.write(ack); err != nil {
				tx.Terminate()
				return nil, fmt.Errorf("sending ack to %s: %w", dest, err)
			}
			tx.Terminate()

			toTag := ""
			if to := res.To(); to != nil {
				if tag, ok := to.Params.Get("tag"); ok {
					toTag = tag
				}
			}

			leg := d.legs.add(calleeDialog(req, res), d.sendBYE, d.logger)
			d.logger.Info("outbound leg answered",
				"call_id", callID,
				"dest", dest,
			)
			return &signaling.DialResult{Leg: leg, Answer: res.Body(), ToTag: toTag}, nil

		default:
			tx.Terminate()
			return nil, fmt.Errorf("destination %s answered %d %s", dest, res.StatusCode, res.Reason)
		}
	}
}

// sendBYE runs the in-dialog BYE transaction for dialed legs.
func (d *Dialer) sendBYE(ctx context.Context, bye *sip.Request) error {
	tx, err := d.transact(ctx, bye)
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

// buildACKFor2xx creates the ACK for a 2xx response to an INVITE. The
// ACK for a 2xx is generated by the UAC core, not the transaction
// layer. The Request-URI comes from the Contact in the response when
// present.
func buildACKFor2xx(inviteReq *sip.Request, inviteResp *sip.Response) *sip.Request {
	recipient := &inviteReq.Recipient
	if contact := inviteResp.Contact(); contact != nil {
		recipient = &contact.Address
	}

	ack := sip.NewRequest(sip.ACK, *recipient.Clone())
	ack.SipVersion = inviteReq.SipVersion

	if len(inviteReq.GetHeaders("Route")) > 0 {
		sip.CopyHeaders("Route", inviteReq, ack)
	}

	// From as sent; To from the response so the remote tag is carried.
	if h := inviteReq.From(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if h := inviteResp.To(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if h := inviteReq.CallID(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}

	// Same sequence number, method changed to ACK.
	if h := inviteReq.CSeq(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}
	if cseq := ack.CSeq(); cseq != nil {
		cseq.MethodName = sip.ACK
	}

	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)

	if h := inviteReq.Contact(); h != nil {
		ack.AppendHeader(sip.HeaderClone(h))
	}

	ack.SetTransport(inviteReq.Transport())
	ack.SetSource(inviteReq.Source())

	return ack
}
