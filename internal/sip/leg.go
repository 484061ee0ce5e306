package sip

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"
)

// byeTimeout bounds the in-dialog BYE transaction during leg teardown.
const byeTimeout = 5 * time.Second

// dialogInfo holds the dialog parameters an established leg needs to
// build in-dialog requests. from is always the local side, to the
// remote side, both carrying their tags.
type dialogInfo struct {
	callID    string
	from      *sip.FromHeader
	to        *sip.ToHeader
	target    sip.Uri
	cseq      uint32
	transport string
}

// leg is one established call side, keyed by Call-ID. Destroy sends
// the BYE; a BYE from the remote side arrives through remoteHangup.
// Both paths settle the leg exactly once.
type leg struct {
	table   *legTable
	dialog  dialogInfo
	sendBYE func(ctx context.Context, bye *sip.Request) error
	logger  *slog.Logger

	done chan struct{}
	once sync.Once
}

func (l *leg) ID() string { return l.dialog.callID }

func (l *leg) Done() <-chan struct{} { return l.done }

// Destroy hangs up toward the remote party. Destroying an already
// settled leg is a no-op.
func (l *leg) Destroy() error {
	var err error
	l.once.Do(func() {
		l.table.remove(l.dialog.callID)
		close(l.done)

		ctx, cancel := context.WithTimeout(context.Background(), byeTimeout)
		defer cancel()
		if sendErr := l.sendBYE(ctx, buildBYE(l.dialog)); sendErr != nil {
			err = fmt.Errorf("sending bye for %s: %w", l.dialog.callID, sendErr)
		}
	})
	return err
}

// remoteHangup settles the leg after the remote party sent BYE. No
// request goes out; the dialog is already gone.
func (l *leg) remoteHangup() {
	l.once.Do(func() {
		l.table.remove(l.dialog.callID)
		close(l.done)
	})
}

// buildBYE creates an in-dialog BYE for an established leg. Like the
// ACK for a 2xx, the BYE is built by the UA core: the Request-URI is
// the dialog's remote target and the CSeq advances past the INVITE.
func buildBYE(d dialogInfo) *sip.Request {
	bye := sip.NewRequest(sip.BYE, *d.target.Clone())

	if d.from != nil {
		bye.AppendHeader(sip.HeaderClone(d.from))
	}
	if d.to != nil {
		bye.AppendHeader(sip.HeaderClone(d.to))
	}
	bye.AppendHeader(sip.NewHeader("Call-ID", d.callID))
	bye.AppendHeader(&sip.CSeqHeader{SeqNo: d.cseq, MethodName: sip.BYE})

	maxFwd := sip.MaxForwardsHeader(70)
	bye.AppendHeader(&maxFwd)

	bye.SetTransport(d.transport)
	return bye
}

// tagParams builds a fresh param set carrying only the tag of the
// source params, if any.
func tagParams(p sip.HeaderParams) sip.HeaderParams {
	params := sip.NewParams()
	if p != nil {
		if tag, ok := p.Get("tag"); ok {
			params.Add("tag", tag)
		}
	}
	return params
}

// callerDialog derives the dialog parameters for the caller leg from
// the inbound INVITE and our 200 OK. Local side is our To (with the
// tag we generated); remote target is the caller's Contact, falling
// back to the request source.
func callerDialog(req *sip.Request, res *sip.Response) dialogInfo {
	d := dialogInfo{
		cseq:      1,
		transport: req.Transport(),
	}
	if cid := req.CallID(); cid != nil {
		d.callID = cid.Value()
	}

	if to := res.To(); to != nil {
		d.from = &sip.FromHeader{
			DisplayName: to.DisplayName,
			Address:     *to.Address.Clone(),
			Params:      tagParams(to.Params),
		}
	}
	if from := req.From(); from != nil {
		d.to = &sip.ToHeader{
			DisplayName: from.DisplayName,
			Address:     *from.Address.Clone(),
			Params:      tagParams(from.Params),
		}
	}

	if contact := req.Contact(); contact != nil {
		d.target = *contact.Address.Clone()
	} else if from := req.From(); from != nil {
		d.target = *from.Address.Clone()
		if host, port, err := net.SplitHostPort(req.Source()); err == nil {
			d.target.Host = host
			if p, err := strconv.Atoi(port); err == nil {
				d.target.Port = p
			}
		}
	}
	return d
}

// calleeDialog derives the dialog parameters for a dialed leg from the
// outbound INVITE and its 2xx. Local side is our From; remote target
// comes from the answer's Contact.
func calleeDialog(req *sip.Request, res *sip.Response) dialogInfo {
	d := dialogInfo{
		cseq:      2,
		transport: req.Transport(),
	}
	if cid := req.CallID(); cid != nil {
		d.callID = cid.Value()
	}
	if cseq := req.CSeq(); cseq != nil {
		d.cseq = cseq.SeqNo + 1
	}

	if from := req.From(); from != nil {
		d.from = &sip.FromHeader{
			DisplayName: from.DisplayName,
			Address:     *from.Address.Clone(),
			Params:      tagParams(from.Params),
		}
	}
	if to := res.To(); to != nil {
		d.to = &sip.ToHeader{
			DisplayName: to.DisplayName,
			Address:     *to.Address.Clone(),
			Params:      tagParams(to.Params),
		}
	}

	if contact := res.Contact(); contact != nil {
		d.target = *contact.Address.Clone()
	} else {
		d.target = *req.Recipient.Clone()
	}
	return d
}

// legTable indexes established legs by Call-ID so inbound BYEs find
// their leg.
type legTable struct {
	mu   sync.RWMutex
	legs map[string]*leg
}

func newLegTable() *legTable {
	return &legTable{legs: make(map[string]*leg)}
}

// add registers a new leg built from the given dialog.
func (t *legTable) add(d dialogInfo, sendBYE func(ctx context.Context, bye *sip.Request) error, logger *slog.Logger) *leg {
	l := &leg{
		table:   t,
		dialog:  d,
		sendBYE: sendBYE,
		logger:  logger,
		done:    make(chan struct{}),
	}
	t.mu.Lock()
	t.legs[d.callID] = l
	t.mu.Unlock()
	return l
}

func (t *legTable) get(callID string) *leg {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.legs[callID]
}

func (t *legTable) remove(callID string) {
	t.mu.Lock()
	delete(t.legs, callID)
	t.mu.Unlock()
}

func (t *legTable) count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.legs)
}
