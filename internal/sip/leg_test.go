package sip

import (
	"context"
	"sync"
	"testing"

	"github.com/emiago/sipgo/sip"
)

func testDialog(callID string) dialogInfo {
	from := &sip.FromHeader{
		Address: sip.Uri{User: "callserver", Host: "10.0.0.1", Port: 5060},
		Params:  sip.NewParams(),
	}
	from.Params.Add("tag", "local-tag")

	to := &sip.ToHeader{
		Address: sip.Uri{User: "1001", Host: "192.168.1.20", Port: 5062},
		Params:  sip.NewParams(),
	}
	to.Params.Add("tag", "remote-tag")

	return dialogInfo{
		callID:    callID,
		from:      from,
		to:        to,
		target:    sip.Uri{User: "1001", Host: "192.168.1.20", Port: 5062},
		cseq:      2,
		transport: "UDP",
	}
}

type byeRecorder struct {
	mu   sync.Mutex
	byes []*sip.Request
}

func (r *byeRecorder) send(_ context.Context, bye *sip.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byes = append(r.byes, bye)
	return nil
}

func (r *byeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byes)
}

func TestBuildBYE(t *testing.T) {
	bye := buildBYE(testDialog("call-1"))

	if bye.Method != sip.BYE {
		t.Errorf("method = %s", bye.Method)
	}
	if bye.Recipient.User != "1001" || bye.Recipient.Host != "192.168.1.20" {
		t.Errorf("recipient = %s@%s", bye.Recipient.User, bye.Recipient.Host)
	}
	if cid := bye.CallID(); cid == nil || cid.Value() != "call-1" {
		t.Error("call-id not carried")
	}

	cseq := bye.CSeq()
	if cseq == nil || cseq.SeqNo != 2 || cseq.MethodName != sip.BYE {
		t.Errorf("cseq = %v", cseq)
	}

	if tag, _ := bye.From().Params.Get("tag"); tag != "local-tag" {
		t.Errorf("from tag = %q", tag)
	}
	if tag, _ := bye.To().Params.Get("tag"); tag != "remote-tag" {
		t.Errorf("to tag = %q", tag)
	}
}

func TestLegDestroyIsIdempotent(t *testing.T) {
	table := newLegTable()
	rec := &byeRecorder{}
	l := table.add(testDialog("call-1"), rec.send, testLogger())

	if table.count() != 1 {
		t.Fatalf("table count = %d", table.count())
	}

	if err := l.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := l.Destroy(); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}

	if rec.count() != 1 {
		t.Errorf("byes sent = %d, want 1", rec.count())
	}
	if table.count() != 0 {
		t.Errorf("leg still in table after destroy")
	}

	select {
	case <-l.Done():
	default:
		t.Error("Done not closed after Destroy")
	}
}

func TestRemoteHangupSendsNoBYE(t *testing.T) {
	table := newLegTable()
	rec := &byeRecorder{}
	l := table.add(testDialog("call-1"), rec.send, testLogger())

	l.remoteHangup()

	if rec.count() != 0 {
		t.Errorf("byes sent = %d, want 0", rec.count())
	}
	if table.count() != 0 {
		t.Error("leg still in table after remote hangup")
	}
	select {
	case <-l.Done():
	default:
		t.Error("Done not closed after remote hangup")
	}

	// The dialog is gone; a later destroy must not send a BYE.
	if err := l.Destroy(); err != nil {
		t.Fatalf("Destroy after remote hangup: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("byes sent after late destroy = %d, want 0", rec.count())
	}
}

func TestLegTableLookup(t *testing.T) {
	table := newLegTable()
	rec := &byeRecorder{}
	l := table.add(testDialog("call-1"), rec.send, testLogger())

	if got := table.get("call-1"); got != l {
		t.Error("lookup did not return the registered leg")
	}
	if got := table.get("other"); got != nil {
		t.Error("lookup of unknown call returned a leg")
	}
}
