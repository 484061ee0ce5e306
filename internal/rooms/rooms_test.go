package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/livekit/protocol/livekit"
)

type fakeRoomAPI struct {
	created []*livekit.CreateRoomRequest
	err     error
}

func (f *fakeRoomAPI) CreateRoom(_ context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error) {
	f.created = append(f.created, req)
	if f.err != nil {
		return nil, f.err
	}
	return &livekit.Room{Name: req.Name}, nil
}

type fakeKV struct {
	keys   map[string]string
	ttls   map[string]time.Duration
	setErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{keys: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.keys[key] = value
	f.ttls[key] = ttl
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateCallRoom(t *testing.T) {
	api := &fakeRoomAPI{}
	kv := newFakeKV()
	s := NewService(api, kv, "key", "secret", testLogger())

	info, err := s.CreateCallRoom(context.Background(), "call-id-1", "1001")
	if err != nil {
		t.Fatalf("CreateCallRoom: %v", err)
	}

	if !strings.HasPrefix(info.RoomName, "call-") {
		t.Errorf("room name = %q, want call-<uuid>", info.RoomName)
	}
	if info.Token == "" {
		t.Error("expected a join token")
	}

	if len(api.created) != 1 {
		t.Fatalf("expected 1 room creation, got %d", len(api.created))
	}
	req := api.created[0]
	if req.EmptyTimeout != 300 || req.MaxParticipants != 10 {
		t.Errorf("room opts = timeout %d, max %d", req.EmptyTimeout, req.MaxParticipants)
	}

	// Join info published under room:<callID> with a 1h TTL.
	raw, ok := kv.keys["room:call-id-1"]
	if !ok {
		t.Fatal("join info not published")
	}
	if kv.ttls["room:call-id-1"] != time.Hour {
		t.Errorf("ttl = %v, want 1h", kv.ttls["room:call-id-1"])
	}
	var stored RoomInfo
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("unmarshal join info: %v", err)
	}
	if stored.CallID != "call-id-1" || stored.Caller != "1001" || stored.RoomName != info.RoomName {
		t.Errorf("stored info = %+v", stored)
	}
}

func TestCreateCallRoomServiceFailure(t *testing.T) {
	api := &fakeRoomAPI{err: errors.New("livekit down")}
	s := NewService(api, newFakeKV(), "key", "secret", testLogger())

	if _, err := s.CreateCallRoom(context.Background(), "call-id-1", "1001"); err == nil {
		t.Fatal("expected error when room creation fails")
	}
}

func TestCreateCallRoomStorePublishFailureIsNonFatal(t *testing.T) {
	api := &fakeRoomAPI{}
	kv := newFakeKV()
	kv.setErr = errors.New("redis down")
	s := NewService(api, kv, "key", "secret", testLogger())

	info, err := s.CreateCallRoom(context.Background(), "call-id-1", "1001")
	if err != nil {
		t.Fatalf("store failure should not fail room creation: %v", err)
	}
	if info.RoomName == "" {
		t.Error("expected room info despite store failure")
	}
}

func TestCreateCallRoomWithoutKV(t *testing.T) {
	s := NewService(&fakeRoomAPI{}, nil, "key", "secret", testLogger())

	if _, err := s.CreateCallRoom(context.Background(), "call-id-1", "1001"); err != nil {
		t.Fatalf("CreateCallRoom without kv: %v", err)
	}
}

func TestRoomNamesAreUnique(t *testing.T) {
	s := NewService(&fakeRoomAPI{}, nil, "key", "secret", testLogger())

	a, err := s.CreateCallRoom(context.Background(), "call-a", "1001")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.CreateCallRoom(context.Background(), "call-b", "1002")
	if err != nil {
		t.Fatal(err)
	}
	if a.RoomName == b.RoomName {
		t.Errorf("room names should be unique, both %q", a.RoomName)
	}
}
