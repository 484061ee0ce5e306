// Package rooms provisions WebRTC conference rooms for browser-bound
// calls: it creates a LiveKit room per call, issues the caller's access
// token and publishes the join info to Redis for the web frontend.
package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/redis/go-redis/v9"
)

const (
	// roomEmptyTimeout is how long an empty room lives before LiveKit
	// reclaims it.
	roomEmptyTimeout = 300 // seconds

	// roomMaxParticipants caps participants per call room.
	roomMaxParticipants = 10

	// roomInfoTTL is how long the join info stays in Redis.
	roomInfoTTL = time.Hour

	// tokenValidity bounds the caller's access token lifetime.
	tokenValidity = time.Hour
)

// RoomAPI is the slice of the LiveKit room service the room path needs.
// *lksdk.RoomServiceClient satisfies it.
type RoomAPI interface {
	CreateRoom(ctx context.Context, req *livekit.CreateRoomRequest) (*livekit.Room, error)
}

// KV stores room join info for the web frontend. Implemented by
// RedisStore; faked in tests.
type KV interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RoomInfo is the join info published for one call's room.
type RoomInfo struct {
	RoomName  string    `json:"room_name"`
	CallID    string    `json:"call_id"`
	Caller    string    `json:"caller"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}

// Service provisions per-call rooms and tokens.
type Service struct {
	rooms     RoomAPI
	kv        KV
	apiKey    string
	apiSecret string
	logger    *slog.Logger
}

// NewService creates a room service. kv may be nil, which disables
// join-info publication.
func NewService(rooms RoomAPI, kv KV, apiKey, apiSecret string, logger *slog.Logger) *Service {
	return &Service{
		rooms:     rooms,
		kv:        kv,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		logger:    logger.With("subsystem", "rooms"),
	}
}

// CreateCallRoom provisions a room named call-<uuid> for the given call
// and issues the caller's join token. Room creation failure is terminal
// for the attempt; token storage failure after the room exists degrades
// to log-only since the caller can still be bridged.
func (s *Service) CreateCallRoom(ctx context.Context, callID, caller string) (*RoomInfo, error) {
	roomName := "call-" + uuid.NewString()

	_, err := s.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:            roomName,
		EmptyTimeout:    roomEmptyTimeout,
		MaxParticipants: roomMaxParticipants,
	})
	if err != nil {
		return nil, fmt.Errorf("creating room %s: %w", roomName, err)
	}

	info := &RoomInfo{
		RoomName:  roomName,
		CallID:    callID,
		Caller:    caller,
		CreatedAt: time.Now().UTC(),
	}

	token, err := s.issueToken(roomName, caller)
	if err != nil {
		s.logger.Error("issuing room token failed",
			"call_id", callID,
			"room", roomName,
			"error", err,
		)
	} else {
		info.Token = token
	}

	if s.kv != nil {
		payload, err := json.Marshal(info)
		if err == nil {
			err = s.kv.Set(ctx, "room:"+callID, string(payload), roomInfoTTL)
		}
		if err != nil {
			s.logger.Error("publishing room info failed",
				"call_id", callID,
				"room", roomName,
				"error", err,
			)
		}
	}

	s.logger.Info("room created",
		"call_id", callID,
		"room", roomName,
		"caller", caller,
	)
	return info, nil
}

// issueToken mints a join token granting publish and subscribe in the room.
func (s *Service) issueToken(roomName, identity string) (string, error) {
	canPublish := true
	canSubscribe := true

	at := auth.NewAccessToken(s.apiKey, s.apiSecret).
		SetIdentity(identity).
		SetValidFor(tokenValidity).
		SetVideoGrant(&auth.VideoGrant{
			RoomJoin:     true,
			Room:         roomName,
			CanPublish:   &canPublish,
			CanSubscribe: &canSubscribe,
		})

	return at.ToJWT()
}

// RedisStore is the Redis-backed KV used in production.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis at the given address.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Set stores a value with a TTL.
func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

// Ping verifies connectivity at startup.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
