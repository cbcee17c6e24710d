package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chargehub/internal/models"
)

// ActiveSession is the live projection of one running session, keyed by the
// device/port pair so the reporting layer can read it without a database hit.
type ActiveSession struct {
	SessionID  string    `json:"session_id"`
	UserID     int64     `json:"user_id"`
	DeviceID   string    `json:"device_id"`
	PortNumber int       `json:"port_number"`
	PortID     int64     `json:"port_id"`
	StationID  string    `json:"station_id"`
	IsPremium  bool      `json:"is_premium"`
	StartTime  time.Time `json:"start_time"`
}

// Store manages the live active-session projection. It is a convenience
// mirror only; postgres stays authoritative and every write here is
// best-effort.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(k models.SessionKey) string {
	return fmt.Sprintf("sessions:active:%s:%d", k.DeviceID, k.PortNumber)
}

// Save caches the projection entry. The TTL is a safety net so entries
// orphaned by a crash expire on their own.
func (s *Store) Save(ctx context.Context, key models.SessionKey, session ActiveSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(key), data, s.ttl).Err()
}

// Get returns the cached projection entry.
func (s *Store) Get(ctx context.Context, key models.SessionKey) (*ActiveSession, error) {
	result, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		return nil, err
	}
	var session ActiveSession
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes the projection entry.
func (s *Store) Delete(ctx context.Context, key models.SessionKey) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
