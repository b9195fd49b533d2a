package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// OnlineSetKey is the Redis set holding the IDs of all online users.
	OnlineSetKey = "online_users"

	// KeyPrefix is the Redis key prefix for per-user presence keys.
	KeyPrefix = "presence:"

	// KeyTTL bounds how long a per-user presence key survives without a
	// refresh, so a crashed server instance cannot leave users online forever.
	KeyTTL = 1 * time.Hour
)

// Store mirrors the in-process registry's online set into Redis so that
// sibling services (the REST API, mostly) can answer "is this user online"
// without holding a socket. It is strictly a mirror: the Registry remains
// the source of truth and the mirror is updated on its transitions.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this realtime server instance
}

// NewStore creates a presence mirror connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}

	return &Store{client: client, serverName: serverName}, nil
}

// SetOnline records the user as online: adds them to the online set and
// writes a per-user key naming the serving instance.
func (s *Store) SetOnline(ctx context.Context, userID string) error {
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, OnlineSetKey, userID)
	pipe.Set(ctx, KeyPrefix+userID, s.serverName, KeyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SetOffline removes the user from the online set and deletes their key.
func (s *Store) SetOffline(ctx context.Context, userID string) error {
	pipe := s.client.Pipeline()
	pipe.SRem(ctx, OnlineSetKey, userID)
	pipe.Del(ctx, KeyPrefix+userID)
	_, err := pipe.Exec(ctx)
	return err
}

// Refresh extends the TTL on the user's presence key.
func (s *Store) Refresh(ctx context.Context, userID string) error {
	return s.client.Expire(ctx, KeyPrefix+userID, KeyTTL).Err()
}

// OnlineUsers returns the mirrored set of online user IDs.
func (s *Store) OnlineUsers(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, OnlineSetKey).Result()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
