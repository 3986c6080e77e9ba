package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/learnhub-api/internal/identity"
)

// TokenStore keeps the session of a single client between calls.
type TokenStore interface {
	Load(ctx context.Context) (*identity.Session, error)
	Save(ctx context.Context, session identity.Session) error
	Clear(ctx context.Context) error
}

// MemoryTokenStore holds the session in process memory.
type MemoryTokenStore struct {
	mu      sync.RWMutex
	session *identity.Session
}

// NewMemoryTokenStore returns an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load(_ context.Context) (*identity.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil, nil
	}
	session := *s.session
	return &session, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, session identity.Session) error {
	s.mu.Lock()
	s.session = &session
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	return nil
}

const tokenKeyPrefix = "auth:session:"

// RedisTokenStore persists the session in Redis so it survives restarts of the client.
type RedisTokenStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewRedisTokenStore stores the session under auth:session:<name>.
func NewRedisTokenStore(client *redis.Client, name string) (*RedisTokenStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("token store name is required")
	}

	return &RedisTokenStore{client: client, key: tokenKeyPrefix + name, now: time.Now}, nil
}

// Key returns the Redis key used by the store.
func (s *RedisTokenStore) Key() string {
	return s.key
}

func (s *RedisTokenStore) Load(ctx context.Context) (*identity.Session, error) {
	payload, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var session identity.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisTokenStore) Save(ctx context.Context, session identity.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	var ttl time.Duration
	if expiry := session.Expiry(); !expiry.IsZero() {
		ttl = expiry.Sub(s.now())
		if ttl <= 0 {
			return s.Clear(ctx)
		}
	}

	if err := s.client.Set(ctx, s.key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
