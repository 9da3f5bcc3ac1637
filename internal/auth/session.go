package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultSessionTTL = 8 * time.Hour
	sessionKeyPrefix  = "vqueue:session:"
)

// Identity is what a session resolves to.
type Identity struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

type Session struct {
	Token     string    `json:"token"`
	Identity  Identity  `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionStore interface {
	Create(ctx context.Context, identity Identity, ttl time.Duration) (Session, error)
	Get(ctx context.Context, token string) (Session, error)
	Delete(ctx context.Context, token string) error
}

type RedisSessionStore struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisSessionStore(client redis.Cmdable) *RedisSessionStore {
	return &RedisSessionStore{client: client, now: func() time.Time { return time.Now().UTC() }}
}

func (s *RedisSessionStore) Create(ctx context.Context, identity Identity, ttl time.Duration) (Session, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	session := Session{
		Token:     uuid.NewString(),
		Identity:  identity,
		ExpiresAt: s.now().Add(ttl),
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return Session{}, err
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.Token, payload, ttl).Err(); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	return session, nil
}

func (s *RedisSessionStore) Get(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrSessionNotFound
	}
	payload, err := s.client.Get(ctx, sessionKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return session, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// MemorySessionStore keeps sessions in process. Expired entries are dropped
// lazily on lookup.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	now      func() time.Time
}

func NewMemorySessionStore(now func() time.Time) *MemorySessionStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemorySessionStore{sessions: make(map[string]Session), now: now}
}

func (s *MemorySessionStore) Create(ctx context.Context, identity Identity, ttl time.Duration) (Session, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	session := Session{Token: uuid.NewString(), Identity: identity, ExpiresAt: s.now().Add(ttl)}
	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()
	return session, nil
}

func (s *MemorySessionStore) Get(ctx context.Context, token string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if !s.now().Before(session.ExpiresAt) {
		delete(s.sessions, token)
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
	return nil
}
