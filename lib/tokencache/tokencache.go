package tokencache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("notion-helper/lib/tokencache")

var ErrNotFound = errors.New("token not found")

// DefaultSkew is how long before its real expiry a token stops being
// handed out.
const DefaultSkew = 5 * time.Minute

type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether the token can still be used at now, treating it as
// expired skew early.
func (t Token) Valid(now time.Time, skew time.Duration) bool {
	if t.AccessToken == "" {
		return false
	}
	return now.Add(skew).Before(t.ExpiresAt)
}

// Store persists tokens keyed by a credential scope, e.g. "igdb:<client id>".
type Store interface {
	Get(ctx context.Context, scope string) (Token, error)
	Put(ctx context.Context, scope string, token Token) error
	Invalidate(ctx context.Context, scope string) error
}

type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: map[string]Token{}}
}

func (s *MemoryStore) Get(ctx context.Context, scope string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[scope]
	if !ok {
		return Token{}, ErrNotFound
	}
	return token, nil
}

func (s *MemoryStore) Put(ctx context.Context, scope string, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[scope] = token
	return nil
}

func (s *MemoryStore) Invalidate(ctx context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, scope)
	return nil
}

type Fetcher func(ctx context.Context) (Token, error)

// GetOrFetch returns the cached token for scope if it is still valid at
// now(), otherwise it fetches a new one and stores it.
func GetOrFetch(ctx context.Context, store Store, scope string, now func() time.Time, fetch Fetcher) (Token, error) {
	ctx, span := tracer.Start(ctx, "GetOrFetch")
	defer span.End()
	span.SetAttributes(attribute.String("scope", scope))

	cached, err := store.Get(ctx, scope)
	switch {
	case err == nil && cached.Valid(now(), DefaultSkew):
		span.SetAttributes(attribute.Bool("cached", true))
		return cached, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		slog.WarnContext(ctx, "failed to read cached token", "scope", scope, "err", err)
	}

	fresh, err := fetch(ctx)
	if err != nil {
		return Token{}, err
	}
	err = store.Put(ctx, scope, fresh)
	if err != nil {
		slog.WarnContext(ctx, "failed to cache token", "scope", scope, "err", err)
	}
	span.SetAttributes(attribute.Bool("cached", false))
	return fresh, nil
}
