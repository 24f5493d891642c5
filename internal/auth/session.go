package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/good12834/shoestore/internal/storage"
	apperrors "github.com/good12834/shoestore/pkg/errors"
)

// Listener is called with the new state on every authentication transition.
type Listener func(authenticated bool)

// Session tracks whether the user is logged in. The bearer token lives in
// the "token" storage slot so it survives restarts.
type Session struct {
	store  storage.Storage
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	token     string
	userID    string
	listeners map[int]Listener
	nextID    int
}

// Option configures a Session.
type Option func(*Session)

// WithClock overrides the clock used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession creates an unauthenticated session over store.
func NewSession(store storage.Storage, logger *slog.Logger, opts ...Option) *Session {
	s := &Session{
		store:     store,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads a previously persisted token. A missing slot leaves the
// session logged out; an expired token is discarded.
func (s *Session) Restore(ctx context.Context) error {
	raw, err := s.store.Get(ctx, storage.KeyToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("restore session: %w", err)
	}

	info, err := inspectToken(string(raw), s.now())
	if err != nil {
		s.logger.WarnContext(ctx, "discarding stored token", slog.String("reason", err.Error()))
		if rmErr := s.store.Remove(ctx, storage.KeyToken); rmErr != nil {
			return fmt.Errorf("remove stale token: %w", rmErr)
		}
		return nil
	}

	s.set(string(raw), info.UserID)
	return nil
}

// Login persists token and marks the session authenticated.
func (s *Session) Login(ctx context.Context, token string) error {
	info, err := inspectToken(token, s.now())
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, storage.KeyToken, []byte(token)); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}

	s.set(token, info.UserID)
	s.logger.InfoContext(ctx, "session authenticated", slog.String("user_id", info.UserID))
	return nil
}

// Logout forgets the token. Local cart and wishlist data are kept.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.store.Remove(ctx, storage.KeyToken); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}

	s.set("", "")
	s.logger.InfoContext(ctx, "session logged out")
	return nil
}

// IsAuthenticated reports whether a token is held.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

// Token returns the bearer token, or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// UserID returns the user id carried by a JWT token, or "".
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Subscribe registers fn for authentication transitions. Calls that do not
// change the state (a second Login, Logout while logged out) do not notify.
func (s *Session) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) set(token, userID string) {
	s.mu.Lock()
	was := s.token != ""
	s.token = token
	s.userID = userID
	now := s.token != ""

	var notify []Listener
	if was != now {
		notify = make([]Listener, 0, len(s.listeners))
		for _, fn := range s.listeners {
			notify = append(notify, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range notify {
		fn(now)
	}
}
