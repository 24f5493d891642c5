package wishlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/good12834/shoestore/internal/auth"
	"github.com/good12834/shoestore/internal/domain"
	"github.com/good12834/shoestore/internal/storage"
	"github.com/good12834/shoestore/internal/syncer"
	apperrors "github.com/good12834/shoestore/pkg/errors"
)

// Remote is the backend wishlist collection.
type Remote interface {
	FetchWishlist(ctx context.Context) ([]domain.WishlistEntry, error)
	PushWishlistEntry(ctx context.Context, entry domain.WishlistEntry) error
}

// Session reports authentication state and its transitions.
type Session interface {
	IsAuthenticated() bool
	UserID() string
	Subscribe(fn auth.Listener) (unsubscribe func())
}

// Publisher announces wishlist changes to other systems.
type Publisher interface {
	WishlistUpdated(ctx context.Context, userID string, wishlist domain.Wishlist) error
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher publishes a change event after every local change.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithClock overrides the clock used to stamp AddedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store owns the wishlist entries for one profile. The local snapshot is
// authoritative; remote sync goes through a syncer whose breaker suspends
// all remote calls after repeated failures.
type Store struct {
	storage   storage.Storage
	session   Session
	remote    Remote
	sync      *syncer.Syncer
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	entries []domain.WishlistEntry

	unsubscribe func()
	stopWatch   context.CancelFunc
	watchDone   chan struct{}
}

// NewStore loads the wishlist snapshot and subscribes to session
// transitions. Call Start to begin background sync.
func NewStore(
	ctx context.Context,
	store storage.Storage,
	session Session,
	remote Remote,
	remoteSync *syncer.Syncer,
	logger *slog.Logger,
	opts ...Option,
) (*Store, error) {
	s := &Store{
		storage: store,
		session: session,
		remote:  remote,
		sync:    remoteSync,
		logger:  logger.With(slog.String("store", "wishlist")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.entries = entries

	s.unsubscribe = session.Subscribe(func(authenticated bool) {
		if !authenticated {
			return
		}
		s.sync.Enqueue("pull", func(ctx context.Context) error {
			_ = s.pull(ctx, false)
			return nil
		})
	})
	return s, nil
}

// Start launches the sync worker and the storage watch loop, if the
// storage supports one.
func (s *Store) Start(ctx context.Context) error {
	s.sync.Start(ctx)

	watcher, ok := s.storage.(storage.Watcher)
	if !ok {
		return nil
	}
	watchCtx, cancel := context.WithCancel(ctx)
	changes, err := watcher.Watch(watchCtx, storage.KeyWishlist)
	if err != nil {
		cancel()
		return fmt.Errorf("watch wishlist snapshot: %w", err)
	}
	s.stopWatch = cancel
	s.watchDone = make(chan struct{})
	go func() {
		defer close(s.watchDone)
		for change := range changes {
			s.logger.DebugContext(watchCtx, "wishlist changed by another handle", slog.String("origin", change.Origin))
			s.reload(watchCtx)
		}
	}()
	return nil
}

// Close stops background work. Queued sync tasks are dropped.
func (s *Store) Close() {
	s.unsubscribe()
	if s.stopWatch != nil {
		s.stopWatch()
		<-s.watchDone
	}
	s.sync.Close()
}

// Add saves product. Adding a product that is already present does nothing.
func (s *Store) Add(ctx context.Context, product domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLocked(product.ID) >= 0 {
		return nil
	}
	s.entries = append(s.entries, domain.NewWishlistEntry(product, s.now()))
	return s.commitLocked(ctx)
}

// Remove deletes the entry for productID, if any.
func (s *Store) Remove(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(productID)
	if i < 0 {
		return nil
	}
	s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
	return s.commitLocked(ctx)
}

// Contains reports whether productID is saved.
func (s *Store) Contains(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(productID) >= 0
}

// Toggle removes product if present, otherwise adds it. It reports whether
// the product is saved after the call.
func (s *Store) Toggle(ctx context.Context, product domain.Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.findLocked(product.ID); i >= 0 {
		s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
		return false, s.commitLocked(ctx)
	}
	s.entries = append(s.entries, domain.NewWishlistEntry(product, s.now()))
	return true, s.commitLocked(ctx)
}

// Clear empties the wishlist and deletes the local snapshot.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = []domain.WishlistEntry{}
	var persistErr error
	if err := s.storage.Remove(ctx, storage.KeyWishlist); err != nil {
		s.logger.ErrorContext(ctx, "failed to remove wishlist snapshot", slog.String("error", err.Error()))
		persistErr = fmt.Errorf("clear wishlist: %w", err)
	}
	s.publishLocked(domain.Wishlist{Entries: []domain.WishlistEntry{}})
	return persistErr
}

// Resume pulls the server's wishlist even while the circuit is open. A
// success closes the circuit and replaces the local entries.
func (s *Store) Resume(ctx context.Context) error {
	return s.pull(ctx, true)
}

// Snapshot returns a copy of the current entries.
func (s *Store) Snapshot() domain.Wishlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Wishlist{Entries: s.entries}.Clone()
}

// SyncState reports the wishlist's remote sync health.
func (s *Store) SyncState() domain.SyncState {
	return s.sync.State()
}

// Flush waits for queued sync work to finish.
func (s *Store) Flush(ctx context.Context) error {
	return s.sync.Flush(ctx)
}

func (s *Store) findLocked(productID string) int {
	return domain.Wishlist{Entries: s.entries}.Find(productID)
}

func (s *Store) commitLocked(ctx context.Context) error {
	snapshot := domain.Wishlist{Entries: s.entries}.Clone()

	err := s.persist(ctx, snapshot.Entries)
	if s.session.IsAuthenticated() {
		s.sync.Enqueue("push", func(ctx context.Context) error {
			s.push(ctx, snapshot.Entries)
			return nil
		})
	}
	s.publishLocked(snapshot)
	return err
}

func (s *Store) persist(ctx context.Context, entries []domain.WishlistEntry) error {
	data, err := domain.MarshalEntries(entries)
	if err == nil {
		err = s.storage.Set(ctx, storage.KeyWishlist, data)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist wishlist snapshot", slog.String("error", err.Error()))
		return fmt.Errorf("persist wishlist: %w", err)
	}
	return nil
}

func (s *Store) publishLocked(snapshot domain.Wishlist) {
	if s.publisher == nil {
		return
	}
	userID := s.session.UserID()
	s.sync.Enqueue("publish", func(ctx context.Context) error {
		return s.publisher.WishlistUpdated(ctx, userID, snapshot)
	})
}

func (s *Store) push(ctx context.Context, entries []domain.WishlistEntry) {
	for i, entry := range entries {
		err := s.sync.Call(ctx, "push_entry", func(ctx context.Context) error {
			return s.remote.PushWishlistEntry(ctx, entry)
		})
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrCircuitOpen):
			s.logger.WarnContext(ctx, "wishlist sync suspended, skipping push",
				slog.Int("skipped_entries", len(entries)-i),
			)
			return
		case apperrors.IsUnauthorized(err):
			s.logger.WarnContext(ctx, "wishlist push rejected, session not accepted",
				slog.String("product_id", entry.ProductID),
			)
		default:
			s.logger.WarnContext(ctx, "failed to push wishlist entry",
				slog.String("product_id", entry.ProductID),
				slog.Int("consecutive_failures", s.sync.State().ConsecutiveFailures),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Store) pull(ctx context.Context, probe bool) error {
	var entries []domain.WishlistEntry
	fetch := func(ctx context.Context) error {
		var err error
		entries, err = s.remote.FetchWishlist(ctx)
		return err
	}

	var err error
	if probe {
		err = s.sync.Probe(ctx, "pull", fetch)
	} else {
		err = s.sync.Call(ctx, "pull", fetch)
	}
	if err != nil {
		if errors.Is(err, apperrors.ErrCircuitOpen) {
			s.logger.WarnContext(ctx, "wishlist sync suspended, skipping pull")
		} else {
			s.logger.WarnContext(ctx, "failed to pull wishlist", slog.String("error", err.Error()))
		}
		return err
	}
	entries, dropped := domain.NormalizeEntries(entries)
	if dropped > 0 {
		s.logger.WarnContext(ctx, "dropped invalid or duplicate entries from server", slog.Int("dropped", dropped))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	s.publishLocked(domain.Wishlist{Entries: entries}.Clone())
	s.logger.InfoContext(ctx, "wishlist replaced from server", slog.Int("entries", len(entries)))
	return s.persist(ctx, entries)
}

func (s *Store) load(ctx context.Context) ([]domain.WishlistEntry, error) {
	data, err := s.storage.Get(ctx, storage.KeyWishlist)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return []domain.WishlistEntry{}, nil
		}
		return nil, fmt.Errorf("load wishlist snapshot: %w", err)
	}
	entries, err := domain.UnmarshalEntries(data)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding corrupt wishlist snapshot", slog.String("error", err.Error()))
		return []domain.WishlistEntry{}, nil
	}
	return entries, nil
}

func (s *Store) reload(ctx context.Context) {
	entries, err := s.load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to reload wishlist", slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
}
