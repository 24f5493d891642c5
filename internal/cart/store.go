package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/good12834/shoestore/internal/auth"
	"github.com/good12834/shoestore/internal/domain"
	"github.com/good12834/shoestore/internal/storage"
	"github.com/good12834/shoestore/internal/syncer"
	apperrors "github.com/good12834/shoestore/pkg/errors"
)

// Remote is the backend cart collection.
type Remote interface {
	FetchCart(ctx context.Context) ([]domain.CartLine, error)
	PushCartLine(ctx context.Context, line domain.CartLine) error
}

// Session reports authentication state and its transitions.
type Session interface {
	IsAuthenticated() bool
	UserID() string
	Subscribe(fn auth.Listener) (unsubscribe func())
}

// Publisher announces cart changes to other systems.
type Publisher interface {
	CartUpdated(ctx context.Context, userID string, cart domain.Cart) error
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher publishes a change event after every local change.
func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// Store owns the cart lines for one profile. Every mutation is written to
// local storage before it returns; remote pushes run on the syncer's queue.
type Store struct {
	storage   storage.Storage
	session   Session
	remote    Remote
	sync      *syncer.Syncer
	publisher Publisher
	logger    *slog.Logger

	mu    sync.RWMutex
	lines []domain.CartLine

	unsubscribe func()
	stopWatch   context.CancelFunc
	watchDone   chan struct{}
}

// NewStore loads the cart snapshot from store and subscribes to session
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
		logger:  logger.With(slog.String("store", "cart")),
	}
	for _, opt := range opts {
		opt(s)
	}

	lines, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.lines = lines

	s.unsubscribe = session.Subscribe(func(authenticated bool) {
		if authenticated {
			s.sync.Enqueue("pull", func(ctx context.Context) error {
				s.pull(ctx, false)
				return nil
			})
		}
	})
	return s, nil
}

// Start launches the sync worker and, when the storage reports writes from
// other handles, a loop that reloads the cart from storage.
func (s *Store) Start(ctx context.Context) error {
	s.sync.Start(ctx)

	watcher, ok := s.storage.(storage.Watcher)
	if !ok {
		return nil
	}
	watchCtx, cancel := context.WithCancel(ctx)
	changes, err := watcher.Watch(watchCtx, storage.KeyCart)
	if err != nil {
		cancel()
		return fmt.Errorf("watch cart snapshot: %w", err)
	}
	s.stopWatch = cancel
	s.watchDone = make(chan struct{})
	go func() {
		defer close(s.watchDone)
		for change := range changes {
			s.logger.DebugContext(watchCtx, "cart changed by another handle", slog.String("origin", change.Origin))
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

// Add adds quantity of product in the given size and color. An existing
// line with the same key accumulates; otherwise a new line is appended.
func (s *Store) Add(ctx context.Context, product domain.Product, quantity int, size, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.LineKey{ProductID: product.ID, Size: size, Color: color}
	if i := s.findLocked(key); i >= 0 {
		s.lines[i].Quantity += quantity
	} else {
		s.lines = append(s.lines, domain.NewCartLine(product, quantity, size, color))
	}
	return s.commitLocked(ctx)
}

// Remove deletes the line with the given key. Removing an absent line does
// nothing.
func (s *Store) Remove(ctx context.Context, productID, size, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(domain.LineKey{ProductID: productID, Size: size, Color: color})
	if i < 0 {
		return nil
	}
	s.lines = append(s.lines[:i:i], s.lines[i+1:]...)
	return s.commitLocked(ctx)
}

// UpdateQuantity sets the quantity of an existing line. Quantities below 1
// are ignored; use Remove to delete a line.
func (s *Store) UpdateQuantity(ctx context.Context, productID, size, color string, quantity int) error {
	if quantity < 1 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.findLocked(domain.LineKey{ProductID: productID, Size: size, Color: color})
	if i < 0 {
		return nil
	}
	s.lines[i].Quantity = quantity
	return s.commitLocked(ctx)
}

// Clear empties the cart. The empty list is persisted like any other change.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = []domain.CartLine{}
	return s.commitLocked(ctx)
}

// Resume runs a pull that bypasses an open circuit. On success the breaker
// is reset and the cart replaced with the server's copy.
func (s *Store) Resume(ctx context.Context) error {
	return s.pull(ctx, true)
}

// Snapshot returns a copy of the current lines.
func (s *Store) Snapshot() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Cart{Lines: s.lines}.Clone()
}

// Count returns the total quantity across all lines.
func (s *Store) Count() int {
	return s.Snapshot().Count()
}

// Subtotal returns the cart total in cents.
func (s *Store) Subtotal() int64 {
	return s.Snapshot().Subtotal()
}

// SyncState reports the remote sync state.
func (s *Store) SyncState() domain.SyncState {
	return s.sync.State()
}

// Flush waits for queued sync work to finish.
func (s *Store) Flush(ctx context.Context) error {
	return s.sync.Flush(ctx)
}

func (s *Store) findLocked(key domain.LineKey) int {
	return domain.Cart{Lines: s.lines}.Find(key)
}

// commitLocked persists the lines and schedules the remote push and change
// event. Only the persistence error is returned.
func (s *Store) commitLocked(ctx context.Context) error {
	snapshot := domain.Cart{Lines: s.lines}.Clone()

	err := s.persist(ctx, snapshot.Lines)
	if s.session.IsAuthenticated() {
		s.sync.Enqueue("push", func(ctx context.Context) error {
			s.push(ctx, snapshot.Lines)
			return nil
		})
	}
	s.publishLocked(snapshot)
	return err
}

func (s *Store) persist(ctx context.Context, lines []domain.CartLine) error {
	data, err := domain.MarshalLines(lines)
	if err == nil {
		err = s.storage.Set(ctx, storage.KeyCart, data)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to persist cart snapshot", slog.String("error", err.Error()))
		return fmt.Errorf("persist cart: %w", err)
	}
	return nil
}

func (s *Store) publishLocked(snapshot domain.Cart) {
	if s.publisher == nil {
		return
	}
	userID := s.session.UserID()
	s.sync.Enqueue("publish", func(ctx context.Context) error {
		return s.publisher.CartUpdated(ctx, userID, snapshot)
	})
}

// push sends every line, one at a time. Failed lines are logged and
// skipped; an open circuit skips the rest.
func (s *Store) push(ctx context.Context, lines []domain.CartLine) {
	for i, line := range lines {
		err := s.sync.Call(ctx, "push_line", func(ctx context.Context) error {
			return s.remote.PushCartLine(ctx, line)
		})
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrCircuitOpen):
			s.logger.WarnContext(ctx, "cart sync suspended, skipping push",
				slog.Int("skipped_lines", len(lines)-i),
			)
			return
		default:
			s.logger.WarnContext(ctx, "failed to push cart line",
				slog.String("product_id", line.ProductID),
				slog.String("size", line.Size),
				slog.String("color", line.Color),
				slog.String("error", err.Error()),
			)
		}
	}
}

// pull replaces the local cart with the server's copy. The replacement is
// persisted but not pushed back.
func (s *Store) pull(ctx context.Context, probe bool) error {
	var lines []domain.CartLine
	fetch := func(ctx context.Context) error {
		var err error
		lines, err = s.remote.FetchCart(ctx)
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
			s.logger.WarnContext(ctx, "cart sync suspended, skipping pull")
		} else {
			s.logger.WarnContext(ctx, "failed to pull cart", slog.String("error", err.Error()))
		}
		return err
	}
	lines, dropped := domain.NormalizeLines(lines)
	if dropped > 0 {
		s.logger.WarnContext(ctx, "dropped invalid or duplicate lines from server", slog.Int("dropped", dropped))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = lines
	s.publishLocked(domain.Cart{Lines: lines}.Clone())
	s.logger.InfoContext(ctx, "cart replaced from server", slog.Int("lines", len(lines)))
	return s.persist(ctx, lines)
}

func (s *Store) load(ctx context.Context) ([]domain.CartLine, error) {
	data, err := s.storage.Get(ctx, storage.KeyCart)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return []domain.CartLine{}, nil
		}
		return nil, fmt.Errorf("load cart snapshot: %w", err)
	}
	lines, err := domain.UnmarshalLines(data)
	if err != nil {
		s.logger.WarnContext(ctx, "discarding corrupt cart snapshot", slog.String("error", err.Error()))
		return []domain.CartLine{}, nil
	}
	return lines, nil
}

func (s *Store) reload(ctx context.Context) {
	lines, err := s.load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to reload cart", slog.String("error", err.Error()))
		return
	}
	s.mu.Lock()
	s.lines = lines
	s.mu.Unlock()
}
