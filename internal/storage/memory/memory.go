package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/good12834/shoestore/internal/storage"
)

// watchBuffer is the per-watcher channel capacity. Changes are dropped for
// a watcher that falls this far behind.
const watchBuffer = 16

type watcher struct {
	key string
	ch  chan storage.Change
}

// shared is the data every forked handle sees.
type shared struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers map[*watcher]string // watcher -> origin of the handle that owns it
}

// Storage implements storage.Storage using an in-memory map. Handles created
// with Fork share the map and observe each other's writes via Watch.
type Storage struct {
	shared *shared
	origin string
}

var (
	_ storage.Storage = (*Storage)(nil)
	_ storage.Watcher = (*Storage)(nil)
)

// New creates an empty in-memory storage.
func New() *Storage {
	return &Storage{
		shared: &shared{
			data:     make(map[string][]byte),
			watchers: make(map[*watcher]string),
		},
		origin: uuid.NewString(),
	}
}

// Fork returns a second handle over the same data with its own origin.
func (s *Storage) Fork() *Storage {
	return &Storage{shared: s.shared, origin: uuid.NewString()}
}

// Origin returns the id stamped on changes made through this handle.
func (s *Storage) Origin() string {
	return s.origin
}

// Get returns a copy of the value under key.
func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	s.shared.mu.RLock()
	defer s.shared.mu.RUnlock()

	v, ok := s.shared.data[key]
	if !ok {
		return nil, storage.NotFound(key)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a copy of value under key.
func (s *Storage) Set(_ context.Context, key string, value []byte) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)

	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()
	s.shared.data[key] = v
	s.notifyLocked(key)
	return nil
}

// Remove deletes key.
func (s *Storage) Remove(_ context.Context, key string) error {
	s.shared.mu.Lock()
	defer s.shared.mu.Unlock()

	if _, ok := s.shared.data[key]; !ok {
		return nil
	}
	delete(s.shared.data, key)
	s.notifyLocked(key)
	return nil
}

func (s *Storage) notifyLocked(key string) {
	change := storage.Change{Key: key, Origin: s.origin}
	for w, origin := range s.shared.watchers {
		if origin == s.origin || w.key != key {
			continue
		}
		select {
		case w.ch <- change:
		default:
		}
	}
}

// Watch delivers changes to key made through other handles until ctx is done.
func (s *Storage) Watch(ctx context.Context, key string) (<-chan storage.Change, error) {
	w := &watcher{key: key, ch: make(chan storage.Change, watchBuffer)}

	s.shared.mu.Lock()
	s.shared.watchers[w] = s.origin
	s.shared.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.shared.mu.Lock()
		delete(s.shared.watchers, w)
		close(w.ch)
		s.shared.mu.Unlock()
	}()

	return w.ch, nil
}
