package cart

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/good12834/shoestore/internal/auth"
	"github.com/good12834/shoestore/internal/domain"
	"github.com/good12834/shoestore/internal/storage"
	"github.com/good12834/shoestore/internal/storage/memory"
	"github.com/good12834/shoestore/internal/syncer"
	apperrors "github.com/good12834/shoestore/pkg/errors"
	"github.com/good12834/shoestore/pkg/logger"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeRemote struct {
	mu        sync.Mutex
	pushed    []domain.CartLine
	fetches   int
	fetched   []domain.CartLine
	fetchErr  error
	pushErrFn func(domain.CartLine) error
}

func (f *fakeRemote) FetchCart(context.Context) ([]domain.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]domain.CartLine, len(f.fetched))
	copy(out, f.fetched)
	return out, nil
}

func (f *fakeRemote) PushCartLine(_ context.Context, line domain.CartLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, line)
	if f.pushErrFn != nil {
		return f.pushErrFn(line)
	}
	return nil
}

func (f *fakeRemote) pushes() []domain.CartLine {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.CartLine, len(f.pushed))
	copy(out, f.pushed)
	return out
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) CartUpdated(ctx context.Context, userID string, cart domain.Cart) error {
	args := m.Called(ctx, userID, cart)
	return args.Error(0)
}

// failingStorage fails every Set.
type failingStorage struct {
	storage.Storage
	err error
}

func (f failingStorage) Set(context.Context, string, []byte) error { return f.err }

// ============================================================================
// Test helpers
// ============================================================================

type fixture struct {
	store   *Store
	backing storage.Storage
	session *auth.Session
	remote  *fakeRemote
}

func newFixture(t *testing.T, backing storage.Storage, policy syncer.Policy, opts ...Option) *fixture {
	t.Helper()
	if backing == nil {
		backing = memory.New()
	}
	session := auth.NewSession(backing, logger.Discard())
	remote := &fakeRemote{}
	sc := syncer.New("cart-"+t.Name(), policy, logger.Discard())

	store, err := NewStore(context.Background(), backing, session, remote, sc, logger.Discard(), opts...)
	require.NoError(t, err)
	require.NoError(t, store.Start(context.Background()))
	t.Cleanup(store.Close)

	return &fixture{store: store, backing: backing, session: session, remote: remote}
}

func flush(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

var (
	runner = domain.Product{ID: "p1", Name: "Runner", Price: 8999, ImageURL: "https://img/p1.jpg", Brand: "Acme"}
	trail  = domain.Product{ID: "p2", Name: "Trail", Price: 12050}
)

// ============================================================================
// Mutations
// ============================================================================

func TestStore_AddAccumulatesByIdentityKey(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	ctx := context.Background()

	require.NoError(t, f.store.Add(ctx, runner, 1, "38", "black"))
	require.NoError(t, f.store.Add(ctx, runner, 2, "38", "black"))
	require.NoError(t, f.store.Add(ctx, runner, 1, "39", "black"))
	require.NoError(t, f.store.Add(ctx, runner, 4, "38", "white"))

	cart := f.store.Snapshot()
	require.Len(t, cart.Lines, 3)
	assert.Equal(t, 3, cart.Lines[0].Quantity)
	assert.Equal(t, "Runner", cart.Lines[0].Name)
	assert.Equal(t, int64(8999), cart.Lines[0].UnitPrice)
	assert.Equal(t, 8, f.store.Count())
	assert.Equal(t, int64(8*8999), f.store.Subtotal())
}

func TestStore_AddDoesNotValidateQuantity(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())

	require.NoError(t, f.store.Add(context.Background(), runner, 0, "38", "black"))
	require.Len(t, f.store.Snapshot().Lines, 1)
	assert.Equal(t, 0, f.store.Count())
}

func TestStore_UpdateQuantityFloor(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, runner, 3, "38", "black"))

	for _, q := range []int{0, -1, -100} {
		require.NoError(t, f.store.UpdateQuantity(ctx, runner.ID, "38", "black", q))
		assert.Equal(t, 3, f.store.Snapshot().Lines[0].Quantity, "quantity %d must be ignored", q)
	}

	require.NoError(t, f.store.UpdateQuantity(ctx, runner.ID, "38", "black", 5))
	assert.Equal(t, 5, f.store.Snapshot().Lines[0].Quantity)
}

func TestStore_UpdateQuantityMissingLineIsNoop(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())

	require.NoError(t, f.store.UpdateQuantity(context.Background(), "missing", "38", "black", 2))
	assert.Empty(t, f.store.Snapshot().Lines)
}

func TestStore_RemoveToZero(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, runner, 1, "38", "black"))

	require.NoError(t, f.store.Remove(ctx, runner.ID, "38", "black"))

	cart := f.store.Snapshot()
	assert.Equal(t, -1, cart.Find(domain.LineKey{ProductID: runner.ID, Size: "38", Color: "black"}))
	assert.Equal(t, 0, f.store.Count())
}

func TestStore_RemoveAbsentIsNoop(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, runner, 1, "38", "black"))

	require.NoError(t, f.store.Remove(ctx, runner.ID, "39", "black"))
	assert.Len(t, f.store.Snapshot().Lines, 1)
}

func TestStore_ClearPersistsEmptyList(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, runner, 1, "38", "black"))

	require.NoError(t, f.store.Clear(ctx))

	assert.Empty(t, f.store.Snapshot().Lines)
	data, err := f.backing.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	require.NoError(t, f.store.Add(context.Background(), runner, 1, "38", "black"))

	snap := f.store.Snapshot()
	snap.Lines[0].Quantity = 50
	assert.Equal(t, 1, f.store.Count())
}

// TestStore_RandomSequencesKeepAggregatesConsistent drives random
// add/update/remove sequences and checks count, subtotal and key uniqueness
// against an independent model after every step.
func TestStore_RandomSequencesKeepAggregatesConsistent(t *testing.T) {
	products := []domain.Product{runner, trail, {ID: "p3", Price: 1}, {ID: "p4", Price: 99999}}
	sizes := []string{"38", "39", "40"}
	colors := []string{"black", "white"}

	for seed := uint64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7))
		f := newFixture(t, nil, syncer.CartPolicy())
		ctx := context.Background()

		model := map[domain.LineKey]int{}
		prices := map[string]int64{}
		for _, p := range products {
			prices[p.ID] = p.Price
		}

		for step := 0; step < 200; step++ {
			p := products[rng.IntN(len(products))]
			size, color := sizes[rng.IntN(len(sizes))], colors[rng.IntN(len(colors))]
			key := domain.LineKey{ProductID: p.ID, Size: size, Color: color}

			switch rng.IntN(3) {
			case 0:
				q := rng.IntN(5) + 1
				require.NoError(t, f.store.Add(ctx, p, q, size, color))
				model[key] += q
			case 1:
				q := rng.IntN(7) - 2
				require.NoError(t, f.store.UpdateQuantity(ctx, p.ID, size, color, q))
				if _, ok := model[key]; ok && q >= 1 {
					model[key] = q
				}
			case 2:
				require.NoError(t, f.store.Remove(ctx, p.ID, size, color))
				delete(model, key)
			}

			var wantCount int
			var wantTotal int64
			for k, q := range model {
				wantCount += q
				wantTotal += prices[k.ProductID] * int64(q)
			}

			cart := f.store.Snapshot()
			require.Equal(t, wantCount, f.store.Count(), "seed %d step %d", seed, step)
			require.Equal(t, wantTotal, f.store.Subtotal(), "seed %d step %d", seed, step)
			require.Len(t, cart.Lines, len(model))

			seen := map[domain.LineKey]bool{}
			for _, line := range cart.Lines {
				require.False(t, seen[line.Key()], "duplicate line %+v", line.Key())
				seen[line.Key()] = true
				require.Equal(t, model[line.Key()], line.Quantity)
			}
		}
	}
}

// ============================================================================
// Persistence
// ============================================================================

func TestStore_LocalDurabilityAcrossReload(t *testing.T) {
	backing := memory.New()
	f := newFixture(t, backing, syncer.CartPolicy())
	require.NoError(t, f.store.Add(context.Background(), runner, 2, "38", "black"))
	f.store.Close()

	reloaded := newFixture(t, backing, syncer.CartPolicy())
	cart := reloaded.store.Snapshot()
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, domain.LineKey{ProductID: runner.ID, Size: "38", Color: "black"}, cart.Lines[0].Key())
	assert.Equal(t, 2, cart.Lines[0].Quantity)
}

func TestStore_CorruptSnapshotLoadsEmpty(t *testing.T) {
	backing := memory.New()
	require.NoError(t, backing.Set(context.Background(), storage.KeyCart, []byte("{broken")))

	f := newFixture(t, backing, syncer.CartPolicy())
	assert.Empty(t, f.store.Snapshot().Lines)
}

func TestStore_PersistFailureIsReturnedButStateUpdated(t *testing.T) {
	diskFull := errors.New("disk full")
	f := newFixture(t, failingStorage{Storage: memory.New(), err: diskFull}, syncer.CartPolicy())

	err := f.store.Add(context.Background(), runner, 1, "38", "black")
	assert.ErrorIs(t, err, diskFull)
	assert.Equal(t, 1, f.store.Count())
}

func TestStore_ReloadsWhenAnotherHandleWrites(t *testing.T) {
	tabA := memory.New()
	tabB := tabA.Fork()
	a := newFixture(t, tabA, syncer.CartPolicy())
	b := newFixture(t, tabB, syncer.CartPolicy())

	require.NoError(t, b.store.Add(context.Background(), trail, 2, "42", "white"))

	assert.Eventually(t, func() bool {
		return a.store.Count() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

// ============================================================================
// Remote sync
// ============================================================================

func TestStore_NoPushWhileLoggedOut(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	require.NoError(t, f.store.Add(context.Background(), runner, 1, "38", "black"))
	flush(t, f.store)

	assert.Empty(t, f.remote.pushes())
}

func TestStore_PushesWholeListLineByLine(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	ctx := context.Background()
	require.NoError(t, f.session.Login(ctx, "tok"))
	flush(t, f.store)

	require.NoError(t, f.store.Add(ctx, runner, 1, "38", "black"))
	require.NoError(t, f.store.Add(ctx, trail, 2, "42", "white"))
	flush(t, f.store)

	pushed := f.remote.pushes()
	require.Len(t, pushed, 3)
	assert.Equal(t, runner.ID, pushed[0].ProductID)
	assert.Equal(t, runner.ID, pushed[1].ProductID)
	assert.Equal(t, trail.ID, pushed[2].ProductID)
}

func TestStore_PushFailuresAreSwallowedPerLine(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	ctx := context.Background()
	f.remote.pushErrFn = func(line domain.CartLine) error {
		if line.ProductID == trail.ID {
			return errors.New("500 from backend")
		}
		return nil
	}
	require.NoError(t, f.session.Login(ctx, "tok"))
	flush(t, f.store)

	require.NoError(t, f.store.Add(ctx, runner, 1, "38", "black"))
	require.NoError(t, f.store.Add(ctx, trail, 1, "42", "white"))
	flush(t, f.store)

	assert.Len(t, f.remote.pushes(), 3)
	assert.Equal(t, 2, f.store.Count())
	state := f.store.SyncState()
	assert.Equal(t, 1, state.ConsecutiveFailures)
	assert.Equal(t, "500 from backend", state.LastError)
	assert.False(t, state.CircuitOpen)
}

func TestStore_LoginPullReplacesWithoutPush(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, runner, 5, "38", "black"))

	f.remote.fetched = []domain.CartLine{{ProductID: trail.ID, UnitPrice: 12050, Quantity: 1, Size: "42", Color: "white"}}
	require.NoError(t, f.session.Login(ctx, "tok"))
	flush(t, f.store)

	cart := f.store.Snapshot()
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, trail.ID, cart.Lines[0].ProductID)
	assert.Empty(t, f.remote.pushes())

	data, err := f.backing.Get(ctx, storage.KeyCart)
	require.NoError(t, err)
	lines, err := domain.UnmarshalLines(data)
	require.NoError(t, err)
	assert.Equal(t, cart.Lines, lines)
}

func TestStore_LoginPullFoldsDuplicateLines(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	ctx := context.Background()

	f.remote.fetched = []domain.CartLine{
		{ProductID: runner.ID, UnitPrice: 8999, Quantity: 1, Size: "38", Color: "black"},
		{ProductID: trail.ID, UnitPrice: 12050, Quantity: 0, Size: "42", Color: "white"},
		{ProductID: runner.ID, UnitPrice: 8999, Quantity: 2, Size: "38", Color: "black"},
	}
	require.NoError(t, f.session.Login(ctx, "tok"))
	flush(t, f.store)

	cart := f.store.Snapshot()
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 2, cart.Lines[0].Quantity)

	require.NoError(t, f.store.Add(ctx, runner, 1, "38", "black"))
	cart = f.store.Snapshot()
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 3, cart.Lines[0].Quantity)

	require.NoError(t, f.store.Remove(ctx, runner.ID, "38", "black"))
	assert.Empty(t, f.store.Snapshot().Lines)
}

func TestStore_PullOnlyOnTransition(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	ctx := context.Background()

	require.NoError(t, f.session.Login(ctx, "tok-1"))
	require.NoError(t, f.session.Login(ctx, "tok-2"))
	flush(t, f.store)
	assert.Equal(t, 1, f.remote.fetches)

	require.NoError(t, f.session.Logout(ctx))
	require.NoError(t, f.session.Login(ctx, "tok-3"))
	flush(t, f.store)
	assert.Equal(t, 2, f.remote.fetches)
}

func TestStore_LogoutKeepsLocalCart(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	ctx := context.Background()
	require.NoError(t, f.session.Login(ctx, "tok"))
	flush(t, f.store)
	require.NoError(t, f.store.Add(ctx, runner, 1, "38", "black"))

	require.NoError(t, f.session.Logout(ctx))
	assert.Equal(t, 1, f.store.Count())
}

func TestStore_FailedPullKeepsLocalCart(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, runner, 2, "38", "black"))
	f.remote.fetchErr = errors.New("timeout")

	require.NoError(t, f.session.Login(ctx, "tok"))
	flush(t, f.store)
	assert.Equal(t, 2, f.store.Count())
}

func TestStore_ConfiguredBreakerSkipsPushes(t *testing.T) {
	f := newFixture(t, nil, syncer.Policy{FailureThreshold: 2})
	ctx := context.Background()
	f.remote.pushErrFn = func(domain.CartLine) error { return errors.New("503") }
	require.NoError(t, f.session.Login(ctx, "tok"))
	flush(t, f.store)

	require.NoError(t, f.store.Add(ctx, runner, 1, "38", "black"))
	require.NoError(t, f.store.Add(ctx, trail, 1, "42", "white"))
	flush(t, f.store)

	// First push: 1 failure. Second push: 1 failure opens the circuit and
	// the remaining line is skipped.
	assert.Len(t, f.remote.pushes(), 2)
	assert.True(t, f.store.SyncState().CircuitOpen)

	f.remote.pushErrFn = nil
	require.NoError(t, f.store.Resume(ctx))
	assert.False(t, f.store.SyncState().CircuitOpen)
}

func TestStore_ResumeReturnsFetchError(t *testing.T) {
	f := newFixture(t, nil, syncer.CartPolicy())
	f.remote.fetchErr = apperrors.Unavailable("backend down")

	err := f.store.Resume(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestStore_PublishesChanges(t *testing.T) {
	pub := new(mockPublisher)
	pub.On("CartUpdated", mock.Anything, "", mock.MatchedBy(func(c domain.Cart) bool {
		return c.Count() == 2
	})).Return(nil).Once()
	f := newFixture(t, nil, syncer.CartPolicy(), WithPublisher(pub))

	require.NoError(t, f.store.Add(context.Background(), runner, 2, "38", "black"))
	flush(t, f.store)

	pub.AssertExpectations(t)
}
