package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/good12834/shoestore/internal/storage"
	apperrors "github.com/good12834/shoestore/pkg/errors"
	"github.com/good12834/shoestore/pkg/logger"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*Storage, *goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, "default", ttl, logger.Discard()), client, mr
}

// ---------------------------------------------------------------------------
// Get / Set / Remove
// ---------------------------------------------------------------------------

func TestStorage_Set_StoresUnderProfileKey(t *testing.T) {
	s, _, mr := setupTestRedis(t, 0)

	require.NoError(t, s.Set(context.Background(), storage.KeyCart, []byte(`[]`)))

	got, err := mr.Get("storefront:default:cart")
	require.NoError(t, err)
	assert.Equal(t, `[]`, got)
	assert.Zero(t, mr.TTL("storefront:default:cart"))
}

func TestStorage_Set_AppliesTTL(t *testing.T) {
	s, _, mr := setupTestRedis(t, 24*time.Hour)

	require.NoError(t, s.Set(context.Background(), storage.KeyWishlist, []byte(`[]`)))
	assert.Equal(t, 24*time.Hour, mr.TTL("storefront:default:wishlist"))
}

func TestStorage_Get(t *testing.T) {
	s, _, mr := setupTestRedis(t, 0)
	require.NoError(t, mr.Set("storefront:default:token", "tok-1"))

	got, err := s.Get(context.Background(), storage.KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", string(got))
}

func TestStorage_Get_NotFound(t *testing.T) {
	s, _, _ := setupTestRedis(t, 0)

	_, err := s.Get(context.Background(), storage.KeyCart)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestStorage_Get_ConnectionError(t *testing.T) {
	s, _, mr := setupTestRedis(t, 0)
	mr.Close()

	_, err := s.Get(context.Background(), storage.KeyCart)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestStorage_Remove(t *testing.T) {
	s, _, mr := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, storage.KeyCart, []byte(`[]`)))
	require.NoError(t, s.Remove(ctx, storage.KeyCart))
	require.NoError(t, s.Remove(ctx, storage.KeyCart))
	assert.False(t, mr.Exists("storefront:default:cart"))
}

func TestStorage_ProfilesAreIsolated(t *testing.T) {
	s, client, _ := setupTestRedis(t, 0)
	work := New(client, "work", 0, logger.Discard())
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, storage.KeyCart, []byte(`[1]`)))
	_, err := work.Get(ctx, storage.KeyCart)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestStorage_Ping(t *testing.T) {
	s, _, _ := setupTestRedis(t, 0)
	assert.NoError(t, s.Ping(context.Background()))
}

// ---------------------------------------------------------------------------
// Watch
// ---------------------------------------------------------------------------

func TestStorage_Watch_DeliversOtherOrigins(t *testing.T) {
	a, client, _ := setupTestRedis(t, 0)
	b := New(client, "default", 0, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := a.Watch(ctx, storage.KeyCart)
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, storage.KeyCart, []byte(`[]`)))
	require.NoError(t, b.Set(ctx, storage.KeyWishlist, []byte(`[]`)))
	require.NoError(t, b.Set(ctx, storage.KeyCart, []byte(`[1]`)))

	select {
	case c := <-changes:
		assert.Equal(t, storage.Change{Key: storage.KeyCart, Origin: b.Origin()}, c)
	case <-time.After(2 * time.Second):
		t.Fatal("expected change from second handle")
	}
}

func TestStorage_Watch_ClosesOnCancel(t *testing.T) {
	s, _, _ := setupTestRedis(t, 0)
	ctx, cancel := context.WithCancel(context.Background())

	changes, err := s.Watch(ctx, storage.KeyCart)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-changes:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("watch channel was not closed")
	}
}

func TestParseChange(t *testing.T) {
	c, ok := parseChange("abc|cart")
	require.True(t, ok)
	assert.Equal(t, storage.Change{Key: "cart", Origin: "abc"}, c)

	for _, bad := range []string{"", "abc", "|cart", "abc|"} {
		_, ok := parseChange(bad)
		assert.False(t, ok, bad)
	}
}
