package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWishlist_ContainsAndFind(t *testing.T) {
	w := Wishlist{Entries: []WishlistEntry{{ProductID: "a"}, {ProductID: "b"}}}

	assert.True(t, w.Contains("b"))
	assert.False(t, w.Contains("c"))
	assert.Equal(t, 1, w.Find("b"))
	assert.Equal(t, 2, w.Len())
}

func TestNewWishlistEntry_StampsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, loc)

	e := NewWishlistEntry(Product{ID: "p1", Name: "Runner", Price: 12000}, at)
	assert.Equal(t, "p1", e.ProductID)
	assert.Equal(t, int64(12000), e.Price)
	assert.Equal(t, time.UTC, e.AddedAt.Location())
	assert.True(t, at.Equal(e.AddedAt))
}

func TestEntriesSnapshot_RoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []WishlistEntry{NewWishlistEntry(Product{ID: "p1", Name: "Runner"}, at)}

	data, err := MarshalEntries(entries)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"added_at":"2026-03-01T12:00:00Z"`)

	got, err := UnmarshalEntries(data)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestEntriesSnapshot_Corrupt(t *testing.T) {
	_, err := UnmarshalEntries([]byte("not json"))
	assert.Error(t, err)
}

func TestNormalizeEntries_FoldsDuplicates(t *testing.T) {
	entries := []WishlistEntry{
		{ProductID: "a", Name: "old"},
		{ProductID: "b"},
		{ProductID: ""},
		{ProductID: "a", Name: "new"},
	}

	got, dropped := NormalizeEntries(entries)

	assert.Equal(t, 2, dropped)
	assert.Equal(t, []WishlistEntry{{ProductID: "a", Name: "new"}, {ProductID: "b"}}, got)
	assert.Equal(t, -1, Wishlist{Entries: got}.Find("c"))
}
