package storage

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/good12834/shoestore/pkg/errors"
)

// Well-known slots.
const (
	KeyCart     = "cart"
	KeyWishlist = "wishlist"
	KeyToken    = "token"
)

// Storage is a string-keyed slot store scoped to one profile. Values are
// whole snapshots; Set overwrites.
type Storage interface {
	// Get returns the value under key, or an error wrapping
	// apperrors.ErrNotFound when the slot is empty.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites the value under key.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Change reports a write made through another handle on the same data.
type Change struct {
	Key    string
	Origin string
}

// Watcher is implemented by drivers that can observe writes from other
// handles. The channel is closed when ctx is done.
type Watcher interface {
	Watch(ctx context.Context, key string) (<-chan Change, error)
}

// Pinger is implemented by drivers with a backend worth probing for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ValidateKey rejects keys that cannot be used as a slot name by every driver.
func ValidateKey(key string) error {
	if key == "" {
		return apperrors.InvalidInput("storage key is required")
	}
	if strings.ContainsAny(key, `/\|`) || key == "." || key == ".." {
		return apperrors.InvalidInput(fmt.Sprintf("invalid storage key %q", key))
	}
	return nil
}

// NotFound builds the error returned for an empty slot.
func NotFound(key string) error {
	return apperrors.NotFound("snapshot", key)
}
