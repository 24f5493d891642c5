package domain

import (
	"encoding/json"
	"fmt"
)

// Snapshots are stored as bare JSON arrays so the slot holds exactly the item
// list. A missing or null slot decodes to an empty list.

// MarshalLines serializes cart lines to a snapshot.
func MarshalLines(lines []CartLine) ([]byte, error) {
	if lines == nil {
		lines = []CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("marshal cart snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalLines parses a cart snapshot.
func UnmarshalLines(data []byte) ([]CartLine, error) {
	var lines []CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart snapshot: %w", err)
	}
	if lines == nil {
		lines = []CartLine{}
	}
	return lines, nil
}

// MarshalEntries serializes wishlist entries to a snapshot.
func MarshalEntries(entries []WishlistEntry) ([]byte, error) {
	if entries == nil {
		entries = []WishlistEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("marshal wishlist snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalEntries parses a wishlist snapshot.
func UnmarshalEntries(data []byte) ([]WishlistEntry, error) {
	var entries []WishlistEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal wishlist snapshot: %w", err)
	}
	if entries == nil {
		entries = []WishlistEntry{}
	}
	return entries, nil
}
