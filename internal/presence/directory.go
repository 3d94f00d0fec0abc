// Package presence holds the roster of currently reachable remote users.
package presence

import (
	"sort"
	"sync"
)

// Availability is whether a reachable user currently accepts calls.
type Availability string

const (
	Available   Availability = "available"
	Unavailable Availability = "unavailable"
)

// Location is the last position a user reported.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Entry is one reachable user as announced in the latest snapshot.
type Entry struct {
	UserID       string       `json:"userId"`
	PeerHandle   string       `json:"peerHandle"`
	Availability Availability `json:"availability"`
	Location     Location     `json:"location"`
}

// Directory is a replace-only store: each snapshot overwrites the roster.
// A user missing from a snapshot is treated exactly like one who went offline.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]Entry)}
}

// ReplaceSnapshot swaps in a new roster atomically.
func (d *Directory) ReplaceSnapshot(entries []Entry) {
	next := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.UserID == "" {
			continue
		}
		next[e.UserID] = e
	}
	d.mu.Lock()
	d.entries = next
	d.mu.Unlock()
}

// Lookup returns the entry for userID, if present in the latest snapshot.
func (d *Directory) Lookup(userID string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.entries[userID]
	return e, ok
}

// IsReachable reports whether userID appeared in the latest snapshot.
func (d *Directory) IsReachable(userID string) bool {
	_, ok := d.Lookup(userID)
	return ok
}

// AvailabilityOf returns the user's availability; absent users are unavailable.
func (d *Directory) AvailabilityOf(userID string) Availability {
	e, ok := d.Lookup(userID)
	if !ok || e.Availability == "" {
		return Unavailable
	}
	return e.Availability
}

// Entries returns the roster sorted by user id.
func (d *Directory) Entries() []Entry {
	d.mu.RLock()
	out := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, e)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Len is the number of reachable users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}
