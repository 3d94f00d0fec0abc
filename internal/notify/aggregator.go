// Package notify derives the unread view from incoming-message notifications.
package notify

import (
	"sync"
	"time"

	"github.com/matheus3301/huddle/internal/store"
)

// Type tags the kind of notification. Only incoming messages exist today.
type Type string

const IncomingMessage Type = "incoming-message"

// Notification tells the recipient that something happened for them.
type Notification struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Sender    store.Participant `json:"sender"`
	Recipient store.Participant `json:"recipient"`
	Unread    bool              `json:"unread"`
	CreatedAt time.Time         `json:"createdAt"`
}

// Aggregator keeps an unread list and an all-time list, newest first.
// Neither list is capped.
type Aggregator struct {
	mu     sync.RWMutex
	unread []Notification
	all    []Notification
}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add prepends n to both lists.
func (a *Aggregator) Add(n Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unread = prepend(a.unread, n)
	a.all = prepend(a.all, n)
}

// MarkAllRead empties the unread list and flags every stored notification read.
// It returns how many were unread.
func (a *Aggregator) MarkAllRead() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := len(a.unread)
	a.unread = nil
	for i := range a.all {
		a.all[i].Unread = false
	}
	return n
}

// Unread returns a copy of the unread list.
func (a *Aggregator) Unread() []Notification {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Notification(nil), a.unread...)
}

// All returns a copy of the all-time list.
func (a *Aggregator) All() []Notification {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]Notification(nil), a.all...)
}

func prepend(list []Notification, n Notification) []Notification {
	list = append(list, Notification{})
	copy(list[1:], list)
	list[0] = n
	return list
}
