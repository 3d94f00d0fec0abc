// Package typing debounces keystrokes into started/stopped typing events.
package typing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultStopDelay is how long after the last keystroke "stopped typing" fires.
const DefaultStopDelay = 800 * time.Millisecond

const sendTimeout = 5 * time.Second

// Notifier delivers typing state to a peer.
type Notifier interface {
	Typing(ctx context.Context, senderID, recipientID string, typing bool) error
}

// Indicator tracks one composer. At most one stop timer is pending at any time.
type Indicator struct {
	notifier Notifier
	selfID   string
	delay    time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	timer  *time.Timer
	peerID string
	active bool
	gen    uint64
}

// New creates an indicator for the local user selfID.
func New(n Notifier, selfID string, delay time.Duration, logger *zap.Logger) *Indicator {
	if delay <= 0 {
		delay = DefaultStopDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indicator{notifier: n, selfID: selfID, delay: delay, logger: logger}
}

// Keystroke records a keystroke in the composer addressed to peerID. The first
// keystroke of a burst emits typing=true; every keystroke re-arms the stop timer.
// Switching to a different peer cancels the previous burst.
func (i *Indicator) Keystroke(peerID string) {
	i.mu.Lock()
	if i.active && i.peerID != peerID {
		i.cancelLocked()
	}
	start := !i.active
	i.active = true
	i.peerID = peerID
	i.gen++
	gen := i.gen
	if i.timer != nil {
		i.timer.Stop()
	}
	i.timer = time.AfterFunc(i.delay, func() { i.fire(gen) })
	i.mu.Unlock()

	if start {
		i.emit(peerID, true)
	}
}

// Cancel drops the pending stop timer without emitting anything. Used when
// the composer goes away or the open conversation changes.
func (i *Indicator) Cancel() {
	i.mu.Lock()
	i.cancelLocked()
	i.mu.Unlock()
}

// Pending reports whether a stop timer is armed.
func (i *Indicator) Pending() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

func (i *Indicator) cancelLocked() {
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
	i.active = false
	i.gen++
}

func (i *Indicator) fire(gen uint64) {
	i.mu.Lock()
	if gen != i.gen || !i.active {
		// Superseded by a later keystroke or a cancel.
		i.mu.Unlock()
		return
	}
	peerID := i.peerID
	i.active = false
	i.timer = nil
	i.mu.Unlock()

	i.emit(peerID, false)
}

func (i *Indicator) emit(peerID string, typing bool) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := i.notifier.Typing(ctx, i.selfID, peerID, typing); err != nil {
		i.logger.Debug("typing event not delivered", zap.String("peer", peerID), zap.Bool("typing", typing), zap.Error(err))
	}
}
