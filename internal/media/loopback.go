package media

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrConnectorClosed is returned by a closed Loopback.
var ErrConnectorClosed = errors.New("media connector closed")

// Connection is one peer media session.
type Connection interface {
	// Remote delivers the peer's stream once it arrives and is closed
	// when the connection closes.
	Remote() <-chan Stream
	Close() error
}

// Loopback is a connector that answers every peer with a synthetic remote
// stream. It stands in for a real peer-to-peer media stack.
type Loopback struct {
	logger *zap.Logger
	rearms atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewLoopback creates a loopback connector.
func NewLoopback(logger *zap.Logger) *Loopback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loopback{logger: logger}
}

// Connect opens a media session with peerHandle using local as the outgoing stream.
func (l *Loopback) Connect(ctx context.Context, peerHandle string, local Stream) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, ErrConnectorClosed
	}
	if !Live(local) {
		return nil, ErrNotLive
	}
	c := &LoopbackConn{remote: make(chan Stream, 1)}
	c.remote <- NewSyntheticStream()
	l.logger.Debug("loopback connected", zap.String("peer_handle", peerHandle))
	return c, nil
}

// Rearm re-registers with the signaling side after a transport restart.
func (l *Loopback) Rearm(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrConnectorClosed
	}
	l.rearms.Add(1)
	return nil
}

// Rearms counts successful Rearm calls.
func (l *Loopback) Rearms() int64 {
	return l.rearms.Load()
}

// Close stops accepting new connections.
func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

// LoopbackConn is one loopback session.
type LoopbackConn struct {
	remote chan Stream
	once   sync.Once
}

func (c *LoopbackConn) Remote() <-chan Stream {
	return c.remote
}

// Close ends the session, stopping a remote stream nobody picked up.
func (c *LoopbackConn) Close() error {
	c.once.Do(func() {
		select {
		case s := <-c.remote:
			StopAll(s)
		default:
		}
		close(c.remote)
	})
	return nil
}
