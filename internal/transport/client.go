package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/status"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// ErrNotConnected is returned by Send while no stream is open.
var ErrNotConnected = errors.New("transport not connected")

// Sender pushes one envelope onto the event stream.
type Sender interface {
	Send(ctx context.Context, env Envelope) error
}

// Options configures the WebSocket client.
type Options struct {
	URL               string
	Token             string
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	MaxReconnects     int
	HeartbeatInterval time.Duration
	ReadLimit         int64
}

func (o *Options) defaults() {
	if o.ReconnectBase <= 0 {
		o.ReconnectBase = time.Second
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 30 * time.Second
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = 10
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 25 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 8 << 20
	}
}

// Client keeps one WebSocket to the event stream open, decodes inbound
// envelopes onto the bus and reconnects with capped exponential backoff.
// A lost stream is only a notice: nothing local is wiped.
type Client struct {
	opts    Options
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewClient creates a client; call Open to connect.
func NewClient(opts Options, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Client {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if machine == nil {
		machine = status.NewMachine(b)
	}
	return &Client{opts: opts, bus: b, machine: machine, logger: logger}
}

// Open dials the stream and starts the read loop. It fails if the first dial fails.
func (c *Client) Open(ctx context.Context) error {
	_ = c.machine.Reach(status.Connecting)
	conn, err := c.dial(ctx)
	if err != nil {
		_ = c.machine.Reach(status.Offline)
		return err
	}
	c.setConn(conn)
	_ = c.machine.Reach(status.Online)
	c.logger.Info("event stream connected", zap.String("url", c.opts.URL))

	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()
	go c.run(runCtx, conn)
	return nil
}

// Close stops reconnecting and closes the stream.
func (c *Client) Close() error {
	c.mu.Lock()
	cancel, done, conn := c.cancel, c.done, c.conn
	c.cancel, c.conn = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	<-done
	_ = c.machine.Reach(status.Offline)
	return err
}

// Send writes env to the open stream.
func (c *Client) Send(ctx context.Context, env Envelope) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := wsjson.Write(ctx, conn, env); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

// Connected reports whether a stream is currently open.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	defer close(c.done)
	for {
		err := c.serve(ctx, conn)
		c.setConn(nil)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("event stream lost", zap.Error(err))
		c.bus.Emit(bus.TransportDisconnected, err.Error())

		conn = c.reconnect(ctx)
		if conn == nil {
			return
		}
		if ctx.Err() != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "client closing")
			return
		}
		c.setConn(conn)
		c.bus.Emit(bus.TransportRestarted, nil)
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	hbCtx, stop := context.WithCancel(ctx)
	defer stop()
	go c.heartbeat(hbCtx, conn)

	for {
		var env Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return err
		}
		kind, payload, err := Decode(env)
		if err != nil {
			c.logger.Warn("dropping undecodable event", zap.String("type", env.Type), zap.Error(err))
			continue
		}
		c.bus.Emit(kind, payload)
	}
}

func (c *Client) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.opts.HeartbeatInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil && ctx.Err() == nil {
				c.logger.Warn("heartbeat failed", zap.Error(err))
				_ = conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) reconnect(ctx context.Context) *websocket.Conn {
	_ = c.machine.Reach(status.Reconnecting)
	delay := c.opts.ReconnectBase
	for attempt := 1; attempt <= c.opts.MaxReconnects; attempt++ {
		select {
		case <-time.After(jitter(delay)):
		case <-ctx.Done():
			return nil
		}

		_ = c.machine.Reach(status.Connecting)
		conn, err := c.dial(ctx)
		if err == nil {
			_ = c.machine.Reach(status.Online)
			c.logger.Info("event stream reconnected", zap.Int("attempt", attempt))
			return conn
		}
		c.logger.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		_ = c.machine.Reach(status.Reconnecting)
		delay = min(delay*2, c.opts.ReconnectMax)
	}
	c.logger.Error("giving up on event stream", zap.Int("attempts", c.opts.MaxReconnects))
	_ = c.machine.Reach(status.Offline)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.Token != "" {
		header.Set("Authorization", "Bearer "+c.opts.Token)
	}
	conn, _, err := websocket.Dial(ctx, c.opts.URL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	conn.SetReadLimit(c.opts.ReadLimit)
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// jitter spreads reconnects by up to ±20%.
func jitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.2
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
