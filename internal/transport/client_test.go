package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is a minimal event-stream endpoint.
type fakeServer struct {
	t        *testing.T
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
	received chan Envelope

	mu         sync.Mutex
	authHeader string
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	fs := &fakeServer{
		t:        t,
		conns:    make(chan *websocket.Conn, 4),
		received: make(chan Envelope, 16),
	}
	srv := httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	fs.mu.Lock()
	fs.authHeader = r.Header.Get("Authorization")
	fs.mu.Unlock()

	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		fs.t.Errorf("upgrade: %v", err)
		return
	}
	fs.conns <- conn
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		fs.received <- env
	}
}

func (fs *fakeServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-fs.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for client connection")
		return nil
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitEvent(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s", kind)
			return bus.Event{}
		}
	}
}

func TestClientPublishesInboundEvents(t *testing.T) {
	fs, srv := newFakeServer(t)
	b := bus.New()
	ch, unsub := b.Subscribe("transport.", 16)
	defer unsub()

	machine := status.NewMachine(b)
	c := NewClient(Options{URL: wsURL(srv), Token: "secret"}, b, machine, nil)
	require.NoError(t, c.Open(context.Background()))
	defer func() { _ = c.Close() }()

	assert.Equal(t, status.Online, machine.Current())
	conn := fs.nextConn(t)

	fs.mu.Lock()
	assert.Equal(t, "Bearer secret", fs.authHeader)
	fs.mu.Unlock()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    "typing",
		"payload": map[string]any{"senderId": "bob", "recipientId": "alice", "typing": true},
	}))
	evt := waitEvent(t, ch, bus.TransportTyping)
	assert.Equal(t, Typing{SenderID: "bob", RecipientID: "alice", Typing: true}, evt.Payload)
}

func TestClientSend(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := NewClient(Options{URL: wsURL(srv)}, bus.New(), nil, nil)

	env, err := Encode(TypeCallEnded, CallControl{From: "alice", To: "bob"})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Send(context.Background(), env), ErrNotConnected)

	require.NoError(t, c.Open(context.Background()))
	defer func() { _ = c.Close() }()
	fs.nextConn(t)

	require.NoError(t, c.Send(context.Background(), env))
	select {
	case got := <-fs.received:
		assert.Equal(t, TypeCallEnded, got.Type)
		assert.JSONEq(t, `{"from":"alice","to":"bob"}`, string(got.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the envelope")
	}
}

func TestClientReconnectsAfterDrop(t *testing.T) {
	fs, srv := newFakeServer(t)
	b := bus.New()
	ch, unsub := b.Subscribe("transport.", 16)
	defer unsub()

	c := NewClient(Options{URL: wsURL(srv), ReconnectBase: 10 * time.Millisecond, ReconnectMax: 20 * time.Millisecond}, b, nil, nil)
	require.NoError(t, c.Open(context.Background()))
	defer func() { _ = c.Close() }()

	first := fs.nextConn(t)
	_ = first.Close()

	waitEvent(t, ch, bus.TransportDisconnected)
	fs.nextConn(t)
	waitEvent(t, ch, bus.TransportRestarted)
	assert.Eventually(t, c.Connected, time.Second, 10*time.Millisecond)
}

func TestOpenFailureGoesOffline(t *testing.T) {
	machine := status.NewMachine(nil)
	c := NewClient(Options{URL: "ws://127.0.0.1:1/unreachable"}, bus.New(), machine, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Error(t, c.Open(ctx))
	assert.Equal(t, status.Offline, machine.Current())
	assert.NoError(t, c.Close())
}
