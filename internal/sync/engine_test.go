package sync

import (
	"context"
	"errors"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/notify"
	"github.com/matheus3301/huddle/internal/presence"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/matheus3301/huddle/internal/transport"
)

var (
	alice = store.Participant{ID: "alice", Name: "Alice"}
	bob   = store.Participant{ID: "bob", Name: "Bob"}
	carol = store.Participant{ID: "carol", Name: "Carol"}
)

// recordingWriter captures queued writes and acks them with failWith.
type recordingWriter struct {
	mu       stdsync.Mutex
	writes   []store.Write
	failWith error
}

func (w *recordingWriter) Enqueue(wr store.Write) {
	w.mu.Lock()
	w.writes = append(w.writes, wr)
	err := w.failWith
	w.mu.Unlock()
	if wr.Ack != nil {
		wr.Ack(store.WriteResult{Op: wr.Op, ConversationID: wr.ConversationID, Err: err})
	}
}

func (w *recordingWriter) ops() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, wr := range w.writes {
		out = append(out, wr.Op)
	}
	return out
}

type deleteCall struct {
	peer, conversation, message string
}

type recordingOutbound struct {
	mu            stdsync.Mutex
	messages      []store.Message
	notifications []notify.Notification
	deletes       []deleteCall
	announces     []presence.Entry
	err           error
}

func (o *recordingOutbound) NewMessage(_ context.Context, m store.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, m)
	return o.err
}

func (o *recordingOutbound) NewNotification(_ context.Context, n notify.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifications = append(o.notifications, n)
	return o.err
}

func (o *recordingOutbound) DeleteMessage(_ context.Context, peer, conv, msg string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deletes = append(o.deletes, deleteCall{peer, conv, msg})
	return o.err
}

func (o *recordingOutbound) Announce(_ context.Context, e presence.Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.announces = append(o.announces, e)
	return o.err
}

func (o *recordingOutbound) announceCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.announces)
}

type fixture struct {
	engine *Engine
	writer *recordingWriter
	out    *recordingOutbound
	dir    *presence.Directory
	notes  *notify.Aggregator
	bus    *bus.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		writer: &recordingWriter{},
		out:    &recordingOutbound{},
		dir:    presence.NewDirectory(),
		notes:  notify.NewAggregator(),
		bus:    bus.New(),
	}
	f.engine = NewEngine(Identity{User: alice, PeerHandle: "alice-handle"}, f.writer, nil, f.out, f.dir, f.notes, f.bus, nil)
	return f
}

func candidate(id string, a, b store.Participant) *store.Conversation {
	return &store.Conversation{
		ID:           id,
		OwnerID:      a.ID,
		Participants: [2]store.Participant{a, b},
		CreatedAt:    time.UnixMilli(1000),
	}
}

func message(t *testing.T, id, convID string, from, to store.Participant, content string) store.Message {
	t.Helper()
	m, err := store.NewMessage(id, convID, from, to, content, nil, time.UnixMilli(2000))
	if err != nil {
		t.Fatal(err)
	}
	return m
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
		}
	}
}

func TestCreateOrSelectKeepsOneConversationPerPair(t *testing.T) {
	f := newFixture(t)

	first := f.engine.CreateOrSelectConversation(candidate("c1", alice, bob), bob)
	// Same pair in the other direction with a fresh id.
	second := f.engine.CreateOrSelectConversation(candidate("c2", bob, alice), bob)

	if got := len(f.engine.Conversations()); got != 1 {
		t.Fatalf("conversations = %d, want 1", got)
	}
	if first.ID != "c1" || second.ID != "c1" {
		t.Errorf("ids = %q, %q, want both c1", first.ID, second.ID)
	}
	if sel := f.engine.Selected(); sel == nil || sel.ID != "c1" {
		t.Errorf("selected = %v, want c1", sel)
	}
	if ops := f.writer.ops(); len(ops) != 2 {
		t.Errorf("writes = %v, want one per call", ops)
	}
}

func TestCreateOrSelectKeepsHistoryAndRefreshesSnapshot(t *testing.T) {
	f := newFixture(t)
	f.engine.CreateOrSelectConversation(candidate("c1", alice, bob), bob)
	f.engine.IncomingMessage(message(t, "m1", "c1", bob, alice, "hi"), alice.ID)

	renamed := store.Participant{ID: "bob", Name: "Robert", Avatar: "r.png"}
	conv := f.engine.CreateOrSelectConversation(candidate("c9", alice, renamed), renamed)

	if conv.ID != "c1" {
		t.Errorf("id = %q, want c1", conv.ID)
	}
	if len(conv.Messages) != 1 {
		t.Errorf("messages = %d, want 1", len(conv.Messages))
	}
	if got := conv.Other(alice.ID); got.Name != "Robert" || got.Avatar != "r.png" {
		t.Errorf("peer snapshot = %+v, want refreshed", got)
	}
}

func TestIncomingMessageSynthesizesConversation(t *testing.T) {
	f := newFixture(t)
	ch, unsub := f.bus.Subscribe("conversation.", 10)
	defer unsub()

	conv := f.engine.IncomingMessage(message(t, "m1", "remote-c", bob, alice, "hello"), alice.ID)

	if conv.ID != "remote-c" {
		t.Errorf("id = %q, want remote-c", conv.ID)
	}
	if conv.OwnerID != alice.ID {
		t.Errorf("owner = %q, want alice", conv.OwnerID)
	}
	if conv.Participants[0] != bob || conv.Participants[1] != alice {
		t.Errorf("participants = %+v", conv.Participants)
	}
	if ops := f.writer.ops(); len(ops) != 1 || ops[0] != "upsert" {
		t.Errorf("writes = %v, want [upsert]", ops)
	}
	evt := waitEvent(t, ch, bus.ConversationUpdated)
	if evt.Payload != "remote-c" {
		t.Errorf("payload = %v", evt.Payload)
	}
}

func TestIncomingMessagesAppendInArrivalOrder(t *testing.T) {
	f := newFixture(t)
	f.engine.IncomingMessage(message(t, "m1", "c1", bob, alice, "one"), alice.ID)
	f.engine.IncomingMessage(message(t, "m2", "other-id", alice, bob, "two"), alice.ID)
	f.engine.IncomingMessage(message(t, "m3", "c1", bob, alice, "three"), alice.ID)
	// Duplicate ids are not collapsed.
	f.engine.IncomingMessage(message(t, "m3", "c1", bob, alice, "three"), alice.ID)

	convs := f.engine.Conversations()
	if len(convs) != 1 {
		t.Fatalf("conversations = %d, want 1", len(convs))
	}
	var got []string
	for _, m := range convs[0].Messages {
		got = append(got, m.ID)
		if m.ConversationID != "c1" {
			t.Errorf("message %s conversation = %q, want c1", m.ID, m.ConversationID)
		}
	}
	want := []string{"m1", "m2", "m3", "m3"}
	if len(got) != len(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	ops := f.writer.ops()
	if ops[0] != "upsert" || ops[1] != "append" {
		t.Errorf("writes = %v", ops)
	}
}

func TestDeleteMessageLocalScope(t *testing.T) {
	f := newFixture(t)
	f.dir.ReplaceSnapshot([]presence.Entry{{UserID: "bob", Availability: presence.Available}})
	f.engine.IncomingMessage(message(t, "m1", "c1", alice, bob, "oops"), alice.ID)

	if err := f.engine.DeleteMessage(context.Background(), "c1", "m1", ScopeLocal); err != nil {
		t.Fatal(err)
	}
	conv, _ := f.engine.Conversation("c1")
	m := conv.Messages[0]
	if !m.Deleted || m.Content != "" {
		t.Errorf("message = %+v, want tombstone", m)
	}
	if len(f.out.deletes) != 0 {
		t.Errorf("remote deletes = %v, want none", f.out.deletes)
	}
}

func TestDeleteMessageEveryoneReachesOnlineSender(t *testing.T) {
	f := newFixture(t)
	f.dir.ReplaceSnapshot([]presence.Entry{{UserID: "bob", Availability: presence.Available}})
	f.engine.IncomingMessage(message(t, "m1", "c1", alice, bob, "mine"), alice.ID)
	f.engine.IncomingMessage(message(t, "m2", "c1", bob, alice, "theirs"), alice.ID)

	if err := f.engine.DeleteMessage(context.Background(), "c1", "m1", ScopeEveryone); err != nil {
		t.Fatal(err)
	}
	if err := f.engine.DeleteMessage(context.Background(), "c1", "m2", ScopeEveryone); err != nil {
		t.Fatal(err)
	}

	if len(f.out.deletes) != 1 {
		t.Fatalf("remote deletes = %v, want exactly one", f.out.deletes)
	}
	want := deleteCall{peer: "bob", conversation: "c1", message: "m1"}
	if f.out.deletes[0] != want {
		t.Errorf("remote delete = %+v, want %+v", f.out.deletes[0], want)
	}
	conv, _ := f.engine.Conversation("c1")
	if !conv.Messages[1].Deleted {
		t.Error("peer's message should still be tombstoned locally")
	}
}

func TestDeleteMessageOfflinePeerStaysLocal(t *testing.T) {
	f := newFixture(t)
	f.engine.IncomingMessage(message(t, "m1", "c1", alice, bob, "mine"), alice.ID)

	if err := f.engine.DeleteMessage(context.Background(), "c1", "m1", ScopeEveryone); err != nil {
		t.Fatal(err)
	}
	if len(f.out.deletes) != 0 {
		t.Errorf("remote deletes = %v, want none while bob is offline", f.out.deletes)
	}

	// Bob coming back later does not replay the delete.
	f.dir.ReplaceSnapshot([]presence.Entry{{UserID: "bob", Availability: presence.Available}})
	if err := f.engine.DeleteMessage(context.Background(), "c1", "m1", ScopeEveryone); err != nil {
		t.Fatal(err)
	}
	if len(f.out.deletes) != 1 {
		t.Errorf("remote deletes = %d, want 1 after explicit retry", len(f.out.deletes))
	}
}

func TestDeleteMessageIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.engine.IncomingMessage(message(t, "m1", "c1", bob, alice, "x"), alice.ID)

	for i := 0; i < 2; i++ {
		if err := f.engine.DeleteMessage(context.Background(), "c1", "m1", ScopeLocal); err != nil {
			t.Fatal(err)
		}
	}
	ops := f.writer.ops()
	if len(ops) != 2 || ops[1] != "update_messages" {
		t.Errorf("writes = %v, want one update for two deletes", ops)
	}
}

func TestDeleteMessageUnknown(t *testing.T) {
	f := newFixture(t)
	err := f.engine.DeleteMessage(context.Background(), "nope", "m1", ScopeLocal)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetReadFlipsEveryMessage(t *testing.T) {
	f := newFixture(t)
	f.engine.IncomingMessage(message(t, "m1", "c1", bob, alice, "a"), alice.ID)
	f.engine.IncomingMessage(message(t, "m2", "c1", alice, bob, "b"), alice.ID)

	n, err := f.engine.SetRead("c1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("flipped = %d, want 2", n)
	}
	conv, _ := f.engine.Conversation("c1")
	if conv.UnreadCount() != 0 {
		t.Errorf("unread = %d, want 0", conv.UnreadCount())
	}
	if n, _ := f.engine.SetRead("c1"); n != 0 {
		t.Errorf("second SetRead flipped %d", n)
	}
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	existing := f.engine.StartConversation(bob)

	msg, err := f.engine.SendMessage(context.Background(), bob, "hey", nil)
	if err != nil {
		t.Fatal(err)
	}
	if msg.ConversationID != existing.ID {
		t.Errorf("conversation = %q, want %q", msg.ConversationID, existing.ID)
	}
	if len(f.out.messages) != 1 || f.out.messages[0].ID != msg.ID {
		t.Errorf("emitted messages = %+v", f.out.messages)
	}
	if len(f.out.notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.out.notifications))
	}
	n := f.out.notifications[0]
	if n.Type != notify.IncomingMessage || n.Sender != alice || n.Recipient != bob || !n.Unread {
		t.Errorf("notification = %+v", n)
	}

	if _, err := f.engine.SendMessage(context.Background(), bob, "", nil); !errors.Is(err, store.ErrEmptyMessage) {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}
}

func TestSendMessageKeptWhenEmitFails(t *testing.T) {
	f := newFixture(t)
	f.out.err = errors.New("not connected")

	msg, err := f.engine.SendMessage(context.Background(), carol, "still here", nil)
	if err != nil {
		t.Fatal(err)
	}
	conv, ok := f.engine.Conversation(msg.ConversationID)
	if !ok || len(conv.Messages) != 1 {
		t.Fatalf("conversation = %+v, want message kept", conv)
	}
}

func TestRemoveConversation(t *testing.T) {
	f := newFixture(t)
	conv := f.engine.StartConversation(bob)

	if err := f.engine.RemoveConversation(conv.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.engine.Conversation(conv.ID); ok {
		t.Error("conversation still present")
	}
	if f.engine.Selected() != nil {
		t.Error("removed conversation still selected")
	}
	if err := f.engine.RemoveConversation(conv.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFailedWriteKeepsMemoryState(t *testing.T) {
	f := newFixture(t)
	f.writer.failWith = errors.New("disk full")
	ch, unsub := f.bus.Subscribe("store.", 10)
	defer unsub()

	f.engine.IncomingMessage(message(t, "m1", "c1", bob, alice, "hi"), alice.ID)

	evt := waitEvent(t, ch, bus.StoreWriteFailed)
	if res, ok := evt.Payload.(store.WriteResult); !ok || res.ConversationID != "c1" {
		t.Errorf("payload = %+v", evt.Payload)
	}
	if _, ok := f.engine.Conversation("c1"); !ok {
		t.Error("in-memory conversation lost after failed write")
	}
}

func TestInboundEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine.Start(ctx)
	defer f.engine.Stop()

	ch, unsub := f.bus.Subscribe("", 32)
	defer unsub()

	f.bus.Emit(bus.TransportPresenceSnapshot, []presence.Entry{{UserID: "bob", Availability: presence.Available}})
	waitEvent(t, ch, bus.PresenceUpdated)
	if !f.dir.IsReachable("bob") {
		t.Error("bob should be reachable after snapshot")
	}

	m := message(t, "m1", "c1", bob, alice, "hi")
	f.bus.Emit(bus.TransportNewMessage, &m)
	waitEvent(t, ch, bus.ConversationUpdated)

	// The peer's conversation id differs from ours; fall back to the message id.
	f.bus.Emit(bus.TransportDeletedMessage, transport.DeletedMessage{ConversationID: "bob-side", MessageID: "m1", To: "alice"})
	waitEvent(t, ch, bus.ConversationUpdated)
	conv, _ := f.engine.Conversation("c1")
	if !conv.Messages[0].Deleted {
		t.Error("remote delete not applied")
	}

	f.bus.Emit(bus.TransportTyping, transport.Typing{SenderID: "bob", RecipientID: "alice", Typing: true})
	evt := waitEvent(t, ch, bus.TypingChanged)
	if tp, ok := evt.Payload.(transport.Typing); !ok || !tp.Typing {
		t.Errorf("typing payload = %+v", evt.Payload)
	}

	own := notify.Notification{ID: "n0", Type: notify.IncomingMessage, Sender: alice, Recipient: bob, Unread: true}
	f.bus.Emit(bus.TransportNewNotification, own)
	theirs := notify.Notification{ID: "n1", Type: notify.IncomingMessage, Sender: bob, Recipient: alice, Unread: true}
	f.bus.Emit(bus.TransportNewNotification, theirs)
	evt = waitEvent(t, ch, bus.NotificationAdded)
	if n := evt.Payload.(notify.Notification); n.ID != "n1" {
		t.Errorf("notification = %q, want n1", n.ID)
	}
	if got := f.notes.Unread(); len(got) != 1 || got[0].ID != "n1" {
		t.Errorf("unread = %+v, want only n1", got)
	}

	f.bus.Emit(bus.TransportRestarted, nil)
	deadline := time.Now().Add(2 * time.Second)
	for f.out.announceCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("presence not re-announced after restart")
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.out.mu.Lock()
	got := f.out.announces[0]
	f.out.mu.Unlock()
	if got.UserID != "alice" || got.PeerHandle != "alice-handle" || got.Availability != presence.Available {
		t.Errorf("announce = %+v", got)
	}
}

func TestLoadAndPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	w := store.NewWriter(db, 16, nil)
	self := Identity{User: alice}
	e := NewEngine(self, w, db, &recordingOutbound{}, presence.NewDirectory(), notify.NewAggregator(), bus.New(), nil)
	e.IncomingMessage(message(t, "m1", "c1", bob, alice, "one"), alice.ID)
	e.IncomingMessage(message(t, "m2", "c1", alice, bob, "two"), alice.ID)
	if _, err := e.SetRead("c1"); err != nil {
		t.Fatal(err)
	}
	w.Close()

	reloaded := NewEngine(self, store.NewWriter(db, 16, nil), db, &recordingOutbound{}, presence.NewDirectory(), notify.NewAggregator(), bus.New(), nil)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	conv, ok := reloaded.Conversation("c1")
	if !ok {
		t.Fatal("conversation not reloaded")
	}
	if len(conv.Messages) != 2 || conv.Messages[0].ID != "m1" || conv.Messages[1].ID != "m2" {
		t.Errorf("messages = %+v", conv.Messages)
	}
	if conv.UnreadCount() != 0 {
		t.Errorf("unread = %d, want 0", conv.UnreadCount())
	}
}

func TestCreateOrSelectDetachesCandidate(t *testing.T) {
	f := newFixture(t)
	c := candidate("c1", alice, bob)
	f.engine.CreateOrSelectConversation(c, bob)

	c.ID = "mutated"
	c.Participants[1] = carol
	c.Messages = append(c.Messages, message(t, "m1", "mutated", carol, alice, "sneaky"))

	got, ok := f.engine.Conversation("c1")
	if !ok {
		t.Fatal("conversation c1 missing after caller mutated its candidate")
	}
	if got.Participants[1].ID != "bob" || len(got.Messages) != 0 {
		t.Errorf("engine state changed through candidate: %+v", got)
	}
}

func TestInboundEmptyMessageDropped(t *testing.T) {
	f := newFixture(t)
	f.engine.Start(context.Background())
	defer f.engine.Stop()

	ch, unsub := f.bus.Subscribe("conversation.", 8)
	defer unsub()

	f.bus.Emit(bus.TransportNewMessage, &store.Message{ID: "m-empty", ConversationID: "c9", Sender: bob, Recipient: alice})
	valid := message(t, "m1", "c1", bob, alice, "hi")
	f.bus.Emit(bus.TransportNewMessage, &valid)

	evt := waitEvent(t, ch, bus.ConversationUpdated)
	if evt.Payload != "c1" {
		t.Fatalf("first update for %v, want c1", evt.Payload)
	}
	if _, ok := f.engine.Conversation("c9"); ok {
		t.Error("empty inbound message created a conversation")
	}
	if ops := f.writer.ops(); len(ops) != 1 {
		t.Errorf("writes = %v, want only the valid message's", ops)
	}
}
