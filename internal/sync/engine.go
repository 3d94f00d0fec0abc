// Package sync reconciles the local conversation cache with the inbound
// event stream and with the local user's own actions.
package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/notify"
	"github.com/matheus3301/huddle/internal/presence"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/matheus3301/huddle/internal/transport"
	"go.uber.org/zap"
)

// Scope selects who loses a deleted message.
type Scope int

const (
	// ScopeLocal tombstones only this device's copy.
	ScopeLocal Scope = iota
	// ScopeEveryone also asks the peer to tombstone theirs, when possible.
	ScopeEveryone
)

// Persister queues durable writes. *store.Writer implements it.
type Persister interface {
	Enqueue(w store.Write)
}

// Loader reads the durable cache at startup. *store.DB implements it.
type Loader interface {
	ListConversations(ownerID string) ([]*store.Conversation, error)
}

// Outbound is the subset of the dispatcher the engine emits through.
type Outbound interface {
	NewMessage(ctx context.Context, m store.Message) error
	NewNotification(ctx context.Context, n notify.Notification) error
	DeleteMessage(ctx context.Context, peerID, conversationID, messageID string) error
	Announce(ctx context.Context, self presence.Entry) error
}

// Identity is the local user as the engine presents it to peers.
type Identity struct {
	User       store.Participant
	PeerHandle string
	Location   presence.Location
}

// Entry is the presence entry announced for the local user.
func (id Identity) Entry() presence.Entry {
	return presence.Entry{
		UserID:       id.User.ID,
		PeerHandle:   id.PeerHandle,
		Availability: presence.Available,
		Location:     id.Location,
	}
}

// Engine owns the conversation state. Inbound events are drained from the
// bus on one goroutine; control calls take the same lock, so every
// transition is applied whole before the next starts.
type Engine struct {
	self      Identity
	writer    Persister
	loader    Loader
	out       Outbound
	directory *presence.Directory
	notes     *notify.Aggregator
	bus       *bus.Bus
	logger    *zap.Logger

	mu    stdsync.RWMutex
	state State

	now    func() time.Time
	newID  func() string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a sync engine for the given local user.
func NewEngine(self Identity, writer Persister, loader Loader, out Outbound, dir *presence.Directory, notes *notify.Aggregator, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		self:      self,
		writer:    writer,
		loader:    loader,
		out:       out,
		directory: dir,
		notes:     notes,
		bus:       b,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Self returns the local user.
func (e *Engine) Self() store.Participant {
	return e.self.User
}

// Load hydrates the view from the durable cache.
func (e *Engine) Load(ctx context.Context) error {
	if e.loader == nil {
		return nil
	}
	convs, err := e.loader.ListConversations(e.self.User.ID)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	e.state.Reset(convs)
	e.mu.Unlock()
	e.logger.Info("conversations loaded", zap.Int("count", len(convs)))
	return nil
}

// Start subscribes to inbound transport events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	ch, unsub := e.bus.Subscribe("transport.", 256)

	go func() {
		defer close(e.done)
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the event loop to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.TransportPresenceSnapshot:
		entries, ok := evt.Payload.([]presence.Entry)
		if !ok {
			return
		}
		e.directory.ReplaceSnapshot(entries)
		e.bus.Emit(bus.PresenceUpdated, e.directory.Len())
	case bus.TransportTyping:
		t, ok := evt.Payload.(transport.Typing)
		if !ok || t.RecipientID != e.self.User.ID {
			return
		}
		e.bus.Emit(bus.TypingChanged, t)
	case bus.TransportNewMessage:
		msg, ok := evt.Payload.(*store.Message)
		if !ok || msg == nil {
			return
		}
		if err := msg.Validate(); err != nil {
			e.logger.Warn("inbound message dropped", zap.String("message_id", msg.ID), zap.String("sender", msg.Sender.ID), zap.Error(err))
			return
		}
		e.IncomingMessage(*msg, e.self.User.ID)
	case bus.TransportDeletedMessage:
		d, ok := evt.Payload.(transport.DeletedMessage)
		if !ok {
			return
		}
		if err := e.tombstone(d.ConversationID, d.MessageID); err != nil {
			e.logger.Warn("remote delete ignored", zap.String("message_id", d.MessageID), zap.Error(err))
		}
	case bus.TransportNewNotification:
		n, ok := evt.Payload.(notify.Notification)
		if !ok || n.Sender.ID == e.self.User.ID {
			return
		}
		e.notes.Add(n)
		e.bus.Emit(bus.NotificationAdded, n)
	case bus.TransportRestarted:
		if err := e.Announce(ctx); err != nil {
			e.logger.Warn("presence announce failed", zap.Error(err))
		}
	}
}

// Announce publishes the local user's presence entry.
func (e *Engine) Announce(ctx context.Context) error {
	return e.out.Announce(ctx, e.self.Entry())
}

// CreateOrSelectConversation opens the conversation between the pair named
// by candidate. When one already exists it is kept, id and history included,
// and only other's snapshot is refreshed.
func (e *Engine) CreateOrSelectConversation(candidate *store.Conversation, other store.Participant) *store.Conversation {
	e.mu.Lock()
	conv, created := e.state.CreateOrSelect(candidate, other)
	e.writer.Enqueue(e.ack(store.UpsertWrite(conv)))
	out := conv.Clone()
	e.mu.Unlock()

	if created {
		e.logger.Info("conversation created", zap.String("conversation_id", out.ID), zap.String("peer", other.ID))
	}
	e.bus.Emit(bus.ConversationSelected, out.ID)
	return out
}

// StartConversation opens a conversation with peer, creating it if needed.
func (e *Engine) StartConversation(peer store.Participant) *store.Conversation {
	candidate := &store.Conversation{
		ID:           e.newID(),
		OwnerID:      e.self.User.ID,
		Participants: [2]store.Participant{e.self.User, peer},
		Messages:     []store.Message{},
		CreatedAt:    e.now(),
	}
	return e.CreateOrSelectConversation(candidate, peer)
}

// IncomingMessage appends msg to the conversation of its sender and
// recipient, creating that conversation if this is the first message.
func (e *Engine) IncomingMessage(msg store.Message, localUserID string) *store.Conversation {
	e.mu.Lock()
	conv, created := e.state.Append(msg, localUserID, e.newID)
	if created {
		e.writer.Enqueue(e.ack(store.UpsertWrite(conv)))
	} else {
		e.writer.Enqueue(e.ack(store.AppendWrite(conv.ID, conv.Messages[len(conv.Messages)-1])))
	}
	out := conv.Clone()
	selected := e.state.selectedID == conv.ID
	e.mu.Unlock()

	e.bus.Emit(bus.ConversationUpdated, out.ID)
	if selected {
		e.bus.Emit(bus.ConversationSelected, out.ID)
	}
	return out
}

// SendMessage appends a message from the local user to "to" and emits it
// with a matching notification. Delivery is best effort: the message stays
// in the local cache even when the emit fails.
func (e *Engine) SendMessage(ctx context.Context, to store.Participant, content string, attachment []byte) (store.Message, error) {
	e.mu.RLock()
	convID := ""
	if c := e.state.byPair(e.self.User.ID, to.ID); c != nil {
		convID = c.ID
	}
	e.mu.RUnlock()
	if convID == "" {
		convID = e.newID()
	}

	msg, err := store.NewMessage(e.newID(), convID, e.self.User, to, content, attachment, e.now())
	if err != nil {
		return store.Message{}, err
	}
	conv := e.IncomingMessage(msg, e.self.User.ID)
	msg = conv.Messages[len(conv.Messages)-1]

	var errs []error
	if err := e.out.NewMessage(ctx, msg); err != nil {
		errs = append(errs, err)
	}
	n := notify.Notification{
		ID:        e.newID(),
		Type:      notify.IncomingMessage,
		Sender:    e.self.User,
		Recipient: to,
		Unread:    true,
		CreatedAt: msg.CreatedAt,
	}
	if err := e.out.NewNotification(ctx, n); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		e.logger.Warn("message kept locally, emit failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
	return msg, nil
}

// DeleteMessage tombstones a message. With ScopeEveryone the peer is asked
// to do the same, but only when the local user sent the message and the
// peer is reachable right now; otherwise the peer keeps its copy.
func (e *Engine) DeleteMessage(ctx context.Context, conversationID, messageID string, scope Scope) error {
	e.mu.Lock()
	conv, msg, changed, err := e.state.Tombstone(conversationID, messageID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if changed {
		e.writer.Enqueue(e.ack(store.MessagesWrite(conv.ID, conv.Messages)))
	}
	peer := conv.Other(e.self.User.ID)
	convID := conv.ID
	e.mu.Unlock()

	if changed {
		e.bus.Emit(bus.ConversationUpdated, convID)
	}
	if scope != ScopeEveryone || msg.Sender.ID != e.self.User.ID {
		return nil
	}
	if !e.directory.IsReachable(peer.ID) {
		e.logger.Info("peer unreachable, delete stays local", zap.String("peer", peer.ID), zap.String("message_id", messageID))
		return nil
	}
	if err := e.out.DeleteMessage(ctx, peer.ID, convID, messageID); err != nil {
		e.logger.Warn("remote delete emit failed", zap.String("message_id", messageID), zap.Error(err))
	}
	return nil
}

func (e *Engine) tombstone(conversationID, messageID string) error {
	e.mu.Lock()
	conv, _, changed, err := e.state.Tombstone(conversationID, messageID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if changed {
		e.writer.Enqueue(e.ack(store.MessagesWrite(conv.ID, conv.Messages)))
	}
	convID := conv.ID
	e.mu.Unlock()
	if changed {
		e.bus.Emit(bus.ConversationUpdated, convID)
	}
	return nil
}

// SetRead clears every unread flag in a conversation with one bulk write.
func (e *Engine) SetRead(conversationID string) (int, error) {
	e.mu.Lock()
	conv, flipped, err := e.state.MarkRead(conversationID)
	if err != nil {
		e.mu.Unlock()
		return 0, err
	}
	if flipped > 0 {
		e.writer.Enqueue(e.ack(store.MessagesWrite(conv.ID, conv.Messages)))
	}
	e.mu.Unlock()
	if flipped > 0 {
		e.bus.Emit(bus.ConversationUpdated, conversationID)
	}
	return flipped, nil
}

// RemoveConversation drops a conversation from this device only.
func (e *Engine) RemoveConversation(conversationID string) error {
	e.mu.Lock()
	if !e.state.Remove(conversationID) {
		e.mu.Unlock()
		return fmt.Errorf("conversation %q: %w", conversationID, store.ErrNotFound)
	}
	e.writer.Enqueue(e.ack(store.DeleteWrite(conversationID)))
	e.mu.Unlock()
	e.bus.Emit(bus.ConversationRemoved, conversationID)
	return nil
}

// Select opens an existing conversation.
func (e *Engine) Select(conversationID string) error {
	e.mu.Lock()
	err := e.state.Select(conversationID)
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.bus.Emit(bus.ConversationSelected, conversationID)
	return nil
}

// Selected returns a copy of the open conversation, or nil.
func (e *Engine) Selected() *store.Conversation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Selected().Clone()
}

// Conversation returns a copy of one conversation.
func (e *Engine) Conversation(conversationID string) (*store.Conversation, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c := e.state.byID(conversationID)
	return c.Clone(), c != nil
}

// Conversations returns copies of every conversation in creation order.
func (e *Engine) Conversations() []*store.Conversation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*store.Conversation, 0, e.state.Len())
	for _, c := range e.state.conversations {
		out = append(out, c.Clone())
	}
	return out
}

// ack attaches the engine's failure handling to w. A failed write leaves
// the in-memory view as it is; the durable copy simply lags behind.
func (e *Engine) ack(w store.Write) store.Write {
	w.Ack = func(res store.WriteResult) {
		if res.Err == nil {
			return
		}
		e.logger.Error("store write failed",
			zap.String("op", res.Op),
			zap.String("conversation_id", res.ConversationID),
			zap.Error(res.Err),
		)
		e.bus.Emit(bus.StoreWriteFailed, res)
	}
	return w
}
