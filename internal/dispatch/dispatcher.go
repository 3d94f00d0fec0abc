// Package dispatch translates local actions into outbound stream events.
// It holds no state: there is no retry queue and no acknowledgement, so a
// send that fails is reported to the caller and otherwise forgotten.
package dispatch

import (
	"context"
	"fmt"

	"github.com/matheus3301/huddle/internal/notify"
	"github.com/matheus3301/huddle/internal/presence"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/matheus3301/huddle/internal/transport"
	"go.uber.org/zap"
)

// Dispatcher wraps a transport.Sender with one method per outbound event.
type Dispatcher struct {
	sender transport.Sender
	logger *zap.Logger
}

// New creates a dispatcher over sender.
func New(sender transport.Sender, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sender: sender, logger: logger}
}

// NewMessage sends m to its recipient.
func (d *Dispatcher) NewMessage(ctx context.Context, m store.Message) error {
	return d.send(ctx, transport.TypeNewMessage, m)
}

// DeleteMessage asks peerID to tombstone its copy of a message.
func (d *Dispatcher) DeleteMessage(ctx context.Context, peerID, conversationID, messageID string) error {
	return d.send(ctx, transport.TypeDeletedMessage, transport.DeletedMessage{
		ConversationID: conversationID,
		MessageID:      messageID,
		To:             peerID,
	})
}

// NewNotification tells the recipient of n that something arrived.
func (d *Dispatcher) NewNotification(ctx context.Context, n notify.Notification) error {
	return d.send(ctx, transport.TypeNewNotification, n)
}

// Typing announces that senderID started or stopped composing to recipientID.
func (d *Dispatcher) Typing(ctx context.Context, senderID, recipientID string, typing bool) error {
	return d.send(ctx, transport.TypeTyping, transport.Typing{
		SenderID:    senderID,
		RecipientID: recipientID,
		Typing:      typing,
	})
}

// Announce publishes the local user's presence entry.
func (d *Dispatcher) Announce(ctx context.Context, self presence.Entry) error {
	return d.send(ctx, transport.TypeAnnounce, self)
}

// CallRequest offers a call to "to"; handle is the caller's media-routing handle.
func (d *Dispatcher) CallRequest(ctx context.Context, from, to, handle string) error {
	return d.send(ctx, transport.TypeCallRequest, transport.CallOffer{From: from, To: to, PeerHandle: handle})
}

func (d *Dispatcher) CallAccepted(ctx context.Context, from, to string) error {
	return d.control(ctx, transport.TypeCallAccepted, from, to)
}

func (d *Dispatcher) CallRejected(ctx context.Context, from, to string) error {
	return d.control(ctx, transport.TypeCallRejected, from, to)
}

func (d *Dispatcher) CallUnavailable(ctx context.Context, from, to string) error {
	return d.control(ctx, transport.TypeCallUnavailable, from, to)
}

func (d *Dispatcher) CallEnded(ctx context.Context, from, to string) error {
	return d.control(ctx, transport.TypeCallEnded, from, to)
}

func (d *Dispatcher) control(ctx context.Context, eventType, from, to string) error {
	return d.send(ctx, eventType, transport.CallControl{From: from, To: to})
}

func (d *Dispatcher) send(ctx context.Context, eventType string, payload any) error {
	env, err := transport.Encode(eventType, payload)
	if err != nil {
		return err
	}
	if err := d.sender.Send(ctx, env); err != nil {
		d.logger.Debug("outbound event not sent", zap.String("type", eventType), zap.Error(err))
		return fmt.Errorf("dispatch %s: %w", eventType, err)
	}
	return nil
}
