package transport

import (
	"encoding/json"
	"fmt"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/notify"
	"github.com/matheus3301/huddle/internal/presence"
	"github.com/matheus3301/huddle/internal/store"
)

// Envelope is the wire form of every event on the stream.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Wire event names.
const (
	TypePresenceSnapshot = "presence-snapshot"
	TypeTyping           = "typing"
	TypeNewMessage       = "new-message"
	TypeDeletedMessage   = "deleted-message"
	TypeNewNotification  = "new-notification"
	TypeCallOffer        = "call-offer"
	TypeCallRequest      = "call-request"
	TypeCallAccepted     = "call-accepted"
	TypeCallEnded        = "call-ended"
	TypeCallRejected     = "call-rejected"
	TypeCallUnavailable  = "call-unavailable"
	TypeRestarted        = "transport-restarted"
	TypeAnnounce         = "announce"
)

// Typing reports whether SenderID is composing a message to RecipientID.
type Typing struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Typing      bool   `json:"typing"`
}

// DeletedMessage asks the receiver to tombstone its copy of a message.
type DeletedMessage struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	// To routes the outbound event; receivers ignore it.
	To string `json:"to,omitempty"`
}

// CallOffer is an invitation to a media session. PeerHandle is the caller's
// media-routing handle.
type CallOffer struct {
	From       string `json:"from"`
	To         string `json:"to"`
	PeerHandle string `json:"peerHandle"`
}

// CallControl carries accepted/rejected/unavailable/ended between peers.
type CallControl struct {
	From string `json:"from"`
	To   string `json:"to"`
}

var inboundKinds = map[string]string{
	TypePresenceSnapshot: bus.TransportPresenceSnapshot,
	TypeTyping:           bus.TransportTyping,
	TypeNewMessage:       bus.TransportNewMessage,
	TypeDeletedMessage:   bus.TransportDeletedMessage,
	TypeNewNotification:  bus.TransportNewNotification,
	TypeCallOffer:        bus.TransportCallOffer,
	TypeCallAccepted:     bus.TransportCallAccepted,
	TypeCallEnded:        bus.TransportCallEnded,
	TypeCallRejected:     bus.TransportCallRejected,
	TypeCallUnavailable:  bus.TransportCallUnavailable,
	TypeRestarted:        bus.TransportRestarted,
}

// Decode maps an inbound envelope to its bus kind and typed payload.
func Decode(env Envelope) (kind string, payload any, err error) {
	kind, ok := inboundKinds[env.Type]
	if !ok {
		return "", nil, fmt.Errorf("unknown event type %q", env.Type)
	}

	switch env.Type {
	case TypePresenceSnapshot:
		var entries []presence.Entry
		err = unmarshal(env, &entries)
		payload = entries
	case TypeTyping:
		var p Typing
		err = unmarshal(env, &p)
		payload = p
	case TypeNewMessage:
		var m store.Message
		err = unmarshal(env, &m)
		payload = &m
	case TypeDeletedMessage:
		var p DeletedMessage
		err = unmarshal(env, &p)
		payload = p
	case TypeNewNotification:
		var n notify.Notification
		err = unmarshal(env, &n)
		payload = n
	case TypeCallOffer:
		var p CallOffer
		err = unmarshal(env, &p)
		payload = p
	case TypeCallAccepted, TypeCallEnded, TypeCallRejected, TypeCallUnavailable:
		var p CallControl
		err = unmarshal(env, &p)
		payload = p
	case TypeRestarted:
	}
	if err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return kind, payload, nil
}

// Encode wraps payload in an envelope of the given type.
func Encode(eventType string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: eventType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return Envelope{Type: eventType, Payload: data}, nil
}

func unmarshal(env Envelope, v any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("empty payload")
	}
	return json.Unmarshal(env.Payload, v)
}
