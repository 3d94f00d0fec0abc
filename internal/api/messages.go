package api

import (
	"encoding/json"
	"time"

	"github.com/matheus3301/huddle/internal/call"
	"github.com/matheus3301/huddle/internal/notify"
	"github.com/matheus3301/huddle/internal/presence"
	"github.com/matheus3301/huddle/internal/store"
)

type GetStatusRequest struct{}

type GetStatusResponse struct {
	Profile   string            `json:"profile"`
	Self      store.Participant `json:"self"`
	Transport string            `json:"transport"`
	UptimeMs  int64             `json:"uptimeMs"`

	// DroppedEvents counts bus deliveries lost to slow consumers.
	DroppedEvents uint64 `json:"droppedEvents"`
}

type ListConversationsRequest struct{}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	ID           string            `json:"id"`
	Peer         store.Participant `json:"peer"`
	MessageCount int               `json:"messageCount"`
	Unread       int               `json:"unread"`
	LastMessage  *store.Message    `json:"lastMessage,omitempty"`
	Selected     bool              `json:"selected"`
}

type ListConversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
}

type GetConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

type ConversationResponse struct {
	Conversation *store.Conversation `json:"conversation"`
}

type StartConversationRequest struct {
	Peer store.Participant `json:"peer"`
}

type SendMessageRequest struct {
	To         store.Participant `json:"to"`
	Content    string            `json:"content"`
	Attachment []byte            `json:"attachment,omitempty"`
}

type SendMessageResponse struct {
	Message store.Message `json:"message"`
}

type DeleteMessageRequest struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Everyone       bool   `json:"everyone"`
}

type DeleteMessageResponse struct{}

type MarkReadRequest struct {
	ConversationID string `json:"conversationId"`
}

type MarkReadResponse struct {
	Marked int `json:"marked"`
}

type RemoveConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

type RemoveConversationResponse struct{}

type ListPresenceRequest struct{}

type ListPresenceResponse struct {
	Entries []presence.Entry `json:"entries"`
}

type ListNotificationsRequest struct {
	UnreadOnly bool `json:"unreadOnly"`
}

type ListNotificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

type MarkNotificationsReadRequest struct{}

type MarkNotificationsReadResponse struct {
	Cleared int `json:"cleared"`
}

type CallStatusRequest struct{}

type DialRequest struct {
	PeerID string `json:"peerId"`
}

// CallActionRequest is shared by Accept, Reject, Hangup and the recording calls.
type CallActionRequest struct{}

type ResolveRecordingRequest struct {
	Save bool `json:"save"`
}

type CallResponse struct {
	Call call.Snapshot `json:"call"`
	// Path is set when a recording was written.
	Path string `json:"path,omitempty"`
}

type TypingRequest struct {
	PeerID string `json:"peerId"`
	Stop   bool   `json:"stop"`
}

type TypingResponse struct{}

type WatchEventsRequest struct {
	// Prefix filters event kinds; empty means every local event.
	Prefix string `json:"prefix"`
}

// Event is one bus event as seen by API watchers.
type Event struct {
	EventID    string          `json:"eventId"`
	Kind       string          `json:"kind"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
