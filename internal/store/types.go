package store

import (
	"errors"
	"time"
)

var (
	// ErrEmptyMessage is returned when a message is created with neither text nor attachment.
	ErrEmptyMessage = errors.New("message needs content or an attachment")
	// ErrNotFound is returned when a conversation or message does not exist.
	ErrNotFound = errors.New("not found")
)

// Participant is a snapshot of a user's display fields, captured when a
// conversation or message is created. It is not joined live against presence.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Message is one entry of a conversation. Messages are never removed, only
// tombstoned.
type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	Sender         Participant `json:"sender"`
	Recipient      Participant `json:"recipient"`
	Content        string      `json:"content"`
	// Attachment travels base64 encoded in JSON.
	Attachment []byte    `json:"attachment,omitempty"`
	Unread     bool      `json:"unread"`
	Deleted    bool      `json:"deleted"`
	CreatedAt  time.Time `json:"createdAt"`
}

// NewMessage builds an unread message, rejecting one with no content at all.
func NewMessage(id, conversationID string, sender, recipient Participant, content string, attachment []byte, at time.Time) (Message, error) {
	if content == "" && len(attachment) == 0 {
		return Message{}, ErrEmptyMessage
	}
	return Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         sender,
		Recipient:      recipient,
		Content:        content,
		Attachment:     attachment,
		Unread:         true,
		CreatedAt:      at,
	}, nil
}

// Validate reports ErrEmptyMessage for a live message with neither content
// nor attachment. Tombstoned messages are always valid.
func (m Message) Validate() error {
	if !m.Deleted && m.Content == "" && len(m.Attachment) == 0 {
		return ErrEmptyMessage
	}
	return nil
}

// Tombstone clears the payload and marks the message deleted. It reports
// whether anything changed; tombstoning twice is a no-op.
func (m *Message) Tombstone() bool {
	if m.Deleted {
		return false
	}
	m.Content = ""
	m.Attachment = nil
	m.Deleted = true
	return true
}

// Conversation is the per-device copy of a two-party thread.
type Conversation struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"ownerId"`
	Participants [2]Participant `json:"participants"`
	Messages     []Message      `json:"messages"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Matches reports whether the conversation is between a and b, in either order.
func (c *Conversation) Matches(a, b string) bool {
	p0, p1 := c.Participants[0].ID, c.Participants[1].ID
	return (p0 == a && p1 == b) || (p0 == b && p1 == a)
}

// Other returns the participant that is not localID.
func (c *Conversation) Other(localID string) Participant {
	if c.Participants[0].ID == localID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// MessageIndex returns the position of messageID, or -1.
func (c *Conversation) MessageIndex(messageID string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// UnreadCount counts messages still flagged unread.
func (c *Conversation) UnreadCount() int {
	n := 0
	for _, m := range c.Messages {
		if m.Unread {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers can hand snapshots across goroutines.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.Attachment != nil {
			m.Attachment = append([]byte(nil), m.Attachment...)
		}
		out.Messages[i] = m
	}
	return &out
}
