package sync

import (
	"fmt"

	"github.com/matheus3301/huddle/internal/store"
)

// State is the in-memory conversation view of one local user. Its methods
// are pure transitions: they mutate the view and report what changed, and
// leave persistence and fan-out to the Engine.
type State struct {
	conversations []*store.Conversation
	selectedID    string
}

// Reset replaces the whole view, e.g. after hydrating from the store.
func (s *State) Reset(convs []*store.Conversation) {
	s.conversations = convs
	if s.byID(s.selectedID) == nil {
		s.selectedID = ""
	}
}

func (s *State) byID(id string) *store.Conversation {
	if id == "" {
		return nil
	}
	for _, c := range s.conversations {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// byPair finds the conversation between a and b regardless of direction.
func (s *State) byPair(a, b string) *store.Conversation {
	for _, c := range s.conversations {
		if c.Matches(a, b) {
			return c
		}
	}
	return nil
}

// byMessage finds the conversation holding messageID.
func (s *State) byMessage(messageID string) *store.Conversation {
	for _, c := range s.conversations {
		if c.MessageIndex(messageID) >= 0 {
			return c
		}
	}
	return nil
}

// CreateOrSelect selects the conversation for candidate's participant pair.
// An existing conversation keeps its id and history; only the stored
// snapshot of other is refreshed. Otherwise candidate is adopted as is.
func (s *State) CreateOrSelect(candidate *store.Conversation, other store.Participant) (conv *store.Conversation, created bool) {
	a, b := candidate.Participants[0].ID, candidate.Participants[1].ID
	if existing := s.byPair(a, b); existing != nil {
		for i := range existing.Participants {
			if existing.Participants[i].ID == other.ID {
				existing.Participants[i] = other
			}
		}
		s.selectedID = existing.ID
		return existing, false
	}
	conv = candidate.Clone()
	s.conversations = append(s.conversations, conv)
	s.selectedID = conv.ID
	return conv, true
}

// Append adds msg to the conversation between its sender and recipient,
// synthesizing that conversation from the message's snapshots if needed.
// Messages are not deduplicated by id.
func (s *State) Append(msg store.Message, localUserID string, newID func() string) (conv *store.Conversation, created bool) {
	if existing := s.byPair(msg.Sender.ID, msg.Recipient.ID); existing != nil {
		msg.ConversationID = existing.ID
		existing.Messages = append(existing.Messages, msg)
		return existing, false
	}
	id := msg.ConversationID
	if id == "" || s.byID(id) != nil {
		id = newID()
	}
	msg.ConversationID = id
	conv = &store.Conversation{
		ID:           id,
		OwnerID:      localUserID,
		Participants: [2]store.Participant{msg.Sender, msg.Recipient},
		Messages:     []store.Message{msg},
		CreatedAt:    msg.CreatedAt,
	}
	s.conversations = append(s.conversations, conv)
	return conv, true
}

// Tombstone marks a message deleted. changed is false when it already was.
func (s *State) Tombstone(conversationID, messageID string) (conv *store.Conversation, msg store.Message, changed bool, err error) {
	conv = s.byID(conversationID)
	if conv == nil || conv.MessageIndex(messageID) < 0 {
		// The peer's conversation id need not match ours.
		conv = s.byMessage(messageID)
	}
	if conv == nil {
		return nil, store.Message{}, false, fmt.Errorf("message %q: %w", messageID, store.ErrNotFound)
	}
	i := conv.MessageIndex(messageID)
	changed = conv.Messages[i].Tombstone()
	return conv, conv.Messages[i], changed, nil
}

// MarkRead clears the unread flag on every message, whoever sent it.
func (s *State) MarkRead(conversationID string) (conv *store.Conversation, flipped int, err error) {
	conv = s.byID(conversationID)
	if conv == nil {
		return nil, 0, fmt.Errorf("conversation %q: %w", conversationID, store.ErrNotFound)
	}
	for i := range conv.Messages {
		if conv.Messages[i].Unread {
			conv.Messages[i].Unread = false
			flipped++
		}
	}
	return conv, flipped, nil
}

// Remove drops a conversation from the view.
func (s *State) Remove(conversationID string) bool {
	for i, c := range s.conversations {
		if c.ID == conversationID {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			if s.selectedID == conversationID {
				s.selectedID = ""
			}
			return true
		}
	}
	return false
}

// Select opens a conversation by id.
func (s *State) Select(conversationID string) error {
	if s.byID(conversationID) == nil {
		return fmt.Errorf("conversation %q: %w", conversationID, store.ErrNotFound)
	}
	s.selectedID = conversationID
	return nil
}

// Selected returns the open conversation, if any.
func (s *State) Selected() *store.Conversation {
	return s.byID(s.selectedID)
}

// Len is the number of conversations in the view.
func (s *State) Len() int {
	return len(s.conversations)
}
