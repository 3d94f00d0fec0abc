package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const conversationColumns = `id, owner_id, participants, messages, created_at`

// UpsertConversation inserts a conversation or overwrites the stored copy
// with the same id, messages included.
func (db *DB) UpsertConversation(c *Conversation) error {
	participants, err := json.Marshal(c.Participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	messages, err := encodeMessages(c.Messages)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO conversations (id, owner_id, participant_a_id, participant_b_id, participants, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			participant_a_id = excluded.participant_a_id,
			participant_b_id = excluded.participant_b_id,
			participants = excluded.participants,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		c.ID, c.OwnerID, c.Participants[0].ID, c.Participants[1].ID,
		string(participants), messages, c.CreatedAt.UnixMilli(), now)
	return err
}

// AppendMessage adds m to the tail of a stored conversation's message list.
func (db *DB) AppendMessage(conversationID string, m Message) error {
	return db.mutateMessages(conversationID, func(msgs []Message) []Message {
		return append(msgs, m)
	})
}

// UpdateMessages replaces the stored message list of a conversation.
func (db *DB) UpdateMessages(conversationID string, msgs []Message) error {
	return db.mutateMessages(conversationID, func([]Message) []Message {
		return msgs
	})
}

func (db *DB) mutateMessages(conversationID string, fn func([]Message) []Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw string
	err = tx.QueryRow(`SELECT messages FROM conversations WHERE id = ?`, conversationID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("conversation %q: %w", conversationID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read messages: %w", err)
	}

	var msgs []Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return fmt.Errorf("decode messages: %w", err)
	}
	encoded, err := encodeMessages(fn(msgs))
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE conversations SET messages = ?, updated_at = ? WHERE id = ?`,
		encoded, time.Now().UnixMilli(), conversationID); err != nil {
		return fmt.Errorf("write messages: %w", err)
	}
	return tx.Commit()
}

// DeleteConversation removes the persisted record. Deleting a missing id is not an error.
func (db *DB) DeleteConversation(id string) error {
	_, err := db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	return err
}

// GetConversation returns a conversation by id, or nil when absent.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	row := db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// FindConversation looks up the owner's conversation with the unordered pair (a, b).
func (db *DB) FindConversation(ownerID, a, b string) (*Conversation, error) {
	row := db.QueryRow(`
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE owner_id = ?
			AND ((participant_a_id = ? AND participant_b_id = ?) OR (participant_a_id = ? AND participant_b_id = ?))
		ORDER BY created_at ASC
		LIMIT 1`, ownerID, a, b, b, a)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// ListConversations returns every conversation held for ownerID, oldest first.
func (db *DB) ListConversations(ownerID string) ([]*Conversation, error) {
	return db.queryConversations(`
		SELECT `+conversationColumns+`
		FROM conversations WHERE owner_id = ?
		ORDER BY created_at ASC, id ASC`, ownerID)
}

// ConversationsWithParticipant returns conversations in which userID takes part.
func (db *DB) ConversationsWithParticipant(userID string) ([]*Conversation, error) {
	return db.queryConversations(`
		SELECT `+conversationColumns+`
		FROM conversations WHERE participant_a_id = ? OR participant_b_id = ?
		ORDER BY created_at ASC, id ASC`, userID, userID)
}

func (db *DB) queryConversations(query string, args ...any) ([]*Conversation, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		c            Conversation
		participants string
		messages     string
		createdAt    int64
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &participants, &messages, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
		return nil, fmt.Errorf("decode participants of %q: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(messages), &c.Messages); err != nil {
		return nil, fmt.Errorf("decode messages of %q: %w", c.ID, err)
	}
	c.CreatedAt = time.UnixMilli(createdAt)
	return &c, nil
}

func encodeMessages(msgs []Message) (string, error) {
	if msgs == nil {
		msgs = []Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return "", fmt.Errorf("encode messages: %w", err)
	}
	return string(data), nil
}
