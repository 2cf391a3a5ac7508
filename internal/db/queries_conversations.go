package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// DefaultHistoryLimit is the number of messages loaded as chat context.
const DefaultHistoryLimit = 10

type Conversation struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at"`
}

type Message struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

func validRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// CreateConversation starts a new conversation owned by userID.
func (d *DB) CreateConversation(ctx context.Context, userID string) (*Conversation, error) {
	return createConversation(ctx, d.conn, userID)
}

// GetConversation returns the conversation, or ErrNotFound if it is missing or owned by someone else.
func (d *DB) GetConversation(ctx context.Context, userID string, id int64) (*Conversation, error) {
	var c Conversation
	err := d.conn.QueryRowContext(ctx,
		"SELECT id, user_id, created_at FROM conversations WHERE id = ? AND user_id = ?", id, userID,
	).Scan(&c.ID, &c.UserID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return &c, nil
}

// ListConversations returns the user's conversations, newest first.
func (d *DB) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := d.conn.QueryContext(ctx,
		"SELECT id, user_id, created_at FROM conversations WHERE user_id = ? ORDER BY id DESC", userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()
	out := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentMessages returns up to limit of the newest messages in the conversation,
// oldest first. A non-positive limit means DefaultHistoryLimit.
func (d *DB) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()
	var newestFirst []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	messages := make([]Message, len(newestFirst))
	for i, m := range newestFirst {
		messages[len(newestFirst)-1-i] = m
	}
	return messages, nil
}

// AppendMessage adds one message to the end of a conversation.
func (d *DB) AppendMessage(ctx context.Context, conversationID int64, role, content string) (*Message, error) {
	return appendMessage(ctx, d.conn, conversationID, role, content)
}

// SaveTurn persists a user message and the assistant's reply in one transaction.
// A zero conversationID creates a new conversation for userID; the id used is returned.
func (d *DB) SaveTurn(ctx context.Context, userID string, conversationID int64, userText, replyText string) (int64, error) {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning turn: %w", err)
	}
	defer tx.Rollback()

	if conversationID == 0 {
		c, err := createConversation(ctx, tx, userID)
		if err != nil {
			return 0, err
		}
		conversationID = c.ID
	}
	if _, err := appendMessage(ctx, tx, conversationID, RoleUser, userText); err != nil {
		return 0, err
	}
	if _, err := appendMessage(ctx, tx, conversationID, RoleAssistant, replyText); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing turn: %w", err)
	}
	return conversationID, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func createConversation(ctx context.Context, q queryer, userID string) (*Conversation, error) {
	c := &Conversation{UserID: userID}
	err := q.QueryRowContext(ctx,
		"INSERT INTO conversations (user_id) VALUES (?) RETURNING id, created_at", userID,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return c, nil
}

func appendMessage(ctx context.Context, q queryer, conversationID int64, role, content string) (*Message, error) {
	if !validRole(role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	m := &Message{ConversationID: conversationID, Role: role, Content: content}
	err := q.QueryRowContext(ctx,
		"INSERT INTO messages (conversation_id, role, content) VALUES (?, ?, ?) RETURNING id, created_at",
		conversationID, role, content,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}
	return m, nil
}
