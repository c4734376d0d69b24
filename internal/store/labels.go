// ABOUTME: SQLite CRUD for labels and canned responses
// ABOUTME: Uniqueness (label name, canned shortcut) is enforced case-insensitively

package store

import (
	"context"
	"fmt"
	"time"
)

// CreateLabel inserts a new label. Names collide case-insensitively per
// account; a collision returns ErrDuplicateLabel.
func (s *SQLiteStore) CreateLabel(ctx context.Context, l *Label) error {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	query := `INSERT INTO labels (id, account_id, name, color, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, l.ID, l.AccountID, l.Name, l.Color, formatTime(l.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateLabel
		}
		return fmt.Errorf("inserting label: %w", err)
	}
	return nil
}

// ListLabels returns all labels for an account.
func (s *SQLiteStore) ListLabels(ctx context.Context, accountID string) ([]*Label, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, name, color, created_at FROM labels WHERE account_id = ? ORDER BY name COLLATE NOCASE`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying labels: %w", err)
	}
	defer rows.Close()

	var labels []*Label
	for rows.Next() {
		var l Label
		var createdAt string
		if err := rows.Scan(&l.ID, &l.AccountID, &l.Name, &l.Color, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning label: %w", err)
		}
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		labels = append(labels, &l)
	}
	return labels, rows.Err()
}

// DeleteLabel removes a label and detaches it from all conversations.
func (s *SQLiteStore) DeleteLabel(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_labels WHERE label_id = ?`, id); err != nil {
		return fmt.Errorf("detaching label: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM labels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting label: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// AddConversationLabel attaches a label to a conversation. Attaching an
// already-attached label is a no-op.
func (s *SQLiteStore) AddConversationLabel(ctx context.Context, conversationID, labelID string) error {
	query := `INSERT OR IGNORE INTO conversation_labels (conversation_id, label_id) VALUES (?, ?)`
	_, err := s.db.ExecContext(ctx, query, conversationID, labelID)
	if err != nil {
		return fmt.Errorf("attaching label: %w", err)
	}
	return nil
}

// RemoveConversationLabel detaches a label from a conversation.
func (s *SQLiteStore) RemoveConversationLabel(ctx context.Context, conversationID, labelID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_labels WHERE conversation_id = ? AND label_id = ?`,
		conversationID, labelID,
	)
	if err != nil {
		return fmt.Errorf("detaching label: %w", err)
	}
	return nil
}

// ListConversationLabels returns the labels attached to a conversation.
func (s *SQLiteStore) ListConversationLabels(ctx context.Context, conversationID string) ([]*Label, error) {
	query := `
		SELECT l.id, l.account_id, l.name, l.color, l.created_at
		FROM labels l
		JOIN conversation_labels cl ON cl.label_id = l.id
		WHERE cl.conversation_id = ?
		ORDER BY l.name COLLATE NOCASE
	`
	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying conversation labels: %w", err)
	}
	defer rows.Close()

	var labels []*Label
	for rows.Next() {
		var l Label
		var createdAt string
		if err := rows.Scan(&l.ID, &l.AccountID, &l.Name, &l.Color, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning label: %w", err)
		}
		if l.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		labels = append(labels, &l)
	}
	return labels, rows.Err()
}

// CreateCannedResponse inserts a new canned response. Shortcuts collide
// case-insensitively per account; a collision returns ErrDuplicateCanned.
func (s *SQLiteStore) CreateCannedResponse(ctx context.Context, c *CannedResponse) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	query := `INSERT INTO canned_responses (id, account_id, shortcut, content, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, c.ID, c.AccountID, c.Shortcut, c.Content, formatTime(c.CreatedAt))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateCanned
		}
		return fmt.Errorf("inserting canned response: %w", err)
	}
	return nil
}

// ListCannedResponses returns all canned responses for an account.
func (s *SQLiteStore) ListCannedResponses(ctx context.Context, accountID string) ([]*CannedResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, shortcut, content, created_at FROM canned_responses
		 WHERE account_id = ? ORDER BY shortcut COLLATE NOCASE`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying canned responses: %w", err)
	}
	defer rows.Close()

	var canned []*CannedResponse
	for rows.Next() {
		var c CannedResponse
		var createdAt string
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Shortcut, &c.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning canned response: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		canned = append(canned, &c)
	}
	return canned, rows.Err()
}

// DeleteCannedResponse removes a canned response.
func (s *SQLiteStore) DeleteCannedResponse(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM canned_responses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting canned response: %w", err)
	}
	return requireRow(res)
}
