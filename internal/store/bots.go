// ABOUTME: SQLite CRUD for agent bots
// ABOUTME: Automation endpoints that conversations can be assigned to

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const botColumns = `id, account_id, name, outgoing_url, access_token, status, created_at, updated_at`

func scanBot(row interface{ Scan(...any) error }) (*AgentBot, error) {
	var b AgentBot
	var createdAt, updatedAt string
	err := row.Scan(&b.ID, &b.AccountID, &b.Name, &b.OutgoingURL, &b.AccessToken, &b.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning agent bot: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &b, nil
}

// CreateAgentBot inserts a new bot. An empty ID or status gets defaults.
func (s *SQLiteStore) CreateAgentBot(ctx context.Context, bot *AgentBot) error {
	if bot.ID == "" {
		bot.ID = newID()
	}
	if bot.Status == "" {
		bot.Status = BotActive
	}
	now := time.Now()
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now

	query := `
		INSERT INTO agent_bots (id, account_id, name, outgoing_url, access_token, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		bot.ID, bot.AccountID, bot.Name, bot.OutgoingURL, bot.AccessToken, bot.Status,
		formatTime(bot.CreatedAt), formatTime(bot.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting agent bot: %w", err)
	}
	s.logger.Debug("created agent bot", "id", bot.ID, "name", bot.Name)
	return nil
}

// GetAgentBot retrieves a bot by ID.
func (s *SQLiteStore) GetAgentBot(ctx context.Context, id string) (*AgentBot, error) {
	query := `SELECT ` + botColumns + ` FROM agent_bots WHERE id = ?`
	return scanBot(s.db.QueryRowContext(ctx, query, id))
}

// ListAgentBots returns all bots for an account.
func (s *SQLiteStore) ListAgentBots(ctx context.Context, accountID string) ([]*AgentBot, error) {
	query := `SELECT ` + botColumns + ` FROM agent_bots WHERE account_id = ? ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying agent bots: %w", err)
	}
	defer rows.Close()

	var bots []*AgentBot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, b)
	}
	return bots, rows.Err()
}

// UpdateAgentBot updates a bot's mutable fields (name, URL, token, status).
func (s *SQLiteStore) UpdateAgentBot(ctx context.Context, bot *AgentBot) error {
	query := `
		UPDATE agent_bots SET name = ?, outgoing_url = ?, access_token = ?, status = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		bot.Name, bot.OutgoingURL, bot.AccessToken, bot.Status, formatTime(time.Now()), bot.ID,
	)
	if err != nil {
		return fmt.Errorf("updating agent bot: %w", err)
	}
	return requireRow(res)
}

// DeleteAgentBot removes a bot and clears any conversation assignments
// pointing at it, so routing never loads a dangling bot.
func (s *SQLiteStore) DeleteAgentBot(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET assigned_bot_id = '' WHERE assigned_bot_id = ?`, id,
	); err != nil {
		return fmt.Errorf("clearing bot assignments: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM agent_bots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting agent bot: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}
