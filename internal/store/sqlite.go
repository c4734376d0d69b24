// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Conversation and message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows one writer at a time. A single pooled connection keeps
	// concurrent callers queued in database/sql instead of surfacing
	// SQLITE_BUSY, and the busy timeout covers external writers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id                   TEXT PRIMARY KEY,
			account_id           TEXT NOT NULL,
			inbox_id             TEXT NOT NULL,
			contact_id           TEXT NOT NULL,
			contact_name         TEXT NOT NULL DEFAULT '',
			status               TEXT NOT NULL DEFAULT 'open',
			assigned_bot_id      TEXT NOT NULL DEFAULT '',
			unread_count         INTEGER NOT NULL DEFAULT 0,
			last_message_preview TEXT NOT NULL DEFAULT '',
			last_activity_at     TEXT NOT NULL,
			created_at           TEXT NOT NULL,
			updated_at           TEXT NOT NULL,

			CHECK (status IN ('open', 'pending', 'resolved'))
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_inbox_contact
			ON conversations(inbox_id, contact_id);
		CREATE INDEX IF NOT EXISTS idx_conversations_activity
			ON conversations(inbox_id, last_activity_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			external_id     TEXT NOT NULL DEFAULT '',
			direction       TEXT NOT NULL,
			content_type    TEXT NOT NULL DEFAULT 'text',
			content         TEXT NOT NULL DEFAULT '',
			media_url       TEXT NOT NULL DEFAULT '',
			reply_to_id     TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL,
			private         INTEGER NOT NULL DEFAULT 0,
			sender_kind     TEXT NOT NULL,
			bot_id          TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			deleted_at      TEXT,

			CHECK (direction IN ('incoming', 'outgoing')),
			CHECK (content_type IN ('text', 'image', 'video', 'audio', 'document', 'location', 'contact', 'sticker')),
			CHECK (status IN ('pending', 'sent', 'delivered', 'read', 'failed')),
			CHECK (sender_kind IN ('human', 'contact', 'bot'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages(conversation_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_external
			ON messages(external_id);
		CREATE INDEX IF NOT EXISTS idx_messages_unread
			ON messages(conversation_id, direction, status);

		CREATE TABLE IF NOT EXISTS reactions (
			message_id TEXT NOT NULL REFERENCES messages(id),
			contact_id TEXT NOT NULL,
			emoji      TEXT NOT NULL,
			created_at TEXT NOT NULL,

			PRIMARY KEY (message_id, contact_id)
		);

		CREATE TABLE IF NOT EXISTS agent_bots (
			id           TEXT PRIMARY KEY,
			account_id   TEXT NOT NULL,
			name         TEXT NOT NULL,
			outgoing_url TEXT NOT NULL,
			access_token TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT 'active',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,

			CHECK (status IN ('active', 'paused'))
		);

		CREATE INDEX IF NOT EXISTS idx_agent_bots_account ON agent_bots(account_id);

		CREATE TABLE IF NOT EXISTS webhooks (
			id            TEXT PRIMARY KEY,
			account_id    TEXT NOT NULL,
			url           TEXT NOT NULL,
			events        TEXT NOT NULL DEFAULT '',
			active        INTEGER NOT NULL DEFAULT 1,
			success_count INTEGER NOT NULL DEFAULT 0,
			failure_count INTEGER NOT NULL DEFAULT 0,
			last_error    TEXT NOT NULL DEFAULT '',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_webhooks_account ON webhooks(account_id, active);

		CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id            TEXT PRIMARY KEY,
			webhook_id    TEXT NOT NULL REFERENCES webhooks(id),
			event_type    TEXT NOT NULL,
			payload       TEXT NOT NULL,
			status        TEXT NOT NULL DEFAULT 'pending',
			response_code INTEGER NOT NULL DEFAULT 0,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL,

			CHECK (status IN ('pending', 'success', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_deliveries_webhook
			ON webhook_deliveries(webhook_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS labels (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			name       TEXT NOT NULL,
			color      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_labels_account_name
			ON labels(account_id, name COLLATE NOCASE);

		CREATE TABLE IF NOT EXISTS conversation_labels (
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			label_id        TEXT NOT NULL REFERENCES labels(id),

			PRIMARY KEY (conversation_id, label_id)
		);

		CREATE TABLE IF NOT EXISTS canned_responses (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			shortcut   TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_canned_account_shortcut
			ON canned_responses(account_id, shortcut COLLATE NOCASE);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// FindOrCreateConversation returns the conversation for the (inbox, contact)
// pair, creating it if missing. The unique index makes the insert race-safe:
// a concurrent creator wins and we re-read its row.
func (s *SQLiteStore) FindOrCreateConversation(ctx context.Context, accountID, inboxID, contactID, contactName string) (*Conversation, bool, error) {
	conv, err := s.getConversationByPair(ctx, inboxID, contactID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	now := time.Now()
	conv = &Conversation{
		ID:             newID(),
		AccountID:      accountID,
		InboxID:        inboxID,
		ContactID:      contactID,
		ContactName:    contactName,
		Status:         ConversationOpen,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	query := `
		INSERT INTO conversations (id, account_id, inbox_id, contact_id, contact_name, status, last_activity_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		conv.ID, conv.AccountID, conv.InboxID, conv.ContactID, conv.ContactName,
		conv.Status, formatTime(conv.LastActivityAt), formatTime(conv.CreatedAt), formatTime(conv.UpdatedAt),
	)
	if err != nil {
		if isConstraintViolation(err) {
			// Lost the race: another writer created the pair between our
			// lookup and insert. Their row is the conversation.
			existing, lookupErr := s.getConversationByPair(ctx, inboxID, contactID)
			if lookupErr == nil {
				s.logger.Debug("found existing conversation after race", "conversation_id", existing.ID)
				return existing, false, nil
			}
			return nil, false, fmt.Errorf("%w: retry lookup failed: %v", ErrDuplicateConversation, lookupErr)
		}
		return nil, false, fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "inbox", inboxID, "contact", contactID)
	return conv, true, nil
}

const conversationColumns = `id, account_id, inbox_id, contact_id, contact_name, status, assigned_bot_id,
	unread_count, last_message_preview, last_activity_at, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var c Conversation
	var lastActivity, createdAt, updatedAt string
	err := row.Scan(
		&c.ID, &c.AccountID, &c.InboxID, &c.ContactID, &c.ContactName, &c.Status, &c.AssignedBotID,
		&c.UnreadCount, &c.LastMessagePreview, &lastActivity, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	if c.LastActivityAt, err = parseTime(lastActivity); err != nil {
		return nil, fmt.Errorf("parsing last_activity_at: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &c, nil
}

func (s *SQLiteStore) getConversationByPair(ctx context.Context, inboxID, contactID string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE inbox_id = ? AND contact_id = ?`
	return scanConversation(s.db.QueryRowContext(ctx, query, inboxID, contactID))
}

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	return scanConversation(s.db.QueryRowContext(ctx, query, id))
}

// ListConversations returns conversations for an inbox ordered by most
// recent activity first.
func (s *SQLiteStore) ListConversations(ctx context.Context, inboxID string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE inbox_id = ?
		ORDER BY last_activity_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, inboxID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// TouchConversation updates the preview and last-activity timestamp after a
// message event.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id, preview string, at time.Time) error {
	query := `UPDATE conversations SET last_message_preview = ?, last_activity_at = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, preview, formatTime(at), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return requireRow(res)
}

// SetConversationStatus changes the lifecycle status (open/pending/resolved).
// Conversations are never hard-deleted while referenced by messages.
func (s *SQLiteStore) SetConversationStatus(ctx context.Context, id, lifecycle string) error {
	query := `UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, lifecycle, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating conversation status: %w", err)
	}
	return requireRow(res)
}

// SetAssignedBot assigns a bot to the conversation. An empty botID clears
// the assignment (bot handoff).
func (s *SQLiteStore) SetAssignedBot(ctx context.Context, id, botID string) error {
	query := `UPDATE conversations SET assigned_bot_id = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, botID, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating assigned bot: %w", err)
	}
	return requireRow(res)
}

// RecomputeUnread re-derives the unread counter from the messages table and
// writes it back. This is the single source of truth for unread counts; the
// counter is never incremented in place.
func (s *SQLiteStore) RecomputeUnread(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE conversations
		SET unread_count = (
			SELECT COUNT(*) FROM messages
			WHERE conversation_id = conversations.id
			  AND direction = 'incoming'
			  AND status != 'read'
			  AND deleted_at IS NULL
		), updated_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query, formatTime(time.Now()), id)
	if err != nil {
		return 0, fmt.Errorf("recomputing unread: %w", err)
	}
	if err := requireRow(res); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT unread_count FROM conversations WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("reading unread count: %w", err)
	}
	return count, nil
}

// requireRow converts a zero-row UPDATE into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendMessage inserts a message after validating its reply target. The
// target must be a live (not soft-deleted) message in the same conversation,
// otherwise ErrInvalidReference is returned and nothing is written. An empty
// ID gets a generated one.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if msg.ReplyToID != "" {
		var targetConv string
		err := tx.QueryRowContext(ctx,
			`SELECT conversation_id FROM messages WHERE id = ? AND deleted_at IS NULL`,
			msg.ReplyToID,
		).Scan(&targetConv)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: reply target %s not found", ErrInvalidReference, msg.ReplyToID)
		}
		if err != nil {
			return fmt.Errorf("validating reply target: %w", err)
		}
		if targetConv != msg.ConversationID {
			return fmt.Errorf("%w: reply target %s belongs to another conversation", ErrInvalidReference, msg.ReplyToID)
		}
	}

	query := `
		INSERT INTO messages (id, conversation_id, external_id, direction, content_type, content,
			media_url, reply_to_id, status, private, sender_kind, bot_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, msg.ExternalID, msg.Direction, msg.ContentType, msg.Content,
		msg.MediaURL, msg.ReplyToID, msg.Status, boolToInt(msg.Private), msg.SenderKind, msg.BotID,
		formatTime(msg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing message: %w", err)
	}

	s.logger.Debug("appended message",
		"id", msg.ID,
		"conversation_id", msg.ConversationID,
		"direction", msg.Direction,
		"status", msg.Status)
	return nil
}

const messageColumns = `id, conversation_id, external_id, direction, content_type, content,
	media_url, reply_to_id, status, private, sender_kind, bot_id, created_at, deleted_at`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	var private int
	var createdAt string
	var deletedAt sql.NullString
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.ExternalID, &m.Direction, &m.ContentType, &m.Content,
		&m.MediaURL, &m.ReplyToID, &m.Status, &private, &m.SenderKind, &m.BotID, &createdAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning message: %w", err)
	}
	m.Private = private != 0
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if deletedAt.Valid {
		t, err := parseTime(deletedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing deleted_at: %w", err)
		}
		m.DeletedAt = &t
	}
	return &m, nil
}

// GetMessage retrieves a message by ID, including soft-deleted rows.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	return scanMessage(s.db.QueryRowContext(ctx, query, id))
}

// GetMessageByExternalID retrieves a message by its gateway-assigned ID.
// Used to resolve delivery receipts.
func (s *SQLiteStore) GetMessageByExternalID(ctx context.Context, externalID string) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE external_id = ? AND external_id != ''`
	return scanMessage(s.db.QueryRowContext(ctx, query, externalID))
}

// ListMessages returns live messages for a conversation in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = ? AND deleted_at IS NULL
		ORDER BY created_at ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountMessages returns the number of live messages in a conversation.
func (s *SQLiteStore) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND deleted_at IS NULL`,
		conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// UpdateMessageStatus applies a status change conditionally on the current
// status. Returns ErrStaleStatus if a concurrent writer got there first, so
// the caller's validated transition never overwrites a newer state.
func (s *SQLiteStore) UpdateMessageStatus(ctx context.Context, id, from, to string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ? WHERE id = ? AND status = ?`,
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("updating message status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, id).Scan(&exists); err == sql.ErrNoRows {
			return ErrNotFound
		}
		return ErrStaleStatus
	}
	return nil
}

// SetMessageExternalID records the gateway-assigned ID after an outbound send
// is acknowledged.
func (s *SQLiteStore) SetMessageExternalID(ctx context.Context, id, externalID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET external_id = ? WHERE id = ?`, externalID, id)
	if err != nil {
		return fmt.Errorf("setting message external id: %w", err)
	}
	return requireRow(res)
}

// SoftDeleteMessage marks a message deleted without removing the row, so
// replies that referenced it fail validation as not-found rather than
// dangling. Hard deletion is never performed.
func (s *SQLiteStore) SoftDeleteMessage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("soft-deleting message: %w", err)
	}
	return requireRow(res)
}

// UpsertReaction stores a contact's reaction, replacing any prior emoji from
// the same contact on the same message.
func (s *SQLiteStore) UpsertReaction(ctx context.Context, r *Reaction) error {
	query := `
		INSERT INTO reactions (message_id, contact_id, emoji, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (message_id, contact_id) DO UPDATE SET emoji = excluded.emoji
	`
	_, err := s.db.ExecContext(ctx, query, r.MessageID, r.ContactID, r.Emoji, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("upserting reaction: %w", err)
	}
	return nil
}

// ListReactions returns reactions for a message.
func (s *SQLiteStore) ListReactions(ctx context.Context, messageID string) ([]*Reaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, contact_id, emoji, created_at FROM reactions WHERE message_id = ?`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying reactions: %w", err)
	}
	defer rows.Close()

	var reacts []*Reaction
	for rows.Next() {
		var r Reaction
		var createdAt string
		if err := rows.Scan(&r.MessageID, &r.ContactID, &r.Emoji, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning reaction: %w", err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		reacts = append(reacts, &r)
	}
	return reacts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
