// ABOUTME: SQLite CRUD for webhook subscriptions and delivery records
// ABOUTME: Counter updates are atomic SQL increments, safe under concurrent deliveries

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const webhookColumns = `id, account_id, url, events, active, success_count, failure_count, last_error, created_at, updated_at`

func scanWebhook(row interface{ Scan(...any) error }) (*Webhook, error) {
	var w Webhook
	var events string
	var active int
	var createdAt, updatedAt string
	err := row.Scan(&w.ID, &w.AccountID, &w.URL, &events, &active,
		&w.SuccessCount, &w.FailureCount, &w.LastError, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning webhook: %w", err)
	}
	w.Active = active != 0
	if events != "" {
		if err := json.Unmarshal([]byte(events), &w.Events); err != nil {
			return nil, fmt.Errorf("parsing webhook events: %w", err)
		}
	}
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &w, nil
}

func encodeEvents(events []string) (string, error) {
	if len(events) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("encoding webhook events: %w", err)
	}
	return string(b), nil
}

// CreateWebhook inserts a new subscription.
func (s *SQLiteStore) CreateWebhook(ctx context.Context, wh *Webhook) error {
	if wh.ID == "" {
		wh.ID = newID()
	}
	now := time.Now()
	if wh.CreatedAt.IsZero() {
		wh.CreatedAt = now
	}
	wh.UpdatedAt = now

	events, err := encodeEvents(wh.Events)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhooks (id, account_id, url, events, active, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, '', ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		wh.ID, wh.AccountID, wh.URL, events, boolToInt(wh.Active),
		formatTime(wh.CreatedAt), formatTime(wh.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting webhook: %w", err)
	}
	s.logger.Debug("created webhook", "id", wh.ID, "url", wh.URL)
	return nil
}

// GetWebhook retrieves a subscription by ID.
func (s *SQLiteStore) GetWebhook(ctx context.Context, id string) (*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE id = ?`
	return scanWebhook(s.db.QueryRowContext(ctx, query, id))
}

// ListWebhooks returns every subscription for an account, deactivated ones
// included.
func (s *SQLiteStore) ListWebhooks(ctx context.Context, accountID string) ([]*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE account_id = ? ORDER BY created_at`
	return s.queryWebhooks(ctx, query, accountID)
}

// ListActiveWebhooks returns active subscriptions for an account. Event-type
// matching happens in the dispatcher.
func (s *SQLiteStore) ListActiveWebhooks(ctx context.Context, accountID string) ([]*Webhook, error) {
	query := `SELECT ` + webhookColumns + ` FROM webhooks WHERE account_id = ? AND active = 1 ORDER BY created_at`
	return s.queryWebhooks(ctx, query, accountID)
}

func (s *SQLiteStore) queryWebhooks(ctx context.Context, query string, args ...any) ([]*Webhook, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []*Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, w)
	}
	return hooks, rows.Err()
}

// UpdateWebhook updates URL, event set and active flag.
func (s *SQLiteStore) UpdateWebhook(ctx context.Context, wh *Webhook) error {
	events, err := encodeEvents(wh.Events)
	if err != nil {
		return err
	}
	query := `UPDATE webhooks SET url = ?, events = ?, active = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		wh.URL, events, boolToInt(wh.Active), formatTime(time.Now()), wh.ID,
	)
	if err != nil {
		return fmt.Errorf("updating webhook: %w", err)
	}
	return requireRow(res)
}

// DeleteWebhook removes a subscription. Its delivery history is kept.
func (s *SQLiteStore) DeleteWebhook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting webhook: %w", err)
	}
	return requireRow(res)
}

// RecordWebhookSuccess bumps the success counter and clears the last error.
// The increment is a single SQL statement, not read-modify-write.
func (s *SQLiteStore) RecordWebhookSuccess(ctx context.Context, id string) error {
	query := `UPDATE webhooks SET success_count = success_count + 1, last_error = '', updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("recording webhook success: %w", err)
	}
	return requireRow(res)
}

// RecordWebhookFailure bumps the failure counter and stores the last error.
func (s *SQLiteStore) RecordWebhookFailure(ctx context.Context, id, lastError string) error {
	query := `UPDATE webhooks SET failure_count = failure_count + 1, last_error = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, lastError, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("recording webhook failure: %w", err)
	}
	return requireRow(res)
}

const deliveryColumns = `id, webhook_id, event_type, payload, status, response_code, attempt_count, created_at, updated_at`

func scanDelivery(row interface{ Scan(...any) error }) (*WebhookDelivery, error) {
	var d WebhookDelivery
	var createdAt, updatedAt string
	err := row.Scan(&d.ID, &d.WebhookID, &d.EventType, &d.Payload, &d.Status,
		&d.ResponseCode, &d.AttemptCount, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning delivery: %w", err)
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &d, nil
}

// CreateDelivery records a new dispatched event in pending status.
func (s *SQLiteStore) CreateDelivery(ctx context.Context, d *WebhookDelivery) error {
	if d.ID == "" {
		d.ID = newID()
	}
	if d.Status == "" {
		d.Status = DeliveryPending
	}
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	query := `
		INSERT INTO webhook_deliveries (id, webhook_id, event_type, payload, status, response_code, attempt_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.WebhookID, d.EventType, d.Payload, d.Status, d.ResponseCode, d.AttemptCount,
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting delivery: %w", err)
	}
	return nil
}

// UpdateDelivery records the outcome of an attempt.
func (s *SQLiteStore) UpdateDelivery(ctx context.Context, id, deliveryStatus string, responseCode, attempts int) error {
	query := `UPDATE webhook_deliveries SET status = ?, response_code = ?, attempt_count = ?, updated_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, deliveryStatus, responseCode, attempts, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("updating delivery: %w", err)
	}
	return requireRow(res)
}

// GetDelivery retrieves a delivery record by ID.
func (s *SQLiteStore) GetDelivery(ctx context.Context, id string) (*WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = ?`
	return scanDelivery(s.db.QueryRowContext(ctx, query, id))
}

// ListDeliveries returns recent deliveries for a subscription, newest first.
func (s *SQLiteStore) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]*WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE webhook_id = ?
		ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []*WebhookDelivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}
