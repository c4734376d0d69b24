// ABOUTME: Webhook dispatcher: fans domain events out to active subscriptions
// ABOUTME: First attempt inline, retries detached with 1s/2s/4s backoff

package webhook

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/waplane/waplane/internal/store"
)

// ErrExhausted is returned by SendWithRetries when every attempt failed.
var ErrExhausted = errors.New("webhook delivery exhausted")

// Domain event types subscriptions can register for.
const (
	EventMessageReceived     = "message.received"
	EventMessageSent         = "message.sent"
	EventMessageRead         = "message.read"
	EventConversationCreated = "conversation.created"
)

// Envelope is the payload delivered to webhook subscribers.
type Envelope struct {
	Event        string         `json:"event"`
	Conversation map[string]any `json:"conversation"`
	Message      map[string]any `json:"message,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Dispatcher delivers domain events to webhook subscriptions with retry
// accounting. Retries after the first attempt run detached so callers never
// block on a slow subscriber.
type Dispatcher struct {
	store      store.Store
	client     *http.Client
	signingKey []byte
	delays     []time.Duration
	logger     *slog.Logger

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. signingKey signs the
// X-Waplane-Signature JWT; an empty key disables signing. timeout bounds
// each individual attempt. delays, when nil, default to 1s/2s/4s.
func NewDispatcher(s store.Store, signingKey []byte, timeout time.Duration, delays []time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if delays == nil {
		delays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	}
	return &Dispatcher{
		store:      s,
		client:     &http.Client{Timeout: timeout},
		signingKey: signingKey,
		delays:     delays,
		logger:     logger.With("component", "webhook-dispatcher"),
	}
}

// Dispatch sends the envelope to every active subscription of accountID that
// subscribes to its event type. The first attempt runs inline; failures
// continue in the background. Subscriber failures never propagate to the
// caller.
func (d *Dispatcher) Dispatch(ctx context.Context, accountID string, env *Envelope) {
	hooks, err := d.store.ListActiveWebhooks(ctx, accountID)
	if err != nil {
		d.logger.Error("failed to list webhook subscriptions", "account_id", accountID, "error", err)
		return
	}

	payload, err := json.Marshal(env)
	if err != nil {
		d.logger.Error("failed to marshal webhook envelope", "event", env.Event, "error", err)
		return
	}

	for _, wh := range hooks {
		if !wh.SubscribedTo(env.Event) {
			continue
		}
		delivery := &store.WebhookDelivery{
			WebhookID: wh.ID,
			EventType: env.Event,
			Payload:   string(payload),
		}
		if err := d.store.CreateDelivery(ctx, delivery); err != nil {
			d.logger.Error("failed to record webhook delivery", "webhook_id", wh.ID, "error", err)
			continue
		}

		code, err := d.attempt(ctx, wh.URL, payload)
		if err == nil {
			d.finish(ctx, wh.ID, delivery.ID, code, 1, nil)
			continue
		}
		d.logger.Warn("webhook delivery failed, scheduling retries",
			"webhook_id", wh.ID,
			"delivery_id", delivery.ID,
			"event", env.Event,
			"error", err)
		if uerr := d.store.UpdateDelivery(ctx, delivery.ID, store.DeliveryPending, code, 1); uerr != nil {
			d.logger.Error("failed to update delivery record", "delivery_id", delivery.ID, "error", uerr)
		}

		d.wg.Add(1)
		go d.retry(wh.ID, delivery.ID, wh.URL, payload)
	}
}

// SendWithRetries delivers one payload synchronously through the full retry
// schedule. Used by tests and for re-delivery from the console; Dispatch is
// the normal entry point.
func (d *Dispatcher) SendWithRetries(ctx context.Context, wh *store.Webhook, deliveryID string, payload []byte) error {
	code, err := d.attempt(ctx, wh.URL, payload)
	attempts := 1
	if err == nil {
		d.finish(ctx, wh.ID, deliveryID, code, attempts, nil)
		return nil
	}

	for _, delay := range d.delays {
		select {
		case <-ctx.Done():
			d.finish(ctx, wh.ID, deliveryID, code, attempts, ctx.Err())
			return ctx.Err()
		case <-time.After(delay):
		}

		// A subscription deactivated mid-retry stops scheduling further
		// attempts.
		current, gerr := d.store.GetWebhook(ctx, wh.ID)
		if gerr != nil || !current.Active {
			d.finish(ctx, wh.ID, deliveryID, code, attempts, errors.New("subscription deactivated"))
			return ErrExhausted
		}

		code, err = d.attempt(ctx, wh.URL, payload)
		attempts++
		if err == nil {
			d.finish(ctx, wh.ID, deliveryID, code, attempts, nil)
			return nil
		}
	}

	d.finish(ctx, wh.ID, deliveryID, code, attempts, err)
	return fmt.Errorf("%w: %d attempts", ErrExhausted, attempts)
}

// retry continues a failed first attempt through the remaining schedule.
func (d *Dispatcher) retry(webhookID, deliveryID, url string, payload []byte) {
	defer d.wg.Done()
	ctx := context.Background()

	var lastErr error
	lastCode := 0
	attempts := 1 // inline attempt already happened

	for _, delay := range d.delays {
		time.Sleep(delay)

		current, err := d.store.GetWebhook(ctx, webhookID)
		if err != nil || !current.Active {
			d.finish(ctx, webhookID, deliveryID, lastCode, attempts, errors.New("subscription deactivated"))
			return
		}

		lastCode, lastErr = d.attempt(ctx, url, payload)
		attempts++
		if lastErr == nil {
			d.finish(ctx, webhookID, deliveryID, lastCode, attempts, nil)
			return
		}
	}

	d.finish(ctx, webhookID, deliveryID, lastCode, attempts, lastErr)
}

// finish writes the terminal delivery state and bumps the subscription
// counter exactly once per delivery.
func (d *Dispatcher) finish(ctx context.Context, webhookID, deliveryID string, code, attempts int, attemptErr error) {
	if attemptErr == nil {
		if err := d.store.UpdateDelivery(ctx, deliveryID, store.DeliverySuccess, code, attempts); err != nil {
			d.logger.Error("failed to mark delivery success", "delivery_id", deliveryID, "error", err)
		}
		if err := d.store.RecordWebhookSuccess(ctx, webhookID); err != nil {
			d.logger.Error("failed to record webhook success", "webhook_id", webhookID, "error", err)
		}
		return
	}

	if err := d.store.UpdateDelivery(ctx, deliveryID, store.DeliveryFailed, code, attempts); err != nil {
		d.logger.Error("failed to mark delivery failed", "delivery_id", deliveryID, "error", err)
	}
	if err := d.store.RecordWebhookFailure(ctx, webhookID, attemptErr.Error()); err != nil {
		d.logger.Error("failed to record webhook failure", "webhook_id", webhookID, "error", err)
	}
	d.logger.Warn("webhook delivery exhausted",
		"webhook_id", webhookID,
		"delivery_id", deliveryID,
		"attempts", attempts,
		"error", attemptErr)
}

// attempt performs one POST. Any non-2xx status or transport error is a
// failure.
func (d *Dispatcher) attempt(ctx context.Context, url string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if len(d.signingKey) > 0 {
		sig, err := d.sign(payload)
		if err != nil {
			return 0, fmt.Errorf("sign payload: %w", err)
		}
		req.Header.Set("X-Waplane-Signature", sig)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// sign produces an HS256 JWT binding the SHA-256 digest of the payload, so
// subscribers can verify both origin and body integrity.
func (d *Dispatcher) sign(payload []byte) (string, error) {
	digest := sha256.Sum256(payload)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":            "waplane",
		"iat":            time.Now().Unix(),
		"payload_sha256": hex.EncodeToString(digest[:]),
	})
	return token.SignedString(d.signingKey)
}

// Wait blocks until every detached retry goroutine has finished. Called on
// shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
