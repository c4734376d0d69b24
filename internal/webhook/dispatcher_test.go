// ABOUTME: Tests for webhook dispatch, retry accounting, and payload signing
// ABOUTME: Uses short retry delays so the full schedule runs in milliseconds

package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waplane/waplane/internal/store"
)

var testDelays = []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createWebhook(t *testing.T, s store.Store, url string, events ...string) *store.Webhook {
	t.Helper()
	wh := &store.Webhook{AccountID: "acct-1", URL: url, Events: events, Active: true}
	require.NoError(t, s.CreateWebhook(context.Background(), wh))
	return wh
}

func testEnvelope(event string) *Envelope {
	return &Envelope{
		Event:        event,
		Conversation: map[string]any{"id": "conv-1"},
		Message:      map[string]any{"id": "msg-1", "content": "hello"},
		Timestamp:    time.Now().UTC(),
	}
}

func TestDispatch_Success(t *testing.T) {
	s := newTestStore(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	wh := createWebhook(t, s, srv.URL, EventMessageReceived)
	d := NewDispatcher(s, nil, 5*time.Second, testDelays, slog.Default())

	d.Dispatch(context.Background(), "acct-1", testEnvelope(EventMessageReceived))
	d.Wait()

	assert.Equal(t, int32(1), hits.Load())

	got, err := s.GetWebhook(context.Background(), wh.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SuccessCount)
	assert.Equal(t, 0, got.FailureCount)

	deliveries, err := s.ListDeliveries(context.Background(), wh.ID, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, store.DeliverySuccess, deliveries[0].Status)
	assert.Equal(t, 1, deliveries[0].AttemptCount)
	assert.Equal(t, http.StatusOK, deliveries[0].ResponseCode)
}

func TestDispatch_SkipsUnsubscribedEvents(t *testing.T) {
	s := newTestStore(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	createWebhook(t, s, srv.URL, EventConversationCreated)
	d := NewDispatcher(s, nil, 5*time.Second, testDelays, slog.Default())

	d.Dispatch(context.Background(), "acct-1", testEnvelope(EventMessageReceived))
	d.Wait()

	assert.Equal(t, int32(0), hits.Load())
}

func TestDispatch_ExhaustedAfterFourAttempts(t *testing.T) {
	s := newTestStore(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	wh := createWebhook(t, s, srv.URL, EventMessageSent)
	d := NewDispatcher(s, nil, 5*time.Second, testDelays, slog.Default())

	d.Dispatch(context.Background(), "acct-1", testEnvelope(EventMessageSent))
	d.Wait()

	assert.Equal(t, int32(4), hits.Load(), "initial attempt plus three retries")

	got, err := s.GetWebhook(context.Background(), wh.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.SuccessCount)
	assert.Equal(t, 1, got.FailureCount, "failure counter increments exactly once per delivery")
	assert.Contains(t, got.LastError, "503")

	deliveries, err := s.ListDeliveries(context.Background(), wh.ID, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, store.DeliveryFailed, deliveries[0].Status)
	assert.Equal(t, 4, deliveries[0].AttemptCount)
}

func TestDispatch_RecoversOnRetry(t *testing.T) {
	s := newTestStore(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
	}))
	defer srv.Close()

	wh := createWebhook(t, s, srv.URL, EventMessageRead)
	d := NewDispatcher(s, nil, 5*time.Second, testDelays, slog.Default())

	d.Dispatch(context.Background(), "acct-1", testEnvelope(EventMessageRead))
	d.Wait()

	assert.Equal(t, int32(3), hits.Load())

	got, err := s.GetWebhook(context.Background(), wh.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SuccessCount)
	assert.Equal(t, 0, got.FailureCount)

	deliveries, err := s.ListDeliveries(context.Background(), wh.ID, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, store.DeliverySuccess, deliveries[0].Status)
	assert.Equal(t, 3, deliveries[0].AttemptCount)
}

func TestDispatch_DeactivationStopsRetries(t *testing.T) {
	s := newTestStore(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	wh := createWebhook(t, s, srv.URL, EventMessageSent)
	// Long delays give us room to deactivate before the first retry fires.
	d := NewDispatcher(s, nil, 5*time.Second, []time.Duration{200 * time.Millisecond, time.Second, time.Second}, slog.Default())

	d.Dispatch(context.Background(), "acct-1", testEnvelope(EventMessageSent))

	wh.Active = false
	require.NoError(t, s.UpdateWebhook(context.Background(), wh))
	d.Wait()

	assert.Equal(t, int32(1), hits.Load(), "no retry after deactivation")

	deliveries, err := s.ListDeliveries(context.Background(), wh.ID, 10)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, store.DeliveryFailed, deliveries[0].Status)
}

func TestSendWithRetries_Exhausted(t *testing.T) {
	s := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := createWebhook(t, s, srv.URL, EventMessageSent)
	delivery := &store.WebhookDelivery{WebhookID: wh.ID, EventType: EventMessageSent, Payload: "{}"}
	require.NoError(t, s.CreateDelivery(context.Background(), delivery))

	d := NewDispatcher(s, nil, 5*time.Second, testDelays, slog.Default())
	err := d.SendWithRetries(context.Background(), wh, delivery.ID, []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
}

func TestSignature(t *testing.T) {
	s := newTestStore(t)
	key := []byte("signing-secret")

	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Waplane-Signature")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	createWebhook(t, s, srv.URL, EventMessageReceived)
	d := NewDispatcher(s, key, 5*time.Second, testDelays, slog.Default())

	d.Dispatch(context.Background(), "acct-1", testEnvelope(EventMessageReceived))
	d.Wait()

	require.NotEmpty(t, gotSig)
	token, err := jwt.Parse(gotSig, func(tok *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "waplane", claims["iss"])

	digest := sha256.Sum256(gotBody)
	assert.Equal(t, hex.EncodeToString(digest[:]), claims["payload_sha256"])

	var env Envelope
	require.NoError(t, json.Unmarshal(gotBody, &env))
	assert.Equal(t, EventMessageReceived, env.Event)
}
