// ABOUTME: Tests for the outbound gateway HTTP client
// ABOUTME: Covers accepted, duplicate, rejected, and unreachable responses

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendText_Accepted(t *testing.T) {
	var gotAuth string
	var gotReq sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(sendResponse{Status: "accepted", MessageID: "wamid.123"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "secret-token", 5*time.Second, slog.Default())
	res, err := c.SendText(context.Background(), "inbox-1", "15551234567", "ref-1", "hello")
	require.NoError(t, err)

	assert.Equal(t, "wamid.123", res.MessageID)
	assert.False(t, res.Duplicate)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "inbox-1", gotReq.InboxID)
	assert.Equal(t, "text", gotReq.ContentType)
	assert.Equal(t, "hello", gotReq.Content)
	assert.Equal(t, "ref-1", gotReq.ClientRef)
}

func TestSendText_DuplicateTreatedAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sendResponse{Status: "duplicate", MessageID: "wamid.dup"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", 5*time.Second, slog.Default())
	res, err := c.SendText(context.Background(), "inbox-1", "15551234567", "ref-1", "hello again")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, "wamid.dup", res.MessageID)
}

func TestSendText_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sendResponse{Status: "rejected", Error: "recipient blocked"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", 5*time.Second, slog.Default())
	_, err := c.SendText(context.Background(), "inbox-1", "15551234567", "ref-1", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSendFailed))
	assert.Contains(t, err.Error(), "recipient blocked")
}

func TestSendText_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", 5*time.Second, slog.Default())
	_, err := c.SendText(context.Background(), "inbox-1", "15551234567", "ref-1", "hi")
	assert.True(t, errors.Is(err, ErrSendFailed))
}

func TestSendText_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed before use

	c := NewHTTPClient(srv.URL, "", time.Second, slog.Default())
	_, err := c.SendText(context.Background(), "inbox-1", "15551234567", "ref-1", "hi")
	assert.True(t, errors.Is(err, ErrSendFailed))
}

func TestSendMedia(t *testing.T) {
	var gotReq sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(sendResponse{Status: "accepted", MessageID: "wamid.media"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", 5*time.Second, slog.Default())
	res, err := c.SendMedia(context.Background(), "inbox-1", "15551234567", "ref-2",
		"image", "https://cdn.example/img.jpg", "a caption")
	require.NoError(t, err)

	assert.Equal(t, "wamid.media", res.MessageID)
	assert.Equal(t, "image", gotReq.ContentType)
	assert.Equal(t, "https://cdn.example/img.jpg", gotReq.MediaURL)
	assert.Equal(t, "a caption", gotReq.Content)
}
