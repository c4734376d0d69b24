// ABOUTME: HTTP client for the outbound side of the WhatsApp gateway
// ABOUTME: Sends text and media messages and maps provider statuses to results

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrSendFailed is returned when the gateway rejects an outbound message or
// cannot be reached. The message stays in its current status and the caller
// decides whether to mark it failed.
var ErrSendFailed = errors.New("gateway send failed")

// SendResult reports the provider-side outcome of an outbound send.
type SendResult struct {
	// MessageID is the gateway-assigned identifier, used to correlate
	// later receipts.
	MessageID string
	// Duplicate is true when the gateway reports it already delivered a
	// message with the same client reference. Treated as success.
	Duplicate bool
}

// Client is the outbound boundary to the WhatsApp gateway.
type Client interface {
	// SendText delivers a plain text message to a contact through an inbox.
	SendText(ctx context.Context, inboxID, to, clientRef, content string) (*SendResult, error)
	// SendMedia delivers a media message. contentType is one of the media
	// content kinds (image, audio, video, file, sticker); caption may be
	// empty.
	SendMedia(ctx context.Context, inboxID, to, clientRef, contentType, mediaURL, caption string) (*SendResult, error)
}

// HTTPClient talks to the gateway's REST API with bearer auth.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a gateway client. timeout bounds each send attempt.
func NewHTTPClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With("component", "gateway-client"),
	}
}

type sendRequest struct {
	InboxID     string `json:"inbox_id"`
	To          string `json:"to"`
	ClientRef   string `json:"client_ref"`
	ContentType string `json:"content_type"`
	Content     string `json:"content,omitempty"`
	MediaURL    string `json:"media_url,omitempty"`
}

type sendResponse struct {
	Status    string `json:"status"` // accepted, duplicate, rejected
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (c *HTTPClient) SendText(ctx context.Context, inboxID, to, clientRef, content string) (*SendResult, error) {
	return c.send(ctx, sendRequest{
		InboxID:     inboxID,
		To:          to,
		ClientRef:   clientRef,
		ContentType: "text",
		Content:     content,
	})
}

func (c *HTTPClient) SendMedia(ctx context.Context, inboxID, to, clientRef, contentType, mediaURL, caption string) (*SendResult, error) {
	return c.send(ctx, sendRequest{
		InboxID:     inboxID,
		To:          to,
		ClientRef:   clientRef,
		ContentType: contentType,
		MediaURL:    mediaURL,
		Content:     caption,
	})
}

func (c *HTTPClient) send(ctx context.Context, reqBody sendRequest) (*SendResult, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("gateway unreachable", "inbox_id", reqBody.InboxID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSendFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("gateway rejected send",
			"inbox_id", reqBody.InboxID,
			"status_code", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrSendFailed, resp.StatusCode)
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSendFailed, err)
	}

	switch sr.Status {
	case "accepted":
		return &SendResult{MessageID: sr.MessageID}, nil
	case "duplicate":
		// The provider already has this message; report success so the
		// caller does not double-send.
		return &SendResult{MessageID: sr.MessageID, Duplicate: true}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrSendFailed, sr.Error)
	}
}
