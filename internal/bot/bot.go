// ABOUTME: Bot routing engine: decides whether an inbound message is forwarded
// ABOUTME: to an assigned agent bot and interprets the bot's response action

package bot

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

	"github.com/waplane/waplane/internal/store"
)

// ErrUnreachable is returned when the bot endpoint cannot be reached, times
// out, or answers non-2xx. Ingestion of the triggering message is never
// rolled back because of it.
var ErrUnreachable = errors.New("bot unreachable")

// Response actions a bot may return.
const (
	ActionReply   = "reply"
	ActionIgnore  = "ignore"
	ActionHandoff = "handoff"
)

// ForwardEnvelope is the payload POSTed to an agent bot for each inbound
// message in a conversation assigned to it.
type ForwardEnvelope struct {
	Event        string              `json:"event"` // always "message.received"
	Conversation ForwardConversation `json:"conversation"`
	Message      ForwardMessage      `json:"message"`
	Bot          ForwardBot          `json:"bot"`
}

type ForwardConversation struct {
	ID          string `json:"id"`
	ContactID   string `json:"contactId"`
	ContactName string `json:"contactName"`
}

type ForwardMessage struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content,omitempty"`
	MediaURL  string    `json:"mediaUrl,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ForwardBot struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Response is what a bot returns from a forward call.
type Response struct {
	Action  string           `json:"action"`
	Message *ResponseMessage `json:"message,omitempty"`
}

// ResponseMessage carries the content of a reply action.
type ResponseMessage struct {
	Type     string `json:"type,omitempty"` // defaults to text
	Content  string `json:"content"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// Forwarder delivers forward envelopes to agent bots.
type Forwarder interface {
	Forward(ctx context.Context, b *store.AgentBot, env *ForwardEnvelope) (*Response, error)
}

// HTTPForwarder POSTs envelopes to the bot's outgoing URL with the bot's
// bearer token.
type HTTPForwarder struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPForwarder creates a forwarder. timeout bounds every forward call;
// a timeout counts as unreachable.
func NewHTTPForwarder(timeout time.Duration, logger *slog.Logger) *HTTPForwarder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPForwarder{
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "bot-forwarder"),
	}
}

func (f *HTTPForwarder) Forward(ctx context.Context, b *store.AgentBot, env *ForwardEnvelope) (*Response, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal forward envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.OutgoingURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.AccessToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("bot forward failed", "bot_id", b.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Warn("bot returned error status", "bot_id", b.ID, "status_code", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnreachable, err)
	}

	var br Response
	if err := json.Unmarshal(body, &br); err != nil {
		// A bot that answers 2xx with garbage is treated as ignore.
		f.logger.Warn("bot returned undecodable response", "bot_id", b.ID, "error", err)
		return &Response{Action: ActionIgnore}, nil
	}
	switch br.Action {
	case ActionReply, ActionHandoff, ActionIgnore:
	default:
		f.logger.Debug("unknown bot action treated as ignore", "bot_id", b.ID, "action", br.Action)
		br.Action = ActionIgnore
	}
	return &br, nil
}

// Route decides whether a conversation's inbound message should be forwarded.
// Returns nil when no forward applies: no assigned bot, bot missing, or bot
// paused.
func Route(ctx context.Context, s store.Store, conv *store.Conversation) (*store.AgentBot, error) {
	if conv.AssignedBotID == "" {
		return nil, nil
	}
	b, err := s.GetAgentBot(ctx, conv.AssignedBotID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if b.Status != store.BotActive {
		return nil, nil
	}
	return b, nil
}
