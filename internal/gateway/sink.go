// ABOUTME: HTTP sink receiving inbound events from the WhatsApp gateway
// ABOUTME: Dedupes by gateway message id and hands decoded events to a Processor

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/waplane/waplane/internal/dedupe"
	"github.com/waplane/waplane/internal/store"
)

// Processor consumes decoded gateway events. Implemented by the
// conversation service.
type Processor interface {
	// ProcessIncoming records an inbound message and returns the error
	// classified by the conversation service. Unknown inbox ids surface as
	// an invalid-reference error.
	ProcessIncoming(ctx context.Context, msg *IncomingMessage) error
	// ProcessReceipt applies a status acknowledgment to the message with
	// the given gateway id.
	ProcessReceipt(ctx context.Context, externalID, status string) error
	// ProcessReaction records a contact's reaction to the message with the
	// given gateway id.
	ProcessReaction(ctx context.Context, externalID, contactID, emoji string) error
}

// Sink is the http.Handler mounted at the gateway's webhook path.
type Sink struct {
	processor Processor
	tracker   *dedupe.Tracker
	token     string
	logger    *slog.Logger
}

// NewSink creates a sink. token, when non-empty, is required as a bearer
// token on every request.
func NewSink(processor Processor, tracker *dedupe.Tracker, token string, logger *slog.Logger) *Sink {
	return &Sink{
		processor: processor,
		tracker:   tracker,
		token:     token,
		logger:    logger.With("component", "gateway-sink"),
	}
}

func (s *Sink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid event", http.StatusBadRequest)
		return
	}

	switch ev.Type {
	case EventMessageReceived:
		s.handleMessage(w, r, ev.Data)
	case EventReadReceipt:
		s.handleReceipt(w, r, ev.Data)
	case EventReaction:
		s.handleReaction(w, r, ev.Data)
	case EventPresenceChange, EventHistorySync:
		// Acknowledged but not persisted.
		w.WriteHeader(http.StatusOK)
	default:
		s.logger.Debug("ignoring unknown event type", "type", ev.Type)
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Sink) handleMessage(w http.ResponseWriter, r *http.Request, data json.RawMessage) {
	var msg IncomingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		http.Error(w, "invalid message payload", http.StatusBadRequest)
		return
	}
	if msg.MessageID == "" || msg.InboxID == "" || msg.From == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	if s.tracker.Check(msg.MessageID) {
		s.logger.Debug("duplicate gateway message ignored", "message_id", msg.MessageID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.processor.ProcessIncoming(r.Context(), &msg); err != nil {
		s.logger.Error("failed to process inbound message",
			"message_id", msg.MessageID,
			"inbox_id", msg.InboxID,
			"error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrInvalidReference) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, "processing failed", status)
		return
	}

	// Mark as seen only after successful processing so the gateway's
	// redelivery of a failed event is not dropped as a duplicate.
	s.tracker.Mark(msg.MessageID)
	w.WriteHeader(http.StatusOK)
}

func (s *Sink) handleReceipt(w http.ResponseWriter, r *http.Request, data json.RawMessage) {
	var rc Receipt
	if err := json.Unmarshal(data, &rc); err != nil {
		http.Error(w, "invalid receipt payload", http.StatusBadRequest)
		return
	}
	if rc.MessageID == "" || rc.Status == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	if err := s.processor.ProcessReceipt(r.Context(), rc.MessageID, rc.Status); err != nil {
		// Receipts for unknown or already-advanced messages are not the
		// gateway's fault; ack them so it does not retry.
		s.logger.Debug("receipt not applied",
			"message_id", rc.MessageID,
			"status", rc.Status,
			"error", err)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Sink) handleReaction(w http.ResponseWriter, r *http.Request, data json.RawMessage) {
	var re Reaction
	if err := json.Unmarshal(data, &re); err != nil {
		http.Error(w, "invalid reaction payload", http.StatusBadRequest)
		return
	}
	if re.MessageID == "" || re.From == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}

	if err := s.processor.ProcessReaction(r.Context(), re.MessageID, re.From, re.Emoji); err != nil {
		// Reactions to unknown messages are acked so the gateway does not
		// retry.
		s.logger.Debug("reaction not applied",
			"message_id", re.MessageID,
			"from", re.From,
			"error", err)
	}
	w.WriteHeader(http.StatusOK)
}
