// ABOUTME: HTTP API handlers for the operator console
// ABOUTME: Conversation/message routes, CRUD for bots/webhooks/labels, and SSE stream

package console

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/waplane/waplane/internal/conversation"
	"github.com/waplane/waplane/internal/status"
	"github.com/waplane/waplane/internal/store"
)

// SendMessageRequest is the JSON request body for POST /api/conversations/{id}/messages.
type SendMessageRequest struct {
	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content"`
	MediaURL    string `json:"media_url,omitempty"`
	ReplyToID   string `json:"reply_to_id,omitempty"`
}

// NoteRequest is the JSON request body for POST /api/conversations/{id}/notes.
type NoteRequest struct {
	Content string `json:"content"`
}

// StatusRequest is the JSON request body for PUT /api/conversations/{id}/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// AssignBotRequest is the JSON request body for PUT /api/conversations/{id}/bot.
type AssignBotRequest struct {
	BotID string `json:"bot_id"`
}

// ConversationResponse is the JSON shape of a conversation.
type ConversationResponse struct {
	ID                 string `json:"id"`
	InboxID            string `json:"inbox_id"`
	ContactID          string `json:"contact_id"`
	ContactName        string `json:"contact_name,omitempty"`
	Status             string `json:"status"`
	AssignedBotID      string `json:"assigned_bot_id,omitempty"`
	UnreadCount        int    `json:"unread_count"`
	LastMessagePreview string `json:"last_message_preview,omitempty"`
	LastActivityAt     string `json:"last_activity_at"`
	CreatedAt          string `json:"created_at"`
}

// MessageResponse is the JSON shape of a message.
type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Direction      string `json:"direction"`
	ContentType    string `json:"content_type"`
	Content        string `json:"content,omitempty"`
	MediaURL       string `json:"media_url,omitempty"`
	ReplyToID      string `json:"reply_to_id,omitempty"`
	Status         string `json:"status"`
	Private        bool   `json:"private"`
	SenderKind     string `json:"sender_kind"`
	BotID          string `json:"bot_id,omitempty"`
	CreatedAt      string `json:"created_at"`
	Deleted        bool   `json:"deleted,omitempty"`
}

func conversationResponse(c *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:                 c.ID,
		InboxID:            c.InboxID,
		ContactID:          c.ContactID,
		ContactName:        c.ContactName,
		Status:             c.Status,
		AssignedBotID:      c.AssignedBotID,
		UnreadCount:        c.UnreadCount,
		LastMessagePreview: c.LastMessagePreview,
		LastActivityAt:     c.LastActivityAt.Format(time.RFC3339),
		CreatedAt:          c.CreatedAt.Format(time.RFC3339),
	}
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Direction:      m.Direction,
		ContentType:    m.ContentType,
		Content:        m.Content,
		MediaURL:       m.MediaURL,
		ReplyToID:      m.ReplyToID,
		Status:         m.Status,
		Private:        m.Private,
		SenderKind:     m.SenderKind,
		BotID:          m.BotID,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
		Deleted:        m.DeletedAt != nil,
	}
}

// registerAPIRoutes mounts the operator API on the mux.
func (c *Console) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/conversations", c.handleConversations)
	mux.HandleFunc("/api/conversations/", c.handleConversationRoutes)
	mux.HandleFunc("/api/bots", c.handleBots)
	mux.HandleFunc("/api/bots/", c.handleBotByID)
	mux.HandleFunc("/api/webhooks", c.handleWebhooks)
	mux.HandleFunc("/api/webhooks/", c.handleWebhookByID)
	mux.HandleFunc("/api/labels", c.handleLabels)
	mux.HandleFunc("/api/labels/", c.handleLabelByID)
	mux.HandleFunc("/api/canned", c.handleCanned)
	mux.HandleFunc("/api/canned/", c.handleCannedByID)
	mux.HandleFunc("/api/stream", c.handleStream)
}

// sendJSONError writes a JSON error response.
func (c *Console) sendJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (c *Console) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// domainError maps store/service errors to HTTP status codes.
func (c *Console) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.sendJSONError(w, http.StatusNotFound, "not found")
	case errors.Is(err, conversation.ErrEmptyMessage):
		c.sendJSONError(w, http.StatusBadRequest, "message content is empty")
	case errors.Is(err, store.ErrInvalidReference):
		c.sendJSONError(w, http.StatusUnprocessableEntity, "invalid reply target")
	case errors.Is(err, status.ErrInvalidTransition):
		c.sendJSONError(w, http.StatusConflict, "invalid status transition")
	case errors.Is(err, store.ErrDuplicateLabel), errors.Is(err, store.ErrDuplicateCanned):
		c.sendJSONError(w, http.StatusConflict, "duplicate name")
	default:
		c.logger.Error("request failed", "error", err)
		c.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// handleConversations handles GET /api/conversations?inbox_id=X&limit=N.
func (c *Console) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		c.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	inboxID := r.URL.Query().Get("inbox_id")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.sendJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	convs, err := c.store.ListConversations(r.Context(), inboxID, limit)
	if err != nil {
		c.domainError(w, err)
		return
	}

	out := make([]ConversationResponse, len(convs))
	for i, conv := range convs {
		out[i] = conversationResponse(conv)
	}
	c.writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

// handleConversationRoutes dispatches /api/conversations/{id}[/...] requests.
func (c *Console) handleConversationRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/conversations/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		c.sendJSONError(w, http.StatusBadRequest, "missing conversation id")
		return
	}

	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		c.handleGetConversation(w, r, id)
	case sub == "messages" && r.Method == http.MethodGet:
		c.handleListMessages(w, r, id)
	case sub == "messages" && r.Method == http.MethodPost:
		c.handleSendMessage(w, r, id)
	case strings.HasPrefix(sub, "messages/") && r.Method == http.MethodDelete:
		c.handleDeleteMessage(w, r, id, strings.TrimPrefix(sub, "messages/"))
	case sub == "notes" && r.Method == http.MethodPost:
		c.handleCreateNote(w, r, id)
	case sub == "status" && r.Method == http.MethodPut:
		c.handleSetStatus(w, r, id)
	case sub == "bot" && r.Method == http.MethodPut:
		c.handleAssignBot(w, r, id)
	case sub == "bot" && r.Method == http.MethodDelete:
		c.handleUnassignBot(w, r, id)
	case strings.HasPrefix(sub, "labels"):
		c.handleConversationLabels(w, r, id, strings.TrimPrefix(sub, "labels"))
	default:
		c.sendJSONError(w, http.StatusNotFound, "not found")
	}
}

func (c *Console) handleGetConversation(w http.ResponseWriter, r *http.Request, id string) {
	conv, err := c.store.GetConversation(r.Context(), id)
	if err != nil {
		c.domainError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, conversationResponse(conv))
}

// handleListMessages handles GET /api/conversations/{id}/messages?limit=N.
// This is also the pull-based catch-up call for realtime subscribers after a
// disconnect.
func (c *Console) handleListMessages(w http.ResponseWriter, r *http.Request, id string) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.sendJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	if _, err := c.store.GetConversation(r.Context(), id); err != nil {
		c.domainError(w, err)
		return
	}

	msgs, err := c.store.ListMessages(r.Context(), id, limit)
	if err != nil {
		c.domainError(w, err)
		return
	}

	out := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		out[i] = messageResponse(m)
	}
	c.writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "messages": out})
}

func (c *Console) handleSendMessage(w http.ResponseWriter, r *http.Request, id string) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := c.service.SendOutbound(r.Context(), id, &conversation.Draft{
		ContentType: req.ContentType,
		Content:     req.Content,
		MediaURL:    req.MediaURL,
		ReplyToID:   req.ReplyToID,
	}, store.SenderHuman, "")
	if err != nil {
		c.domainError(w, err)
		return
	}
	c.writeJSON(w, http.StatusCreated, messageResponse(msg))
}

func (c *Console) handleCreateNote(w http.ResponseWriter, r *http.Request, id string) {
	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := c.service.MarkPrivateNote(r.Context(), id, req.Content)
	if err != nil {
		c.domainError(w, err)
		return
	}
	c.writeJSON(w, http.StatusCreated, messageResponse(msg))
}

func (c *Console) handleSetStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch req.Status {
	case store.ConversationOpen, store.ConversationPending, store.ConversationResolved:
	default:
		c.sendJSONError(w, http.StatusBadRequest, "status must be open, pending, or resolved")
		return
	}

	conv, err := c.service.ToggleStatus(r.Context(), id, req.Status)
	if err != nil {
		c.domainError(w, err)
		return
	}
	c.writeJSON(w, http.StatusOK, conversationResponse(conv))
}

func (c *Console) handleAssignBot(w http.ResponseWriter, r *http.Request, id string) {
	var req AssignBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		c.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.BotID == "" {
		c.sendJSONError(w, http.StatusBadRequest, "bot_id is required")
		return
	}

	if err := c.service.AssignBot(r.Context(), id, req.BotID); err != nil {
		c.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Console) handleUnassignBot(w http.ResponseWriter, r *http.Request, id string) {
	if err := c.service.UnassignBot(r.Context(), id); err != nil {
		c.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Console) handleDeleteMessage(w http.ResponseWriter, r *http.Request, conversationID, messageID string) {
	if messageID == "" || strings.Contains(messageID, "/") {
		c.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}

	msg, err := c.store.GetMessage(r.Context(), messageID)
	if err != nil {
		c.domainError(w, err)
		return
	}
	if msg.ConversationID != conversationID {
		c.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}

	if err := c.service.DeleteMessage(r.Context(), messageID); err != nil {
		c.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleConversationLabels handles label attachment:
// GET  /api/conversations/{id}/labels
// PUT  /api/conversations/{id}/labels/{labelID}
// DELETE /api/conversations/{id}/labels/{labelID}
func (c *Console) handleConversationLabels(w http.ResponseWriter, r *http.Request, id, rest string) {
	labelID := strings.TrimPrefix(rest, "/")

	switch {
	case r.Method == http.MethodGet && labelID == "":
		labels, err := c.store.ListConversationLabels(r.Context(), id)
		if err != nil {
			c.domainError(w, err)
			return
		}
		out := make([]LabelResponse, len(labels))
		for i, l := range labels {
			out[i] = labelResponse(l)
		}
		c.writeJSON(w, http.StatusOK, map[string]any{"labels": out})
	case r.Method == http.MethodPut && labelID != "":
		if err := c.store.AddConversationLabel(r.Context(), id, labelID); err != nil {
			c.domainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodDelete && labelID != "":
		if err := c.store.RemoveConversationLabel(r.Context(), id, labelID); err != nil {
			c.domainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		c.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleStream handles GET /api/stream?scope=X as Server-Sent Events.
// Scope is a conversation id or inbox id. Events stop when the client
// disconnects; clients catch up via the message list endpoint.
func (c *Console) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		c.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	scope := r.URL.Query().Get("scope")
	if scope == "" {
		c.sendJSONError(w, http.StatusBadRequest, "scope is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		c.logger.Error("streaming not supported")
		c.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ch, _ := c.service.Broadcaster().Subscribe(r.Context(), scope)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	c.writeSSEEvent(w, "connected", map[string]string{"scope": scope})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			c.writeSSEEvent(w, ev.Type, ev)
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes one Server-Sent Event frame.
func (c *Console) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		c.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// BotRequest is the JSON request body for creating or updating an agent bot.
type BotRequest struct {
	Name        string `json:"name"`
	OutgoingURL string `json:"outgoing_url"`
	AccessToken string `json:"access_token,omitempty"`
	Status      string `json:"status,omitempty"`
}

// BotResponse is the JSON shape of an agent bot. The access token is
// write-only and never echoed back.
type BotResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	OutgoingURL string `json:"outgoing_url"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func botResponse(b *store.AgentBot) BotResponse {
	return BotResponse{
		ID:          b.ID,
		Name:        b.Name,
		OutgoingURL: b.OutgoingURL,
		Status:      b.Status,
		CreatedAt:   b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   b.UpdatedAt.Format(time.RFC3339),
	}
}

// handleBots handles GET and POST /api/bots.
func (c *Console) handleBots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		bots, err := c.store.ListAgentBots(r.Context(), c.config.Account.ID)
		if err != nil {
			c.domainError(w, err)
			return
		}
		out := make([]BotResponse, len(bots))
		for i, b := range bots {
			out[i] = botResponse(b)
		}
		c.writeJSON(w, http.StatusOK, map[string]any{"bots": out})
	case http.MethodPost:
		var req BotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			c.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Name == "" || req.OutgoingURL == "" {
			c.sendJSONError(w, http.StatusBadRequest, "name and outgoing_url are required")
			return
		}
		if req.Status != "" && req.Status != store.BotActive && req.Status != store.BotPaused {
			c.sendJSONError(w, http.StatusBadRequest, "status must be active or paused")
			return
		}
		bot := &store.AgentBot{
			AccountID:   c.config.Account.ID,
			Name:        req.Name,
			OutgoingURL: req.OutgoingURL,
			AccessToken: req.AccessToken,
			Status:      req.Status,
		}
		if err := c.store.CreateAgentBot(r.Context(), bot); err != nil {
			c.domainError(w, err)
			return
		}
		c.writeJSON(w, http.StatusCreated, botResponse(bot))
	default:
		c.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleBotByID handles GET, PUT, and DELETE /api/bots/{id}.
func (c *Console) handleBotByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/bots/")
	if id == "" || strings.Contains(id, "/") {
		c.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		bot, err := c.store.GetAgentBot(r.Context(), id)
		if err != nil {
			c.domainError(w, err)
			return
		}
		c.writeJSON(w, http.StatusOK, botResponse(bot))
	case http.MethodPut:
		var req BotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			c.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		bot, err := c.store.GetAgentBot(r.Context(), id)
		if err != nil {
			c.domainError(w, err)
			return
		}
		if req.Name != "" {
			bot.Name = req.Name
		}
		if req.OutgoingURL != "" {
			bot.OutgoingURL = req.OutgoingURL
		}
		if req.AccessToken != "" {
			bot.AccessToken = req.AccessToken
		}
		if req.Status != "" {
			if req.Status != store.BotActive && req.Status != store.BotPaused {
				c.sendJSONError(w, http.StatusBadRequest, "status must be active or paused")
				return
			}
			bot.Status = req.Status
		}
		if err := c.store.UpdateAgentBot(r.Context(), bot); err != nil {
			c.domainError(w, err)
			return
		}
		c.writeJSON(w, http.StatusOK, botResponse(bot))
	case http.MethodDelete:
		if err := c.store.DeleteAgentBot(r.Context(), id); err != nil {
			c.domainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		c.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// WebhookRequest is the JSON request body for creating or updating a webhook.
type WebhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
	Active *bool    `json:"active,omitempty"`
}

// WebhookResponse is the JSON shape of a webhook registration.
type WebhookResponse struct {
	ID           string   `json:"id"`
	URL          string   `json:"url"`
	Events       []string `json:"events"`
	Active       bool     `json:"active"`
	SuccessCount int      `json:"success_count"`
	FailureCount int      `json:"failure_count"`
	LastError    string   `json:"last_error,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func webhookResponse(wh *store.Webhook) WebhookResponse {
	return WebhookResponse{
		ID:           wh.ID,
		URL:          wh.URL,
		Events:       wh.Events,
		Active:       wh.Active,
		SuccessCount: wh.SuccessCount,
		FailureCount: wh.FailureCount,
		LastError:    wh.LastError,
		CreatedAt:    wh.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    wh.UpdatedAt.Format(time.RFC3339),
	}
}

// DeliveryResponse is the JSON shape of a webhook delivery attempt record.
type DeliveryResponse struct {
	ID           string `json:"id"`
	EventType    string `json:"event_type"`
	Status       string `json:"status"`
	ResponseCode int    `json:"response_code,omitempty"`
	AttemptCount int    `json:"attempt_count"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// handleWebhooks handles GET and POST /api/webhooks.
func (c *Console) handleWebhooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		hooks, err := c.store.ListWebhooks(r.Context(), c.config.Account.ID)
		if err != nil {
			c.domainError(w, err)
			return
		}
		out := make([]WebhookResponse, len(hooks))
		for i, wh := range hooks {
			out[i] = webhookResponse(wh)
		}
		c.writeJSON(w, http.StatusOK, map[string]any{"webhooks": out})
	case http.MethodPost:
		var req WebhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			c.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.URL == "" {
			c.sendJSONError(w, http.StatusBadRequest, "url is required")
			return
		}
		if len(req.Events) == 0 {
			c.sendJSONError(w, http.StatusBadRequest, "at least one event is required")
			return
		}
		wh := &store.Webhook{
			AccountID: c.config.Account.ID,
			URL:       req.URL,
			Events:    req.Events,
			Active:    true,
		}
		if req.Active != nil {
			wh.Active = *req.Active
		}
		if err := c.store.CreateWebhook(r.Context(), wh); err != nil {
			c.domainError(w, err)
			return
		}
		c.writeJSON(w, http.StatusCreated, webhookResponse(wh))
	default:
		c.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleWebhookByID handles /api/webhooks/{id} and /api/webhooks/{id}/deliveries.
func (c *Console) handleWebhookByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/webhooks/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		c.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}

	if len(parts) == 2 {
		if parts[1] == "deliveries" && r.Method == http.MethodGet {
			c.handleListDeliveries(w, r, id)
			return
		}
		c.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		wh, err := c.store.GetWebhook(r.Context(), id)
		if err != nil {
			c.domainError(w, err)
			return
		}
		c.writeJSON(w, http.StatusOK, webhookResponse(wh))
	case http.MethodPut:
		var req WebhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			c.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		wh, err := c.store.GetWebhook(r.Context(), id)
		if err != nil {
			c.domainError(w, err)
			return
		}
		if req.URL != "" {
			wh.URL = req.URL
		}
		if req.Events != nil {
			wh.Events = req.Events
		}
		if req.Active != nil {
			wh.Active = *req.Active
		}
		if err := c.store.UpdateWebhook(r.Context(), wh); err != nil {
			c.domainError(w, err)
			return
		}
		c.writeJSON(w, http.StatusOK, webhookResponse(wh))
	case http.MethodDelete:
		if err := c.store.DeleteWebhook(r.Context(), id); err != nil {
			c.domainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		c.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (c *Console) handleListDeliveries(w http.ResponseWriter, r *http.Request, webhookID string) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.sendJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	if _, err := c.store.GetWebhook(r.Context(), webhookID); err != nil {
		c.domainError(w, err)
		return
	}

	deliveries, err := c.store.ListDeliveries(r.Context(), webhookID, limit)
	if err != nil {
		c.domainError(w, err)
		return
	}

	out := make([]DeliveryResponse, len(deliveries))
	for i, d := range deliveries {
		out[i] = DeliveryResponse{
			ID:           d.ID,
			EventType:    d.EventType,
			Status:       d.Status,
			ResponseCode: d.ResponseCode,
			AttemptCount: d.AttemptCount,
			CreatedAt:    d.CreatedAt.Format(time.RFC3339),
			UpdatedAt:    d.UpdatedAt.Format(time.RFC3339),
		}
	}
	c.writeJSON(w, http.StatusOK, map[string]any{"webhook_id": webhookID, "deliveries": out})
}

// LabelRequest is the JSON request body for POST /api/labels.
type LabelRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// LabelResponse is the JSON shape of a label.
type LabelResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	CreatedAt string `json:"created_at"`
}

func labelResponse(l *store.Label) LabelResponse {
	return LabelResponse{
		ID:        l.ID,
		Name:      l.Name,
		Color:     l.Color,
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
}

// handleLabels handles GET and POST /api/labels.
func (c *Console) handleLabels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		labels, err := c.store.ListLabels(r.Context(), c.config.Account.ID)
		if err != nil {
			c.domainError(w, err)
			return
		}
		out := make([]LabelResponse, len(labels))
		for i, l := range labels {
			out[i] = labelResponse(l)
		}
		c.writeJSON(w, http.StatusOK, map[string]any{"labels": out})
	case http.MethodPost:
		var req LabelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			c.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Name == "" {
			c.sendJSONError(w, http.StatusBadRequest, "name is required")
			return
		}
		l := &store.Label{
			AccountID: c.config.Account.ID,
			Name:      req.Name,
			Color:     req.Color,
		}
		if err := c.store.CreateLabel(r.Context(), l); err != nil {
			c.domainError(w, err)
			return
		}
		c.writeJSON(w, http.StatusCreated, labelResponse(l))
	default:
		c.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleLabelByID handles DELETE /api/labels/{id}.
func (c *Console) handleLabelByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/labels/")
	if id == "" || strings.Contains(id, "/") {
		c.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		c.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := c.store.DeleteLabel(r.Context(), id); err != nil {
		c.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CannedRequest is the JSON request body for POST /api/canned.
type CannedRequest struct {
	Shortcut string `json:"shortcut"`
	Content  string `json:"content"`
}

// CannedResponseBody is the JSON shape of a canned response template.
type CannedResponseBody struct {
	ID        string `json:"id"`
	Shortcut  string `json:"shortcut"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func cannedResponseBody(cr *store.CannedResponse) CannedResponseBody {
	return CannedResponseBody{
		ID:        cr.ID,
		Shortcut:  cr.Shortcut,
		Content:   cr.Content,
		CreatedAt: cr.CreatedAt.Format(time.RFC3339),
	}
}

// handleCanned handles GET and POST /api/canned.
func (c *Console) handleCanned(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		responses, err := c.store.ListCannedResponses(r.Context(), c.config.Account.ID)
		if err != nil {
			c.domainError(w, err)
			return
		}
		out := make([]CannedResponseBody, len(responses))
		for i, cr := range responses {
			out[i] = cannedResponseBody(cr)
		}
		c.writeJSON(w, http.StatusOK, map[string]any{"canned_responses": out})
	case http.MethodPost:
		var req CannedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			c.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Shortcut == "" || req.Content == "" {
			c.sendJSONError(w, http.StatusBadRequest, "shortcut and content are required")
			return
		}
		cr := &store.CannedResponse{
			AccountID: c.config.Account.ID,
			Shortcut:  req.Shortcut,
			Content:   req.Content,
		}
		if err := c.store.CreateCannedResponse(r.Context(), cr); err != nil {
			c.domainError(w, err)
			return
		}
		c.writeJSON(w, http.StatusCreated, cannedResponseBody(cr))
	default:
		c.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCannedByID handles DELETE /api/canned/{id}.
func (c *Console) handleCannedByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/canned/")
	if id == "" || strings.Contains(id, "/") {
		c.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		c.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := c.store.DeleteCannedResponse(r.Context(), id); err != nil {
		c.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
