// ABOUTME: Realtime event types published to connected console operators
// ABOUTME: Events carry a scope (conversation or inbox id) and a typed payload

package conversation

import (
	"time"

	"github.com/waplane/waplane/internal/store"
)

// Realtime event types.
const (
	EventMessageAppended     = "message-appended"
	EventStatusChanged       = "status-changed"
	EventConversationUpdated = "conversation-updated"
	EventMessageUpdated      = "message-updated"
)

// Event is the realtime fan-out payload. Scope is the conversation id for
// message-level events and the inbox id for conversation-level ones.
type Event struct {
	Type         string               `json:"type"`
	Scope        string               `json:"scope"`
	Timestamp    time.Time            `json:"timestamp"`
	Message      *MessagePayload      `json:"message,omitempty"`
	Conversation *ConversationPayload `json:"conversation,omitempty"`
}

// ConversationPayload mirrors the persisted conversation for realtime
// subscribers.
type ConversationPayload struct {
	ID                 string    `json:"id"`
	InboxID            string    `json:"inbox_id"`
	ContactID          string    `json:"contact_id"`
	ContactName        string    `json:"contact_name,omitempty"`
	Status             string    `json:"status"`
	AssignedBotID      string    `json:"assigned_bot_id,omitempty"`
	UnreadCount        int       `json:"unread_count"`
	LastMessagePreview string    `json:"last_message_preview,omitempty"`
	LastActivityAt     time.Time `json:"last_activity_at"`
}

func conversationPayload(c *store.Conversation) *ConversationPayload {
	return &ConversationPayload{
		ID:                 c.ID,
		InboxID:            c.InboxID,
		ContactID:          c.ContactID,
		ContactName:        c.ContactName,
		Status:             c.Status,
		AssignedBotID:      c.AssignedBotID,
		UnreadCount:        c.UnreadCount,
		LastMessagePreview: c.LastMessagePreview,
		LastActivityAt:     c.LastActivityAt,
	}
}

// MessagePayload mirrors the persisted message for realtime subscribers.
// Private notes keep their flag so the console can render them distinctly.
type MessagePayload struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Direction      string     `json:"direction"`
	ContentType    string     `json:"content_type"`
	Content        string     `json:"content,omitempty"`
	MediaURL       string     `json:"media_url,omitempty"`
	ReplyToID      string     `json:"reply_to_id,omitempty"`
	Status         string     `json:"status"`
	Private        bool       `json:"private"`
	SenderKind     string     `json:"sender_kind"`
	CreatedAt      time.Time  `json:"created_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

func messagePayload(m *store.Message) *MessagePayload {
	return &MessagePayload{
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
		CreatedAt:      m.CreatedAt,
		DeletedAt:      m.DeletedAt,
	}
}
