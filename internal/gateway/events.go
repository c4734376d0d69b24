// ABOUTME: Inbound event envelope types delivered by the WhatsApp gateway
// ABOUTME: The sink consumes message-received and read-receipt; the rest are acknowledged

package gateway

import (
	"encoding/json"
	"time"
)

// Event types delivered by the gateway webhook.
const (
	EventMessageReceived = "message-received"
	EventReadReceipt     = "read-receipt"
	EventReaction        = "reaction"
	EventPresenceChange  = "presence-change"
	EventHistorySync     = "history-sync"
)

// Event is the envelope the gateway POSTs to the sink. Data is decoded
// per-type.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// IncomingMessage is the decoded payload of a message-received event.
type IncomingMessage struct {
	MessageID   string    `json:"message_id"` // gateway-assigned, used for dedupe and receipts
	InboxID     string    `json:"inbox_id"`
	From        string    `json:"from"` // contact phone-number identifier
	SenderName  string    `json:"sender_name,omitempty"`
	ContentType string    `json:"content_type"`
	Content     string    `json:"content,omitempty"`
	MediaURL    string    `json:"media_url,omitempty"`
	QuotedID    string    `json:"quoted_id,omitempty"` // gateway id of the quoted message, if a reply
	Timestamp   time.Time `json:"timestamp"`
}

// Reaction is the decoded payload of a reaction event. An empty emoji
// removes the contact's previous reaction.
type Reaction struct {
	MessageID string    `json:"message_id"` // gateway id of the reacted-to message
	From      string    `json:"from"`
	Emoji     string    `json:"emoji,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Receipt is the decoded payload of a read-receipt event. The gateway uses
// the same event for sent/delivered/read acknowledgments of outbound
// messages and read receipts of inbound ones.
type Receipt struct {
	MessageID string    `json:"message_id"`
	Status    string    `json:"status"` // sent, delivered, read
	Timestamp time.Time `json:"timestamp"`
}
