// ABOUTME: Store interface and data types for waplane persistence
// ABOUTME: Defines Conversation, Message and related entities plus the Store interface

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// newID generates a fresh entity identifier.
func newID() string {
	return uuid.New().String()
}

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateConversation is returned when an insert collides with the
// (inbox_id, contact_id) unique constraint
var ErrDuplicateConversation = errors.New("conversation already exists")

// ErrInvalidReference is returned when a message reply target does not
// resolve to a live message in the same conversation
var ErrInvalidReference = errors.New("invalid reply reference")

// ErrDuplicateLabel is returned when a label name collides case-insensitively
var ErrDuplicateLabel = errors.New("label already exists")

// ErrDuplicateCanned is returned when a canned response shortcut collides
// case-insensitively
var ErrDuplicateCanned = errors.New("canned response already exists")

// ErrStaleStatus is returned when a conditional status update matched no row,
// meaning a concurrent writer moved the message first
var ErrStaleStatus = errors.New("message status changed concurrently")

// Conversation lifecycle statuses
const (
	ConversationOpen     = "open"
	ConversationPending  = "pending"
	ConversationResolved = "resolved"
)

// Message content types
const (
	ContentText     = "text"
	ContentImage    = "image"
	ContentVideo    = "video"
	ContentAudio    = "audio"
	ContentDocument = "document"
	ContentLocation = "location"
	ContentContact  = "contact"
	ContentSticker  = "sticker"
)

// Message sender kinds
const (
	SenderHuman   = "human"
	SenderContact = "contact"
	SenderBot     = "bot"
)

// AgentBot statuses
const (
	BotActive = "active"
	BotPaused = "paused"
)

// WebhookDelivery statuses
const (
	DeliveryPending = "pending"
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)

// Conversation is a durable thread between one inbox and one contact.
// At most one conversation exists per (inbox, contact) pair.
type Conversation struct {
	ID                 string
	AccountID          string
	InboxID            string
	ContactID          string // phone-number identifier, e.g. "+551199999999"
	ContactName        string // display name, empty if the contact never shared one
	Status             string // open, pending, resolved
	AssignedBotID      string // empty when no bot is assigned
	UnreadCount        int
	LastMessagePreview string
	LastActivityAt     time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Message is a single inbound or outbound unit of content within a
// conversation. Rows are immutable once in a terminal status except for the
// status column itself; deletion is a soft mark.
type Message struct {
	ID             string
	ConversationID string
	ExternalID     string // gateway-assigned message id, empty until acknowledged
	Direction      string // incoming, outgoing
	ContentType    string
	Content        string
	MediaURL       string
	ReplyToID      string // must reference a live message in the same conversation
	Status         string
	Private        bool // private notes never leave the console
	SenderKind     string
	BotID          string // set when a bot authored the message
	CreatedAt      time.Time
	DeletedAt      *time.Time
}

// AgentBot is an external automation endpoint optionally assigned to
// conversations. Paused bots must never receive traffic.
type AgentBot struct {
	ID          string
	AccountID   string
	Name        string
	OutgoingURL string
	AccessToken string
	Status      string // active, paused
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Webhook is an external URL registered to receive domain events.
type Webhook struct {
	ID           string
	AccountID    string
	URL          string
	Events       []string // subscribed event types, e.g. "message.received"
	Active       bool
	SuccessCount int
	FailureCount int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SubscribedTo reports whether the webhook's event set contains eventType.
func (w *Webhook) SubscribedTo(eventType string) bool {
	for _, e := range w.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// WebhookDelivery records one dispatched domain event for one subscription,
// including retry accounting. Terminal once success or failed.
type WebhookDelivery struct {
	ID           string
	WebhookID    string
	EventType    string
	Payload      string // serialized event envelope
	Status       string // pending, success, failed
	ResponseCode int
	AttemptCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Label is an account-scoped tag; names are unique case-insensitively.
type Label struct {
	ID        string
	AccountID string
	Name      string
	Color     string
	CreatedAt time.Time
}

// CannedResponse is an account-scoped reply template; shortcuts are unique
// case-insensitively.
type CannedResponse struct {
	ID        string
	AccountID string
	Shortcut  string
	Content   string
	CreatedAt time.Time
}

// Reaction is a contact's emoji reaction to a message. One reaction per
// (message, contact); re-reacting replaces the emoji.
type Reaction struct {
	MessageID string
	ContactID string
	Emoji     string
	CreatedAt time.Time
}

// Store defines the persistence interface for the delivery engine.
// All mutations are atomic at the statement level; callers provide
// higher-level serialization per conversation.
type Store interface {
	// Conversations
	FindOrCreateConversation(ctx context.Context, accountID, inboxID, contactID, contactName string) (conv *Conversation, created bool, err error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, inboxID string, limit int) ([]*Conversation, error)
	TouchConversation(ctx context.Context, id, preview string, at time.Time) error
	SetConversationStatus(ctx context.Context, id, lifecycle string) error
	SetAssignedBot(ctx context.Context, id, botID string) error
	RecomputeUnread(ctx context.Context, id string) (int, error)

	// Messages
	AppendMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetMessageByExternalID(ctx context.Context, externalID string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	CountMessages(ctx context.Context, conversationID string) (int, error)
	UpdateMessageStatus(ctx context.Context, id, from, to string) error
	SetMessageExternalID(ctx context.Context, id, externalID string) error
	SoftDeleteMessage(ctx context.Context, id string) error

	// Reactions
	UpsertReaction(ctx context.Context, r *Reaction) error
	ListReactions(ctx context.Context, messageID string) ([]*Reaction, error)

	// Agent bots
	CreateAgentBot(ctx context.Context, bot *AgentBot) error
	GetAgentBot(ctx context.Context, id string) (*AgentBot, error)
	ListAgentBots(ctx context.Context, accountID string) ([]*AgentBot, error)
	UpdateAgentBot(ctx context.Context, bot *AgentBot) error
	DeleteAgentBot(ctx context.Context, id string) error

	// Webhook subscriptions
	CreateWebhook(ctx context.Context, wh *Webhook) error
	GetWebhook(ctx context.Context, id string) (*Webhook, error)
	ListWebhooks(ctx context.Context, accountID string) ([]*Webhook, error)
	ListActiveWebhooks(ctx context.Context, accountID string) ([]*Webhook, error)
	UpdateWebhook(ctx context.Context, wh *Webhook) error
	DeleteWebhook(ctx context.Context, id string) error
	RecordWebhookSuccess(ctx context.Context, id string) error
	RecordWebhookFailure(ctx context.Context, id, lastError string) error

	// Webhook deliveries
	CreateDelivery(ctx context.Context, d *WebhookDelivery) error
	UpdateDelivery(ctx context.Context, id, deliveryStatus string, responseCode, attempts int) error
	GetDelivery(ctx context.Context, id string) (*WebhookDelivery, error)
	ListDeliveries(ctx context.Context, webhookID string, limit int) ([]*WebhookDelivery, error)

	// Labels and canned responses
	CreateLabel(ctx context.Context, l *Label) error
	ListLabels(ctx context.Context, accountID string) ([]*Label, error)
	DeleteLabel(ctx context.Context, id string) error
	AddConversationLabel(ctx context.Context, conversationID, labelID string) error
	RemoveConversationLabel(ctx context.Context, conversationID, labelID string) error
	ListConversationLabels(ctx context.Context, conversationID string) ([]*Label, error)
	CreateCannedResponse(ctx context.Context, c *CannedResponse) error
	ListCannedResponses(ctx context.Context, accountID string) ([]*CannedResponse, error)
	DeleteCannedResponse(ctx context.Context, id string) error

	// Close releases any resources held by the store
	Close() error
}
