// ABOUTME: Conversation orchestrator: ingests inbound messages, sends outbound,
// ABOUTME: applies receipts, and fans out bot/webhook/realtime side effects

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/waplane/waplane/internal/bot"
	"github.com/waplane/waplane/internal/gateway"
	"github.com/waplane/waplane/internal/status"
	"github.com/waplane/waplane/internal/store"
	"github.com/waplane/waplane/internal/webhook"
)

// ErrEmptyMessage rejects whitespace-only outbound text before any side
// effect; no message row is created.
var ErrEmptyMessage = errors.New("message content is empty")

const previewMaxLen = 120

// Draft is the caller-supplied content of a message to append.
type Draft struct {
	ContentType string
	Content     string
	MediaURL    string
	ReplyToID   string // internal message id
	ExternalID  string // gateway id, set for inbound messages
}

// Service orchestrates all conversation mutations. Mutations for one
// conversation are serialized through a keyed mutex; different conversations
// proceed in parallel.
type Service struct {
	store       store.Store
	gateway     gateway.Client
	forwarder   bot.Forwarder
	dispatcher  *webhook.Dispatcher
	broadcaster Broadcaster
	locks       *keyedMutex
	accountID   string
	logger      *slog.Logger
}

// NewService creates the orchestrator.
func NewService(s store.Store, gw gateway.Client, fw bot.Forwarder, d *webhook.Dispatcher, b Broadcaster, accountID string, logger *slog.Logger) *Service {
	return &Service{
		store:       s,
		gateway:     gw,
		forwarder:   fw,
		dispatcher:  d,
		broadcaster: b,
		locks:       newKeyedMutex(),
		accountID:   accountID,
		logger:      logger.With("component", "conversation"),
	}
}

// Broadcaster exposes the realtime broadcaster so transports can subscribe.
func (s *Service) Broadcaster() Broadcaster {
	return s.broadcaster
}

// ProcessIncoming implements the gateway sink's processor contract.
func (s *Service) ProcessIncoming(ctx context.Context, in *gateway.IncomingMessage) error {
	draft := &Draft{
		ContentType: in.ContentType,
		Content:     in.Content,
		MediaURL:    in.MediaURL,
		ExternalID:  in.MessageID,
	}
	if in.QuotedID != "" {
		// Quotes reference the gateway id; resolve to our message. An
		// unresolvable quote is dropped rather than failing ingestion.
		if quoted, err := s.store.GetMessageByExternalID(ctx, in.QuotedID); err == nil {
			draft.ReplyToID = quoted.ID
		} else {
			s.logger.Debug("dropping unresolvable quote", "quoted_id", in.QuotedID)
		}
	}
	_, err := s.ReceiveInbound(ctx, in.InboxID, in.From, in.SenderName, draft)
	return err
}

// ProcessReceipt implements the gateway sink's processor contract.
func (s *Service) ProcessReceipt(ctx context.Context, externalID, newStatus string) error {
	return s.ApplyReceipt(ctx, externalID, newStatus)
}

// ProcessReaction implements the gateway sink's processor contract. The
// reaction targets a message by its gateway id.
func (s *Service) ProcessReaction(ctx context.Context, externalID, contactID, emoji string) error {
	msg, err := s.store.GetMessageByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	return s.React(ctx, msg.ID, contactID, emoji)
}

// ReceiveInbound records an inbound contact message: finds or creates the
// conversation, appends the message as delivered, updates preview and unread
// count, then runs bot routing and webhook dispatch as isolated side
// effects. Automation failures never fail ingestion.
func (s *Service) ReceiveInbound(ctx context.Context, inboxID, contactID, contactName string, draft *Draft) (*store.Message, error) {
	conv, created, err := s.store.FindOrCreateConversation(ctx, s.accountID, inboxID, contactID, contactName)
	if err != nil {
		return nil, fmt.Errorf("find or create conversation: %w", err)
	}

	unlock := s.locks.lock(conv.ID)

	now := time.Now().UTC()
	msg := &store.Message{
		ConversationID: conv.ID,
		ExternalID:     draft.ExternalID,
		Direction:      status.DirectionIncoming,
		ContentType:    draft.ContentType,
		Content:        draft.Content,
		MediaURL:       draft.MediaURL,
		ReplyToID:      draft.ReplyToID,
		Status:         status.Initial(status.DirectionIncoming),
		SenderKind:     store.SenderContact,
		CreatedAt:      now,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		unlock()
		return nil, fmt.Errorf("append inbound message: %w", err)
	}

	if err := s.store.TouchConversation(ctx, conv.ID, preview(draft), now); err != nil {
		s.logger.Error("failed to touch conversation", "conversation_id", conv.ID, "error", err)
	}
	if _, err := s.store.RecomputeUnread(ctx, conv.ID); err != nil {
		s.logger.Error("failed to recompute unread", "conversation_id", conv.ID, "error", err)
	}

	s.broadcaster.Publish(&Event{
		Type:      EventMessageAppended,
		Scope:     conv.ID,
		Timestamp: now,
		Message:   messagePayload(msg),
	})
	s.publishConversation(ctx, conv.ID)

	unlock()

	// Side effects outside the lock: a slow bot or subscriber never delays
	// the next mutation on this conversation.
	if created {
		s.dispatch(ctx, webhook.EventConversationCreated, conv, nil)
	}
	s.dispatch(ctx, webhook.EventMessageReceived, conv, msg)
	s.routeToBot(ctx, conv, msg)

	return msg, nil
}

// SendOutbound appends an operator- or bot-authored message and hands it to
// the gateway. Whitespace-only text is rejected with ErrEmptyMessage before
// any side effect. Gateway rejection is not an error: the returned message
// carries the terminal failed status and the operator retries with a new
// send.
func (s *Service) SendOutbound(ctx context.Context, conversationID string, draft *Draft, senderKind, botID string) (*store.Message, error) {
	if draft.ContentType == "" {
		draft.ContentType = store.ContentText
	}
	if draft.ContentType == store.ContentText && strings.TrimSpace(draft.Content) == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	unlock := s.locks.lock(conv.ID)

	now := time.Now().UTC()
	msg := &store.Message{
		ConversationID: conv.ID,
		Direction:      status.DirectionOutgoing,
		ContentType:    draft.ContentType,
		Content:        draft.Content,
		MediaURL:       draft.MediaURL,
		ReplyToID:      draft.ReplyToID,
		Status:         status.Initial(status.DirectionOutgoing),
		SenderKind:     senderKind,
		BotID:          botID,
		CreatedAt:      now,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		unlock()
		return nil, fmt.Errorf("append outbound message: %w", err)
	}

	s.broadcaster.Publish(&Event{
		Type:      EventMessageAppended,
		Scope:     conv.ID,
		Timestamp: now,
		Message:   messagePayload(msg),
	})
	unlock()

	// Gateway call runs without the lock so receipts and inbound traffic on
	// this conversation are not stalled by a slow provider.
	res, sendErr := s.sendToGateway(ctx, conv, msg)

	unlock = s.locks.lock(conv.ID)

	if sendErr != nil {
		s.logger.Warn("gateway rejected outbound message",
			"conversation_id", conv.ID,
			"message_id", msg.ID,
			"error", sendErr)
		s.transition(ctx, msg, status.Failed)
		unlock()
		return msg, nil
	}

	if res.MessageID != "" {
		if err := s.store.SetMessageExternalID(ctx, msg.ID, res.MessageID); err != nil {
			s.logger.Error("failed to store external id", "message_id", msg.ID, "error", err)
		} else {
			msg.ExternalID = res.MessageID
		}
	}
	s.transition(ctx, msg, status.Sent)

	if err := s.store.TouchConversation(ctx, conv.ID, preview(draft), now); err != nil {
		s.logger.Error("failed to touch conversation", "conversation_id", conv.ID, "error", err)
	}
	s.publishConversation(ctx, conv.ID)
	unlock()

	s.dispatch(ctx, webhook.EventMessageSent, conv, msg)

	return msg, nil
}

// ApplyReceipt applies a gateway status acknowledgment to the message with
// the given external id. Inbound read receipts recompute the unread count.
func (s *Service) ApplyReceipt(ctx context.Context, externalID, newStatus string) error {
	msg, err := s.store.GetMessageByExternalID(ctx, externalID)
	if err != nil {
		return fmt.Errorf("lookup message %q: %w", externalID, err)
	}

	unlock := s.locks.lock(msg.ConversationID)

	// Re-read under the lock; a concurrent receipt may have advanced it.
	msg, err = s.store.GetMessage(ctx, msg.ID)
	if err != nil {
		unlock()
		return err
	}

	if err := status.Validate(msg.Direction, msg.Status, newStatus); err != nil {
		unlock()
		return err
	}
	if err := s.store.UpdateMessageStatus(ctx, msg.ID, msg.Status, newStatus); err != nil {
		unlock()
		return fmt.Errorf("update message status: %w", err)
	}
	msg.Status = newStatus

	s.broadcaster.Publish(&Event{
		Type:      EventStatusChanged,
		Scope:     msg.ConversationID,
		Timestamp: time.Now().UTC(),
		Message:   messagePayload(msg),
	})

	if msg.Direction == status.DirectionIncoming && newStatus == status.Read {
		if _, err := s.store.RecomputeUnread(ctx, msg.ConversationID); err != nil {
			s.logger.Error("failed to recompute unread", "conversation_id", msg.ConversationID, "error", err)
		}
		s.publishConversation(ctx, msg.ConversationID)
	}
	unlock()

	if msg.Direction == status.DirectionOutgoing && newStatus == status.Read && !msg.Private {
		conv, err := s.store.GetConversation(ctx, msg.ConversationID)
		if err == nil {
			s.dispatch(ctx, webhook.EventMessageRead, conv, msg)
		}
	}

	return nil
}

// MarkPrivateNote appends an operator-only note. Notes never reach the
// gateway, bots, or webhook subscribers; they surface only on the realtime
// stream and message listings.
func (s *Service) MarkPrivateNote(ctx context.Context, conversationID, content string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}

	unlock := s.locks.lock(conv.ID)
	defer unlock()

	now := time.Now().UTC()
	msg := &store.Message{
		ConversationID: conv.ID,
		Direction:      status.DirectionOutgoing,
		ContentType:    store.ContentText,
		Content:        content,
		Status:         status.Sent, // notes have no delivery lifecycle
		Private:        true,
		SenderKind:     store.SenderHuman,
		CreatedAt:      now,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append private note: %w", err)
	}

	s.broadcaster.Publish(&Event{
		Type:      EventMessageAppended,
		Scope:     conv.ID,
		Timestamp: now,
		Message:   messagePayload(msg),
	})

	return msg, nil
}

// ToggleStatus moves a conversation through its open/pending/resolved
// lifecycle.
func (s *Service) ToggleStatus(ctx context.Context, conversationID, lifecycle string) (*store.Conversation, error) {
	switch lifecycle {
	case store.ConversationOpen, store.ConversationPending, store.ConversationResolved:
	default:
		return nil, fmt.Errorf("unknown conversation status %q", lifecycle)
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	if err := s.store.SetConversationStatus(ctx, conversationID, lifecycle); err != nil {
		return nil, err
	}
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.publishConversationLocked(conv)
	return conv, nil
}

// AssignBot assigns an agent bot to the conversation. The bot must exist;
// assigning a paused bot is allowed but it receives no traffic until
// reactivated.
func (s *Service) AssignBot(ctx context.Context, conversationID, botID string) error {
	if _, err := s.store.GetAgentBot(ctx, botID); err != nil {
		return fmt.Errorf("load bot: %w", err)
	}

	unlock := s.locks.lock(conversationID)
	defer unlock()

	if err := s.store.SetAssignedBot(ctx, conversationID, botID); err != nil {
		return err
	}
	if conv, err := s.store.GetConversation(ctx, conversationID); err == nil {
		s.publishConversationLocked(conv)
	}
	return nil
}

// UnassignBot clears the conversation's bot assignment.
func (s *Service) UnassignBot(ctx context.Context, conversationID string) error {
	unlock := s.locks.lock(conversationID)
	defer unlock()

	if err := s.store.SetAssignedBot(ctx, conversationID, ""); err != nil {
		return err
	}
	if conv, err := s.store.GetConversation(ctx, conversationID); err == nil {
		s.publishConversationLocked(conv)
	}
	return nil
}

// React records a contact's emoji reaction to a message, replacing any
// previous reaction from the same contact.
func (s *Service) React(ctx context.Context, messageID, contactID, emoji string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(msg.ConversationID)
	defer unlock()

	if err := s.store.UpsertReaction(ctx, &store.Reaction{
		MessageID: messageID,
		ContactID: contactID,
		Emoji:     emoji,
	}); err != nil {
		return err
	}

	s.broadcaster.Publish(&Event{
		Type:      EventMessageUpdated,
		Scope:     msg.ConversationID,
		Timestamp: time.Now().UTC(),
		Message:   messagePayload(msg),
	})
	return nil
}

// DeleteMessage soft-deletes a message. The row stays so existing replies
// keep a resolvable target; new replies to it are rejected.
func (s *Service) DeleteMessage(ctx context.Context, messageID string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(msg.ConversationID)
	defer unlock()

	if err := s.store.SoftDeleteMessage(ctx, messageID); err != nil {
		return err
	}
	if _, err := s.store.RecomputeUnread(ctx, msg.ConversationID); err != nil {
		s.logger.Error("failed to recompute unread", "conversation_id", msg.ConversationID, "error", err)
	}

	now := time.Now().UTC()
	msg.DeletedAt = &now
	s.broadcaster.Publish(&Event{
		Type:      EventMessageUpdated,
		Scope:     msg.ConversationID,
		Timestamp: now,
		Message:   messagePayload(msg),
	})
	return nil
}

// sendToGateway routes the draft to the right gateway call. Private notes
// are never sent.
func (s *Service) sendToGateway(ctx context.Context, conv *store.Conversation, msg *store.Message) (*gateway.SendResult, error) {
	if msg.ContentType == store.ContentText {
		return s.gateway.SendText(ctx, conv.InboxID, conv.ContactID, msg.ID, msg.Content)
	}
	return s.gateway.SendMedia(ctx, conv.InboxID, conv.ContactID, msg.ID, msg.ContentType, msg.MediaURL, msg.Content)
}

// transition applies a status change and publishes it. Invalid transitions
// are logged, never propagated; the stored record is left untouched.
func (s *Service) transition(ctx context.Context, msg *store.Message, target string) {
	if err := status.Validate(msg.Direction, msg.Status, target); err != nil {
		s.logger.Error("invalid status transition",
			"message_id", msg.ID,
			"from", msg.Status,
			"to", target)
		return
	}
	if err := s.store.UpdateMessageStatus(ctx, msg.ID, msg.Status, target); err != nil {
		s.logger.Error("failed to update message status",
			"message_id", msg.ID,
			"to", target,
			"error", err)
		return
	}
	msg.Status = target

	s.broadcaster.Publish(&Event{
		Type:      EventStatusChanged,
		Scope:     msg.ConversationID,
		Timestamp: time.Now().UTC(),
		Message:   messagePayload(msg),
	})
}

// routeToBot forwards an inbound message to the conversation's assigned bot
// and applies the bot's response action. Failures are logged only.
func (s *Service) routeToBot(ctx context.Context, conv *store.Conversation, msg *store.Message) {
	b, err := bot.Route(ctx, s.store, conv)
	if err != nil {
		s.logger.Error("bot routing failed", "conversation_id", conv.ID, "error", err)
		return
	}
	if b == nil {
		return
	}

	env := &bot.ForwardEnvelope{
		Event: "message.received",
		Conversation: bot.ForwardConversation{
			ID:          conv.ID,
			ContactID:   conv.ContactID,
			ContactName: conv.ContactName,
		},
		Message: bot.ForwardMessage{
			ID:        msg.ID,
			Type:      msg.ContentType,
			Content:   msg.Content,
			MediaURL:  msg.MediaURL,
			Timestamp: msg.CreatedAt,
		},
		Bot: bot.ForwardBot{ID: b.ID, Name: b.Name},
	}

	resp, err := s.forwarder.Forward(ctx, b, env)
	if err != nil {
		s.logger.Warn("bot forward failed",
			"conversation_id", conv.ID,
			"bot_id", b.ID,
			"error", err)
		return
	}

	switch resp.Action {
	case bot.ActionReply:
		if resp.Message == nil {
			s.logger.Warn("bot reply without message", "bot_id", b.ID)
			return
		}
		draft := &Draft{
			ContentType: resp.Message.Type,
			Content:     resp.Message.Content,
			MediaURL:    resp.Message.MediaURL,
		}
		if _, err := s.SendOutbound(ctx, conv.ID, draft, store.SenderBot, b.ID); err != nil {
			s.logger.Warn("bot reply send failed", "bot_id", b.ID, "error", err)
		}
	case bot.ActionHandoff:
		if err := s.UnassignBot(ctx, conv.ID); err != nil {
			s.logger.Error("bot handoff failed", "conversation_id", conv.ID, "error", err)
		}
	case bot.ActionIgnore:
	}
}

// dispatch builds the subscriber envelope and hands it to the webhook
// dispatcher. Private notes are excluded from contact-visible payloads and
// never reach this path.
func (s *Service) dispatch(ctx context.Context, eventType string, conv *store.Conversation, msg *store.Message) {
	if msg != nil && msg.Private {
		return
	}

	env := &webhook.Envelope{
		Event: eventType,
		Conversation: map[string]any{
			"id":           conv.ID,
			"inbox_id":     conv.InboxID,
			"contact_id":   conv.ContactID,
			"contact_name": conv.ContactName,
			"status":       conv.Status,
		},
		Timestamp: time.Now().UTC(),
	}
	if msg != nil {
		env.Message = map[string]any{
			"id":           msg.ID,
			"direction":    msg.Direction,
			"content_type": msg.ContentType,
			"content":      msg.Content,
			"media_url":    msg.MediaURL,
			"status":       msg.Status,
			"created_at":   msg.CreatedAt,
		}
	}
	s.dispatcher.Dispatch(ctx, conv.AccountID, env)
}

// publishConversation re-reads the conversation and publishes an update on
// its inbox scope. Must be called with the conversation lock held.
func (s *Service) publishConversation(ctx context.Context, conversationID string) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		s.logger.Error("failed to load conversation for publish", "conversation_id", conversationID, "error", err)
		return
	}
	s.publishConversationLocked(conv)
}

func (s *Service) publishConversationLocked(conv *store.Conversation) {
	s.broadcaster.Publish(&Event{
		Type:         EventConversationUpdated,
		Scope:        conv.InboxID,
		Timestamp:    time.Now().UTC(),
		Conversation: conversationPayload(conv),
	})
}

func preview(d *Draft) string {
	p := d.Content
	if p == "" && d.MediaURL != "" {
		p = "[" + d.ContentType + "]"
	}
	// Truncate on a rune boundary so multi-byte text is never split
	// mid-character.
	if utf8.RuneCountInString(p) > previewMaxLen {
		runes := []rune(p)
		p = string(runes[:previewMaxLen])
	}
	return p
}
