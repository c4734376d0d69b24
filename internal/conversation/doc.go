// Package conversation provides the orchestration layer of the delivery
// engine.
//
// # Overview
//
// The conversation package sits between the gateway sink / console API and
// the store, providing conversation-level operations: inbound ingestion,
// outbound sends, receipt application, and private notes.
//
// # Service
//
// The Service coordinates all conversation mutations:
//
//	svc := conversation.NewService(store, gatewayClient, forwarder, dispatcher, broadcaster, accountID, logger)
//
// Key operations:
//
//   - ReceiveInbound(ctx, inboxID, contactID, name, draft): ingest a contact message
//   - SendOutbound(ctx, conversationID, draft, senderKind, botID): operator or bot send
//   - ApplyReceipt(ctx, externalID, status): apply a gateway acknowledgment
//   - MarkPrivateNote(ctx, conversationID, content): operator-only note
//
// When an inbound message arrives:
//
//  1. Find or create the (inbox, contact) conversation
//  2. Append the message in delivered status
//  3. Update preview, last-activity, and unread count
//  4. Publish realtime events, then run bot routing and webhook dispatch
//     as isolated side effects
//
// # Serialization
//
// All mutations for one conversation funnel through a per-id mutex, so the
// status machine and unread counts stay consistent under concurrent inbound
// events, sends, and receipts. Different conversations proceed in parallel.
//
// # Event Broadcasting
//
// The Broadcaster fans persisted changes out to connected operators:
//
//	svc.Broadcaster().Subscribe(ctx, scope) -> <-chan *Event
//
// Scope is a conversation id (thread view) or inbox id (list view). Events:
//
//   - message-appended: a new message or note
//   - status-changed: a delivery status transition
//   - conversation-updated: preview/unread/lifecycle/assignment change
//   - message-updated: reaction or soft-delete
//
// Delivery is in-order per scope while connected; clients resynchronize via
// the message list endpoint after a disconnect.
package conversation
