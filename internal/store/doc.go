// Package store provides persistence for conversations, messages, bots,
// webhook subscriptions, labels and canned responses.
//
// The Store interface is the engine's only shared mutable resource. All
// mutations are atomic single statements or small transactions (find-or-create,
// append, conditional status update, counter increments); callers layer
// per-conversation serialization on top.
package store
