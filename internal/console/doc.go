// ABOUTME: Package doc for the console server
// ABOUTME: Describes wiring, HTTP surface, and shutdown behavior

// Package console assembles the delivery engine into a single HTTP server.
//
// The Console wires the SQLite store, the gateway client and sink, the bot
// forwarder, the webhook dispatcher, and the realtime broadcaster behind one
// mux. It exposes three surfaces:
//
//   - /webhooks/gateway: the ingestion sink the WhatsApp gateway posts events to
//   - /api/...: the operator API (conversations, messages, notes, bots,
//     webhooks, labels, canned responses, and the SSE stream)
//   - /health and /health/ready: liveness and readiness probes
//
// The server listens on a plain TCP address or joins a tailnet via tsnet when
// tailscale is enabled in config. Shutdown drains in-flight HTTP requests,
// waits for pending webhook retries, closes the broadcaster, and closes the
// store.
package console
