// Package delivery sends persisted digests to downstream channels: a Telegram
// chat (one combined MarkdownV2 message) and a NATS JetStream subject. Targets
// are configured independently; when none is enabled a noop is used.
//
// Delivery failures never undo a run. They are logged and returned wrapped in
// services.ErrDelivery.
package delivery
